package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrLockHeld        = errors.New("lock already held")
	ErrNetwork         = errors.New("network error")
	ErrInvalidPair     = errors.New("pair not supported")
	ErrParse           = errors.New("malformed response")
	ErrDataUnavailable = errors.New("data unavailable")
	ErrConfig          = errors.New("invalid configuration")
)
