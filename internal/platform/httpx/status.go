// Package httpx holds the HTTP helpers shared by the platform clients.
package httpx

import (
	"fmt"
	"net/http"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// maxBodyInError caps how much of a response body is echoed into errors.
const maxBodyInError = 512

// CheckStatus maps non-2xx status codes onto the domain sentinels.
func CheckStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	if len(bodyStr) > maxBodyInError {
		bodyStr = bodyStr[:maxBodyInError]
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrNetwork, statusCode, bodyStr)
	}
}

// Transport wraps a transport-level failure as a network error.
func Transport(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
}

// Decode wraps a body decoding failure as a parse error.
func Decode(what string, err error) error {
	return fmt.Errorf("%w: decode %s: %v", domain.ErrParse, what, err)
}
