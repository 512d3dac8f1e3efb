package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Quote is a single price observation from one venue. Price is expressed in
// quote-token units per one base-token unit; Liquidity is quote-denominated.
type Quote struct {
	Venue      string    `json:"venue"`
	Pair       TokenPair `json:"pair"`
	Price      float64   `json:"price"`
	Liquidity  float64   `json:"liquidity"`
	Fee        float64   `json:"fee"`
	ObservedAt time.Time `json:"observed_at"`
}

// QuoteError describes a failed quote fetch. Kind is one of ErrNetwork,
// ErrRateLimited, ErrInvalidPair or ErrParse, and errors.Is matches it.
type QuoteError struct {
	Venue string
	Pair  TokenPair
	Kind  error
	Err   error
}

// NewQuoteError builds a QuoteError for the given venue and pair.
func NewQuoteError(venue string, pair TokenPair, kind, err error) *QuoteError {
	return &QuoteError{Venue: venue, Pair: pair, Kind: kind, Err: err}
}

func (e *QuoteError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Venue, e.Pair.Key(), e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Venue, e.Pair.Key(), e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *QuoteError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ClassifyQuoteError maps any fetch error onto the quote error taxonomy.
// Deadline and cancellation errors count as network errors; anything
// unrecognised is treated as a network error as well.
func ClassifyQuoteError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidPair):
		return ErrInvalidPair
	case errors.Is(err, ErrRateLimited):
		return ErrRateLimited
	case errors.Is(err, ErrParse):
		return ErrParse
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrNetwork
	default:
		return ErrNetwork
	}
}
