package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSymbols is returned when a request names no usable symbol.
	ErrNoSymbols = errors.New("no symbols requested")
	// ErrInvalidRange is returned when start is after end.
	ErrInvalidRange = errors.New("start date is after end date")
	// ErrNoData is returned by an attempt whose response has no usable rows.
	ErrNoData = errors.New("provider returned no data")
	// ErrCorruptCache is returned when a cache artifact cannot be decoded.
	ErrCorruptCache = errors.New("corrupt cache artifact")
)

// FetchError is returned after every download attempt has failed.
// Err is the cause of the last attempt.
type FetchError struct {
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to download data after %d attempts: %v", e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
