package fetcher

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransientFetch matches fetch failures worth retrying (timeouts, 429, 5xx).
	ErrTransientFetch = errors.New("transient fetch error")
	// ErrPermanentFetch matches fetch failures that are never retried (404, bad links).
	ErrPermanentFetch = errors.New("permanent fetch error")
)

// FetchError carries the URL and HTTP status of a failed fetch.
type FetchError struct {
	URL        string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s fetch %s: status %d: %v", kind, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s fetch %s: %v", kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is matches ErrTransientFetch or ErrPermanentFetch according to Transient.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTransientFetch:
		return e.Transient
	case ErrPermanentFetch:
		return !e.Transient
	}
	return false
}

// TransientStatus reports whether an HTTP status is worth retrying.
func TransientStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout ||
		code >= http.StatusInternalServerError
}
