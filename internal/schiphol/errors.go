package schiphol

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingCredentials is returned when app_id or app_key is not configured
	ErrMissingCredentials = errors.New("schiphol: app_id and app_key are required")
	// ErrInvalidFetchConfig marks a caller bug in the fetch parameters
	ErrInvalidFetchConfig = errors.New("schiphol: invalid fetch config")

	ErrUpstreamTransport = errors.New("schiphol: transport error")
	ErrUpstreamStatus    = errors.New("schiphol: unexpected status")
	ErrUpstreamDecode    = errors.New("schiphol: malformed response")
)

// StatusError is a non-2xx response from the flights resource
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Unwrap() error { return ErrUpstreamStatus }

// PageError reports the page on which pagination was aborted
type PageError struct {
	Page       int
	StatusCode int
	Err        error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("fetch page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

func newPageError(page int, err error) *PageError {
	pe := &PageError{Page: page, Err: err}
	var se *StatusError
	if errors.As(err, &se) {
		pe.StatusCode = se.Code
	}
	return pe
}

// retryable reports whether another attempt at the same page makes sense
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return errors.Is(err, ErrUpstreamTransport)
}
