package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FetchError reports a non-2xx backend response. Info holds the decoded JSON
// error body when it parsed as an object; Body keeps the raw text otherwise.
type FetchError struct {
	Op   string
	Code int
	Info map[string]any
	Body string
}

func (e *FetchError) Error() string {
	msg := e.InfoMessage()
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	return fmt.Sprintf("gateway: %s: backend responded %d: %s", e.Op, e.Code, msg)
}

// InfoMessage returns info.message when the backend supplied one.
func (e *FetchError) InfoMessage() string {
	if e == nil || e.Info == nil {
		return ""
	}
	msg, _ := e.Info["message"].(string)
	return strings.TrimSpace(msg)
}

// StatusCode exposes the backend status for callers that only see an error.
func (e *FetchError) StatusCode() int {
	if e == nil {
		return 0
	}
	return e.Code
}

// CancellationError wraps the context error of an aborted request. It is not
// a failure for display purposes.
type CancellationError struct {
	Op  string
	Err error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("gateway: %s: canceled: %v", e.Op, e.Err)
}

func (e *CancellationError) Unwrap() error { return e.Err }

// ParseError reports a 2xx response whose body was not the expected JSON.
type ParseError struct {
	Op   string
	Body string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("gateway: %s: malformed response body: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsCanceled reports whether err stems from a cancelled or expired context.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	var cancelErr *CancellationError
	if errors.As(err, &cancelErr) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// MessageOf picks the message a view should show for err: the backend's
// info.message when present, otherwise fallback.
func MessageOf(err error, fallback string) string {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		if msg := fetchErr.InfoMessage(); msg != "" {
			return msg
		}
	}
	return fallback
}

// StatusOf returns the backend status carried by err, or 0.
func StatusOf(err error) int {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Code
	}
	return 0
}
