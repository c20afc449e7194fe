// Package source fetches the short text snippets shown in the pane.
package source

import (
	"context"
	"errors"
	"fmt"
)

// Fetcher retrieves the current list of texts from a single remote source.
type Fetcher interface {
	// Name returns the source identifier (e.g. "json").
	Name() string

	// Fetch performs one request and returns the decoded texts in display order.
	// Failures are reported as *FetchError.
	Fetch(ctx context.Context) ([]string, error)
}

// ErrorKind classifies why a fetch failed.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidRequest
	KindTransport
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Summary is a fixed description of the failure class. It never carries
// response content, so it is safe to keep.
func (k ErrorKind) Summary() string {
	switch k {
	case KindInvalidRequest:
		return "request could not be built"
	case KindTransport:
		return "source unreachable or request failed"
	case KindDecode:
		return "response did not match {\"data\": [string]}"
	default:
		return "fetch failed"
	}
}

// FetchError is the failure side of a fetch.
type FetchError struct {
	Kind   ErrorKind
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind carried by err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

func fail(source string, kind ErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Source: source, Err: err}
}
