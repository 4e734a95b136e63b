package docstore

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a store failure.
type Kind int

const (
	// KindUnknown is reported by KindOf for errors that are not *Error.
	KindUnknown Kind = iota
	// KindConfiguration means the client cannot issue requests at all.
	// Returned before any network I/O and never retried.
	KindConfiguration
	// KindNotFound means the store answered 404.
	KindNotFound
	// KindTransient means a 502, 503, 504 or a connection failure. It is
	// retried internally and only surfaces as the Cause of KindUnavailable.
	KindTransient
	// KindRequest means any other non-2xx answer, or a 2xx body that could
	// not be decoded. Not retried.
	KindRequest
	// KindUnavailable means the retry budget is spent or the circuit is open.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindNotFound:
		return "not found"
	case KindTransient:
		return "transient failure"
	case KindRequest:
		return "request failed"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Sentinel causes.
var (
	// ErrBaseURLNotSet is the cause of a KindConfiguration error.
	ErrBaseURLNotSet = errors.New("docstore: base URL is not configured")

	// ErrEmptyCollection is returned when a collection name is empty.
	ErrEmptyCollection = errors.New("docstore: collection is required")

	// ErrEmptyID is returned when a document id is empty.
	ErrEmptyID = errors.New("docstore: document id is required")
)

// Error is the single error type returned by Client.
type Error struct {
	Kind       Kind
	Op         string
	Collection string
	ID         string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("docstore: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		if e.Collection != "" {
			b.WriteString(" ")
			b.WriteString(e.Collection)
			if e.ID != "" {
				b.WriteString("/")
				b.WriteString(e.ID)
			}
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusCodeOf returns the HTTP status carried by err, or 0.
func StatusCodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a KindNotFound error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsUnavailable reports whether err is a KindUnavailable error.
func IsUnavailable(err error) bool {
	return KindOf(err) == KindUnavailable
}

// isTransientStatus reports whether code is an upstream failure worth
// retrying.
func isTransientStatus(code int) bool {
	switch code {
	case 502, 503, 504:
		return true
	default:
		return false
	}
}
