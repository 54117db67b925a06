package ai

import (
	"errors"
	"fmt"
)

// FallbackReply stands in for a reply when the service answered without text.
const FallbackReply = "Sorry, I could not generate a response."

// CompletionKind classifies why a completion did not yield reply text.
type CompletionKind string

const (
	// KindTransportFailure covers network errors, timeouts, non-2xx statuses
	// and undecodable payloads.
	KindTransportFailure CompletionKind = "transport_failure"
	// KindEmptyResponse means the service answered but produced no usable text.
	KindEmptyResponse CompletionKind = "empty_response"
)

// CompletionError is returned by Complete and by the chat models in this package.
type CompletionError struct {
	Kind   CompletionKind
	Status int
	Err    error
}

func (e *CompletionError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("completion %s (HTTP %d): %v", e.Kind, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("completion %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("completion %s", e.Kind)
	}
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

func transportFailure(status int, err error) *CompletionError {
	return &CompletionError{Kind: KindTransportFailure, Status: status, Err: err}
}

func emptyResponse(reason string) *CompletionError {
	return &CompletionError{Kind: KindEmptyResponse, Err: errors.New(reason)}
}

// KindOf reports the completion kind carried by err. Errors that did not
// come from this package count as transport failures.
func KindOf(err error) CompletionKind {
	if err == nil {
		return ""
	}
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransportFailure
}

// IsEmptyResponse reports whether err signals a contentless reply.
func IsEmptyResponse(err error) bool {
	return KindOf(err) == KindEmptyResponse
}
