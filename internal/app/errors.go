package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorKind int

const (
	KindInternal = ErrorKind(iota)
	KindInvalidInput
	KindUnsupportedPlatform
	KindLaunchFailure
	KindExtractionFailure
	KindArtifactMissing
	KindTimeout
	KindClientCancelled
	KindTransportFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindUnsupportedPlatform:
		return "unsupported_platform"
	case KindLaunchFailure:
		return "launch_failure"
	case KindExtractionFailure:
		return "extraction_failure"
	case KindArtifactMissing:
		return "artifact_missing"
	case KindTimeout:
		return "timeout"
	case KindClientCancelled:
		return "client_cancelled"
	case KindTransportFailure:
		return "transport_failure"
	}
	return "internal"
}

// Reason refines KindExtractionFailure.
type Reason int

const (
	ReasonUnknown = Reason(iota)
	ReasonNotFound
	ReasonPrivate
	ReasonAgeRestricted
	ReasonRateLimited
)

func (r Reason) String() string {
	switch r {
	case ReasonNotFound:
		return "not-found"
	case ReasonPrivate:
		return "private"
	case ReasonAgeRestricted:
		return "age-restricted"
	case ReasonRateLimited:
		return "rate-limited"
	}
	return "unknown"
}

// Message is the client facing text for an extraction failure.
func (r Reason) Message() string {
	switch r {
	case ReasonNotFound:
		return "Video not found or is unavailable"
	case ReasonPrivate:
		return "This video is private and cannot be downloaded"
	case ReasonAgeRestricted:
		return "This video is age-restricted"
	case ReasonRateLimited:
		return "Too many requests to the platform, try again later"
	}
	return "Download failed"
}

// ErrTimeout is the cancel cause of a request that ran out of its time budget.
var ErrTimeout = errors.New("download timed out")

type Error struct {
	cause       error
	Kind        ErrorKind
	Reason      Reason
	UserMessage string
	// Diagnostic is the extractor line the error was classified from.
	Diagnostic string
}

func NewError(kind ErrorKind, userMessage string) *Error {
	return &Error{Kind: kind, UserMessage: userMessage}
}

// NewExtractionError builds a KindExtractionFailure with the message of reason.
func NewExtractionError(reason Reason, diagnostic string) *Error {
	return &Error{
		Kind:        KindExtractionFailure,
		Reason:      reason,
		UserMessage: reason.Message(),
		Diagnostic:  diagnostic,
	}
}

func (err *Error) WithCause(cause error) *Error {
	err.cause = cause
	return err
}

func (err *Error) Unwrap() error {
	return err.cause
}

func (err *Error) Error() string {
	msg := &strings.Builder{}
	_, _ = fmt.Fprintf(msg, "%s error with message=%q", err.Kind, err.UserMessage)
	if err.Kind == KindExtractionFailure {
		_, _ = fmt.Fprintf(msg, " reason=%s", err.Reason)
	}
	if err.Diagnostic != "" {
		_, _ = fmt.Fprintf(msg, " diagnostic=%q", err.Diagnostic)
	}
	if err.cause != nil {
		_, _ = fmt.Fprintf(msg, " and cause err=%q", err.cause.Error())
	}
	return msg.String()
}

// HTTPStatus is the status used when the error is reported before headers are sent.
func (err *Error) HTTPStatus() int {
	switch err.Kind {
	case KindInvalidInput, KindUnsupportedPlatform:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Reportable tells whether the client should get a response body for err.
func (err *Error) Reportable() bool {
	return err.Kind != KindClientCancelled && err.Kind != KindTransportFailure
}

// AsError converts any error into *Error. Context errors are mapped to
// KindTimeout or KindClientCancelled depending on the cancel cause of ctx.
func AsError(ctx context.Context, err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if kind, ok := ContextKind(ctx); ok {
		if kind == KindTimeout {
			return NewError(KindTimeout, "Download timed out").WithCause(err)
		}
		return NewError(KindClientCancelled, "Download cancelled").WithCause(err)
	}
	return NewError(KindInternal, "Internal Server Error").WithCause(err)
}

// ContextKind reports why ctx is done, if it is.
func ContextKind(ctx context.Context) (ErrorKind, bool) {
	if ctx.Err() == nil {
		return KindInternal, false
	}
	if errors.Is(context.Cause(ctx), ErrTimeout) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return KindTimeout, true
	}
	return KindClientCancelled, true
}
