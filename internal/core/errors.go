package core

import (
	"context"
	"errors"
)

// ErrorKind classifies backend failures at the controller boundary.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindForbidden         ErrorKind = "forbidden"
	KindNetworkFailure    ErrorKind = "network_failure"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindConflict          ErrorKind = "conflict"
	KindUnauthorized      ErrorKind = "unauthorized"
)

var (
	ErrSendInFlight  = errors.New("a message is already being sent")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrNoActiveRoom  = errors.New("no active room")
	ErrNotLoggedIn   = errors.New("not logged in")
	ErrStopped       = errors.New("controller stopped")
	ErrNoMoreHistory = errors.New("start of history reached")
)

// CoreError wraps a failure kind, the failed operation and a human-readable message.
type CoreError struct {
	Kind    ErrorKind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// Is matches another *CoreError by kind so errors.Is(err, &CoreError{Kind: KindForbidden}) works.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// NewError builds a CoreError.
func NewError(kind ErrorKind, op, msg string, err error) *CoreError {
	return &CoreError{Kind: kind, Op: op, Message: msg, Err: err}
}

// AsCoreError converts any error into a CoreError. Errors that are not already
// classified are network failures.
func AsCoreError(err error) *CoreError {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return &CoreError{Kind: KindNetworkFailure, Err: err}
}

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	return AsCoreError(err).Kind
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsCanceled reports whether err stems from a cancelled fetch.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// UserFacing maps a kind to the kind shown to the user. Malformed payloads are
// reported as network failures.
func (k ErrorKind) UserFacing() ErrorKind {
	if k == KindMalformedResponse {
		return KindNetworkFailure
	}
	return k
}

// UserMessage returns the text shown in a notification for err.
func UserMessage(err error) string {
	ce := AsCoreError(err)
	if ce == nil {
		return ""
	}
	switch ce.Kind.UserFacing() {
	case KindNotFound:
		if ce.Message != "" {
			return ce.Message
		}
		return "This chat no longer exists"
	case KindForbidden:
		if ce.Message != "" {
			return ce.Message
		}
		return "You are not allowed to do that"
	case KindConflict:
		if ce.Message != "" {
			return ce.Message
		}
		return "Request already sent"
	case KindUnauthorized:
		return "Your session has expired, please log in again"
	default:
		return "Network error, please try again"
	}
}
