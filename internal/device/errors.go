package device

import (
	"context"
	"errors"
	"strings"
)

// Error kinds shared by every session lifecycle component.
//
// Components return *Error values whose Kind is one of these sentinels,
// so callers classify failures with errors.Is():
//
//	if errors.Is(err, device.ErrOffline) {
//	    // handle unreachable device
//	}
var (
	// ErrValidation is returned for malformed or missing input.
	ErrValidation = errors.New("device: validation failed")

	// ErrNotFound is returned when a device ID does not exist.
	ErrNotFound = errors.New("device: not found")

	// ErrConflict is returned when a transition is invalid from the current state.
	ErrConflict = errors.New("device: state conflict")

	// ErrOffline is returned when a device is known but unreachable.
	ErrOffline = errors.New("device: offline")

	// ErrNotPaired is returned when a device is reachable but has not been paired.
	ErrNotPaired = errors.New("device: not paired")

	// ErrInvalidCredential is returned when a pairing secret does not match.
	ErrInvalidCredential = errors.New("device: invalid credential")

	// ErrTimeout is returned when an operation exceeds its allotted time.
	ErrTimeout = errors.New("device: timed out")

	// ErrUpstream is returned when a transport or backing service fails.
	ErrUpstream = errors.New("device: upstream failure")
)

// kinds lists the taxonomy in classification order.
var kinds = []error{
	ErrValidation,
	ErrNotFound,
	ErrConflict,
	ErrOffline,
	ErrNotPaired,
	ErrInvalidCredential,
	ErrTimeout,
	ErrUpstream,
}

// Error carries an error kind plus structured context. It never carries a
// user-facing sentence; boundaries format messages from the fields.
type Error struct {
	// Kind is one of the package sentinels (ErrNotFound, ErrOffline, ...).
	Kind error

	// Op names the operation that failed (e.g. "pair", "dispatch").
	Op string

	// DeviceID is the device the operation targeted, if any.
	DeviceID string

	// Field is the offending input field for validation failures.
	Field string

	// Detail is a short machine-oriented description (e.g. "must be 4 digits").
	Detail string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.DeviceID != "" {
		b.WriteString(" (device ")
		b.WriteString(e.DeviceID)
		b.WriteString(")")
	}
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the taxonomy sentinel carried by err, or nil if err is
// not a classified session error.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// NewValidationError reports a malformed input field.
func NewValidationError(op, field, detail string) *Error {
	return &Error{Kind: ErrValidation, Op: op, Field: field, Detail: detail}
}

// NewNotFoundError reports an unknown device ID.
func NewNotFoundError(op, id string) *Error {
	return &Error{Kind: ErrNotFound, Op: op, DeviceID: id}
}

// NewConflictError reports an invalid state transition.
func NewConflictError(op, id, detail string) *Error {
	return &Error{Kind: ErrConflict, Op: op, DeviceID: id, Detail: detail}
}

// NewOfflineError reports an unreachable device.
func NewOfflineError(op, id string) *Error {
	return &Error{Kind: ErrOffline, Op: op, DeviceID: id}
}

// NewNotPairedError reports a device that has not completed pairing.
func NewNotPairedError(op, id string) *Error {
	return &Error{Kind: ErrNotPaired, Op: op, DeviceID: id}
}

// NewInvalidCredentialError reports a pairing secret mismatch.
func NewInvalidCredentialError(op, id string) *Error {
	return &Error{Kind: ErrInvalidCredential, Op: op, DeviceID: id}
}

// NewTimeoutError reports an operation that ran out of time.
func NewTimeoutError(op, id string, cause error) *Error {
	return &Error{Kind: ErrTimeout, Op: op, DeviceID: id, Err: cause}
}

// NewUpstreamError reports a transport or storage failure.
func NewUpstreamError(op, id string, cause error) *Error {
	return &Error{Kind: ErrUpstream, Op: op, DeviceID: id, Err: cause}
}

// NewContextError classifies a context failure seen while waiting on a
// lock or a scan. A deadline is a TimeoutError; cancellation is an
// UpstreamError. Both wrap cause, so errors.Is(err, context.Canceled)
// still holds.
func NewContextError(op, id string, cause error) *Error {
	if errors.Is(cause, context.DeadlineExceeded) {
		return NewTimeoutError(op, id, cause)
	}
	return NewUpstreamError(op, id, cause)
}
