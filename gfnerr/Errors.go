// Package gfnerr implements the error taxonomy shared by the containers,
// samplers and environments of this module.
package gfnerr

import (
	"github.com/pkg/errors"
)

// Error implements an error raised by an operation. Op names the
// operation and Err is the underlying sentinel, possibly wrapped with
// more context.
type Error struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

var (
	// ErrShape reports a tensor whose trailing dimensions do not match
	// the declared element shape
	ErrShape = errors.New("shape mismatch")

	// ErrUnsupported reports a structural operation invoked on an
	// unsupported batch rank or configuration
	ErrUnsupported = errors.New("unsupported operation")

	// ErrInvalidPolicy reports a policy which assigns zero probability
	// to every legal action at a live state
	ErrInvalidPolicy = errors.New("invalid policy")

	// ErrNonValidAction reports an illegal state/action pair passed to
	// an environment
	ErrNonValidAction = errors.New("non-valid action")

	// ErrDeviceMismatch reports tensors placed on different devices
	ErrDeviceMismatch = errors.New("device mismatch")

	// ErrNaN reports a NaN loss
	ErrNaN = errors.New("NaN loss")

	// ErrInconsistent reports that two computations which must agree
	// did not. It signals a bug and is never recoverable.
	ErrInconsistent = errors.New("consistency check failed")
)

// New returns a new *Error for the operation op wrapping err with the
// formatted message
func New(op string, err error, format string, args ...interface{}) error {
	return &Error{
		Op:  op,
		Err: errors.Wrapf(err, format, args...),
	}
}

// Shape returns a new shape error for operation op
func Shape(op string, want, have interface{}) error {
	return New(op, ErrShape, "\n\twant(%v)\n\thave(%v)", want, have)
}

// IsShape returns whether err reports a shape mismatch
func IsShape(err error) bool {
	return errors.Is(err, ErrShape)
}

// IsUnsupported returns whether err reports an unsupported operation
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

// IsInvalidPolicy returns whether err reports an invalid policy
func IsInvalidPolicy(err error) bool {
	return errors.Is(err, ErrInvalidPolicy)
}

// IsNonValidAction returns whether err reports a non-valid action
func IsNonValidAction(err error) bool {
	return errors.Is(err, ErrNonValidAction)
}

// IsDeviceMismatch returns whether err reports a device mismatch
func IsDeviceMismatch(err error) bool {
	return errors.Is(err, ErrDeviceMismatch)
}

// IsNaN returns whether err reports a NaN loss
func IsNaN(err error) bool {
	return errors.Is(err, ErrNaN)
}

// IsInconsistent returns whether err reports a failed consistency check
func IsInconsistent(err error) bool {
	return errors.Is(err, ErrInconsistent)
}
