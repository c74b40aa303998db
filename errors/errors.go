package errors

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

var (
	// ErrUnauthorized is used whenever a signature or a key does not
	// authorize the requested action.
	ErrUnauthorized = Register(2, "unauthorized")

	// ErrNotFound is used when a requested operation cannot be completed
	// due to missing data.
	ErrNotFound = Register(3, "not found")

	// ErrMsg is returned whenever a message is invalid and cannot be
	// handled.
	ErrMsg = Register(4, "invalid message")

	// ErrModel is returned whenever a stored entity is invalid and cannot
	// be used.
	ErrModel = Register(5, "invalid model")

	// ErrDuplicate is returned when there is a record already that has the
	// same unique key.
	ErrDuplicate = Register(6, "duplicate")

	// ErrHuman is returned when application reaches a code path which
	// should not ever be reached if the code was written as expected.
	ErrHuman = Register(7, "coding error")

	// ErrEmpty is returned when a value fails a not empty assertion.
	ErrEmpty = Register(9, "value is empty")

	// ErrState is returned when an object is in invalid state, for example
	// a channel sequence that does not match.
	ErrState = Register(10, "invalid state")

	// ErrType is returned whenever the type is not what was expected.
	ErrType = Register(11, "invalid type")

	// ErrAmount is returned when an amount is insufficient or invalid.
	ErrAmount = Register(12, "invalid amount")

	// ErrInput stands for general input problems indication.
	ErrInput = Register(14, "invalid input")

	// ErrOverflow is returned when a computation cannot be completed
	// because the result value exceeds the type.
	ErrOverflow = Register(16, "an operation cannot be completed due to value overflow")

	// ErrDatabase is returned when the underlying storage fails.
	ErrDatabase = Register(17, "database")

	// ErrNetwork is returned when a peer or a remote chain cannot be
	// reached.
	ErrNetwork = Register(18, "network")

	// ErrTimeout is returned when an operation did not complete in time.
	ErrTimeout = Register(19, "timeout")

	// ErrMerge is returned when two change operations belong to different
	// families and cannot be composed.
	ErrMerge = Register(20, "incompatible merge")

	// ErrDecode is returned when wire bytes cannot be decoded.
	ErrDecode = Register(21, "decode")

	// ErrMismatch is returned when a counterparty proposal differs from
	// what this side derives on its own.
	ErrMismatch = Register(22, "mismatch")

	// ErrMissingField is returned when a required sub-message is absent.
	ErrMissingField = Register(23, "missing field")

	// ErrExecution is returned when a script cannot be executed.
	ErrExecution = Register(24, "execution")

	// ErrPanic is only set when we recover from a panic, so we know to
	// redact potentially sensitive system info.
	ErrPanic = Register(111222, "panic")
)

// Register returns an error instance that should be used as the base for
// creating error instances during runtime.
//
// This function ensures that no error code is used twice. Attempt to reuse an
// error code results in panic.
//
// Use this function only during a program startup phase.
func Register(code uint32, description string) *Error {
	if e, ok := usedCodes[code]; ok {
		panic(fmt.Sprintf("error with code %d is already registered: %q", code, e.desc))
	}
	err := &Error{
		code: code,
		desc: description,
	}
	usedCodes[err.code] = err
	return err
}

// usedCodes is keeping track of used codes to ensure their uniqueness.
var usedCodes = map[uint32]*Error{
	// Code 1 is reserved for errors that do not come from this package.
	1: {code: 1, desc: internalABCILog},
}

// Error represents a root error.
//
// Each instance created during the runtime should wrap one of the declared
// root errors. This allows error tests and returning all errors to the
// client in a safe manner.
type Error struct {
	code uint32
	desc string
}

func (e Error) Error() string {
	return e.desc
}

func (e Error) ABCICode() uint32 {
	return e.code
}

// New returns a new error. Returned instance is having the root cause set to
// this error. Below two lines are equal
//
//	e.New("my description")
//	Wrap(e, "my description")
func (e *Error) New(description string) error {
	return Wrap(e, description)
}

// Newf is basically New with formatting capabilities.
func (e *Error) Newf(description string, args ...interface{}) error {
	return e.New(fmt.Sprintf(description, args...))
}

// Is check if given error instance is of a given kind. This involves
// unwrapping given error using the Cause method if available.
func (kind *Error) Is(err error) bool {
	// Reflect usage is necessary to correctly compare with
	// a nil implementation of an error.
	if kind == nil {
		if err == nil {
			return true
		}
		return reflect.ValueOf(err).IsNil()
	}

	for {
		if err == kind {
			return true
		}
		c, ok := err.(causer)
		if !ok {
			return false
		}
		err = c.Cause()
	}
}

// Wrap extends given error with an additional information.
//
// If the wrapped error does not provide ABCICode method (ie. stdlib errors),
// it will be labeled as internal error.
//
// If err is nil, this returns nil, avoiding the need for an if statement when
// wrapping a error returned at the end of a function.
func Wrap(err error, description string) error {
	if err == nil {
		return nil
	}

	// Attach the stack trace once, at the most inner wrap.
	if stackTrace(err) == nil {
		err = errors.WithStack(err)
	}

	return &wrappedError{
		parent: err,
		msg:    description,
	}
}

// Wrapf extends given error with an additional information.
//
// This function works like Wrap function with additional functionality of
// formatting the input as specified.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

type wrappedError struct {
	// This error layer description.
	msg string
	// The underlying error that triggered this one.
	parent error
}

func (e *wrappedError) Error() string {
	return fmt.Sprintf("%s: %s", e.msg, e.parent.Error())
}

func (e *wrappedError) Cause() error {
	return e.parent
}

// Recover captures a panic and stop its propagation. If panic happens it is
// transformed into a ErrPanic instance and assigned to given error. Call this
// function using defer in order to work as expected.
func Recover(err *error) {
	if r := recover(); r != nil {
		*err = Wrapf(ErrPanic, "%v", r)
	}
}

// WithType is a helper to augment an error with a corresponding type message.
func WithType(err error, obj interface{}) error {
	return Wrap(err, fmt.Sprintf("%T", obj))
}

// causer is an interface implemented by an error that supports wrapping. Use
// it to test if an error wraps another error instance.
type causer interface {
	Cause() error
}
