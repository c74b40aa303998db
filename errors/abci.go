package errors

import (
	"errors"
	"fmt"
	"reflect"
)

const (
	// SuccessABCICode declares an ABCI response use 0 to signal that the
	// processing was successful and no error is returned.
	SuccessABCICode = 0

	// All unclassified errors that do not provide an ABCI code are clubbed
	// under an internal error code and a generic message instead of
	// detailed error string.
	internalABCICode uint32 = 1
	internalABCILog         = "internal error"
)

// ABCIInfo returns the ABCI error information as consumed by the tendermint
// client. Returned code and log message should be used as a ABCI response.
// Any error that does not provide ABCICode information is categorized as error
// with code 1.
// When not running in a debug mode all messages of errors that do not provide
// ABCICode information are replaced with generic "internal error".
func ABCIInfo(err error, debug bool) (uint32, string) {
	if errIsNil(err) {
		return SuccessABCICode, ""
	}

	code := abciCode(err)
	if debug {
		return code, fmt.Sprintf("%+v", err)
	}
	if code == internalABCICode {
		return internalABCICode, internalABCILog
	}
	return code, err.Error()
}

// FromABCI rebuilds an error from the code and log received from a chain
// application. The result is rooted in the registered error for that code,
// so that callers can use ErrXyz.Is on errors returned by a remote chain.
func FromABCI(code uint32, log string) error {
	if code == SuccessABCICode {
		return nil
	}
	root, ok := usedCodes[code]
	if !ok {
		root = usedCodes[internalABCICode]
	}
	return Wrap(root, log)
}

type coder interface {
	ABCICode() uint32
}

// abciCode test if given error contains an ABCI code and returns the value of
// it if available. This function is testing for the causer interface as well
// and unwraps the error.
func abciCode(err error) uint32 {
	if errIsNil(err) {
		return SuccessABCICode
	}

	for {
		if c, ok := err.(coder); ok {
			return c.ABCICode()
		}
		c, ok := err.(causer)
		if !ok {
			return internalABCICode
		}
		err = c.Cause()
	}
}

// errIsNil returns true if value represented by the given error is nil.
func errIsNil(err error) bool {
	if err == nil {
		return true
	}
	if val := reflect.ValueOf(err); val.Kind() == reflect.Ptr {
		return val.IsNil()
	}
	return false
}

// Redact replaces all errors that are not rooted in a registered error with
// a generic internal error instance.
//
// This is a no-operation function when running in debug mode.
func Redact(err error, debug bool) error {
	if debug {
		return err
	}
	if ErrPanic.Is(err) {
		return errors.New(internalABCILog)
	}
	if abciCode(err) == internalABCICode {
		return errors.New(internalABCILog)
	}
	return err
}
