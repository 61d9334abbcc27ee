package flowfilter

import (
	"fmt"

	"github.com/pkg/errors"
)

// BadRequestError is returned when a flow filter, flow condition or field
// action is configured with an invalid value.
type BadRequestError struct {
	msg string
}

func (e *BadRequestError) Error() string {
	return e.msg
}

func badRequest(format string, args ...interface{}) error {
	return &BadRequestError{msg: fmt.Sprintf(format, args...)}
}

// BadRequestf returns a BadRequestError for configuration checks made
// outside this package.
func BadRequestf(format string, args ...interface{}) error {
	return badRequest(format, args...)
}

// IsBadRequest returns true if the cause of err is a BadRequestError.
func IsBadRequest(err error) bool {
	if err == nil {
		return false
	}
	_, ok := errors.Cause(err).(*BadRequestError)
	return ok
}

var (
	errNullAction    = badRequest("flow action cannot be null")
	errNullFilter    = badRequest("flow filter cannot be null")
	errNullCondition = badRequest("flow condition cannot be null")
)
