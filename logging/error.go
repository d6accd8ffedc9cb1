package logging

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// withoutStack hides the StackTrace and Format methods of a pkg/errors error from zap.
type withoutStack struct {
	err error
}

func (e withoutStack) Error() string {
	return e.err.Error()
}

func (e withoutStack) Unwrap() error {
	return e.err
}

// Error returns a zap.Field for err like zap.Error, but leaves out the stack trace
// attached by github.com/pkg/errors, which zap would otherwise log as "errorVerbose".
func Error(err error) zap.Field {
	if _, ok := err.(stackTracer); ok {
		return zap.Error(withoutStack{err})
	}

	return zap.Error(err)
}
