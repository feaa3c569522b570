package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoNegation is returned when a comparison has no logical inverse.
var ErrNoNegation = errors.New("ir: comparison has no negation")

// InternalError reports a violated compiler invariant. It means an earlier
// pass produced a malformed graph, never that the compiled program is wrong.
// Assertions raise it with panic; Recover turns it back into an error at a
// pass boundary.
type InternalError struct {
	Message string
	Stack   []string
}

func (e *InternalError) Error() string {
	if len(e.Stack) == 0 {
		return "ir: internal error: " + e.Message
	}
	return fmt.Sprintf("ir: internal error: %s (at %s)", e.Message, strings.Join(e.Stack, " > "))
}

// Assert panics with an InternalError when cond is false.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(&InternalError{Message: fmt.Sprintf(format, args...)})
	}
}

// Fail unconditionally raises an InternalError.
func Fail(format string, args ...any) {
	panic(&InternalError{Message: fmt.Sprintf(format, args...)})
}

// Recover converts a pending InternalError panic into *err. Other panics are
// re-raised. It must be called directly by a deferred statement.
func Recover(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(*InternalError); ok {
		*err = ie
		return
	}
	panic(r)
}

// Protect runs fn and reports any InternalError it raises as an error.
func Protect(fn func() error) (err error) {
	defer Recover(&err)
	return fn()
}
