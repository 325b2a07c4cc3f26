package wrapper

import (
	"errors"
	"fmt"
)

// PanicError indicates the user handler panicked. The deferred recover()
// around each Wrap call's handler goroutine converts it into a synthesized
// `fail` on the wrapped lifecycle context, so any bug in the handler
// still routes through finalization (spec.md §4.5.1 step 2, §8 S5).
//
// Adapted from the teacher's internal/application/worker/errors.go
// PanicError, which served the same "don't lose a panic, route it
// through normal completion handling" role for its job workers.
type PanicError struct {
	Value      any
	StackTrace string
}

func (e PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// IsPanic reports whether err is (or wraps) a PanicError.
func IsPanic(err error) bool {
	var panicErr PanicError
	return errors.As(err, &panicErr)
}
