// internal/recovery/recovery.go
package recovery

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
)

// output and exit are swapped in tests
var (
	output io.Writer = os.Stderr
	exit             = os.Exit
)

// PanicError is a recovered panic returned by Guard.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// HandlePanic should be deferred at the top of main().
// It writes the panic and stack trace to stderr and exits with code 1.
func HandlePanic() {
	if r := recover(); r != nil {
		fatal(r, debug.Stack(), nil)
	}
}

// HandlePanicFunc is HandlePanic with a cleanup hook run before exiting.
func HandlePanicFunc(cleanup func()) {
	if r := recover(); r != nil {
		fatal(r, debug.Stack(), cleanup)
	}
}

// Guard runs fn and converts a panic inside it into a *PanicError, so a
// malformed input fails one operation instead of the process.
func Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

func fatal(r any, stack []byte, cleanup func()) {
	_, _ = fmt.Fprintf(output, "FATAL: %v\n\nStack trace:\n%s\n", r, stack)
	if cleanup != nil {
		cleanup()
	}
	exit(1)
}
