package types

import "errors"

// Error classes. Packages wrap these with fmt.Errorf("...: %w", ...) so the
// command layer can decide how a failure is reported.
var (
	// ErrUsage marks bad invocation or configuration, such as a missing store.
	ErrUsage = errors.New("usage error")

	// ErrFormat marks a malformed snapshot document.
	ErrFormat = errors.New("format error")

	// ErrIO marks a filesystem or network read/write failure.
	ErrIO = errors.New("i/o error")

	// ErrEngine marks a failure reported by the storage engine.
	ErrEngine = errors.New("engine error")

	// ErrValidation marks a user-supplied value that failed validation.
	ErrValidation = errors.New("validation error")
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitUsage      = 2
	ExitFormat     = 3
	ExitValidation = 4
)

// ExitCode maps an error to the process exit code for its class.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUsage):
		return ExitUsage
	case errors.Is(err, ErrFormat):
		return ExitFormat
	case errors.Is(err, ErrValidation):
		return ExitValidation
	default:
		return ExitFailure
	}
}
