// Package exitcodes defines standard exit codes for CLI operations, kept
// stable for scheduler and orchestration environments (cron, Airflow,
// Kubernetes jobs).
package exitcodes

import (
	"errors"
	"os"
	"strings"
)

const (
	// Success - migration completed without errors
	Success = 0

	// ConfigError - configuration/YAML parsing errors (non-recoverable, don't retry)
	ConfigError = 1

	// ConnectionError - source/destination database connection errors (recoverable)
	ConnectionError = 2

	// TransferError - data transfer, guard, or clear failed (non-recoverable)
	TransferError = 3

	// DriftError - post-migration comparison found schema drift
	DriftError = 4

	// Cancelled - user cancelled via SIGINT/SIGTERM (recoverable)
	Cancelled = 5

	// JournalError - run journal (SQLite) errors
	JournalError = 6

	// IOError - file I/O errors, including report writing (recoverable)
	IOError = 7
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	Err  error
	Code int
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code.
func NewExitError(err error, code int) *ExitError {
	return &ExitError{Err: err, Code: code}
}

// FromError determines the appropriate exit code for an error.
// It examines error messages and types to classify the error.
func FromError(err error) int {
	if err == nil {
		return Success
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	// os.PathError covers file not found, permission denied and friends
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return IOError
	}

	errStr := strings.ToLower(err.Error())

	if containsAny(errStr, []string{
		"no such file",
		"file not found",
		"permission denied",
		"is a directory",
		"not a directory",
	}) {
		return IOError
	}

	// Config errors (exit code 1) - parsing issues, not runtime failures
	if containsAny(errStr, []string{
		"yaml:",
		"unmarshal",
		"invalid config",
		"is required",
		"parsing config",
	}) && !containsAny(errStr, []string{"connection", "connect", "dial"}) {
		return ConfigError
	}

	// Connection errors (exit code 2)
	if containsAny(errStr, []string{
		"connection",
		"connect",
		"dial",
		"refused",
		"timeout",
		"unreachable",
		"no such host",
		"network",
		"ping",
		"login failed",
		"authentication",
	}) {
		return ConnectionError
	}

	// Cancelled (exit code 5)
	if containsAny(errStr, []string{
		"cancel",
		"interrupt",
		"context canceled",
		"context deadline",
	}) {
		return Cancelled
	}

	// Journal errors (exit code 6)
	if containsAny(errStr, []string{
		"journal",
		"run not found",
	}) {
		return JournalError
	}

	// Drift (exit code 4)
	if containsAny(errStr, []string{
		"schema drift",
		"comparison",
	}) {
		return DriftError
	}

	// Transfer errors (exit code 3)
	if containsAny(errStr, []string{
		"transfer",
		"copy",
		"insert",
		"clear",
		"constraint",
		"identity",
		"fetch",
	}) {
		return TransferError
	}

	// Default to transfer error for unknown errors
	return TransferError
}

// IsRecoverable returns true if the error is recoverable (safe to retry).
func IsRecoverable(code int) bool {
	switch code {
	case ConnectionError, Cancelled, IOError:
		return true
	default:
		return false
	}
}

// Description returns a human-readable description of the exit code.
func Description(code int) string {
	switch code {
	case Success:
		return "success"
	case ConfigError:
		return "configuration error"
	case ConnectionError:
		return "connection error (recoverable)"
	case TransferError:
		return "transfer error"
	case DriftError:
		return "schema drift detected"
	case Cancelled:
		return "cancelled (recoverable)"
	case JournalError:
		return "journal error"
	case IOError:
		return "I/O error (recoverable)"
	default:
		return "unknown error"
	}
}

func containsAny(s string, substrs []string) bool {
	for _, substr := range substrs {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
