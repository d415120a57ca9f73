package hat

import (
	"errors"
	"fmt"
)

// ErrorCode enumerates HAT error categories.
type ErrorCode int

const (
	// Unknown represents an unspecified error condition.
	Unknown ErrorCode = iota
	// DimensionMismatch means an input vector's length did not equal the
	// index's configured dimensionality.
	DimensionMismatch
	// Busy means consolidate was invoked while another consolidation call
	// was already running.
	Busy
	// BadMagic means a persistence stream's header did not start with "HAT1".
	BadMagic
	// UnsupportedVersion means a persistence stream declared a format
	// version this build does not know how to read.
	UnsupportedVersion
	// Corrupt means a persistence stream failed structural reconstruction
	// (truncation, orphaned containers, cycles, or unexpected depth).
	Corrupt
	// IoError means the underlying io.Reader/io.Writer failed.
	IoError
)

// String renders the error code name for logging and error messages.
func (c ErrorCode) String() string {
	switch c {
	case DimensionMismatch:
		return "DimensionMismatch"
	case Busy:
		return "Busy"
	case BadMagic:
		return "BadMagic"
	case UnsupportedVersion:
		return "UnsupportedVersion"
	case Corrupt:
		return "Corrupt"
	case IoError:
		return "IoError"
	default:
		return "Unknown"
	}
}

// Error is a HAT-specific error carrying a code, the wrapped cause, and
// optional caller-facing detail.
type Error struct {
	Code   ErrorCode
	Err    error
	Detail any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Detail != nil {
		return fmt.Sprintf("hat: %s: %v (%v)", e.Code, e.Err, e.Detail)
	}
	return fmt.Sprintf("hat: %s: %v", e.Code, e.Err)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Sentinel causes so callers can match with errors.Is without reaching for
// ErrorCode at all.
var (
	ErrDimensionMismatch  = errors.New("vector length does not match index dimensionality")
	ErrBusy               = errors.New("consolidation already running")
	ErrBadMagic           = errors.New("persistence stream has bad magic header")
	ErrUnsupportedVersion = errors.New("persistence stream has unsupported format version")
	ErrCorrupt            = errors.New("persistence stream is structurally corrupt")
)

func newError(code ErrorCode, cause error, detail any) *Error {
	return &Error{Code: code, Err: cause, Detail: detail}
}

// NewDimensionMismatch builds the standard error for a vector of the wrong length.
func NewDimensionMismatch(got, want int) error {
	return newError(DimensionMismatch, ErrDimensionMismatch, fmt.Sprintf("got %d, want %d", got, want))
}

// NewBusy builds the standard error for a concurrent consolidation attempt.
func NewBusy() error {
	return newError(Busy, ErrBusy, nil)
}

// NewBadMagic builds the standard error for a bad persistence header.
func NewBadMagic(got [4]byte) error {
	return newError(BadMagic, ErrBadMagic, fmt.Sprintf("got %q", got[:]))
}

// NewUnsupportedVersion builds the standard error for an unknown format version.
func NewUnsupportedVersion(version uint32) error {
	return newError(UnsupportedVersion, ErrUnsupportedVersion, fmt.Sprintf("version %d", version))
}

// NewCorrupt builds the standard error for a structurally broken persistence stream.
func NewCorrupt(reason string) error {
	return newError(Corrupt, ErrCorrupt, reason)
}

// NewIoError wraps an underlying I/O failure.
func NewIoError(cause error) error {
	return newError(IoError, cause, nil)
}
