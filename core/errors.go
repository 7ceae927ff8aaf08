package core

import (
	"errors"
	"fmt"
)

// Error kinds shared by every package of the object store. Callers test for
// them with errors.Is; the concrete error usually wraps one of these with
// object context (see ObjectError).
var (
	// ErrFormat is returned when the token stream or a structural index is malformed.
	ErrFormat = errors.New("malformed document structure")

	// ErrRange is returned when an object number lies outside every known bound.
	ErrRange = errors.New("object number out of range")

	// ErrNotFound is returned when an object number is free or was never defined.
	ErrNotFound = errors.New("object not found")

	// ErrRecursiveReference is returned when an object is re-entered while it is being loaded.
	ErrRecursiveReference = errors.New("recursive object reference")

	// ErrInconsistentContainer is returned when an object stream does not hold a claimed member.
	ErrInconsistentContainer = errors.New("inconsistent object stream")

	// ErrSecurityLimit is returned when input exceeds a size or nesting limit.
	ErrSecurityLimit = errors.New("security limit exceeded")

	// ErrIO wraps failures of the underlying byte stream.
	ErrIO = errors.New("i/o failure")

	// ErrValidationRejected marks a change set refused by a field-locking policy.
	ErrValidationRejected = errors.New("change rejected by lock policy")

	// ErrUnsupported is returned for disallowed option combinations.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrSignatureOverflow is returned when a signature does not fit its placeholder.
	ErrSignatureOverflow = errors.New("signature larger than reserved space")
)

// Nesting and size limits applied while parsing untrusted input.
const (
	MaxNestingDepth        = 512
	MaxObjectStreamMembers = 1 << 20
	MaxGeneration          = 65535
)

// ObjectError annotates an error with the object it concerns.
type ObjectError struct {
	Num int
	Gen int
	Op  string
	Err error
}

func (e *ObjectError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("object %d %d: %v", e.Num, e.Gen, e.Err)
	}
	return fmt.Sprintf("%s object %d %d: %v", e.Op, e.Num, e.Gen, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// objErrf builds an ObjectError whose message wraps kind.
func objErrf(num, gen int, op string, kind error, format string, args ...any) error {
	return &ObjectError{
		Num: num,
		Gen: gen,
		Op:  op,
		Err: fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind),
	}
}

// NewObjectError is the exported form of objErrf for sibling packages.
func NewObjectError(num, gen int, op string, kind error, format string, args ...any) error {
	return objErrf(num, gen, op, kind, format, args...)
}

// IOError wraps err so that it matches ErrIO while keeping the original cause.
func IOError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrIO, err)
}

// FormatErrorf returns an error matching ErrFormat.
func FormatErrorf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrFormat)
}
