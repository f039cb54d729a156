package storage

import (
	"errors"
	"fmt"
)

// Kind classifies a storage failure so callers can branch on it.
type Kind int

const (
	// KindUnknown is returned by KindOf for errors not produced by this package.
	KindUnknown Kind = iota
	// KindSecurityViolation is a resolved path escaping the storage root, or a
	// removal aimed at the root or one of its ancestors.
	KindSecurityViolation
	// KindAllocationFailure is an identifier scan that found no gap. It means
	// the stored identifiers are duplicated or corrupted.
	KindAllocationFailure
	// KindIOFailure is a failed filesystem call.
	KindIOFailure
	// KindDaoFailure is a failed database call.
	KindDaoFailure
	// KindInvalid is malformed input, e.g. a text location without repository.
	KindInvalid
	// KindNotFound is a missing row.
	KindNotFound
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrSecurityViolation = errors.New("security violation")
	ErrAllocationFailure = errors.New("allocation failure")
	ErrIOFailure         = errors.New("io failure")
	ErrDaoFailure        = errors.New("dao failure")
	ErrInvalid           = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
)

func (k Kind) sentinel() error {
	switch k {
	case KindSecurityViolation:
		return ErrSecurityViolation
	case KindAllocationFailure:
		return ErrAllocationFailure
	case KindIOFailure:
		return ErrIOFailure
	case KindDaoFailure:
		return ErrDaoFailure
	case KindInvalid:
		return ErrInvalid
	case KindNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

func (k Kind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return "unknown"
}

// Error is the error type returned by the storage packages.
type Error struct {
	Kind Kind
	// Op is the operation that failed, e.g. "remove dir".
	Op string
	// Path is the filesystem path or table involved, if any.
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the originating cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// NewError returns an *Error of the given kind.
func NewError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func securityViolation(op, path, format string, args ...any) error {
	return &Error{Kind: KindSecurityViolation, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

func ioFailure(op, path string, err error) error {
	return &Error{Kind: KindIOFailure, Op: op, Path: path, Err: err}
}

func invalid(op, format string, args ...any) error {
	return &Error{Kind: KindInvalid, Op: op, Err: fmt.Errorf(format, args...)}
}
