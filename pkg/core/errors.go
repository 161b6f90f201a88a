// pkg/core/errors.go
package core

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an engine failure
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindIncompleteTransfer
	KindCorruptArchive
	KindUnsupportedFormat
	KindFilesystem
	KindConflict
	KindConfiguration
	KindCancelled
)

var kindNames = map[Kind]string{
	KindUnknown:            "UnknownError",
	KindNetwork:            "NetworkError",
	KindIncompleteTransfer: "IncompleteTransferError",
	KindCorruptArchive:     "CorruptArchiveError",
	KindUnsupportedFormat:  "UnsupportedFormatError",
	KindFilesystem:         "FilesystemError",
	KindConflict:           "Conflict",
	KindConfiguration:      "ConfigurationError",
	KindCancelled:          "Cancelled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var (
	// ErrNetwork matches connection, DNS and HTTP status failures
	ErrNetwork = &Error{Kind: KindNetwork}

	// ErrIncompleteTransfer matches a body shorter or longer than its declared length
	ErrIncompleteTransfer = &Error{Kind: KindIncompleteTransfer}

	// ErrCorruptArchive matches malformed or truncated archives
	ErrCorruptArchive = &Error{Kind: KindCorruptArchive}

	// ErrUnsupportedFormat matches artifacts without the expected signature
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat}

	// ErrFilesystem matches permission and disk failures
	ErrFilesystem = &Error{Kind: KindFilesystem}

	// ErrConflict matches a duplicate in-flight submission
	ErrConflict = &Error{Kind: KindConflict}

	// ErrConfiguration matches malformed descriptors and settings
	ErrConfiguration = &Error{Kind: KindConfiguration}

	// ErrCancelled matches caller cancellation and deadline expiry
	ErrCancelled = &Error{Kind: KindCancelled}
)

// Error wraps an error with its kind and context
type Error struct {
	Kind    Kind   // Failure class
	Op      string // Operation that failed
	Package string // Package id if applicable
	Err     error  // Underlying error
}

// E builds an *Error
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil && e.Op == "" {
		return e.Kind.String()
	}
	if e.Package != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Package, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" && t.Package == "" && t.Err == nil {
		return t.Kind == e.Kind
	}
	return e == t
}

// Detail is the human readable part of the error without the kind prefix
func (e *Error) Detail() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Error()
}

// KindOf extracts the failure class from an error chain
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindUnknown
}

// WithPackage stamps a package id onto an *Error that does not carry one.
// Other errors are wrapped with the given fallback kind.
func WithPackage(err error, pkg string, fallback Kind) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Package != "" {
			return err
		}
		c := *e
		c.Package = pkg
		return &c
	}
	kind := KindOf(err)
	if kind == KindUnknown {
		kind = fallback
	}
	return &Error{Kind: kind, Op: "install", Package: pkg, Err: err}
}
