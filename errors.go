// errors.go
package benpak

import (
	"errors"

	"github.com/arc-language/benpak/pkg/core"
)

var (
	// ErrPackageNotFound indicates the package id is not in the catalog
	ErrPackageNotFound = errors.New("package not found")

	// ErrInvalidPackage indicates the package specification is invalid
	ErrInvalidPackage = errors.New("invalid package")
)

// Failure classes, matched with errors.Is
var (
	ErrNetwork            = core.ErrNetwork
	ErrIncompleteTransfer = core.ErrIncompleteTransfer
	ErrCorruptArchive     = core.ErrCorruptArchive
	ErrUnsupportedFormat  = core.ErrUnsupportedFormat
	ErrFilesystem         = core.ErrFilesystem
	ErrConflict           = core.ErrConflict
	ErrConfiguration      = core.ErrConfiguration
	ErrCancelled          = core.ErrCancelled
)

// Error is the error type returned by every operation
type Error = core.Error

// Kind classifies an Error
type Kind = core.Kind

// KindOf extracts the failure class from an error chain
func KindOf(err error) Kind {
	return core.KindOf(err)
}
