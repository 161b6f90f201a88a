// pkg/engine/types.go
package engine

import (
	"time"

	"github.com/arc-language/benpak/pkg/core"
)

// State is the lifecycle position of an install job
type State int

const (
	StatePending State = iota
	StateDownloading
	StateExtracting
	StateFinalizing
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateDownloading:
		return "Downloading"
	case StateExtracting:
		return "Extracting"
	case StateFinalizing:
		return "Finalizing"
	case StateSucceeded:
		return "Succeeded"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transitions follow s
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Event is one entry of a job's ordered event stream
type Event struct {
	PackageID string
	State     State
	Progress  float64 // download fraction in [0,1]

	// Set on StateFailed
	Kind   core.Kind
	Detail string
	Err    error

	// Set on StateSucceeded
	Result *Result
}

// Result describes a successful job
type Result struct {
	PackageID   string
	Version     string
	InstallPath string
	Executable  string
	Launcher    string
	InstalledAt time.Time

	// NoOp is true when the installed version was already current
	NoOp bool

	// Warnings carries best-effort failures, such as a launcher that could
	// not be written
	Warnings []string
}

// Update reports a package whose resolvable version is newer than the installed one
type Update struct {
	PackageID string
	Installed string
	Latest    string
	Err       error // set when the latest version could not be resolved
}
