// pkg/core/interface.go
package core

import "context"

// ProgressFunc receives a fraction in [0,1]; successive calls never decrease
type ProgressFunc func(fraction float64)

// Store persists install records. Implementations serialize writers and flush
// before Put and Remove return.
type Store interface {
	// Get returns nil, nil when no record exists
	Get(packageID string) (*InstallRecord, error)

	Put(record InstallRecord) error

	Remove(packageID string) error

	// List returns records ordered by package id
	List() ([]InstallRecord, error)
}

// Fetcher downloads an artifact to a local path
type Fetcher interface {
	Fetch(ctx context.Context, url, destPath string, progress ProgressFunc) (*Artifact, error)
}

// Extractor materializes a runnable tree from an artifact and returns the
// absolute path of its launch target
type Extractor interface {
	Extract(ctx context.Context, artifactPath, targetPath string, desc *Descriptor) (string, error)
}

// Resolver turns a descriptor into a concrete version and URL
type Resolver interface {
	Resolve(ctx context.Context, desc *Descriptor) (*Resolution, error)
}

// Launcher exposes an installed executable to the desktop environment
type Launcher interface {
	// Create returns the launcher identity, typically the file it wrote
	Create(packageID, executablePath string, desc *Descriptor) (string, error)

	Remove(packageID string) error
}
