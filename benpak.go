// benpak.go
package benpak

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/arc-language/benpak/pkg/catalog"
	"github.com/arc-language/benpak/pkg/core"
	"github.com/arc-language/benpak/pkg/engine"
	"github.com/arc-language/benpak/pkg/extract"
	"github.com/arc-language/benpak/pkg/fetch"
	"github.com/arc-language/benpak/pkg/index"
	"github.com/arc-language/benpak/pkg/launcher"
	"github.com/arc-language/benpak/pkg/platform"
	"github.com/arc-language/benpak/pkg/resolve"
	"github.com/arc-language/benpak/pkg/store"
	"github.com/rs/zerolog"
)

// Version of benpak
const Version = "0.1.0"

// Re-export core types for convenience
type (
	Config        = core.Config
	Descriptor    = core.Descriptor
	InstallRecord = core.InstallRecord
	Job           = engine.Job
	Event         = engine.Event
	Result        = engine.Result
	Update        = engine.Update
	State         = engine.State
	SyncReport    = index.Report
)

// Re-export job states
const (
	StatePending     = engine.StatePending
	StateDownloading = engine.StateDownloading
	StateExtracting  = engine.StateExtracting
	StateFinalizing  = engine.StateFinalizing
	StateSucceeded   = engine.StateSucceeded
	StateFailed      = engine.StateFailed
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return core.DefaultConfig()
}

// Options tunes a Manager beyond what Config covers
type Options struct {
	Logger      zerolog.Logger
	Platform    *platform.Platform
	GitHubAPI   string
	GitHubToken string // defaults to $GITHUB_TOKEN

	// Store replaces the on-disk version store, mainly for tests
	Store core.Store

	// SkipReconcile leaves interrupted state alone at startup
	SkipReconcile bool
}

// PackageInfo combines a descriptor with its install record
type PackageInfo struct {
	Descriptor *Descriptor
	Record     *InstallRecord // nil when not installed
}

// Installed reports whether the package has a record
func (p *PackageInfo) Installed() bool {
	return p.Record != nil
}

// Manager wires the catalog, version store and install engine together
type Manager struct {
	config     *Config
	store      core.Store
	engine     *engine.Orchestrator
	extractors *extract.Registry
	logger     zerolog.Logger

	mu      sync.RWMutex
	catalog *catalog.Catalog
}

// NewManager loads the catalog, opens the version store and repairs any
// state left behind by an interrupted run
func NewManager(ctx context.Context, config *Config, opts *Options) (*Manager, error) {
	if config == nil {
		config = core.DefaultConfig()
	}
	if opts == nil {
		opts = &Options{Logger: zerolog.Nop()}
	}
	logger := opts.Logger

	st := opts.Store
	if st == nil {
		fs, err := store.Open(config.StorePath(), logger)
		if err != nil {
			return nil, err
		}
		st = fs
	}

	client := fetch.NewClient().WithUserAgent("benpak/" + Version)
	token := opts.GitHubToken
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	extractors := extract.NewRegistry(logger)
	cfg := &engine.Config{
		Store: st,
		Fetcher: fetch.New(&fetch.Config{
			Client:   client,
			Deadline: config.DownloadTimeout,
			Logger:   logger,
		}),
		Extractor: extractors,
		Resolver: resolve.New(&resolve.Config{
			Client:    client,
			Platform:  opts.Platform,
			GitHubAPI: opts.GitHubAPI,
			Token:     token,
			Logger:    logger,
		}),
		InstallDir:             config.InstallDirectory,
		DownloadDir:            config.DownloadDirectory(),
		MaxConcurrentDownloads: config.MaxConcurrentDownloads,
		Logger:                 logger,
	}
	if config.CreateDesktopShortcuts || config.CreatePathSymlinks {
		cfg.Launcher = launcher.New(&launcher.Config{
			ApplicationsDir: config.ApplicationsDirectory,
			BinDir:          config.BinDirectory,
			Entries:         config.CreateDesktopShortcuts,
			Symlinks:        config.CreatePathSymlinks,
			Logger:          logger,
		})
	}

	orch, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		config:     config,
		store:      st,
		engine:     orch,
		extractors: extractors,
		logger:     logger.With().Str("component", "manager").Logger(),
	}
	if err := m.Reload(ctx); err != nil {
		return nil, err
	}

	if !opts.SkipReconcile {
		if err := orch.Reconcile(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("failed to repair install state")
		}
	}
	return m, nil
}

// Reload re-reads descriptor directories
func (m *Manager) Reload(ctx context.Context) error {
	dirs := append([]string{}, m.config.DescriptorDirectories...)
	dirs = append(dirs, m.config.CatalogDirectory())

	c, err := catalog.Load(ctx, catalog.Options{Dirs: dirs, Logger: m.logger})
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.catalog = c
	m.mu.Unlock()
	return nil
}

// Catalog returns the current descriptor set
func (m *Manager) Catalog() *catalog.Catalog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.catalog
}

// Config returns the active configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Descriptor looks up a package by id
func (m *Manager) Descriptor(id string) (*Descriptor, error) {
	if id == "" {
		return nil, &core.Error{Kind: core.KindConfiguration, Op: "lookup", Err: ErrInvalidPackage}
	}
	desc := m.Catalog().Get(id)
	if desc == nil {
		return nil, &core.Error{Kind: core.KindConfiguration, Op: "lookup", Package: id, Err: ErrPackageNotFound}
	}
	return desc, nil
}

// Install starts installing the catalog package id
func (m *Manager) Install(ctx context.Context, id string) (*Job, error) {
	desc, err := m.Descriptor(id)
	if err != nil {
		return nil, err
	}
	return m.engine.Submit(ctx, desc)
}

// InstallDescriptor installs a package that is not in the catalog
func (m *Manager) InstallDescriptor(ctx context.Context, desc *Descriptor) (*Job, error) {
	return m.engine.Submit(ctx, desc)
}

// Uninstall removes an installed package
func (m *Manager) Uninstall(ctx context.Context, id string) error {
	return m.engine.Uninstall(ctx, id)
}

// List returns install records ordered by id
func (m *Manager) List() ([]InstallRecord, error) {
	return m.engine.List()
}

// Info describes a package from the catalog, or an installed package whose
// descriptor has since disappeared
func (m *Manager) Info(id string) (*PackageInfo, error) {
	rec, err := m.engine.Installed(id)
	if err != nil {
		return nil, err
	}
	desc := m.Catalog().Get(id)
	if desc == nil && rec == nil {
		return nil, &core.Error{Kind: core.KindConfiguration, Op: "info", Package: id, Err: ErrPackageNotFound}
	}
	return &PackageInfo{Descriptor: desc, Record: rec}, nil
}

// CheckUpdates reports installed packages with a newer resolvable version
func (m *Manager) CheckUpdates(ctx context.Context) ([]Update, error) {
	c := m.Catalog()
	return m.engine.CheckUpdates(ctx, c.Get)
}

// Sync refreshes the catalog from the configured repository and reloads it
func (m *Manager) Sync(ctx context.Context, progress io.Writer) (*SyncReport, error) {
	report, err := index.Sync(ctx, index.Options{
		RepoURL:  m.config.CatalogRepository,
		Branch:   m.config.CatalogBranch,
		DestDir:  m.config.CatalogDirectory(),
		Progress: progress,
		Logger:   m.logger,
	})
	if err != nil {
		return nil, err
	}
	return report, m.Reload(ctx)
}

// RegisterExtractor makes a custom extractor available to descriptors with
// archive "custom"
func (m *Manager) RegisterExtractor(name string, ex core.Extractor) {
	m.extractors.RegisterCustom(name, ex)
}

// Wait blocks until every submitted job has finished
func (m *Manager) Wait() {
	m.engine.Wait()
}

// Close waits for in-flight jobs
func (m *Manager) Close() error {
	m.engine.Wait()
	return nil
}

// IsNotFound reports whether err means the package is unknown
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPackageNotFound) || errors.Is(err, engine.ErrNotInstalled)
}
