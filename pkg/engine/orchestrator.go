// Package engine coordinates install jobs: resolution, download, extraction
// and the atomic swap into the install directory.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/arc-language/benpak/pkg/core"
	"github.com/arc-language/benpak/pkg/fetch"
	"github.com/arc-language/benpak/pkg/resolve"
	"github.com/rs/zerolog"
	"go.trai.ch/zerr"
	"golang.org/x/sync/semaphore"
)

const (
	stagingSuffix = ".partial"
	backupSuffix  = ".old"
)

// Config wires an Orchestrator. Store, Fetcher, Extractor, Resolver and
// InstallDir are required.
type Config struct {
	Store     core.Store
	Fetcher   core.Fetcher
	Extractor core.Extractor
	Resolver  core.Resolver
	Launcher  core.Launcher // optional

	InstallDir  string
	DownloadDir string // defaults to a hidden directory under InstallDir

	MaxConcurrentDownloads int
	Logger                 zerolog.Logger
	Now                    func() time.Time
}

// Orchestrator runs install jobs. At most one job per package id is in
// flight; distinct packages proceed in parallel.
type Orchestrator struct {
	store     core.Store
	fetcher   core.Fetcher
	extractor core.Extractor
	resolver  core.Resolver
	launcher  core.Launcher

	installDir  string
	downloadDir string
	downloads   *semaphore.Weighted
	parallel    int
	logger      zerolog.Logger
	now         func() time.Time

	mu       sync.Mutex
	inflight map[string]*Job // nil value marks an uninstall in progress
	jobs     []*Job          // submitted since the last Wait
	wg       sync.WaitGroup
}

// New validates cfg and creates an Orchestrator
func New(cfg *Config) (*Orchestrator, error) {
	if cfg == nil {
		return nil, core.E(core.KindConfiguration, "creating engine", errors.New("missing config"))
	}
	switch {
	case cfg.Store == nil:
		return nil, core.E(core.KindConfiguration, "creating engine", errors.New("missing store"))
	case cfg.Fetcher == nil:
		return nil, core.E(core.KindConfiguration, "creating engine", errors.New("missing fetcher"))
	case cfg.Extractor == nil:
		return nil, core.E(core.KindConfiguration, "creating engine", errors.New("missing extractor"))
	case cfg.Resolver == nil:
		return nil, core.E(core.KindConfiguration, "creating engine", errors.New("missing resolver"))
	case cfg.InstallDir == "":
		return nil, core.E(core.KindConfiguration, "creating engine", errors.New("missing install directory"))
	}

	parallel := cfg.MaxConcurrentDownloads
	if parallel <= 0 {
		parallel = core.DefaultMaxConcurrentDownloads
	}
	downloadDir := cfg.DownloadDir
	if downloadDir == "" {
		downloadDir = filepath.Join(cfg.InstallDir, ".downloads")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Orchestrator{
		store:       cfg.Store,
		fetcher:     cfg.Fetcher,
		extractor:   cfg.Extractor,
		resolver:    cfg.Resolver,
		launcher:    cfg.Launcher,
		installDir:  cfg.InstallDir,
		downloadDir: downloadDir,
		downloads:   semaphore.NewWeighted(int64(parallel)),
		parallel:    parallel,
		logger:      cfg.Logger.With().Str("component", "engine").Logger(),
		now:         now,
		inflight:    make(map[string]*Job),
	}, nil
}

// InstallPath is the tree location for a package
func (o *Orchestrator) InstallPath(packageID string) string {
	return filepath.Join(o.installDir, packageID)
}

func (o *Orchestrator) stagingPath(packageID string) string {
	return filepath.Join(o.installDir, "."+packageID+stagingSuffix)
}

func (o *Orchestrator) backupPath(packageID string) string {
	return filepath.Join(o.installDir, "."+packageID+backupSuffix)
}

func (o *Orchestrator) artifactPath(packageID string) string {
	return filepath.Join(o.downloadDir, packageID+".download")
}

// Submit starts installing desc. A second submission for a package that
// already has a job in flight fails with Conflict.
func (o *Orchestrator) Submit(ctx context.Context, desc *core.Descriptor) (*Job, error) {
	if desc == nil {
		return nil, core.E(core.KindConfiguration, "submit", errors.New("missing descriptor"))
	}
	if err := desc.Validate(); err != nil {
		return nil, core.WithPackage(err, desc.ID, core.KindConfiguration)
	}

	o.mu.Lock()
	if _, busy := o.inflight[desc.ID]; busy {
		o.mu.Unlock()
		return nil, &core.Error{Kind: core.KindConflict, Op: "submit", Package: desc.ID,
			Err: errors.New("an operation for this package is already in progress")}
	}
	job := newJob(ctx, desc)
	o.inflight[desc.ID] = job
	o.jobs = append(o.jobs, job)
	o.wg.Add(1)
	o.mu.Unlock()

	job.transition(StatePending)
	go o.run(job)
	return job, nil
}

// Wait blocks until every submitted job has finished, then discards the
// event streams of jobs nobody subscribed to
func (o *Orchestrator) Wait() {
	o.wg.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	pending := o.jobs[:0]
	for _, j := range o.jobs {
		select {
		case <-j.done:
			j.release()
		default:
			pending = append(pending, j)
		}
	}
	clear(o.jobs[len(pending):])
	o.jobs = pending
}

// Active returns the ids of packages with a job in flight
func (o *Orchestrator) Active() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.inflight))
	for id, j := range o.inflight {
		if j != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func (o *Orchestrator) release(packageID string) {
	o.mu.Lock()
	delete(o.inflight, packageID)
	o.mu.Unlock()
}

func (o *Orchestrator) run(j *Job) {
	defer o.wg.Done()

	log := o.logger.With().Str("package", j.desc.ID).Logger()
	res, err := o.install(j, log)

	// The guard is lifted before the terminal event so that a caller reacting
	// to it can resubmit immediately.
	o.release(j.desc.ID)

	if err != nil {
		if j.ctx.Err() != nil && core.KindOf(err) != core.KindCancelled {
			err = &core.Error{Kind: core.KindCancelled, Op: "install", Package: j.desc.ID, Err: err}
		}
		err = core.WithPackage(err, j.desc.ID, core.KindUnknown)
		kind := core.KindOf(err)
		log.Error().Err(err).Str("kind", kind.String()).Msg("install failed")
		j.complete(Event{
			PackageID: j.desc.ID,
			State:     StateFailed,
			Kind:      kind,
			Detail:    err.Error(),
			Err:       err,
		}, nil, err)
		return
	}

	log.Info().Str("version", res.Version).Bool("noop", res.NoOp).Msg("install succeeded")
	j.complete(Event{PackageID: j.desc.ID, State: StateSucceeded, Result: res}, res, nil)
}

func (o *Orchestrator) install(j *Job, log zerolog.Logger) (*Result, error) {
	ctx := j.ctx
	desc := j.desc

	resolution, err := o.resolver.Resolve(ctx, desc)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("version", resolution.Version).Str("url", resolution.URL).Msg("resolved")

	prev, err := o.store.Get(desc.ID)
	if err != nil {
		return nil, err
	}
	if res := o.current(prev, resolution); res != nil {
		log.Info().Str("version", prev.InstalledVersion).Msg("already installed")
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	j.transition(StateDownloading)
	artifact, err := o.download(ctx, j, resolution.URL)
	defer o.removeArtifact(desc.ID, log)
	if err != nil {
		return nil, err
	}
	if pinned(desc, resolution) {
		if err := fetch.Verify(artifact, desc.SHA256); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j.transition(StateExtracting)
	staging := o.stagingPath(desc.ID)
	exe, err := o.extractor.Extract(ctx, artifact.Path, staging, desc)
	if err != nil {
		o.removeTree(staging, log)
		return nil, err
	}
	o.removeArtifact(desc.ID, log)

	if err := ctx.Err(); err != nil {
		o.removeTree(staging, log)
		return nil, err
	}
	j.transition(StateFinalizing)
	return o.finalize(desc, resolution, staging, exe, prev, log)
}

// pinned reports whether the descriptor checksum applies to the resolved artifact
func pinned(desc *core.Descriptor, resolution *core.Resolution) bool {
	if desc.SHA256 == "" {
		return false
	}
	if desc.Version == "" {
		return resolution.Version == core.VersionUnknown
	}
	return resolution.Version == desc.Version
}

// current returns a no-op result when prev already holds the resolved version
func (o *Orchestrator) current(prev *core.InstallRecord, resolution *core.Resolution) *Result {
	if prev == nil || !resolve.Known(resolution.Version) || prev.InstalledVersion != resolution.Version {
		return nil
	}
	if _, err := os.Stat(prev.InstallPath); err != nil || !describes(prev) {
		return nil
	}
	return &Result{
		PackageID:   prev.PackageID,
		Version:     prev.InstalledVersion,
		InstallPath: prev.InstallPath,
		Executable:  prev.Executable,
		Launcher:    prev.Launcher,
		InstalledAt: prev.InstalledAt,
		NoOp:        true,
	}
}

func (o *Orchestrator) download(ctx context.Context, j *Job, url string) (*core.Artifact, error) {
	if err := o.downloads.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.downloads.Release(1)

	if err := os.MkdirAll(o.downloadDir, 0o755); err != nil {
		return nil, core.E(core.KindFilesystem, "creating download directory",
			zerr.With(zerr.Wrap(err, "mkdir failed"), "path", o.downloadDir))
	}
	return o.fetcher.Fetch(ctx, url, o.artifactPath(j.desc.ID), j.reportDownload)
}

// finalize swaps the staged tree into place and commits the record. The old
// tree is set aside until the record is durable so a failed commit can
// restore it.
func (o *Orchestrator) finalize(desc *core.Descriptor, resolution *core.Resolution, staging, exe string, prev *core.InstallRecord, log zerolog.Logger) (*Result, error) {
	installPath := o.InstallPath(desc.ID)
	backup := o.backupPath(desc.ID)

	rel, err := filepath.Rel(staging, exe)
	if err != nil || filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		o.removeTree(staging, log)
		return nil, core.E(core.KindConfiguration, "locating executable",
			fmt.Errorf("executable %s is outside the installed tree", exe))
	}

	if err := writeVersionMarker(staging, resolution.Version); err != nil {
		o.removeTree(staging, log)
		return nil, err
	}

	if err := os.RemoveAll(backup); err != nil {
		o.removeTree(staging, log)
		return nil, core.E(core.KindFilesystem, "clearing backup", zerr.With(err, "path", backup))
	}
	hadOld := false
	if _, err := os.Lstat(installPath); err == nil {
		if err := os.Rename(installPath, backup); err != nil {
			o.removeTree(staging, log)
			return nil, core.E(core.KindFilesystem, "moving previous install aside", zerr.With(err, "path", installPath))
		}
		hadOld = true
	}

	restore := func() {
		o.removeTree(installPath, log)
		if hadOld {
			if err := os.Rename(backup, installPath); err != nil {
				log.Error().Err(err).Str("path", installPath).Msg("failed to restore previous install")
			}
		}
	}

	if err := os.Rename(staging, installPath); err != nil {
		o.removeTree(staging, log)
		restore()
		return nil, core.E(core.KindFilesystem, "activating install", zerr.With(err, "path", installPath))
	}

	res := &Result{
		PackageID:   desc.ID,
		Version:     resolution.Version,
		InstallPath: installPath,
		Executable:  filepath.Join(installPath, rel),
		InstalledAt: o.now().UTC(),
	}

	if o.launcher != nil {
		id, err := o.launcher.Create(desc.ID, res.Executable, desc)
		if err != nil {
			log.Warn().Err(err).Msg("launcher creation failed")
			res.Warnings = append(res.Warnings, err.Error())
		}
		res.Launcher = id
	}

	record := core.InstallRecord{
		PackageID:        desc.ID,
		InstalledVersion: res.Version,
		InstallPath:      res.InstallPath,
		InstalledAt:      res.InstalledAt,
		Executable:       res.Executable,
		Launcher:         res.Launcher,
	}
	if err := o.store.Put(record); err != nil {
		restore()
		o.restoreLauncher(desc, prev, log)
		return nil, err
	}

	if hadOld {
		o.removeTree(backup, log)
	}
	return res, nil
}

// restoreLauncher points the launcher back at the previous install, or
// removes it when there was none
func (o *Orchestrator) restoreLauncher(desc *core.Descriptor, prev *core.InstallRecord, log zerolog.Logger) {
	if o.launcher == nil {
		return
	}
	var err error
	if prev != nil && prev.Executable != "" {
		_, err = o.launcher.Create(desc.ID, prev.Executable, desc)
	} else {
		err = o.launcher.Remove(desc.ID)
	}
	if err != nil {
		log.Warn().Err(err).Msg("failed to restore launcher")
	}
}

func (o *Orchestrator) removeArtifact(packageID string, log zerolog.Logger) {
	path := o.artifactPath(packageID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("failed to remove artifact")
	}
}

func (o *Orchestrator) removeTree(path string, log zerolog.Logger) {
	if err := os.RemoveAll(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("cleanup failed")
	}
}
