// pkg/engine/maintenance.go
package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/arc-language/benpak/pkg/core"
	"github.com/arc-language/benpak/pkg/resolve"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// ErrNotInstalled is wrapped by Uninstall when no record exists
var ErrNotInstalled = errors.New("package is not installed")

// List returns every install record
func (o *Orchestrator) List() ([]core.InstallRecord, error) {
	return o.store.List()
}

// Installed returns the record for packageID, or nil
func (o *Orchestrator) Installed(packageID string) (*core.InstallRecord, error) {
	return o.store.Get(packageID)
}

// Uninstall removes a package. The record goes first so that it never
// outlives the tree it describes.
func (o *Orchestrator) Uninstall(ctx context.Context, packageID string) error {
	if err := ctx.Err(); err != nil {
		return &core.Error{Kind: core.KindCancelled, Op: "uninstall", Package: packageID, Err: err}
	}

	o.mu.Lock()
	if _, busy := o.inflight[packageID]; busy {
		o.mu.Unlock()
		return &core.Error{Kind: core.KindConflict, Op: "uninstall", Package: packageID,
			Err: errors.New("an operation for this package is already in progress")}
	}
	o.inflight[packageID] = nil
	o.mu.Unlock()
	defer o.release(packageID)

	log := o.logger.With().Str("package", packageID).Logger()

	rec, err := o.store.Get(packageID)
	if err != nil {
		return core.WithPackage(err, packageID, core.KindFilesystem)
	}
	if rec == nil {
		return &core.Error{Kind: core.KindConfiguration, Op: "uninstall", Package: packageID, Err: ErrNotInstalled}
	}

	if err := o.store.Remove(packageID); err != nil {
		return core.WithPackage(err, packageID, core.KindFilesystem)
	}

	if err := os.RemoveAll(rec.InstallPath); err != nil {
		return &core.Error{Kind: core.KindFilesystem, Op: "uninstall", Package: packageID,
			Err: zerr.With(zerr.Wrap(err, "removing install tree"), "path", rec.InstallPath)}
	}

	if o.launcher != nil {
		if err := o.launcher.Remove(packageID); err != nil {
			log.Warn().Err(err).Msg("failed to remove launcher")
		}
	}

	log.Info().Str("version", rec.InstalledVersion).Msg("uninstalled")
	return nil
}

// Reconcile repairs state left by an interrupted run. Records whose tree is
// gone are dropped, and staging or backup directories that belong to no
// running job are removed. A backup is restored when the live tree is missing
// or carries a version its record does not describe.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	records, err := o.store.List()
	if err != nil {
		return err
	}

	var errs []error
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return &core.Error{Kind: core.KindCancelled, Op: "reconcile", Err: err}
		}
		if o.busy(rec.PackageID) {
			continue
		}
		backup := o.backupPath(rec.PackageID)
		if _, err := os.Stat(rec.InstallPath); err == nil {
			if !describes(&rec) {
				if err := o.rollBack(&rec, backup); err != nil {
					errs = append(errs, err)
				}
			}
			continue
		}
		if rec.InstallPath == o.InstallPath(rec.PackageID) {
			if _, err := os.Stat(backup); err == nil {
				if err := os.Rename(backup, rec.InstallPath); err == nil {
					o.logger.Info().Str("package", rec.PackageID).Msg("restored interrupted upgrade")
					continue
				}
			}
		}
		o.logger.Warn().Str("package", rec.PackageID).Str("path", rec.InstallPath).
			Msg("install tree missing, dropping record")
		if err := o.store.Remove(rec.PackageID); err != nil {
			errs = append(errs, err)
		}
	}

	entries, err := os.ReadDir(o.installDir)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Join(errs...)
		}
		return core.E(core.KindFilesystem, "reading install directory", zerr.With(err, "path", o.installDir))
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, ".") {
			continue
		}
		var id string
		switch {
		case strings.HasSuffix(name, stagingSuffix):
			id = strings.TrimSuffix(strings.TrimPrefix(name, "."), stagingSuffix)
		case strings.HasSuffix(name, backupSuffix):
			id = strings.TrimSuffix(strings.TrimPrefix(name, "."), backupSuffix)
		default:
			continue
		}
		if id == "" || o.busy(id) {
			continue
		}
		path := filepath.Join(o.installDir, name)
		o.logger.Debug().Str("path", path).Msg("removing leftover directory")
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, core.E(core.KindFilesystem, "removing leftover directory", zerr.With(err, "path", path)))
		}
	}
	return errors.Join(errs...)
}

// rollBack puts the backup of an upgrade that never reached the store back
// in place of the live tree
func (o *Orchestrator) rollBack(rec *core.InstallRecord, backup string) error {
	log := o.logger.With().Str("package", rec.PackageID).Logger()
	if rec.InstallPath != o.InstallPath(rec.PackageID) {
		log.Warn().Str("path", rec.InstallPath).Msg("install tree does not match its record")
		return nil
	}
	if _, err := os.Stat(backup); err != nil {
		log.Warn().Str("marker", readVersionMarker(rec.InstallPath)).Str("version", rec.InstalledVersion).
			Msg("install tree does not match its record and no backup exists")
		return nil
	}
	if err := os.RemoveAll(rec.InstallPath); err != nil {
		return &core.Error{Kind: core.KindFilesystem, Op: "reconcile", Package: rec.PackageID,
			Err: zerr.With(zerr.Wrap(err, "removing uncommitted tree"), "path", rec.InstallPath)}
	}
	if err := os.Rename(backup, rec.InstallPath); err != nil {
		return &core.Error{Kind: core.KindFilesystem, Op: "reconcile", Package: rec.PackageID,
			Err: zerr.With(zerr.Wrap(err, "restoring backup"), "path", backup)}
	}
	log.Info().Str("version", rec.InstalledVersion).Msg("rolled back uncommitted upgrade")
	return nil
}

func (o *Orchestrator) busy(packageID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inflight[packageID]
	return ok
}

// CheckUpdates resolves the latest version of every installed package that
// lookup knows about and reports those that are newer. Packages whose
// resolution fails are reported with Err set.
func (o *Orchestrator) CheckUpdates(ctx context.Context, lookup func(packageID string) *core.Descriptor) ([]Update, error) {
	records, err := o.store.List()
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		updates []Update
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallel)

	for _, rec := range records {
		desc := lookup(rec.PackageID)
		if desc == nil {
			o.logger.Debug().Str("package", rec.PackageID).Msg("no descriptor, skipping update check")
			continue
		}
		g.Go(func() error {
			res, err := o.resolver.Resolve(gctx, desc)
			if err != nil {
				if core.KindOf(err) == core.KindCancelled {
					return err
				}
				mu.Lock()
				updates = append(updates, Update{PackageID: rec.PackageID, Installed: rec.InstalledVersion, Err: err})
				mu.Unlock()
				return nil
			}
			if !resolve.IsNewer(rec.InstalledVersion, res.Version) {
				return nil
			}
			mu.Lock()
			updates = append(updates, Update{PackageID: rec.PackageID, Installed: rec.InstalledVersion, Latest: res.Version})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(updates, func(i, j int) bool { return updates[i].PackageID < updates[j].PackageID })
	return updates, nil
}
