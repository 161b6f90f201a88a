// Package index keeps the local descriptor directory in step with a remote
// catalog repository.
package index

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/arc-language/benpak/pkg/catalog"
	"github.com/arc-language/benpak/pkg/core"
	"github.com/dchest/safefile"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/rs/zerolog"
	"go.trai.ch/zerr"
)

// PackagesDir is the directory inside the repository holding descriptors
const PackagesDir = "packages"

// Options configures Sync
type Options struct {
	RepoURL  string
	Branch   string
	DestDir  string
	Progress io.Writer // git progress output, optional
	Logger   zerolog.Logger
}

// Report summarizes a sync
type Report struct {
	Added   []string
	Updated []string
	Skipped []string // files that failed to parse
}

// Sync shallow-clones the catalog repository and copies every valid
// descriptor under packages/ into DestDir. Files that do not parse are left
// out so a broken upstream file cannot shadow a working local one.
func Sync(ctx context.Context, opts Options) (*Report, error) {
	if opts.RepoURL == "" || opts.DestDir == "" {
		return nil, core.E(core.KindConfiguration, "syncing catalog", errors.New("repository and destination are required"))
	}
	branch := opts.Branch
	if branch == "" {
		branch = core.DefaultCatalogBranch
	}
	logger := opts.Logger.With().Str("component", "index").Logger()

	tempDir, err := os.MkdirTemp("", "benpak-catalog-*")
	if err != nil {
		return nil, core.E(core.KindFilesystem, "creating temp dir", err)
	}
	defer os.RemoveAll(tempDir)

	logger.Info().Str("repository", opts.RepoURL).Str("branch", branch).Msg("updating catalog")

	_, err = git.PlainCloneContext(ctx, tempDir, false, &git.CloneOptions{
		URL:           opts.RepoURL,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         1,
		Progress:      opts.Progress,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, core.E(core.KindCancelled, "cloning catalog", ctx.Err())
		}
		return nil, core.E(core.KindNetwork, "cloning catalog", zerr.With(zerr.Wrap(err, "git clone failed"), "repository", opts.RepoURL))
	}

	return Import(filepath.Join(tempDir, PackagesDir), opts.DestDir, logger)
}

// Import copies every valid descriptor in src into dest, leaving unchanged
// files untouched
func Import(src, dest string, logger zerolog.Logger) (*Report, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, core.E(core.KindConfiguration, "reading catalog", zerr.With(zerr.Wrap(err, "no packages directory"), "path", src))
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, core.E(core.KindFilesystem, "creating descriptor directory", zerr.With(err, "path", dest))
	}

	report := &Report{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		srcPath := filepath.Join(src, e.Name())
		data, err := os.ReadFile(srcPath)
		if err != nil {
			return nil, core.E(core.KindFilesystem, "reading descriptor", zerr.With(err, "file", srcPath))
		}
		if _, err := catalog.Parse(e.Name(), data); err != nil {
			logger.Warn().Err(err).Str("file", e.Name()).Msg("skipping upstream descriptor")
			report.Skipped = append(report.Skipped, e.Name())
			continue
		}

		dstPath := filepath.Join(dest, e.Name())
		existing, err := os.ReadFile(dstPath)
		switch {
		case err == nil && bytes.Equal(existing, data):
			continue
		case err == nil:
			report.Updated = append(report.Updated, e.Name())
		default:
			report.Added = append(report.Added, e.Name())
		}
		if err := safefile.WriteFile(dstPath, data, 0o644); err != nil {
			return nil, core.E(core.KindFilesystem, "writing descriptor", zerr.With(err, "path", dstPath))
		}
	}

	logger.Info().Int("added", len(report.Added)).Int("updated", len(report.Updated)).
		Int("skipped", len(report.Skipped)).Msg("catalog updated")
	return report, nil
}
