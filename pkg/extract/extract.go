// Package extract materializes install trees from fetched artifacts.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/arc-language/benpak/pkg/core"
	"github.com/rs/zerolog"
	"go.trai.ch/zerr"
)

const chunkSize = 64 * 1024

// Registry maps archive kinds, and named custom extractors, to handlers
type Registry struct {
	mu     sync.RWMutex
	byKind map[core.ArchiveKind]core.Extractor
	custom map[string]core.Extractor
}

// NewRegistry returns a registry with the built-in formats registered
func NewRegistry(logger zerolog.Logger) *Registry {
	logger = logger.With().Str("component", "extract").Logger()
	r := &Registry{
		byKind: make(map[core.ArchiveKind]core.Extractor),
		custom: make(map[string]core.Extractor),
	}
	r.Register(core.ArchiveTarGz, &Tar{Compression: CompressionGzip, Logger: logger})
	r.Register(core.ArchiveTarXz, &Tar{Compression: CompressionXz, Logger: logger})
	r.Register(core.ArchiveDeb, &Deb{Logger: logger})
	r.Register(core.ArchiveAppImage, &AppImage{Logger: logger})
	return r
}

// Register installs ex for kind, replacing any previous handler
func (r *Registry) Register(kind core.ArchiveKind, ex core.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKind[kind] = ex
}

// RegisterCustom installs ex under name for descriptors of kind custom
func (r *Registry) RegisterCustom(name string, ex core.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[name] = ex
}

// For returns the extractor serving desc
func (r *Registry) For(desc *core.Descriptor) (core.Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if desc.Kind == core.ArchiveCustom {
		if ex, ok := r.custom[desc.Extractor]; ok {
			return ex, nil
		}
		return nil, &core.Error{Kind: core.KindConfiguration, Op: "extract", Package: desc.ID,
			Err: fmt.Errorf("no custom extractor named %q", desc.Extractor)}
	}
	if ex, ok := r.byKind[desc.Kind]; ok {
		return ex, nil
	}
	return nil, &core.Error{Kind: core.KindConfiguration, Op: "extract", Package: desc.ID,
		Err: fmt.Errorf("no extractor for archive kind %q", desc.Kind)}
}

// Extract dispatches to the extractor for desc
func (r *Registry) Extract(ctx context.Context, artifactPath, targetPath string, desc *core.Descriptor) (string, error) {
	ex, err := r.For(desc)
	if err != nil {
		return "", err
	}
	return ex.Extract(ctx, artifactPath, targetPath, desc)
}

// materialize clears target, runs fill and removes target again when fill
// fails, so a failed extraction never leaves files behind
func materialize(ctx context.Context, target string, fill func() (string, error)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", cancelled(err)
	}
	if err := os.RemoveAll(target); err != nil {
		return "", core.E(core.KindFilesystem, "extract", zerr.With(zerr.Wrap(err, "clearing previous tree"), "path", target))
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return "", core.E(core.KindFilesystem, "extract", zerr.With(zerr.Wrap(err, "creating target"), "path", target))
	}

	exe, err := fill()
	if err != nil {
		_ = os.RemoveAll(target)
		return "", err
	}
	return exe, nil
}

// errWrite marks failures on the destination side of copyChunks
type errWrite struct{ err error }

func (e *errWrite) Error() string { return e.err.Error() }
func (e *errWrite) Unwrap() error { return e.err }

// copyChunks copies r to w, checking ctx between chunks. Read failures are
// reported as corrupt input, write failures as filesystem errors.
func copyChunks(ctx context.Context, w io.Writer, r io.Reader) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, cancelled(err)
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, core.E(core.KindFilesystem, "extract", zerr.Wrap(&errWrite{werr}, "writing file"))
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, corrupt(rerr, "reading archive")
		}
	}
}

func cancelled(err error) error {
	return core.E(core.KindCancelled, "extract", zerr.Wrap(err, "extraction aborted"))
}

func corrupt(err error, msg string) error {
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return core.E(core.KindCorruptArchive, "extract", zerr.Wrap(err, msg))
}

func fsError(err error, msg, path string) error {
	return core.E(core.KindFilesystem, "extract", zerr.With(zerr.Wrap(err, msg), "path", path))
}
