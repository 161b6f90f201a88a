// pkg/fetch/fetcher.go
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arc-language/benpak/pkg/core"
	"github.com/rs/zerolog"
	"go.trai.ch/zerr"
)

const defaultChunkSize = 32 * 1024

// Config configures a Fetcher
type Config struct {
	Client *Client

	// Deadline bounds a single transfer; zero means none. Expiry is reported
	// as Cancelled.
	Deadline time.Duration

	ChunkSize int
	Logger    zerolog.Logger
}

// Fetcher downloads artifacts to local files
type Fetcher struct {
	client    *Client
	deadline  time.Duration
	chunkSize int
	logger    zerolog.Logger
}

// New creates a Fetcher, filling defaults for unset fields
func New(cfg *Config) *Fetcher {
	if cfg == nil {
		cfg = &Config{Logger: zerolog.Nop()}
	}
	client := cfg.Client
	if client == nil {
		client = NewClient()
	}
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	return &Fetcher{
		client:    client,
		deadline:  cfg.Deadline,
		chunkSize: chunk,
		logger:    cfg.Logger.With().Str("component", "fetch").Logger(),
	}
}

// Fetch downloads url into destPath. It writes nothing else, and on any
// failure the partial file is removed.
func (f *Fetcher) Fetch(ctx context.Context, url, destPath string, progress core.ProgressFunc) (*core.Artifact, error) {
	if f.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.deadline)
		defer cancel()
	}

	report := newReporter(progress)
	f.logger.Debug().Str("url", url).Str("dest", destPath).Msg("downloading")

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return nil, core.E(core.KindFilesystem, "fetch", zerr.With(zerr.Wrap(err, "creating download directory"), "path", destPath))
	}

	resp, err := f.client.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, core.E(core.KindFilesystem, "fetch", zerr.With(zerr.Wrap(err, "creating file"), "path", destPath))
	}

	hasher := sha256.New()
	written, err := f.copy(ctx, io.MultiWriter(out, hasher), resp.Body, resp.ContentLength, report)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = core.E(core.KindFilesystem, "fetch", zerr.With(zerr.Wrap(cerr, "closing file"), "path", destPath))
	}
	if err != nil {
		if rmErr := os.Remove(destPath); rmErr != nil && !os.IsNotExist(rmErr) {
			f.logger.Warn().Err(rmErr).Str("path", destPath).Msg("failed to remove partial download")
		}
		return nil, err
	}

	report.done()
	f.logger.Debug().Int64("bytes", written).Str("dest", destPath).Msg("download complete")

	return &core.Artifact{Path: destPath, URL: url, Size: written, SHA256: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// Verify checks an artifact against an expected hex SHA-256 digest. A
// mismatch is reported as a corrupt archive.
func Verify(art *core.Artifact, expected string) error {
	if expected == "" {
		return nil
	}
	if !strings.EqualFold(art.SHA256, expected) {
		err := zerr.New("sha256 mismatch")
		return core.E(core.KindCorruptArchive, "verify", zerr.With(zerr.With(err, "expected", strings.ToLower(expected)), "actual", art.SHA256))
	}
	return nil
}

// copy moves the body in chunks, checking for cancellation between chunks
func (f *Fetcher) copy(ctx context.Context, w io.Writer, r io.Reader, total int64, report *reporter) (int64, error) {
	buf := make([]byte, f.chunkSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, core.E(core.KindCancelled, "fetch", zerr.Wrap(err, "download aborted"))
		}

		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, core.E(core.KindFilesystem, "fetch", zerr.Wrap(werr, "writing download"))
			}
			written += int64(n)
			report.update(written, total)
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return written, core.E(core.KindCancelled, "fetch", zerr.Wrap(ctx.Err(), "download aborted"))
			}
			if total >= 0 && errors.Is(rerr, io.ErrUnexpectedEOF) {
				return written, incomplete(written, total)
			}
			return written, core.E(core.KindNetwork, "fetch", zerr.Wrap(rerr, "reading response body"))
		}
	}

	if total >= 0 && written != total {
		return written, incomplete(written, total)
	}
	return written, nil
}

func incomplete(got, want int64) error {
	err := zerr.New(fmt.Sprintf("received %d of %d bytes", got, want))
	return core.E(core.KindIncompleteTransfer, "fetch", zerr.With(zerr.With(err, "received", got), "expected", want))
}

// reporter forwards a non-decreasing fraction in [0,1]
type reporter struct {
	fn   core.ProgressFunc
	last float64
}

func newReporter(fn core.ProgressFunc) *reporter {
	r := &reporter{fn: fn, last: -1}
	r.emit(0)
	return r
}

func (r *reporter) update(written, total int64) {
	if total <= 0 {
		return
	}
	frac := float64(written) / float64(total)
	if frac > 1 {
		frac = 1
	}
	r.emit(frac)
}

func (r *reporter) done() {
	r.emit(1)
}

func (r *reporter) emit(frac float64) {
	if r.fn == nil || frac <= r.last {
		return
	}
	r.last = frac
	r.fn(frac)
}
