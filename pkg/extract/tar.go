package extract

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/arc-language/benpak/pkg/core"
	"github.com/arc-language/benpak/pkg/layout"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// Compression identifies the stream wrapped around a tar archive
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionXz
	CompressionZstd
	CompressionBzip2
	CompressionLzma
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionXz:
		return "xz"
	case CompressionZstd:
		return "zstd"
	case CompressionBzip2:
		return "bzip2"
	case CompressionLzma:
		return "lzma"
	default:
		return "none"
	}
}

// CompressionForName picks the decompressor from a member or file suffix
func CompressionForName(name string) (Compression, error) {
	switch {
	case strings.HasSuffix(name, ".gz"), strings.HasSuffix(name, ".tgz"):
		return CompressionGzip, nil
	case strings.HasSuffix(name, ".xz"), strings.HasSuffix(name, ".txz"):
		return CompressionXz, nil
	case strings.HasSuffix(name, ".zst"):
		return CompressionZstd, nil
	case strings.HasSuffix(name, ".bz2"):
		return CompressionBzip2, nil
	case strings.HasSuffix(name, ".lzma"):
		return CompressionLzma, nil
	case strings.HasSuffix(name, ".tar"):
		return CompressionNone, nil
	}
	return CompressionNone, fmt.Errorf("unknown compression for %q", name)
}

// decompress wraps r. The returned closer never closes r.
func decompress(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, corrupt(err, "creating gzip reader")
		}
		return zr, nil
	case CompressionXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, corrupt(err, "creating xz reader")
		}
		return io.NopCloser(xr), nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, corrupt(err, "creating zstd reader")
		}
		return zr.IOReadCloser(), nil
	case CompressionBzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case CompressionLzma:
		lr, err := lzma.NewReader(r)
		if err != nil {
			return nil, corrupt(err, "creating lzma reader")
		}
		return io.NopCloser(lr), nil
	default:
		return io.NopCloser(r), nil
	}
}

// Tar extracts compressed tarballs
type Tar struct {
	Compression Compression
	Logger      zerolog.Logger
}

// Extract unpacks artifactPath under targetPath. Without an explicit
// strip_components, a single shared top-level directory is stripped.
func (t *Tar) Extract(ctx context.Context, artifactPath, targetPath string, desc *core.Descriptor) (string, error) {
	return materialize(ctx, targetPath, func() (string, error) {
		strip := 0
		if desc.StripComponents != nil {
			strip = *desc.StripComponents
		} else {
			n, err := t.commonPrefixDepth(ctx, artifactPath)
			if err != nil {
				return "", err
			}
			strip = n
		}

		t.Logger.Debug().Str("package", desc.ID).Str("compression", t.Compression.String()).
			Int("strip", strip).Str("target", targetPath).Msg("extracting tarball")

		f, err := os.Open(artifactPath)
		if err != nil {
			return "", fsError(err, "opening artifact", artifactPath)
		}
		defer f.Close()

		if err := extractTarStream(ctx, f, t.Compression, targetPath, strip, t.Logger); err != nil {
			return "", err
		}
		return layout.FindExecutable(targetPath, desc.Executable, desc.Kind)
	})
}

// commonPrefixDepth returns 1 when every entry lives under one top-level
// directory, otherwise 0
func (t *Tar) commonPrefixDepth(ctx context.Context, artifactPath string) (int, error) {
	f, err := os.Open(artifactPath)
	if err != nil {
		return 0, fsError(err, "opening artifact", artifactPath)
	}
	defer f.Close()

	zr, err := decompress(f, t.Compression)
	if err != nil {
		return 0, err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	top := ""
	nested := false
	for {
		if err := ctx.Err(); err != nil {
			return 0, cancelled(err)
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, corrupt(err, "reading tar header")
		}
		if isMetadataEntry(hdr) {
			continue
		}
		name := cleanName(hdr.Name, 0)
		if name == "" {
			continue
		}
		first, rest, _ := strings.Cut(name, "/")
		if top == "" {
			top = first
		} else if first != top {
			return 0, nil
		}
		if rest != "" {
			nested = true
		} else if hdr.Typeflag != tar.TypeDir {
			// a plain file at the top level
			return 0, nil
		}
	}
	if top != "" && nested {
		return 1, nil
	}
	return 0, nil
}

// extractTarStream writes every entry of a (compressed) tar stream under dest
func extractTarStream(ctx context.Context, r io.Reader, c Compression, dest string, strip int, logger zerolog.Logger) error {
	zr, err := decompress(r, c)
	if err != nil {
		return err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	entries := 0
	for {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return corrupt(err, "reading tar header")
		}
		if isMetadataEntry(hdr) {
			continue
		}
		name := cleanName(hdr.Name, strip)
		if name == "" {
			continue
		}
		if err := writeEntry(ctx, tr, hdr, dest, name, strip); err != nil {
			return err
		}
		entries++
	}

	// reach the end of the compressed stream so checksums are verified
	if _, err := io.Copy(io.Discard, zr); err != nil {
		return corrupt(err, "verifying compressed stream")
	}

	logger.Debug().Int("entries", entries).Str("dest", dest).Msg("tar stream extracted")
	return nil
}

func writeEntry(ctx context.Context, tr *tar.Reader, hdr *tar.Header, dest, name string, strip int) error {
	parent, err := securejoin.SecureJoin(dest, path.Dir(name))
	if err != nil {
		return corrupt(err, "resolving entry path")
	}
	target := filepath.Join(parent, path.Base(name))
	mode := hdr.FileInfo().Mode().Perm()

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, mode|0o700); err != nil {
			return fsError(err, "creating directory", target)
		}
		return nil

	case tar.TypeReg:
		if err := os.MkdirAll(parent, 0755); err != nil {
			return fsError(err, "creating directory", parent)
		}
		if err := removeNonDir(target); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode|0o600)
		if err != nil {
			return fsError(err, "creating file", target)
		}
		n, err := copyChunks(ctx, out, tr)
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fsError(cerr, "closing file", target)
		}
		if err != nil {
			return err
		}
		if n != hdr.Size {
			return corrupt(io.ErrUnexpectedEOF, "short tar entry")
		}
		return nil

	case tar.TypeSymlink:
		if err := os.MkdirAll(parent, 0755); err != nil {
			return fsError(err, "creating directory", parent)
		}
		if err := removeNonDir(target); err != nil {
			return err
		}
		if err := os.Symlink(hdr.Linkname, target); err != nil {
			return fsError(err, "creating symlink", target)
		}
		return nil

	case tar.TypeLink:
		linkName := cleanName(hdr.Linkname, strip)
		if linkName == "" {
			return corrupt(errors.New("hard link outside archive root"), "resolving link")
		}
		src, err := securejoin.SecureJoin(dest, linkName)
		if err != nil {
			return corrupt(err, "resolving link")
		}
		if err := os.MkdirAll(parent, 0755); err != nil {
			return fsError(err, "creating directory", parent)
		}
		if err := removeNonDir(target); err != nil {
			return err
		}
		if err := os.Link(src, target); err != nil {
			return fsError(err, "creating hard link", target)
		}
		return nil

	default:
		// devices and fifos have no place in a user install tree
		return nil
	}
}

func removeNonDir(p string) error {
	info, err := os.Lstat(p)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		return fsError(errors.New("directory in the way"), "replacing entry", p)
	}
	if err := os.Remove(p); err != nil {
		return fsError(err, "replacing entry", p)
	}
	return nil
}

// cleanName makes an entry name relative and free of "..", then drops the
// first strip components
func cleanName(name string, strip int) string {
	n := strings.TrimPrefix(path.Clean("/"+name), "/")
	if n == "" {
		return ""
	}
	if strip > 0 {
		parts := strings.Split(n, "/")
		if len(parts) <= strip {
			return ""
		}
		n = strings.Join(parts[strip:], "/")
	}
	return n
}

func isMetadataEntry(hdr *tar.Header) bool {
	switch hdr.Typeflag {
	case tar.TypeXGlobalHeader, tar.TypeXHeader, tar.TypeGNULongName, tar.TypeGNULongLink:
		return true
	}
	return false
}
