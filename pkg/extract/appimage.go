package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/arc-language/benpak/pkg/core"
	"github.com/rs/zerolog"
	"go.trai.ch/zerr"
)

var (
	elfMagic    = []byte{0x7f, 'E', 'L', 'F'}
	appImageV1  = []byte{'A', 'I', 0x01}
	appImageV2  = []byte{'A', 'I', 0x02}
	magicOffset = 8
)

// AppImage installs the image file itself; nothing is unpacked
type AppImage struct {
	Logger zerolog.Logger
}

// Extract validates the signature before touching targetPath, then copies the
// image in as <id>.AppImage and marks it executable
func (a *AppImage) Extract(ctx context.Context, artifactPath, targetPath string, desc *core.Descriptor) (string, error) {
	if err := CheckAppImage(artifactPath); err != nil {
		return "", err
	}

	return materialize(ctx, targetPath, func() (string, error) {
		dst := filepath.Join(targetPath, desc.ID+".AppImage")
		a.Logger.Debug().Str("package", desc.ID).Str("dest", dst).Msg("installing AppImage")

		in, err := os.Open(artifactPath)
		if err != nil {
			return "", fsError(err, "opening artifact", artifactPath)
		}
		defer in.Close()

		out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0755)
		if err != nil {
			return "", fsError(err, "creating image", dst)
		}
		_, err = copyChunks(ctx, out, in)
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fsError(cerr, "closing image", dst)
		}
		if err != nil {
			return "", err
		}
		if err := os.Chmod(dst, 0755); err != nil {
			return "", fsError(err, "marking executable", dst)
		}
		return dst, nil
	})
}

// CheckAppImage verifies the ELF header and the type 1 or type 2 AppImage
// marker at offset 8
func CheckAppImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fsError(err, "opening artifact", path)
	}
	defer f.Close()

	head := make([]byte, magicOffset+3)
	if _, err := io.ReadFull(f, head); err != nil {
		return core.E(core.KindUnsupportedFormat, "extract", zerr.With(zerr.Wrap(err, "file too short for an AppImage"), "path", path))
	}
	if !bytes.Equal(head[:4], elfMagic) {
		return core.E(core.KindUnsupportedFormat, "extract", zerr.With(zerr.New("not an ELF executable"), "path", path))
	}
	marker := head[magicOffset:]
	if !bytes.Equal(marker, appImageV1) && !bytes.Equal(marker, appImageV2) {
		return core.E(core.KindUnsupportedFormat, "extract", zerr.With(zerr.New(fmt.Sprintf("missing AppImage marker, found %q", marker)), "path", path))
	}
	return nil
}
