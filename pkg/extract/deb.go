package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/arc-language/benpak/pkg/core"
	"github.com/arc-language/benpak/pkg/layout"
	"github.com/blakesmith/ar"
	"github.com/rs/zerolog"
)

const (
	arMagic = "!<arch>\n"

	// ControlDir receives the control.tar.* member
	ControlDir = "DEBIAN"
)

// Deb unpacks Debian packages without dpkg. The data member becomes the tree,
// the control member lands in DEBIAN/.
type Deb struct {
	Logger zerolog.Logger
}

// Extract unpacks a .deb using the ar and tar formats
func (d *Deb) Extract(ctx context.Context, artifactPath, targetPath string, desc *core.Descriptor) (string, error) {
	return materialize(ctx, targetPath, func() (string, error) {
		d.Logger.Debug().Str("package", desc.ID).Str("artifact", artifactPath).Str("target", targetPath).Msg("extracting .deb package")

		f, err := os.Open(artifactPath)
		if err != nil {
			return "", fsError(err, "opening artifact", artifactPath)
		}
		defer f.Close()

		magic := make([]byte, len(arMagic))
		if _, err := io.ReadFull(f, magic); err != nil || string(magic) != arMagic {
			return "", corrupt(errors.New("missing ar signature"), "reading .deb package")
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return "", fsError(err, "rewinding artifact", artifactPath)
		}

		strip := 0
		if desc.StripComponents != nil {
			strip = *desc.StripComponents
		}

		arReader := ar.NewReader(f)
		var sawBinary, sawData bool
		for {
			header, err := arReader.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", corrupt(err, "reading ar entry")
			}

			name := strings.TrimSuffix(strings.TrimSpace(header.Name), "/")
			d.Logger.Debug().Str("member", name).Int64("size", header.Size).Msg("found ar member")

			switch {
			case name == "debian-binary":
				if err := checkDebianBinary(arReader); err != nil {
					return "", err
				}
				sawBinary = true

			case strings.HasPrefix(name, "control.tar"):
				c, err := CompressionForName(name)
				if err != nil {
					return "", core.E(core.KindUnsupportedFormat, "extract", err)
				}
				if err := extractTarStream(ctx, arReader, c, filepath.Join(targetPath, ControlDir), 0, d.Logger); err != nil {
					return "", err
				}

			case strings.HasPrefix(name, "data.tar"):
				c, err := CompressionForName(name)
				if err != nil {
					return "", core.E(core.KindUnsupportedFormat, "extract", err)
				}
				if err := extractTarStream(ctx, arReader, c, targetPath, strip, d.Logger); err != nil {
					return "", err
				}
				sawData = true
			}
		}

		if !sawBinary || !sawData {
			return "", corrupt(fmt.Errorf("incomplete package (debian-binary: %v, data: %v)", sawBinary, sawData), "reading .deb package")
		}

		exe := desc.Executable
		if exe == "" {
			exe = desc.ID
		}
		return layout.FindExecutable(targetPath, exe, core.ArchiveDeb)
	})
}

func checkDebianBinary(r io.Reader) error {
	buf, err := io.ReadAll(io.LimitReader(r, 64))
	if err != nil {
		return corrupt(err, "reading debian-binary")
	}
	if !bytes.HasPrefix(bytes.TrimSpace(buf), []byte("2.")) {
		return corrupt(fmt.Errorf("unsupported format version %q", bytes.TrimSpace(buf)), "reading debian-binary")
	}
	return nil
}
