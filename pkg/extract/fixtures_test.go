package extract

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blakesmith/ar"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

type entry struct {
	name     string
	body     string
	mode     int64
	typeflag byte
	link     string
}

func file(name, body string, mode int64) entry {
	return entry{name: name, body: body, mode: mode, typeflag: tar.TypeReg}
}

func dir(name string) entry {
	return entry{name: name, mode: 0755, typeflag: tar.TypeDir}
}

func symlink(name, target string) entry {
	return entry{name: name, mode: 0777, typeflag: tar.TypeSymlink, link: target}
}

func rawTar(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Mode:     e.mode,
			Typeflag: e.typeflag,
			Linkname: e.link,
			ModTime:  time.Unix(1700000000, 0),
		}
		if e.typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if e.typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func xzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = xw.Write(data)
	require.NoError(t, err)
	require.NoError(t, xw.Close())
	return buf.Bytes()
}

func zstded(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type member struct {
	name string
	data []byte
}

func debPackage(t *testing.T, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := ar.NewWriter(&buf)
	require.NoError(t, w.WriteGlobalHeader())
	for _, m := range members {
		require.NoError(t, w.WriteHeader(&ar.Header{
			Name:    m.name,
			ModTime: time.Unix(1700000000, 0),
			Mode:    0644,
			Size:    int64(len(m.data)),
		}))
		_, err := w.Write(m.data)
		require.NoError(t, err)
	}
	return buf.Bytes()
}

// minimalDeb ships usr/bin/hello and a control file
func minimalDeb(t *testing.T) []byte {
	control := gzipped(t, rawTar(t, dir("./"), file("./control", "Package: hello\nVersion: 1.0\n", 0644)))
	data := gzipped(t, rawTar(t,
		dir("./"),
		dir("./usr/"),
		dir("./usr/bin/"),
		file("./usr/bin/hello", "#!/bin/sh\necho hello\n", 0755),
		dir("./usr/share/doc/hello/"),
		file("./usr/share/doc/hello/copyright", "MIT", 0644),
	))
	return debPackage(t,
		member{"debian-binary", []byte("2.0\n")},
		member{"control.tar.gz", control},
		member{"data.tar.gz", data},
	)
}

func appImageBytes() []byte {
	img := make([]byte, 256)
	copy(img, []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0})
	copy(img[8:], []byte{'A', 'I', 0x02})
	return img
}

func writeArtifact(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0644))
	return p
}
