package benpak

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/arc-language/benpak/pkg/core"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func helloTarball(t *testing.T) []byte {
	t.Helper()
	var raw bytes.Buffer
	tw := tar.NewWriter(&raw)
	body := "#!/bin/sh\necho hello\n"
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "hello-1.0.0/hello", Typeflag: tar.TypeReg, Mode: 0o755, Size: int64(len(body))}))
	_, err := tw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err = zw.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return gz.Bytes()
}

func testConfig(t *testing.T) *Config {
	root := t.TempDir()
	t.Setenv("BENPAK_INSTALL_PATH", "")
	return &Config{
		InstallDirectory:       filepath.Join(root, "programs"),
		StateDirectory:         filepath.Join(root, "state"),
		CacheDirectory:         filepath.Join(root, "cache"),
		DescriptorDirectories:  []string{filepath.Join(root, "packages")},
		ApplicationsDirectory:  filepath.Join(root, "applications"),
		BinDirectory:           filepath.Join(root, "bin"),
		CreateDesktopShortcuts: true,
		CreatePathSymlinks:     true,
		MaxConcurrentDownloads: 2,
	}
}

func TestManagerLifecycle(t *testing.T) {
	payload := helloTarball(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.DescriptorDirectories[0], 0o755))
	desc := fmt.Sprintf("id: hello\nname: Hello\narchive: tar.gz\nurl_pattern: %s/hello-{version}.tar.gz\nexecutable: hello\nversion: 1.0.0\n", srv.URL)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DescriptorDirectories[0], "hello.yaml"), []byte(desc), 0o644))

	ctx := context.Background()
	m, err := NewManager(ctx, cfg, &Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer m.Close()

	info, err := m.Info("hello")
	require.NoError(t, err)
	assert.False(t, info.Installed())

	job, err := m.Install(ctx, "hello")
	require.NoError(t, err)
	res, err := job.Wait()
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.FileExists(t, filepath.Join(cfg.ApplicationsDirectory, "hello.desktop"))

	link, err := os.Readlink(filepath.Join(cfg.BinDirectory, "hello"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.InstallDirectory, "hello", "hello"), link)

	records, err := m.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1.0.0", records[0].InstalledVersion)

	updates, err := m.CheckUpdates(ctx)
	require.NoError(t, err)
	assert.Empty(t, updates)

	require.NoError(t, m.Uninstall(ctx, "hello"))
	assert.NoFileExists(t, filepath.Join(cfg.ApplicationsDirectory, "hello.desktop"))
	assert.NoDirExists(t, filepath.Join(cfg.InstallDirectory, "hello"))

	// the record is durable across managers
	job, err = m.Install(ctx, "hello")
	require.NoError(t, err)
	_, err = job.Wait()
	require.NoError(t, err)

	reopened, err := NewManager(ctx, cfg, &Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	info, err = reopened.Info("hello")
	require.NoError(t, err)
	assert.True(t, info.Installed())
}

func TestManagerUnknownPackage(t *testing.T) {
	m, err := NewManager(context.Background(), testConfig(t), &Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = m.Install(context.Background(), "no-such-package")
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, core.KindConfiguration, KindOf(err))

	err = m.Uninstall(context.Background(), "no-such-package")
	assert.True(t, IsNotFound(err))

	_, err = m.Info("no-such-package")
	assert.True(t, IsNotFound(err))
}

func TestManagerLoadsBuiltins(t *testing.T) {
	m, err := NewManager(context.Background(), testConfig(t), &Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	desc, err := m.Descriptor("blender")
	require.NoError(t, err)
	assert.Equal(t, core.ArchiveTarXz, desc.Kind)
}
