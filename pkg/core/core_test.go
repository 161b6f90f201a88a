package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", &Error{Kind: KindNetwork, Op: "fetch", Package: "code", Err: errors.New("dial tcp: refused")})

	assert.ErrorIs(t, err, ErrNetwork)
	assert.NotErrorIs(t, err, ErrCorruptArchive)
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.Equal(t, "fetch code: dial tcp: refused", errors.Unwrap(err).Error())
}

func TestKindOfContextErrors(t *testing.T) {
	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
	assert.Equal(t, KindCancelled, KindOf(fmt.Errorf("read: %w", context.DeadlineExceeded)))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestWithPackage(t *testing.T) {
	err := WithPackage(E(KindCorruptArchive, "extract", errors.New("bad gzip")), "blender", KindUnknown)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "blender", e.Package)

	err = WithPackage(errors.New("disk full"), "blender", KindFilesystem)
	assert.ErrorIs(t, err, ErrFilesystem)
}

func TestParseArchiveKind(t *testing.T) {
	tests := []struct {
		in   string
		want ArchiveKind
	}{
		{"tar_gz", ArchiveTarGz},
		{"TGZ", ArchiveTarGz},
		{"tar.xz", ArchiveTarXz},
		{"deb", ArchiveDeb},
		{"AppImage", ArchiveAppImage},
		{"custom", ArchiveCustom},
	}
	for _, tt := range tests {
		got, err := ParseArchiveKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseArchiveKind("rpm")
	assert.Error(t, err)
}

func TestDescriptorValidate(t *testing.T) {
	valid := Descriptor{ID: "code", Kind: ArchiveTarGz, URLPattern: "https://example.com/code.tar.gz", Executable: "code"}
	require.NoError(t, valid.Validate())

	neg := -1
	tests := map[string]func(d *Descriptor){
		"missing id":       func(d *Descriptor) { d.ID = "" },
		"path id":          func(d *Descriptor) { d.ID = "../code" },
		"hidden id":        func(d *Descriptor) { d.ID = ".code" },
		"missing url":      func(d *Descriptor) { d.URLPattern = "" },
		"missing exec":     func(d *Descriptor) { d.Executable = "" },
		"custom no name":   func(d *Descriptor) { d.Kind = ArchiveCustom },
		"bad resolver":     func(d *Descriptor) { d.Resolver = "scrape" },
		"github no repo":   func(d *Descriptor) { d.Resolver = ResolverGitHub },
		"negative strip":   func(d *Descriptor) { d.StripComponents = &neg },
		"missing kind":     func(d *Descriptor) { d.Kind = "" },
		"short sha256":     func(d *Descriptor) { d.SHA256 = "abc123" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			d := valid
			mutate(&d)
			assert.Error(t, d.Validate())
		})
	}

	appimage := Descriptor{ID: "obsidian", Kind: ArchiveAppImage, URLPattern: "https://example.com/o.AppImage"}
	assert.NoError(t, appimage.Validate())
}

func TestInstallRecordComplete(t *testing.T) {
	rec := InstallRecord{PackageID: "a", InstalledVersion: "1.0.0", InstallPath: "/x/a", InstalledAt: time.Now()}
	assert.True(t, rec.Complete())

	rec.InstallPath = ""
	assert.False(t, rec.Complete())
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("BENPAK_INSTALL_PATH", "")
	dir := t.TempDir()

	cfg, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxConcurrentDownloads, cfg.MaxConcurrentDownloads)
	assert.True(t, cfg.CreateDesktopShortcuts)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
install_directory: /opt/me/programs
create_desktop_shortcuts: false
download_timeout: 45s
max_concurrent_downloads: 5
`), 0644))

	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/me/programs", cfg.InstallDirectory)
	assert.False(t, cfg.CreateDesktopShortcuts)
	assert.True(t, cfg.CreatePathSymlinks)
	assert.Equal(t, 45*time.Second, cfg.DownloadTimeout)
	assert.Equal(t, 5, cfg.MaxConcurrentDownloads)
	assert.NotEmpty(t, cfg.StateDirectory)

	require.NoError(t, os.WriteFile(path, []byte("install_directory: [unclosed"), 0644))
	_, err = LoadConfig(path)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("BENPAK_INSTALL_PATH", "/tmp/elsewhere")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/elsewhere", cfg.InstallDirectory)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	t.Setenv("BENPAK_INSTALL_PATH", "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.MaxConcurrentDownloads = 7

	require.NoError(t, SaveConfig(cfg, path))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.MaxConcurrentDownloads)
}
