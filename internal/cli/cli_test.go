package cli

import (
	"archive/tar"
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	root   string
	config string
	srv    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("BENPAK_INSTALL_PATH", "")

	var raw bytes.Buffer
	tw := tar.NewWriter(&raw)
	body := "#!/bin/sh\necho hello\n"
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "hello/bin/hello", Typeflag: tar.TypeReg, Mode: 0o755, Size: int64(len(body))}))
	_, err := tw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err = zw.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	payload := gz.Bytes()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hello-2.1.0.tar.gz" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	root := t.TempDir()
	config := filepath.Join(root, "config.yaml")
	yaml := fmt.Sprintf(`install_directory: %[1]s/programs
state_directory: %[1]s/state
cache_directory: %[1]s/cache
descriptor_directories:
  - %[1]s/packages
applications_directory: %[1]s/applications
bin_directory: %[1]s/bin
create_desktop_shortcuts: false
create_path_symlinks: true
max_concurrent_downloads: 2
`, root)
	require.NoError(t, os.WriteFile(config, []byte(yaml), 0o644))

	pkgDir := filepath.Join(root, "packages")
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))
	desc := fmt.Sprintf(`{"id":"hello","name":"Hello","description":"says hello","archive":"tar.gz","url_pattern":"%s/hello-{version}.tar.gz","executable":"bin/hello","version":"2.1.0"}`, srv.URL)
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "hello.json"), []byte(desc), 0o644))

	return &fixture{root: root, config: config, srv: srv}
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", f.config, "--no-color"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	f := newFixture(t)
	out, err := f.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "benpak version")
}

func TestInstallListRemove(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No packages installed.")

	out, err = f.run(t, "install", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "hello queued")
	assert.Contains(t, out, "installed hello 2.1.0")
	assert.FileExists(t, filepath.Join(f.root, "programs", "hello", "bin", "hello"))
	assert.FileExists(t, filepath.Join(f.root, "bin", "hello"))

	out, err = f.run(t, "install", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "already installed")

	out, err = f.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "2.1.0")

	out, err = f.run(t, "info", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "Installed:   2.1.0")

	out, err = f.run(t, "updates")
	require.NoError(t, err)
	assert.Contains(t, out, "Everything is up to date.")

	out, err = f.run(t, "remove", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "removed hello")
	assert.NoDirExists(t, filepath.Join(f.root, "programs", "hello"))
}

func TestInstallFailuresAreReported(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "install", "hello", "does-not-exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 packages failed")
	assert.Contains(t, out, "does-not-exist")
	assert.Contains(t, out, "installed hello")
}

func TestInstallFromFile(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.root, "custom.yaml")
	body := fmt.Sprintf("id: custom\narchive: tar.gz\nurl_pattern: %s/hello-2.1.0.tar.gz\nexecutable: hello\nversion: 2.1.0\n", f.srv.URL)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	out, err := f.run(t, "install", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "installed custom 2.1.0")
}

func TestSearchAndAvailable(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "search", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "says hello")

	out, err = f.run(t, "list", "--available")
	require.NoError(t, err)
	assert.Contains(t, out, "discord")
	assert.Contains(t, out, "hello")
}

func TestRemoveUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, "remove", "ghost")
	assert.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "run", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not installed")

	_, err = f.run(t, "install", "hello")
	require.NoError(t, err)

	out, err := f.run(t, "run", "--wait", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)

	out, err = f.run(t, "run", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "started hello")
}

func TestConfigCommands(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, f.config+"\n", out)

	out, err = f.run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "max_concurrent_downloads: 2")

	_, err = f.run(t, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	fresh := filepath.Join(f.root, "fresh", "config.yaml")
	cmd := NewRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--config", fresh, "--no-color", "config", "init"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "wrote "+fresh)
	assert.FileExists(t, fresh)
}
