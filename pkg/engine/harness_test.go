package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arc-language/benpak/pkg/core"
	"github.com/arc-language/benpak/pkg/extract"
	"github.com/arc-language/benpak/pkg/fetch"
	"github.com/arc-language/benpak/pkg/resolve"
	"github.com/arc-language/benpak/pkg/store"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mirror serves artifacts and records how it was used
type mirror struct {
	srv *httptest.Server

	mu     sync.Mutex
	files  map[string][]byte
	slow   map[string]bool
	hits   map[string]int
	active int
	peak   int
	delay  time.Duration
	gate   chan struct{}
}

func (m *mirror) setDelay(d time.Duration) {
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
}

func newMirror(t *testing.T) *mirror {
	m := &mirror{
		files: make(map[string][]byte),
		slow:  make(map[string]bool),
		hits:  make(map[string]int),
		gate:  make(chan struct{}),
	}
	m.srv = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.srv.Close)
	t.Cleanup(m.open)
	return m
}

func (m *mirror) open() {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.gate:
	default:
		close(m.gate)
	}
}

func (m *mirror) put(name string, body []byte) {
	m.mu.Lock()
	m.files[name] = body
	m.mu.Unlock()
}

// stall makes name stop halfway until the gate opens
func (m *mirror) stall(name string, size int) {
	m.mu.Lock()
	m.files[name] = bytes.Repeat([]byte{0x42}, size)
	m.slow[name] = true
	m.mu.Unlock()
}

func (m *mirror) hitCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[name]
}

func (m *mirror) peakConcurrency() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

func (m *mirror) serve(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")

	m.mu.Lock()
	body, ok := m.files[name]
	slow := m.slow[name]
	delay := m.delay
	m.hits[name]++
	m.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if delay > 0 {
		// counted only while the client is still waiting for headers
		m.mu.Lock()
		m.active++
		if m.active > m.peak {
			m.peak = m.active
		}
		m.mu.Unlock()
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
		}
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
		if r.Context().Err() != nil {
			return
		}
	}

	w.Header().Set("Content-Length", fmt.Sprint(len(body)))
	if !slow {
		_, _ = w.Write(body)
		return
	}

	half := len(body) / 2
	_, _ = w.Write(body[:half])
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	select {
	case <-m.gate:
		_, _ = w.Write(body[half:])
	case <-r.Context().Done():
	}
}

func (m *mirror) url(name string) string {
	return m.srv.URL + "/" + name
}

// tarball builds a gzipped tar with every file under a single top-level dir
func tarball(t *testing.T, top string, files map[string]string) []byte {
	t.Helper()
	var raw bytes.Buffer
	tw := tar.NewWriter(&raw)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: top + "/", Typeflag: tar.TypeDir, Mode: 0o755, ModTime: time.Unix(1700000000, 0)}))
	for name, body := range files {
		mode := int64(0o644)
		if strings.HasPrefix(name, "bin/") {
			mode = 0o755
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     top + "/" + name,
			Typeflag: tar.TypeReg,
			Mode:     mode,
			Size:     int64(len(body)),
			ModTime:  time.Unix(1700000000, 0),
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return gz.Bytes()
}

// publish serves a release of id at version and returns its descriptor
func (m *mirror) publish(t *testing.T, id, version string, extra map[string]string) *core.Descriptor {
	files := map[string]string{"bin/" + id: "#!/bin/sh\necho " + version + "\n"}
	for k, v := range extra {
		files[k] = v
	}
	m.put(fmt.Sprintf("%s-%s.tar.gz", id, version), tarball(t, id+"-"+version, files))
	return m.descriptor(id, version)
}

func (m *mirror) descriptor(id, version string) *core.Descriptor {
	return &core.Descriptor{
		ID:         id,
		Name:       strings.ToUpper(id[:1]) + id[1:],
		Kind:       core.ArchiveTarGz,
		URLPattern: m.srv.URL + "/" + id + "-{version}.tar.gz",
		Executable: "bin/" + id,
		Version:    version,
	}
}

type mockLauncher struct {
	mock.Mock
}

func (m *mockLauncher) Create(packageID, executablePath string, desc *core.Descriptor) (string, error) {
	args := m.Called(packageID, executablePath, desc)
	return args.String(0), args.Error(1)
}

func (m *mockLauncher) Remove(packageID string) error {
	return m.Called(packageID).Error(0)
}

type resolverFunc func(ctx context.Context, desc *core.Descriptor) (*core.Resolution, error)

func (f resolverFunc) Resolve(ctx context.Context, desc *core.Descriptor) (*core.Resolution, error) {
	return f(ctx, desc)
}

// flakyStore fails Put while failPuts is set
type flakyStore struct {
	*store.MemoryStore
	mu       sync.Mutex
	failPuts bool
}

func (s *flakyStore) setFailing(v bool) {
	s.mu.Lock()
	s.failPuts = v
	s.mu.Unlock()
}

func (s *flakyStore) Put(record core.InstallRecord) error {
	s.mu.Lock()
	fail := s.failPuts
	s.mu.Unlock()
	if fail {
		return core.E(core.KindFilesystem, "saving install record", fmt.Errorf("disk full"))
	}
	return s.MemoryStore.Put(record)
}

type env struct {
	mirror      *mirror
	store       core.Store
	orch        *Orchestrator
	installDir  string
	downloadDir string
}

type option func(*Config)

func withLauncher(l core.Launcher) option {
	return func(c *Config) { c.Launcher = l }
}

func withStore(s core.Store) option {
	return func(c *Config) { c.Store = s }
}

func withResolver(r core.Resolver) option {
	return func(c *Config) { c.Resolver = r }
}

func withDownloads(n int) option {
	return func(c *Config) { c.MaxConcurrentDownloads = n }
}

func newEnv(t *testing.T, opts ...option) *env {
	t.Helper()
	root := t.TempDir()
	m := newMirror(t)

	st, err := store.Open(filepath.Join(root, "state", "installed.json"), zerolog.Nop())
	require.NoError(t, err)

	client := fetch.NewClient()
	cfg := &Config{
		Store:       st,
		Fetcher:     fetch.New(&fetch.Config{Client: client, ChunkSize: 1024, Logger: zerolog.Nop()}),
		Extractor:   extract.NewRegistry(zerolog.Nop()),
		Resolver:    resolve.New(&resolve.Config{Client: client, Logger: zerolog.Nop()}),
		InstallDir:  filepath.Join(root, "programs"),
		DownloadDir: filepath.Join(root, "cache", "downloads"),
		Logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	orch, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(orch.Wait)
	t.Cleanup(m.open)

	return &env{mirror: m, store: cfg.Store, orch: orch, installDir: cfg.InstallDir, downloadDir: cfg.DownloadDir}
}

// drain collects every event until the stream closes
func drain(t *testing.T, j *Job) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(15 * time.Second)
	for {
		select {
		case ev, ok := <-j.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events of %s", j.PackageID())
		}
	}
}

// waitFor reads events until pred matches
func waitFor(t *testing.T, j *Job, pred func(Event) bool) []Event {
	t.Helper()
	var seen []Event
	timeout := time.After(15 * time.Second)
	for {
		select {
		case ev, ok := <-j.Events():
			require.True(t, ok, "event stream closed before condition was met")
			seen = append(seen, ev)
			if pred(ev) {
				return seen
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event of %s", j.PackageID())
		}
	}
}

func states(events []Event) []State {
	var out []State
	for _, ev := range events {
		if len(out) > 0 && out[len(out)-1] == ev.State {
			continue
		}
		out = append(out, ev.State)
	}
	return out
}

func (e *env) install(t *testing.T, desc *core.Descriptor) ([]Event, *Result) {
	t.Helper()
	job, err := e.orch.Submit(context.Background(), desc)
	require.NoError(t, err)
	events := drain(t, job)
	res, err := job.Wait()
	require.NoError(t, err)
	return events, res
}
