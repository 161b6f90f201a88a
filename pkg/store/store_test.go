package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/arc-language/benpak/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id, version string) core.InstallRecord {
	return core.InstallRecord{
		PackageID:        id,
		InstalledVersion: version,
		InstallPath:      filepath.Join("/programs", id),
		InstalledAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFileStorePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "installed.json")

	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)

	rec, err := s.Get("code")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, s.Put(record("code", "1.90.0")))
	require.NoError(t, s.Put(record("blender", "4.1.0")))

	reopened, err := Open(path, zerolog.Nop())
	require.NoError(t, err)

	rec, err = reopened.Get("code")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "1.90.0", rec.InstalledVersion)
	assert.True(t, rec.InstalledAt.Equal(record("code", "").InstalledAt))

	list, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "blender", list[0].PackageID)
	assert.Equal(t, "code", list[1].PackageID)
}

func TestFileStoreRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "installed.json")
	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Put(record("code", "1.0.0")))
	require.NoError(t, s.Remove("code"))
	require.NoError(t, s.Remove("never-installed"))

	reopened, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	rec, err := reopened.Get("code")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFileStoreForwardCompatibleRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "installed.json")
	doc := `{
  "schema": 9,
  "future_top_level": {"x": 1},
  "packages": {
    "code": {"package_id": "code", "installed_version": "1.0.0", "install_path": "/p/code",
             "installed_at": "2026-01-02T03:04:05Z", "checksum": "abc", "pinned": true},
    "half": {"package_id": "half", "installed_version": "2.0.0"},
    "junk": "not an object"
  }
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)

	rec, err := s.Get("code")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "/p/code", rec.InstallPath)

	for _, id := range []string{"half", "junk"} {
		rec, err := s.Get(id)
		require.NoError(t, err)
		assert.Nil(t, rec, id)
	}
}

func TestFileStoreMalformedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "installed.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Open(path, zerolog.Nop())
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestFileStoreRejectsIncompleteRecord(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "installed.json"), zerolog.Nop())
	require.NoError(t, err)

	err = s.Put(core.InstallRecord{PackageID: "code"})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestFileStoreRollsBackOnFlushFailure(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), "state")
	s, err := Open(filepath.Join(stateDir, "installed.json"), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Put(record("code", "1.0.0")))

	// replace the state directory with a regular file so every later flush fails
	require.NoError(t, os.RemoveAll(stateDir))
	require.NoError(t, os.WriteFile(stateDir, nil, 0644))

	err = s.Put(record("code", "2.0.0"))
	assert.ErrorIs(t, err, core.ErrFilesystem)
	rec, err := s.Get("code")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "1.0.0", rec.InstalledVersion)

	err = s.Put(record("zed", "1.0.0"))
	assert.ErrorIs(t, err, core.ErrFilesystem)
	rec, err = s.Get("zed")
	require.NoError(t, err)
	assert.Nil(t, rec)

	err = s.Remove("code")
	assert.ErrorIs(t, err, core.ErrFilesystem)
	rec, err = s.Get("code")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestFileStoreConcurrentPuts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "installed.json")
	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Put(record(fmt.Sprintf("pkg-%02d", i), "1.0.0")))
		}(i)
	}
	wg.Wait()

	reopened, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	list, err := reopened.List()
	require.NoError(t, err)
	assert.Len(t, list, n)
}

func TestMemoryStore(t *testing.T) {
	var s core.Store = NewMemory()

	require.NoError(t, s.Put(record("b", "1")))
	require.NoError(t, s.Put(record("a", "1")))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].PackageID)

	require.NoError(t, s.Remove("a"))
	rec, err := s.Get("a")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
