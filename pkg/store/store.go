// Package store persists install records.
package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/arc-language/benpak/pkg/core"
	"github.com/dchest/safefile"
	"github.com/rs/zerolog"
	"go.trai.ch/zerr"
)

const schemaVersion = 1

// fileLayout is the on-disk document. Unknown fields are ignored on read.
type fileLayout struct {
	Schema   int                        `json:"schema"`
	Packages map[string]json.RawMessage `json:"packages"`
}

// FileStore keeps records in memory and rewrites a JSON document atomically on
// every mutation
type FileStore struct {
	path    string
	mu      sync.Mutex
	records map[string]core.InstallRecord
	logger  zerolog.Logger
}

// Open loads the store at path once. A missing file is an empty store.
func Open(path string, logger zerolog.Logger) (*FileStore, error) {
	s := &FileStore{
		path:    filepath.Clean(path),
		records: make(map[string]core.InstallRecord),
		logger:  logger.With().Str("component", "store").Logger(),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return core.E(core.KindFilesystem, "loading version store", zerr.With(zerr.Wrap(err, "read failed"), "path", s.path))
	}
	if len(data) == 0 {
		return nil
	}

	var doc fileLayout
	if err := json.Unmarshal(data, &doc); err != nil {
		return core.E(core.KindConfiguration, "loading version store", zerr.With(zerr.Wrap(err, "malformed document"), "path", s.path))
	}

	for key, raw := range doc.Packages {
		var rec core.InstallRecord
		if err := json.Unmarshal(raw, &rec); err != nil || !rec.Complete() {
			s.logger.Warn().Str("package", key).Msg("ignoring incomplete install record")
			continue
		}
		s.records[rec.PackageID] = rec
	}
	s.logger.Debug().Int("records", len(s.records)).Str("path", s.path).Msg("version store loaded")
	return nil
}

// Get returns nil, nil when packageID has no record
func (s *FileStore) Get(packageID string) (*core.InstallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[packageID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Put stores record and flushes before returning. On flush failure the
// in-memory state is rolled back.
func (s *FileStore) Put(record core.InstallRecord) error {
	if !record.Complete() {
		return core.E(core.KindConfiguration, "saving install record", errors.New("record is missing required fields"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.records[record.PackageID]
	s.records[record.PackageID] = record
	if err := s.flush(); err != nil {
		if had {
			s.records[record.PackageID] = prev
		} else {
			delete(s.records, record.PackageID)
		}
		return err
	}
	return nil
}

// Remove deletes the record for packageID and flushes. Removing an absent
// record is not an error.
func (s *FileStore) Remove(packageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.records[packageID]
	if !had {
		return nil
	}
	delete(s.records, packageID)
	if err := s.flush(); err != nil {
		s.records[packageID] = prev
		return err
	}
	return nil
}

// List returns all records ordered by package id
func (s *FileStore) List() ([]core.InstallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return sortedRecords(s.records), nil
}

// flush must be called with mu held
func (s *FileStore) flush() error {
	doc := fileLayout{
		Schema:   schemaVersion,
		Packages: make(map[string]json.RawMessage, len(s.records)),
	}
	for id, rec := range s.records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return core.E(core.KindFilesystem, "saving version store", zerr.Wrap(err, "marshal record"))
		}
		doc.Packages[id] = raw
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return core.E(core.KindFilesystem, "saving version store", zerr.With(zerr.Wrap(err, "create directory"), "path", s.path))
	}

	f, err := safefile.Create(s.path, 0644)
	if err != nil {
		return core.E(core.KindFilesystem, "saving version store", zerr.With(zerr.Wrap(err, "create file"), "path", s.path))
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&doc); err != nil {
		return core.E(core.KindFilesystem, "saving version store", zerr.With(zerr.Wrap(err, "encode"), "path", s.path))
	}
	if err := f.Commit(); err != nil {
		return core.E(core.KindFilesystem, "saving version store", zerr.With(zerr.Wrap(err, "commit"), "path", s.path))
	}
	return nil
}

func sortedRecords(m map[string]core.InstallRecord) []core.InstallRecord {
	out := make([]core.InstallRecord, 0, len(m))
	for _, rec := range m {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PackageID < out[j].PackageID })
	return out
}
