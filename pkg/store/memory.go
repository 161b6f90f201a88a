package store

import (
	"errors"
	"sync"

	"github.com/arc-language/benpak/pkg/core"
)

// MemoryStore is a non-persistent Store
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]core.InstallRecord
}

// NewMemory returns an empty MemoryStore
func NewMemory() *MemoryStore {
	return &MemoryStore{records: make(map[string]core.InstallRecord)}
}

func (m *MemoryStore) Get(packageID string) (*core.InstallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[packageID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Put(record core.InstallRecord) error {
	if !record.Complete() {
		return core.E(core.KindConfiguration, "saving install record", errors.New("record is missing required fields"))
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[record.PackageID] = record
	return nil
}

func (m *MemoryStore) Remove(packageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, packageID)
	return nil
}

func (m *MemoryStore) List() ([]core.InstallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return sortedRecords(m.records), nil
}
