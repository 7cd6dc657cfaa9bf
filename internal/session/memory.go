package session

import (
	"context"
	"sync"

	"insurance-agent/internal/domain"
)

// MemoryStore keeps encoded sessions in a map. Records go through the same
// codec as the remote stores so callers never share state with the store.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string][]byte
	verified map[string]bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte), verified: make(map[string]bool)}
}

func (m *MemoryStore) Load(_ context.Context, key string) (*domain.Session, error) {
	m.mu.Lock()
	raw, ok := m.records[key]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return Decode(raw)
}

func (m *MemoryStore) Save(_ context.Context, key string, s *domain.Session) error {
	raw, err := Encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.records[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	return nil
}

// Put stores raw bytes under key, bypassing the codec.
func (m *MemoryStore) Put(key string, raw []byte) {
	m.mu.Lock()
	m.records[key] = raw
	m.mu.Unlock()
}

func (m *MemoryStore) HasVerified(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verified[key], nil
}

// MarkVerified survives Clear, like the remote markers.
func (m *MemoryStore) MarkVerified(_ context.Context, key string) error {
	m.mu.Lock()
	m.verified[key] = true
	m.mu.Unlock()
	return nil
}
