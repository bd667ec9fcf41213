package object

import (
	"context"
	"sort"
	"sync"
)

// Record is one stored object as a backend sees it: its reference and the
// payload bytes, which are a zstd frame when Ref.Compressed is set.
type Record struct {
	Ref     ObjectRef
	Payload []byte
}

// Backend is the raw key-value persistence behind a Store. Implementations
// must make Put idempotent: putting a hash that already exists reports
// written=false and leaves the stored record untouched.
type Backend interface {
	Put(ctx context.Context, rec Record) (written bool, err error)
	// Get returns nil without error when h is absent.
	Get(ctx context.Context, h Hash) (*Record, error)
	Has(ctx context.Context, h Hash) (bool, error)
	// Walk calls fn for every stored object in hash order.
	Walk(ctx context.Context, fn func(ObjectRef) error) error
	Close() error
}

// MemoryBackend keeps objects in a map. It counts physical writes so
// deduplication can be observed.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[Hash]Record
	writes  int
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[Hash]Record)}
}

func (m *MemoryBackend) Put(ctx context.Context, rec Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.Ref.SHA256]; ok {
		return false, nil
	}
	payload := make([]byte, len(rec.Payload))
	copy(payload, rec.Payload)
	m.records[rec.Ref.SHA256] = Record{Ref: rec.Ref, Payload: payload}
	m.writes++
	return true, nil
}

func (m *MemoryBackend) Get(ctx context.Context, h Hash) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	rec, ok := m.records[h]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	payload := make([]byte, len(rec.Payload))
	copy(payload, rec.Payload)
	return &Record{Ref: rec.Ref, Payload: payload}, nil
}

func (m *MemoryBackend) Has(ctx context.Context, h Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	_, ok := m.records[h]
	m.mu.RUnlock()
	return ok, nil
}

func (m *MemoryBackend) Walk(ctx context.Context, fn func(ObjectRef) error) error {
	m.mu.RLock()
	refs := make([]ObjectRef, 0, len(m.records))
	for _, rec := range m.records {
		refs = append(refs, rec.Ref)
	}
	m.mu.RUnlock()
	sort.Slice(refs, func(i, j int) bool { return refs[i].SHA256 < refs[j].SHA256 })

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ref); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// Writes returns how many records were physically stored.
func (m *MemoryBackend) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Len returns the number of stored records.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Corrupt replaces the payload stored under h. It exists for integrity tests
// and audit tooling exercises.
func (m *MemoryBackend) Corrupt(h Hash, payload []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[h]
	if !ok {
		return false
	}
	rec.Payload = append([]byte(nil), payload...)
	rec.Ref.Size = uint64(len(payload))
	rec.Ref.Compressed = false
	m.records[h] = rec
	return true
}
