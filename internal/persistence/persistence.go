// Package persistence stores opaque snapshot blobs. The substrate decides
// what goes into a snapshot; this package only moves bytes.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when a key holds nothing.
var ErrNotFound = errors.New("persistence: key not found")

// Store is the minimal key-value contract the substrate persists through.
// Absence of a store degrades snapshots, nothing else.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Snapshot is the durable state bundle. Component payloads stay opaque
// here; each owner marshals its own section.
type Snapshot struct {
	TakenAt           time.Time       `json:"taken_at"`
	Seed              string          `json:"seed"`
	SequenceCursor    int64           `json:"sequence_cursor"`
	Shards            json.RawMessage `json:"shards,omitempty"`
	Links             json.RawMessage `json:"links,omitempty"`
	ConstitutionRules json.RawMessage `json:"constitution_rules,omitempty"`
	Amendments        json.RawMessage `json:"amendments,omitempty"`
	Submissions       json.RawMessage `json:"submissions,omitempty"`
	RecentHashes      []string        `json:"recent_hashes,omitempty"`
}

// SaveSnapshot marshals and writes a snapshot under key.
func SaveSnapshot(ctx context.Context, s Store, key string, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("persistence: marshal snapshot: %w", err)
	}
	return s.Put(ctx, key, raw)
}

// LoadSnapshot reads and unmarshals a snapshot from key.
func LoadSnapshot(ctx context.Context, s Store, key string) (Snapshot, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("persistence: unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Memory is an in-process Store for tests and hosts without durability.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Close() error { return nil }
