// Package shard provides a partitioned in-memory store. Each shard owns its
// own lock, so mutations against different shard keys never contend. The
// heavily concurrent ingestion path (writes partitioned by lane or domain)
// is the reason there is no global lock.
package shard

import "sync"

// Store is a generic sharded map. A shardKeyFn supplied at construction
// routes each value to its partition.
type Store[V any] struct {
	keyFn func(V) string

	mu     sync.RWMutex // guards the shard directory, not shard contents
	shards map[string]*partition[V]
	order  []string // shard insertion order, for full scans
}

type partition[V any] struct {
	mu    sync.RWMutex
	items map[string]V
	order []string // id insertion order
}

// New creates a Store routed by keyFn.
func New[V any](keyFn func(V) string) *Store[V] {
	return &Store[V]{
		keyFn:  keyFn,
		shards: make(map[string]*partition[V]),
	}
}

func (s *Store[V]) partitionFor(key string) *partition[V] {
	s.mu.RLock()
	p, ok := s.shards[key]
	s.mu.RUnlock()
	if ok {
		return p
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok = s.shards[key]; ok {
		return p
	}
	p = &partition[V]{items: make(map[string]V)}
	s.shards[key] = p
	s.order = append(s.order, key)
	return p
}

// Put stores value under id in the shard chosen by the shard key function.
func (s *Store[V]) Put(id string, value V) {
	p := s.partitionFor(s.keyFn(value))
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.items[id]; !exists {
		p.order = append(p.order, id)
	}
	p.items[id] = value
}

// GetIn looks up id inside a single shard.
func (s *Store[V]) GetIn(shardKey, id string) (V, bool) {
	s.mu.RLock()
	p, ok := s.shards[shardKey]
	s.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.items[id]
	return v, ok
}

// Get looks up id without a shard key, scanning shards in insertion order.
func (s *Store[V]) Get(id string) (V, bool) {
	s.mu.RLock()
	keys := append([]string(nil), s.order...)
	s.mu.RUnlock()
	for _, k := range keys {
		if v, ok := s.GetIn(k, id); ok {
			return v, true
		}
	}
	var zero V
	return zero, false
}

// Update applies fn to the value stored under id and writes the result
// back, all under the owning partition's write lock, so the
// read-modify-write is atomic with respect to every other access of that
// shard. When the returned value routes to a different shard it is
// re-homed there; the move itself spans two partitions and the value is
// briefly absent in between. Returns whether id was found.
func (s *Store[V]) Update(id string, fn func(V) V) bool {
	s.mu.RLock()
	keys := append([]string(nil), s.order...)
	s.mu.RUnlock()
	for _, k := range keys {
		s.mu.RLock()
		p := s.shards[k]
		s.mu.RUnlock()
		if p == nil {
			continue
		}
		p.mu.Lock()
		v, ok := p.items[id]
		if !ok {
			p.mu.Unlock()
			continue
		}
		nv := fn(v)
		if s.keyFn(nv) == k {
			p.items[id] = nv
			p.mu.Unlock()
			return true
		}
		delete(p.items, id)
		for i, existing := range p.order {
			if existing == id {
				p.order = append(p.order[:i], p.order[i+1:]...)
				break
			}
		}
		p.mu.Unlock()
		s.Put(id, nv)
		return true
	}
	return false
}

// Delete removes id. With a shard key the delete touches one shard;
// without, all shards are scanned. Returns whether anything was removed.
func (s *Store[V]) Delete(id string, shardKey ...string) bool {
	if len(shardKey) > 0 {
		s.mu.RLock()
		p, ok := s.shards[shardKey[0]]
		s.mu.RUnlock()
		if !ok {
			return false
		}
		return p.delete(id)
	}
	s.mu.RLock()
	keys := append([]string(nil), s.order...)
	s.mu.RUnlock()
	for _, k := range keys {
		s.mu.RLock()
		p := s.shards[k]
		s.mu.RUnlock()
		if p != nil && p.delete(id) {
			return true
		}
	}
	return false
}

func (p *partition[V]) delete(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.items[id]; !ok {
		return false
	}
	delete(p.items, id)
	for i, existing := range p.order {
		if existing == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

// QueryShard returns up to limit values from one shard, in insertion order,
// for which filter returns true. A nil filter matches everything; a
// non-positive limit means no limit.
func (s *Store[V]) QueryShard(shardKey string, filter func(V) bool, limit int) []V {
	s.mu.RLock()
	p, ok := s.shards[shardKey]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []V
	for _, id := range p.order {
		v := p.items[id]
		if filter != nil && !filter(v) {
			continue
		}
		out = append(out, v)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// All returns every value across all shards in shard, then insertion, order.
func (s *Store[V]) All() []V {
	s.mu.RLock()
	keys := append([]string(nil), s.order...)
	s.mu.RUnlock()
	var out []V
	for _, k := range keys {
		out = append(out, s.QueryShard(k, nil, 0)...)
	}
	return out
}

// ListShards returns shard keys in insertion order.
func (s *Store[V]) ListShards() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// TotalSize returns the number of values across all shards.
func (s *Store[V]) TotalSize() int {
	s.mu.RLock()
	keys := append([]string(nil), s.order...)
	s.mu.RUnlock()
	total := 0
	for _, k := range keys {
		s.mu.RLock()
		p := s.shards[k]
		s.mu.RUnlock()
		p.mu.RLock()
		total += len(p.items)
		p.mu.RUnlock()
	}
	return total
}

// Export returns a copy of the full contents keyed by shard then id.
func (s *Store[V]) Export() map[string]map[string]V {
	out := make(map[string]map[string]V)
	for _, k := range s.ListShards() {
		s.mu.RLock()
		p := s.shards[k]
		s.mu.RUnlock()
		p.mu.RLock()
		m := make(map[string]V, len(p.items))
		for id, v := range p.items {
			m[id] = v
		}
		p.mu.RUnlock()
		out[k] = m
	}
	return out
}

// Import merges exported contents back in. Values are re-routed through the
// shard key function, so an export from a store with a different routing
// still lands consistently.
func (s *Store[V]) Import(data map[string]map[string]V) {
	for _, items := range data {
		for id, v := range items {
			s.Put(id, v)
		}
	}
}
