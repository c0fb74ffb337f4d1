package cmap

import (
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultShardCount is the default number of shards.
const DefaultShardCount = 64

// Map is a concurrent-safe sharded map.
type Map[V any] struct {
	shards    []*shard[V]
	shardMask uint32
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// New creates a new sharded map with the default shard count.
func New[V any]() *Map[V] {
	return NewWithShards[V](DefaultShardCount)
}

// NewWithShards creates a new sharded map with the specified shard count.
// shardCount must be a power of 2; other values fall back to the default.
func NewWithShards[V any](shardCount int) *Map[V] {
	if shardCount <= 0 || shardCount&(shardCount-1) != 0 {
		shardCount = DefaultShardCount
	}

	m := &Map[V]{
		shards:    make([]*shard[V], shardCount),
		shardMask: uint32(shardCount - 1),
	}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

// hashKey uses the streaming digest. murmur3.Sum32 walks the input with
// uintptr arithmetic that -race builds reject under checkptr.
func hashKey(key string) uint32 {
	h := murmur3.New32()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}

func (m *Map[V]) getShard(key string) *shard[V] {
	return m.shards[hashKey(key)&m.shardMask]
}

// Get retrieves a value by key.
func (m *Map[V]) Get(key string) (V, bool) {
	s := m.getShard(key)
	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	return v, ok
}

// Set stores a key-value pair.
func (m *Map[V]) Set(key string, value V) {
	s := m.getShard(key)
	s.mu.Lock()
	s.items[key] = value
	s.mu.Unlock()
}

// SetIfAbsent stores value only if key is not present.
// It reports whether the value was stored.
func (m *Map[V]) SetIfAbsent(key string, value V) bool {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; ok {
		return false
	}
	s.items[key] = value
	return true
}

// GetOrCreate returns the value for key, creating it with create if absent.
// The fast path takes only the shard read lock. create runs under the shard
// write lock and must not touch the map.
func (m *Map[V]) GetOrCreate(key string, create func() V) V {
	s := m.getShard(key)
	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	if ok {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok = s.items[key]; ok {
		return v
	}
	v = create()
	s.items[key] = v
	return v
}

// Delete removes a key.
func (m *Map[V]) Delete(key string) {
	s := m.getShard(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// CompareAndDelete removes key only while match reports true for its value.
func (m *Map[V]) CompareAndDelete(key string, match func(V) bool) bool {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if !ok || !match(v) {
		return false
	}
	delete(s.items, key)
	return true
}

// DeleteIf removes every entry for which pred returns true, one shard at a
// time, and returns the number removed.
func (m *Map[V]) DeleteIf(pred func(key string, value V) bool) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k, v := range s.items {
			if pred(k, v) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Range calls fn for each entry until fn returns false. Each shard is
// snapshotted under its read lock, so fn may safely call back into the map.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		keys := make([]string, 0, len(s.items))
		vals := make([]V, 0, len(s.items))
		for k, v := range s.items {
			keys = append(keys, k)
			vals = append(vals, v)
		}
		s.mu.RUnlock()

		for i := range keys {
			if !fn(keys[i], vals[i]) {
				return
			}
		}
	}
}

// Len returns the total number of items.
func (m *Map[V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// ShardCount returns the number of shards.
func (m *Map[V]) ShardCount() int {
	return len(m.shards)
}
