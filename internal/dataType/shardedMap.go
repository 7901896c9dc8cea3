package dataType

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const DefaultShardCount = 32

// Hasher maps a key to the 64-bit hash used to pick its shard.
type Hasher[K comparable] func(K) uint64

func HashString(key string) uint64 {
	return xxhash.Sum64String(key)
}

func HashInt64(key int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	return xxhash.Sum64(buf[:])
}

type mapShard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// ShardedMap is a concurrent map split into independently locked shards.
// Every operation on a single key is atomic; there is no map-wide lock.
type ShardedMap[K comparable, V any] struct {
	shards     []*mapShard[K, V]
	shardCount uint64
	hash       Hasher[K]
}

func NewShardedMap[K comparable, V any](shardCount int, hash Hasher[K]) *ShardedMap[K, V] {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	sm := &ShardedMap[K, V]{
		shards:     make([]*mapShard[K, V], shardCount),
		shardCount: uint64(shardCount),
		hash:       hash,
	}
	for i := 0; i < shardCount; i++ {
		sm.shards[i] = &mapShard[K, V]{items: make(map[K]V)}
	}
	return sm
}

func (sm *ShardedMap[K, V]) getShard(key K) *mapShard[K, V] {
	return sm.shards[sm.hash(key)%sm.shardCount]
}

func (sm *ShardedMap[K, V]) Load(key K) (V, bool) {
	shard := sm.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	v, ok := shard.items[key]
	return v, ok
}

func (sm *ShardedMap[K, V]) Store(key K, value V) {
	shard := sm.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.items[key] = value
}

// LoadOrStore returns the existing value for key if present. Otherwise it
// stores value and reports loaded=false. Exactly one of any number of
// concurrent callers for the same key observes loaded=false.
func (sm *ShardedMap[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	shard := sm.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if existing, ok := shard.items[key]; ok {
		return existing, true
	}
	shard.items[key] = value
	return value, false
}

func (sm *ShardedMap[K, V]) LoadAndDelete(key K) (V, bool) {
	shard := sm.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	v, ok := shard.items[key]
	if ok {
		delete(shard.items, key)
	}
	return v, ok
}

func (sm *ShardedMap[K, V]) Delete(key K) {
	shard := sm.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.items, key)
}

// Compute replaces the value for key with fn(old, present) under the shard
// lock. When fn returns keep=false the key is removed.
func (sm *ShardedMap[K, V]) Compute(key K, fn func(old V, present bool) (updated V, keep bool)) V {
	shard := sm.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	old, present := shard.items[key]
	updated, keep := fn(old, present)
	if keep {
		shard.items[key] = updated
	} else {
		delete(shard.items, key)
	}
	return updated
}

// Range calls fn for every entry, one shard at a time. The view is not a
// consistent snapshot across shards. fn must not call back into the map.
func (sm *ShardedMap[K, V]) Range(fn func(key K, value V) bool) {
	for _, shard := range sm.shards {
		shard.mu.RLock()
		for k, v := range shard.items {
			if !fn(k, v) {
				shard.mu.RUnlock()
				return
			}
		}
		shard.mu.RUnlock()
	}
}

func (sm *ShardedMap[K, V]) Keys() []K {
	keys := make([]K, 0, sm.Len())
	sm.Range(func(k K, _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

func (sm *ShardedMap[K, V]) Len() int {
	n := 0
	for _, shard := range sm.shards {
		shard.mu.RLock()
		n += len(shard.items)
		shard.mu.RUnlock()
	}
	return n
}
