package sync

import (
	"sync"
)

// KeyedMutex provides per-resource mutual exclusion using sharded mutexes.
// Operations are distributed across a fixed set of shards based on a hash of
// the resource key, so two operations on the same key always serialize while
// unrelated keys rarely contend.
type KeyedMutex struct {
	shards [64]sync.Mutex
}

// NewKeyedMutex creates a KeyedMutex with 64 shards.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{}
}

// Lock acquires the lock for the given key's shard.
// Empty keys default to shard 0.
func (m *KeyedMutex) Lock(key string) {
	m.shards[m.shardFor(key)].Lock()
}

// Unlock releases the lock for the given key's shard.
// Empty keys default to shard 0.
func (m *KeyedMutex) Unlock(key string) {
	m.shards[m.shardFor(key)].Unlock()
}

// shardFor returns the shard index for the given key.
func (m *KeyedMutex) shardFor(key string) int {
	if key == "" {
		return 0
	}
	return int(hashString(key) % uint32(len(m.shards)))
}

// hashString provides a simple multiplicative hash for shard selection.
func hashString(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}
