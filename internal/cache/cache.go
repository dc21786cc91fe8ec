// Package cache provides the content-addressed finding cache. Entries
// are keyed by (file path, content hash, plugin key): the key already
// encodes content identity, so the store is purely additive and needs
// no invalidation protocol. A plugin key includes the plugin version,
// so upgrading a plugin implicitly invalidates its cached findings.
package cache

import (
	"container/list"
	"context"
	"hash/fnv"
	"sync"

	"github.com/codesweep/codesweep/internal/finding"
)

// Store is the cache contract. Get returns (findings, true) on a hit.
// Put is idempotent: a later Put for the same key overwrites silently,
// since plugin output for identical content is assumed deterministic.
// Implementations must allow concurrent Get/Put on different keys
// without blocking each other.
type Store interface {
	Get(ctx context.Context, file, contentHash, pluginKey string) ([]finding.Finding, bool, error)
	Put(ctx context.Context, file, contentHash, pluginKey string, findings []finding.Finding) error
	Close() error
}

const memoryShards = 16

// MemoryStore is an in-process Store: a sharded map with per-shard
// locking and a bounded LRU per shard. Used for single-run scans and
// as the fallback when the SQLite store cannot be opened.
type MemoryStore struct {
	shards [memoryShards]*memoryShard
}

type memoryShard struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	maxEntries int
}

type memoryEntry struct {
	key      string
	findings []finding.Finding
}

// DefaultMemoryEntries bounds the total entry count of a MemoryStore.
const DefaultMemoryEntries = 4096

// NewMemoryStore creates a MemoryStore holding at most maxEntries
// entries (DefaultMemoryEntries when maxEntries <= 0).
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryEntries
	}
	perShard := maxEntries / memoryShards
	if perShard < 1 {
		perShard = 1
	}
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &memoryShard{
			entries:    make(map[string]*list.Element),
			order:      list.New(),
			maxEntries: perShard,
		}
	}
	return s
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, file, contentHash, pluginKey string) ([]finding.Finding, bool, error) {
	key := entryKey(file, contentHash, pluginKey)
	shard := s.shard(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	elem, ok := shard.entries[key]
	if !ok {
		return nil, false, nil
	}
	shard.order.MoveToFront(elem)

	cached := elem.Value.(*memoryEntry).findings
	out := make([]finding.Finding, len(cached))
	copy(out, cached)
	return out, true, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, file, contentHash, pluginKey string, findings []finding.Finding) error {
	key := entryKey(file, contentHash, pluginKey)
	shard := s.shard(key)

	stored := make([]finding.Finding, len(findings))
	copy(stored, findings)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if elem, ok := shard.entries[key]; ok {
		elem.Value.(*memoryEntry).findings = stored
		shard.order.MoveToFront(elem)
		return nil
	}

	elem := shard.order.PushFront(&memoryEntry{key: key, findings: stored})
	shard.entries[key] = elem

	if shard.order.Len() > shard.maxEntries {
		oldest := shard.order.Back()
		if oldest != nil {
			shard.order.Remove(oldest)
			delete(shard.entries, oldest.Value.(*memoryEntry).key)
		}
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) shard(key string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%memoryShards]
}

func entryKey(file, contentHash, pluginKey string) string {
	return file + "\x00" + contentHash + "\x00" + pluginKey
}
