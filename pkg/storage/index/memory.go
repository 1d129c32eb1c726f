package index

import (
	"cmp"
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"
)

const memoryDegree = 32

type memoryItem[K cmp.Ordered, V any] struct {
	key   K
	value V
}

// MemoryIndexer is an in-memory B-tree implementation of Indexer
type MemoryIndexer[K cmp.Ordered, V any] struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[memoryItem[K, V]]
}

// NewMemoryIndexer creates a new in-memory indexer
func NewMemoryIndexer[K cmp.Ordered, V any]() *MemoryIndexer[K, V] {
	return &MemoryIndexer[K, V]{
		tree: newTree[K, V](),
	}
}

func newTree[K cmp.Ordered, V any]() *btree.BTreeG[memoryItem[K, V]] {
	return btree.NewG(memoryDegree, func(a, b memoryItem[K, V]) bool {
		return a.key < b.key
	})
}

func (m *MemoryIndexer[K, V]) Put(_ context.Context, key K, value V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.ReplaceOrInsert(memoryItem[K, V]{key: key, value: value})
	return nil
}

func (m *MemoryIndexer[K, V]) Get(_ context.Context, key K) (V, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.tree.Get(memoryItem[K, V]{key: key})
	if !ok {
		var zero V
		return zero, fmt.Errorf("get %v: %w", key, ErrNotFound)
	}
	return item.value, nil
}

func (m *MemoryIndexer[K, V]) Delete(_ context.Context, key K) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, existed := m.tree.Delete(memoryItem[K, V]{key: key})
	return existed, nil
}

func (m *MemoryIndexer[K, V]) Iterate(ctx context.Context, fn func(key K, value V) error) error {
	// Snapshot under the lock so fn may call Put/Delete without deadlocking.
	m.mu.RLock()
	items := make([]memoryItem[K, V], 0, m.tree.Len())
	m.tree.Ascend(func(item memoryItem[K, V]) bool {
		items = append(items, item)
		return true
	})
	m.mu.RUnlock()

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(item.key, item.value); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryIndexer[K, V]) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len(), nil
}

func (m *MemoryIndexer[K, V]) Close() error {
	return nil
}

func (m *MemoryIndexer[K, V]) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree = newTree[K, V]()
	return nil
}

func (m *MemoryIndexer[K, V]) Sync() error {
	return nil
}
