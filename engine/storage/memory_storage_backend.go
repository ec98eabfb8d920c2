package storage

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	key       string
	entry     *Entry
	expiresAt time.Time
}

// memoryStorageBackend keeps entries in an LRU list.
type memoryStorageBackend struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

var _ storageBackend = &memoryStorageBackend{}

func newMemoryStorageBackend(capacity int) *memoryStorageBackend {
	return &memoryStorageBackend{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (b *memoryStorageBackend) get(_ context.Context, key string) (*Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	el, ok := b.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	item := el.Value.(*memoryItem)
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		b.order.Remove(el)
		delete(b.items, key)
		return nil, ErrNotFound
	}
	b.order.MoveToFront(el)
	return item.entry, nil
}

func (b *memoryStorageBackend) set(_ context.Context, key string, entry *Entry, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	if el, ok := b.items[key]; ok {
		item := el.Value.(*memoryItem)
		item.entry = entry
		item.expiresAt = expiresAt
		b.order.MoveToFront(el)
		return nil
	}

	b.items[key] = b.order.PushFront(&memoryItem{key: key, entry: entry, expiresAt: expiresAt})
	for b.capacity > 0 && b.order.Len() > b.capacity {
		oldest := b.order.Back()
		b.order.Remove(oldest)
		delete(b.items, oldest.Value.(*memoryItem).key)
	}
	return nil
}

func (b *memoryStorageBackend) delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if el, ok := b.items[key]; ok {
		b.order.Remove(el)
		delete(b.items, key)
	}
	return nil
}

func (b *memoryStorageBackend) clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = make(map[string]*list.Element)
	b.order.Init()
	return nil
}

func (b *memoryStorageBackend) close() error {
	return b.clear(context.Background())
}
