package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryBackend keeps records in process memory. Entries also carry a hard
// expiry inside go-cache so an idle process does not grow without bound.
type MemoryBackend struct {
	items *gocache.Cache
}

// NewMemoryBackend creates an in-memory backend. A non-positive hardTTL keeps
// entries until they are swept or deleted.
func NewMemoryBackend(hardTTL time.Duration) *MemoryBackend {
	if hardTTL <= 0 {
		return &MemoryBackend{items: gocache.New(gocache.NoExpiration, 0)}
	}
	return &MemoryBackend{items: gocache.New(hardTTL, hardTTL)}
}

func (b *MemoryBackend) Load(_ context.Context, key string) (*Record, error) {
	v, ok := b.items.Get(key)
	if !ok {
		return nil, nil
	}
	rec, ok := v.(Record)
	if !ok {
		return nil, ErrCorrupt
	}
	return &rec, nil
}

func (b *MemoryBackend) Store(_ context.Context, key string, rec Record) error {
	b.items.Set(key, rec, gocache.DefaultExpiration)
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.items.Delete(key)
	return nil
}

func (b *MemoryBackend) Keys(_ context.Context) ([]string, error) {
	items := b.items.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return keys, nil
}
