// internal/cache/store.go
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Store is an in-process TTL cache. One instance is built at startup and passed to
// whatever needs it.
type Store struct {
	cache *gocache.Cache
	group singleflight.Group
	ttl   time.Duration
}

// NewStore builds a store whose entries expire after ttl. Zero ttl keeps entries forever.
func NewStore(ttl time.Duration) *Store {
	expiration := ttl
	cleanup := ttl * 2
	if ttl <= 0 {
		expiration = gocache.NoExpiration
		cleanup = 0
	}
	return &Store{
		cache: gocache.New(expiration, cleanup),
		ttl:   ttl,
	}
}

// Get returns a cached value
func (s *Store) Get(key string) (interface{}, bool) {
	return s.cache.Get(key)
}

// Set stores a value with the default ttl
func (s *Store) Set(key string, value interface{}) {
	s.cache.SetDefault(key, value)
}

// Delete drops one key
func (s *Store) Delete(key string) {
	s.cache.Delete(key)
}

// Flush drops everything
func (s *Store) Flush() {
	s.cache.Flush()
}

// Len returns the number of cached items, expired ones included until cleanup runs
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

// GetOrLoad returns the cached value for key or calls load once, however many callers
// ask for the same key concurrently. Failed loads are not cached.
func (s *Store) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (interface{}, error)) (interface{}, bool, error) {
	if v, ok := s.cache.Get(key); ok {
		return v, true, nil
	}
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		if v, ok := s.cache.Get(key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		s.cache.SetDefault(key, v)
		return v, nil
	})
	return v, false, err
}
