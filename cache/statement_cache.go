// Package cache provides the concurrency-safe caches shared by compile
// tasks: prepared statement descriptions and catalog types.
package cache

import (
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Loader produces a value on a cache miss.
type Loader[V any] func() (V, error)

// StatementCache is an LRU of values keyed by K. Concurrent misses on the
// same key share one load. Failed loads are not cached.
type StatementCache[K comparable, V any] struct {
	cache  *lru.Cache[K, V]
	group  singleflight.Group
	onMiss func(K)
}

// NewStatementCache creates a cache holding at most size entries.
func NewStatementCache[K comparable, V any](size int) (*StatementCache[K, V], error) {
	c, err := lru.New[K, V](size)
	if err != nil {
		return nil, fmt.Errorf("statement cache: %w", err)
	}
	return &StatementCache[K, V]{cache: c}, nil
}

// OnMiss registers a hook called before each load.
func (s *StatementCache[K, V]) OnMiss(fn func(K)) {
	s.onMiss = fn
}

// Get returns the cached value for key.
func (s *StatementCache[K, V]) Get(key K) (V, bool) {
	return s.cache.Get(key)
}

// Set stores a value.
func (s *StatementCache[K, V]) Set(key K, v V) {
	s.cache.Add(key, v)
}

// GetOrLoad returns the cached value for key, calling load on a miss.
func (s *StatementCache[K, V]) GetOrLoad(key K, load Loader[V]) (V, error) {
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}

	res, err, _ := s.group.Do(flightKey(key), func() (any, error) {
		// Double-check: another flight may have filled it.
		if v, ok := s.cache.Get(key); ok {
			return v, nil
		}
		if s.onMiss != nil {
			s.onMiss(key)
		}
		v, err := load()
		if err != nil {
			return v, err
		}
		s.cache.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Len returns the number of cached entries.
func (s *StatementCache[K, V]) Len() int {
	return s.cache.Len()
}

func flightKey(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case uint64:
		return strconv.FormatUint(k, 16)
	case uint32:
		return strconv.FormatUint(uint64(k), 10)
	default:
		return fmt.Sprint(k)
	}
}
