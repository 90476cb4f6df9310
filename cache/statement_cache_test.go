package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementCacheGetOrLoad(t *testing.T) {
	c, err := NewStatementCache[uint64, string](4)
	require.NoError(t, err)

	var misses []uint64
	c.OnMiss(func(k uint64) { misses = append(misses, k) })

	v, err := c.GetOrLoad(1, func() (string, error) { return "one", nil })
	require.NoError(t, err)
	assert.Equal(t, "one", v)

	v, err = c.GetOrLoad(1, func() (string, error) { return "other", nil })
	require.NoError(t, err)
	assert.Equal(t, "one", v)
	assert.Equal(t, []uint64{1}, misses)
}

func TestStatementCacheDoesNotCacheErrors(t *testing.T) {
	c, err := NewStatementCache[uint32, int](4)
	require.NoError(t, err)

	_, err = c.GetOrLoad(7, func() (int, error) { return 0, errors.New("boom") })
	assert.EqualError(t, err, "boom")
	_, ok := c.Get(7)
	assert.False(t, ok)

	v, err := c.GetOrLoad(7, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestStatementCacheEvicts(t *testing.T) {
	c, err := NewStatementCache[string, int](2)
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestStatementCacheConcurrentLoads(t *testing.T) {
	c, err := NewStatementCache[uint64, int](16)
	require.NoError(t, err)

	var loads atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad(uint64(i%4), func() (int, error) {
				loads.Add(1)
				return i % 4, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, i%4, v)
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, loads.Load(), int32(32))
	assert.Equal(t, 4, c.Len())
}

func TestNewStatementCacheRejectsSize(t *testing.T) {
	_, err := NewStatementCache[uint64, int](0)
	assert.Error(t, err)
}
