package cas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_BasicOperation(t *testing.T) {
	cache := NewLRU[string](3)

	h1 := HashBytes([]byte("one"))
	h2 := HashBytes([]byte("two"))
	h3 := HashBytes([]byte("three"))
	h4 := HashBytes([]byte("four"))

	cache.Add(h1, "one")
	cache.Add(h2, "two")
	cache.Add(h3, "three")

	// Touch h1 so h2 becomes the oldest entry.
	v, ok := cache.Get(h1)
	require.True(t, ok)
	assert.Equal(t, "one", v)

	cache.Add(h4, "four")

	_, ok = cache.Get(h2)
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = cache.Get(h1)
	assert.True(t, ok)

	stats := cache.Stats()
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, 3, stats.MaxSize)
	assert.Equal(t, 2, stats.Hits)
	assert.Equal(t, 1, stats.Misses)
}

func TestLRU_DefaultSize(t *testing.T) {
	cache := NewLRU[int](0)
	assert.Equal(t, 1000, cache.Stats().MaxSize)
}

func TestMemoryCAS_Dedupe(t *testing.T) {
	m := NewMemoryCAS()
	a, err := m.Put([]byte{1, 2, 3})
	require.NoError(t, err)
	b, err := m.Put([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Has(a))

	data, err := Retrieve(m, a)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	_, err = Retrieve(m, Hash(42))
	assert.Error(t, err)
}
