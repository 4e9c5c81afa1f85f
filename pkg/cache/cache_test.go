package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetAndPut(t *testing.T) {
	c := New[string](10)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Put("a", "value-a", 1)
	c.Put("b", "value-b", 2)

	actual, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "value-a", actual)
	assert.Equal(t, 3, c.Weight())
	assert.Equal(t, 2, c.Len())

	c.Put("a", "updated", 4)
	actual, ok = c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "updated", actual)
	assert.Equal(t, 6, c.Weight())
	assert.Equal(t, 2, c.Len())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int](2)

	c.Put("a", 1, 1)
	c.Put("b", 2, 1)

	// b becomes the least recently used entry
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", 3, 1)

	_, ok = c.Get("b")
	assert.False(t, ok)
	for _, key := range []string{"a", "c"} {
		_, ok = c.Get(key)
		assert.True(t, ok, key)
	}
	assert.Equal(t, 2, c.Weight())
}

func TestCache_EvictsByWeight(t *testing.T) {
	c := New[int](5)

	c.Put("a", 1, 2)
	c.Put("b", 2, 2)
	c.Put("c", 3, 3)

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 5, c.Weight())

	c.Put("heavy", 4, 6)
	_, ok = c.Get("heavy")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Weight())
	assert.Equal(t, 0, c.Len())
}

func TestCache_Remove(t *testing.T) {
	c := New[string](3)

	c.Put("a", "value-a", 1)
	c.Put("b", "value-b", 2)

	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
	assert.Equal(t, 2, c.Weight())

	_, ok := c.Get("a")
	assert.False(t, ok)

	// The freed weight is available again
	c.Put("c", "value-c", 1)
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestCache_Concurrent(t *testing.T) {
	c := New[int](100)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			for j := 0; j < 500; j++ {
				key := fmt.Sprintf("%d:%d", worker, j%50)
				c.Put(key, j, 1)
				c.Get(key)
				if j%7 == 0 {
					c.Remove(key)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Weight(), 100)
	assert.Equal(t, c.Weight(), c.Len())
}
