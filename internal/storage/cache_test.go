package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache(2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	// touch "a" so "b" is the eviction candidate
	_, ok := c.Get("a")
	assert.True(t, ok)

	c.Set("c", 3)

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestLRUCache_ExpiredEntriesDropOnAccess(t *testing.T) {
	c := NewLRUCache(10, -time.Second)

	c.Set("hash", "record")
	_, ok := c.Get("hash")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRUCache_DeleteRemovesEntry(t *testing.T) {
	c := NewLRUCache(10, time.Minute)

	c.Set("hash", "record")
	c.Delete("hash")

	_, ok := c.Get("hash")
	assert.False(t, ok)
}

func TestLRUCache_SetUpdatesExisting(t *testing.T) {
	c := NewLRUCache(10, time.Minute)

	c.Set("hash", "old")
	c.Set("hash", "new")

	v, ok := c.Get("hash")
	assert.True(t, ok)
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, c.Len())
}

func TestLRUCache_CapacityBound(t *testing.T) {
	c := NewLRUCache(5, time.Minute)

	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("hash-%d", i), i)
	}
	assert.Equal(t, 5, c.Len())
}
