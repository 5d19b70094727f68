package dedup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRememberThenSeen(t *testing.T) {
	cache := New(10)

	assert.False(t, cache.Seen("msg-1"))
	cache.Remember("msg-1")
	assert.True(t, cache.Seen("msg-1"))

	// Remembering twice must not grow the window
	cache.Remember("msg-1")
	assert.Equal(t, 1, cache.Len())
}

func TestSeenOrRemember(t *testing.T) {
	cache := New(10)

	assert.False(t, cache.SeenOrRemember("msg-1"))
	assert.True(t, cache.SeenOrRemember("msg-1"))
	assert.True(t, cache.Seen("msg-1"))
}

func TestEvictionBound(t *testing.T) {
	cache := New(DefaultCapacity)

	for i := 0; i < DefaultCapacity+1; i++ {
		cache.Remember(fmt.Sprintf("msg-%d", i))
	}

	// Crossing the cap drops a whole batch of the oldest entries
	assert.LessOrEqual(t, cache.Len(), DefaultCapacity)
	for i := 0; i < 100; i++ {
		assert.False(t, cache.Seen(fmt.Sprintf("msg-%d", i)), "oldest ids must have been evicted")
	}

	// Newest entries survive
	assert.True(t, cache.Seen(fmt.Sprintf("msg-%d", DefaultCapacity)))
}

func TestEvictionIsInsertionOrdered(t *testing.T) {
	cache := New(200)

	for i := 0; i < 150; i++ {
		cache.Remember(fmt.Sprintf("msg-%d", i))
	}
	// Re-reading old ids must not refresh their position
	for i := 0; i < 50; i++ {
		cache.Seen(fmt.Sprintf("msg-%d", i))
	}
	for i := 150; i < 201; i++ {
		cache.Remember(fmt.Sprintf("msg-%d", i))
	}

	// The accessed-but-old ids are still the first to go
	for i := 0; i < 50; i++ {
		assert.False(t, cache.Seen(fmt.Sprintf("msg-%d", i)))
	}
	assert.True(t, cache.Seen("msg-200"))
}

func TestZeroCapacityFallsBackToDefault(t *testing.T) {
	cache := New(0)
	cache.Remember("msg-1")
	assert.True(t, cache.Seen("msg-1"))
}
