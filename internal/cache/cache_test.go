package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPutAndGet(t *testing.T) {
	c := New(time.Minute)
	c.Put("k", "v")

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestMissOnUnknownKey(t *testing.T) {
	c := New(time.Minute)

	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestEntryExpiresExactlyAtTTL(t *testing.T) {
	c := New(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("k", 42)

	// One tick before the TTL the entry is still served.
	c.now = func() time.Time { return now.Add(time.Minute - time.Millisecond) }
	_, ok := c.Get("k")
	assert.True(t, ok)

	// At the TTL boundary it is a miss and gets evicted.
	c.now = func() time.Time { return now.Add(time.Minute) }
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestPutRefreshesAge(t *testing.T) {
	c := New(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("k", 1)

	c.now = func() time.Time { return now.Add(50 * time.Second) }
	c.Put("k", 2)

	c.now = func() time.Time { return now.Add(90 * time.Second) }
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestClear(t *testing.T) {
	c := New(time.Minute)
	c.Put("a", 1)
	c.Put("b", 2)

	c.Clear("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)

	c.ClearAll()
	assert.Equal(t, 0, c.Len())
}
