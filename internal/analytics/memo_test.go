package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportCache_HitAndMiss(t *testing.T) {
	c := newReportCache(30*time.Second, 4)

	_, ok := c.get("requests:7")
	assert.False(t, ok)

	want := &Report{Days: 7}
	c.set("requests:7", want)

	got, ok := c.get("requests:7")
	require.True(t, ok)
	assert.Same(t, want, got)
}

func TestReportCache_TTLExpiry(t *testing.T) {
	c := newReportCache(30*time.Second, 4)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.set("requests:1", &Report{Days: 1})

	now = now.Add(29 * time.Second)
	_, ok := c.get("requests:1")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.get("requests:1")
	assert.False(t, ok, "entry past its TTL is a miss")

	// The expired entry was removed, not just hidden.
	assert.Empty(t, c.entries)
	assert.Zero(t, c.order.Len())
}

func TestReportCache_FIFOEviction(t *testing.T) {
	c := newReportCache(time.Minute, 2)

	c.set("a", &Report{Days: 1})
	c.set("b", &Report{Days: 2})
	c.set("c", &Report{Days: 3})

	_, ok := c.get("a")
	assert.False(t, ok, "oldest entry evicted at the size cap")
	_, ok = c.get("b")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestReportCache_ResetRefreshesOrder(t *testing.T) {
	c := newReportCache(time.Minute, 2)

	c.set("a", &Report{Days: 1})
	c.set("b", &Report{Days: 2})
	c.set("a", &Report{Days: 10}) // re-set moves "a" to the back
	c.set("c", &Report{Days: 3})

	_, ok := c.get("b")
	assert.False(t, ok, "b became the oldest after a was re-set")

	got, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, 10, got.Days)
}

func TestReportCache_Purge(t *testing.T) {
	c := newReportCache(time.Minute, 4)
	c.set("a", &Report{Days: 1})
	c.set("b", &Report{Days: 2})

	c.purge()

	_, ok := c.get("a")
	assert.False(t, ok)
	assert.Zero(t, c.order.Len())
}
