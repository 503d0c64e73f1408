package budget

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(start time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	now := start
	return func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}, func(d time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(d)
		}
}

func TestConsume_DomainCostTable(t *testing.T) {
	b := New(0, 0, nil)
	d := b.Consume("a1", "canon.promote", 0)
	assert.True(t, d.Allowed)
	assert.Equal(t, 15.0, d.Cost)
	assert.Equal(t, DefaultLimit-15, d.Remaining)

	d = b.Consume("a1", "unlisted.domain", 0)
	assert.Equal(t, 1.0, d.Cost, "unlisted domains cost 1")

	d = b.Consume("a1", "http", 7)
	assert.Equal(t, 7.0, d.Cost, "explicit cost wins over the table")
}

func TestConsume_DenyOnOvershoot(t *testing.T) {
	b := New(time.Minute, 100, nil)
	now, _ := fixedClock(time.Unix(1000, 0))
	b.SetNow(now)

	d := b.Consume("a1", "transfer", 95)
	require.True(t, d.Allowed)

	d = b.Consume("a1", "transfer", 10)
	assert.False(t, d.Allowed)
	assert.Equal(t, "budget_exceeded", d.Reason)
	assert.Equal(t, 5.0, d.Remaining)
	assert.Equal(t, time.Minute, d.ResetIn)

	// A denial does not consume.
	assert.Equal(t, 95.0, b.Used("a1"))
}

func TestConsume_WindowReset(t *testing.T) {
	b := New(time.Minute, 100, nil)
	now, advance := fixedClock(time.Unix(1000, 0))
	b.SetNow(now)

	b.Consume("a1", "transfer", 95)
	advance(61 * time.Second)

	d := b.Consume("a1", "transfer", 95)
	assert.True(t, d.Allowed, "window elapsed, entry reset")
	assert.Equal(t, 95.0, b.Used("a1"))
}

func TestConsume_ActorsIndependent(t *testing.T) {
	b := New(time.Minute, 100, nil)
	b.Consume("a1", "transfer", 100)
	d := b.Consume("a2", "transfer", 100)
	assert.True(t, d.Allowed)
}

// Used is monotone inside a window: it only grows until the window resets.
func TestConsume_UsedMonotoneWithinWindow(t *testing.T) {
	b := New(time.Minute, 1000, nil)
	now, _ := fixedClock(time.Unix(1000, 0))
	b.SetNow(now)

	prev := 0.0
	for i := 0; i < 50; i++ {
		b.Consume("a1", "kernelTick", 0)
		used := b.Used("a1")
		assert.GreaterOrEqual(t, used, prev)
		prev = used
	}
}

func TestConsume_Concurrent(t *testing.T) {
	b := New(time.Minute, 1_000_000, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Consume("shared", "http", 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 2000.0, b.Used("shared"))
}

func TestNoopConsumer(t *testing.T) {
	d := NoopConsumer{}.Consume("anyone", "anything", 1e9)
	assert.True(t, d.Allowed)
}
