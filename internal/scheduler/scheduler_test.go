package scheduler

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClock(start time.Time) (func() time.Time, func(time.Duration)) {
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

func TestSchedule_PriorityCapped(t *testing.T) {
	s := New()
	s.Schedule(&Task{ID: "t1", Priority: 99})
	got, ok := s.Dequeue()
	require.True(t, ok)
	assert.Equal(t, MaxPriority, got.Priority)
}

func TestDequeue_HighestPriorityFirst(t *testing.T) {
	s := New()
	s.Schedule(&Task{ID: "low", Priority: 1})
	s.Schedule(&Task{ID: "high", Priority: 8})
	s.Schedule(&Task{ID: "mid", Priority: 4})

	got, _ := s.Dequeue()
	assert.Equal(t, "high", got.ID)
	got, _ = s.Dequeue()
	assert.Equal(t, "mid", got.ID)
	got, _ = s.Dequeue()
	assert.Equal(t, "low", got.ID)

	_, ok := s.Dequeue()
	assert.False(t, ok)
}

func TestDequeue_FIFOWithinPriority(t *testing.T) {
	s := New()
	s.Schedule(&Task{ID: "first", Priority: 5})
	s.Schedule(&Task{ID: "second", Priority: 5})
	got, _ := s.Dequeue()
	assert.Equal(t, "first", got.ID)
}

func TestAging_RaisesPriority(t *testing.T) {
	s := New()
	now, advance := testClock(time.Unix(1000, 0))
	s.SetNow(now)

	s.Schedule(&Task{ID: "old", Priority: 1})
	advance(1 * time.Second)
	s.Schedule(&Task{ID: "fresh", Priority: 3})

	// Two aging intervals later the old task has gained 2 priority and leads.
	advance(2 * DefaultAgingInterval)
	got, _ := s.Dequeue()
	assert.Equal(t, "old", got.ID)
	assert.GreaterOrEqual(t, got.Priority, 3)
}

func TestStarvation_ForcePromoted(t *testing.T) {
	s := New()
	now, advance := testClock(time.Unix(1000, 0))
	s.SetNow(now)

	s.Schedule(&Task{ID: "starved", Priority: 1})
	advance(DefaultStarvationWindow)
	s.Schedule(&Task{ID: "busy", Priority: 8})

	got, _ := s.Dequeue()
	assert.Equal(t, "starved", got.ID)
	assert.GreaterOrEqual(t, got.Priority, StarvationBoostPriority)
}

func TestBackgroundQuota(t *testing.T) {
	s := New()
	for i := 0; i < MaxBackgroundConcurrent+2; i++ {
		s.Schedule(&Task{ID: fmt.Sprintf("bg%d", i), Priority: 5, Background: true})
	}
	var dequeued []*Task
	for {
		got, ok := s.Dequeue()
		if !ok {
			break
		}
		dequeued = append(dequeued, got)
	}
	assert.Len(t, dequeued, MaxBackgroundConcurrent, "quota caps concurrent background tasks")
	assert.Equal(t, 2, s.QueueLen(), "excess background tasks stay queued")

	// Foreground work is unaffected by the background quota.
	s.Schedule(&Task{ID: "fg", Priority: 1})
	got, ok := s.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "fg", got.ID)

	// Completing a background task frees a slot.
	s.Complete(dequeued[0].ID)
	got, ok = s.Dequeue()
	require.True(t, ok)
	assert.True(t, got.Background)
}

func TestEnforceThreadLifetimes(t *testing.T) {
	s := New()
	now, advance := testClock(time.Unix(1000, 0))
	s.SetNow(now)

	s.Schedule(&Task{ID: "longrunner", Priority: 5})
	got, _ := s.Dequeue()
	require.Equal(t, "longrunner", got.ID)

	advance(DefaultMaxThreadLife / 2)
	assert.Empty(t, s.EnforceThreadLifetimes())

	advance(DefaultMaxThreadLife)
	terminated := s.EnforceThreadLifetimes()
	require.Equal(t, []string{"longrunner"}, terminated)
	assert.Equal(t, TaskTerminated, got.Status)
	assert.Equal(t, 0, s.RunningCount())
}

func TestComplete_UnknownIDNoop(t *testing.T) {
	s := New()
	s.Complete("ghost")
	assert.Equal(t, 0, s.RunningCount())
}
