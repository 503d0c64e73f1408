// Package scheduler implements the cognitive work queue: a priority queue
// with aging, starvation promotion, a background-task quota, and hard
// lifetime enforcement for running threads.
package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// Tunables. Priorities are small integers; 10 is the hard cap.
const (
	MaxPriority             = 10
	DefaultAgingIncrement   = 1
	DefaultAgingInterval    = 5 * time.Second
	DefaultStarvationWindow = 30 * time.Second
	StarvationBoostPriority = 9
	MaxBackgroundConcurrent = 5
	DefaultMaxThreadLife    = 5 * time.Minute
)

// TaskStatus is the lifecycle state of a scheduled task.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskRunning    TaskStatus = "running"
	TaskDone       TaskStatus = "done"
	TaskTerminated TaskStatus = "terminated"
)

// Task is one unit of cognitive work.
type Task struct {
	ID               string        `json:"id"`
	Priority         int           `json:"priority"`
	OriginalPriority int           `json:"original_priority"`
	CreatedAt        time.Time     `json:"created_at"`
	LastAgedAt       time.Time     `json:"last_aged_at"`
	TimeSlice        time.Duration `json:"time_slice_ms"`
	Background       bool          `json:"is_background"`
	Status           TaskStatus    `json:"status"`

	index int // heap index
	order int64
}

// Scheduler is safe for concurrent use.
type Scheduler struct {
	agingIncrement   int
	agingInterval    time.Duration
	starvationWindow time.Duration
	maxThreadLife    time.Duration

	mu       sync.Mutex
	queue    taskHeap
	running  map[string]*thread
	orderSeq int64

	now func() time.Time
}

type thread struct {
	task      *Task
	startedAt time.Time
}

// New creates a scheduler with default tunables.
func New() *Scheduler {
	return &Scheduler{
		agingIncrement:   DefaultAgingIncrement,
		agingInterval:    DefaultAgingInterval,
		starvationWindow: DefaultStarvationWindow,
		maxThreadLife:    DefaultMaxThreadLife,
		running:          make(map[string]*thread),
		now:              time.Now,
	}
}

// SetNow overrides the time source. Test hook.
func (s *Scheduler) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Schedule inserts the task. Priority is capped at MaxPriority; the
// original priority is preserved for aging bookkeeping.
func (s *Scheduler) Schedule(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Priority > MaxPriority {
		t.Priority = MaxPriority
	}
	if t.OriginalPriority == 0 {
		t.OriginalPriority = t.Priority
	}
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.LastAgedAt = now
	t.Status = TaskQueued
	s.orderSeq++
	t.order = s.orderSeq
	heap.Push(&s.queue, t)
}

// Dequeue returns the highest-priority eligible task and marks it running.
// Background tasks beyond the concurrency quota stay queued. Aging and
// starvation promotion are applied before selection.
func (s *Scheduler) Dequeue() (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyAging()

	backgroundRunning := 0
	for _, th := range s.running {
		if th.task.Background {
			backgroundRunning++
		}
	}

	// Pop until an eligible task is found; ineligible ones are re-pushed.
	var skipped []*Task
	defer func() {
		for _, t := range skipped {
			heap.Push(&s.queue, t)
		}
	}()

	for s.queue.Len() > 0 {
		t := heap.Pop(&s.queue).(*Task)
		if t.Background && backgroundRunning >= MaxBackgroundConcurrent {
			skipped = append(skipped, t)
			continue
		}
		t.Status = TaskRunning
		s.running[t.ID] = &thread{task: t, startedAt: s.now()}
		return t, true
	}
	return nil, false
}

// applyAging raises queued priorities by agingIncrement per elapsed
// agingInterval, and force-promotes any task waiting past the starvation
// window. Caller holds the lock.
func (s *Scheduler) applyAging() {
	now := s.now()
	changed := false
	for _, t := range s.queue {
		if elapsed := now.Sub(t.LastAgedAt); elapsed >= s.agingInterval {
			steps := int(elapsed / s.agingInterval)
			t.Priority += steps * s.agingIncrement
			if t.Priority > MaxPriority {
				t.Priority = MaxPriority
			}
			t.LastAgedAt = t.LastAgedAt.Add(time.Duration(steps) * s.agingInterval)
			changed = true
		}
		if now.Sub(t.CreatedAt) >= s.starvationWindow && t.Priority < StarvationBoostPriority {
			t.Priority = StarvationBoostPriority
			changed = true
		}
	}
	if changed {
		heap.Init(&s.queue)
	}
}

// Complete marks a running task done and frees its slot.
func (s *Scheduler) Complete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if th, ok := s.running[id]; ok {
		th.task.Status = TaskDone
		delete(s.running, id)
	}
}

// EnforceThreadLifetimes terminates every running thread that has exceeded
// the maximum lifetime and returns the terminated task IDs.
func (s *Scheduler) EnforceThreadLifetimes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var terminated []string
	for id, th := range s.running {
		if now.Sub(th.startedAt) > s.maxThreadLife {
			th.task.Status = TaskTerminated
			delete(s.running, id)
			terminated = append(terminated, id)
		}
	}
	return terminated
}

// QueueLen returns the number of queued tasks.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// RunningCount returns the number of running threads.
func (s *Scheduler) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// taskHeap orders by priority desc, then FIFO within a priority.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].order < h[j].order
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
