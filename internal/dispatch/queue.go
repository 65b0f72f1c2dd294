// Package dispatch implements the dispatch worker pool draining a
// priority queue of DispatchJobs (spec §4.5), retry/backoff,
// idempotency, and capacity accounting on terminal outcome. Grounded
// on services/distribution_service/main.go's worker-pool-plus-
// signal.Notify shutdown shape.
package dispatch

import (
	"container/heap"
	"sync"
	"time"

	"github.com/aurum-solar/core/internal/model"
)

// jobHeap is a container/heap.Interface ordering DispatchJobs by
// descending priority (spec §4.5: premium urgent first).
type jobHeap struct {
	jobs []*model.DispatchJob
	now  func() time.Time
}

func (h jobHeap) Len() int { return len(h.jobs) }
func (h jobHeap) Less(i, j int) bool {
	now := h.now()
	return h.jobs[i].Priority(now) > h.jobs[j].Priority(now)
}
func (h jobHeap) Swap(i, j int) { h.jobs[i], h.jobs[j] = h.jobs[j], h.jobs[i] }

func (h *jobHeap) Push(x interface{}) {
	h.jobs = append(h.jobs, x.(*model.DispatchJob))
}

func (h *jobHeap) Pop() interface{} {
	old := h.jobs
	n := len(old)
	item := old[n-1]
	h.jobs = old[:n-1]
	return item
}

// Queue is a bounded, thread-safe priority queue of DispatchJobs (spec
// §5 "bounded size"). A Push to a full queue is refused.
type Queue struct {
	mu       sync.Mutex
	heap     *jobHeap
	capacity int
	notEmpty chan struct{}
}

// NewQueue builds a Queue with the given bounded capacity. capacity<=0
// means unbounded.
func NewQueue(capacity int, now func() time.Time) *Queue {
	return &Queue{
		heap:     &jobHeap{jobs: make([]*model.DispatchJob, 0), now: now},
		capacity: capacity,
		notEmpty: make(chan struct{}, 1),
	}
}

// Push enqueues job, returning false without queueing it if the queue
// is at capacity (spec §5 backpressure).
func (q *Queue) Push(job *model.DispatchJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && q.heap.Len() >= q.capacity {
		return false
	}
	heap.Push(q.heap, job)
	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
	return true
}

// Pop removes and returns the highest-priority job, or nil if empty.
func (q *Queue) Pop() *model.DispatchJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.heap.Len() == 0 {
		return nil
	}
	return heap.Pop(q.heap).(*model.DispatchJob)
}

// Len returns the current queue length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Wait blocks until the queue has at least one item or timeout
// elapses, returning whether an item is likely available.
func (q *Queue) Wait(timeout time.Duration) bool {
	select {
	case <-q.notEmpty:
		return true
	case <-time.After(timeout):
		return q.Len() > 0
	}
}
