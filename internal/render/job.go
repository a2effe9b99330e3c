// Package render runs the actual avatar renders: a renderer that turns one
// user record into encoded artifacts, and a coordinator that deduplicates,
// queues, bounds and retries render jobs.
package render

import (
	"context"

	"github.com/fableforge/avatard/internal/avatar"
	"github.com/fableforge/avatard/internal/database/types"
)

// State is the lifecycle position of one job.
type State int32

const (
	StateQueued State = iota
	StateRunning
	StateRetrying
	StateSucceeded
	StateFailed
	StateCancelled
)

// String returns the state name used in logs and events.
func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Priority orders jobs in the queue. Thumbnails are cheapest to wait for and
// block profile pages, so they jump the line; full sprite sheets go last.
type Priority int

const (
	PrioritySprite Priority = iota
	PriorityAvatar
	PriorityThumbnail
)

// Key identifies one render: the same user with the same fingerprint is the
// same render, no matter how many requests ask for it.
type Key struct {
	Username    string
	Fingerprint uint32
}

// Job is one queued or running render. Waiters block on done; the coordinator
// closes it exactly once on any terminal transition.
type Job struct {
	key      Key
	user     *types.User
	priority Priority
	seq      uint64

	state    State
	attempts int

	// cancel aborts the running attempt; set while the job is running.
	cancel context.CancelFunc

	// cause overrides the attempt error on cancellation, so waiters see why
	// the job was cancelled instead of a bare context error.
	cause error

	// heap index, maintained by the queue.
	index int

	done      chan struct{}
	artifacts *avatar.Artifacts
	err       error
}

// Key returns the job's dedup key.
func (j *Job) Key() Key {
	return j.key
}

// Wait blocks until the job reaches a terminal state or the caller's context
// ends, and returns the render result shared by every waiter.
func (j *Job) Wait(ctx context.Context) (*avatar.Artifacts, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-j.done:
		return j.artifacts, j.err
	}
}

// jobQueue is a priority queue over *Job: higher priority first, FIFO within
// a priority through the submission sequence number.
type jobQueue []*Job

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}

	return q[i].seq < q[j].seq
}

func (q jobQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *jobQueue) Push(x any) {
	job := x.(*Job)
	job.index = len(*q)
	*q = append(*q, job)
}

func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.index = -1
	*q = old[:n-1]

	return job
}
