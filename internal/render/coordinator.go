package render

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fableforge/avatard/internal/avatar"
	"github.com/fableforge/avatard/internal/database/types"
	"github.com/fableforge/avatard/internal/setup/config"
	"github.com/fableforge/avatard/pkg/utils"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

var (
	// ErrOverloaded is returned by Submit when the queue is at capacity. The
	// job is not enqueued; callers fall back per their own policy.
	ErrOverloaded = errors.New("render queue is full")
	// ErrCacheCleared is delivered to every waiter whose job was cancelled by
	// a cache clear.
	ErrCacheCleared = errors.New("render cancelled by cache clear")
	// ErrStopped is returned by Submit after shutdown began.
	ErrStopped = errors.New("render coordinator is stopped")
)

// Job lifecycle event names, surfaced through logs and the optional hook.
const (
	EventAdded     = "job_added"
	EventCompleted = "job_completed"
	EventRetried   = "job_retried"
	EventFailed    = "job_failed"
)

// Default coordinator tuning, applied where the config leaves a field zero.
const (
	defaultCapacity    = 1000
	defaultWorkers     = 3
	defaultJobTimeout  = 30 * time.Second
	defaultMaxAttempts = 3
	defaultRetryDelay  = 2 * time.Second
)

// JobRenderer produces the artifacts for one user. *Renderer is the real
// implementation.
type JobRenderer interface {
	Render(ctx context.Context, user *types.User) (*avatar.Artifacts, error)
}

// ResultStore publishes a completed render. *cache.Result is the real
// implementation.
type ResultStore interface {
	Store(ctx context.Context, username string, fp uint32, artifacts *avatar.Artifacts) error
}

// Stats is a point-in-time snapshot of the coordinator.
type Stats struct {
	Waiting   int    `json:"waiting"`
	Active    int    `json:"active"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Cancelled uint64 `json:"cancelled"`
	Paused    bool   `json:"paused"`
}

// Coordinator owns the render pipeline: it deduplicates concurrent requests
// for the same (username, fingerprint), holds them in a bounded priority
// queue, runs a fixed number of workers and retries transient failures with
// exponential backoff.
type Coordinator struct {
	renderer JobRenderer
	results  ResultStore
	logger   *zap.Logger

	capacity    int
	workers     int
	jobTimeout  time.Duration
	maxAttempts uint64
	retryDelay  time.Duration

	// OnEvent, when set before Start, receives every lifecycle event. Called
	// without internal locks held.
	OnEvent func(event string, key Key)

	mu        sync.Mutex
	cond      *sync.Cond
	queue     jobQueue
	inflight  map[Key]*Job
	seq       uint64
	active    int
	paused    bool
	stopped   bool
	completed uint64
	failed    uint64
	cancelled uint64

	wg conc.WaitGroup
}

// NewCoordinator creates the coordinator; Start must be called before Submit.
func NewCoordinator(
	renderer JobRenderer, results ResultStore, cfg *config.Queue, logger *zap.Logger,
) *Coordinator {
	c := &Coordinator{
		renderer:    renderer,
		results:     results,
		logger:      logger.Named("coordinator"),
		capacity:    cfg.Capacity,
		workers:     cfg.Workers,
		jobTimeout:  time.Duration(cfg.JobTimeout) * time.Second,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  time.Duration(cfg.RetryDelay) * time.Second,
		inflight:    make(map[Key]*Job),
	}

	// Guard the sign before converting; a negative value would wrap to an
	// effectively unbounded retry budget.
	if cfg.MaxAttempts > 0 {
		c.maxAttempts = uint64(cfg.MaxAttempts)
	}

	if c.capacity <= 0 {
		c.capacity = defaultCapacity
	}

	if c.workers <= 0 {
		c.workers = defaultWorkers
	}

	if c.jobTimeout <= 0 {
		c.jobTimeout = defaultJobTimeout
	}

	if c.retryDelay <= 0 {
		c.retryDelay = defaultRetryDelay
	}

	c.cond = sync.NewCond(&c.mu)

	return c
}

// Start launches the workers. They exit when ctx ends; Wait joins them.
func (c *Coordinator) Start(ctx context.Context) {
	for range c.workers {
		c.wg.Go(func() {
			c.worker(ctx)
		})
	}

	// Wake blocked workers when shutdown begins.
	go func() {
		<-ctx.Done()

		c.mu.Lock()
		c.stopped = true
		c.mu.Unlock()

		c.cond.Broadcast()
	}()

	c.logger.Info("Render coordinator started",
		zap.Int("workers", c.workers),
		zap.Int("capacity", c.capacity))
}

// Wait blocks until every worker has exited.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Submit enqueues a render for (user, fingerprint), or attaches to the job
// already in flight for that key. A duplicate submission at a higher priority
// promotes the queued job. Returns ErrOverloaded when the queue is full.
func (c *Coordinator) Submit(user *types.User, fingerprint uint32, priority Priority) (*Job, error) {
	key := Key{Username: user.Username, Fingerprint: fingerprint}

	c.mu.Lock()

	if c.stopped {
		c.mu.Unlock()
		return nil, ErrStopped
	}

	if job, ok := c.inflight[key]; ok {
		if priority > job.priority && job.index >= 0 {
			job.priority = priority
			heap.Fix(&c.queue, job.index)
		}

		c.mu.Unlock()

		return job, nil
	}

	if c.queue.Len()+c.active >= c.capacity {
		c.mu.Unlock()
		return nil, ErrOverloaded
	}

	c.seq++
	job := &Job{
		key:      key,
		user:     user,
		priority: priority,
		seq:      c.seq,
		state:    StateQueued,
		done:     make(chan struct{}),
		index:    -1,
	}

	c.inflight[key] = job
	heap.Push(&c.queue, job)
	c.cond.Signal()
	c.mu.Unlock()

	c.emit(EventAdded, key)
	c.logger.Debug("Render job added",
		zap.String("username", key.Username),
		zap.Uint32("fingerprint", key.Fingerprint),
		zap.Int("priority", int(priority)))

	return job, nil
}

// InFlight reports whether a render for the key is queued or running.
func (c *Coordinator) InFlight(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.inflight[key]

	return ok
}

// Pause stops workers from picking up new jobs; running jobs finish.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()

	c.logger.Info("Render queue paused")
}

// Resume lets workers pick up jobs again.
func (c *Coordinator) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()

	c.cond.Broadcast()
	c.logger.Info("Render queue resumed")
}

// Clear cancels every queued and running job. Queued jobs terminate
// immediately; running jobs are interrupted through their context. All
// affected waiters receive ErrCacheCleared. Returns how many jobs were hit.
func (c *Coordinator) Clear() int {
	c.mu.Lock()

	queued := make([]*Job, 0, c.queue.Len())
	for c.queue.Len() > 0 {
		job := heap.Pop(&c.queue).(*Job)
		delete(c.inflight, job.key)
		queued = append(queued, job)
	}

	cancels := make([]context.CancelFunc, 0, len(c.inflight))

	for _, job := range c.inflight {
		job.cause = ErrCacheCleared

		if job.cancel != nil {
			cancels = append(cancels, job.cancel)
		}
	}

	running := len(c.inflight)

	for _, job := range queued {
		job.state = StateCancelled
		job.err = ErrCacheCleared
		c.cancelled++
		close(job.done)
	}

	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	if n := len(queued) + running; n > 0 {
		c.logger.Info("Cleared render queue",
			zap.Int("queued", len(queued)),
			zap.Int("running", running))

		return n
	}

	return 0
}

// Stats returns a snapshot of the coordinator.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Waiting:   c.queue.Len(),
		Active:    c.active,
		Completed: c.completed,
		Failed:    c.failed,
		Cancelled: c.cancelled,
		Paused:    c.paused,
	}
}

// worker pulls jobs until shutdown.
func (c *Coordinator) worker(ctx context.Context) {
	for {
		job := c.next()
		if job == nil {
			return
		}

		c.run(ctx, job)
	}
}

// next blocks until a job is available. Returns nil on shutdown.
func (c *Coordinator) next() *Job {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.stopped {
			return nil
		}

		if !c.paused && c.queue.Len() > 0 {
			job := heap.Pop(&c.queue).(*Job)
			job.state = StateRunning
			c.active++

			return job
		}

		c.cond.Wait()
	}
}

// run executes one job to a terminal state: render, publish through the
// result cache, retry transient failures with exponential backoff, all under
// the per-job wall-clock timeout.
func (c *Coordinator) run(ctx context.Context, job *Job) {
	jobCtx, cancel := context.WithTimeout(ctx, c.jobTimeout)
	defer cancel()

	// A clear can land between the queue pop and this point; such a job has
	// its cause set but no cancel func to fire, so honour the cause here
	// instead of rendering.
	c.mu.Lock()

	if job.cause != nil {
		cause := job.cause
		c.mu.Unlock()
		c.finish(job, nil, cause)

		return
	}

	job.cancel = cancel
	c.mu.Unlock()

	op := func() (*avatar.Artifacts, error) {
		c.mu.Lock()
		job.attempts++
		job.state = StateRunning
		c.mu.Unlock()

		artifacts, err := c.renderer.Render(jobCtx, job.user)
		if err != nil {
			// Input problems will not get better on retry.
			if errors.Is(err, ErrNoCustomization) || errors.Is(err, ErrBaseMissing) ||
				errors.Is(err, types.ErrUserNotFound) {
				return nil, backoff.Permanent(err)
			}

			return nil, err
		}

		// A publish failure still yields the bytes to waiters; the stored
		// hash stays unchanged, so the next request re-renders.
		if err := c.results.Store(jobCtx, job.key.Username, job.key.Fingerprint, artifacts); err != nil {
			c.logger.Warn("Failed to publish render result",
				zap.String("username", job.key.Username),
				zap.Uint32("fingerprint", job.key.Fingerprint),
				zap.Error(err))
		}

		return artifacts, nil
	}

	artifacts, err := utils.WithRetry(jobCtx, op, utils.RetryOptions{
		InitialInterval: c.retryDelay,
		MaxRetries:      c.maxAttempts - 1,
		OnRetry: func(err error, next time.Duration) {
			c.mu.Lock()
			job.state = StateRetrying
			attempt := job.attempts
			c.mu.Unlock()

			c.emit(EventRetried, job.key)
			c.logger.Warn("Render attempt failed, retrying",
				zap.String("username", job.key.Username),
				zap.Uint32("fingerprint", job.key.Fingerprint),
				zap.Int("attempt", attempt),
				zap.Duration("next", next),
				zap.Error(err))
		},
	})

	c.finish(job, artifacts, err)
}

// finish moves a job to its terminal state and notifies waiters exactly once.
func (c *Coordinator) finish(job *Job, artifacts *avatar.Artifacts, err error) {
	c.mu.Lock()

	delete(c.inflight, job.key)
	c.active--

	if err != nil && job.cause != nil {
		err = job.cause
	}

	switch {
	case err == nil:
		job.state = StateSucceeded
		c.completed++
	case errors.Is(err, ErrCacheCleared):
		job.state = StateCancelled
		c.cancelled++
	default:
		job.state = StateFailed
		c.failed++
	}

	job.artifacts = artifacts
	job.err = err
	state := job.state
	attempts := job.attempts
	close(job.done)

	c.mu.Unlock()

	switch state {
	case StateSucceeded:
		c.emit(EventCompleted, job.key)
		c.logger.Debug("Render job completed",
			zap.String("username", job.key.Username),
			zap.Uint32("fingerprint", job.key.Fingerprint),
			zap.Int("attempts", attempts))
	case StateFailed:
		c.emit(EventFailed, job.key)
		c.logger.Error("Render job failed",
			zap.String("username", job.key.Username),
			zap.Uint32("fingerprint", job.key.Fingerprint),
			zap.Int("attempts", attempts),
			zap.Error(err))
	default:
		c.logger.Info("Render job cancelled",
			zap.String("username", job.key.Username),
			zap.Uint32("fingerprint", job.key.Fingerprint))
	}
}

func (c *Coordinator) emit(event string, key Key) {
	if c.OnEvent != nil {
		c.OnEvent(event, key)
	}
}
