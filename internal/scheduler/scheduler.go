package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/schema"
)

var (
	ErrSchedulerClosed = errors.New("scheduler: closed")
	ErrQueueFull       = errors.New("scheduler: admission queue full")
	ErrNotStarted      = errors.New("scheduler: not started")
)

const (
	defaultWorkers     = 4
	defaultQueueSize   = 256
	defaultMaxAttempts = 3
	defaultBaseBackoff = 500 * time.Millisecond
	defaultMaxBackoff  = time.Minute
)

// Runner executes one pipeline attempt for a job and finalizes a job whose
// retries are exhausted.
type Runner interface {
	Execute(ctx context.Context, order *schema.Order, attempt int) error
	Abort(ctx context.Context, order *schema.Order, cause error, attempts int)
}

// Config bounds the scheduler.
type Config struct {
	Workers         int
	QueueSize       int
	OrdersPerMinute int
	MaxAttempts     int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = defaultBaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	return c
}

// Metrics is a point-in-time view of scheduler activity.
type Metrics struct {
	Waiting        int64  `json:"waiting"`
	Active         int64  `json:"active"`
	CompletedTotal uint64 `json:"completedTotal"`
	FailedTotal    uint64 `json:"failedTotal"`
	RetriedTotal   uint64 `json:"retriedTotal"`
}

// job is the scheduler's retry state for one order. Order id is job
// identity: re-submitting an id that is queued, running, or backing off
// merges into the existing job instead of spawning a second execution.
type job struct {
	order    *schema.Order
	attempts int
	lastErr  error
}

// Scheduler is a bounded-concurrency, rate-limited FIFO job runner with
// exponential-backoff retry. A single dispatcher admits jobs so that both
// the worker bound and the rate ceiling hold at every admission.
type Scheduler struct {
	runner  Runner
	cfg     Config
	limiter *SlidingWindow

	mu     sync.Mutex
	jobs   map[string]*job
	timers map[string]*time.Timer
	paused bool
	resume chan struct{}

	queue  chan *job
	slots  chan struct{}
	stopCh chan struct{}

	started  atomic.Bool
	stopping atomic.Bool
	wg       sync.WaitGroup

	waiting   int64
	active    int64
	completed uint64
	failed    uint64
	retried   uint64
}

// New creates a scheduler over the given runner.
func New(runner Runner, cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		runner:  runner,
		cfg:     cfg,
		limiter: NewSlidingWindow(cfg.OrdersPerMinute, time.Minute),
		jobs:    make(map[string]*job),
		timers:  make(map[string]*time.Timer),
		queue:   make(chan *job, cfg.QueueSize),
		slots:   make(chan struct{}, cfg.Workers),
		stopCh:  make(chan struct{}),
	}
	for range cfg.Workers {
		s.slots <- struct{}{}
	}
	return s
}

// Start launches the dispatcher. It is a no-op when already started.
func (s *Scheduler) Start(ctx context.Context) {
	if s.started.Swap(true) {
		return
	}
	s.wg.Add(1)
	go s.dispatch(ctx)
}

// Submit admits a job keyed by order id. Submitting an id that is already
// queued or running is a no-op merge, never a duplicate run.
func (s *Scheduler) Submit(order *schema.Order) error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	if s.stopping.Load() {
		return ErrSchedulerClosed
	}

	s.mu.Lock()
	if _, ok := s.jobs[order.ID]; ok {
		s.mu.Unlock()
		return nil
	}
	j := &job{order: order}
	s.jobs[order.ID] = j
	s.mu.Unlock()

	select {
	case s.queue <- j:
		atomic.AddInt64(&s.waiting, 1)
		return nil
	default:
		s.mu.Lock()
		delete(s.jobs, order.ID)
		s.mu.Unlock()
		return ErrQueueFull
	}
}

// Pause stops new admissions without aborting in-flight work.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		s.paused = true
		s.resume = make(chan struct{})
	}
}

// Resume restarts admissions after a pause.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		s.paused = false
		close(s.resume)
	}
}

// GetMetrics reports queue depth and running/terminal counts.
func (s *Scheduler) GetMetrics() Metrics {
	return Metrics{
		Waiting:        atomic.LoadInt64(&s.waiting),
		Active:         atomic.LoadInt64(&s.active),
		CompletedTotal: atomic.LoadUint64(&s.completed),
		FailedTotal:    atomic.LoadUint64(&s.failed),
		RetriedTotal:   atomic.LoadUint64(&s.retried),
	}
}

// Shutdown drains the scheduler: admissions stop, pending backoff retries
// are discarded, and in-flight workers run to completion or until ctx
// expires.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	if s.stopping.Swap(true) {
		return nil
	}
	close(s.stopCh)

	s.mu.Lock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch is the single admission path. FIFO order holds because only this
// goroutine pops the queue; a job is handed to a worker only once a worker
// slot is free and the rate window allows it.
func (s *Scheduler) dispatch(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if !s.gate(ctx) {
				return
			}
			atomic.AddInt64(&s.waiting, -1)
			atomic.AddInt64(&s.active, 1)
			s.wg.Add(1)
			go s.run(ctx, j)
		}
	}
}

// gate blocks until the scheduler is unpaused, a worker slot is free, and
// the rate limiter admits. It reports false when the scheduler is stopping.
func (s *Scheduler) gate(ctx context.Context) bool {
	for {
		s.mu.Lock()
		paused := s.paused
		resume := s.resume
		s.mu.Unlock()
		if !paused {
			break
		}
		select {
		case <-resume:
		case <-s.stopCh:
			return false
		case <-ctx.Done():
			return false
		}
	}

	select {
	case <-s.slots:
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	}

	if err := s.limiter.Wait(s.stopCh); err != nil {
		s.slots <- struct{}{}
		return false
	}
	return true
}

func (s *Scheduler) run(ctx context.Context, j *job) {
	defer s.wg.Done()
	defer func() { s.slots <- struct{}{} }()

	s.mu.Lock()
	j.attempts++
	attempt := j.attempts
	s.mu.Unlock()

	err := s.runner.Execute(ctx, j.order, attempt)
	atomic.AddInt64(&s.active, -1)
	if err == nil {
		atomic.AddUint64(&s.completed, 1)
		s.forget(j.order.ID)
		return
	}

	j.lastErr = err
	if attempt >= s.cfg.MaxAttempts {
		s.runner.Abort(ctx, j.order, err, attempt)
		atomic.AddUint64(&s.failed, 1)
		s.forget(j.order.ID)
		return
	}

	atomic.AddUint64(&s.retried, 1)
	delay := Backoff(s.cfg.BaseBackoff, attempt-1, s.cfg.MaxBackoff)
	logs.Infof("order %s attempt %d/%d failed, retrying in %s, err: %+v",
		j.order.ID, attempt, s.cfg.MaxAttempts, delay, err)

	s.mu.Lock()
	if s.stopping.Load() {
		delete(s.jobs, j.order.ID)
		s.mu.Unlock()
		return
	}
	s.timers[j.order.ID] = time.AfterFunc(delay, func() { s.requeue(j) })
	s.mu.Unlock()
}

func (s *Scheduler) requeue(j *job) {
	s.mu.Lock()
	delete(s.timers, j.order.ID)
	stopping := s.stopping.Load()
	if stopping {
		delete(s.jobs, j.order.ID)
	}
	s.mu.Unlock()
	if stopping {
		return
	}

	select {
	case s.queue <- j:
		atomic.AddInt64(&s.waiting, 1)
	default:
		// The queue refilled past capacity during the backoff window.
		s.runner.Abort(context.Background(), j.order, ErrQueueFull, j.attempts)
		atomic.AddUint64(&s.failed, 1)
		s.forget(j.order.ID)
	}
}

func (s *Scheduler) forget(orderID string) {
	s.mu.Lock()
	delete(s.jobs, orderID)
	delete(s.timers, orderID)
	s.mu.Unlock()
}
