package consumer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relaykit/krest/internal/clock"
	"github.com/relaykit/krest/internal/primitives"
)

// scheduler is the Worker/Scheduler of spec.md 4.E: a pool of workers that
// advances ready tasks, sleeps until the nearest task's wake time, and
// honors backoff signals rather than busy-looping. Readiness is tracked
// with the teacher's own generic heap-backed priority queue, keyed by task
// ID and prioritized by waitExpiration — the earliest-waking task is
// always at the front.
type scheduler struct {
	mu    sync.Mutex
	tasks map[string]*readTask
	queue *primitives.PriorityQueue[string]

	clk    clock.Clock
	logger *zap.Logger

	sem  chan struct{}
	wake chan struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newScheduler(workers int, clk clock.Clock, logger *zap.Logger) *scheduler {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &scheduler{
		tasks:  make(map[string]*readTask),
		queue:  primitives.NewPriorityQueue[string](false),
		clk:    clk,
		logger: logger.Named("consumer.scheduler"),
		sem:    make(chan struct{}, workers),
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
}

// submit enqueues t for the worker pool to advance. A task that already
// finished at construction (e.g. AlreadySubscribed) is dropped silently —
// its callback already fired, and it never needs an iterator.
func (s *scheduler) submit(t *readTask) {
	if t.done() {
		return
	}
	s.mu.Lock()
	s.tasks[t.id] = t
	s.queue.Push(t.id, float64(t.waitExpiration))
	s.mu.Unlock()
	s.signal()
}

func (s *scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *scheduler) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// run is the dispatch loop: pop the earliest-waking task, sleep if it
// isn't ready yet (waking early on a new submission or a reprioritized
// task), and hand ready tasks to the worker pool bounded by sem.
func (s *scheduler) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		s.mu.Lock()
		id, empty := s.queue.Peek()
		var priority float64
		if !empty {
			priority, _ = s.queue.PeekPriority()
		}
		s.mu.Unlock()

		if empty {
			if !s.waitForWake(ctx, 0, false) {
				return
			}
			continue
		}

		now := s.clk.NowMs()
		if int64(priority) > now {
			if !s.waitForWake(ctx, time.Duration(int64(priority)-now)*time.Millisecond, true) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.queue.Remove(id)
		task := s.tasks[id]
		s.mu.Unlock()
		if task == nil {
			continue
		}

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
		go s.advance(task)
	}
}

func (s *scheduler) waitForWake(ctx context.Context, d time.Duration, timed bool) bool {
	if timed {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-s.stopCh:
			return false
		case <-s.wake:
			return true
		case <-timer.C:
			return true
		}
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.stopCh:
		return false
	case <-s.wake:
		return true
	}
}

// advance calls doPartialRead once and either retires the task or
// reinserts it at its updated waitExpiration. backoff is purely advisory
// here since waitExpiration already encodes the right wake time whether
// or not the task backed off.
func (s *scheduler) advance(task *readTask) {
	defer func() { <-s.sem }()

	task.doPartialRead()

	if task.done() {
		s.mu.Lock()
		delete(s.tasks, task.id)
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.queue.Push(task.id, float64(task.waitExpiration))
	s.mu.Unlock()
	s.signal()
}

// pendingCount reports how many tasks the scheduler currently tracks,
// used by tests to assert drain-to-zero after a batch of reads completes.
func (s *scheduler) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
