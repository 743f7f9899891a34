// Package worker runs blocking work, such as remote JMX calls, off the
// goroutines that dispatch events.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	ErrPoolNotStarted     = errors.New("worker pool not started")
	ErrPoolStopped        = errors.New("worker pool stopped")
	ErrPoolAlreadyStarted = errors.New("worker pool already started")
	ErrQueueFull          = errors.New("worker pool queue full")
	ErrStopTimeout        = errors.New("timeout waiting for workers to stop")
)

type Task func(ctx context.Context)

type Pool struct {
	logger logrus.FieldLogger

	workers int
	queue   chan Task
	wg      sync.WaitGroup
	cancel  context.CancelFunc

	mu      sync.Mutex
	started bool
	stopped bool

	submitted int64
	dropped   int64

	queueDepth prometheus.Gauge
}

func NewPool(logger logrus.FieldLogger, workers, queueSize int, queueDepth prometheus.Gauge) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 1000
	}

	return &Pool{
		logger:     logger,
		workers:    workers,
		queue:      make(chan Task, queueSize),
		queueDepth: queueDepth,
	}
}

func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}

	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}

	p.started = true

	return nil
}

// Submit enqueues the task without blocking.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.queue <- task:
		atomic.AddInt64(&p.submitted, 1)
		p.observeQueue()
		return nil
	default:
		atomic.AddInt64(&p.dropped, 1)
		return ErrQueueFull
	}
}

// Stop lets workers drain the queue and waits for them at most timeout.
// Tasks still running after the timeout have their context cancelled.
func (p *Pool) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-timer.C:
		p.cancel()
		return ErrStopTimeout
	}
}

func (p *Pool) Stats() (submitted, dropped int64, queued int) {
	return atomic.LoadInt64(&p.submitted), atomic.LoadInt64(&p.dropped), len(p.queue)
}

func (p *Pool) work(ctx context.Context) {
	defer p.wg.Done()

	for task := range p.queue {
		p.observeQueue()
		p.run(ctx, task)
	}
}

func (p *Pool) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("panic", r).Error("Worker task panicked")
		}
	}()

	task(ctx)
}

func (p *Pool) observeQueue() {
	if p.queueDepth != nil {
		p.queueDepth.Set(float64(len(p.queue)))
	}
}
