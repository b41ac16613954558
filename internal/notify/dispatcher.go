package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/labmgr/pkg/logger"
	"github.com/charlesng35/labmgr/pkg/mail"
	"github.com/charlesng35/labmgr/pkg/metrics"
)

const (
	DefaultWorkers     = 2
	DefaultQueueSize   = 128
	DefaultSendTimeout = 30 * time.Second
)

// Dispatcher delivers jobs on a fixed pool of background workers. Dispatch never
// blocks and never reports delivery errors; each job gets at most one attempt.
type Dispatcher struct {
	mailer  mail.Mailer
	queue   chan Job
	workers int
	timeout time.Duration
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers sets the number of concurrent delivery workers.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize bounds the number of jobs waiting for a worker.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Job, n)
		}
	}
}

// WithSendTimeout limits a single delivery attempt.
func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLogger overrides the dispatcher logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDispatcher starts the worker pool.
func NewDispatcher(mailer mail.Mailer, opts ...Option) (*Dispatcher, error) {
	if mailer == nil {
		return nil, errors.New("notify: mailer is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		mailer:  mailer,
		queue:   make(chan Job, DefaultQueueSize),
		workers: DefaultWorkers,
		timeout: DefaultSendTimeout,
		log:     logger.WithModule("notify"),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(d)
	}

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d, nil
}

// Dispatch queues job for delivery and returns immediately. It reports whether the job
// was accepted; a full queue or a closed dispatcher drops the job with a warning.
func (d *Dispatcher) Dispatch(job Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(job, "dispatcher closed")
		return false
	}

	select {
	case d.queue <- job.clone():
		metrics.NotificationQueueDepth.Set(float64(len(d.queue)))
		return true
	default:
		d.drop(job, "queue full")
		return false
	}
}

// Backlog reports queued jobs not yet picked up by a worker and the queue capacity.
func (d *Dispatcher) Backlog() (pending, capacity int) {
	return len(d.queue), cap(d.queue)
}

// Close stops accepting jobs and waits for queued ones until ctx is done. Jobs still
// pending when ctx expires are abandoned and in-flight sends are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return fmt.Errorf("notify: drain interrupted: %w", ctx.Err())
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for job := range d.queue {
		metrics.NotificationQueueDepth.Set(float64(len(d.queue)))
		if d.ctx.Err() != nil {
			d.drop(job, "shutdown")
			continue
		}
		d.deliver(job)
	}
}

// deliver performs one attempt. Failures and panics stop here.
func (d *Dispatcher) deliver(job Job) {
	defer func() {
		if r := recover(); r != nil {
			metrics.Notifications.WithLabelValues(string(job.Kind), "panic").Inc()
			d.log.Error("notification delivery panicked",
				zap.String("kind", string(job.Kind)),
				zap.Strings("recipients", job.To),
				zap.Any("panic", r),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	err := d.mailer.Send(ctx, job.message())
	switch {
	case err == nil:
		metrics.Notifications.WithLabelValues(string(job.Kind), "sent").Inc()
		d.log.Debug("notification sent", zap.String("kind", string(job.Kind)), zap.Strings("recipients", job.To))
	case errors.Is(err, mail.ErrDeliveryDisabled):
		metrics.Notifications.WithLabelValues(string(job.Kind), "disabled").Inc()
		d.log.Debug("notification skipped; delivery disabled", zap.String("kind", string(job.Kind)))
	default:
		metrics.Notifications.WithLabelValues(string(job.Kind), "failed").Inc()
		d.log.Warn("notification delivery failed",
			zap.String("kind", string(job.Kind)),
			zap.Strings("recipients", job.To),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) drop(job Job, reason string) {
	metrics.Notifications.WithLabelValues(string(job.Kind), "dropped").Inc()
	d.log.Warn("notification dropped",
		zap.String("kind", string(job.Kind)),
		zap.Strings("recipients", job.To),
		zap.String("reason", reason),
	)
}
