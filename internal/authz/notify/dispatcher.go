// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

// Package notify delivers access-change notifications asynchronously so that
// a slow or failing delivery channel never holds up an authorization write.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/pkg/errutil"
)

// Defaults for Config.
const (
	DefaultQueueSize = 256
	DefaultTimeout   = 5 * time.Second
)

// CodeQueueFull is returned by Notify when the queue cannot take more work.
const CodeQueueFull = "NOTIFY_QUEUE_FULL"

// CodeClosed is returned by Notify after Close.
const CodeClosed = "NOTIFY_CLOSED"

// Config holds dependencies for Dispatcher.
type Config struct {
	// Sink performs the actual delivery.
	Sink      authz.Notifier
	QueueSize int
	// Timeout bounds a single delivery.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Dispatcher queues notifications and delivers them from one worker.
type Dispatcher struct {
	sink    authz.Notifier
	timeout time.Duration
	logger  *slog.Logger

	queue chan authz.Notification
	stop  chan struct{}
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var _ authz.Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher and starts its worker. Callers must
// call Close to drain the queue and stop the worker.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = NewLogSink(cfg.Logger)
	}
	d := &Dispatcher{
		sink:    cfg.Sink,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		queue:   make(chan authz.Notification, cfg.QueueSize),
		stop:    make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Notify enqueues n without waiting for delivery.
func (d *Dispatcher) Notify(_ context.Context, n authz.Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return oops.Code(CodeClosed).With("subject", n.Subject).Errorf("notification dispatcher is closed")
	}
	select {
	case d.queue <- n:
		queueDepth.Set(float64(len(d.queue)))
		return nil
	default:
		notificationsTotal.WithLabelValues("dropped").Inc()
		return oops.Code(CodeQueueFull).
			With("subject", n.Subject).
			With("object_reference", n.ObjectReference).
			Errorf("notification queue full")
	}
}

// Close stops accepting notifications, delivers what is queued and waits
// for the worker. Delivery still pending when ctx ends is abandoned.
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
		return nil
	case <-ctx.Done():
		close(d.stop)
		<-done
		return oops.Wrapf(ctx.Err(), "notification queue not drained")
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		default:
		}
		select {
		case <-d.stop:
			return
		case n, ok := <-d.queue:
			if !ok {
				return
			}
			queueDepth.Set(float64(len(d.queue)))
			d.deliver(n)
		}
	}
}

func (d *Dispatcher) deliver(n authz.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	start := time.Now()
	err := d.sink.Notify(ctx, n)
	deliveryDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		notificationsTotal.WithLabelValues("delivered").Inc()
		return
	}
	notificationsTotal.WithLabelValues("failed").Inc()
	if errors.Is(err, context.DeadlineExceeded) {
		d.logger.Warn("notification delivery timed out",
			"subject", n.Subject,
			"object_reference", n.ObjectReference,
			"outcome", string(n.Outcome),
			"timeout", d.timeout.String())
		return
	}
	errutil.Log(ctx, d.logger, slog.LevelWarn, "notification delivery failed", err,
		"subject", n.Subject,
		"object_reference", n.ObjectReference,
		"outcome", string(n.Outcome))
}
