package sheetstore

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Change describes a successful write.
type Change struct {
	Sheet string
	Op    OperationType
	Row   int // physical row written, 0 for appends
	At    time.Time
}

// Notifier informs an external system that a sheet changed.
type Notifier interface {
	Notify(ctx context.Context, change Change) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, change Change) error

func (f NotifierFunc) Notify(ctx context.Context, change Change) error {
	return f(ctx, change)
}

// Dispatcher delivers changes to a Notifier from a single background
// goroutine. Dispatch never blocks; changes are dropped when the queue is
// full or the dispatcher has stopped.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   logrus.FieldLogger
	metrics  MetricsRecorder

	queue   chan Change
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher creates and starts a dispatcher.
func NewDispatcher(notifier Notifier, queueSize int, timeout time.Duration, logger logrus.FieldLogger, metrics MetricsRecorder) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultNotifyQueueSize
	}
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	d := &Dispatcher{
		notifier: notifier,
		timeout:  timeout,
		logger:   logger,
		metrics:  metrics,
		queue:    make(chan Change, queueSize),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Dispatch queues a change and reports whether it was accepted.
func (d *Dispatcher) Dispatch(change Change) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.drop(change, "dispatcher stopped")
		return false
	}
	select {
	case d.queue <- change:
		return true
	default:
		d.drop(change, "queue full")
		return false
	}
}

func (d *Dispatcher) drop(change Change, reason string) {
	d.metrics.NotificationDropped(change.Sheet)
	d.logger.WithFields(logrus.Fields{
		"sheet": change.Sheet,
		"op":    change.Op.String(),
	}).Warnf("notification dropped: %s", reason)
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for change := range d.queue {
		d.deliver(change)
	}
}

func (d *Dispatcher) deliver(change Change) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, change); err != nil {
		d.logger.WithFields(logrus.Fields{
			"sheet": change.Sheet,
			"op":    change.Op.String(),
			"row":   change.Row,
		}).WithError(err).Warn("external update notification failed")
		return
	}
	d.logger.WithField("sheet", change.Sheet).Debug("external update notified")
}

// Stop refuses new changes, delivers the queued ones and waits for the worker.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}
