// Package triggers delivers committed report changes to background handlers,
// playing the part of a document-store update trigger: every handler gets
// the before and after snapshots and runs off the writer's goroutine.
package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/monitoring"
)

// ReportChange is one committed write to a report. Before is the zero value
// for newly created reports.
type ReportChange struct {
	Before models.Report
	After  models.Report
}

type Handler func(ctx context.Context, change ReportChange) error

// Publisher is what writers depend on.
type Publisher interface {
	Publish(change ReportChange)
}

type namedHandler struct {
	name string
	fn   Handler
}

// Dispatcher queues report changes and runs every registered handler for
// each of them on a pool of workers.
type Dispatcher struct {
	queue          chan ReportChange
	workers        int
	handlerTimeout time.Duration
	metrics        *metrics.Metrics

	mu       sync.RWMutex
	handlers []namedHandler

	wg       sync.WaitGroup
	inflight sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

func NewDispatcher(queueSize, workers int, handlerTimeout time.Duration, m *metrics.Metrics) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		queue:          make(chan ReportChange, queueSize),
		workers:        workers,
		handlerTimeout: handlerTimeout,
		metrics:        m,
		stop:           make(chan struct{}),
	}
}

// On registers a handler. Register before Start.
func (d *Dispatcher) On(name string, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, namedHandler{name: name, fn: fn})
}

// Publish never blocks the caller. When the queue is full the change is
// handled on its own goroutine instead of being dropped.
func (d *Dispatcher) Publish(change ReportChange) {
	d.inflight.Add(1)
	select {
	case d.queue <- change:
		d.metrics.TriggerQueueDepth.Inc()
	default:
		slog.Warn("trigger queue full, dispatching inline goroutine",
			"report_id", change.After.ID.String())
		go func() {
			defer d.inflight.Done()
			d.dispatch(change)
		}()
	}
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case change := <-d.queue:
			d.metrics.TriggerQueueDepth.Dec()
			d.dispatch(change)
			d.inflight.Done()
		case <-d.stop:
			return
		}
	}
}

func (d *Dispatcher) dispatch(change ReportChange) {
	d.mu.RLock()
	handlers := make([]namedHandler, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()

	for _, h := range handlers {
		d.run(h, change)
	}
}

func (d *Dispatcher) run(h namedHandler, change ReportChange) {
	ctx := context.Background()
	if d.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.handlerTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			d.metrics.TriggerHandlerErrors.WithLabelValues(h.name).Inc()
			monitoring.CaptureError(fmt.Errorf("panic: %v", r), "trigger handler panicked",
				map[string]string{"handler": h.name, "report_id": change.After.ID.String()})
		}
	}()

	if err := h.fn(ctx, change); err != nil {
		d.metrics.TriggerHandlerErrors.WithLabelValues(h.name).Inc()
		monitoring.CaptureError(err, "trigger handler failed",
			map[string]string{"handler": h.name, "report_id": change.After.ID.String()})
	}
}

// Drain waits until every published change has been handled.
func (d *Dispatcher) Drain() {
	d.inflight.Wait()
}

// Stop drains the queue and stops the workers.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.Drain()
		close(d.stop)
		d.wg.Wait()
	})
}
