// Package notify delivers pairing and collection events to the partner of the
// acting account: over websockets to connected clients and to RabbitMQ for
// downstream consumers.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/couplemovie/backend/internal/models"
)

// Sink receives events from the dispatcher's workers.
type Sink interface {
	Deliver(ctx context.Context, event models.Event) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(ctx context.Context, event models.Event) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, event models.Event) error {
	return f(ctx, event)
}

// DispatcherConfig controls the concurrency characteristics of the dispatcher.
type DispatcherConfig struct {
	QueueSize      int
	Workers        int
	DeliverTimeout time.Duration
}

// Dispatcher fans events out to sinks on a bounded worker pool so callers of
// Notify never wait on the network.
type Dispatcher struct {
	sinks   []Sink
	logger  *slog.Logger
	timeout time.Duration

	jobs   chan models.Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

var errDispatcherClosed = errors.New("event dispatcher closed")

// NewDispatcher starts the worker pool.
func NewDispatcher(cfg DispatcherConfig, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		sinks:   sinks,
		logger:  logger,
		timeout: cfg.DeliverTimeout,
		jobs:    make(chan models.Event, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}

	return d
}

// Notify queues the event. A full queue drops the event with a warning.
func (d *Dispatcher) Notify(_ context.Context, event models.Event) {
	if err := d.enqueue(event); err != nil {
		d.logger.Warn("event dropped", "type", event.Type, "pairingId", event.PairingID, "error", err)
	}
}

func (d *Dispatcher) enqueue(event models.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return errDispatcherClosed
	}

	select {
	case d.jobs <- event:
		return nil
	default:
		return errors.New("event queue full")
	}
}

// Shutdown stops accepting events and waits for queued ones to drain.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	case <-done:
		d.cancel()
		return nil
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for event := range d.jobs {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event models.Event) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
		err := sink.Deliver(ctx, event)
		cancel()
		if err != nil {
			d.logger.Error("event delivery failed", "type", event.Type, "pairingId", event.PairingID, "sink", sinkName(sink), "error", err)
		}
	}
}

type named interface {
	Name() string
}

func sinkName(s Sink) string {
	if n, ok := s.(named); ok {
		return n.Name()
	}
	return "sink"
}

// LogSink records every event at debug level.
type LogSink struct {
	Logger *slog.Logger
}

// Name identifies the sink in delivery logs.
func (LogSink) Name() string { return "log" }

// Deliver logs the event.
func (s LogSink) Deliver(ctx context.Context, event models.Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "event",
		slog.String("type", string(event.Type)),
		slog.String("pairingId", event.PairingID),
		slog.String("actorId", event.ActorID),
		slog.Any("recipients", event.Recipients),
		slog.String("movieRef", event.MovieRef),
	)
	return nil
}
