// Package messaging implements the in-process event bus for the SkillSwap presence hub.
// The hub is a single-instance service, so events never leave the process:
// presence snapshots, peer arrivals and notification lifecycle events all
// travel through the bus defined here.
package messaging

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
)

// ErrEventBusClosed is returned for operations on a closed bus.
var ErrEventBusClosed = errors.New("event bus is closed")

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus implements shared.EventBus for a single process.
//
// Async mode runs handlers on one dispatcher goroutine behind a bounded queue,
// so subscribers observe events in publish order. That matters here: a consumer
// of presence snapshots must never see an older online set after a newer one.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	asyncMode   bool
	queue       chan shared.Event
	logger      *slog.Logger
	metrics     *EventBusMetrics
	closed      bool
	wg          sync.WaitGroup
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode decouples publishers from handler execution. The presence
	// client subscribes synchronously in tests, so AsyncMode is off by
	// default there and on in the hub binary.
	AsyncMode bool

	// WorkerPoolSize sizes the async dispatch queue. Publish blocks once the
	// queue is full, which bounds memory under a slow subscriber.
	WorkerPoolSize int

	// Logger for structured logging.
	Logger *slog.Logger

	// EnableMetrics turns on publish/handler counters.
	EnableMetrics bool
}

// DefaultInMemoryEventBusConfig returns sensible defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		EnableMetrics:  true,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus. In async mode the
// dispatcher goroutine starts immediately and runs until Close.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}

	bus := &InMemoryEventBus{
		handlers:  make(map[shared.EventType][]shared.EventHandler),
		asyncMode: config.AsyncMode,
		logger:    config.Logger,
	}

	if config.EnableMetrics {
		bus.metrics = NewEventBusMetrics()
	}

	if config.AsyncMode {
		bus.queue = make(chan shared.Event, config.WorkerPoolSize*16)
		bus.wg.Add(1)
		go bus.dispatchLoop()
	}

	return bus
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.logger.Debug("subscribed handler", "event_type", eventType)

	return nil
}

// SubscribeAll registers a handler that receives every event.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.allHandlers = append(b.allHandlers, handler)
	b.logger.Debug("subscribed global handler")

	return nil
}

// Publish delivers an event to all matching handlers. In sync mode handlers
// run inline; in async mode the event is queued for the dispatcher. A failing
// handler never blocks delivery to the others.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}

	if b.metrics != nil {
		b.metrics.RecordPublish(event.EventType())
	}

	if b.asyncMode {
		// Send under the read lock so Close cannot close the queue while a
		// publisher is mid-send.
		b.queue <- event
		b.mu.RUnlock()
		return nil
	}
	b.mu.RUnlock()

	b.deliver(event)
	return nil
}

// dispatchLoop drains the async queue in order until Close.
func (b *InMemoryEventBus) dispatchLoop() {
	defer b.wg.Done()

	for event := range b.queue {
		b.deliver(event)
	}
}

// deliver runs every matching handler for one event.
func (b *InMemoryEventBus) deliver(event shared.Event) {
	b.mu.RLock()
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debug("no handlers for event", "event_type", event.EventType())
		return
	}

	for _, handler := range handlers {
		start := time.Now()
		err := handler(event)
		duration := time.Since(start)

		if b.metrics != nil {
			b.metrics.RecordHandlerExecution(event.EventType(), duration, err == nil)
		}

		if err != nil {
			b.logger.Error("handler error",
				"event_type", event.EventType(),
				"duration", duration,
				"error", err,
			)
		}
	}
}

// Close stops accepting events and drains the async queue. Events published
// before Close are delivered before Close returns.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.asyncMode {
		close(b.queue)
	}
	b.mu.Unlock()

	b.wg.Wait()

	b.logger.Info("event bus closed")
	return nil
}

// Metrics returns the counters, or nil when metrics are disabled.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics tracks publish and handler counters.
type EventBusMetrics struct {
	mu sync.RWMutex

	publishedByType  map[shared.EventType]int64
	handlerExecs     int64
	handlerSuccesses int64
	handlerDuration  time.Duration
	since            time.Time
}

// NewEventBusMetrics creates a zeroed counter set.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{
		publishedByType: make(map[shared.EventType]int64),
		since:           time.Now(),
	}
}

// RecordPublish counts one published event.
func (m *EventBusMetrics) RecordPublish(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.publishedByType[eventType]++
}

// RecordHandlerExecution counts one handler run.
func (m *EventBusMetrics) RecordHandlerExecution(_ shared.EventType, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlerExecs++
	m.handlerDuration += duration
	if success {
		m.handlerSuccesses++
	}
}

// Snapshot returns a point-in-time copy of the counters.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var published int64
	for _, n := range m.publishedByType {
		published += n
	}

	successRate := 1.0
	avg := time.Duration(0)
	if m.handlerExecs > 0 {
		successRate = float64(m.handlerSuccesses) / float64(m.handlerExecs)
		avg = m.handlerDuration / time.Duration(m.handlerExecs)
	}

	return EventBusMetricsSnapshot{
		TotalPublished:         published,
		TotalHandlerExecs:      m.handlerExecs,
		HandlerSuccessRate:     successRate,
		AverageHandlerDuration: avg,
		Since:                  m.since,
	}
}

// EventBusMetricsSnapshot is a point-in-time view of the counters.
type EventBusMetricsSnapshot struct {
	TotalPublished         int64
	TotalHandlerExecs      int64
	HandlerSuccessRate     float64
	AverageHandlerDuration time.Duration
	Since                  time.Time
}
