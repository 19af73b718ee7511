package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// Dispatcher routes domain events to named refresh handlers, adding the
// reliability layer the raw bus does not have: panic recovery, retries with
// exponential backoff, per-handler timeouts and a dead letter queue. A streak
// refresh that keeps failing ends up in the DLQ instead of silently
// vanishing, which is what the reconciliation path inspects.
//
// Handlers run inline on the delivering bus goroutine. Concurrency comes
// from the bus's async delivery workers; the dispatcher only adds ordering
// per delivery, so a handler's retries finish before the next handler runs.
type Dispatcher struct {
	mu             sync.RWMutex
	eventBus       shared.EventBus
	handlers       map[shared.EventType][]registration
	middlewares    []Middleware
	retryPolicy    RetryConfig
	defaultTimeout time.Duration
	deadLetterQ    *DeadLetterQueue
	metrics        *DispatcherMetrics
	logger         *slog.Logger
	ctx            context.Context
	cancel         context.CancelFunc
}

type registration struct {
	name       string
	handler    shared.EventHandler
	maxRetries int
	timeout    time.Duration
}

// RetryConfig bounds how hard the dispatcher retries a failing handler
// before the event goes to the dead letter queue.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig retries three times, backing off 100ms, 200ms, 400ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	EventBus shared.EventBus

	// Retry applies to every handler that does not set its own budget.
	Retry RetryConfig

	// HandlerTimeout caps a single handler attempt.
	HandlerTimeout time.Duration

	// DeadLetterQueueSize bounds the DLQ; zero disables it.
	DeadLetterQueueSize int

	Logger *slog.Logger
}

// DefaultDispatcherConfig keeps a thousand dead letters and gives each
// handler attempt thirty seconds.
func DefaultDispatcherConfig(eventBus shared.EventBus) DispatcherConfig {
	return DispatcherConfig{
		EventBus:            eventBus,
		Retry:               DefaultRetryConfig(),
		HandlerTimeout:      30 * time.Second,
		DeadLetterQueueSize: 1000,
	}
}

// NewDispatcher creates a dispatcher. Call Start to attach it to the bus.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		eventBus:       cfg.EventBus,
		handlers:       make(map[shared.EventType][]registration),
		retryPolicy:    cfg.Retry,
		defaultTimeout: cfg.HandlerTimeout,
		metrics:        NewDispatcherMetrics(),
		logger:         cfg.Logger,
		ctx:            ctx,
		cancel:         cancel,
	}

	if cfg.DeadLetterQueueSize > 0 {
		d.deadLetterQ = NewDeadLetterQueue(cfg.DeadLetterQueueSize)
	}

	return d
}

// Register adds a named handler for an event type with the default retry
// budget and timeout.
func (d *Dispatcher) Register(eventType shared.EventType, name string, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	if name == "" {
		return errors.New("handler name cannot be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[eventType] = append(d.handlers[eventType], registration{
		name:       name,
		handler:    handler,
		maxRetries: d.retryPolicy.MaxRetries,
		timeout:    d.defaultTimeout,
	})
	d.logger.Debug("registered handler", "event_type", eventType, "handler_name", name)

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// Middleware wraps handler execution.
type Middleware func(shared.EventHandler) shared.EventHandler

// Use adds middleware. Middleware added first runs outermost.
func (d *Dispatcher) Use(middleware Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middlewares = append(d.middlewares, middleware)
}

// RecoveryMiddleware turns a handler panic into an error so one bad refresh
// cannot take down the bus worker delivering it.
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panic recovered",
						"event_type", event.EventType(),
						"panic", r,
						"stack", string(debug.Stack()),
					)
					err = fmt.Errorf("handler panic: %v", r)
				}
			}()
			return next(event)
		}
	}
}

// LoggingMiddleware logs each handler attempt with its duration.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)
			elapsed := time.Since(start)

			if err != nil {
				logger.Error("handler failed",
					"event_type", event.EventType(),
					"aggregate_id", event.AggregateID(),
					"duration", elapsed,
					"error", err,
				)
				return err
			}
			logger.Debug("handler completed",
				"event_type", event.EventType(),
				"aggregate_id", event.AggregateID(),
				"duration", elapsed,
			)
			return nil
		}
	}
}

// MetricsMiddleware feeds attempt outcomes into the dispatcher metrics.
func MetricsMiddleware(metrics *DispatcherMetrics) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)
			metrics.RecordExecution(event.EventType(), time.Since(start), err == nil)
			return err
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHING
// ══════════════════════════════════════════════════════════════════════════════

// Start subscribes the dispatcher to the bus so every published event flows
// through the registered handlers.
func (d *Dispatcher) Start() error {
	return d.eventBus.SubscribeAll(d.Dispatch)
}

// Dispatch runs every handler registered for the event's type, in
// registration order. Each handler gets its full retry budget; the returned
// error joins the handlers that still failed after it.
func (d *Dispatcher) Dispatch(event shared.Event) error {
	d.mu.RLock()
	regs := d.handlers[event.EventType()]
	middlewares := d.middlewares
	d.mu.RUnlock()

	if len(regs) == 0 {
		return nil
	}

	d.metrics.RecordDispatch(event.EventType())

	var errs []error
	for _, reg := range regs {
		if err := d.runWithRetries(event, reg, middlewares); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) runWithRetries(event shared.Event, reg registration, middlewares []Middleware) error {
	handler := reg.handler
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}

	var lastErr error
	for attempt := 0; attempt <= reg.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := d.backoffFor(attempt)
			d.logger.Debug("retrying handler",
				"handler", reg.name,
				"attempt", attempt,
				"backoff", backoff,
			)
			select {
			case <-d.ctx.Done():
				return d.ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := d.runWithTimeout(handler, event, reg.timeout)
		if err == nil {
			if attempt > 0 {
				d.metrics.RecordRetrySuccess()
			}
			return nil
		}

		lastErr = err
		d.logger.Warn("handler attempt failed",
			"handler", reg.name,
			"attempt", attempt,
			"error", err,
		)
	}

	if d.deadLetterQ != nil {
		d.deadLetterQ.Add(DeadLetterEntry{
			Event:       event,
			HandlerName: reg.name,
			Error:       lastErr,
			Attempts:    reg.maxRetries + 1,
			FailedAt:    time.Now(),
		})
	}
	d.metrics.RecordExhausted(event.EventType())

	return fmt.Errorf("handler %s failed after %d attempts: %w", reg.name, reg.maxRetries+1, lastErr)
}

// runWithTimeout bounds one attempt. The handler goroutine is not killed on
// timeout; the attempt is merely abandoned and counted as failed.
func (d *Dispatcher) runWithTimeout(handler shared.EventHandler, event shared.Event, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- handler(event)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("handler timeout after %v", timeout)
	case <-d.ctx.Done():
		return d.ctx.Err()
	}
}

func (d *Dispatcher) backoffFor(attempt int) time.Duration {
	backoff := float64(d.retryPolicy.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= d.retryPolicy.BackoffMultiplier
	}
	if backoff > float64(d.retryPolicy.MaxBackoff) {
		backoff = float64(d.retryPolicy.MaxBackoff)
	}
	return time.Duration(backoff)
}

// Stop cancels in-flight retries and backoff waits.
func (d *Dispatcher) Stop() error {
	d.cancel()
	d.logger.Info("dispatcher stopped")
	return nil
}

// Metrics returns the dispatcher's counters.
func (d *Dispatcher) Metrics() *DispatcherMetrics {
	return d.metrics
}

// DeadLetterQueue returns the dead letter queue, or nil when disabled.
func (d *Dispatcher) DeadLetterQueue() *DeadLetterQueue {
	return d.deadLetterQ
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry is an event whose handler exhausted its retries.
type DeadLetterEntry struct {
	Event       shared.Event
	HandlerName string
	Error       error
	Attempts    int
	FailedAt    time.Time
}

// DeadLetterQueue is a bounded in-memory queue of failed events. When full,
// the oldest entry is dropped to make room.
type DeadLetterQueue struct {
	mu      sync.RWMutex
	entries []DeadLetterEntry
	maxSize int
}

// NewDeadLetterQueue creates a queue holding at most maxSize entries.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &DeadLetterQueue{maxSize: maxSize}
}

// Add appends an entry, evicting the oldest when the queue is full.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Entries returns a copy of the queue, oldest first.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]DeadLetterEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Size returns how many entries are queued.
func (q *DeadLetterQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// DispatcherMetrics counts dispatches and handler attempt outcomes.
type DispatcherMetrics struct {
	mu sync.RWMutex

	dispatched     map[shared.EventType]int64
	executions     int64
	successes      int64
	failures       int64
	retrySuccesses int64
	exhausted      int64
	totalDuration  time.Duration
	startedAt      time.Time
}

// NewDispatcherMetrics creates zeroed metrics.
func NewDispatcherMetrics() *DispatcherMetrics {
	return &DispatcherMetrics{
		dispatched: make(map[shared.EventType]int64),
		startedAt:  time.Now(),
	}
}

// RecordDispatch counts one event entering the dispatcher.
func (m *DispatcherMetrics) RecordDispatch(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatched[eventType]++
}

// RecordExecution counts one handler attempt.
func (m *DispatcherMetrics) RecordExecution(eventType shared.EventType, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.executions++
	m.totalDuration += duration
	if success {
		m.successes++
	} else {
		m.failures++
	}
}

// RecordRetrySuccess counts a handler that succeeded after retrying.
func (m *DispatcherMetrics) RecordRetrySuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retrySuccesses++
}

// RecordExhausted counts a handler that failed its whole retry budget.
func (m *DispatcherMetrics) RecordExhausted(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exhausted++
}

// Snapshot returns a point-in-time view of the counters.
func (m *DispatcherMetrics) Snapshot() DispatcherMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var totalDispatched int64
	for _, v := range m.dispatched {
		totalDispatched += v
	}

	avg := time.Duration(0)
	if m.executions > 0 {
		avg = m.totalDuration / time.Duration(m.executions)
	}
	rate := 1.0
	if m.executions > 0 {
		rate = float64(m.successes) / float64(m.executions)
	}

	return DispatcherMetricsSnapshot{
		TotalDispatched: totalDispatched,
		TotalExecutions: m.executions,
		TotalFailures:   m.failures,
		RetrySuccesses:  m.retrySuccesses,
		Exhausted:       m.exhausted,
		SuccessRate:     rate,
		AverageDuration: avg,
		StartedAt:       m.startedAt,
	}
}

// DispatcherMetricsSnapshot is a point-in-time view of the counters.
type DispatcherMetricsSnapshot struct {
	TotalDispatched int64         `json:"total_dispatched"`
	TotalExecutions int64         `json:"total_executions"`
	TotalFailures   int64         `json:"total_failures"`
	RetrySuccesses  int64         `json:"retry_successes"`
	Exhausted       int64         `json:"exhausted"`
	SuccessRate     float64       `json:"success_rate"`
	AverageDuration time.Duration `json:"average_duration"`
	StartedAt       time.Time     `json:"started_at"`
}
