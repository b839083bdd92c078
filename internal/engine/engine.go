// Package engine implements the Event Engine: a typed publish/subscribe bus
// that dispatches canonical events to registered listeners with per-producer
// ordering and a string-keyed dynamic capability table.
//
// Dispatch model: single-threaded cooperative dispatch from a dedicated
// engine goroutine is the baseline. An optional parallel mode dispatches on
// a worker pool keyed by event symbol (symbol-sticky) to preserve per-symbol
// ordering; it is opted into via WithParallelDispatch.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ai-agentic-browser/eventbus/internal/eventmodel"
	"github.com/ai-agentic-browser/eventbus/pkg/observability"
)

// Listener receives events of a single registered type, or every event if
// registered globally.
type Listener func(ctx context.Context, evt eventmodel.Event)

// CapabilityFunc is a dynamically-dispatched operation exposed through the
// capability table (inject/call), e.g. Account Manager's get_position.
type CapabilityFunc func(args ...interface{}) (interface{}, error)

// Component is attached to and owned by the engine. Stop is called at most
// once, after which the component receives no further dispatch.
type Component interface {
	Start(e *Engine) error
	Stop() error
}

// Symboler is implemented by events that carry a symbol, used for
// symbol-sticky parallel dispatch.
type Symboler interface {
	SymbolKey() string
}

type globalListener struct {
	fn         Listener
	ignoreSelf bool
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithParallelDispatch opts into symbol-sticky parallel dispatch across n
// workers instead of the single-threaded baseline. Per-symbol ordering is
// preserved because every event for a given symbol hashes to the same
// worker.
func WithParallelDispatch(workers int) Option {
	return func(e *Engine) {
		if workers > 0 {
			e.workers = workers
		}
	}
}

// WithLogger attaches a structured logger used for listener-error isolation
// and lifecycle logging.
func WithLogger(l *observability.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithQueueCapacity sets the inbound put() queue capacity (per worker in
// parallel mode). Default 4096.
func WithQueueCapacity(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queueCap = n
		}
	}
}

// WithMetrics attaches a metrics provider; every dispatch records its
// duration and every listener panic increments a counter.
func WithMetrics(mp *observability.MetricsProvider) Option {
	return func(e *Engine) { e.metrics = mp }
}

// Engine is the in-process pub/sub bus connecting adapters, the order state
// machine, and the account manager.
type Engine struct {
	mu       sync.RWMutex
	byType   map[eventmodel.Type][]Listener
	globals  []globalListener
	capTable map[string]CapabilityFunc
	comps    []Component

	workers  int
	queueCap int
	queues   []chan queuedEvent
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  int32

	logger  *observability.Logger
	metrics *observability.MetricsProvider
}

type queuedEvent struct {
	ctx context.Context
	evt eventmodel.Event
}

// New constructs an Engine. Call Start before Put/dispatch begins, and Stop
// to terminate dispatch goroutines; events still queued at Stop are not
// delivered.
func New(opts ...Option) *Engine {
	e := &Engine{
		byType:   make(map[eventmodel.Type][]Listener),
		capTable: make(map[string]CapabilityFunc),
		workers:  1,
		queueCap: 4096,
		stopChan: make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Start begins dispatch and starts every attached component. Safe to call
// once; subsequent calls are no-ops.
func (e *Engine) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&e.running, 0, 1) {
		return nil
	}
	e.queues = make([]chan queuedEvent, e.workers)
	for i := range e.queues {
		e.queues[i] = make(chan queuedEvent, e.queueCap)
		e.wg.Add(1)
		go e.dispatchLoop(ctx, i)
	}
	e.mu.RLock()
	comps := append([]Component(nil), e.comps...)
	e.mu.RUnlock()
	for _, c := range comps {
		if err := c.Start(e); err != nil {
			return fmt.Errorf("start component: %w", err)
		}
	}
	return nil
}

// Stop terminates all dispatch goroutines and stops every attached
// component. Blocks until dispatch goroutines exit.
func (e *Engine) Stop() error {
	if !atomic.CompareAndSwapInt32(&e.running, 1, 0) {
		return nil
	}
	close(e.stopChan)
	e.wg.Wait()

	e.mu.RLock()
	comps := append([]Component(nil), e.comps...)
	e.mu.RUnlock()
	var firstErr error
	for _, c := range comps {
		if err := c.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Put enqueues an event for dispatch. Events from a given producer are
// delivered in the order they were put; cross-producer ordering is not
// guaranteed. Put never blocks the caller indefinitely: if the target
// worker's queue is full the event is dropped and logged, matching the
// journal's "slow readers are sacrificed" philosophy at the engine's own
// ingress.
func (e *Engine) Put(ctx context.Context, evt eventmodel.Event) {
	if atomic.LoadInt32(&e.running) == 0 {
		return
	}
	idx := e.workerFor(evt)
	select {
	case e.queues[idx] <- queuedEvent{ctx: ctx, evt: evt}:
	default:
		if e.logger != nil {
			e.logger.Warn(ctx, "engine queue full, dropping event", map[string]interface{}{
				"type":     evt.Kind().String(),
				"producer": evt.Producer(),
			})
		}
	}
}

func (e *Engine) workerFor(evt eventmodel.Event) int {
	if len(e.queues) == 1 {
		return 0
	}
	if s, ok := evt.(Symboler); ok {
		return symbolHash(s.SymbolKey()) % len(e.queues)
	}
	return 0
}

func symbolHash(s string) int {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	if h > 1<<31 {
		h = h - (1 << 31)
	}
	return int(h)
}

func (e *Engine) dispatchLoop(ctx context.Context, worker int) {
	defer e.wg.Done()
	q := e.queues[worker]
	for {
		select {
		case <-e.stopChan:
			return
		case qe := <-q:
			e.dispatch(qe.ctx, qe.evt)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, evt eventmodel.Event) {
	start := time.Now()
	e.mu.RLock()
	typed := append([]Listener(nil), e.byType[evt.Kind()]...)
	globals := append([]globalListener(nil), e.globals...)
	e.mu.RUnlock()

	for _, l := range typed {
		e.invoke(ctx, l, evt)
	}
	for _, g := range globals {
		if g.ignoreSelf && evt.Producer() != "" {
			// ignore_self suppresses delivery when the context passed to
			// Put was tagged with WithProducer using the event's own
			// producer id.
			if pid, ok := ctx.Value(selfProducerKey{}).(string); ok && pid == evt.Producer() {
				continue
			}
		}
		e.invoke(ctx, g.fn, evt)
	}
	if e.metrics != nil {
		e.metrics.RecordDispatch(ctx, evt.Kind().String(), time.Since(start))
	}
}

// invoke calls a listener and isolates any panic/error so dispatch never
// aborts: log and continue.
func (e *Engine) invoke(ctx context.Context, l Listener, evt eventmodel.Event) {
	defer func() {
		if r := recover(); r != nil {
			if e.logger != nil {
				e.logger.Error(ctx, "listener panic", fmt.Errorf("%v", r), map[string]interface{}{
					"type": evt.Kind().String(),
				})
			}
			if e.metrics != nil && e.metrics.EngineListenerErrors != nil {
				e.metrics.EngineListenerErrors.Add(ctx, 1)
			}
		}
	}()
	l(ctx, evt)
}

type selfProducerKey struct{}

// WithProducer tags a context with a producer id so register_global's
// ignore_self flag can suppress feedback loops.
func WithProducer(ctx context.Context, producerID string) context.Context {
	return context.WithValue(ctx, selfProducerKey{}, producerID)
}

// Register attaches a listener to events matching a specific type tag.
// Multiple listeners per type are permitted; delivery order among them is
// registration order.
func (e *Engine) Register(t eventmodel.Type, l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byType[t] = append(e.byType[t], l)
}

// RegisterGlobal attaches a listener that receives every event. ignoreSelf
// suppresses re-delivery of events the listener itself produced.
func (e *Engine) RegisterGlobal(l Listener, ignoreSelf bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.globals = append(e.globals, globalListener{fn: l, ignoreSelf: ignoreSelf})
}

// Inject adds a named capability to the dynamic capability table.
func (e *Engine) Inject(name string, fn CapabilityFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.capTable[name] = fn
}

// Call invokes a named capability. Returns an error if no capability with
// that name has been injected.
func (e *Engine) Call(name string, args ...interface{}) (interface{}, error) {
	e.mu.RLock()
	fn, ok := e.capTable[name]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: no capability registered: %s", name)
	}
	return fn(args...)
}

// Attach registers a component for lifecycle management. If the engine is
// already running, the component is started immediately.
func (e *Engine) Attach(c Component) error {
	e.mu.Lock()
	e.comps = append(e.comps, c)
	running := atomic.LoadInt32(&e.running) == 1
	e.mu.Unlock()
	if running {
		return c.Start(e)
	}
	return nil
}

// Detach stops the component and removes it from lifecycle management.
// Listeners and capabilities the component registered are not removed and
// keep being invoked by later dispatches.
func (e *Engine) Detach(c Component) error {
	e.mu.Lock()
	for i, existing := range e.comps {
		if existing == c {
			e.comps = append(e.comps[:i], e.comps[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
	return c.Stop()
}
