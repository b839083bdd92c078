// Package orders implements the order state machine: the canonical order
// lifecycle graph and its fill-accounting rules, carrying forward the
// ID/timestamp defaulting of a classic order manager but enforcing the
// full lifecycle graph instead of a flat status field.
package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ai-agentic-browser/eventbus/internal/busfault"
	"github.com/ai-agentic-browser/eventbus/internal/engine"
	"github.com/ai-agentic-browser/eventbus/internal/eventmodel"
	"github.com/ai-agentic-browser/eventbus/pkg/observability"
	"github.com/google/uuid"
)

// validTransitions enumerates the order lifecycle graph. A transition not
// present here is a StateMachineViolation.
var validTransitions = map[eventmodel.OrderState][]eventmodel.OrderState{
	eventmodel.OrderCreated:         {eventmodel.OrderSubmitted},
	eventmodel.OrderSubmitted:       {eventmodel.OrderAccepted, eventmodel.OrderRejected},
	eventmodel.OrderAccepted:        {eventmodel.OrderPartiallyFilled, eventmodel.OrderFilled, eventmodel.OrderCancelled, eventmodel.OrderExpired, eventmodel.OrderRejected},
	eventmodel.OrderPartiallyFilled: {eventmodel.OrderPartiallyFilled, eventmodel.OrderFilled, eventmodel.OrderCancelled},
}

func canTransition(from, to eventmodel.OrderState) bool {
	if from == to {
		return true // idempotent re-delivery of the same state is not an error
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Manager owns the set of local orders and applies the lifecycle rules to
// every incoming venue update: ID/ClientOrderID/timestamp defaulting plus
// the full state graph instead of a flat New/Filled/Cancelled status.
type Manager struct {
	mu       sync.RWMutex
	orders   map[string]*eventmodel.Order // by local OrderID
	byClient map[string]string            // ClientOrderID -> local OrderID

	metrics *observability.MetricsProvider
	audit   *observability.AuditLogger
}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*Manager)

// WithMetrics attaches a metrics provider; every accepted transition records
// its from/to state pair.
func WithMetrics(mp *observability.MetricsProvider) ManagerOption {
	return func(m *Manager) { m.metrics = mp }
}

// WithAuditLogger attaches an audit logger; every accepted transition is
// logged for the compliance trail.
func WithAuditLogger(al *observability.AuditLogger) ManagerOption {
	return func(m *Manager) { m.audit = al }
}

// NewManager constructs an empty order Manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		orders:   make(map[string]*eventmodel.Order),
		byClient: make(map[string]string),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start attaches the Manager as an Engine component: it registers for Order
// events carrying venue execution reports and applies each as an update
// against the order the ClientOrderID was created under.
func (m *Manager) Start(e *engine.Engine) error {
	e.Register(eventmodel.TypeOrder, m.onOrder)

	e.Inject("get_order", func(args ...interface{}) (interface{}, error) {
		orderID, _ := args[0].(string)
		o, ok := m.Get(orderID)
		if !ok {
			return nil, fmt.Errorf("orders: unknown order %s", orderID)
		}
		return o, nil
	})
	e.Inject("get_active_orders", func(args ...interface{}) (interface{}, error) {
		return m.Active(), nil
	})
	return nil
}

// Stop is a no-op; the Manager holds no external resources.
func (m *Manager) Stop() error { return nil }

// onOrder translates an incoming venue-sourced Order event — identified by
// ClientOrderID, the only id a venue echoes back on its own updates — into
// an ApplyUpdate call against the locally created order. Updates for an
// order this Manager never created (e.g. one placed out-of-band) are
// dropped rather than silently adopted.
func (m *Manager) onOrder(ctx context.Context, evt eventmodel.Event) {
	o, ok := evt.(*eventmodel.Order)
	if !ok {
		return
	}
	m.mu.RLock()
	orderID, known := m.byClient[o.ClientOrderID]
	m.mu.RUnlock()
	if !known {
		return
	}
	_, _ = m.ApplyUpdate(orderID, *o)
}

// Create allocates a new order in the CREATED state, defaulting OrderID and
// ClientOrderID if unset.
func (m *Manager) Create(o *eventmodel.Order) *eventmodel.Order {
	if o.OrderID == "" {
		o.OrderID = uuid.NewString()
	}
	if o.ClientOrderID == "" {
		o.ClientOrderID = o.OrderID
	}
	o.State = eventmodel.OrderCreated
	if o.UpdateTime.IsZero() {
		o.UpdateTime = time.Now()
	}
	m.mu.Lock()
	m.orders[o.OrderID] = o
	m.byClient[o.ClientOrderID] = o.OrderID
	m.mu.Unlock()
	return o
}

// Get returns a snapshot copy of the order by local id.
func (m *Manager) Get(orderID string) (eventmodel.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[orderID]
	if !ok {
		return eventmodel.Order{}, false
	}
	return *o, true
}

// ApplyUpdate applies a venue-reported state/fill update to the order,
// enforcing:
//   - out-of-order updates (older UpdateTime) are dropped, not an error;
//   - filled_quantity only grows — a decrease is dropped and returned as a
//     StateMachineViolation error (ApplyUpdate itself does not log it);
//   - a fill with filled_quantity == quantity forces state to FILLED
//     regardless of the venue's reported state;
//   - transitions out of a terminal state are rejected.
func (m *Manager) ApplyUpdate(orderID string, update eventmodel.Order) (*eventmodel.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, busfault.New(busfault.StateMachineViolation, "orders.ApplyUpdate", fmt.Sprintf("unknown order %s", orderID))
	}

	if o.State.IsFinal() {
		return o, busfault.New(busfault.StateMachineViolation, "orders.ApplyUpdate", "update received for order already in a terminal state")
	}

	if !update.UpdateTime.IsZero() && !o.UpdateTime.IsZero() && update.UpdateTime.Before(o.UpdateTime) {
		return o, nil // stale update: dropped without changing the order
	}

	if update.FilledQuantity.LessThan(o.FilledQuantity) {
		return o, busfault.New(busfault.StateMachineViolation, "orders.ApplyUpdate", "filled_quantity decreased, dropped")
	}

	targetState := update.State
	if !update.FilledQuantity.IsZero() && update.FilledQuantity.Equal(o.Quantity) {
		targetState = eventmodel.OrderFilled
	}

	if !canTransition(o.State, targetState) {
		return o, busfault.New(busfault.StateMachineViolation, "orders.ApplyUpdate",
			fmt.Sprintf("illegal transition %s -> %s", o.State, targetState))
	}

	fromState := o.State
	if update.ExchangeOrderID != "" {
		o.ExchangeOrderID = update.ExchangeOrderID
	}
	o.FilledQuantity = update.FilledQuantity
	if !update.FilledPrice.IsZero() {
		o.FilledPrice = update.FilledPrice
	}
	if update.FilledPriceStr != "" {
		o.FilledPriceStr = update.FilledPriceStr
	}
	o.State = targetState
	if !update.UpdateTime.IsZero() {
		o.UpdateTime = update.UpdateTime
	}

	if fromState != targetState {
		ctx := context.Background()
		if m.metrics != nil {
			m.metrics.RecordOrderTransition(ctx, fromState.String(), targetState.String())
		}
		if m.audit != nil {
			m.audit.LogOrderTransition(ctx, o.OrderID, o.Symbol, fromState.String(), targetState.String())
		}
	}
	return o, nil
}

// Active returns snapshots of every order whose state is still active.
func (m *Manager) Active() []eventmodel.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []eventmodel.Order
	for _, o := range m.orders {
		if o.State.IsActive() {
			out = append(out, *o)
		}
	}
	return out
}
