// Package account implements the account manager: aggregates orders and
// quotes into positions with same/opposite-side fill accounting and
// unrealized/realized PnL.
//
// The fill-accounting algorithm keeps the classic three branches of a
// position-update routine (opening, same-side accumulation, opposite-side
// close/reversal), generalized onto the canonical Position/Order types and
// a signed-quantity model.
package account

import (
	"context"
	"sync"
	"time"

	"github.com/ai-agentic-browser/eventbus/internal/engine"
	"github.com/ai-agentic-browser/eventbus/internal/eventmodel"
	"github.com/shopspring/decimal"
)

// Manager owns the positions map exclusively; external reads only ever see
// snapshots copied out under a narrow lock — no lock ever escapes the
// manager.
type Manager struct {
	mu        sync.RWMutex
	positions map[string]*eventmodel.Position // by symbol
	orders    map[string]*eventmodel.Order     // active orders by local id, snapshot cache
	eng       *engine.Engine
}

// NewManager constructs an empty Account Manager.
func NewManager() *Manager {
	return &Manager{
		positions: make(map[string]*eventmodel.Position),
		orders:    make(map[string]*eventmodel.Order),
	}
}

// Start attaches the manager as an Engine component: it registers for Order
// and Ticker events and injects its capability-table operations.
func (m *Manager) Start(e *engine.Engine) error {
	m.eng = e
	e.Register(eventmodel.TypeOrder, m.onOrder)
	e.Register(eventmodel.TypeTicker, m.onTicker)

	e.Inject("get_position", func(args ...interface{}) (interface{}, error) {
		symbol, _ := args[0].(string)
		pos, _ := m.GetPosition(symbol)
		return pos, nil
	})
	e.Inject("get_active_orders", func(args ...interface{}) (interface{}, error) {
		return m.ActiveOrders(), nil
	})
	e.Inject("get_balance", func(args ...interface{}) (interface{}, error) {
		return m.Balance(), nil
	})
	return nil
}

// Stop is a no-op; the Account Manager holds no external resources.
func (m *Manager) Stop() error { return nil }

// onOrder tracks every order update and, on a fill (filled_quantity grew
// since the last observed value for this order), applies the accounting
// rules in ApplyFill.
func (m *Manager) onOrder(ctx context.Context, evt eventmodel.Event) {
	o, ok := evt.(*eventmodel.Order)
	if !ok {
		return
	}
	m.mu.Lock()
	prev, existed := m.orders[o.OrderID]
	prevFilled := decimal.Zero
	if existed {
		prevFilled = prev.FilledQuantity
	}
	cp := *o
	m.orders[o.OrderID] = &cp
	m.mu.Unlock()

	delta := o.FilledQuantity.Sub(prevFilled)
	if delta.IsPositive() {
		m.ApplyFill(*o, delta, o.FilledPrice)
	}
}

// onTicker updates unrealized PnL for any open position on the ticker's
// symbol: unrealized_pnl = (last_price - avg_price) * quantity.
func (m *Manager) onTicker(ctx context.Context, evt eventmodel.Event) {
	t, ok := evt.(*eventmodel.Ticker)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[t.Symbol]
	if !ok || pos.IsFlat() {
		return
	}
	pos.UnrealizedPL = t.LastPrice.Sub(pos.AvgPrice).Mul(pos.Quantity)
}

// ApplyFill applies one order fill to the position for order.Symbol: open,
// accumulate same-side, or close/reverse opposite-side, updating realized
// and unrealized PnL accordingly.
func (m *Manager) ApplyFill(order eventmodel.Order, fillQty, fillPrice decimal.Decimal) eventmodel.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[order.Symbol]
	if !ok {
		pos = &eventmodel.Position{Symbol: order.Symbol}
		m.positions[order.Symbol] = pos
	}

	// q: filled_quantity signed by side (BUY positive, SELL negative).
	q := fillQty
	if order.Side == eventmodel.SideSell {
		q = q.Neg()
	}
	p := fillPrice

	switch {
	case pos.Quantity.IsZero():
		// Opening a new position.
		pos.Quantity = q
		pos.AvgPrice = p

	case sameSign(pos.Quantity, q):
		// Adding to an existing position: weighted-average price.
		newQuantity := pos.Quantity.Add(q)
		newAvg := pos.AvgPrice.Mul(pos.Quantity).Add(p.Mul(q)).Div(newQuantity)
		pos.Quantity = newQuantity
		pos.AvgPrice = newAvg

	default:
		// Opposite side: realize PnL on the closing portion.
		closeQty := decimal.Min(q.Abs(), pos.Quantity.Abs())
		sign := decimal.NewFromInt(1)
		if pos.Quantity.IsNegative() {
			sign = decimal.NewFromInt(-1)
		}
		pnl := p.Sub(pos.AvgPrice).Mul(closeQty).Mul(sign)
		pos.RealizedPL = pos.RealizedPL.Add(pnl)

		newQuantity := pos.Quantity.Add(q)
		if q.Abs().GreaterThan(pos.Quantity.Abs()) {
			// Reversing the position: the excess beyond what's needed to
			// close the old position opens a new one at the fill price.
			pos.AvgPrice = p
		}
		pos.Quantity = newQuantity
		if pos.Quantity.IsZero() {
			pos.AvgPrice = decimal.Zero // reset: avg_price is undefined when flat
		}
	}

	return *pos
}

func sameSign(a, b decimal.Decimal) bool {
	return a.Sign() == b.Sign()
}

// GetPosition returns a snapshot of the position for symbol, or a zero-value
// flat position if none exists.
func (m *Manager) GetPosition(symbol string) (eventmodel.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[symbol]
	if !ok {
		return eventmodel.Position{Symbol: symbol}, false
	}
	return *pos, true
}

// ActiveOrders returns a snapshot of every locally-tracked active order.
func (m *Manager) ActiveOrders() []eventmodel.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]eventmodel.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if o.State.IsActive() {
			out = append(out, *o)
		}
	}
	return out
}

// Balance returns a zero-value Account snapshot stamped with the current
// time. No balance data is tracked by this manager, and no adapter feeds
// account updates into it.
func (m *Manager) Balance() eventmodel.Account {
	return eventmodel.Account{Base: eventmodel.Base{Timestamp: time.Now()}}
}
