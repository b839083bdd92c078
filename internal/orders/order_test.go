package orders

import (
	"context"
	"testing"
	"time"

	"github.com/ai-agentic-browser/eventbus/internal/engine"
	"github.com/ai-agentic-browser/eventbus/internal/eventmodel"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseOrder(symbol string, qty, price float64) *eventmodel.Order {
	return &eventmodel.Order{
		Symbol:   symbol,
		Side:     eventmodel.SideBuy,
		Type:     eventmodel.OrderTypeLimit,
		Price:    decimal.NewFromFloat(price),
		Quantity: decimal.NewFromFloat(qty),
	}
}

// limit buy fully filled.
func TestLimitBuyFullyFilled(t *testing.T) {
	m := NewManager()
	o := m.Create(baseOrder("BTC-USDT-SWAP", 0.01, 50000))

	now := time.Now()
	_, err := m.ApplyUpdate(o.OrderID, eventmodel.Order{State: eventmodel.OrderSubmitted, UpdateTime: now})
	require.NoError(t, err)

	now = now.Add(time.Millisecond)
	_, err = m.ApplyUpdate(o.OrderID, eventmodel.Order{State: eventmodel.OrderAccepted, ExchangeOrderID: "12345", UpdateTime: now})
	require.NoError(t, err)

	now = now.Add(time.Millisecond)
	got, err := m.ApplyUpdate(o.OrderID, eventmodel.Order{
		State:          eventmodel.OrderAccepted, // venue may report "live"; forced to FILLED below
		FilledQuantity: decimal.NewFromFloat(0.01),
		FilledPrice:    decimal.NewFromFloat(50000),
		UpdateTime:     now,
	})
	require.NoError(t, err)
	assert.Equal(t, eventmodel.OrderFilled, got.State, "a fill with filled_quantity == quantity forces FILLED regardless of reported state")
	assert.Equal(t, "12345", got.ExchangeOrderID)
	assert.True(t, got.State.IsFinal())
}

// partial fill then cancel.
func TestPartialFillThenCancel(t *testing.T) {
	m := NewManager()
	o := m.Create(baseOrder("ETH-USDT", 1.0, 2250))
	o.Side = eventmodel.SideSell

	now := time.Now()
	must := func(err error) { require.NoError(t, err) }
	_, err := m.ApplyUpdate(o.OrderID, eventmodel.Order{State: eventmodel.OrderSubmitted, UpdateTime: now})
	must(err)
	now = now.Add(time.Millisecond)
	_, err = m.ApplyUpdate(o.OrderID, eventmodel.Order{State: eventmodel.OrderAccepted, UpdateTime: now})
	must(err)

	now = now.Add(time.Millisecond)
	got, err := m.ApplyUpdate(o.OrderID, eventmodel.Order{
		State:          eventmodel.OrderPartiallyFilled,
		FilledQuantity: decimal.NewFromFloat(0.5),
		FilledPrice:    decimal.NewFromFloat(2250),
		UpdateTime:     now,
	})
	must(err)
	assert.Equal(t, eventmodel.OrderPartiallyFilled, got.State)

	now = now.Add(time.Millisecond)
	got, err = m.ApplyUpdate(o.OrderID, eventmodel.Order{
		State:          eventmodel.OrderCancelled,
		FilledQuantity: decimal.NewFromFloat(0.5),
		UpdateTime:     now,
	})
	must(err)
	assert.Equal(t, eventmodel.OrderCancelled, got.State)
	assert.True(t, got.FilledQuantity.Equal(decimal.NewFromFloat(0.5)))
}

func TestOutOfOrderUpdateDropped(t *testing.T) {
	m := NewManager()
	o := m.Create(baseOrder("BTC-USDT", 1, 100))
	later := time.Now()
	earlier := later.Add(-time.Second)

	_, err := m.ApplyUpdate(o.OrderID, eventmodel.Order{State: eventmodel.OrderSubmitted, UpdateTime: later})
	require.NoError(t, err)

	got, err := m.ApplyUpdate(o.OrderID, eventmodel.Order{State: eventmodel.OrderAccepted, UpdateTime: earlier})
	require.NoError(t, err, "a stale update is dropped, not reported as an error")
	assert.Equal(t, eventmodel.OrderSubmitted, got.State, "an update with an earlier timestamp than the current state must be dropped")
}

func TestFilledQuantityNeverDecreases(t *testing.T) {
	m := NewManager()
	o := m.Create(baseOrder("BTC-USDT", 1, 100))
	now := time.Now()
	_, err := m.ApplyUpdate(o.OrderID, eventmodel.Order{State: eventmodel.OrderSubmitted, UpdateTime: now})
	require.NoError(t, err)
	now = now.Add(time.Millisecond)
	_, err = m.ApplyUpdate(o.OrderID, eventmodel.Order{State: eventmodel.OrderAccepted, UpdateTime: now})
	require.NoError(t, err)
	now = now.Add(time.Millisecond)
	_, err = m.ApplyUpdate(o.OrderID, eventmodel.Order{
		State:          eventmodel.OrderPartiallyFilled,
		FilledQuantity: decimal.NewFromFloat(0.5),
		UpdateTime:     now,
	})
	require.NoError(t, err)

	now = now.Add(time.Millisecond)
	_, err = m.ApplyUpdate(o.OrderID, eventmodel.Order{
		State:          eventmodel.OrderPartiallyFilled,
		FilledQuantity: decimal.NewFromFloat(0.2),
		UpdateTime:     now,
	})
	require.Error(t, err)
}

func TestStartRoutesEngineOrderEventsByClientOrderID(t *testing.T) {
	m := NewManager()
	e := engine.New()
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()
	require.NoError(t, e.Attach(m))

	created := m.Create(baseOrder("BTC-USDT", 1, 100))
	require.NotEmpty(t, created.ClientOrderID, "Create must default ClientOrderID")
	_, err := m.ApplyUpdate(created.OrderID, eventmodel.Order{State: eventmodel.OrderSubmitted, UpdateTime: time.Now()})
	require.NoError(t, err, "CREATED may only advance to SUBMITTED")

	e.Put(context.Background(), &eventmodel.Order{
		Base:           eventmodel.Base{Type: eventmodel.TypeOrder},
		ClientOrderID:  created.ClientOrderID,
		State:          eventmodel.OrderAccepted,
		FilledQuantity: decimal.Zero,
		UpdateTime:     time.Now(),
	})

	require.Eventually(t, func() bool {
		got, _ := m.Get(created.OrderID)
		return got.State == eventmodel.OrderAccepted
	}, time.Second, time.Millisecond, "ApplyUpdate should be driven by the Engine dispatch, keyed on ClientOrderID")
}

func TestStartIgnoresOrderEventForUnknownClientOrderID(t *testing.T) {
	m := NewManager()
	e := engine.New()
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()
	require.NoError(t, e.Attach(m))

	e.Put(context.Background(), &eventmodel.Order{
		Base:          eventmodel.Base{Type: eventmodel.TypeOrder},
		ClientOrderID: "no-such-order",
		State:         eventmodel.OrderAccepted,
	})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, m.Active(), "an update for an order this Manager never created must be dropped")
}

func TestNoTransitionOutOfTerminalState(t *testing.T) {
	m := NewManager()
	o := m.Create(baseOrder("BTC-USDT", 1, 100))
	now := time.Now()
	_, _ = m.ApplyUpdate(o.OrderID, eventmodel.Order{State: eventmodel.OrderSubmitted, UpdateTime: now})
	now = now.Add(time.Millisecond)
	_, _ = m.ApplyUpdate(o.OrderID, eventmodel.Order{State: eventmodel.OrderRejected, UpdateTime: now})

	now = now.Add(time.Millisecond)
	_, err := m.ApplyUpdate(o.OrderID, eventmodel.Order{State: eventmodel.OrderAccepted, UpdateTime: now})
	require.Error(t, err, "no transition may leave a terminal state")
}
