package binance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ai-agentic-browser/eventbus/internal/engine"
	"github.com/ai-agentic-browser/eventbus/internal/eventmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e := engine.New()
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })
	return e
}

func collect(e *engine.Engine, typ eventmodel.Type) (<-chan eventmodel.Event, func()) {
	ch := make(chan eventmodel.Event, 8)
	var mu sync.Mutex
	closed := false
	e.Register(typ, func(ctx context.Context, evt eventmodel.Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		ch <- evt
	})
	return ch, func() { mu.Lock(); closed = true; mu.Unlock() }
}

func TestRouteDepthUpdate(t *testing.T) {
	e := newTestEngine(t)
	got, done := collect(e, eventmodel.TypeOrderBookSnapshot)
	defer done()

	raw := []byte(`{"e":"depthUpdate","s":"BTCUSDT","b":[["100.5","1.2"]],"a":[["101.0","0.8"]]}`)
	require.NoError(t, Route(context.Background(), raw, "binance-public", e, nil))

	select {
	case evt := <-got:
		snap := evt.(*eventmodel.OrderBookSnapshot)
		assert.Equal(t, "BTCUSDT", snap.Symbol)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OrderBookSnapshot")
	}
}

func TestRouteTrade(t *testing.T) {
	e := newTestEngine(t)
	got, done := collect(e, eventmodel.TypeTrade)
	defer done()

	raw := []byte(`{"e":"trade","s":"ETHUSDT","t":7,"p":"2000.5","q":"0.1","m":true}`)
	require.NoError(t, Route(context.Background(), raw, "binance-public", e, nil))

	select {
	case evt := <-got:
		trade := evt.(*eventmodel.Trade)
		assert.Equal(t, "ETHUSDT", trade.Symbol)
		assert.Equal(t, eventmodel.SideSell, trade.Side)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Trade")
	}
}

func TestRouteKlineSuppressesUnconfirmed(t *testing.T) {
	e := newTestEngine(t)
	got, done := collect(e, eventmodel.TypeKline)
	defer done()

	unconfirmed := []byte(`{"e":"kline","s":"BTCUSDT","k":{"i":"1m","o":"100","x":false}}`)
	require.NoError(t, Route(context.Background(), unconfirmed, "binance-public", e, nil))

	select {
	case <-got:
		t.Fatal("an unconfirmed kline must not be published")
	case <-time.After(50 * time.Millisecond):
	}

	confirmed := []byte(`{"e":"kline","s":"BTCUSDT","k":{"i":"1m","o":"100","x":true}}`)
	require.NoError(t, Route(context.Background(), confirmed, "binance-public", e, nil))
	select {
	case evt := <-got:
		assert.True(t, evt.(*eventmodel.Kline).IsConfirmed)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for confirmed Kline")
	}
}

func TestRouteExecutionReport(t *testing.T) {
	e := newTestEngine(t)
	got, done := collect(e, eventmodel.TypeOrder)
	defer done()

	raw := []byte(`{"e":"executionReport","s":"BTCUSDT","c":"cli-1","S":"BUY","o":"LIMIT","X":"NEW","i":5,"p":"100","q":"1"}`)
	require.NoError(t, Route(context.Background(), raw, "binance-private", e, nil))

	select {
	case evt := <-got:
		order := evt.(*eventmodel.Order)
		assert.Equal(t, "cli-1", order.ClientOrderID)
		assert.Equal(t, eventmodel.OrderAccepted, order.State)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Order")
	}
}

func TestRouteBookTickerHasNoEventTypeField(t *testing.T) {
	e := newTestEngine(t)
	got, done := collect(e, eventmodel.TypeTicker)
	defer done()

	raw := []byte(`{"s":"BTCUSDT","b":"100.1","B":"1","a":"100.2","A":"1"}`)
	require.NoError(t, Route(context.Background(), raw, "binance-public", e, nil))

	select {
	case evt := <-got:
		ticker := evt.(*eventmodel.Ticker)
		assert.Equal(t, "BTCUSDT", ticker.Symbol)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bookTicker Ticker")
	}
}

func TestRouteUnknownEventIgnored(t *testing.T) {
	e := newTestEngine(t)
	raw := []byte(`{"e":"someFutureEventType","s":"BTCUSDT"}`)
	assert.NoError(t, Route(context.Background(), raw, "binance-public", e, nil))
}
