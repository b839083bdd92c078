package okx

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

func TestRouteTickers(t *testing.T) {
	e := newTestEngine(t)
	got, done := collect(e, eventmodel.TypeTicker)
	defer done()

	raw := []byte(`{"arg":{"channel":"tickers","instId":"BTC-USDT"},"data":[{"instId":"BTC-USDT","last":"50000","bidPx":"49999","askPx":"50001"}]}`)
	require.NoError(t, Route(context.Background(), raw, "okx-public", e, nil))

	select {
	case evt := <-got:
		assert.Equal(t, "BTC-USDT", evt.(*eventmodel.Ticker).Symbol)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Ticker")
	}
}

func TestRouteTrades(t *testing.T) {
	e := newTestEngine(t)
	got, done := collect(e, eventmodel.TypeTrade)
	defer done()

	raw := []byte(`{"arg":{"channel":"trades","instId":"ETH-USDT"},"data":[{"instId":"ETH-USDT","tradeId":"1","px":"2000","sz":"1","side":"sell"}]}`)
	require.NoError(t, Route(context.Background(), raw, "okx-public", e, nil))

	select {
	case evt := <-got:
		trade := evt.(*eventmodel.Trade)
		assert.Equal(t, eventmodel.SideSell, trade.Side)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Trade")
	}
}

func TestRouteBooksPrefixMatch(t *testing.T) {
	e := newTestEngine(t)
	got, done := collect(e, eventmodel.TypeOrderBookSnapshot)
	defer done()

	raw := []byte(`{"arg":{"channel":"books5","instId":"BTC-USDT"},"data":[{"bids":[["100","1"]],"asks":[["101","1"]]}]}`)
	require.NoError(t, Route(context.Background(), raw, "okx-public", e, nil))

	select {
	case evt := <-got:
		snap := evt.(*eventmodel.OrderBookSnapshot)
		assert.Equal(t, "BTC-USDT", snap.Symbol)
		assert.Equal(t, "books5", snap.ChannelTag)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OrderBookSnapshot")
	}
}

func TestRouteCandlePrefixMatchAndIntervalExtraction(t *testing.T) {
	e := newTestEngine(t)
	got, done := collect(e, eventmodel.TypeKline)
	defer done()

	unconfirmed := []byte(`{"arg":{"channel":"candle1m","instId":"BTC-USDT"},"data":[["1","100","110","90","105","10","1000","105000","0"]]}`)
	require.NoError(t, Route(context.Background(), unconfirmed, "okx-public", e, nil))
	select {
	case <-got:
		t.Fatal("an unconfirmed candle must not be published")
	case <-time.After(50 * time.Millisecond):
	}

	confirmed := []byte(`{"arg":{"channel":"candle1m","instId":"BTC-USDT"},"data":[["1","100","110","90","105","10","1000","105000","1"]]}`)
	require.NoError(t, Route(context.Background(), confirmed, "okx-public", e, nil))
	select {
	case evt := <-got:
		k := evt.(*eventmodel.Kline)
		assert.Equal(t, "1m", k.Interval)
		assert.True(t, k.IsConfirmed)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for confirmed Kline")
	}
}

func TestRouteOrders(t *testing.T) {
	e := newTestEngine(t)
	got, done := collect(e, eventmodel.TypeOrder)
	defer done()

	raw := []byte(`{"arg":{"channel":"orders","instType":"SPOT"},"data":[{"instId":"BTC-USDT","ordId":"1","clOrdId":"cli-1","side":"buy","ordType":"limit","px":"100","sz":"1","state":"live"}]}`)
	require.NoError(t, Route(context.Background(), raw, "okx-private", e, nil))

	select {
	case evt := <-got:
		order := evt.(*eventmodel.Order)
		assert.Equal(t, "cli-1", order.ClientOrderID)
		assert.Equal(t, eventmodel.OrderAccepted, order.State)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Order")
	}
}

func TestRouteUnrecognizedChannelIgnored(t *testing.T) {
	e := newTestEngine(t)
	raw := []byte(`{"arg":{"channel":"account"},"data":[{"ccy":"USDT","bal":"100"}]}`)
	assert.NoError(t, Route(context.Background(), raw, "okx-private", e, nil))
}

func TestRouteControlFrameWithNoDataIgnored(t *testing.T) {
	e := newTestEngine(t)
	raw := []byte(`{"event":"subscribe","arg":{"channel":"tickers","instId":"BTC-USDT"}}`)
	assert.NoError(t, Route(context.Background(), raw, "okx-public", e, nil))
}
