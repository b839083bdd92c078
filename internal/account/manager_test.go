package account

import (
	"testing"

	"github.com/ai-agentic-browser/eventbus/internal/eventmodel"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// reverse-and-flip: a closing fill larger than the open position flips it.
func TestReverseAndFlip(t *testing.T) {
	m := NewManager()

	buyOrder := eventmodel.Order{Symbol: "BTC-USDT", Side: eventmodel.SideBuy}
	m.ApplyFill(buyOrder, dec(0.5), dec(40000))

	sellOrder := eventmodel.Order{Symbol: "BTC-USDT", Side: eventmodel.SideSell}
	pos := m.ApplyFill(sellOrder, dec(0.8), dec(42000))

	assert.True(t, pos.RealizedPL.Equal(dec(1000)), "realized_pnl should be (42000-40000)*0.5 = 1000, got %s", pos.RealizedPL)
	assert.True(t, pos.Quantity.Equal(dec(-0.3)), "position should flip to -0.3 BTC, got %s", pos.Quantity)
	assert.True(t, pos.AvgPrice.Equal(dec(42000)), "new short leg should be opened at the fill price")
}

func TestOpeningPositionSetsAvgPrice(t *testing.T) {
	m := NewManager()
	order := eventmodel.Order{Symbol: "ETH-USDT", Side: eventmodel.SideBuy}
	pos := m.ApplyFill(order, dec(1), dec(2000))
	assert.True(t, pos.Quantity.Equal(dec(1)))
	assert.True(t, pos.AvgPrice.Equal(dec(2000)))
}

func TestSameSideAccumulationWeightedAverage(t *testing.T) {
	m := NewManager()
	order := eventmodel.Order{Symbol: "ETH-USDT", Side: eventmodel.SideBuy}
	m.ApplyFill(order, dec(1), dec(2000))
	pos := m.ApplyFill(order, dec(1), dec(3000))
	assert.True(t, pos.Quantity.Equal(dec(2)))
	assert.True(t, pos.AvgPrice.Equal(dec(2500)), "weighted average of 2000 and 3000 over equal size is 2500, got %s", pos.AvgPrice)
}

func TestFullCloseResetsAvgPrice(t *testing.T) {
	m := NewManager()
	buy := eventmodel.Order{Symbol: "BTC-USDT", Side: eventmodel.SideBuy}
	m.ApplyFill(buy, dec(1), dec(100))

	sell := eventmodel.Order{Symbol: "BTC-USDT", Side: eventmodel.SideSell}
	pos := m.ApplyFill(sell, dec(1), dec(110))

	assert.True(t, pos.Quantity.IsZero())
	assert.True(t, pos.AvgPrice.IsZero(), "avg_price must be reset once the position is flat")
	assert.True(t, pos.RealizedPL.Equal(dec(10)))
}

func TestTickerUpdatesUnrealizedPnL(t *testing.T) {
	m := NewManager()
	buy := eventmodel.Order{Symbol: "BTC-USDT", Side: eventmodel.SideBuy}
	m.ApplyFill(buy, dec(1), dec(100))

	m.onTicker(nil, &eventmodel.Ticker{
		Base:      eventmodel.Base{Type: eventmodel.TypeTicker},
		Symbol:    "BTC-USDT",
		LastPrice: dec(150),
	})

	pos, _ := m.GetPosition("BTC-USDT")
	assert.True(t, pos.UnrealizedPL.Equal(dec(50)))
}
