package binance

import (
	"testing"

	"github.com/ai-agentic-browser/eventbus/internal/eventmodel"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeDepthTruncatesNothingAndPreservesLevels(t *testing.T) {
	e := WSDepthEvent{
		Symbol:    "BTCUSDT",
		EventTime: 1700000000000,
		Bids:      [][]string{{"100.5", "1.2"}},
		Asks:      [][]string{{"101.0", "0.8"}},
	}
	snap := NormalizeDepth(e, "binance-public-1", "depth20")
	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Equal(t, "depth20", snap.ChannelTag)
	assert.True(t, snap.BestBidAskValid())
	assert.Len(t, snap.Bids, 1)
	assert.Len(t, snap.Asks, 1)
	assert.Equal(t, int64(1700000000000), snap.VenueTime.UnixMilli())
}

func TestNormalizeBookTickerLeavesVenueTimeZero(t *testing.T) {
	e := WSBookTickerEvent{Symbol: "BTCUSDT", BestBidPrice: "100", BestAskPrice: "101"}
	ticker := NormalizeBookTicker(e, "binance-public-1")
	assert.True(t, ticker.VenueTime.IsZero(), "bookTicker stream carries no venue timestamp")
}

func TestNormalizeTradeMapsAggressorSide(t *testing.T) {
	buyerMaker := WSTradeEvent{Symbol: "ETHUSDT", TradeID: 42, Price: "2000.5", Quantity: "0.1", IsBuyerMaker: true}
	trade := NormalizeTrade(buyerMaker, "binance-public-1")
	assert.Equal(t, eventmodel.SideSell, trade.Side, "buyer-maker trade means the taker sold")
	assert.Equal(t, "42", trade.TradeID)

	sellerMaker := WSTradeEvent{Symbol: "ETHUSDT", TradeID: 43, Price: "2000.5", Quantity: "0.1", IsBuyerMaker: false}
	trade2 := NormalizeTrade(sellerMaker, "binance-public-1")
	assert.Equal(t, eventmodel.SideBuy, trade2.Side)
}

func TestNormalizeKlineSuppressesUnconfirmed(t *testing.T) {
	e := WSKlineEvent{Symbol: "BTCUSDT"}
	e.Kline.IsKlineClosed = false
	e.Kline.OpenPrice = "100"

	kline, ok := NormalizeKline(e, "binance-public-1")
	assert.False(t, ok)
	assert.Nil(t, kline)

	e.Kline.IsKlineClosed = true
	kline, ok = NormalizeKline(e, "binance-public-1")
	assert.True(t, ok)
	assert.True(t, kline.IsConfirmed)
}

func TestNormalizeExecutionReportMapsStateAndPreservesDecimalString(t *testing.T) {
	er := WSExecutionReport{
		Symbol:           "BTCUSDT",
		ClientOrderID:    "abc-1",
		Side:             "BUY",
		OrderType:        "LIMIT",
		OrderStatus:      "PARTIALLY_FILLED",
		OrderID:          9001,
		Price:            "40000.00",
		Quantity:         "1.0",
		CumulativeFilled: "0.4",
		LastFilledPrice:  "40000.12345678",
	}
	order := NormalizeExecutionReport(er, "binance-private-1")
	assert.Equal(t, eventmodel.OrderPartiallyFilled, order.State)
	assert.Equal(t, eventmodel.SideBuy, order.Side)
	assert.Equal(t, "9001", order.ExchangeOrderID)
	assert.Equal(t, "40000.12345678", order.FilledPriceStr, "venue decimal string must be preserved verbatim")
}

func TestBuildStreamNameLowercasesSymbol(t *testing.T) {
	assert.Equal(t, "btcusdt@trade", BuildStreamName("BTCUSDT", "trade"))
}
