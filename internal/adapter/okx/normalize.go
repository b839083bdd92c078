package okx

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/ai-agentic-browser/eventbus/internal/eventmodel"
	"github.com/shopspring/decimal"
)

// Venue is the identifier tagged onto every event this adapter emits.
const Venue = "okx"

// base constructs the common event fields. venueMillis is OKX's own "ts"
// field (or candle array index 0), parsed from its wire string-millis form;
// 0 means absent and VenueTime is left zero.
func base(typ eventmodel.Type, producerID, venueSymbol string, venueMillis int64) eventmodel.Base {
	b := eventmodel.Base{
		Type:        typ,
		Timestamp:   time.Now(),
		ProducerID:  producerID,
		VenueSymbol: venueSymbol,
		Venue:       Venue,
	}
	if venueMillis != 0 {
		b.VenueTime = time.UnixMilli(venueMillis)
	}
	return b
}

func parseDec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseMillis(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func levels(raw [][]string) []eventmodel.PriceLevel {
	out := make([]eventmodel.PriceLevel, 0, len(raw))
	for _, pl := range raw {
		if len(pl) < 2 {
			continue
		}
		out = append(out, eventmodel.PriceLevel{Price: parseDec(pl[0]), Size: parseDec(pl[1])})
	}
	return out
}

// DecodeTickers unmarshals a "tickers" channel data array.
func DecodeTickers(data json.RawMessage) ([]WSTicker, error) {
	var out []WSTicker
	err := json.Unmarshal(data, &out)
	return out, err
}

// DecodeTrades unmarshals a "trades" channel data array.
func DecodeTrades(data json.RawMessage) ([]WSTrade, error) {
	var out []WSTrade
	err := json.Unmarshal(data, &out)
	return out, err
}

// DecodeBooks unmarshals a "books"/"books5" channel data array.
func DecodeBooks(data json.RawMessage) ([]WSBooks, error) {
	var out []WSBooks
	err := json.Unmarshal(data, &out)
	return out, err
}

// DecodeCandles unmarshals a "candle1m" (etc) channel data array.
func DecodeCandles(data json.RawMessage) ([]WSCandle, error) {
	var out []WSCandle
	err := json.Unmarshal(data, &out)
	return out, err
}

// DecodeOrders unmarshals a private "orders" channel data array.
func DecodeOrders(data json.RawMessage) ([]WSOrder, error) {
	var out []WSOrder
	err := json.Unmarshal(data, &out)
	return out, err
}

// NormalizeTicker converts one WSTicker into a canonical Ticker.
func NormalizeTicker(w WSTicker, producerID string) *eventmodel.Ticker {
	bid := parseDec(w.BidPx)
	ask := parseDec(w.AskPx)
	open := parseDec(w.Open24h)
	high := parseDec(w.High24h)
	low := parseDec(w.Low24h)
	vol := parseDec(w.Vol24h)
	return &eventmodel.Ticker{
		Base:      base(eventmodel.TypeTicker, producerID, w.InstID, parseMillis(w.TS)),
		Symbol:    w.InstID,
		LastPrice: parseDec(w.Last),
		BidPrice:  &bid,
		AskPrice:  &ask,
		Open24h:   &open,
		High24h:   &high,
		Low24h:    &low,
		Volume24h: &vol,
	}
}

// NormalizeTrade converts one WSTrade into a canonical Trade. OKX already
// reports the taker side directly, unlike Binance's isBuyerMaker flag.
func NormalizeTrade(w WSTrade, producerID string) *eventmodel.Trade {
	side := eventmodel.SideBuy
	if w.Side == "sell" {
		side = eventmodel.SideSell
	}
	return &eventmodel.Trade{
		Base:     base(eventmodel.TypeTrade, producerID, w.InstID, parseMillis(w.TS)),
		Symbol:   w.InstID,
		TradeID:  w.TradeID,
		Price:    parseDec(w.Px),
		Quantity: parseDec(w.Sz),
		Side:     side,
	}
}

// NormalizeBooks converts one WSBooks into a canonical OrderBookSnapshot.
// instID comes from the channel's Arg, since OKX's books payload itself
// carries no instId field.
func NormalizeBooks(w WSBooks, instID, channelTag, producerID string) *eventmodel.OrderBookSnapshot {
	return &eventmodel.OrderBookSnapshot{
		Base:       base(eventmodel.TypeOrderBookSnapshot, producerID, instID, parseMillis(w.TS)),
		Symbol:     instID,
		Bids:       levels(w.Bids),
		Asks:       levels(w.Asks),
		ChannelTag: channelTag,
	}
}

// NormalizeCandle converts one WSCandle into a canonical Kline. OKX pushes
// a candle on every update with confirm="0" until the bar closes, then a
// final push with confirm="1"; unconfirmed candles are suppressed here,
// mirroring Binance's kline-confirmation rule.
func NormalizeCandle(c WSCandle, instID, interval, producerID string) (*eventmodel.Kline, bool) {
	if len(c) < 9 || c[8] != "1" {
		return nil, false
	}
	return &eventmodel.Kline{
		Base:        base(eventmodel.TypeKline, producerID, instID, parseMillis(c[0])),
		Symbol:      instID,
		Interval:    interval,
		Open:        parseDec(c[1]),
		High:        parseDec(c[2]),
		Low:         parseDec(c[3]),
		Close:       parseDec(c[4]),
		Volume:      parseDec(c[5]),
		IsConfirmed: true,
	}, true
}

// NormalizeOrder converts one WSOrder into a canonical Order update.
func NormalizeOrder(w WSOrder, producerID string) eventmodel.Order {
	uTime := parseMillis(w.UTime)
	return eventmodel.Order{
		Base:            base(eventmodel.TypeOrder, producerID, w.InstID, uTime),
		ExchangeOrderID: w.OrdID,
		ClientOrderID:   w.ClOrdID,
		Symbol:          w.InstID,
		Side:            mapSide(w.Side),
		Type:            mapOrderType(w.OrdType),
		Price:           parseDec(w.Px),
		Quantity:        parseDec(w.Sz),
		FilledQuantity:  parseDec(w.AccFillSz),
		FilledPrice:     parseDec(w.FillPx),
		FilledPriceStr:  w.FillPx,
		State:           mapOrderState(w.State),
		UpdateTime:      time.UnixMilli(uTime),
	}
}

func mapSide(s string) eventmodel.Side {
	if s == "buy" {
		return eventmodel.SideBuy
	}
	return eventmodel.SideSell
}

func mapOrderType(t string) eventmodel.OrderType {
	switch t {
	case "market":
		return eventmodel.OrderTypeMarket
	case "post_only":
		return eventmodel.OrderTypePostOnly
	default:
		return eventmodel.OrderTypeLimit
	}
}

func mapOrderState(s string) eventmodel.OrderState {
	switch s {
	case "live":
		return eventmodel.OrderAccepted
	case "partially_filled":
		return eventmodel.OrderPartiallyFilled
	case "filled":
		return eventmodel.OrderFilled
	case "canceled":
		return eventmodel.OrderCancelled
	default:
		return eventmodel.OrderSubmitted
	}
}
