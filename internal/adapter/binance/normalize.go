package binance

import (
	"time"

	"github.com/ai-agentic-browser/eventbus/internal/eventmodel"
	"github.com/shopspring/decimal"
)

// Venue is the identifier tagged onto every event this adapter emits.
const Venue = "binance"

// base constructs the common event fields. venueMillis is the venue's own
// wall-clock timestamp in epoch milliseconds; 0 means the wire message
// carried none (e.g. WSBookTickerEvent), and VenueTime is left zero rather
// than stamped to the epoch.
func base(typ eventmodel.Type, producerID, venueSymbol string, venueMillis int64) eventmodel.Base {
	b := eventmodel.Base{
		Type:        typ,
		Timestamp:   time.Now(), // nanosecond local ingest timestamp
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
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
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

// NormalizeDepth converts a WSDepthEvent into a canonical OrderBookSnapshot.
// Bids/asks are kept exactly as the venue's depth stream sent them; neither
// this function nor Route truncates them. ChannelTag records which depth
// stream produced the snapshot.
func NormalizeDepth(e WSDepthEvent, producerID, channelTag string) *eventmodel.OrderBookSnapshot {
	return &eventmodel.OrderBookSnapshot{
		Base:       base(eventmodel.TypeOrderBookSnapshot, producerID, e.Symbol, e.EventTime),
		Symbol:     e.Symbol,
		Bids:       levels(e.Bids),
		Asks:       levels(e.Asks),
		ChannelTag: channelTag,
	}
}

// NormalizeTrade converts a WSTradeEvent into a canonical Trade. Binance
// tags the maker/taker via IsBuyerMaker; canonical Side reflects the
// aggressor (taker) side, so a buyer-maker trade normalizes to SideSell.
func NormalizeTrade(e WSTradeEvent, producerID string) *eventmodel.Trade {
	side := eventmodel.SideBuy
	if e.IsBuyerMaker {
		side = eventmodel.SideSell
	}
	return &eventmodel.Trade{
		Base:     base(eventmodel.TypeTrade, producerID, e.Symbol, e.TradeTime),
		Symbol:   e.Symbol,
		TradeID:  itoa(e.TradeID),
		Price:    parseDec(e.Price),
		Quantity: parseDec(e.Quantity),
		Side:     side,
	}
}

// NormalizeKline converts a WSKlineEvent into a canonical Kline. Unconfirmed
// klines are suppressed: the caller must check the returned bool before
// publishing.
func NormalizeKline(e WSKlineEvent, producerID string) (*eventmodel.Kline, bool) {
	if !e.Kline.IsKlineClosed {
		return nil, false
	}
	return &eventmodel.Kline{
		Base:        base(eventmodel.TypeKline, producerID, e.Symbol, e.EventTime),
		Symbol:      e.Symbol,
		Interval:    e.Kline.Interval,
		Open:        parseDec(e.Kline.OpenPrice),
		High:        parseDec(e.Kline.HighPrice),
		Low:         parseDec(e.Kline.LowPrice),
		Close:       parseDec(e.Kline.ClosePrice),
		Volume:      parseDec(e.Kline.BaseAssetVolume),
		IsConfirmed: true,
	}, true
}

// NormalizeBookTicker converts a WSBookTickerEvent into a canonical Ticker
// carrying only bid/ask (no last/24h fields on this stream).
func NormalizeBookTicker(e WSBookTickerEvent, producerID string) *eventmodel.Ticker {
	bid := parseDec(e.BestBidPrice)
	ask := parseDec(e.BestAskPrice)
	return &eventmodel.Ticker{
		Base:     base(eventmodel.TypeTicker, producerID, e.Symbol, 0),
		Symbol:   e.Symbol,
		BidPrice: &bid,
		AskPrice: &ask,
	}
}

// NormalizeExecutionReport converts Binance's order-update event into a
// canonical Order update to feed into orders.Manager.ApplyUpdate.
func NormalizeExecutionReport(e WSExecutionReport, producerID string) eventmodel.Order {
	return eventmodel.Order{
		Base:            base(eventmodel.TypeOrder, producerID, e.Symbol, e.TransactionTime),
		ExchangeOrderID: itoa(e.OrderID),
		ClientOrderID:   e.ClientOrderID,
		Symbol:          e.Symbol,
		Side:            mapSide(e.Side),
		Type:            mapOrderType(e.OrderType),
		Price:           parseDec(e.Price),
		Quantity:        parseDec(e.Quantity),
		FilledQuantity:  parseDec(e.CumulativeFilled),
		FilledPrice:     parseDec(e.LastFilledPrice),
		FilledPriceStr:  e.LastFilledPrice,
		State:           mapOrderStatus(e.OrderStatus),
		UpdateTime:      time.UnixMilli(e.TransactionTime),
	}
}

func mapSide(s string) eventmodel.Side {
	if s == "BUY" {
		return eventmodel.SideBuy
	}
	return eventmodel.SideSell
}

func mapOrderType(t string) eventmodel.OrderType {
	switch t {
	case "MARKET":
		return eventmodel.OrderTypeMarket
	case "LIMIT_MAKER":
		return eventmodel.OrderTypePostOnly
	default:
		return eventmodel.OrderTypeLimit
	}
}

func mapOrderStatus(s string) eventmodel.OrderState {
	switch s {
	case "NEW":
		return eventmodel.OrderAccepted
	case "PARTIALLY_FILLED":
		return eventmodel.OrderPartiallyFilled
	case "FILLED":
		return eventmodel.OrderFilled
	case "CANCELED", "PENDING_CANCEL":
		return eventmodel.OrderCancelled
	case "REJECTED":
		return eventmodel.OrderRejected
	case "EXPIRED":
		return eventmodel.OrderExpired
	default:
		return eventmodel.OrderSubmitted
	}
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
