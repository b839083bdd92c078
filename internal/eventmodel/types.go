// Package eventmodel defines the canonical, venue-independent event types
// dispatched by the Event Engine and transported by the Journal. All events
// are immutable after publication.
package eventmodel

import (
	"time"

	"github.com/ai-agentic-browser/eventbus/internal/busfault"
	"github.com/shopspring/decimal"
)

// Type discriminates the canonical event kinds. It is the tag carried in
// every Frame Header and the key every engine listener registers against.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeTicker
	TypeTrade
	TypeOrderBookSnapshot
	TypeKline
	TypeFundingRate
	TypeOrder
	TypePosition
	TypeAccount
	TypeFault
)

func (t Type) String() string {
	switch t {
	case TypeTicker:
		return "Ticker"
	case TypeTrade:
		return "Trade"
	case TypeOrderBookSnapshot:
		return "OrderBookSnapshot"
	case TypeKline:
		return "Kline"
	case TypeFundingRate:
		return "FundingRate"
	case TypeOrder:
		return "Order"
	case TypePosition:
		return "Position"
	case TypeAccount:
		return "Account"
	case TypeFault:
		return "Fault"
	default:
		return "Unknown"
	}
}

// Side is the canonical buy/sell side, after venue-specific normalization.
type Side uint8

const (
	SideUnspecified Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "BUY"
	}
	if s == SideSell {
		return "SELL"
	}
	return "UNSPECIFIED"
}

// OrderType is the canonical order type, after venue-specific normalization.
type OrderType uint8

const (
	OrderTypeUnspecified OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
	OrderTypePostOnly
)

// Base carries the fields common to every event: a monotonic nanosecond
// local-ingest timestamp, the originating adapter session id (producer-id:
// the session name, e.g. "okx-public", fixed when the session is built and
// passed to the venue Route into every normalized event), and the
// discriminating type tag.
type Base struct {
	Type        Type
	Timestamp   time.Time // nanosecond local ingest timestamp
	VenueTime   time.Time // wall-clock venue timestamp, millisecond precision; zero if the venue omits one (e.g. Binance bookTicker)
	ProducerID  string    // originating adapter session id
	VenueSymbol string    // raw venue symbol, preserved alongside canonical Symbol
	Venue       string    // "okx" | "binance"
}

// Kind returns the event's discriminating type tag.
func (b Base) Kind() Type { return b.Type }

// Producer returns the originating adapter session id.
func (b Base) Producer() string { return b.ProducerID }

// Event is implemented by every canonical event type via embedded Base.
type Event interface {
	Kind() Type
	Producer() string
}

// Ticker is a best-bid/best-ask + last-trade snapshot per symbol. Prices and
// sizes are decimals; a float64 view of LastPrice is available through
// LastPriceF64.
type Ticker struct {
	Base
	Symbol    string
	LastPrice decimal.Decimal
	BidPrice  *decimal.Decimal
	AskPrice  *decimal.Decimal
	High24h   *decimal.Decimal
	Low24h    *decimal.Decimal
	Open24h   *decimal.Decimal
	Volume24h *decimal.Decimal
}

// LastPriceF64 returns LastPrice as float64, for hot-path arithmetic that
// does not need exact decimal precision.
func (t *Ticker) LastPriceF64() float64 {
	f, _ := t.LastPrice.Float64()
	return f
}

// SymbolKey implements engine.Symboler for symbol-sticky parallel dispatch.
func (t *Ticker) SymbolKey() string { return t.Symbol }

// Trade is a single executed trade reported by a public trade stream.
type Trade struct {
	Base
	Symbol   string
	TradeID  string
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Side     Side
}

// SymbolKey implements engine.Symboler for symbol-sticky parallel dispatch.
func (t *Trade) SymbolKey() string { return t.Symbol }

// PriceLevel is one (price, size) pair in an order book snapshot.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBookSnapshot is a truncated, venue-depth-limited order book.
// Invariant: Bids[0].Price < Asks[0].Price when both are non-empty.
type OrderBookSnapshot struct {
	Base
	Symbol     string
	Bids       []PriceLevel // descending by price
	Asks       []PriceLevel // ascending by price
	ChannelTag string       // e.g. "books5", "books400"
}

// BestBidAskValid reports whether the best_bid < best_ask invariant holds
// for this snapshot.
func (o *OrderBookSnapshot) BestBidAskValid() bool {
	if len(o.Bids) == 0 || len(o.Asks) == 0 {
		return true
	}
	return o.Bids[0].Price.LessThan(o.Asks[0].Price)
}

// SymbolKey implements engine.Symboler for symbol-sticky parallel dispatch.
func (o *OrderBookSnapshot) SymbolKey() string { return o.Symbol }

// Kline is a single OHLCV bar. Unconfirmed klines are suppressed before
// publication by the normalization layer (IsConfirmed is never false here).
type Kline struct {
	Base
	Symbol      string
	Interval    string
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
	IsConfirmed bool
}

// SymbolKey implements engine.Symboler for symbol-sticky parallel dispatch.
func (k *Kline) SymbolKey() string { return k.Symbol }

// FundingRate is a perpetual-swap funding update.
type FundingRate struct {
	Base
	Symbol          string
	InstType        string
	FundingRate     decimal.Decimal
	NextFundingRate *decimal.Decimal
	FundingTime     time.Time
	NextFundingTime time.Time
	MinFundingRate  *decimal.Decimal
	MaxFundingRate  *decimal.Decimal
}

// SymbolKey implements engine.Symboler for symbol-sticky parallel dispatch.
func (f *FundingRate) SymbolKey() string { return f.Symbol }

// OrderState is a node in the order lifecycle graph.
type OrderState uint8

const (
	OrderCreated OrderState = iota
	OrderSubmitted
	OrderAccepted
	OrderPartiallyFilled
	OrderFilled
	OrderRejected
	OrderCancelled
	OrderExpired
)

func (s OrderState) String() string {
	switch s {
	case OrderCreated:
		return "CREATED"
	case OrderSubmitted:
		return "SUBMITTED"
	case OrderAccepted:
		return "ACCEPTED"
	case OrderPartiallyFilled:
		return "PARTIALLY_FILLED"
	case OrderFilled:
		return "FILLED"
	case OrderRejected:
		return "REJECTED"
	case OrderCancelled:
		return "CANCELLED"
	case OrderExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// IsActive reports whether the state is one in which further fills may
// still arrive.
func (s OrderState) IsActive() bool {
	switch s {
	case OrderSubmitted, OrderAccepted, OrderPartiallyFilled:
		return true
	default:
		return false
	}
}

// IsFinal reports whether the state is terminal.
func (s OrderState) IsFinal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected, OrderExpired:
		return true
	default:
		return false
	}
}

// Order is the canonical order entity. Invariants: 0 <= FilledQuantity <=
// Quantity; State only ever advances along the lifecycle graph.
type Order struct {
	Base
	OrderID        string // local; orders.Manager.Create assigns a random UUID when unset, so ids are unique but not ordered
	ExchangeOrderID string
	ClientOrderID  string
	Symbol         string
	Side           Side
	Type           OrderType
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	FilledQuantity decimal.Decimal
	FilledPrice    decimal.Decimal // vwap of fills
	FilledPriceStr string          // venue-reported decimal string, preserved
	Fee            *decimal.Decimal
	State          OrderState
	UpdateTime     time.Time // monotonic venue update timestamp
}

// SymbolKey implements engine.Symboler for symbol-sticky parallel dispatch.
func (o *Order) SymbolKey() string { return o.Symbol }

// Position is a per-symbol aggregate maintained exclusively by the Account
// Manager. Invariant: when Quantity == 0, AvgPrice is undefined and must be
// reset on the next opening fill.
type Position struct {
	Symbol       string
	Quantity     decimal.Decimal // signed: + long, - short
	AvgPrice     decimal.Decimal
	UnrealizedPL decimal.Decimal
	RealizedPL   decimal.Decimal
}

// IsFlat reports whether the position carries no open quantity.
func (p *Position) IsFlat() bool {
	return p.Quantity.IsZero()
}

// Account is a per-quote-currency balance snapshot.
type Account struct {
	Base
	Currency  string
	Balance   decimal.Decimal
	Available decimal.Decimal
	Frozen    decimal.Decimal
}

// Fault carries an adapter or journal condition (busfault.Error) onto the
// Engine so strategy components can react to a session going terminal
// without polling logs — e.g. halting on an AuthFailure for a given venue.
type Fault struct {
	Base
	Kind    busfault.Kind
	Op      string
	Message string
}
