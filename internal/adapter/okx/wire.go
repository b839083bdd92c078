// Package okx implements the OKX adapter transport and normalization
// layer, in the same idiom as internal/adapter/binance, following OKX's
// public v5 API documentation for wire shapes and authentication.
package okx

import "encoding/json"

// WSEnvelope is OKX's common push-message envelope: Arg identifies the
// channel/instrument the Data array belongs to.
type WSEnvelope struct {
	Event string          `json:"event,omitempty"` // "subscribe" | "error" | "login", present on control frames
	Arg   WSArg           `json:"arg,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Code  string          `json:"code,omitempty"`
	Msg   string          `json:"msg,omitempty"`
}

// WSArg identifies a channel subscription.
type WSArg struct {
	Channel  string `json:"channel"`
	InstID   string `json:"instId,omitempty"`
	InstType string `json:"instType,omitempty"`
}

// WSTicker is one element of the "tickers" channel's data array.
type WSTicker struct {
	InstID  string `json:"instId"`
	Last    string `json:"last"`
	BidPx   string `json:"bidPx"`
	AskPx   string `json:"askPx"`
	Open24h string `json:"open24h"`
	High24h string `json:"high24h"`
	Low24h  string `json:"low24h"`
	Vol24h  string `json:"vol24h"`
	TS      string `json:"ts"` // millis, string-encoded
}

// WSTrade is one element of the "trades" channel's data array.
type WSTrade struct {
	InstID  string `json:"instId"`
	TradeID string `json:"tradeId"`
	Px      string `json:"px"`
	Sz      string `json:"sz"`
	Side    string `json:"side"` // "buy" | "sell", already the taker side
	TS      string `json:"ts"`
}

// WSBooks is one element of the "books"/"books5" channel's data array.
// Bids/Asks entries are [price, size, deprecated, numOrders].
type WSBooks struct {
	InstID string     `json:"-"`
	Bids   [][]string `json:"bids"`
	Asks   [][]string `json:"asks"`
	TS     string     `json:"ts"`
}

// WSCandle is one element of the "candle1m" (etc) channel's data array:
// [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm].
type WSCandle []string

// WSOrder is one element of the private "orders" channel's data array.
type WSOrder struct {
	InstID    string `json:"instId"`
	OrdID     string `json:"ordId"`
	ClOrdID   string `json:"clOrdId"`
	Side      string `json:"side"`
	OrdType   string `json:"ordType"`
	Px        string `json:"px"`
	Sz        string `json:"sz"`
	AccFillSz string `json:"accFillSz"` // cumulative filled quantity
	FillPx    string `json:"fillPx"`    // last fill price
	State     string `json:"state"`     // "live" | "partially_filled" | "filled" | "canceled"
	UTime     string `json:"uTime"`     // millis, string-encoded
}

// WSAccountBalance is one element of the private "account" channel's
// details array, per-currency.
type WSAccountBalance struct {
	Ccy       string `json:"ccy"`
	AvailBal  string `json:"availBal"`
	FrozenBal string `json:"frozenBal"`
	Bal       string `json:"bal"`
}

// WSLoginArg is the single element of a login request's args array.
type WSLoginArg struct {
	APIKey     string `json:"apiKey"`
	Passphrase string `json:"passphrase"`
	Timestamp  string `json:"timestamp"`
	Sign       string `json:"sign"`
}

// WSRequest is the generic outbound control frame shape OKX expects for
// op in {"login", "subscribe", "unsubscribe"}.
type WSRequest struct {
	Op   string        `json:"op"`
	Args []interface{} `json:"args"`
}
