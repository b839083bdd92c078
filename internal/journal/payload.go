package journal

import (
	"encoding/binary"
	"math"
)

// symbolFieldLen is the fixed width of a null-padded symbol field inside a
// typed payload.
const symbolFieldLen = 24

// TickerPayload is the fixed-layout, 49-byte on-wire form of a Ticker
// event. HasBid/HasAsk/... flags let optional decimal fields travel without
// a variable-length encoding.
type TickerPayload struct {
	Symbol    string
	LastPrice float64
	BidPrice  float64
	AskPrice  float64
	HasBid    bool
	HasAsk    bool
}

// EncodeTickerPayload writes p into buf, which must be at least
// MaxPayloadSize(TypeTicker) bytes.
func EncodeTickerPayload(buf []byte, p TickerPayload) int {
	off := 0
	putFixedString(buf[off:off+symbolFieldLen], p.Symbol)
	off += symbolFieldLen
	binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(p.LastPrice))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(p.BidPrice))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(p.AskPrice))
	off += 8
	flags := byte(0)
	if p.HasBid {
		flags |= 1
	}
	if p.HasAsk {
		flags |= 2
	}
	buf[off] = flags
	off++
	return off
}

// DecodeTickerPayload reads a TickerPayload from buf.
func DecodeTickerPayload(buf []byte) TickerPayload {
	off := 0
	symbol := getFixedString(buf[off : off+symbolFieldLen])
	off += symbolFieldLen
	last := math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	bid := math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	ask := math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	flags := buf[off]
	off++
	return TickerPayload{
		Symbol:    symbol,
		LastPrice: last,
		BidPrice:  bid,
		AskPrice:  ask,
		HasBid:    flags&1 != 0,
		HasAsk:    flags&2 != 0,
	}
}

// TradePayload is the fixed-layout on-wire form of a Trade event.
type TradePayload struct {
	Symbol   string
	TradeID  string
	Price    float64
	Quantity float64
	Side     uint8
}

const tradeIDFieldLen = 24

// EncodeTradePayload writes p into buf.
func EncodeTradePayload(buf []byte, p TradePayload) int {
	off := 0
	putFixedString(buf[off:off+symbolFieldLen], p.Symbol)
	off += symbolFieldLen
	putFixedString(buf[off:off+tradeIDFieldLen], p.TradeID)
	off += tradeIDFieldLen
	binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(p.Price))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(p.Quantity))
	off += 8
	buf[off] = p.Side
	off++
	return off
}

// DecodeTradePayload reads a TradePayload from buf.
func DecodeTradePayload(buf []byte) TradePayload {
	off := 0
	symbol := getFixedString(buf[off : off+symbolFieldLen])
	off += symbolFieldLen
	tradeID := getFixedString(buf[off : off+tradeIDFieldLen])
	off += tradeIDFieldLen
	price := math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	qty := math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	side := buf[off]
	off++
	return TradePayload{Symbol: symbol, TradeID: tradeID, Price: price, Quantity: qty, Side: side}
}

// OrderPayload is the fixed-layout, 118-byte on-wire form of an Order
// event, including the venue fill-price decimal string preserved alongside the
// hot-path floats per the precision-handling resolution in SPEC_FULL.md.
type OrderPayload struct {
	OrderID        string
	Symbol         string
	Side           uint8
	State          uint8
	Price          float64
	Quantity       float64
	FilledQuantity float64
	FilledPriceStr string
}

const (
	orderIDFieldLen        = 36 // uuid string length
	filledPriceStrFieldLen = 32
)

// EncodeOrderPayload writes p into buf.
func EncodeOrderPayload(buf []byte, p OrderPayload) int {
	off := 0
	putFixedString(buf[off:off+orderIDFieldLen], p.OrderID)
	off += orderIDFieldLen
	putFixedString(buf[off:off+symbolFieldLen], p.Symbol)
	off += symbolFieldLen
	buf[off] = p.Side
	off++
	buf[off] = p.State
	off++
	binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(p.Price))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(p.Quantity))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(p.FilledQuantity))
	off += 8
	putFixedString(buf[off:off+filledPriceStrFieldLen], p.FilledPriceStr)
	off += filledPriceStrFieldLen
	return off
}

// DecodeOrderPayload reads an OrderPayload from buf.
func DecodeOrderPayload(buf []byte) OrderPayload {
	off := 0
	orderID := getFixedString(buf[off : off+orderIDFieldLen])
	off += orderIDFieldLen
	symbol := getFixedString(buf[off : off+symbolFieldLen])
	off += symbolFieldLen
	side := buf[off]
	off++
	state := buf[off]
	off++
	price := math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	qty := math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	filledQty := math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	filledPriceStr := getFixedString(buf[off : off+filledPriceStrFieldLen])
	off += filledPriceStrFieldLen
	return OrderPayload{
		OrderID:        orderID,
		Symbol:         symbol,
		Side:           side,
		State:          state,
		Price:          price,
		Quantity:       qty,
		FilledQuantity: filledQty,
		FilledPriceStr: filledPriceStr,
	}
}
