// Package bridge fans Engine events into the Journal: one Bridge per
// journal file owns the single Writer permitted to it and registers as a
// global Engine listener, encoding every canonical event into its typed
// Frame payload before appending it.
//
// Generalizes the Engine's own event-to-subscriber fan-out from in-process
// channel delivery to the Journal's cross-process frame protocol.
package bridge

import (
	"context"

	"github.com/ai-agentic-browser/eventbus/internal/busfault"
	"github.com/ai-agentic-browser/eventbus/internal/engine"
	"github.com/ai-agentic-browser/eventbus/internal/eventmodel"
	"github.com/ai-agentic-browser/eventbus/internal/journal"
	"github.com/ai-agentic-browser/eventbus/pkg/observability"
	"github.com/shopspring/decimal"
)

// Bridge is an Engine component that writes every dispatched event matching
// its type filter to a Journal Writer. It never reads from the journal; a
// separate process (or goroutine using journal.Reader) replays frames back
// into a receiving engine via Ingest.
type Bridge struct {
	writer  *journal.Writer
	logger  *observability.Logger
	metrics *observability.MetricsProvider
	tracing *observability.TracingProvider
	accept  map[eventmodel.Type]bool // nil means accept every type
}

// New constructs a Bridge writing every dispatched event to writer.
func New(writer *journal.Writer, logger *observability.Logger, metrics *observability.MetricsProvider, tracing *observability.TracingProvider) *Bridge {
	return &Bridge{writer: writer, logger: logger, metrics: metrics, tracing: tracing}
}

// NewFiltered constructs a Bridge that only journals events of the given
// types, e.g. an order-journal Bridge that ignores market data so the two
// journal files stay partitioned by concern.
func NewFiltered(writer *journal.Writer, logger *observability.Logger, metrics *observability.MetricsProvider, tracing *observability.TracingProvider, types ...eventmodel.Type) *Bridge {
	accept := make(map[eventmodel.Type]bool, len(types))
	for _, t := range types {
		accept[t] = true
	}
	return &Bridge{writer: writer, logger: logger, metrics: metrics, tracing: tracing, accept: accept}
}

// Start attaches the Bridge as a global, non-ignore-self Engine listener:
// every event this process dispatches is journaled, including events
// produced by a journal.Reader replay so that a chain of processes can
// relay a journal forward.
func (b *Bridge) Start(e *engine.Engine) error {
	e.RegisterGlobal(b.onEvent, false)
	return nil
}

// Stop is a no-op; the Writer's lifecycle is owned by the process wiring
// the Bridge together, not by the Bridge itself.
func (b *Bridge) Stop() error { return nil }

func (b *Bridge) onEvent(ctx context.Context, evt eventmodel.Event) {
	if b.accept != nil && !b.accept[evt.Kind()] {
		return
	}
	typeTag, payload, err := encode(evt)
	if err != nil {
		if b.logger != nil {
			b.logger.Error(ctx, "bridge: unencodable event", err, map[string]interface{}{
				"type": evt.Kind().String(),
			})
		}
		return
	}

	writeCtx := ctx
	var endSpan func()
	if b.tracing != nil {
		spanCtx, span := b.tracing.StartSpan(ctx, "bridge.write")
		writeCtx = spanCtx
		endSpan = func() { span.End() }
	}

	writeErr := b.writer.Write(typeTag, payload)
	if endSpan != nil {
		if writeErr != nil {
			observability.RecordError(writeCtx, writeErr)
		}
		endSpan()
	}

	if writeErr != nil {
		if b.logger != nil {
			b.logger.Error(ctx, "bridge: journal write failed", writeErr, map[string]interface{}{
				"type": evt.Kind().String(),
			})
		}
		if b.metrics != nil {
			fe, _ := busfault.As(writeErr)
			frameTooLarge := fe != nil && fe.Kind == busfault.FrameTooLarge
			b.metrics.RecordJournalWrite(ctx, writeErr, frameTooLarge)
		}
		return
	}
	if b.metrics != nil {
		b.metrics.RecordJournalWrite(ctx, nil, false)
	}
}

func encode(evt eventmodel.Event) (uint32, []byte, error) {
	switch v := evt.(type) {
	case *eventmodel.Ticker:
		buf := make([]byte, journal.MaxPayloadSize(journal.TypeTicker))
		bid, ask := 0.0, 0.0
		hasBid, hasAsk := v.BidPrice != nil, v.AskPrice != nil
		if hasBid {
			bid, _ = v.BidPrice.Float64()
		}
		if hasAsk {
			ask, _ = v.AskPrice.Float64()
		}
		n := journal.EncodeTickerPayload(buf, journal.TickerPayload{
			Symbol:    v.Symbol,
			LastPrice: v.LastPriceF64(),
			BidPrice:  bid,
			AskPrice:  ask,
			HasBid:    hasBid,
			HasAsk:    hasAsk,
		})
		return journal.TypeTicker, buf[:n], nil

	case *eventmodel.Trade:
		buf := make([]byte, journal.MaxPayloadSize(journal.TypeTrade))
		price, _ := v.Price.Float64()
		qty, _ := v.Quantity.Float64()
		n := journal.EncodeTradePayload(buf, journal.TradePayload{
			Symbol:   v.Symbol,
			TradeID:  v.TradeID,
			Price:    price,
			Quantity: qty,
			Side:     uint8(v.Side),
		})
		return journal.TypeTrade, buf[:n], nil

	case *eventmodel.Order:
		buf := make([]byte, journal.MaxPayloadSize(journal.TypeOrder))
		price, _ := v.Price.Float64()
		qty, _ := v.Quantity.Float64()
		filledQty, _ := v.FilledQuantity.Float64()
		n := journal.EncodeOrderPayload(buf, journal.OrderPayload{
			OrderID:        v.OrderID,
			Symbol:         v.Symbol,
			Side:           uint8(v.Side),
			State:          uint8(v.State),
			Price:          price,
			Quantity:       qty,
			FilledQuantity: filledQty,
			FilledPriceStr: v.FilledPriceStr,
		})
		return journal.TypeOrder, buf[:n], nil

	default:
		return 0, nil, errUnsupported(evt.Kind())
	}
}

type errUnsupported eventmodel.Type

func (e errUnsupported) Error() string {
	return "bridge: no frame encoding registered for event type " + eventmodel.Type(e).String()
}

// Ingest decodes journal frames back into canonical events and publishes
// them onto e, tagging the producer id so ignore_self listeners behave
// correctly across a replay boundary. Intended as the journal.FrameHandler
// passed to a journal.Reader's Run/Poll.
func Ingest(e *engine.Engine, producerID string) journal.FrameHandler {
	return func(h journal.FrameHeader, payload []byte) error {
		ctx := engine.WithProducer(context.Background(), producerID)
		switch h.TypeTag {
		case journal.TypeTicker:
			p := journal.DecodeTickerPayload(payload)
			evt := &eventmodel.Ticker{
				Base:      eventmodel.Base{Type: eventmodel.TypeTicker, ProducerID: producerID},
				Symbol:    p.Symbol,
				LastPrice: floatDecimal(p.LastPrice),
			}
			if p.HasBid {
				bid := floatDecimal(p.BidPrice)
				evt.BidPrice = &bid
			}
			if p.HasAsk {
				ask := floatDecimal(p.AskPrice)
				evt.AskPrice = &ask
			}
			e.Put(ctx, evt)

		case journal.TypeTrade:
			p := journal.DecodeTradePayload(payload)
			e.Put(ctx, &eventmodel.Trade{
				Base:     eventmodel.Base{Type: eventmodel.TypeTrade, ProducerID: producerID},
				Symbol:   p.Symbol,
				TradeID:  p.TradeID,
				Price:    floatDecimal(p.Price),
				Quantity: floatDecimal(p.Quantity),
				Side:     eventmodel.Side(p.Side),
			})

		case journal.TypeOrder:
			p := journal.DecodeOrderPayload(payload)
			e.Put(ctx, &eventmodel.Order{
				Base:           eventmodel.Base{Type: eventmodel.TypeOrder, ProducerID: producerID},
				OrderID:        p.OrderID,
				Symbol:         p.Symbol,
				Side:           eventmodel.Side(p.Side),
				State:          eventmodel.OrderState(p.State),
				Price:          floatDecimal(p.Price),
				Quantity:       floatDecimal(p.Quantity),
				FilledQuantity: floatDecimal(p.FilledQuantity),
				FilledPriceStr: p.FilledPriceStr,
			})
		}
		return nil
	}
}

func floatDecimal(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
