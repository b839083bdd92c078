package binance

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ai-agentic-browser/eventbus/internal/engine"
	"github.com/ai-agentic-browser/eventbus/pkg/observability"
)

// discriminator peeks at the "e" field Binance tags every combined-stream
// payload with, except bookTicker which carries none.
type discriminator struct {
	EventType string `json:"e"`
}

// Route decodes one raw message handed up by Transport.ReadLoop's onMessage
// callback and publishes the corresponding canonical event onto e. Unknown
// event types are ignored rather than treated as an error: new Binance
// stream types should never stall the session.
func Route(ctx context.Context, raw []byte, producerID string, e *engine.Engine, security *observability.SecurityLogger) error {
	var d discriminator
	if err := json.Unmarshal(raw, &d); err != nil {
		return fmt.Errorf("binance: decode discriminator: %w", err)
	}

	switch d.EventType {
	case "depthUpdate":
		var evt WSDepthEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return fmt.Errorf("binance: decode depthUpdate: %w", err)
		}
		snap := NormalizeDepth(evt, producerID, "depth")
		if !snap.BestBidAskValid() && security != nil {
			security.LogProtocolViolation(ctx, producerID, "best bid crosses or equals best ask", map[string]interface{}{
				"symbol": snap.Symbol,
			})
		}
		e.Put(ctx, snap)

	case "trade":
		var evt WSTradeEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return fmt.Errorf("binance: decode trade: %w", err)
		}
		e.Put(ctx, NormalizeTrade(evt, producerID))

	case "kline":
		var evt WSKlineEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return fmt.Errorf("binance: decode kline: %w", err)
		}
		if k, ok := NormalizeKline(evt, producerID); ok {
			e.Put(ctx, k)
		}

	case "executionReport":
		var evt WSExecutionReport
		if err := json.Unmarshal(raw, &evt); err != nil {
			return fmt.Errorf("binance: decode executionReport: %w", err)
		}
		order := NormalizeExecutionReport(evt, producerID)
		e.Put(ctx, &order)

	case "":
		// bookTicker carries no "e" field; disambiguate by field presence.
		var evt WSBookTickerEvent
		if err := json.Unmarshal(raw, &evt); err == nil && evt.Symbol != "" && (evt.BestBidPrice != "" || evt.BestAskPrice != "") {
			e.Put(ctx, NormalizeBookTicker(evt, producerID))
		}
	}
	return nil
}
