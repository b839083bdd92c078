package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ai-agentic-browser/eventbus/internal/engine"
	"github.com/ai-agentic-browser/eventbus/pkg/observability"
)

// Route decodes one raw WSEnvelope handed up by Transport.ReadLoop's
// onMessage callback and publishes the corresponding canonical event(s)
// onto e. Candle channels are named "candle1m", "candle5m", etc; any other
// channel not recognized here is ignored rather than treated as an error.
func Route(ctx context.Context, raw []byte, producerID string, e *engine.Engine, security *observability.SecurityLogger) error {
	var env WSEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("okx: decode envelope: %w", err)
	}
	if env.Data == nil {
		return nil
	}

	switch {
	case env.Arg.Channel == "tickers":
		tickers, err := DecodeTickers(env.Data)
		if err != nil {
			return fmt.Errorf("okx: decode tickers: %w", err)
		}
		for _, t := range tickers {
			e.Put(ctx, NormalizeTicker(t, producerID))
		}

	case env.Arg.Channel == "trades":
		trades, err := DecodeTrades(env.Data)
		if err != nil {
			return fmt.Errorf("okx: decode trades: %w", err)
		}
		for _, t := range trades {
			e.Put(ctx, NormalizeTrade(t, producerID))
		}

	case strings.HasPrefix(env.Arg.Channel, "books"):
		books, err := DecodeBooks(env.Data)
		if err != nil {
			return fmt.Errorf("okx: decode books: %w", err)
		}
		for _, b := range books {
			snap := NormalizeBooks(b, env.Arg.InstID, env.Arg.Channel, producerID)
			if !snap.BestBidAskValid() && security != nil {
				security.LogProtocolViolation(ctx, producerID, "best bid crosses or equals best ask", map[string]interface{}{
					"symbol": snap.Symbol,
				})
			}
			e.Put(ctx, snap)
		}

	case strings.HasPrefix(env.Arg.Channel, "candle"):
		candles, err := DecodeCandles(env.Data)
		if err != nil {
			return fmt.Errorf("okx: decode candles: %w", err)
		}
		interval := strings.TrimPrefix(env.Arg.Channel, "candle")
		for _, c := range candles {
			if k, ok := NormalizeCandle(c, env.Arg.InstID, interval, producerID); ok {
				e.Put(ctx, k)
			}
		}

	case env.Arg.Channel == "orders":
		orders, err := DecodeOrders(env.Data)
		if err != nil {
			return fmt.Errorf("okx: decode orders: %w", err)
		}
		for _, o := range orders {
			order := NormalizeOrder(o, producerID)
			e.Put(ctx, &order)
		}
	}
	return nil
}
