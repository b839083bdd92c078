// Command eventbusd runs the event transport process: it dials the
// configured Binance and OKX sessions, normalizes every wire message into a
// canonical event, dispatches it through the Event Engine to the Order and
// Account state machines, and journals it to one of two memory-mapped
// ring buffers partitioned by concern (market data vs orders).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ai-agentic-browser/eventbus/internal/account"
	"github.com/ai-agentic-browser/eventbus/internal/adapter"
	"github.com/ai-agentic-browser/eventbus/internal/adapter/binance"
	"github.com/ai-agentic-browser/eventbus/internal/adapter/okx"
	"github.com/ai-agentic-browser/eventbus/internal/bridge"
	"github.com/ai-agentic-browser/eventbus/internal/busfault"
	"github.com/ai-agentic-browser/eventbus/internal/config"
	"github.com/ai-agentic-browser/eventbus/internal/engine"
	"github.com/ai-agentic-browser/eventbus/internal/eventmodel"
	"github.com/ai-agentic-browser/eventbus/internal/journal"
	"github.com/ai-agentic-browser/eventbus/internal/orders"
	"github.com/ai-agentic-browser/eventbus/pkg/observability"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability)
	logger.Info(ctx, "starting eventbusd", map[string]interface{}{
		"market_data_journal": cfg.Journal.MarketDataPath,
		"orders_journal":      cfg.Journal.OrdersPath,
	})

	metrics, err := observability.NewMetricsProvider(observability.MetricsConfig{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Namespace:      "eventbus",
		Port:           cfg.Observability.MetricsPort,
		Enabled:        cfg.Observability.MetricsEnabled,
	})
	if err != nil {
		log.Fatalf("init metrics: %v", err)
	}

	tracing, err := observability.NewTracingProvider(cfg.Observability)
	if err != nil {
		log.Fatalf("init tracing: %v", err)
	}

	security := observability.NewSecurityLogger(logger)
	audit := observability.NewAuditLogger(logger)
	health := observability.NewHealthChecker(logger)

	if err := os.MkdirAll(parentDir(cfg.Journal.MarketDataPath), 0o755); err != nil {
		log.Fatalf("create market data journal dir: %v", err)
	}
	if err := os.MkdirAll(parentDir(cfg.Journal.OrdersPath), 0o755); err != nil {
		log.Fatalf("create orders journal dir: %v", err)
	}

	marketDataWriter, err := journal.Open(cfg.Journal.MarketDataPath, cfg.Journal.MarketDataSize, 1)
	if err != nil {
		log.Fatalf("open market data journal: %v", err)
	}
	ordersWriter, err := journal.Open(cfg.Journal.OrdersPath, cfg.Journal.OrdersSize, 2)
	if err != nil {
		log.Fatalf("open orders journal: %v", err)
	}

	health.RegisterCheck("journal.market_data", observability.JournalWriterHealthCheck("market_data", func() (uint64, error) {
		return uint64(marketDataWriter.Cursor()), nil
	}))
	health.RegisterCheck("journal.orders", observability.JournalWriterHealthCheck("orders", func() (uint64, error) {
		return uint64(ordersWriter.Cursor()), nil
	}))

	eng := engine.New(
		engine.WithLogger(logger),
		engine.WithParallelDispatch(cfg.Engine.ParallelWorkers),
		engine.WithQueueCapacity(cfg.Engine.QueueCapacity),
		engine.WithMetrics(metrics),
	)

	marketDataBridge := bridge.NewFiltered(marketDataWriter, logger, metrics, tracing,
		eventmodel.TypeTicker, eventmodel.TypeTrade, eventmodel.TypeOrderBookSnapshot, eventmodel.TypeKline)
	ordersBridge := bridge.NewFiltered(ordersWriter, logger, metrics, tracing, eventmodel.TypeOrder)

	accountManager := account.NewManager()
	orderManager := orders.NewManager(orders.WithMetrics(metrics), orders.WithAuditLogger(audit))

	if err := eng.Attach(marketDataBridge); err != nil {
		log.Fatalf("attach market data bridge: %v", err)
	}
	if err := eng.Attach(ordersBridge); err != nil {
		log.Fatalf("attach orders bridge: %v", err)
	}
	if err := eng.Attach(accountManager); err != nil {
		log.Fatalf("attach account manager: %v", err)
	}
	if err := eng.Attach(orderManager); err != nil {
		log.Fatalf("attach order manager: %v", err)
	}

	if err := eng.Start(ctx); err != nil {
		log.Fatalf("start engine: %v", err)
	}

	// onFault logs every adapter/journal fault, counts protocol errors, and publishes it
	// onto the engine as a Fault event so strategy components can react to a
	// session going terminal (e.g. halt on an AuthFailure for a venue)
	// without polling logs.
	onFault := func(f *busfault.Error) {
		logger.Error(ctx, "adapter fault", f, map[string]interface{}{
			"kind": string(f.Kind),
			"op":   f.Op,
		})
		if f.Kind == busfault.ProtocolError {
			metrics.AdapterProtocolErrors.Add(ctx, 1)
		}
		eng.Put(ctx, &eventmodel.Fault{
			Base:    eventmodel.Base{Type: eventmodel.TypeFault, Timestamp: time.Now(), ProducerID: "adapter"},
			Kind:    f.Kind,
			Op:      f.Op,
			Message: f.Message,
		})
	}

	sessions := buildSessions(cfg, logger, metrics, tracing, security, eng, onFault)
	for _, s := range sessions {
		health.RegisterCheck("adapter."+s.session.Name, observability.AdapterSessionHealthCheck(s.venue, s.session.Ping))
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	for _, s := range sessions {
		go s.session.Run(runCtx, s.onMessage)
	}

	watchdogCtx, cancelWatchdogs := context.WithCancel(ctx)
	startJournalLagWatchdog(watchdogCtx, logger, metrics, "market_data", cfg.Journal.MarketDataPath)
	startJournalLagWatchdog(watchdogCtx, logger, metrics, "orders", cfg.Journal.OrdersPath)

	stopHealthPolling := make(chan struct{})
	go pollHealth(health, logger, stopHealthPolling)

	logger.Info(ctx, "eventbusd running", map[string]interface{}{
		"sessions": len(sessions),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info(ctx, "shutting down eventbusd", nil)
	close(stopHealthPolling)
	cancelWatchdogs()
	cancelRun()

	for _, s := range sessions {
		s.session.Stop()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := eng.Stop(); err != nil {
		logger.Error(shutdownCtx, "stop engine", err, nil)
	}
	if err := marketDataWriter.Close(); err != nil {
		logger.Error(shutdownCtx, "close market data journal", err, nil)
	}
	if err := ordersWriter.Close(); err != nil {
		logger.Error(shutdownCtx, "close orders journal", err, nil)
	}
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "shutdown metrics", err, nil)
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "shutdown tracing", err, nil)
	}

	logger.Info(ctx, "eventbusd stopped", nil)
}

// pollHealth snapshots the HealthChecker on an interval purely for
// self-monitoring: eventbusd does not expose it over HTTP, it just logs a
// warning the operator's log aggregator can alert on.
func pollHealth(health *observability.HealthChecker, logger *observability.Logger, stop chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			report := health.Snapshot(context.Background())
			if report.Status != observability.HealthStatusHealthy {
				logger.Warn(context.Background(), "health check degraded", map[string]interface{}{
					"status": string(report.Status),
				})
			}
		}
	}
}

// startJournalLagWatchdog opens a private journal.Reader over an
// already-open journal file purely to exercise Poll's JournalLag detection
// for self-monitoring: eventbusd itself never replays its own journals in
// production, that is left to out-of-process consumers with their own
// readers, but nothing else in this process would ever observe the writer
// lapping a slow reader.
func startJournalLagWatchdog(ctx context.Context, logger *observability.Logger, metrics *observability.MetricsProvider, name, path string) {
	reader, err := journal.OpenReader(path, journal.ReaderConfig{})
	if err != nil {
		logger.Warn(ctx, "journal lag watchdog: open failed", map[string]interface{}{
			"journal": name,
			"error":   err.Error(),
		})
		return
	}
	go func() {
		defer reader.Close()
		reader.Run(ctx, func(journal.FrameHeader, []byte) error { return nil }, func(err error) {
			metrics.RecordJournalLag(ctx)
			logger.Warn(ctx, "journal lag detected", map[string]interface{}{
				"journal": name,
				"error":   err.Error(),
			})
		})
	}()
}

// routedSession pairs a running adapter.Session with the venue-specific
// onMessage closure that decodes and routes its raw frames onto the Engine.
type routedSession struct {
	session   *adapter.Session
	venue     string
	onMessage func([]byte)
}

func buildSessions(cfg *config.Config, logger *observability.Logger, metrics *observability.MetricsProvider, tracing *observability.TracingProvider, security *observability.SecurityLogger, eng *engine.Engine, onFault func(*busfault.Error)) []routedSession {
	var sessions []routedSession

	sessOpts := []adapter.Option{
		adapter.WithMetrics(metrics),
		adapter.WithTracing(tracing),
		adapter.WithSecurityLogger(security),
	}

	binanceCfg := binance.Config{
		APIKey:            cfg.Binance.APIKey,
		SecretKey:         cfg.Binance.SecretKey,
		BaseURL:           cfg.Binance.BaseURL,
		WSBaseURL:         cfg.Binance.WSBaseURL,
		Testnet:           cfg.Binance.Testnet,
		RESTRatePerSecond: cfg.Binance.RESTRatePerSecond,
	}
	if len(cfg.Binance.Symbols) > 0 {
		streams := binancePublicStreams(cfg.Binance.Symbols)
		publicTransport := binance.NewTransport(binanceCfg, streams)
		publicSession := adapter.NewSession("binance-public", publicTransport, adapter.Config{
			HeartbeatInterval: 30 * time.Second,
			Venue:             "binance",
		}, logger, onFault, sessOpts...)
		sessions = append(sessions, routedSession{
			session: publicSession,
			venue:   "binance",
			onMessage: func(raw []byte) {
				if err := binance.Route(context.Background(), raw, "binance-public", eng, security); err != nil {
					logger.Warn(context.Background(), "binance: route failed", map[string]interface{}{"error": err.Error()})
				}
			},
		})

		if binanceCfg.APIKey != "" {
			privateTransport := binance.NewUserDataTransport(binanceCfg)
			privateSession := adapter.NewSession("binance-private", privateTransport, adapter.Config{
				HeartbeatInterval: 30 * time.Minute,
				Private:           true,
				Venue:             "binance",
			}, logger, onFault, sessOpts...)
			sessions = append(sessions, routedSession{
				session: privateSession,
				venue:   "binance",
				onMessage: func(raw []byte) {
					if err := binance.Route(context.Background(), raw, "binance-private", eng, security); err != nil {
						logger.Warn(context.Background(), "binance: route failed", map[string]interface{}{"error": err.Error()})
					}
				},
			})
		}
	}

	okxCfg := okx.Config{
		APIKey:            cfg.OKX.APIKey,
		SecretKey:         cfg.OKX.SecretKey,
		Passphrase:        cfg.OKX.Passphrase,
		WSPublicURL:       cfg.OKX.WSPublicURL,
		WSBusinessURL:     cfg.OKX.WSBusinessURL,
		WSPrivateURL:      cfg.OKX.WSPrivateURL,
		Demo:              cfg.OKX.Demo,
		RESTRatePerSecond: cfg.OKX.RESTRatePerSecond,
	}
	if len(cfg.OKX.Symbols) > 0 {
		publicTransport := okx.NewTransport(okxCfg, okx.EndpointPublic)
		publicSession := adapter.NewSession("okx-public", publicTransport, adapter.Config{
			HeartbeatInterval: 25 * time.Second,
			Venue:             "okx",
		}, logger, onFault, sessOpts...)
		// Subscribe before Run: the session is not yet ACTIVE, so this only
		// seeds the subscription set for replay once the connect sequence
		// reaches StateActive.
		_ = publicSession.Subscribe(context.Background(), okxPublicTopics(cfg.OKX.Symbols)...)
		sessions = append(sessions, routedSession{
			session: publicSession,
			venue:   "okx",
			onMessage: func(raw []byte) {
				if err := okx.Route(context.Background(), raw, "okx-public", eng, security); err != nil {
					logger.Warn(context.Background(), "okx: route failed", map[string]interface{}{"error": err.Error()})
				}
			},
		})

		businessTransport := okx.NewTransport(okxCfg, okx.EndpointBusiness)
		businessSession := adapter.NewSession("okx-business", businessTransport, adapter.Config{
			HeartbeatInterval: 25 * time.Second,
			Venue:             "okx",
		}, logger, onFault, sessOpts...)
		_ = businessSession.Subscribe(context.Background(), okxCandleTopics(cfg.OKX.Symbols)...)
		sessions = append(sessions, routedSession{
			session: businessSession,
			venue:   "okx",
			onMessage: func(raw []byte) {
				if err := okx.Route(context.Background(), raw, "okx-business", eng, security); err != nil {
					logger.Warn(context.Background(), "okx: route failed", map[string]interface{}{"error": err.Error()})
				}
			},
		})

		if okxCfg.APIKey != "" {
			privateTransport := okx.NewTransport(okxCfg, okx.EndpointPrivate)
			privateSession := adapter.NewSession("okx-private", privateTransport, adapter.Config{
				HeartbeatInterval: 25 * time.Second,
				Private:           true,
				Venue:             "okx",
			}, logger, onFault, sessOpts...)
			_ = privateSession.Subscribe(context.Background(), "orders")
			sessions = append(sessions, routedSession{
				session: privateSession,
				venue:   "okx",
				onMessage: func(raw []byte) {
					if err := okx.Route(context.Background(), raw, "okx-private", eng, security); err != nil {
						logger.Warn(context.Background(), "okx: route failed", map[string]interface{}{"error": err.Error()})
					}
				},
			})
		}
	}

	return sessions
}

func binancePublicStreams(symbols []string) []string {
	streams := make([]string, 0, len(symbols)*4)
	for _, sym := range symbols {
		streams = append(streams,
			binance.BuildStreamName(sym, "trade"),
			binance.BuildStreamName(sym, "depth20@100ms"),
			binance.BuildStreamName(sym, "bookTicker"),
			binance.BuildStreamName(sym, "kline_1m"),
		)
	}
	return streams
}

func okxPublicTopics(instIDs []string) []string {
	topics := make([]string, 0, len(instIDs)*3)
	for _, id := range instIDs {
		topics = append(topics, "tickers:"+id, "trades:"+id, "books5:"+id)
	}
	return topics
}

func okxCandleTopics(instIDs []string) []string {
	topics := make([]string, 0, len(instIDs))
	for _, id := range instIDs {
		topics = append(topics, "candle1m:"+id)
	}
	return topics
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
