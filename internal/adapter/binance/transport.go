package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Config carries the REST/WS endpoints and credentials for one Binance
// connection. Grounded on internal/binance/client.go's Config struct,
// trimmed to the fields the adapter transport actually needs.
type Config struct {
	APIKey    string
	SecretKey string
	BaseURL   string // REST base, e.g. https://api.binance.com
	WSBaseURL string // WS base, e.g. wss://stream.binance.com:9443
	Testnet   bool
	// RESTRatePerSecond bounds outbound REST calls (listenKey
	// create/refresh). Default 10.
	RESTRatePerSecond float64
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		if c.Testnet {
			c.BaseURL = "https://testnet.binance.vision"
		} else {
			c.BaseURL = "https://api.binance.com"
		}
	}
	if c.WSBaseURL == "" {
		if c.Testnet {
			c.WSBaseURL = "wss://testnet.binance.vision"
		} else {
			c.WSBaseURL = "wss://stream.binance.com:9443"
		}
	}
	if c.RESTRatePerSecond == 0 {
		c.RESTRatePerSecond = 10
	}
	return c
}

// Transport implements adapter.Transport for a combined-streams Binance
// WebSocket connection. Dial/read-loop/ping behavior is adapted from
// internal/binance/websocket.go's createConnection/processConnection
// (handshake timeout, read-deadline refreshed by the pong handler). No
// request is HMAC-signed: the only REST call, the listenKey request, is
// authorized by the X-MBX-APIKEY header alone.
type Transport struct {
	cfg     Config
	streams []string // combined-stream names, e.g. "btcusdt@trade"
	private bool

	httpClient *http.Client
	limiter    *rate.Limiter

	mu        sync.RWMutex
	conn      *websocket.Conn
	listenKey string
}

// NewTransport constructs a public combined-streams Transport.
func NewTransport(cfg Config, streams []string) *Transport {
	cfg = cfg.withDefaults()
	return &Transport{
		cfg:        cfg,
		streams:    streams,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RESTRatePerSecond), int(cfg.RESTRatePerSecond)),
	}
}

// NewUserDataTransport constructs a private Transport that authenticates by
// minting a listenKey over REST and connecting to the resulting stream.
func NewUserDataTransport(cfg Config) *Transport {
	t := NewTransport(cfg, nil)
	t.private = true
	return t
}

// Dial establishes the WebSocket connection. For a public transport this
// connects directly to the combined-streams endpoint; for the private
// transport, Dial first mints a listenKey through Authenticate when none is
// held yet, then connects to /ws/<listenKey>.
func (t *Transport) Dial(ctx context.Context) error {
	if t.private {
		t.mu.RLock()
		key := t.listenKey
		t.mu.RUnlock()
		if key == "" {
			if err := t.Authenticate(ctx); err != nil {
				return err
			}
			t.mu.RLock()
			key = t.listenKey
			t.mu.RUnlock()
		}
		return t.dial(ctx, fmt.Sprintf("%s/ws/%s", t.cfg.WSBaseURL, key))
	}
	streamParam := url.QueryEscape(strings.Join(t.streams, "/"))
	return t.dial(ctx, fmt.Sprintf("%s/stream?streams=%s", t.cfg.WSBaseURL, streamParam))
}

func (t *Transport) dial(ctx context.Context, wsURL string) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("binance: dial %s: %w", wsURL, err)
	}
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

// Authenticate mints a user-data listenKey with an unsigned REST POST that
// carries only the X-MBX-APIKEY header, and stores it for the next Dial. A
// private session calls it once per connect, after Dial; no keepalive PUT
// is sent, so the key is not refreshed while a connection stays up.
func (t *Transport) Authenticate(ctx context.Context) error {
	if !t.private {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/api/v3/userDataStream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-MBX-APIKEY", t.cfg.APIKey)
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("binance: listenKey request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("binance: listenKey request status %d", resp.StatusCode)
	}
	var body struct {
		ListenKey string `json:"listenKey"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("binance: decode listenKey: %w", err)
	}
	t.mu.Lock()
	t.listenKey = body.ListenKey
	t.mu.Unlock()
	return nil
}

// Subscribe is a no-op for the combined-streams endpoint: the stream set is
// fixed at dial time via the URL path. Venue-side dynamic SUBSCRIBE/
// UNSUBSCRIBE frames are not needed for the stream set this adapter uses.
func (t *Transport) Subscribe(ctx context.Context, topics []string) error {
	return nil
}

// ReadLoop reads frames until ctx is cancelled or the connection errors.
// Combined-stream payloads are unwrapped from their {"stream":..,"data":..}
// envelope before being handed to onMessage.
func (t *Transport) ReadLoop(ctx context.Context, onMessage func([]byte), onError func(error)) error {
	for {
		t.mu.RLock()
		conn := t.conn
		t.mu.RUnlock()
		if conn == nil {
			return fmt.Errorf("binance: read loop started before Dial")
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		if !t.private {
			var envelope struct {
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(msg, &envelope); err == nil && envelope.Data != nil {
				msg = envelope.Data
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			onMessage(msg)
		}
	}
}

// SendPing sends a WS-level ping; Binance's pong handler refreshes the
// 60s read deadline.
func (t *Transport) SendPing(ctx context.Context) error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("binance: no active connection")
	}
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// Close tears down the connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// BuildStreamName builds a lower-cased combined-stream name, matching
// internal/binance/websocket.go's buildStreamName convention.
func BuildStreamName(symbol, suffix string) string {
	return strings.ToLower(symbol) + "@" + suffix
}
