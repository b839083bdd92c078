package okx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Config carries the endpoints and credentials for one OKX WS connection.
// The three v5 endpoints (public/business/private) each need their own
// Transport; the Endpoint passed to NewTransport selects which one a given
// Transport dials.
type Config struct {
	APIKey            string
	SecretKey         string
	Passphrase        string
	WSPublicURL       string // default wss://ws.okx.com:8443/ws/v5/public
	WSBusinessURL     string // default wss://ws.okx.com:8443/ws/v5/business
	WSPrivateURL      string // default wss://ws.okx.com:8443/ws/v5/private
	Demo              bool   // true routes to OKX's paper-trading endpoints
	RESTRatePerSecond float64
}

func (c Config) withDefaults() Config {
	if c.WSPublicURL == "" {
		c.WSPublicURL = "wss://ws.okx.com:8443/ws/v5/public"
	}
	if c.WSBusinessURL == "" {
		c.WSBusinessURL = "wss://ws.okx.com:8443/ws/v5/business"
	}
	if c.WSPrivateURL == "" {
		c.WSPrivateURL = "wss://ws.okx.com:8443/ws/v5/private"
	}
	if c.Demo {
		// OKX's demo-trading WS gateway shares the production hostnames but
		// requires the x-simulated-trading header; Transport.Dial sets it
		// when Demo is set.
	}
	if c.RESTRatePerSecond == 0 {
		c.RESTRatePerSecond = 10
	}
	return c
}

// Endpoint selects which of OKX's three v5 WS gateways a Transport dials.
type Endpoint uint8

const (
	EndpointPublic Endpoint = iota
	EndpointBusiness
	EndpointPrivate
)

// Transport implements adapter.Transport for one OKX v5 WS gateway.
// Authenticate performs OKX's login handshake; Subscribe/Unsubscribe send
// the {"op":"subscribe",...} control frames directly over the connection,
// unlike Binance's combined-streams URL-encoded approach, since OKX
// multiplexes all channels over the single connection per gateway.
type Transport struct {
	cfg      Config
	endpoint Endpoint
	limiter  *rate.Limiter

	mu   sync.RWMutex
	conn *websocket.Conn

	loginAckCh chan error
	subAckMu   sync.Mutex
}

// NewTransport constructs a Transport bound to one of OKX's three gateways.
func NewTransport(cfg Config, endpoint Endpoint) *Transport {
	cfg = cfg.withDefaults()
	return &Transport{
		cfg:        cfg,
		endpoint:   endpoint,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RESTRatePerSecond), int(cfg.RESTRatePerSecond)),
		loginAckCh: make(chan error, 1),
	}
}

func (t *Transport) url() string {
	switch t.endpoint {
	case EndpointBusiness:
		return t.cfg.WSBusinessURL
	case EndpointPrivate:
		return t.cfg.WSPrivateURL
	default:
		return t.cfg.WSPublicURL
	}
}

// Dial opens the WS connection to the selected gateway.
func (t *Transport) Dial(ctx context.Context) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	header := map[string][]string{}
	if t.cfg.Demo {
		header["x-simulated-trading"] = []string{"1"}
	}

	conn, _, err := dialer.DialContext(ctx, t.url(), header)
	if err != nil {
		return fmt.Errorf("okx: dial %s: %w", t.url(), err)
	}
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

// Authenticate performs OKX's login handshake on the private gateway. The
// signature is base64(HMAC-SHA256(secret, timestamp + "GET" +
// "/users/self/verify")), per OKX v5's documented login scheme.
func (t *Transport) Authenticate(ctx context.Context) error {
	if t.endpoint != EndpointPrivate {
		return nil
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	prehash := ts + "GET" + "/users/self/verify"
	mac := hmac.New(sha256.New, []byte(t.cfg.SecretKey))
	mac.Write([]byte(prehash))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req := WSRequest{
		Op: "login",
		Args: []interface{}{WSLoginArg{
			APIKey:     t.cfg.APIKey,
			Passphrase: t.cfg.Passphrase,
			Timestamp:  ts,
			Sign:       sig,
		}},
	}
	if err := t.writeJSON(req); err != nil {
		return err
	}
	// The session starts ReadLoop only after Authenticate returns, so the
	// login ack is read here directly from the connection.
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("okx: login ack: %w", err)
		}
		var env WSEnvelope
		if json.Unmarshal(msg, &env) == nil && (env.Event == "login" || env.Event == "error") {
			return loginResult(env)
		}
	}
}

// Subscribe sends one {"op":"subscribe","args":[...]} frame for the given
// channel:instId topics (formatted "channel:instId" by the caller).
func (t *Transport) Subscribe(ctx context.Context, topics []string) error {
	return t.sendOp(ctx, "subscribe", topics)
}

// Unsubscribe mirrors Subscribe for the unsubscribe op.
func (t *Transport) Unsubscribe(ctx context.Context, topics []string) error {
	return t.sendOp(ctx, "unsubscribe", topics)
}

func (t *Transport) sendOp(ctx context.Context, op string, topics []string) error {
	args := make([]interface{}, 0, len(topics))
	for _, topic := range topics {
		args = append(args, parseTopic(topic))
	}
	return t.writeJSON(WSRequest{Op: op, Args: args})
}

func parseTopic(topic string) WSArg {
	for i := 0; i < len(topic); i++ {
		if topic[i] == ':' {
			return WSArg{Channel: topic[:i], InstID: topic[i+1:]}
		}
	}
	return WSArg{Channel: topic}
}

func (t *Transport) writeJSON(v interface{}) error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("okx: write before Dial")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

// ReadLoop reads frames, diverting login acks into loginAckCh and reporting
// venue error frames through onError, and forwards every other frame (data
// pushes and subscribe acks) to onMessage.
func (t *Transport) ReadLoop(ctx context.Context, onMessage func([]byte), onError func(error)) error {
	for {
		t.mu.RLock()
		conn := t.conn
		t.mu.RUnlock()
		if conn == nil {
			return fmt.Errorf("okx: read loop started before Dial")
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if string(msg) == "pong" {
			continue
		}

		var env WSEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			onError(fmt.Errorf("okx: decode envelope: %w", err))
			continue
		}
		if env.Event == "login" {
			select {
			case t.loginAckCh <- loginResult(env):
			default:
			}
			continue
		}
		if env.Event == "error" {
			onError(fmt.Errorf("okx: venue error %s: %s", env.Code, env.Msg))
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			onMessage(msg)
		}
	}
}

func loginResult(env WSEnvelope) error {
	if env.Code != "" && env.Code != "0" {
		return fmt.Errorf("okx: login rejected: %s", env.Msg)
	}
	return nil
}

// SendPing sends OKX's documented "ping" text frame (not a WS control
// ping); the gateway replies with the "pong" text frame handled above.
func (t *Transport) SendPing(ctx context.Context) error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("okx: no active connection")
	}
	return conn.WriteMessage(websocket.TextMessage, []byte("ping"))
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
