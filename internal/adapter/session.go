// Package adapter implements the venue-agnostic session state machine,
// heartbeat/reauth/reconnect policy, and subscription-set replay shared by
// every exchange adapter.
//
// Built on a gorilla/websocket dialer with handshake timeout, read-deadline
// plus pong handler, and reconnect-on-read-error loop, generalized into a
// full connect/authenticate/subscribe/error/reconnect state graph rather
// than a flat connected/not-connected model.
package adapter

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ai-agentic-browser/eventbus/internal/busfault"
	"github.com/ai-agentic-browser/eventbus/pkg/observability"
)

// State is a node in the Adapter Runtime's session lifecycle graph.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthenticating
	StateAuthenticated
	StateSubscribing
	StateActive
	StateReconnecting
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateSubscribing:
		return "SUBSCRIBING"
	case StateActive:
		return "ACTIVE"
	case StateReconnecting:
		return "RECONNECTING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Transport is implemented by a venue-specific connection (e.g. a gorilla/
// websocket wrapper). Dial blocks until the handshake completes or times
// out. Authenticate is a no-op for public sessions. Subscribe sends the
// venue's subscription frames for the given topics.
type Transport interface {
	Dial(ctx context.Context) error
	Authenticate(ctx context.Context) error
	Subscribe(ctx context.Context, topics []string) error
	ReadLoop(ctx context.Context, onMessage func([]byte), onError func(error)) error
	SendPing(ctx context.Context) error
	Close() error
}

// Config tunes timeouts and backoff for a Session.
type Config struct {
	ConnectTimeout        time.Duration // default 5s
	SubscribeAckTimeout   time.Duration // default 5s
	HeartbeatInterval     time.Duration // per-venue cadence, e.g. 25s for OKX
	HeartbeatLossThresh   int           // default 3
	BackoffInitial        time.Duration // default 1s
	BackoffMax            time.Duration // default 30s
	Private               bool          // whether Authenticate is required
	Venue                 string        // "binance" | "okx", for audit/fault labeling
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.SubscribeAckTimeout == 0 {
		c.SubscribeAckTimeout = 5 * time.Second
	}
	if c.HeartbeatLossThresh == 0 {
		c.HeartbeatLossThresh = 3
	}
	if c.BackoffInitial == 0 {
		c.BackoffInitial = time.Second
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = 30 * time.Second
	}
	return c
}

// Option configures a Session at construction time with ambient
// infrastructure that is optional in tests but wired in production.
type Option func(*Session)

// WithMetrics attaches a metrics provider; every reconnect cycle is counted.
func WithMetrics(mp *observability.MetricsProvider) Option {
	return func(s *Session) { s.metrics = mp }
}

// WithTracing attaches a tracing provider; each connect/auth/subscribe
// cycle is wrapped in a span named "session.connect".
func WithTracing(tp *observability.TracingProvider) Option {
	return func(s *Session) { s.tracing = tp }
}

// WithSecurityLogger attaches the security audit sink for authentication
// attempts.
func WithSecurityLogger(sl *observability.SecurityLogger) Option {
	return func(s *Session) { s.security = sl }
}

// Session drives one venue connection through the full connect/auth/
// subscribe/error/reconnect lifecycle graph, maintaining the
// subscription set as the source of truth across reconnects.
type Session struct {
	Name      string // e.g. "okx-public", "binance-private"
	transport Transport
	cfg       Config
	logger    *observability.Logger
	onFault   func(*busfault.Error)
	metrics   *observability.MetricsProvider
	tracing   *observability.TracingProvider
	security  *observability.SecurityLogger

	mu            sync.Mutex
	state         State
	subscriptions map[string]struct{}
	missedBeats   int

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewSession constructs a Session bound to transport, with the given
// config and fault sink.
func NewSession(name string, transport Transport, cfg Config, logger *observability.Logger, onFault func(*busfault.Error), opts ...Option) *Session {
	s := &Session{
		Name:          name,
		transport:     transport,
		cfg:           cfg.withDefaults(),
		logger:        logger,
		onFault:       onFault,
		subscriptions: make(map[string]struct{}),
		stopChan:      make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	if s.logger != nil {
		s.logger.Info(context.Background(), "session state transition", map[string]interface{}{
			"session": s.Name,
			"state":   st.String(),
		})
	}
}

// Subscribe adds topics to the session's subscription set and, if the
// session is ACTIVE, subscribes immediately; otherwise they are replayed on
// the next successful (re)connect.
func (s *Session) Subscribe(ctx context.Context, topics ...string) error {
	s.mu.Lock()
	for _, t := range topics {
		s.subscriptions[t] = struct{}{}
	}
	active := s.state == StateActive
	s.mu.Unlock()
	if active {
		return s.transport.Subscribe(ctx, topics)
	}
	return nil
}

// Unsubscribe removes topics from the subscription set. The set is a set,
// not a multiset: re-subscribing to an already-subscribed channel is a
// no-op.
func (s *Session) Unsubscribe(topics ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range topics {
		delete(s.subscriptions, t)
	}
}

func (s *Session) subscriptionList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.subscriptions))
	for t := range s.subscriptions {
		out = append(out, t)
	}
	return out
}

// Run drives the session lifecycle until ctx is cancelled or Stop is
// called. onMessage receives every raw payload once the session reaches
// ACTIVE.
func (s *Session) Run(ctx context.Context, onMessage func([]byte)) {
	s.wg.Add(1)
	defer s.wg.Done()

	backoff := s.cfg.BackoffInitial
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		default:
		}

		if err := s.connectAndRun(ctx, onMessage); err != nil {
			if fe, ok := busfault.As(err); ok && fe.Kind == busfault.AuthFailure {
				// Stop requires operator action: the credentials are wrong,
				// not the network, so retrying can only hammer the venue.
				s.setState(StateError)
				return
			}
			s.setState(StateReconnecting)
			s.fault(busfault.TransientNetwork, "session.Run", "connection cycle ended", err)
			if s.metrics != nil {
				s.metrics.RecordAdapterReconnect(ctx, s.Name)
			}
			select {
			case <-time.After(backoff + jitter(backoff)):
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			}
			backoff = nextBackoff(backoff, s.cfg.BackoffMax)
			continue
		}
		backoff = s.cfg.BackoffInitial
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		next = max
	}
	return next
}

func jitter(d time.Duration) time.Duration {
	return time.Duration(rand.Int63n(int64(math.Max(float64(d/4), 1))))
}

func (s *Session) connectAndRun(ctx context.Context, onMessage func([]byte)) error {
	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	var endSpan func()
	if s.tracing != nil {
		spanCtx, span := s.tracing.StartSpan(ctx, "session.connect")
		ctx = spanCtx
		endSpan = func() { span.End() }
		defer func() {
			if endSpan != nil {
				endSpan()
			}
		}()
	}

	s.setState(StateConnecting)
	if err := s.transport.Dial(connectCtx); err != nil {
		return err
	}
	s.setState(StateConnected)

	if s.cfg.Private {
		s.setState(StateAuthenticating)
		authCtx, cancel2 := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		err := s.transport.Authenticate(authCtx)
		cancel2()
		if s.security != nil {
			s.security.LogAuthEvent(ctx, s.Name, s.cfg.Venue, err == nil)
		}
		if err != nil {
			s.setState(StateError)
			// AuthFailure is returned as a *busfault.Error so Run can
			// distinguish it from a transient error and stop instead of
			// reconnecting: wrong credentials require operator action.
			return s.fault(busfault.AuthFailure, "session.connectAndRun", "authentication rejected", err)
		}
		s.setState(StateAuthenticated)
	}

	s.setState(StateSubscribing)
	topics := s.subscriptionList()
	if len(topics) > 0 {
		subCtx, cancel3 := context.WithTimeout(ctx, s.cfg.SubscribeAckTimeout)
		err := s.transport.Subscribe(subCtx, topics)
		cancel3()
		if err != nil {
			s.setState(StateError)
			return s.fault(busfault.ProtocolError, "session.connectAndRun", "subscribe rejected", err)
		}
	}
	s.setState(StateActive)
	s.missedBeats = 0

	heartbeatCtx, cancelHB := context.WithCancel(ctx)
	defer cancelHB()
	if s.cfg.HeartbeatInterval > 0 {
		go s.heartbeatLoop(heartbeatCtx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.transport.ReadLoop(ctx, onMessage, func(err error) {
			s.fault(busfault.ProtocolError, "session.ReadLoop", "message handling error", err)
		})
	}()

	select {
	case err := <-errCh:
		s.transport.Close()
		return err
	case <-ctx.Done():
		s.transport.Close()
		return ctx.Err()
	case <-s.stopChan:
		s.transport.Close()
		return nil
	}
}

func (s *Session) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.transport.SendPing(ctx); err != nil {
				s.mu.Lock()
				s.missedBeats++
				lost := s.missedBeats >= s.cfg.HeartbeatLossThresh
				s.mu.Unlock()
				if lost {
					s.setState(StateError)
					s.fault(busfault.TransientNetwork, "session.heartbeatLoop", "heartbeat lost, forcing reconnect", err)
					// connectAndRun's select is blocked on errCh/ctx/stopChan;
					// closing the transport forces ReadLoop's read to error
					// out so the run loop actually cycles into reconnect.
					s.transport.Close()
					return
				}
			} else {
				s.mu.Lock()
				s.missedBeats = 0
				s.mu.Unlock()
			}
		}
	}
}

// fault builds a busfault.Error scoped to this session, hands it to the
// fault sink, and returns it so callers that need to propagate the failure
// (e.g. connectAndRun's AuthFailure return) can inspect its Kind upstream.
func (s *Session) fault(kind busfault.Kind, op, msg string, err error) *busfault.Error {
	fe := busfault.Wrap(kind, fmt.Sprintf("%s:%s", s.Name, op), msg, err)
	if s.onFault != nil {
		s.onFault(fe)
	}
	return fe
}

// Ping exercises the underlying transport's keepalive frame, for use as an
// observability.AdapterSessionHealthCheck probe.
func (s *Session) Ping(ctx context.Context) error {
	return s.transport.SendPing(ctx)
}

// Stop terminates the session's run loop.
func (s *Session) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}
