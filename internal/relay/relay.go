// Package relay maintains the push-feed subscription that watches the copy
// wallet's trades and turns qualifying messages into buy signals.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/copytradr/solana-copybot/internal/logger"
)

// ErrConnection covers everything that prevents the relay from reaching the
// subscribed state: missing credentials, dial failures, subscribe failures.
var ErrConnection = errors.New("relay connection error")

// State is the relay's connection lifecycle. There is no automatic
// reconnect; a dropped connection stays Disconnected until the orchestrator
// calls Connect again.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

// Handler receives each normalized buy signal.
type Handler func(Signal)

type subscribeRequest struct {
	Method string   `json:"method"`
	APIKey string   `json:"apiKey"`
	Tokens []string `json:"tokens"`
}

type unsubscribeRequest struct {
	Method        string `json:"method"`
	APIKey        string `json:"apiKey"`
	UnsubscribeID int64  `json:"unsubscribeId"`
}

// Relay owns one upstream websocket subscription per session.
type Relay struct {
	url          string
	apiKey       string
	watchAddress string
	pingInterval time.Duration
	venues       map[string]bool
	handler      Handler
	logger       *zap.Logger
	trail        *logger.Trail

	state atomic.Int32

	mu          sync.Mutex // guards conn writes, subscribeID, done
	conn        *websocket.Conn
	subscribeID int64
	done        chan struct{}
}

// Config carries the relay's construction parameters.
type Config struct {
	URL          string
	APIKey       string
	WatchAddress string
	PingInterval time.Duration
	Venues       []string
	Handler      Handler
	Logger       *zap.Logger
	Trail        *logger.Trail
}

// New creates a relay in the disconnected state.
func New(cfg Config) *Relay {
	venues := make(map[string]bool, len(cfg.Venues))
	for _, v := range cfg.Venues {
		venues[v] = true
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 5 * time.Second
	}
	return &Relay{
		url:          cfg.URL,
		apiKey:       cfg.APIKey,
		watchAddress: cfg.WatchAddress,
		pingInterval: cfg.PingInterval,
		venues:       venues,
		handler:      cfg.Handler,
		logger:       cfg.Logger.Named("relay"),
		trail:        cfg.Trail,
	}
}

// State returns the current connection state.
func (r *Relay) State() State {
	return State(r.state.Load())
}

// Connect validates the credentials, dials the feed, subscribes to the
// watched wallet's trades and starts the read pump and keepalive probe.
func (r *Relay) Connect(ctx context.Context) error {
	if r.apiKey == "" || r.watchAddress == "" {
		return fmt.Errorf("%w: missing API key or copy wallet address", ErrConnection)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return fmt.Errorf("%w: already connected", ErrConnection)
	}

	r.state.Store(int32(StateConnecting))
	r.logger.Info("Connecting to trade feed", zap.String("url", r.url))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.url, nil)
	if err != nil {
		r.state.Store(int32(StateDisconnected))
		return fmt.Errorf("%w: dial %s: %v", ErrConnection, r.url, err)
	}

	if err := conn.WriteJSON(subscribeRequest{
		Method: "subscribeTrade",
		APIKey: r.apiKey,
		Tokens: []string{r.watchAddress},
	}); err != nil {
		conn.Close()
		r.state.Store(int32(StateDisconnected))
		return fmt.Errorf("%w: subscribe request: %v", ErrConnection, err)
	}

	r.conn = conn
	r.done = make(chan struct{})
	r.state.Store(int32(StateSubscribed))

	conn.SetPongHandler(func(string) error {
		r.logger.Debug("Pong received")
		return nil
	})

	go r.readPump(conn, r.done)
	go r.keepalive(conn, r.done)

	r.trail.Info("Connected to trade feed", map[string]interface{}{
		"watch_address": r.watchAddress,
	})
	return nil
}

// Disconnect sends a best-effort unsubscribe, closes the channel and stops
// the keepalive. The relay always ends up Disconnected, whatever happens on
// the wire.
func (r *Relay) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		if r.subscribeID != 0 {
			if err := r.conn.WriteJSON(unsubscribeRequest{
				Method:        "unsubscribeTrade",
				APIKey:        r.apiKey,
				UnsubscribeID: r.subscribeID,
			}); err != nil {
				r.logger.Debug("Unsubscribe notification failed", zap.Error(err))
			}
			r.subscribeID = 0
		}
		close(r.done)
		r.conn.Close()
		r.conn = nil
	}

	r.state.Store(int32(StateDisconnected))
	r.logger.Info("Disconnected from trade feed")
}

// readPump consumes inbound messages until the connection drops or the
// relay disconnects. Messages lost while disconnected are never replayed.
func (r *Relay) readPump(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// Deliberate disconnect, nothing to report.
			default:
				r.logger.Error("Trade feed read failed", zap.Error(err))
				r.trail.Warning("Disconnected from trade feed", nil)
				r.state.Store(int32(StateDisconnected))
			}
			return
		}
		r.handleMessage(data)
	}
}

func (r *Relay) handleMessage(data []byte) {
	msg, err := parseMessage(data)
	if err != nil {
		// Parse failures are non-fatal; drop the message and move on.
		r.logger.Error("Unparseable feed message", zap.Error(err), zap.ByteString("raw", data))
		r.trail.Error("Unparseable feed message", map[string]interface{}{"error": err.Error()})
		return
	}

	if msg.isSubscribeAck() {
		r.mu.Lock()
		r.subscribeID = msg.SubscribeID
		r.mu.Unlock()
		r.logger.Info("Trade subscription confirmed", zap.Int64("subscribe_id", msg.SubscribeID))
		r.trail.Success("Trade subscription confirmed", nil)
		return
	}

	sig, ok := msg.signal(r.venues)
	if !ok {
		if msg.Trade != "" {
			r.logger.Debug("Skipping trade message",
				zap.String("trade", msg.Trade),
				zap.Strings("dexs", msg.Dexs),
				zap.String("mint", msg.CA))
		}
		return
	}

	r.logger.Info("Buy signal detected",
		zap.String("mint", sig.Mint),
		zap.String("venue", sig.Venue),
		zap.Float64("price_in_sol", sig.PriceInSol),
		zap.Float64("sol_amount", sig.SolAmount))

	if r.handler != nil {
		r.handler(sig)
	}
}

// keepalive sends transport-level pings so the feed keeps the subscription
// alive.
func (r *Relay) keepalive(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				r.logger.Warn("Keepalive ping failed", zap.Error(err))
				return
			}
		}
	}
}
