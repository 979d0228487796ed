// internal/events/types.go
package events

import (
	"time"
)

// Type identifies a kind of event on the bus.
type Type string

const (
	// Relay lifecycle
	RelayConnected    Type = "relay.connected"
	RelayDisconnected Type = "relay.disconnected"

	// Copy signals
	SignalReceived Type = "signal.received"
	SignalSkipped  Type = "signal.skipped"

	// Trading
	PositionOpened Type = "position.opened"
	PositionClosed Type = "position.closed"
	TradeFailed    Type = "trade.failed"
)

// Event is the base interface for everything published on the bus.
type Event interface {
	Type() Type
	Timestamp() time.Time
}

// Base carries the fields shared by all events.
type Base struct {
	EventType Type
	EventTime time.Time
}

func (e Base) Type() Type           { return e.EventType }
func (e Base) Timestamp() time.Time { return e.EventTime }

// NewBase stamps a base with the current time.
func NewBase(t Type) Base {
	return Base{EventType: t, EventTime: time.Now()}
}

// RelayEvent is emitted when the signal feed connects or drops.
type RelayEvent struct {
	Base
	URL          string
	WatchAddress string
}

// SignalEvent is emitted for every buy signal seen on the feed. Skipped is
// accompanied by a Reason ("duplicate", "position open").
type SignalEvent struct {
	Base
	Mint       string
	Venue      string
	PriceInSol float64
	SolAmount  float64
	Reason     string
}

// PositionEvent is emitted when a position opens or closes.
type PositionEvent struct {
	Base
	Mint        string
	Side        string
	Reason      string
	Signature   string
	SolSize     float64
	TokenAmount float64
	PnLPct      float64
}

// TradeFailedEvent is emitted when an order pipeline aborts at any stage.
type TradeFailedEvent struct {
	Base
	Mint  string
	Side  string
	Stage string
	Err   error
}
