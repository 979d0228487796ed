package position

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TradeRecord is one completed pipeline execution. Records are immutable
// once appended.
type TradeRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Mint      string    `json:"mint"`
	Venue     string    `json:"venue"`
	Side      string    `json:"side"` // "buy" or "sell"
	SolAmount float64   `json:"sol_amount"`
	PriceSOL  float64   `json:"price_sol"`
	PriceUSD  float64   `json:"price_usd"`
	Signature string    `json:"signature"`
}

// History keeps the most recent trades of the session, newest first, capped
// at maxTrades. It also accumulates simple session totals for the shutdown
// summary.
type History struct {
	mu        sync.RWMutex
	trades    []TradeRecord
	maxTrades int

	totalTrades    int
	totalVolumeSOL float64
}

// NewHistory creates a history retaining the last maxTrades entries.
func NewHistory(maxTrades int) *History {
	return &History{
		trades:    make([]TradeRecord, 0, maxTrades),
		maxTrades: maxTrades,
	}
}

// Append records a trade. Missing IDs and timestamps are filled in.
func (h *History) Append(t TradeRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}

	h.trades = append([]TradeRecord{t}, h.trades...)
	if len(h.trades) > h.maxTrades {
		h.trades = h.trades[:h.maxTrades]
	}

	h.totalTrades++
	h.totalVolumeSOL += t.SolAmount
}

// Recent returns the retained trades, newest first.
func (h *History) Recent() []TradeRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]TradeRecord, len(h.trades))
	copy(out, h.trades)
	return out
}

// Stats returns session totals: every trade ever appended, not just the
// retained window.
func (h *History) Stats() (trades int, volumeSOL float64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalTrades, h.totalVolumeSOL
}
