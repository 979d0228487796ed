package position

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Position is an open holding being watched by the monitor. Prices are kept
// in both the base currency (SOL) and the quote currency (USD); PnL is
// computed against the USD entry price.
type Position struct {
	Mint            string
	EntryPriceSOL   float64
	EntryPriceUSD   float64
	CurrentPriceUSD float64
	EntryTime       time.Time
	SolSize         float64
	TokenAmount     float64
	PnLPct          float64
	TimeHeld        string
	Signature       string
	UpdatedAt       time.Time
}

// Ledger is the authoritative map of open positions. At most one position
// exists per mint; creating a second one for the same mint replaces the
// first. All state is session-scoped.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]Position
	logger    *zap.Logger
	now       func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger(logger *zap.Logger) *Ledger {
	return &Ledger{
		positions: make(map[string]Position),
		logger:    logger.Named("ledger"),
		now:       time.Now,
	}
}

// Create inserts p, overwriting any existing position for the same mint.
// PnL and hold time start from zero regardless of what the caller set.
func (l *Ledger) Create(p Position) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p.PnLPct = 0
	p.TimeHeld = "0m"
	if p.EntryTime.IsZero() {
		p.EntryTime = l.now()
	}
	p.UpdatedAt = l.now()

	if _, exists := l.positions[p.Mint]; exists {
		l.logger.Warn("Replacing existing position", zap.String("mint", p.Mint))
	}
	l.positions[p.Mint] = p

	l.logger.Info("Position opened",
		zap.String("mint", p.Mint),
		zap.Float64("entry_price_usd", p.EntryPriceUSD),
		zap.Float64("sol_size", p.SolSize))
}

// Refresh updates the current price, PnL percentage and hold-time label for
// mint. It is a no-op when the position has already been removed, which can
// happen between scheduling a check and running it. The refreshed snapshot is
// returned so callers can evaluate exit policy against exactly what was
// stored.
func (l *Ledger) Refresh(mint string, currentPriceUSD float64) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[mint]
	if !ok {
		return Position{}, false
	}

	p.CurrentPriceUSD = currentPriceUSD
	p.PnLPct = (currentPriceUSD/p.EntryPriceUSD - 1) * 100
	p.TimeHeld = holdLabel(l.now().Sub(p.EntryTime))
	p.UpdatedAt = l.now()
	l.positions[mint] = p

	return p, true
}

// Remove deletes the position for mint. Removing an absent mint is a no-op.
func (l *Ledger) Remove(mint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.positions, mint)
}

// Get returns the position for mint, if open.
func (l *Ledger) Get(mint string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[mint]
	return p, ok
}

// List returns a snapshot of all open positions.
func (l *Ledger) List() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	return out
}

// Len reports the number of open positions.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

func holdLabel(d time.Duration) string {
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
