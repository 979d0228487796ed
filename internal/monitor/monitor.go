// internal/monitor/monitor.go
package monitor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/copytradr/solana-copybot/internal/logger"
	"github.com/copytradr/solana-copybot/internal/oracle"
	"github.com/copytradr/solana-copybot/internal/position"
)

// PriceSource supplies current token quotes.
type PriceSource interface {
	TokenPrice(ctx context.Context, mint string) (oracle.Price, error)
}

// Seller closes the position for mint. Implementations remove the position
// from the ledger only after the sell succeeds, so a failed sell leaves the
// position in place for the next scan.
type Seller func(ctx context.Context, mint, reason string) error

// Config holds the exit policy and pacing for the scan loop.
type Config struct {
	StopLossPct   float64       // close when PnL <= -StopLossPct
	TakeProfitPct float64       // close when PnL >= TakeProfitPct
	MaxHold       time.Duration // close when the position has been open this long
	Interval      time.Duration // period between scans
	CheckDelay    time.Duration // pause between positions within one scan
}

// Monitor periodically walks the open positions, refreshes their prices and
// applies the exit policy. Scans never overlap: if one is still running when
// the next tick fires, the tick is skipped.
type Monitor struct {
	ledger *position.Ledger
	prices PriceSource
	sell   Seller
	cfg    Config
	logger *zap.Logger
	trail  *logger.Trail

	scanning atomic.Bool
	now      func() time.Time
}

// New creates a monitor over the given ledger. sell is invoked for every
// position whose exit condition fires.
func New(ledger *position.Ledger, prices PriceSource, sell Seller, cfg Config, log *zap.Logger, trail *logger.Trail) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	return &Monitor{
		ledger: ledger,
		prices: prices,
		sell:   sell,
		cfg:    cfg,
		logger: log.Named("monitor"),
		trail:  trail,
		now:    time.Now,
	}
}

// Run drives the scan loop until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logger.Info("Position monitor started",
		zap.Duration("interval", m.cfg.Interval),
		zap.Float64("stop_loss_pct", m.cfg.StopLossPct),
		zap.Float64("take_profit_pct", m.cfg.TakeProfitPct),
		zap.Duration("max_hold", m.cfg.MaxHold))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Position monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.Scan(ctx)
		}
	}
}

// Scan runs a single pass over the open positions. It returns immediately if
// a previous pass has not finished yet.
func (m *Monitor) Scan(ctx context.Context) {
	if !m.scanning.CompareAndSwap(false, true) {
		m.logger.Debug("Previous scan still running, skipping tick")
		return
	}
	defer m.scanning.Store(false)

	positions := m.ledger.List()
	for i, p := range positions {
		if i > 0 && m.cfg.CheckDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.cfg.CheckDelay):
			}
		}
		m.check(ctx, p.Mint)
	}
}

func (m *Monitor) check(ctx context.Context, mint string) {
	price, err := m.prices.TokenPrice(ctx, mint)
	if err != nil {
		m.logger.Warn("Price check failed", zap.String("mint", mint), zap.Error(err))
		return
	}
	if price.Empty() {
		m.logger.Debug("No price data yet, keeping position untouched", zap.String("mint", mint))
		return
	}

	// The position may have been closed between listing and checking.
	p, ok := m.ledger.Refresh(mint, price.PriceInUsd)
	if !ok {
		return
	}

	m.logger.Debug("Position refreshed",
		zap.String("mint", mint),
		zap.Float64("current_price_usd", p.CurrentPriceUSD),
		zap.Float64("pnl_pct", p.PnLPct),
		zap.String("time_held", p.TimeHeld))

	reason, exit := m.exitReason(p)
	if !exit {
		return
	}

	m.trail.Warning(fmt.Sprintf("%s hit for %s, selling", reason, shortMint(mint)), map[string]interface{}{
		"mint":    mint,
		"pnl_pct": p.PnLPct,
	})
	m.logger.Info("Exit condition met",
		zap.String("mint", mint),
		zap.String("reason", reason),
		zap.Float64("pnl_pct", p.PnLPct))

	if err := m.sell(ctx, mint, reason); err != nil {
		// The position stays open and is retried on the next scan.
		m.logger.Error("Automated sell failed",
			zap.String("mint", mint),
			zap.String("reason", reason),
			zap.Error(err))
	}
}

// exitReason evaluates the exit policy in priority order: stop loss wins over
// take profit, which wins over the hold timeout.
func (m *Monitor) exitReason(p position.Position) (string, bool) {
	if m.cfg.StopLossPct > 0 && p.PnLPct <= -m.cfg.StopLossPct {
		return fmt.Sprintf("Stop Loss (%.2f%%)", p.PnLPct), true
	}
	if m.cfg.TakeProfitPct > 0 && p.PnLPct >= m.cfg.TakeProfitPct {
		return fmt.Sprintf("Take Profit (+%.2f%%)", p.PnLPct), true
	}
	if m.cfg.MaxHold > 0 && m.now().Sub(p.EntryTime) >= m.cfg.MaxHold {
		return fmt.Sprintf("Timeout (%s)", p.TimeHeld), true
	}
	return "", false
}

func shortMint(mint string) string {
	if len(mint) > 8 {
		return mint[:4] + "..." + mint[len(mint)-4:]
	}
	return mint
}
