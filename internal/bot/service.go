// internal/bot/service.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/copytradr/solana-copybot/internal/blockchain"
	"github.com/copytradr/solana-copybot/internal/config"
	"github.com/copytradr/solana-copybot/internal/events"
	"github.com/copytradr/solana-copybot/internal/executor"
	"github.com/copytradr/solana-copybot/internal/jito"
	"github.com/copytradr/solana-copybot/internal/logger"
	"github.com/copytradr/solana-copybot/internal/metrics"
	"github.com/copytradr/solana-copybot/internal/monitor"
	"github.com/copytradr/solana-copybot/internal/oracle"
	"github.com/copytradr/solana-copybot/internal/portal"
	"github.com/copytradr/solana-copybot/internal/position"
	"github.com/copytradr/solana-copybot/internal/relay"
)

// OrderRunner executes one order through the build/sign/submit/confirm
// pipeline.
type OrderRunner interface {
	Execute(ctx context.Context, order executor.Order) (*executor.Result, error)
}

// PriceSource supplies token quotes.
type PriceSource interface {
	TokenPrice(ctx context.Context, mint string) (oracle.Price, error)
}

// BalanceSource reads spendable token balances.
type BalanceSource interface {
	TokenBalance(ctx context.Context, mint, owner string) (float64, error)
}

// Service is the copy-trading orchestrator. It owns the signal relay, the
// order pipeline, the position ledger and the monitor loop, and mediates
// every state change between them.
type Service struct {
	cfg *config.Config

	runner   OrderRunner
	prices   PriceSource
	balances BalanceSource
	relay    *relay.Relay
	monitor  *monitor.Monitor

	ledger  *position.Ledger
	history *position.History
	trail   *logger.Trail
	seen    *SeenSet
	bus     *events.Bus
	metrics *metrics.Metrics

	logger *zap.Logger

	closing sync.Map // mint -> struct{}{} while a close is in flight
	wg      sync.WaitGroup
	group   *errgroup.Group
	cancel  context.CancelFunc
	ctx     context.Context
}

// New wires a production service from configuration. All collaborators share
// the given logger's tree.
func New(cfg *config.Config, log *zap.Logger) (*Service, error) {
	chain, err := blockchain.NewClient(cfg.RPCList, log)
	if err != nil {
		return nil, fmt.Errorf("blockchain client: %w", err)
	}

	trail := logger.NewTrail(100)
	oracleClient := oracle.NewClient(cfg.OracleURL, cfg.APIKey, log)

	runner := executor.New(
		portal.NewClient(cfg.PortalURL, log),
		jito.NewClient(cfg.JitoURL, log),
		chain,
		executor.Config{
			PrivateKey:     cfg.PrivateKey,
			WalletAddress:  cfg.WalletAddress,
			DEX:            "pumpfun",
			SlippagePct:    cfg.SlippagePct,
			PriorityFeeSOL: cfg.PriorityFeeSOL,
		},
		log,
	)

	s := &Service{
		cfg:      cfg,
		runner:   runner,
		prices:   oracleClient,
		balances: chain,
		ledger:   position.NewLedger(log),
		history:  position.NewHistory(20),
		trail:    trail,
		seen:     NewSeenSet(),
		bus:      events.NewBus(log, 64),
		logger:   log.Named("bot"),
	}

	s.metrics = metrics.New(log)
	s.metrics.Observe(s.bus)

	s.relay = relay.New(relay.Config{
		URL:          cfg.WebSocketURL,
		APIKey:       cfg.APIKey,
		WatchAddress: cfg.CopyWallet,
		PingInterval: time.Duration(cfg.PingIntervalMs) * time.Millisecond,
		Venues:       cfg.Venues,
		Handler:      s.handleSignal,
		Logger:       log,
		Trail:        trail,
	})

	s.monitor = monitor.New(s.ledger, oracleClient, s.ClosePosition, monitor.Config{
		StopLossPct:   cfg.StopLossPct,
		TakeProfitPct: cfg.TakeProfitPct,
		MaxHold:       time.Duration(cfg.TimeoutMs) * time.Millisecond,
		Interval:      time.Duration(cfg.PriceCheckDelayMs) * time.Millisecond,
		CheckDelay:    time.Duration(cfg.PriceCheckDelayMs) * time.Millisecond,
	}, log, trail)

	return s, nil
}

// Start connects the relay and launches the monitor loop. It returns once
// the subscription is live; the background work runs until Stop.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.ctx = ctx
	s.cancel = cancel

	s.logger.Info("🚀 Starting copy trader",
		zap.String("copy_wallet", s.cfg.CopyWallet),
		zap.Float64("buy_amount_sol", s.cfg.BuyAmountSOL))

	if err := s.relay.Connect(ctx); err != nil {
		cancel()
		return fmt.Errorf("relay: %w", err)
	}
	_ = s.bus.Publish(events.RelayEvent{
		Base:         events.NewBase(events.RelayConnected),
		URL:          s.cfg.WebSocketURL,
		WatchAddress: s.cfg.CopyWallet,
	})

	s.group, _ = errgroup.WithContext(ctx)
	s.group.Go(func() error {
		return s.monitor.Run(ctx)
	})
	if s.cfg.MetricsAddr != "" {
		s.group.Go(func() error {
			return s.metrics.Serve(ctx, s.cfg.MetricsAddr)
		})
	}

	s.trail.Info("Copy trader online", map[string]interface{}{
		"copy_wallet": s.cfg.CopyWallet,
	})
	return nil
}

// Stop tears the service down: unsubscribes the relay, waits for in-flight
// trades and stops the monitor.
func (s *Service) Stop() error {
	s.logger.Info("🛑 Stopping copy trader")

	s.relay.Disconnect()
	_ = s.bus.Publish(events.RelayEvent{
		Base: events.NewBase(events.RelayDisconnected),
		URL:  s.cfg.WebSocketURL,
	})

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	if s.group != nil {
		if err := s.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("Background worker exited with error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.bus.Shutdown(shutdownCtx)
}

// handleSignal is the relay callback. It applies the copy gates and, when
// they pass, runs the buy in the background so the feed is never blocked.
func (s *Service) handleSignal(sig relay.Signal) {
	log := s.logger.With(zap.String("mint", sig.Mint), zap.String("venue", sig.Venue))

	if _, open := s.ledger.Get(sig.Mint); open {
		log.Debug("Signal for mint with open position, skipping")
		_ = s.bus.Publish(events.SignalEvent{
			Base: events.NewBase(events.SignalSkipped),
			Mint: sig.Mint, Venue: sig.Venue, Reason: "position open",
		})
		return
	}
	if !s.seen.TryAcquire(sig.Mint) {
		log.Debug("Duplicate signal, skipping")
		_ = s.bus.Publish(events.SignalEvent{
			Base: events.NewBase(events.SignalSkipped),
			Mint: sig.Mint, Venue: sig.Venue, Reason: "duplicate",
		})
		return
	}

	log.Info("🟢 Copy buy signal",
		zap.Float64("price_in_sol", sig.PriceInSol),
		zap.Float64("copied_sol_amount", sig.SolAmount))
	s.trail.Info(fmt.Sprintf("Copying buy of %s on %s", shortMint(sig.Mint), sig.Venue), map[string]interface{}{
		"mint":         sig.Mint,
		"price_in_sol": sig.PriceInSol,
	})
	_ = s.bus.Publish(events.SignalEvent{
		Base:       events.NewBase(events.SignalReceived),
		Mint:       sig.Mint,
		Venue:      sig.Venue,
		PriceInSol: sig.PriceInSol,
		SolAmount:  sig.SolAmount,
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.openPosition(s.ctx, sig)
	}()
}

func (s *Service) openPosition(ctx context.Context, sig relay.Signal) {
	result, err := s.runner.Execute(ctx, executor.Order{
		Side:   "buy",
		Mint:   sig.Mint,
		Amount: s.cfg.BuyAmountSOL,
	})
	if err != nil {
		s.logger.Error("Copy buy failed", zap.String("mint", sig.Mint), zap.Error(err))
		s.trail.Error(fmt.Sprintf("Buy of %s failed", shortMint(sig.Mint)), map[string]interface{}{
			"mint":  sig.Mint,
			"error": err.Error(),
		})
		_ = s.bus.Publish(events.TradeFailedEvent{
			Base: events.NewBase(events.TradeFailed),
			Mint: sig.Mint, Side: "buy", Stage: stageName(err), Err: err,
		})
		return
	}

	entryUSD := s.entryPriceUSD(ctx, sig)

	tokenAmount := result.TokenAmount
	if tokenAmount == 0 && sig.PriceInSol > 0 {
		// Inspection came up empty; estimate from the signal price so the
		// monitor has something to work with.
		tokenAmount = s.cfg.BuyAmountSOL / sig.PriceInSol
	}

	s.ledger.Create(position.Position{
		Mint:          sig.Mint,
		EntryPriceSOL: sig.PriceInSol,
		EntryPriceUSD: entryUSD,
		SolSize:       s.cfg.BuyAmountSOL,
		TokenAmount:   tokenAmount,
		Signature:     result.Signature,
	})
	s.history.Append(position.TradeRecord{
		Mint:      sig.Mint,
		Venue:     sig.Venue,
		Side:      "buy",
		SolAmount: s.cfg.BuyAmountSOL,
		PriceSOL:  sig.PriceInSol,
		PriceUSD:  entryUSD,
		Signature: result.Signature,
	})

	s.logger.Info("✅ Copy buy confirmed",
		zap.String("mint", sig.Mint),
		zap.String("signature", result.Signature),
		zap.Float64("token_amount", tokenAmount))
	s.trail.Success(fmt.Sprintf("Bought %s for %.4f SOL", shortMint(sig.Mint), s.cfg.BuyAmountSOL), map[string]interface{}{
		"mint":      sig.Mint,
		"signature": result.Signature,
	})
	_ = s.bus.Publish(events.PositionEvent{
		Base:        events.NewBase(events.PositionOpened),
		Mint:        sig.Mint,
		Side:        "buy",
		Signature:   result.Signature,
		SolSize:     s.cfg.BuyAmountSOL,
		TokenAmount: tokenAmount,
	})
}

// entryPriceUSD resolves the USD entry price, falling back to a configured
// flat SOL/USD rate when the oracle has no data yet for a fresh token.
func (s *Service) entryPriceUSD(ctx context.Context, sig relay.Signal) float64 {
	quote, err := s.prices.TokenPrice(ctx, sig.Mint)
	if err == nil && !quote.Empty() {
		return quote.PriceInUsd
	}

	fallback := sig.PriceInSol * s.cfg.SolUsdFallbackRate
	s.logger.Warn("No oracle price after buy, using fallback entry price",
		zap.String("mint", sig.Mint),
		zap.Float64("fallback_usd", fallback),
		zap.Error(err))
	return fallback
}

// ClosePosition sells the full spendable balance for mint and removes the
// position on success. Concurrent closes for the same mint collapse into
// one; the loser returns immediately.
func (s *Service) ClosePosition(ctx context.Context, mint, reason string) error {
	if _, busy := s.closing.LoadOrStore(mint, struct{}{}); busy {
		s.logger.Debug("Close already in flight", zap.String("mint", mint))
		return nil
	}
	defer s.closing.Delete(mint)

	p, ok := s.ledger.Get(mint)
	if !ok {
		return fmt.Errorf("no open position for %s", mint)
	}

	balance, err := s.balances.TokenBalance(ctx, mint, s.cfg.WalletAddress)
	if err != nil {
		s.trail.Error(fmt.Sprintf("Balance check for %s failed", shortMint(mint)), map[string]interface{}{
			"mint":  mint,
			"error": err.Error(),
		})
		return fmt.Errorf("balance check: %w", err)
	}
	if balance <= 0 {
		// Nothing to sell; the tokens were moved or the buy never landed.
		// Drop the position so the monitor stops chasing it.
		s.ledger.Remove(mint)
		s.trail.Warning(fmt.Sprintf("No balance for %s, position dropped", shortMint(mint)), map[string]interface{}{
			"mint": mint,
		})
		_ = s.bus.Publish(events.PositionEvent{
			Base: events.NewBase(events.PositionClosed),
			Mint: mint, Side: "sell", Reason: reason,
		})
		return fmt.Errorf("no spendable balance for %s", mint)
	}

	// Sell slightly conservatively to survive balance drift between the
	// read and the swap.
	amount := math.Floor(balance*1e6) / 1e6

	result, err := s.runner.Execute(ctx, executor.Order{
		Side:   "sell",
		Mint:   mint,
		Amount: amount,
	})
	if err != nil {
		s.logger.Error("Sell failed, position stays open",
			zap.String("mint", mint),
			zap.String("reason", reason),
			zap.Error(err))
		s.trail.Error(fmt.Sprintf("Sell of %s failed", shortMint(mint)), map[string]interface{}{
			"mint":   mint,
			"reason": reason,
			"error":  err.Error(),
		})
		_ = s.bus.Publish(events.TradeFailedEvent{
			Base: events.NewBase(events.TradeFailed),
			Mint: mint, Side: "sell", Stage: stageName(err), Err: err,
		})
		return err
	}

	s.ledger.Remove(mint)

	// Best effort exit quote for the trade record.
	exitUSD := p.CurrentPriceUSD
	exitSOL := p.EntryPriceSOL
	if quote, qErr := s.prices.TokenPrice(ctx, mint); qErr == nil && !quote.Empty() {
		exitUSD = quote.PriceInUsd
		exitSOL = quote.PriceInSol
	}

	s.history.Append(position.TradeRecord{
		Mint:      mint,
		Side:      "sell",
		SolAmount: p.SolSize,
		PriceSOL:  exitSOL,
		PriceUSD:  exitUSD,
		Signature: result.Signature,
	})

	s.logger.Info("💰 Position closed",
		zap.String("mint", mint),
		zap.String("reason", reason),
		zap.Float64("pnl_pct", p.PnLPct),
		zap.String("signature", result.Signature))
	s.trail.Success(fmt.Sprintf("Sold %s: %s", shortMint(mint), reason), map[string]interface{}{
		"mint":    mint,
		"pnl_pct": p.PnLPct,
	})
	_ = s.bus.Publish(events.PositionEvent{
		Base:        events.NewBase(events.PositionClosed),
		Mint:        mint,
		Side:        "sell",
		Reason:      reason,
		Signature:   result.Signature,
		SolSize:     p.SolSize,
		TokenAmount: amount,
		PnLPct:      p.PnLPct,
	})
	return nil
}

// ForceSell closes the position for mint regardless of the exit policy.
func (s *Service) ForceSell(ctx context.Context, mint string) error {
	return s.ClosePosition(ctx, mint, "Manual Force Sell")
}

// Positions returns a snapshot of the open positions.
func (s *Service) Positions() []position.Position { return s.ledger.List() }

// Trades returns the session's trade history, newest first.
func (s *Service) Trades() []position.TradeRecord { return s.history.Recent() }

// Logs returns up to limit entries from the session trail, newest first.
func (s *Service) Logs(limit int) []logger.Entry { return s.trail.Recent(limit) }

// Stats reports session totals for the shutdown summary.
func (s *Service) Stats() (trades int, volumeSOL float64) { return s.history.Stats() }

// Bus exposes the event bus so observers can subscribe before Start.
func (s *Service) Bus() *events.Bus { return s.bus }

// stageName maps a pipeline error to the stage that produced it.
func stageName(err error) string {
	switch {
	case errors.Is(err, executor.ErrBuild):
		return "build"
	case errors.Is(err, executor.ErrKey), errors.Is(err, executor.ErrDecode):
		return "sign"
	case errors.Is(err, executor.ErrSubmit):
		return "submit"
	case errors.Is(err, executor.ErrConfirm), errors.Is(err, executor.ErrConfirmTimeout):
		return "confirm"
	default:
		return "unknown"
	}
}

func shortMint(mint string) string {
	if len(mint) > 8 {
		return mint[:4] + "..." + mint[len(mint)-4:]
	}
	return mint
}
