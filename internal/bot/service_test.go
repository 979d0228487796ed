package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/copytradr/solana-copybot/internal/config"
	"github.com/copytradr/solana-copybot/internal/events"
	"github.com/copytradr/solana-copybot/internal/executor"
	"github.com/copytradr/solana-copybot/internal/logger"
	"github.com/copytradr/solana-copybot/internal/oracle"
	"github.com/copytradr/solana-copybot/internal/position"
	"github.com/copytradr/solana-copybot/internal/relay"
)

type fakeRunner struct {
	mu     sync.Mutex
	orders []executor.Order
	result *executor.Result
	err    error
}

func (f *fakeRunner) Execute(_ context.Context, order executor.Order) (*executor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, order)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeRunner) executed() []executor.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]executor.Order, len(f.orders))
	copy(out, f.orders)
	return out
}

type fakeQuotes struct {
	quote oracle.Price
	err   error
}

func (f *fakeQuotes) TokenPrice(context.Context, string) (oracle.Price, error) {
	return f.quote, f.err
}

type fakeBalances struct {
	balance float64
	err     error
}

func (f *fakeBalances) TokenBalance(context.Context, string, string) (float64, error) {
	return f.balance, f.err
}

func newTestService(t *testing.T, runner OrderRunner, prices PriceSource, balances BalanceSource) *Service {
	t.Helper()
	log := zaptest.NewLogger(t)
	s := &Service{
		cfg: &config.Config{
			WalletAddress:      "wallet-addr",
			CopyWallet:         "copy-addr",
			BuyAmountSOL:       0.1,
			SolUsdFallbackRate: 150,
		},
		runner:   runner,
		prices:   prices,
		balances: balances,
		ledger:   position.NewLedger(log),
		history:  position.NewHistory(20),
		trail:    logger.NewTrail(100),
		seen:     NewSeenSet(),
		bus:      events.NewBus(log, 64),
		logger:   log,
		ctx:      context.Background(),
	}
	t.Cleanup(func() { _ = s.bus.Shutdown(context.Background()) })
	return s
}

func buySignal(mint string) relay.Signal {
	return relay.Signal{Mint: mint, PriceInSol: 0.00002, SolAmount: 0.5, Venue: "Pump.fun", Side: "buy"}
}

func TestHandleSignalOpensPosition(t *testing.T) {
	runner := &fakeRunner{result: &executor.Result{Signature: "sig1", TokenAmount: 5000}}
	s := newTestService(t, runner, &fakeQuotes{quote: oracle.Price{PriceInSol: 0.00002, PriceInUsd: 0.003}}, &fakeBalances{})

	s.handleSignal(buySignal("mintA"))
	s.wg.Wait()

	orders := runner.executed()
	require.Len(t, orders, 1)
	assert.Equal(t, "buy", orders[0].Side)
	assert.InDelta(t, 0.1, orders[0].Amount, 1e-9)

	p, ok := s.ledger.Get("mintA")
	require.True(t, ok)
	assert.InDelta(t, 0.003, p.EntryPriceUSD, 1e-9)
	assert.InDelta(t, 5000, p.TokenAmount, 1e-9)
	assert.Equal(t, "sig1", p.Signature)

	trades := s.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "buy", trades[0].Side)
	assert.Equal(t, "Pump.fun", trades[0].Venue)
}

func TestDuplicateSignalCopiedOnce(t *testing.T) {
	runner := &fakeRunner{result: &executor.Result{Signature: "sig1", TokenAmount: 5000}}
	s := newTestService(t, runner, &fakeQuotes{quote: oracle.Price{PriceInUsd: 0.003}}, &fakeBalances{})

	s.handleSignal(buySignal("mintA"))
	s.wg.Wait()
	s.ledger.Remove("mintA") // even after the position is gone
	s.handleSignal(buySignal("mintA"))
	s.wg.Wait()

	assert.Len(t, runner.executed(), 1)
}

func TestSignalSkippedWhilePositionOpen(t *testing.T) {
	runner := &fakeRunner{result: &executor.Result{Signature: "sig1"}}
	s := newTestService(t, runner, &fakeQuotes{quote: oracle.Price{PriceInUsd: 0.003}}, &fakeBalances{})

	s.ledger.Create(position.Position{Mint: "mintA", EntryPriceUSD: 0.003, SolSize: 0.1})
	s.handleSignal(buySignal("mintA"))
	s.wg.Wait()

	assert.Empty(t, runner.executed())
	// The mint was not consumed from the dedup set either.
	assert.False(t, s.seen.Seen("mintA"))
}

func TestOpenPositionFallbackEntryPrice(t *testing.T) {
	runner := &fakeRunner{result: &executor.Result{Signature: "sig1", TokenAmount: 0}}
	s := newTestService(t, runner, &fakeQuotes{}, &fakeBalances{}) // empty quote

	s.handleSignal(buySignal("mintA"))
	s.wg.Wait()

	p, ok := s.ledger.Get("mintA")
	require.True(t, ok)
	assert.InDelta(t, 0.00002*150, p.EntryPriceUSD, 1e-12)
	// Token amount estimated from the signal price.
	assert.InDelta(t, 0.1/0.00002, p.TokenAmount, 1e-6)
}

func TestBuyFailureLeavesNoState(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("%w: portal down", executor.ErrBuild)}
	s := newTestService(t, runner, &fakeQuotes{}, &fakeBalances{})

	s.handleSignal(buySignal("mintA"))
	s.wg.Wait()

	assert.Zero(t, s.ledger.Len())
	assert.Empty(t, s.Trades())

	entries := s.Logs(0)
	var failed bool
	for _, e := range entries {
		if e.Level == logger.LevelError && strings.Contains(e.Message, "failed") {
			failed = true
		}
	}
	assert.True(t, failed)
}

func TestClosePositionSellsFlooredBalance(t *testing.T) {
	runner := &fakeRunner{result: &executor.Result{Signature: "sellsig"}}
	s := newTestService(t, runner, &fakeQuotes{quote: oracle.Price{PriceInSol: 0.00003, PriceInUsd: 0.0045}}, &fakeBalances{balance: 123.4567899})

	s.ledger.Create(position.Position{Mint: "mintA", EntryPriceUSD: 0.003, SolSize: 0.1, TokenAmount: 123})

	err := s.ClosePosition(context.Background(), "mintA", "Take Profit (+50.00%)")
	require.NoError(t, err)

	orders := runner.executed()
	require.Len(t, orders, 1)
	assert.Equal(t, "sell", orders[0].Side)
	assert.InDelta(t, 123.456789, orders[0].Amount, 1e-9)

	assert.Zero(t, s.ledger.Len())
	trades := s.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "sell", trades[0].Side)
	assert.Equal(t, "sellsig", trades[0].Signature)
	assert.InDelta(t, 0.0045, trades[0].PriceUSD, 1e-12)
}

func TestClosePositionZeroBalanceDropsPosition(t *testing.T) {
	runner := &fakeRunner{result: &executor.Result{Signature: "sellsig"}}
	s := newTestService(t, runner, &fakeQuotes{}, &fakeBalances{balance: 0})

	s.ledger.Create(position.Position{Mint: "mintA", EntryPriceUSD: 0.003, SolSize: 0.1})

	err := s.ClosePosition(context.Background(), "mintA", "Manual Force Sell")
	require.Error(t, err)
	assert.Zero(t, s.ledger.Len())
	assert.Empty(t, runner.executed())
}

func TestClosePositionSellFailureKeepsPosition(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("%w: deadline", executor.ErrConfirmTimeout)}
	s := newTestService(t, runner, &fakeQuotes{}, &fakeBalances{balance: 100})

	s.ledger.Create(position.Position{Mint: "mintA", EntryPriceUSD: 0.003, SolSize: 0.1})

	err := s.ClosePosition(context.Background(), "mintA", "Stop Loss (-12.00%)")
	require.Error(t, err)
	assert.Equal(t, 1, s.ledger.Len())
	assert.Empty(t, s.Trades())
}

func TestClosePositionUnknownMint(t *testing.T) {
	s := newTestService(t, &fakeRunner{}, &fakeQuotes{}, &fakeBalances{})
	err := s.ClosePosition(context.Background(), "missing", "Manual Force Sell")
	assert.Error(t, err)
}

func TestForceSellUsesManualReason(t *testing.T) {
	runner := &fakeRunner{result: &executor.Result{Signature: "sellsig"}}
	s := newTestService(t, runner, &fakeQuotes{}, &fakeBalances{balance: 100})

	s.ledger.Create(position.Position{Mint: "mintA", EntryPriceUSD: 0.003, SolSize: 0.1})
	require.NoError(t, s.ForceSell(context.Background(), "mintA"))

	var found bool
	for _, e := range s.Logs(0) {
		if strings.Contains(e.Message, "Manual Force Sell") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestStageName(t *testing.T) {
	assert.Equal(t, "build", stageName(fmt.Errorf("%w: x", executor.ErrBuild)))
	assert.Equal(t, "sign", stageName(fmt.Errorf("%w: x", executor.ErrDecode)))
	assert.Equal(t, "submit", stageName(fmt.Errorf("%w: x", executor.ErrSubmit)))
	assert.Equal(t, "confirm", stageName(fmt.Errorf("%w: x", executor.ErrConfirm)))
	assert.Equal(t, "unknown", stageName(errors.New("x")))
}
