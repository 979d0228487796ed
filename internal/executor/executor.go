// Package executor runs the order pipeline: build, sign, submit, confirm,
// inspect. Stages run strictly in order; the first failure aborts the rest.
// The pipeline is not idempotent — a retry is a brand-new transaction.
package executor

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/copytradr/solana-copybot/internal/blockchain"
	"github.com/copytradr/solana-copybot/internal/portal"
	"github.com/copytradr/solana-copybot/internal/wallet"
)

// TxBuilder produces an unsigned, base64-encoded transaction for an intent.
type TxBuilder interface {
	BuildSwap(ctx context.Context, req *portal.BuildRequest) (string, error)
}

// TxSubmitter forwards a signed, base58-encoded transaction and returns the
// granted signature.
type TxSubmitter interface {
	Submit(ctx context.Context, signedTx string) (string, error)
}

// ChainRPC is the chain lookup surface the executor needs.
type ChainRPC interface {
	SignatureStatus(ctx context.Context, signature string) (blockchain.TxStatus, error)
	TokenBalanceDelta(ctx context.Context, signature, mint, owner string) (float64, error)
}

// Order is one trade intent.
type Order struct {
	Side   string // "buy" or "sell"
	Mint   string
	Amount float64 // SOL for buys, tokens for sells
}

// Result is a completed execution. TokenAmount is best-effort telemetry and
// may be zero even for a confirmed transaction.
type Result struct {
	Signature   string
	TokenAmount float64
}

// Config carries the static order parameters.
type Config struct {
	PrivateKey     string
	WalletAddress  string
	DEX            string
	SlippagePct    float64
	PriorityFeeSOL float64

	// Confirmation polling budget. Zero values take the defaults: one
	// second between polls, thirty polls.
	ConfirmInterval time.Duration
	ConfirmAttempts int
}

const (
	defaultConfirmInterval = time.Second
	defaultConfirmAttempts = 30
)

// Executor runs the pipeline against injected collaborators.
type Executor struct {
	builder   TxBuilder
	submitter TxSubmitter
	chain     ChainRPC
	cfg       Config
	logger    *zap.Logger
}

// New creates an executor.
func New(builder TxBuilder, submitter TxSubmitter, chain ChainRPC, cfg Config, logger *zap.Logger) *Executor {
	if cfg.ConfirmInterval <= 0 {
		cfg.ConfirmInterval = defaultConfirmInterval
	}
	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = defaultConfirmAttempts
	}
	return &Executor{
		builder:   builder,
		submitter: submitter,
		chain:     chain,
		cfg:       cfg,
		logger:    logger.Named("executor"),
	}
}

// Execute runs all five stages for the order. A nil error means stages 1-4
// succeeded and the returned signature refers to a confirmed transaction.
// On error no result is returned and the caller must assume no downstream
// state changed.
func (e *Executor) Execute(ctx context.Context, order Order) (*Result, error) {
	log := e.logger.With(
		zap.String("side", order.Side),
		zap.String("mint", order.Mint),
		zap.Float64("amount", order.Amount))

	// Stage 1: build.
	encodedTx, err := e.builder.BuildSwap(ctx, &portal.BuildRequest{
		WalletAddress: e.cfg.WalletAddress,
		Action:        order.Side,
		DEX:           e.cfg.DEX,
		Mint:          order.Mint,
		Amount:        order.Amount,
		Slippage:      e.cfg.SlippagePct,
		Tip:           e.cfg.PriorityFeeSOL,
		Type:          "jito",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuild, err)
	}
	log.Debug("Unsigned transaction built")

	// Stage 2: sign.
	signedTx, err := e.sign(encodedTx)
	if err != nil {
		return nil, err
	}
	log.Debug("Transaction signed")

	// Stage 3: submit.
	signature, err := e.submitter.Submit(ctx, signedTx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmit, err)
	}
	log = log.With(zap.String("signature", signature))
	log.Info("Transaction submitted, awaiting confirmation")

	// Stage 4: confirm.
	if err := e.confirm(ctx, signature); err != nil {
		return nil, err
	}
	log.Info("Transaction confirmed")

	// Stage 5: inspect. Best effort only; the trade already succeeded.
	tokenAmount, err := e.chain.TokenBalanceDelta(ctx, signature, order.Mint, e.cfg.WalletAddress)
	if err != nil {
		log.Warn("Transaction inspection failed", zap.Error(err))
		tokenAmount = 0
	}

	return &Result{Signature: signature, TokenAmount: tokenAmount}, nil
}

// sign decodes the key material and the transaction blob, signs and
// re-encodes for submission. The input blob is never mutated.
func (e *Executor) sign(encodedTx string) (string, error) {
	w, err := wallet.New(e.cfg.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKey, err)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encodedTx))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if err := w.SignTransaction(tx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrKey, err)
	}

	signed, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return base58.Encode(signed), nil
}

// confirm polls signature status on a fixed cadence. Terminal success is
// confirmed or finalized; an on-chain error fails fast. A lookup failure is
// transient and consumes one attempt.
func (e *Executor) confirm(ctx context.Context, signature string) error {
	for attempt := 1; attempt <= e.cfg.ConfirmAttempts; attempt++ {
		status, err := e.chain.SignatureStatus(ctx, signature)
		switch {
		case err != nil:
			e.logger.Warn("Confirmation poll failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
		case status.Failed():
			return fmt.Errorf("%w: %v", ErrConfirm, status.ChainErr)
		case status.Confirmed:
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrConfirmTimeout, ctx.Err())
		case <-time.After(e.cfg.ConfirmInterval):
		}
	}
	return ErrConfirmTimeout
}
