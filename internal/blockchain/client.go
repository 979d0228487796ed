// Package blockchain wraps the Solana JSON-RPC lookups the bot needs:
// signature status for confirmation, transaction metadata for post-trade
// inspection and token balances for sell sizing.
package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// TxStatus is the distilled confirmation state of a submitted transaction.
type TxStatus struct {
	Confirmed bool
	ChainErr  interface{} // non-nil when the transaction failed on chain
}

// Failed reports whether the transaction reached a terminal failure.
func (s TxStatus) Failed() bool {
	return s.ChainErr != nil
}

// Client is a thin, pooled RPC client.
type Client struct {
	pool   *RPCPool
	logger *zap.Logger
}

// NewClient validates the endpoint list and builds the client. No network
// call is made here; a dead endpoint surfaces on first use.
func NewClient(rpcList []string, logger *zap.Logger) (*Client, error) {
	if len(rpcList) == 0 {
		return nil, errors.New("empty RPC list")
	}
	return &Client{
		pool:   NewRPCPool(rpcList),
		logger: logger.Named("blockchain"),
	}, nil
}

// SignatureStatus looks up the confirmation state of signature. A missing
// status entry means the transaction is still pending, which is returned as
// a zero TxStatus without error.
func (c *Client) SignatureStatus(ctx context.Context, signature string) (TxStatus, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return TxStatus{}, fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	out, err := c.pool.Next().GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return TxStatus{}, fmt.Errorf("signature status lookup: %w", err)
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return TxStatus{}, nil
	}

	st := out.Value[0]
	if st.Err != nil {
		return TxStatus{ChainErr: st.Err}, nil
	}

	confirmed := st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
		st.ConfirmationStatus == rpc.ConfirmationStatusFinalized
	return TxStatus{Confirmed: confirmed}, nil
}

// TokenBalanceDelta inspects the confirmed transaction and returns the
// absolute change of the owner's balance for mint. Missing balance records
// yield zero, not an error; the caller decides whether that matters.
func (c *Client) TokenBalanceDelta(ctx context.Context, signature, mint, owner string) (float64, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return 0, fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	maxVersion := uint64(0)
	tx, err := c.pool.Next().GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return 0, fmt.Errorf("transaction lookup: %w", err)
	}
	if tx == nil || tx.Meta == nil {
		return 0, nil
	}

	post, okPost := findTokenBalance(tx.Meta.PostTokenBalances, mint, owner)
	if !okPost {
		return 0, nil
	}
	pre, okPre := findTokenBalance(tx.Meta.PreTokenBalances, mint, owner)

	preAmount := 0.0
	if okPre {
		preAmount = uiAmount(pre)
	}
	delta := math.Abs(uiAmount(post) - preAmount)

	c.logger.Debug("Inspected token balance change",
		zap.String("signature", signature),
		zap.String("mint", mint),
		zap.Float64("delta", delta))

	return delta, nil
}

// TokenBalance returns the owner's current spendable balance for mint via
// the associated token account.
func (c *Client) TokenBalance(ctx context.Context, mint, owner string) (float64, error) {
	ownerPk, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return 0, fmt.Errorf("invalid owner address: %w", err)
	}
	mintPk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("invalid mint address: %w", err)
	}

	ata, _, err := solana.FindAssociatedTokenAddress(ownerPk, mintPk)
	if err != nil {
		return 0, fmt.Errorf("derive token account: %w", err)
	}

	out, err := c.pool.Next().GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("token balance lookup: %w", err)
	}
	if out == nil || out.Value == nil || out.Value.UiAmount == nil {
		return 0, nil
	}
	return *out.Value.UiAmount, nil
}

func findTokenBalance(balances []rpc.TokenBalance, mint, owner string) (rpc.TokenBalance, bool) {
	for _, b := range balances {
		if b.Mint.String() != mint {
			continue
		}
		if b.Owner == nil || b.Owner.String() != owner {
			continue
		}
		return b, true
	}
	return rpc.TokenBalance{}, false
}

func uiAmount(b rpc.TokenBalance) float64 {
	if b.UiTokenAmount == nil || b.UiTokenAmount.UiAmount == nil {
		return 0
	}
	return *b.UiTokenAmount.UiAmount
}
