package blockchain

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewClientRejectsEmptyRPCList(t *testing.T) {
	_, err := NewClient(nil, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestRPCPoolRoundRobin(t *testing.T) {
	pool := NewRPCPool([]string{"http://a", "http://b"})
	require.Equal(t, 2, pool.Size())

	first := pool.Next()
	second := pool.Next()
	third := pool.Next()

	assert.NotSame(t, first, second)
	assert.Same(t, first, third)
}

func TestTxStatusFailed(t *testing.T) {
	assert.False(t, TxStatus{}.Failed())
	assert.False(t, TxStatus{Confirmed: true}.Failed())
	assert.True(t, TxStatus{ChainErr: map[string]interface{}{"InstructionError": []interface{}{}}}.Failed())
}

func TestFindTokenBalance(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()

	amt := 42.5
	balances := []rpc.TokenBalance{
		{Mint: other, Owner: &owner},
		{Mint: mint, Owner: &other},
		{Mint: mint, Owner: &owner, UiTokenAmount: &rpc.UiTokenAmount{UiAmount: &amt}},
	}

	b, ok := findTokenBalance(balances, mint.String(), owner.String())
	require.True(t, ok)
	assert.Equal(t, 42.5, uiAmount(b))

	_, ok = findTokenBalance(balances, other.String(), other.String())
	assert.False(t, ok)

	// Missing amount records read as zero.
	assert.Zero(t, uiAmount(rpc.TokenBalance{}))
}
