package executor

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/copytradr/solana-copybot/internal/blockchain"
	"github.com/copytradr/solana-copybot/internal/portal"
)

type mockBuilder struct {
	resp    string
	err     error
	calls   int
	lastReq *portal.BuildRequest
}

func (m *mockBuilder) BuildSwap(_ context.Context, req *portal.BuildRequest) (string, error) {
	m.calls++
	m.lastReq = req
	return m.resp, m.err
}

type mockSubmitter struct {
	sig   string
	err   error
	calls int
}

func (m *mockSubmitter) Submit(context.Context, string) (string, error) {
	m.calls++
	return m.sig, m.err
}

type statusStep struct {
	status blockchain.TxStatus
	err    error
}

type mockChain struct {
	steps       []statusStep
	statusCalls int

	delta    float64
	deltaErr error
}

func (m *mockChain) SignatureStatus(context.Context, string) (blockchain.TxStatus, error) {
	step := m.steps[len(m.steps)-1]
	if m.statusCalls < len(m.steps) {
		step = m.steps[m.statusCalls]
	}
	m.statusCalls++
	return step.status, step.err
}

func (m *mockChain) TokenBalanceDelta(context.Context, string, string, string) (float64, error) {
	return m.delta, m.deltaErr
}

var testSignature = solana.SignatureFromBytes(make([]byte, 64)).String()

// testKeypair returns a base58 private key and the base64 encoding of a
// minimal unsigned transaction payable by it.
func testKeypair(t *testing.T) (string, string) {
	t.Helper()
	w := solana.NewWallet()
	ix := solana.NewInstruction(solana.SystemProgramID, nil, nil)
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{}, solana.TransactionPayer(w.PublicKey()))
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return w.PrivateKey.String(), base64.StdEncoding.EncodeToString(raw)
}

func newTestExecutor(t *testing.T, b *mockBuilder, s *mockSubmitter, c *mockChain, privateKey string) *Executor {
	return New(b, s, c, Config{
		PrivateKey:      privateKey,
		WalletAddress:   "wallet-addr",
		DEX:             "pumpfun",
		SlippagePct:     10,
		PriorityFeeSOL:  0.0001,
		ConfirmInterval: time.Millisecond,
		ConfirmAttempts: 30,
	}, zaptest.NewLogger(t))
}

func TestExecuteHappyPath(t *testing.T) {
	privKey, blob := testKeypair(t)
	builder := &mockBuilder{resp: blob}
	submitter := &mockSubmitter{sig: testSignature}
	chain := &mockChain{
		steps: []statusStep{
			{}, // pending
			{status: blockchain.TxStatus{Confirmed: true}},
		},
		delta: 12345.6,
	}

	e := newTestExecutor(t, builder, submitter, chain, privKey)
	res, err := e.Execute(context.Background(), Order{Side: "buy", Mint: "mintA", Amount: 0.1})
	require.NoError(t, err)
	assert.Equal(t, testSignature, res.Signature)
	assert.InDelta(t, 12345.6, res.TokenAmount, 1e-9)
	assert.Equal(t, 2, chain.statusCalls)

	// The build request carries the executor's static order parameters.
	require.NotNil(t, builder.lastReq)
	assert.Equal(t, "buy", builder.lastReq.Action)
	assert.Equal(t, "pumpfun", builder.lastReq.DEX)
	assert.Equal(t, "jito", builder.lastReq.Type)
	assert.InDelta(t, 10, builder.lastReq.Slippage, 1e-9)
}

func TestExecuteBuildFailureAbortsPipeline(t *testing.T) {
	privKey, _ := testKeypair(t)
	builder := &mockBuilder{err: errors.New("portal down")}
	submitter := &mockSubmitter{}
	chain := &mockChain{steps: []statusStep{{}}}

	e := newTestExecutor(t, builder, submitter, chain, privKey)
	res, err := e.Execute(context.Background(), Order{Side: "buy", Mint: "mintA", Amount: 0.1})
	require.Nil(t, res)
	assert.ErrorIs(t, err, ErrBuild)
	assert.Zero(t, submitter.calls)
	assert.Zero(t, chain.statusCalls)
}

func TestExecuteRejectsBadKey(t *testing.T) {
	_, blob := testKeypair(t)
	builder := &mockBuilder{resp: blob}
	submitter := &mockSubmitter{}

	// Valid base58, wrong length.
	e := newTestExecutor(t, builder, submitter, &mockChain{steps: []statusStep{{}}}, "3mJr7AoUXx2Wqd")
	res, err := e.Execute(context.Background(), Order{Side: "buy", Mint: "mintA", Amount: 0.1})
	require.Nil(t, res)
	assert.ErrorIs(t, err, ErrKey)
	assert.Zero(t, submitter.calls)
}

func TestExecuteRejectsMalformedBlob(t *testing.T) {
	privKey, _ := testKeypair(t)
	builder := &mockBuilder{resp: "%%% not base64 %%%"}
	submitter := &mockSubmitter{}

	e := newTestExecutor(t, builder, submitter, &mockChain{steps: []statusStep{{}}}, privKey)
	res, err := e.Execute(context.Background(), Order{Side: "sell", Mint: "mintA", Amount: 10})
	require.Nil(t, res)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Zero(t, submitter.calls)
}

func TestExecuteSubmitFailure(t *testing.T) {
	privKey, blob := testKeypair(t)
	builder := &mockBuilder{resp: blob}
	submitter := &mockSubmitter{err: errors.New("rejected")}
	chain := &mockChain{steps: []statusStep{{}}}

	e := newTestExecutor(t, builder, submitter, chain, privKey)
	res, err := e.Execute(context.Background(), Order{Side: "buy", Mint: "mintA", Amount: 0.1})
	require.Nil(t, res)
	assert.ErrorIs(t, err, ErrSubmit)
	assert.Zero(t, chain.statusCalls)
}

func TestExecuteConfirmFailsFastOnChainError(t *testing.T) {
	privKey, blob := testKeypair(t)
	builder := &mockBuilder{resp: blob}
	submitter := &mockSubmitter{sig: testSignature}
	chain := &mockChain{
		steps: []statusStep{{status: blockchain.TxStatus{ChainErr: "InstructionError"}}},
	}

	e := newTestExecutor(t, builder, submitter, chain, privKey)
	res, err := e.Execute(context.Background(), Order{Side: "buy", Mint: "mintA", Amount: 0.1})
	require.Nil(t, res)
	assert.ErrorIs(t, err, ErrConfirm)
	assert.Equal(t, 1, chain.statusCalls)
}

func TestExecuteConfirmTimeoutAfterAllAttempts(t *testing.T) {
	privKey, blob := testKeypair(t)
	builder := &mockBuilder{resp: blob}
	submitter := &mockSubmitter{sig: testSignature}
	chain := &mockChain{steps: []statusStep{{}}} // forever pending

	e := newTestExecutor(t, builder, submitter, chain, privKey)
	res, err := e.Execute(context.Background(), Order{Side: "buy", Mint: "mintA", Amount: 0.1})
	require.Nil(t, res)
	assert.ErrorIs(t, err, ErrConfirmTimeout)
	assert.Equal(t, 30, chain.statusCalls)
}

func TestExecuteTransientStatusErrorsConsumeAttempts(t *testing.T) {
	privKey, blob := testKeypair(t)
	builder := &mockBuilder{resp: blob}
	submitter := &mockSubmitter{sig: testSignature}
	chain := &mockChain{
		steps: []statusStep{
			{err: errors.New("rpc hiccup")},
			{err: errors.New("rpc hiccup")},
			{status: blockchain.TxStatus{Confirmed: true}},
		},
	}

	e := newTestExecutor(t, builder, submitter, chain, privKey)
	res, err := e.Execute(context.Background(), Order{Side: "buy", Mint: "mintA", Amount: 0.1})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 3, chain.statusCalls)
}

func TestExecuteInspectionFailureIsNotFatal(t *testing.T) {
	privKey, blob := testKeypair(t)
	builder := &mockBuilder{resp: blob}
	submitter := &mockSubmitter{sig: testSignature}
	chain := &mockChain{
		steps:    []statusStep{{status: blockchain.TxStatus{Confirmed: true}}},
		deltaErr: errors.New("tx details not found"),
	}

	e := newTestExecutor(t, builder, submitter, chain, privKey)
	res, err := e.Execute(context.Background(), Order{Side: "buy", Mint: "mintA", Amount: 0.1})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Zero(t, res.TokenAmount)
	assert.Equal(t, testSignature, res.Signature)
}
