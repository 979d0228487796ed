package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/copytradr/solana-copybot/internal/executor"
	"github.com/copytradr/solana-copybot/internal/oracle"
	"github.com/copytradr/solana-copybot/internal/position"
)

func TestWriteSummary(t *testing.T) {
	runner := &fakeRunner{result: &executor.Result{Signature: "sig1", TokenAmount: 5000}}
	s := newTestService(t, runner, &fakeQuotes{quote: oracle.Price{PriceInUsd: 0.003}}, &fakeBalances{})

	s.history.Append(position.TradeRecord{
		Mint: "So11111111111111111111111111111111111111112", Side: "buy",
		SolAmount: 0.1, PriceUSD: 0.003, Signature: "5KtP9vvv1111111111111111111111111111111111",
	})
	s.ledger.Create(position.Position{Mint: "mintBBBBBBBB", EntryPriceUSD: 0.003, SolSize: 0.1})

	var sb strings.Builder
	s.WriteSummary(&sb)
	out := sb.String()

	assert.Contains(t, out, "Session summary: 1 trades")
	assert.Contains(t, out, "buy")
	assert.Contains(t, out, "Still open")
	assert.Contains(t, out, "mint...BBBB")
}

func TestWriteSummaryEmptySession(t *testing.T) {
	s := newTestService(t, &fakeRunner{}, &fakeQuotes{}, &fakeBalances{})

	var sb strings.Builder
	s.WriteSummary(&sb)

	assert.Contains(t, sb.String(), "0 trades")
	assert.NotContains(t, sb.String(), "Still open")
}
