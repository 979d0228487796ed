// internal/bot/summary.go
package bot

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/copytradr/solana-copybot/internal/position"
)

// WriteSummary renders the session's trades and any positions still open as
// tables on w. Called once at shutdown.
func (s *Service) WriteSummary(w io.Writer) {
	trades, volume := s.history.Stats()
	fmt.Fprintf(w, "\nSession summary: %d trades, %.4f SOL total volume\n\n", trades, volume)

	if recent := s.history.Recent(); len(recent) > 0 {
		renderTrades(w, recent)
	}
	if open := s.ledger.List(); len(open) > 0 {
		fmt.Fprintln(w)
		renderOpenPositions(w, open)
	}
}

func renderTrades(w io.Writer, trades []position.TradeRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Trades (newest first)")
	t.AppendHeader(table.Row{"Time", "Side", "Mint", "SOL", "Price USD", "Signature"})
	for _, tr := range trades {
		t.AppendRow(table.Row{
			tr.Timestamp.Format("15:04:05"),
			tr.Side,
			shortMint(tr.Mint),
			fmt.Sprintf("%.4f", tr.SolAmount),
			fmt.Sprintf("%.6f", tr.PriceUSD),
			shortSignature(tr.Signature),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "SOL", Align: text.AlignRight},
		{Name: "Price USD", Align: text.AlignRight},
	})
	t.Render()
}

func renderOpenPositions(w io.Writer, open []position.Position) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Still open")
	t.AppendHeader(table.Row{"Mint", "Entry USD", "Current USD", "PnL %", "Held"})
	for _, p := range open {
		t.AppendRow(table.Row{
			shortMint(p.Mint),
			fmt.Sprintf("%.6f", p.EntryPriceUSD),
			fmt.Sprintf("%.6f", p.CurrentPriceUSD),
			fmt.Sprintf("%+.2f", p.PnLPct),
			p.TimeHeld,
		})
	}
	t.Render()
}

func shortSignature(sig string) string {
	if len(sig) > 16 {
		return sig[:8] + "..." + sig[len(sig)-8:]
	}
	return sig
}
