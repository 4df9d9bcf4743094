package render

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/usecase"
)

// SettlementsRenderer renders settlement records and watcher passes
type SettlementsRenderer struct {
	out io.Writer
}

// NewSettlementsRenderer creates a new settlements renderer
func NewSettlementsRenderer(out io.Writer) *SettlementsRenderer {
	return &SettlementsRenderer{out: out}
}

// RenderList renders settlements newest first as stored
func (r *SettlementsRenderer) RenderList(settlements []*models.Settlement) error {
	if len(settlements) == 0 {
		fmt.Fprintln(r.out, "No settlements found")
		return nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"ID", "KIND", "STATUS", "CHAIN", "DOCUMENTS", "TX", "SIGS"})
	for _, s := range settlements {
		hash := s.TxHash
		if hash == "" {
			hash = s.SafeTxHash
		}
		sigs := "-"
		if s.Kind == models.SettlementSafe {
			sigs = fmt.Sprintf("%d/%d", s.Confirmations, s.ConfirmationsRequired)
		}
		t.AppendRow(table.Row{
			ShortAddress(s.ID),
			string(s.Kind),
			Status(string(s.Status)),
			s.ChainID,
			len(s.InvoiceIDs) + len(s.PayableIDs),
			ShortAddress(hash),
			sigs,
		})
	}
	fmt.Fprintln(r.out, t.Render())
	return nil
}

// RenderSummary renders one watcher pass
func (r *SettlementsRenderer) RenderSummary(summary *usecase.WatchSummary) error {
	fmt.Fprintf(r.out, "Checked %d settlement(s): %d signed, %d executed, %d confirmed, %d failed",
		summary.Checked, summary.Signed, summary.Executed, summary.Confirmed, summary.Failed)
	if summary.Errors > 0 {
		fmt.Fprintf(r.out, " (%d errors)", summary.Errors)
	}
	fmt.Fprintln(r.out)
	return nil
}
