package render

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/usecase"
)

// PaymentRenderer renders payment submissions and recorded payments
type PaymentRenderer struct {
	out io.Writer
}

// NewPaymentRenderer creates a new payment renderer
func NewPaymentRenderer(out io.Writer) *PaymentRenderer {
	return &PaymentRenderer{out: out}
}

// RenderPayment renders a submitted EOA payment or Safe proposal
func (r *PaymentRenderer) RenderPayment(result *usecase.PaymentResult) error {
	switch result.Kind {
	case models.SettlementSafe:
		fmt.Fprintln(r.out, FormatSuccess("Safe transaction proposed"))
		fmt.Fprintf(r.out, "  Safe tx hash: %s\n", result.SafeTxHash)
		if result.Settlement != nil {
			fmt.Fprintf(r.out, "  Signatures:   %d/%d\n", result.Settlement.Confirmations, result.Settlement.ConfirmationsRequired)
		}
		fmt.Fprintln(r.out, color.New(color.Faint).Sprint("  Documents are marked paid once the Safe executes the transaction."))
	default:
		fmt.Fprintln(r.out, FormatSuccess("Payment broadcast"))
		fmt.Fprintf(r.out, "  Tx hash:      %s\n", result.TxHash)
	}
	if result.Intent != nil {
		fmt.Fprintf(r.out, "  Amount:       %s\n", result.Intent.Amount.String())
	}
	if result.ExplorerURL != "" {
		fmt.Fprintf(r.out, "  Explorer:     %s\n", result.ExplorerURL)
	}
	for _, rec := range result.Records {
		if err := r.RenderRecord(rec); err != nil {
			return err
		}
	}
	return nil
}

// RenderRecord renders the settlement of one document
func (r *PaymentRenderer) RenderRecord(result *usecase.RecordPaymentResult) error {
	if result == nil {
		return nil
	}
	label := fmt.Sprintf("%s %s", result.Ref.Kind, result.Ref.ID)
	switch {
	case result.AlreadyPaid:
		fmt.Fprintln(r.out, FormatWarning(label+" was already paid"))
	default:
		fmt.Fprintf(r.out, "%s → %s\n", label, Status(string(result.Status)))
	}
	if result.Notice != "" {
		fmt.Fprintln(r.out, FormatWarning(result.Notice))
	}
	if result.LedgerError != "" {
		fmt.Fprintln(r.out, color.New(color.FgYellow).Sprintf("⚠️  Ledger sync failed: %s", result.LedgerError))
	}
	if result.RelatedInvoice != nil {
		return r.RenderRecord(result.RelatedInvoice)
	}
	return nil
}
