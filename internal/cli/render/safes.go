package render

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/safepay-org/safepay/internal/domain/models"
	"github.com/safepay-org/safepay/internal/usecase"
)

// SafesRenderer renders connected Safe wallets
type SafesRenderer struct {
	out io.Writer
}

// NewSafesRenderer creates a new Safe renderer
func NewSafesRenderer(out io.Writer) *SafesRenderer {
	return &SafesRenderer{out: out}
}

// RenderList renders the active Safes of a scope
func (r *SafesRenderer) RenderList(result *usecase.ListSafeWalletsResult) error {
	if len(result.Wallets) == 0 {
		fmt.Fprintln(r.out, "No Safe wallets connected")
		return nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"ID", "NAME", "ADDRESS", "CHAIN", "THRESHOLD"})
	for _, w := range result.Wallets {
		name := w.Name
		if w.IsDefault {
			name += color.New(color.Faint).Sprint(" (default)")
		}
		t.AppendRow(table.Row{w.PaymentMethodID, name, w.SafeAddress, w.ChainID, fmt.Sprintf("%d/%d", w.Threshold, len(w.Owners))})
	}
	fmt.Fprintln(r.out, t.Render())
	return nil
}

// RenderImport renders the outcome of an import or handshake connect
func (r *SafesRenderer) RenderImport(result *usecase.ImportSafeResult) error {
	if result.AlreadyConnected {
		fmt.Fprintln(r.out, FormatWarning(result.Message))
	} else {
		fmt.Fprintln(r.out, FormatSuccess(result.Message))
	}
	return r.renderMethod(result.PaymentMethod)
}

// RenderUpdated renders a Safe after disconnect or authorize
func (r *SafesRenderer) RenderUpdated(action string, pm *models.PaymentMethod) error {
	fmt.Fprintln(r.out, FormatSuccess(action))
	return r.renderMethod(pm)
}

// RenderRefresh renders the refreshed Safe and any drift from its stored state
func (r *SafesRenderer) RenderRefresh(result *usecase.RefreshSafeResult) error {
	if !result.Drift.Any() {
		fmt.Fprintln(r.out, FormatSuccess("Safe is up to date"))
		return r.renderMethod(result.PaymentMethod)
	}
	fmt.Fprintln(r.out, FormatWarning("Safe state changed on-chain"))
	d := result.Drift
	if d.OwnersChanged {
		fmt.Fprintf(r.out, "  Owners:    %d → %d\n", len(d.PreviousOwners), len(result.PaymentMethod.Safe.Owners))
	}
	if d.ThresholdChanged {
		fmt.Fprintf(r.out, "  Threshold: %d → %d\n", d.PreviousThreshold, result.PaymentMethod.Safe.Threshold)
	}
	if d.NonceAdvanced {
		fmt.Fprintf(r.out, "  Nonce:     %d → %d\n", d.PreviousNonce, result.PaymentMethod.Safe.Nonce)
	}
	return r.renderMethod(result.PaymentMethod)
}

func (r *SafesRenderer) renderMethod(pm *models.PaymentMethod) error {
	if pm == nil {
		return nil
	}
	bold := color.New(color.Bold)
	fmt.Fprintf(r.out, "\n%s %s\n", bold.Sprint("Safe:"), pm.Safe.SafeAddress)
	fmt.Fprintf(r.out, "  ID:        %s\n", pm.ID)
	fmt.Fprintf(r.out, "  Name:      %s\n", pm.Name)
	fmt.Fprintf(r.out, "  Chain:     %d\n", pm.Safe.ChainID)
	fmt.Fprintf(r.out, "  Threshold: %d of %d\n", pm.Safe.Threshold, len(pm.Safe.Owners))
	fmt.Fprintf(r.out, "  Nonce:     %d\n", pm.Safe.Nonce)
	state := color.New(color.FgGreen).Sprint("active")
	if !pm.IsActive {
		state = color.New(color.Faint).Sprint("disconnected")
	}
	fmt.Fprintf(r.out, "  State:     %s\n", state)
	if pm.Safe.SafeAppAuthorized {
		fmt.Fprintf(r.out, "  Safe App:  authorized\n")
	}
	for _, owner := range pm.Safe.Owners {
		fmt.Fprintf(r.out, "    - %s\n", owner)
	}
	return nil
}
