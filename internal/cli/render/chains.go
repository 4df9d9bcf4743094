package render

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/safepay-org/safepay/internal/usecase"
)

// ChainsRenderer renders the chain registry
type ChainsRenderer struct {
	out io.Writer
}

// NewChainsRenderer creates a new chains renderer
func NewChainsRenderer(out io.Writer) *ChainsRenderer {
	return &ChainsRenderer{out: out}
}

// Render renders the chain list with token and RPC columns
func (r *ChainsRenderer) Render(result *usecase.ListChainsResult) error {
	if len(result.Chains) == 0 {
		fmt.Fprintln(r.out, "No chains configured")
		return nil
	}

	fmt.Fprintln(r.out, "🌐 Supported Chains:")
	fmt.Fprintln(r.out)

	t := newTable()
	t.AppendHeader(table.Row{"ID", "CHAIN ID", "NAME", "TOKENS", "RPC"})
	for _, status := range result.Chains {
		c := status.Chain
		id := c.ID
		if id == result.Default {
			id += color.New(color.Faint).Sprint(" (default)")
		}
		symbols := ""
		for i, tok := range c.Tokens {
			if i > 0 {
				symbols += ", "
			}
			symbols += tok.Symbol
		}
		rpc := "-"
		if status.Probed {
			switch {
			case status.Error != nil:
				rpc = color.New(color.FgRed).Sprintf("❌ %v", status.Error)
			case status.RPCChainID != c.ChainID:
				rpc = color.New(color.FgYellow).Sprintf("⚠️  answers %d", status.RPCChainID)
			default:
				rpc = color.New(color.FgGreen).Sprint("✅ ok")
			}
		}
		t.AppendRow(table.Row{id, c.ChainID, c.Name, symbols, rpc})
	}
	fmt.Fprintln(r.out, t.Render())
	return nil
}
