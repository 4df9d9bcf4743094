package render

import (
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/safepay-org/safepay/internal/domain/models"
)

var titleCaser = cases.Title(language.English)

// FormatWarning formats a warning message with the warning icon
func FormatWarning(message string) string {
	return color.New(color.FgYellow).Sprintf("⚠️  %s", lastSegment(message))
}

// FormatError formats an error message with the error icon
func FormatError(message string) string {
	msg := lastSegment(message)
	// Capitalize first letter
	if len(msg) > 0 {
		msg = strings.ToUpper(msg[:1]) + msg[1:]
	}
	return color.New(color.FgRed).Sprintf("❌ %s", msg)
}

// FormatSuccess formats a success message with the success icon
func FormatSuccess(message string) string {
	return color.New(color.FgGreen).Sprintf("✅ %s", message)
}

// lastSegment extracts the message after the last colon of an error chain
func lastSegment(message string) string {
	parts := strings.Split(message, ": ")
	return parts[len(parts)-1]
}

// Status renders a settlement or document status as a colored label
func Status(status string) string {
	label := titleCaser.String(strings.ReplaceAll(status, "_", " "))
	switch status {
	case string(models.SettlementConfirmed), string(models.SettlementExecuted), string(models.StatusPaid):
		return color.New(color.FgGreen).Sprint(label)
	case string(models.SettlementFailed):
		return color.New(color.FgRed).Sprint(label)
	case string(models.SettlementProposed), string(models.SettlementSigned):
		return color.New(color.FgYellow).Sprint(label)
	default:
		return label
	}
}

// ShortAddress abbreviates an address or hash for table cells
func ShortAddress(s string) string {
	if len(s) <= 14 {
		return s
	}
	return s[:8] + "…" + s[len(s)-4:]
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.Style().Options.DrawBorder = false
	t.Style().Options.SeparateColumns = false
	t.Style().Options.SeparateRows = false
	t.Style().Box = table.BoxStyle{
		PaddingRight:     "   ",
		MiddleHorizontal: "─",
	}
	return t
}
