package app

import (
	"fmt"
	"polysentry/clients/notifier"
	"strings"
)

// FormatAlert renders an alert for a chat channel. Formatting is fixed-point
// and locale independent.
func FormatAlert(a Alert, m notifier.Markup) string {
	if m == nil {
		m = notifier.PlainMarkup{}
	}

	var sb strings.Builder
	sb.WriteString("🚨 " + m.Bold("Suspicious Activity") + "\n\n")
	sb.WriteString("Wallet: " + m.Code(a.Wallet) + "\n")
	sb.WriteString("Market: " + m.Escape(a.Market) + "\n")
	sb.WriteString("Type: " + m.Escape(string(a.Type)) + "\n")
	sb.WriteString("Severity: " + m.Escape(string(a.Severity)) + "\n")
	sb.WriteString(fmt.Sprintf("Win Rate: %.1f%%\n", a.WinRate*100))
	sb.WriteString(fmt.Sprintf("Trades: %d\n", a.TotalTrades))
	sb.WriteString("Volume: $" + a.TotalVolume.StringFixed(2))

	return sb.String()
}
