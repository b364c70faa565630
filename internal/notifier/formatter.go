package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"PriceCast/internal/model"
)

// maxListed caps how many symbols a single line names.
const maxListed = 10

// FormatRunSummary formats a run summary into a Telegram message.
func FormatRunSummary(s *model.RunSummary) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📈 <b>PriceCast</b> | %s\n\n", s.FinishedAt.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Model: %s\n", s.Primary.DisplayName()))
	b.WriteString(fmt.Sprintf("Forecast: %d / %d symbols\n", s.Forecast, s.Symbols))
	b.WriteString(fmt.Sprintf("Duration: %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond)))

	if len(s.Fallbacks) > 0 {
		b.WriteString(fmt.Sprintf("⚠️ Fallback: %s\n", listSymbols(s.Fallbacks)))
	}
	if len(s.Skipped) > 0 {
		b.WriteString(fmt.Sprintf("Skipped: %s\n", listSymbols(s.Skipped)))
	}
	if len(s.Failed) > 0 {
		b.WriteString(fmt.Sprintf("❌ Failed: %s\n", listSymbols(s.Failed)))
	}
	if s.DryRun {
		b.WriteString("\n<i>dry run, nothing written</i>\n")
	}
	return b.String()
}

// FormatForecasts renders the stored generation, one line per symbol with the
// first and last predicted price.
func FormatForecasts(fc map[string][]model.ForecastPoint, symbols []string) string {
	if len(symbols) == 0 {
		return "No forecasts stored."
	}
	var b strings.Builder
	b.WriteString("🔮 <b>Next 24h</b>\n\n")
	for _, sym := range symbols {
		pts := fc[sym]
		if len(pts) == 0 {
			continue
		}
		first, last := pts[0], pts[len(pts)-1]
		change := 0.0
		if first.P > 0 {
			change = (last.P - first.P) / first.P * 100
		}
		b.WriteString(fmt.Sprintf("%s: %.4f → %.4f (%+.2f%%)\n", html.EscapeString(sym), first.P, last.P, change))
	}
	return b.String()
}

func listSymbols(syms []string) string {
	if len(syms) <= maxListed {
		return html.EscapeString(strings.Join(syms, ", "))
	}
	return html.EscapeString(strings.Join(syms[:maxListed], ", ")) + fmt.Sprintf(" +%d more", len(syms)-maxListed)
}
