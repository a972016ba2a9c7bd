package app

import (
	"fmt"
	"strings"
	"time"

	"UsageSync/internal/domain"
)

// FormatSyncSummary renders a run report as a Telegram Markdown message.
func FormatSyncSummary(report domain.RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*Usage sync* `%s` (%s, %s)\n", report.Source, report.Mode, report.Concurrency)
	fmt.Fprintf(&b, "Assets: %d, days planned: %d, took %s\n", len(report.Assets), report.Windows, report.Duration().Round(time.Second))
	t := report.Totals
	fmt.Fprintf(&b, "Stored: %d, already present: %d, lost races: %d, before creation: %d\n", t.Stored, t.Existing, t.Raced, t.BeforeCreation)

	if t.Failed() == 0 {
		b.WriteString("No failures")
		return b.String()
	}

	fmt.Fprintf(&b, "Failures: %d fetch, %d store across %d assets", t.FetchFailed, t.StoreFailed, report.FailedAssets())
	shown := 0
	for _, a := range report.Assets {
		if a.Counts.Failed() == 0 {
			continue
		}
		if shown == 5 {
			b.WriteString("\n...")
			break
		}
		fmt.Fprintf(&b, "\n- `%s`: %d failed", a.AssetKey, a.Counts.Failed())
		shown++
	}

	return b.String()
}

// FormatSyncFailure renders a run that could not start.
func FormatSyncFailure(source string, err error) string {
	return fmt.Sprintf("*Usage sync* `%s` aborted\n`%s`", source, strings.ReplaceAll(err.Error(), "`", "'"))
}
