package usecase

import (
	"time"

	"UsageSync/internal/domain"
)

// Plan returns one window per day from anchor-lookback to anchor-stopOffset, oldest first.
// Days closer to the anchor than stopOffset are never planned.
func Plan(anchor time.Time, stopOffset, lookback int) []domain.UsageWindow {
	if stopOffset < 0 {
		stopOffset = 0
	}
	if lookback < stopOffset {
		return nil
	}

	base := domain.StartOfDay(anchor, anchor.Location())
	windows := make([]domain.UsageWindow, 0, lookback-stopOffset+1)
	for k := lookback; k >= stopOffset; k-- {
		day := base.AddDate(0, 0, -k)
		windows = append(windows, domain.UsageWindow{
			Day:     day,
			StartMs: day.UnixMilli(),
			EndMs:   day.AddDate(0, 0, 1).UnixMilli(),
		})
	}
	return windows
}

// LookbackFor picks the configured lookback depth for a run mode.
func LookbackFor(mode domain.RunMode, full, incremental int) int {
	if mode == domain.ModeFullBackfill {
		return full
	}
	return incremental
}
