package usecase

import (
	"testing"
	"time"

	"UsageSync/internal/domain"
)

func TestPlanExcludesStopOffsetDays(t *testing.T) {
	t.Parallel()

	anchor := time.Date(2024, time.January, 10, 15, 30, 0, 0, time.UTC)
	windows := Plan(anchor, 1, 5)

	want := []string{"2024-01-05", "2024-01-06", "2024-01-07", "2024-01-08", "2024-01-09"}
	if len(windows) != len(want) {
		t.Fatalf("expected %d windows, got %d", len(want), len(windows))
	}
	for i, w := range windows {
		if w.Key() != want[i] {
			t.Fatalf("window %d: expected %s, got %s", i, want[i], w.Key())
		}
		if w.EndMs-w.StartMs != 24*time.Hour.Milliseconds() {
			t.Fatalf("window %s spans %dms", w.Key(), w.EndMs-w.StartMs)
		}
		if w.StartMs != w.Day.UnixMilli() {
			t.Fatalf("window %s does not start at midnight", w.Key())
		}
	}
	if windows[0].StartMs != time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC).UnixMilli() {
		t.Fatalf("unexpected first start %d", windows[0].StartMs)
	}
}

func TestPlanEdgeCases(t *testing.T) {
	t.Parallel()

	anchor := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	if got := Plan(anchor, 3, 2); got != nil {
		t.Fatalf("lookback below stop offset should plan nothing, got %d windows", len(got))
	}
	if got := Plan(anchor, 1, 1); len(got) != 1 || got[0].Key() != "2024-02-29" {
		t.Fatalf("expected only leap day, got %+v", got)
	}
	if got := Plan(anchor, -2, 0); len(got) != 1 || got[0].Key() != "2024-03-01" {
		t.Fatalf("negative stop offset should clamp to today, got %+v", got)
	}
}

func TestPlanUsesAnchorLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC-8", -8*3600)
	anchor := time.Date(2024, time.January, 10, 1, 0, 0, 0, loc)
	windows := Plan(anchor, 1, 1)
	if len(windows) != 1 {
		t.Fatalf("expected one window, got %d", len(windows))
	}
	w := windows[0]
	if w.Key() != "2024-01-09" || w.StartMs != time.Date(2024, time.January, 9, 8, 0, 0, 0, time.UTC).UnixMilli() {
		t.Fatalf("unexpected window %s starting %d", w.Key(), w.StartMs)
	}
}

func TestLookbackFor(t *testing.T) {
	t.Parallel()

	if got := LookbackFor(domain.ModeFullBackfill, 720, 5); got != 720 {
		t.Fatalf("full backfill lookback %d", got)
	}
	if got := LookbackFor(domain.ModeIncremental, 720, 5); got != 5 {
		t.Fatalf("incremental lookback %d", got)
	}
}
