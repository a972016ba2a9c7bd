package domain

import "time"

// DayLayout is the calendar-day key format used for period dates.
const DayLayout = "2006-01-02"

// TrackedAsset is a catalog item whose daily usage is synchronized.
type TrackedAsset struct {
	AssetKey  string
	StoreKey  string
	CreatedAt time.Time
	Archived  bool
}

// UsageWindow is one calendar day's [StartMs, EndMs) range.
type UsageWindow struct {
	Day     time.Time
	StartMs int64
	EndMs   int64
}

// Key returns the window day formatted as YYYY-MM-DD.
func (w UsageWindow) Key() string {
	return w.Day.Format(DayLayout)
}

// UsageRecord is a single stored per-day usage count.
type UsageRecord struct {
	RecordID     string
	AssetKey     string
	StoreKey     string
	PeriodDate   time.Time
	RequestCount int64
	CapturedAt   time.Time
}

// DaySet holds calendar days keyed by DayLayout.
type DaySet map[string]struct{}

// NewDaySet builds a set from the given days.
func NewDaySet(days ...time.Time) DaySet {
	set := make(DaySet, len(days))
	for _, d := range days {
		set.Add(d)
	}
	return set
}

// Add inserts the calendar day of t.
func (s DaySet) Add(t time.Time) {
	s[t.Format(DayLayout)] = struct{}{}
}

// Has reports whether the calendar day of t is present.
func (s DaySet) Has(t time.Time) bool {
	_, ok := s[t.Format(DayLayout)]
	return ok
}

// StartOfDay returns local midnight of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
