package domain

import "time"

// RunMode selects the lookback depth of a sync run.
type RunMode string

const (
	ModeFullBackfill RunMode = "full-backfill"
	ModeIncremental  RunMode = "incremental"
)

// Concurrency selects how assets are scheduled.
type Concurrency string

const (
	ConcurrencyAuto       Concurrency = "auto"
	ConcurrencyConcurrent Concurrency = "concurrent"
	ConcurrencySequential Concurrency = "throttled-sequential"
)

// PairOutcome is the terminal state of one (asset, window) pair.
type PairOutcome string

const (
	OutcomeStored         PairOutcome = "stored"
	OutcomeExisting       PairOutcome = "existing"
	OutcomeRaced          PairOutcome = "raced"
	OutcomeBeforeCreation PairOutcome = "before_creation"
	OutcomeFetchFailed    PairOutcome = "fetch_failed"
	OutcomeStoreFailed    PairOutcome = "store_failed"
)

// PairCounts aggregates pair outcomes.
type PairCounts struct {
	Stored         int
	Existing       int
	Raced          int
	BeforeCreation int
	FetchFailed    int
	StoreFailed    int
}

// Observe increments the counter matching outcome.
func (c *PairCounts) Observe(outcome PairOutcome) {
	switch outcome {
	case OutcomeStored:
		c.Stored++
	case OutcomeExisting:
		c.Existing++
	case OutcomeRaced:
		c.Raced++
	case OutcomeBeforeCreation:
		c.BeforeCreation++
	case OutcomeFetchFailed:
		c.FetchFailed++
	case OutcomeStoreFailed:
		c.StoreFailed++
	}
}

// Add merges other into c.
func (c *PairCounts) Add(other PairCounts) {
	c.Stored += other.Stored
	c.Existing += other.Existing
	c.Raced += other.Raced
	c.BeforeCreation += other.BeforeCreation
	c.FetchFailed += other.FetchFailed
	c.StoreFailed += other.StoreFailed
}

// Failed is the number of pairs left without a record because of an error.
func (c PairCounts) Failed() int {
	return c.FetchFailed + c.StoreFailed
}

// AssetResult captures the outcome of one asset's task.
type AssetResult struct {
	AssetKey string
	Counts   PairCounts
	Errors   []error
}

// RunReport summarizes a completed sync run.
type RunReport struct {
	Source      string
	Mode        RunMode
	Concurrency Concurrency
	StartedAt   time.Time
	FinishedAt  time.Time
	Windows     int
	Assets      []AssetResult
	Totals      PairCounts
}

// Duration of the run.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// FailedAssets counts assets with at least one failed pair.
func (r RunReport) FailedAssets() int {
	n := 0
	for _, a := range r.Assets {
		if a.Counts.Failed() > 0 {
			n++
		}
	}
	return n
}
