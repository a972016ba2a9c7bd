package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"UsageSync/internal/domain"
	"UsageSync/internal/ports"
)

const defaultWorkers = 8

// SyncOptions is the immutable per-run configuration of the sync engine.
type SyncOptions struct {
	Source              string
	Mode                domain.RunMode
	Concurrency         domain.Concurrency
	Workers             int
	StopOffsetDays      int
	FullLookbackDays    int
	IncrementalLookback int
	ThrottleDelay       time.Duration
	Credentials         domain.Credentials
	Location            *time.Location
}

// SyncDeps wires the driven adapters of the sync engine.
type SyncDeps struct {
	Targets ports.TargetLoader
	Tokens  ports.TokenProvider
	Portal  ports.PortalResolver
	Gaps    ports.GapDetector
	Fetcher ports.MetricFetcher
	Store   ports.UsageAppender
	Logger  *slog.Logger
	Now     func() time.Time
	NewID   func() string
}

// Syncer backfills missing per-day usage for every tracked asset.
type Syncer struct {
	targets ports.TargetLoader
	tokens  ports.TokenProvider
	portal  ports.PortalResolver
	gaps    ports.GapDetector
	fetcher ports.MetricFetcher
	store   ports.UsageAppender
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewSyncer constructs the orchestration component.
func NewSyncer(deps SyncDeps) *Syncer {
	s := &Syncer{
		targets: deps.Targets,
		tokens:  deps.Tokens,
		portal:  deps.Portal,
		gaps:    deps.Gaps,
		fetcher: deps.Fetcher,
		store:   deps.Store,
		logger:  deps.Logger,
		now:     deps.Now,
		newID:   deps.NewID,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.New().String() }
	}
	return s
}

// ResolveConcurrency turns ConcurrencyAuto into a concrete mode for the run.
func ResolveConcurrency(mode domain.RunMode, c domain.Concurrency) domain.Concurrency {
	switch c {
	case domain.ConcurrencyConcurrent, domain.ConcurrencySequential:
		return c
	}
	if mode == domain.ModeFullBackfill {
		return domain.ConcurrencySequential
	}
	return domain.ConcurrencyConcurrent
}

// Run executes one sync pass. Only startup failures are returned as errors;
// per-asset and per-day failures are reported in the RunReport.
func (s *Syncer) Run(ctx context.Context, opts SyncOptions) (domain.RunReport, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	concurrency := ResolveConcurrency(opts.Mode, opts.Concurrency)
	report := domain.RunReport{
		Source:      opts.Source,
		Mode:        opts.Mode,
		Concurrency: concurrency,
		StartedAt:   s.now(),
	}

	lookback := LookbackFor(opts.Mode, opts.FullLookbackDays, opts.IncrementalLookback)
	windows := Plan(report.StartedAt.In(loc), opts.StopOffsetDays, lookback)
	report.Windows = len(windows)

	targets, err := s.targets.LoadTargets(ctx, opts.Source)
	if err != nil {
		return report, fmt.Errorf("load targets: %w", err)
	}

	session, err := s.openSession(ctx, opts.Credentials)
	if err != nil {
		return report, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	var throttle *rate.Limiter
	if concurrency == domain.ConcurrencySequential {
		workers = 1
		if opts.ThrottleDelay > 0 {
			throttle = rate.NewLimiter(rate.Every(opts.ThrottleDelay), 1)
		}
	}

	s.logger.Info("sync started",
		"source", opts.Source,
		"mode", opts.Mode,
		"concurrency", concurrency,
		"workers", workers,
		"assets", len(targets),
		"windows", len(windows))

	results := make([]domain.AssetResult, len(targets))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, asset := range targets {
		i, asset := i, asset
		g.Go(func() error {
			results[i] = s.syncAsset(ctx, session, asset, windows, loc, throttle)
			return nil
		})
	}
	_ = g.Wait()

	report.Assets = results
	for _, r := range results {
		report.Totals.Add(r.Counts)
	}
	report.FinishedAt = s.now()

	s.logger.Info("sync finished",
		"source", opts.Source,
		"stored", report.Totals.Stored,
		"existing", report.Totals.Existing,
		"raced", report.Totals.Raced,
		"before_creation", report.Totals.BeforeCreation,
		"fetch_failed", report.Totals.FetchFailed,
		"store_failed", report.Totals.StoreFailed,
		"failed_assets", report.FailedAssets(),
		"duration", report.Duration())

	return report, nil
}

func (s *Syncer) openSession(ctx context.Context, creds domain.Credentials) (domain.Session, error) {
	token, err := s.tokens.Token(ctx, creds)
	if err != nil {
		return domain.Session{}, asAuthError("token", err)
	}

	portalID, err := s.portal.PortalID(ctx, token)
	if err != nil {
		return domain.Session{}, asAuthError("portal id", err)
	}

	return domain.Session{Token: token, PortalID: portalID}, nil
}

func asAuthError(op string, err error) error {
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		return err
	}
	return &domain.AuthError{Op: op, Err: err}
}

// syncAsset walks one asset's windows oldest to newest. It never returns an
// error so a failing asset cannot cancel its siblings.
func (s *Syncer) syncAsset(ctx context.Context, session domain.Session, asset domain.TrackedAsset, windows []domain.UsageWindow, loc *time.Location, throttle *rate.Limiter) domain.AssetResult {
	result := domain.AssetResult{AssetKey: asset.AssetKey}
	log := s.logger.With("asset", asset.AssetKey)

	created := domain.StartOfDay(asset.CreatedAt, loc)
	applicable := make([]domain.UsageWindow, 0, len(windows))
	for _, w := range windows {
		if w.Day.Before(created) {
			result.Counts.Observe(domain.OutcomeBeforeCreation)
			continue
		}
		applicable = append(applicable, w)
	}
	if len(applicable) == 0 {
		return result
	}

	existing, err := s.gaps.ExistingDays(ctx, asset.AssetKey)
	if err != nil {
		storeErr := &domain.StoreError{Op: "existing days", AssetKey: asset.AssetKey, Err: err}
		log.Warn("skip asset", "error", storeErr)
		result.Errors = append(result.Errors, storeErr)
		for range applicable {
			result.Counts.Observe(domain.OutcomeStoreFailed)
		}
		return result
	}
	if existing == nil {
		existing = domain.DaySet{}
	}

	for i, w := range applicable {
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.Errors = append(result.Errors, ctxErr)
			for range applicable[i:] {
				result.Counts.Observe(domain.OutcomeFetchFailed)
			}
			break
		}

		outcome, err := s.syncWindow(ctx, session, asset, w, existing, throttle)
		result.Counts.Observe(outcome)
		if err != nil {
			log.Warn("usage window failed", "day", w.Key(), "outcome", outcome, "error", err)
			result.Errors = append(result.Errors, err)
			continue
		}
		log.Debug("usage window", "day", w.Key(), "outcome", outcome)
	}

	return result
}

func (s *Syncer) syncWindow(ctx context.Context, session domain.Session, asset domain.TrackedAsset, w domain.UsageWindow, existing domain.DaySet, throttle *rate.Limiter) (domain.PairOutcome, error) {
	if existing.Has(w.Day) {
		return domain.OutcomeExisting, nil
	}

	if throttle != nil {
		if err := throttle.Wait(ctx); err != nil {
			return domain.OutcomeFetchFailed, &domain.FetchError{AssetKey: asset.AssetKey, Day: w.Day, Err: err}
		}
	}

	count, err := s.fetcher.FetchUsage(ctx, session, asset.AssetKey, w)
	if err != nil {
		var fetchErr *domain.FetchError
		if !errors.As(err, &fetchErr) {
			err = &domain.FetchError{AssetKey: asset.AssetKey, Day: w.Day, Attempts: 1, Err: err}
		}
		return domain.OutcomeFetchFailed, err
	}

	inserted, err := s.store.AppendUsage(ctx, domain.UsageRecord{
		RecordID:     s.newID(),
		AssetKey:     asset.AssetKey,
		StoreKey:     asset.StoreKey,
		PeriodDate:   w.Day,
		RequestCount: count,
		CapturedAt:   s.now(),
	})
	if err != nil {
		var storeErr *domain.StoreError
		if !errors.As(err, &storeErr) {
			err = &domain.StoreError{Op: "append", AssetKey: asset.AssetKey, Day: w.Day, Err: err}
		}
		return domain.OutcomeStoreFailed, err
	}

	existing.Add(w.Day)
	if !inserted {
		return domain.OutcomeRaced, nil
	}
	return domain.OutcomeStored, nil
}
