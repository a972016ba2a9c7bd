package ports

import (
	"context"
	"time"

	"UsageSync/internal/domain"
)

// TargetLoader reads the tracked, non-archived assets of a source.
type TargetLoader interface {
	LoadTargets(ctx context.Context, source string) ([]domain.TrackedAsset, error)
}

// TokenProvider exchanges credentials for a time-limited access token.
type TokenProvider interface {
	Token(ctx context.Context, creds domain.Credentials) (domain.AccessToken, error)
}

// PortalResolver resolves the organisation id that scopes usage queries.
type PortalResolver interface {
	PortalID(ctx context.Context, token domain.AccessToken) (string, error)
}

// GapDetector reports which days already have stored usage for an asset.
type GapDetector interface {
	ExistingDays(ctx context.Context, assetKey string) (domain.DaySet, error)
}

// MetricFetcher queries the remote usage API for one asset and day.
type MetricFetcher interface {
	FetchUsage(ctx context.Context, session domain.Session, assetKey string, window domain.UsageWindow) (int64, error)
}

// UsageAppender stores a usage record if none exists for its (asset, day).
type UsageAppender interface {
	AppendUsage(ctx context.Context, record domain.UsageRecord) (bool, error)
}

// CatalogSource lists the items published on the portal.
type CatalogSource interface {
	SearchItems(ctx context.Context, session domain.Session, maxItems int) ([]domain.CatalogItem, error)
}

// CatalogRepository persists harvested catalog items.
type CatalogRepository interface {
	UpsertCatalogItem(ctx context.Context, item domain.CatalogItem, capturedAt time.Time) error
	ArchiveStale(ctx context.Context, source string, capturedBefore time.Time) (int64, error)
}

// Notifier publishes run summaries to Telegram or other channels.
type Notifier interface {
	PublishSummary(ctx context.Context, summary string) error
}

// RunMetrics exports run outcomes to an observability backend.
type RunMetrics interface {
	RecordSync(ctx context.Context, report domain.RunReport) error
	RecordHarvest(ctx context.Context, report domain.HarvestReport) error
	Close(ctx context.Context) error
}

// Scheduler controls when jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
