package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"UsageSync/internal/domain"
	"UsageSync/internal/ports"
)

// HarvestDeps wires the adapters used to refresh the catalog.
type HarvestDeps struct {
	Tokens     ports.TokenProvider
	Portal     ports.PortalResolver
	Source     ports.CatalogSource
	Repository ports.CatalogRepository
	Sanitize   func(string) string
	Logger     *slog.Logger
	Now        func() time.Time
}

// HarvestOptions configures one harvest pass.
type HarvestOptions struct {
	Source      string
	MaxItems    int
	Credentials domain.Credentials
}

// Harvester refreshes catalog items and archives the ones no longer published.
type Harvester struct {
	tokens     ports.TokenProvider
	portal     ports.PortalResolver
	source     ports.CatalogSource
	repository ports.CatalogRepository
	sanitize   func(string) string
	logger     *slog.Logger
	now        func() time.Time
}

// NewHarvester constructs the catalog harvest use case.
func NewHarvester(deps HarvestDeps) *Harvester {
	h := &Harvester{
		tokens:     deps.Tokens,
		portal:     deps.Portal,
		source:     deps.Source,
		repository: deps.Repository,
		sanitize:   deps.Sanitize,
		logger:     deps.Logger,
		now:        deps.Now,
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.sanitize == nil {
		h.sanitize = func(s string) string { return s }
	}
	return h
}

// Harvest lists portal items, upserts them and archives items not seen in this pass.
// Archiving is skipped when the search came back empty or any upsert failed.
func (h *Harvester) Harvest(ctx context.Context, opts HarvestOptions) (domain.HarvestReport, error) {
	report := domain.HarvestReport{Source: opts.Source, StartedAt: h.now()}

	token, err := h.tokens.Token(ctx, opts.Credentials)
	if err != nil {
		return report, asAuthError("token", err)
	}
	portalID, err := h.portal.PortalID(ctx, token)
	if err != nil {
		return report, asAuthError("portal id", err)
	}
	session := domain.Session{Token: token, PortalID: portalID}

	items, err := h.source.SearchItems(ctx, session, opts.MaxItems)
	if err != nil {
		return report, fmt.Errorf("search items: %w", err)
	}
	report.Seen = len(items)

	for _, item := range items {
		item.Source = opts.Source
		item.Summary = h.sanitize(item.Summary)
		item.Description = h.sanitize(item.Description)

		if err := h.repository.UpsertCatalogItem(ctx, item, report.StartedAt); err != nil {
			report.Failed++
			h.logger.Warn("upsert catalog item", "asset", item.AssetKey, "error", err)
			continue
		}
		report.Upserted++
	}

	if report.Seen > 0 && report.Failed == 0 {
		archived, err := h.repository.ArchiveStale(ctx, opts.Source, report.StartedAt)
		if err != nil {
			return report, fmt.Errorf("archive stale: %w", err)
		}
		report.Archived = archived
	}

	h.logger.Info("harvest finished",
		"source", opts.Source,
		"seen", report.Seen,
		"upserted", report.Upserted,
		"failed", report.Failed,
		"archived", report.Archived)

	return report, nil
}
