package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"UsageSync/internal/domain"
)

type fakeCatalog struct {
	items []domain.CatalogItem
	err   error
	max   int
}

func (f *fakeCatalog) SearchItems(ctx context.Context, session domain.Session, maxItems int) ([]domain.CatalogItem, error) {
	f.max = maxItems
	return f.items, f.err
}

type memCatalog struct {
	upserted   []domain.CatalogItem
	failKey    string
	archivedAt time.Time
	archives   int
}

func (m *memCatalog) UpsertCatalogItem(ctx context.Context, item domain.CatalogItem, capturedAt time.Time) error {
	if item.AssetKey == m.failKey {
		return errors.New("constraint violation")
	}
	m.upserted = append(m.upserted, item)
	return nil
}

func (m *memCatalog) ArchiveStale(ctx context.Context, source string, capturedBefore time.Time) (int64, error) {
	m.archives++
	m.archivedAt = capturedBefore
	return 2, nil
}

func newTestHarvester(source *fakeCatalog, repo *memCatalog, tokens *fakeTokens) *Harvester {
	return NewHarvester(HarvestDeps{
		Tokens:     tokens,
		Portal:     &fakePortal{id: "org1"},
		Source:     source,
		Repository: repo,
		Sanitize:   strings.ToUpper,
		Now:        func() time.Time { return syncNow },
	})
}

func TestHarvestUpsertsAndArchives(t *testing.T) {
	t.Parallel()

	source := &fakeCatalog{items: []domain.CatalogItem{
		{AssetKey: "a", Summary: "roads", Description: "city roads"},
		{AssetKey: "b"},
	}}
	repo := &memCatalog{}
	h := newTestHarvester(source, repo, &fakeTokens{})

	report, err := h.Harvest(context.Background(), HarvestOptions{Source: "AGOL", MaxItems: 50})
	if err != nil {
		t.Fatalf("Harvest: %v", err)
	}
	if report.Seen != 2 || report.Upserted != 2 || report.Archived != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if source.max != 50 {
		t.Fatalf("max items not forwarded: %d", source.max)
	}
	if got := repo.upserted[0]; got.Source != "AGOL" || got.Summary != "ROADS" || got.Description != "CITY ROADS" {
		t.Fatalf("item not prepared: %+v", got)
	}
	if !repo.archivedAt.Equal(syncNow) {
		t.Fatalf("archive cutoff %v, want %v", repo.archivedAt, syncNow)
	}
}

func TestHarvestKeepsCatalogOnPartialFailure(t *testing.T) {
	t.Parallel()

	source := &fakeCatalog{items: []domain.CatalogItem{{AssetKey: "a"}, {AssetKey: "bad"}}}
	repo := &memCatalog{failKey: "bad"}
	h := newTestHarvester(source, repo, &fakeTokens{})

	report, err := h.Harvest(context.Background(), HarvestOptions{Source: "AGOL"})
	if err != nil {
		t.Fatalf("Harvest: %v", err)
	}
	if report.Upserted != 1 || report.Failed != 1 || repo.archives != 0 {
		t.Fatalf("unexpected report %+v with %d archives", report, repo.archives)
	}
}

func TestHarvestEmptySearchArchivesNothing(t *testing.T) {
	t.Parallel()

	repo := &memCatalog{}
	h := newTestHarvester(&fakeCatalog{}, repo, &fakeTokens{})

	if _, err := h.Harvest(context.Background(), HarvestOptions{Source: "AGOL"}); err != nil {
		t.Fatalf("Harvest: %v", err)
	}
	if repo.archives != 0 {
		t.Fatal("empty search must not archive the catalog")
	}
}

func TestHarvestErrors(t *testing.T) {
	t.Parallel()

	h := newTestHarvester(&fakeCatalog{}, &memCatalog{}, &fakeTokens{err: errors.New("denied")})
	_, err := h.Harvest(context.Background(), HarvestOptions{Source: "AGOL"})
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}

	h = newTestHarvester(&fakeCatalog{err: errors.New("search 500")}, &memCatalog{}, &fakeTokens{})
	if _, err := h.Harvest(context.Background(), HarvestOptions{Source: "AGOL"}); err == nil || errors.As(err, &authErr) {
		t.Fatalf("expected plain search error, got %v", err)
	}
}
