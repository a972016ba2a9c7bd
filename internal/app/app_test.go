package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"UsageSync/internal/config"
	"UsageSync/internal/domain"
)

type fakePortal struct {
	messages    atomic.Int32
	rejectToken bool
}

func (p *fakePortal) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sharing/rest/generateToken", func(w http.ResponseWriter, r *http.Request) {
		if p.rejectToken {
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Invalid username or password."}}`))
			return
		}
		fmt.Fprintf(w, `{"token":"tok","expires":%d}`, time.Now().Add(time.Hour).UnixMilli())
	})
	mux.HandleFunc("/sharing/rest/portals/self", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"org1"}`))
	})
	mux.HandleFunc("/sharing/rest/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total":2,"nextStart":-1,"results":[
			{"id":"a","title":"Roads","type":"Feature Service","owner":"gis","created":1704067200000,"snippet":"<p>City <b>roads</b></p>","tags":["roads"]},
			{"id":"b","title":"Parcels","type":"Map Service","owner":"gis","created":1704153600000}]}`))
	})
	mux.HandleFunc("/sharing/rest/portals/org1/usage", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		fmt.Fprintf(w, `{"data":[{"name":%q,"num":[["%s","5"]]}]}`, r.PostForm.Get("name"), r.PostForm.Get("startTime"))
	})
	mux.HandleFunc("/bottg/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		p.messages.Add(1)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	return mux
}

func testApplication(t *testing.T, portal *fakePortal) *Application {
	t.Helper()

	server := httptest.NewServer(portal.handler(t))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:?_time_format=sqlite"}
	cfg.Portal.URL = server.URL
	cfg.Portal.MaxAttempts = 2
	cfg.Portal.RetryDelay = time.Millisecond
	cfg.Notifications.Telegram = config.TelegramConfig{BotToken: "tg", ChatID: "1", APIURL: server.URL}

	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	if err := a.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return a
}

func TestHarvestThenSyncIsIdempotent(t *testing.T) {
	t.Parallel()

	portal := &fakePortal{}
	a := testApplication(t, portal)
	ctx := context.Background()

	harvest, err := a.RunHarvest(ctx)
	if err != nil {
		t.Fatalf("RunHarvest: %v", err)
	}
	if harvest.Seen != 2 || harvest.Upserted != 2 || harvest.Archived != 0 {
		t.Fatalf("unexpected harvest %+v", harvest)
	}

	var summary string
	if err := a.db.QueryRow(`SELECT summary FROM catalog_items WHERE asset_key = ?`, "a").Scan(&summary); err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if summary != "City roads" {
		t.Fatalf("summary not sanitized: %q", summary)
	}

	first, err := a.RunSync(ctx, SyncOverrides{})
	if err != nil {
		t.Fatalf("first RunSync: %v", err)
	}
	if first.Windows != 5 || first.Totals.Stored != 10 || first.Totals.Failed() != 0 {
		t.Fatalf("unexpected first run %+v", first.Totals)
	}

	second, err := a.RunSync(ctx, SyncOverrides{})
	if err != nil {
		t.Fatalf("second RunSync: %v", err)
	}
	if second.Totals.Stored != 0 || second.Totals.Existing != 10 {
		t.Fatalf("second run not idempotent: %+v", second.Totals)
	}

	var rows, total int64
	if err := a.db.QueryRow(`SELECT COUNT(*), SUM(request_count) FROM usage_metrics`).Scan(&rows, &total); err != nil {
		t.Fatalf("count usage: %v", err)
	}
	if rows != 10 || total != 50 {
		t.Fatalf("expected 10 rows totalling 50, got %d rows totalling %d", rows, total)
	}

	if got := portal.messages.Load(); got != 2 {
		t.Fatalf("expected 2 summaries, got %d", got)
	}
}

func TestRunSyncAuthFailureIsFatal(t *testing.T) {
	t.Parallel()

	portal := &fakePortal{rejectToken: true}
	a := testApplication(t, portal)

	_, err := a.RunSync(context.Background(), SyncOverrides{})
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if got := portal.messages.Load(); got != 1 {
		t.Fatalf("expected failure notification, got %d messages", got)
	}
}

func TestSyncOptionsApplyOverrides(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	a := &Application{cfg: cfg}

	opts := a.syncOptions(SyncOverrides{Mode: "full-backfill", Concurrency: "concurrent", Workers: 2})
	if opts.Mode != domain.ModeFullBackfill || opts.Concurrency != domain.ConcurrencyConcurrent || opts.Workers != 2 {
		t.Fatalf("overrides not applied: %+v", opts)
	}
	if opts.FullLookbackDays != 720 || opts.StopOffsetDays != 1 || opts.Location == nil {
		t.Fatalf("config not carried: %+v", opts)
	}

	opts = a.syncOptions(SyncOverrides{})
	if opts.Mode != domain.ModeIncremental || opts.Concurrency != domain.ConcurrencyAuto || opts.Workers != 8 {
		t.Fatalf("defaults not kept: %+v", opts)
	}
}

func TestFormatSyncSummary(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, time.January, 10, 6, 0, 0, 0, time.UTC)
	report := domain.RunReport{
		Source:      "AGOL",
		Mode:        domain.ModeIncremental,
		Concurrency: domain.ConcurrencyConcurrent,
		StartedAt:   start,
		FinishedAt:  start.Add(42 * time.Second),
		Windows:     5,
		Assets: []domain.AssetResult{
			{AssetKey: "a", Counts: domain.PairCounts{Stored: 5}},
			{AssetKey: "b", Counts: domain.PairCounts{Stored: 4, FetchFailed: 1}},
		},
		Totals: domain.PairCounts{Stored: 9, FetchFailed: 1},
	}

	msg := FormatSyncSummary(report)
	for _, want := range []string{"`AGOL`", "Stored: 9", "took 42s", "Failures: 1 fetch, 0 store across 1 assets", "- `b`: 1 failed"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("summary missing %q:\n%s", want, msg)
		}
	}

	report.Assets[1].Counts.FetchFailed = 0
	report.Totals.FetchFailed = 0
	if msg := FormatSyncSummary(report); !strings.HasSuffix(msg, "No failures") {
		t.Fatalf("unexpected clean summary:\n%s", msg)
	}
}
