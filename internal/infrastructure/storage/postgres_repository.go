package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"UsageSync/internal/domain"
	"UsageSync/internal/ports"
)

// PostgresRepository persists catalog items and per-day usage into Postgres.
type PostgresRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var (
	_ ports.TargetLoader      = (*PostgresRepository)(nil)
	_ ports.GapDetector       = (*PostgresRepository)(nil)
	_ ports.UsageAppender     = (*PostgresRepository)(nil)
	_ ports.CatalogRepository = (*PostgresRepository)(nil)
)

// Option customizes the repository.
type Option func(*PostgresRepository)

// WithPlaceholders overrides the bind-parameter style (Postgres uses $1).
func WithPlaceholders(format sq.PlaceholderFormat) Option {
	return func(r *PostgresRepository) {
		r.sb = r.sb.PlaceholderFormat(format)
	}
}

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB, opts ...Option) *PostgresRepository {
	r := &PostgresRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadTargets returns non-archived assets of source ordered by creation time.
func (r *PostgresRepository) LoadTargets(ctx context.Context, source string) ([]domain.TrackedAsset, error) {
	query, args, err := r.sb.
		Select("asset_key", "store_key", "created_at", "archived").
		From("catalog_items").
		Where(sq.Eq{"source": source, "archived": false}).
		OrderBy("created_at ASC", "asset_key ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build targets query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer rows.Close()

	var targets []domain.TrackedAsset
	for rows.Next() {
		var (
			asset   domain.TrackedAsset
			created timeValue
		)
		if err := rows.Scan(&asset.AssetKey, &asset.StoreKey, &created, &asset.Archived); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		asset.CreatedAt = created.Time
		targets = append(targets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return targets, nil
}

// ExistingDays returns every period already stored for assetKey.
func (r *PostgresRepository) ExistingDays(ctx context.Context, assetKey string) (domain.DaySet, error) {
	query, args, err := r.sb.
		Select("period_date").
		From("usage_metrics").
		Where(sq.Eq{"asset_key": assetKey}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build existing days query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing days: %w", err)
	}
	defer rows.Close()

	days := domain.DaySet{}
	for rows.Next() {
		var day timeValue
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("scan period date: %w", err)
		}
		if day.Valid {
			days.Add(day.Time)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return days, nil
}

// AppendUsage inserts the record unless one already exists for its asset and day.
// It reports whether a row was written.
func (r *PostgresRepository) AppendUsage(ctx context.Context, record domain.UsageRecord) (bool, error) {
	if record.RequestCount < 0 {
		return false, &domain.StoreError{
			Op:       "append",
			AssetKey: record.AssetKey,
			Day:      record.PeriodDate,
			Err:      fmt.Errorf("negative request count %d", record.RequestCount),
		}
	}
	if record.RecordID == "" {
		record.RecordID = uuid.New().String()
	}

	query, args, err := r.sb.
		Insert("usage_metrics").
		Columns("record_id", "asset_key", "store_key", "period_date", "request_count", "captured_at").
		Values(
			record.RecordID,
			record.AssetKey,
			record.StoreKey,
			record.PeriodDate.Format(domain.DayLayout),
			record.RequestCount,
			dbTime(record.CapturedAt),
		).
		Suffix("ON CONFLICT (asset_key, period_date) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build append query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, &domain.StoreError{Op: "append", AssetKey: record.AssetKey, Day: record.PeriodDate, Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, &domain.StoreError{Op: "append", AssetKey: record.AssetKey, Day: record.PeriodDate, Err: err}
	}

	return n > 0, nil
}

// UpsertCatalogItem inserts the item or refreshes its metadata, keeping its store key.
// A re-harvested item is no longer archived.
func (r *PostgresRepository) UpsertCatalogItem(ctx context.Context, item domain.CatalogItem, capturedAt time.Time) error {
	var modified sql.NullTime
	if !item.ModifiedAt.IsZero() {
		modified = sql.NullTime{Time: dbTime(item.ModifiedAt), Valid: true}
	}

	query, args, err := r.sb.
		Insert("catalog_items").
		Columns("store_key", "asset_key", "source", "title", "item_type", "owner",
			"summary", "description", "tags", "access", "created_at", "modified_at",
			"archived", "captured_at").
		Values(
			uuid.New().String(),
			item.AssetKey,
			item.Source,
			item.Title,
			item.Type,
			item.Owner,
			item.Summary,
			item.Description,
			strings.Join(item.Tags, ", "),
			item.Access,
			dbTime(item.CreatedAt),
			modified,
			false,
			dbTime(capturedAt),
		).
		Suffix(`ON CONFLICT (source, asset_key) DO UPDATE
              SET title = EXCLUDED.title,
                  item_type = EXCLUDED.item_type,
                  owner = EXCLUDED.owner,
                  summary = EXCLUDED.summary,
                  description = EXCLUDED.description,
                  tags = EXCLUDED.tags,
                  access = EXCLUDED.access,
                  created_at = EXCLUDED.created_at,
                  modified_at = EXCLUDED.modified_at,
                  archived = FALSE,
                  captured_at = EXCLUDED.captured_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build catalog upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert catalog item %s: %w", item.AssetKey, err)
	}

	return nil
}

// ArchiveStale archives live items of source that were not captured since capturedBefore.
func (r *PostgresRepository) ArchiveStale(ctx context.Context, source string, capturedBefore time.Time) (int64, error) {
	query, args, err := r.sb.
		Update("catalog_items").
		Set("archived", true).
		Where(sq.Eq{"source": source, "archived": false}).
		Where(sq.Lt{"captured_at": dbTime(capturedBefore)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build archive query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("archive stale: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive stale rows: %w", err)
	}

	return n, nil
}

// dbTime normalizes timestamps to UTC at the column precision.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
