package storage

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS catalog_items (
		store_key   TEXT PRIMARY KEY,
		asset_key   TEXT NOT NULL,
		source      TEXT NOT NULL,
		title       TEXT,
		item_type   TEXT,
		owner       TEXT,
		summary     TEXT,
		description TEXT,
		tags        TEXT,
		access      TEXT,
		created_at  TIMESTAMP NOT NULL,
		modified_at TIMESTAMP,
		archived    BOOLEAN NOT NULL DEFAULT FALSE,
		captured_at TIMESTAMP NOT NULL,
		UNIQUE (source, asset_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_catalog_items_source_created ON catalog_items (source, archived, created_at)`,
	`CREATE TABLE IF NOT EXISTS usage_metrics (
		record_id     TEXT PRIMARY KEY,
		asset_key     TEXT NOT NULL,
		store_key     TEXT NOT NULL REFERENCES catalog_items (store_key),
		period_date   DATE NOT NULL,
		request_count BIGINT NOT NULL CHECK (request_count >= 0),
		captured_at   TIMESTAMP NOT NULL,
		UNIQUE (asset_key, period_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_metrics_store_key ON usage_metrics (store_key)`,
}

// Migrate creates the catalog and usage tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
