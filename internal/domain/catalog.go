package domain

import "time"

// CatalogItem is the minimal harvested metadata of a portal item.
type CatalogItem struct {
	AssetKey    string
	Source      string
	Title       string
	Type        string
	Owner       string
	Summary     string
	Description string
	Tags        []string
	Access      string
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

// HarvestReport summarizes a catalog harvest.
type HarvestReport struct {
	Source    string
	StartedAt time.Time
	Seen      int
	Upserted  int
	Failed    int
	Archived  int64
}
