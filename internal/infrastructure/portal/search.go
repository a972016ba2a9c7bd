package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"UsageSync/internal/domain"
	"UsageSync/internal/ports"
)

var _ ports.CatalogSource = (*Client)(nil)

type searchResponse struct {
	Total     int          `json:"total"`
	NextStart int          `json:"nextStart"`
	Results   []searchItem `json:"results"`
}

type searchItem struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Type        string   `json:"type"`
	Owner       string   `json:"owner"`
	Created     int64    `json:"created"`
	Modified    int64    `json:"modified"`
	Snippet     string   `json:"snippet"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Access      string   `json:"access"`
}

// SearchItems pages through the organisation's items, oldest first, up to maxItems.
func (c *Client) SearchItems(ctx context.Context, session domain.Session, maxItems int) ([]domain.CatalogItem, error) {
	var items []domain.CatalogItem
	start := 1

	for {
		num := c.pageSize
		if maxItems > 0 && maxItems-len(items) < num {
			num = maxItems - len(items)
		}
		if num <= 0 {
			break
		}

		form := url.Values{}
		form.Set("f", "json")
		form.Set("q", "orgid:"+session.PortalID)
		form.Set("sortField", "created")
		form.Set("sortOrder", "asc")
		form.Set("start", strconv.Itoa(start))
		form.Set("num", strconv.Itoa(num))
		form.Set("token", session.Token.Value)

		var page searchResponse
		attempts, err := c.retry(ctx, func() error {
			page = searchResponse{}
			return permanent(ctx, c.call(ctx, http.MethodGet, "/sharing/rest/search", form, &page))
		})
		if err != nil {
			return nil, fmt.Errorf("search page at %d after %d attempts: %w", start, attempts, err)
		}

		for _, r := range page.Results {
			items = append(items, r.toDomain())
		}

		if len(page.Results) == 0 || page.NextStart <= 0 || page.NextStart <= start {
			break
		}
		start = page.NextStart
	}

	return items, nil
}

func (r searchItem) toDomain() domain.CatalogItem {
	item := domain.CatalogItem{
		AssetKey:    r.ID,
		Title:       r.Title,
		Type:        r.Type,
		Owner:       r.Owner,
		Summary:     r.Snippet,
		Description: r.Description,
		Tags:        r.Tags,
		Access:      r.Access,
	}
	if r.Created > 0 {
		item.CreatedAt = time.UnixMilli(r.Created).UTC()
	}
	if r.Modified > 0 {
		item.ModifiedAt = time.UnixMilli(r.Modified).UTC()
	}
	return item
}
