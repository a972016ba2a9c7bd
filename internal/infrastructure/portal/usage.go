package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"UsageSync/internal/domain"
	"UsageSync/internal/ports"
)

var _ ports.MetricFetcher = (*Client)(nil)

type usageResponse struct {
	Data []usageSeries `json:"data"`
}

type usageSeries struct {
	Name string          `json:"name"`
	Num  [][]json.Number `json:"num"`
}

// FetchUsage returns the request count of assetKey for the window.
// A response without data points counts as zero usage.
func (c *Client) FetchUsage(ctx context.Context, session domain.Session, assetKey string, window domain.UsageWindow) (int64, error) {
	form := url.Values{}
	form.Set("f", "json")
	form.Set("startTime", strconv.FormatInt(window.StartMs, 10))
	form.Set("endTime", strconv.FormatInt(window.EndMs, 10))
	form.Set("period", "1d")
	form.Set("vars", "num")
	form.Set("groupby", "name")
	form.Set("etype", "svcusg")
	form.Set("name", assetKey)
	form.Set("token", session.Token.Value)

	path := "/sharing/rest/portals/" + url.PathEscape(session.PortalID) + "/usage"

	var count int64
	attempts, err := c.retry(ctx, func() error {
		var resp usageResponse
		if err := c.call(ctx, http.MethodPost, path, form, &resp); err != nil {
			return permanent(ctx, err)
		}
		n, err := resp.requests(assetKey, window.StartMs)
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	if err != nil {
		return 0, &domain.FetchError{AssetKey: assetKey, Day: window.Day, Attempts: attempts, Err: err}
	}

	return count, nil
}

// requests returns the count of the point starting at startMs in the series for
// assetKey. The first series and the first point are used when none match.
func (r usageResponse) requests(assetKey string, startMs int64) (int64, error) {
	if len(r.Data) == 0 {
		return 0, nil
	}

	series := r.Data[0]
	for _, s := range r.Data {
		if s.Name == assetKey {
			series = s
			break
		}
	}

	var point []json.Number
	for _, p := range series.Num {
		if len(p) < 2 {
			continue
		}
		if point == nil {
			point = p
		}
		if ts, err := p[0].Int64(); err == nil && ts == startMs {
			point = p
			break
		}
	}
	if point == nil || point[1] == "" {
		return 0, nil
	}

	v, err := point[1].Float64()
	if err != nil {
		return 0, fmt.Errorf("parse usage value %q: %w", point[1], err)
	}
	if v <= 0 {
		return 0, nil
	}
	return int64(math.Round(v)), nil
}
