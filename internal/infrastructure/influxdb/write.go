package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-hub/internal/cache"
	"github.com/nerrad567/gray-logic-hub/internal/intent"
)

// Measurement names.
const (
	MeasurementRefresh = "hub_refresh"
	MeasurementMatch   = "hub_match"
)

var (
	_ cache.Observer  = (*Client)(nil)
	_ intent.Observer = (*Client)(nil)
)

// RefreshFinished writes one hub_refresh point.
func (c *Client) RefreshFinished(r cache.Report) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(refreshPoint(c.site, r, time.Now()))
}

// BatchMatched writes one hub_match point.
func (c *Client) BatchMatched(b intent.Batch, elapsed time.Duration) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(matchPoint(c.site, b, elapsed, time.Now()))
}

func refreshPoint(site string, r cache.Report, at time.Time) *write.Point {
	tier := r.Tier
	if tier == "" {
		tier = "none"
	}
	return write.NewPoint(
		MeasurementRefresh,
		map[string]string{
			"site":    site,
			"outcome": r.Outcome,
			"tier":    tier,
			"forced":  strconv.FormatBool(r.Forced),
		},
		map[string]any{
			"duration_ms": r.Duration.Milliseconds(),
			"entities":    r.Entities,
			"rejected":    r.Rejected,
			"fallbacks":   len(r.Fallbacks),
		},
		at,
	)
}

func matchPoint(site string, b intent.Batch, elapsed time.Duration, at time.Time) *write.Point {
	var invalid, unmatched, ambiguous int
	for _, o := range b.Outcomes {
		switch {
		case o.Error != nil:
			invalid++
		case o.Matched == 0:
			unmatched++
		case o.Ambiguous:
			ambiguous++
		}
	}
	return write.NewPoint(
		MeasurementMatch,
		map[string]string{"site": site},
		map[string]any{
			"intents":     len(b.Outcomes),
			"commands":    len(b.Commands),
			"invalid":     invalid,
			"unmatched":   unmatched,
			"ambiguous":   ambiguous,
			"duration_ms": float64(elapsed.Microseconds()) / 1000,
		},
		at,
	)
}
