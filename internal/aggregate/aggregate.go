// Package aggregate assembles heatmap rows from per-region sample
// statistics. It is pure: the store runs the SQL, this package does
// the shaping so it can be tested without a database.
package aggregate

import (
	"math"

	"github.com/playfastgg/pingmap/internal/models"
	"github.com/playfastgg/pingmap/internal/regions"
)

// RegionStat is the per-region average and count for one game.
type RegionStat struct {
	Region     string
	AvgLatency float64
	Samples    int64
}

// HourStat is the average latency for one (region, local hour) bucket.
type HourStat struct {
	Region     string
	Hour       int
	AvgLatency float64
}

// BuildRows produces one row per canonical region. avg_ping is null
// for regions with zero samples. best_hour_local is the hour bucket
// with the lowest average latency, not the most-sampled one; it is
// null when the region has no hour buckets at all.
func BuildRows(stats []RegionStat, hours []HourStat) []models.HeatmapRow {
	statByRegion := make(map[string]RegionStat, len(stats))
	for _, s := range stats {
		statByRegion[s.Region] = s
	}

	type best struct {
		hour int
		avg  float64
	}
	bestByRegion := make(map[string]best)
	for _, h := range hours {
		cur, seen := bestByRegion[h.Region]
		if !seen || h.AvgLatency < cur.avg {
			bestByRegion[h.Region] = best{hour: h.Hour, avg: h.AvgLatency}
		}
	}

	rows := make([]models.HeatmapRow, 0, len(regions.Keys()))
	for _, key := range regions.Keys() {
		row := models.HeatmapRow{Region: key}
		if s, ok := statByRegion[key]; ok && s.Samples > 0 {
			avg := int(math.Round(s.AvgLatency))
			row.AvgPing = &avg
			row.Samples = s.Samples
		}
		if b, ok := bestByRegion[key]; ok {
			hour := b.hour
			row.BestHourLocal = &hour
		}
		rows = append(rows, row)
	}
	return rows
}

// AllZero reports whether every row carries zero samples, meaning the
// live path has nothing to serve.
func AllZero(rows []models.HeatmapRow) bool {
	for _, r := range rows {
		if r.Samples > 0 {
			return false
		}
	}
	return true
}

// FilterRegion keeps only the row for the given canonical key.
func FilterRegion(rows []models.HeatmapRow, key string) []models.HeatmapRow {
	out := make([]models.HeatmapRow, 0, 1)
	for _, r := range rows {
		if r.Region == key {
			out = append(out, r)
		}
	}
	return out
}
