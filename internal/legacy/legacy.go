// Package legacy reads the static historical latency tables and
// weighted-merges them into one per-game view. It backs the heatmap
// when live crowd-sourced data is too thin.
package legacy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/playfastgg/pingmap/internal/models"
	"github.com/playfastgg/pingmap/internal/regions"
)

// defaultBestHour is assumed when no source declares a best hour for
// a (game, region) pair: prime-time evening rather than null.
const defaultBestHour = 21

const mergedCacheKey = "merged"

// Entry is one (game, region) cell of a source table.
type Entry struct {
	AvgPing       *float64 `json:"avg_ping"`
	BestHourLocal *float64 `json:"best_hour_local"`
	Samples       float64  `json:"samples"`
}

// Table is game → region → entry, the shape of every source file.
type Table map[string]map[string]Entry

// merged is one weighted-merged (game, region) cell.
type merged struct {
	avgPing  int
	bestHour int
	samples  int64
	hasAvg   bool
}

type mergedTable map[string]map[string]merged

// Merger loads and merges the static datasets. The source files never
// change at runtime, so the merged table is cached with a short TTL
// instead of being re-parsed on every fallback call.
type Merger struct {
	log          *slog.Logger
	dir          string
	consolidated string
	cache        *ttlcache.Cache[string, mergedTable]
}

// NewMerger builds a merger over a directory of per-source JSON files
// plus one consolidated legacy file. Missing paths are tolerated and
// simply contribute nothing.
func NewMerger(log *slog.Logger, dir, consolidatedFile string, ttl time.Duration) *Merger {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, mergedTable](ttl),
	)
	go cache.Start()
	return &Merger{
		log:          log,
		dir:          dir,
		consolidated: consolidatedFile,
		cache:        cache,
	}
}

// Close stops the cache janitor.
func (m *Merger) Close() {
	m.cache.Stop()
}

// Games returns the sorted set of games present in any source.
func (m *Merger) Games() []string {
	t := m.merged()
	games := make([]string, 0, len(t))
	for g := range t {
		games = append(games, g)
	}
	sort.Strings(games)
	return games
}

// Rows assembles one heatmap row per canonical region for the given
// game, in the exact shape the live path produces. Regions with no
// contributing source get a null avg_ping, zero samples, and the
// prime-time default best hour.
func (m *Merger) Rows(game string) []models.HeatmapRow {
	t := m.merged()
	cells := t[game]

	rows := make([]models.HeatmapRow, 0, len(regions.Keys()))
	for _, key := range regions.Keys() {
		row := models.HeatmapRow{Region: key}
		hour := defaultBestHour
		if c, ok := cells[key]; ok && c.hasAvg {
			avg := c.avgPing
			row.AvgPing = &avg
			row.Samples = c.samples
			hour = c.bestHour
		}
		row.BestHourLocal = &hour
		rows = append(rows, row)
	}
	return rows
}

// merged returns the cached merged table, rebuilding it after expiry.
func (m *Merger) merged() mergedTable {
	if item := m.cache.Get(mergedCacheKey); item != nil {
		return item.Value()
	}
	t := m.build()
	m.cache.Set(mergedCacheKey, t, ttlcache.DefaultTTL)
	return t
}

// accumulator carries the weighted sums for one (game, region) pair.
// Hour weight is tracked apart from the overall weight: only entries
// that actually declare a best hour may vote on it.
type accumulator struct {
	pingWeighted float64
	hourWeighted float64
	weight       float64
	hourWeight   float64
	samples      int64
}

// build loads every source table and folds them into one merged view.
func (m *Merger) build() mergedTable {
	accs := map[string]map[string]*accumulator{}

	for _, src := range m.sources() {
		t, err := readTable(src)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				m.log.Warn("skipping unreadable legacy dataset", "path", src, "error", err)
			}
			continue
		}
		for game, cells := range t {
			for rawRegion, e := range cells {
				key, ok := regions.Normalize(rawRegion)
				if !ok {
					continue
				}
				// Weight is the declared sample count, floored at 1 so a
				// qualitative-only entry still contributes and the later
				// division can never hit zero.
				w := e.Samples
				if w <= 0 {
					w = 1
				}
				if accs[game] == nil {
					accs[game] = map[string]*accumulator{}
				}
				a := accs[game][key]
				if a == nil {
					a = &accumulator{}
					accs[game][key] = a
				}
				if e.AvgPing != nil {
					a.pingWeighted += *e.AvgPing * w
				}
				if e.BestHourLocal != nil {
					a.hourWeighted += *e.BestHourLocal * w
					a.hourWeight += w
				}
				a.weight += w
				a.samples += int64(e.Samples)
			}
		}
	}

	out := mergedTable{}
	for game, cells := range accs {
		out[game] = map[string]merged{}
		for key, a := range cells {
			// No entry carried an hour: fall back to prime time
			// instead of presenting a confident midnight.
			hour := defaultBestHour
			if a.hourWeight > 0 {
				hour = ((int(math.Round(a.hourWeighted/a.hourWeight)) % 24) + 24) % 24
			}
			out[game][key] = merged{
				avgPing:  int(math.Round(a.pingWeighted / a.weight)),
				bestHour: hour,
				samples:  a.samples,
				hasAvg:   true,
			}
		}
	}
	return out
}

// sources lists every per-source file plus the consolidated table.
func (m *Merger) sources() []string {
	var paths []string
	if m.dir != "" {
		matches, err := filepath.Glob(filepath.Join(m.dir, "*.json"))
		if err == nil {
			sort.Strings(matches)
			paths = append(paths, matches...)
		}
	}
	if m.consolidated != "" {
		paths = append(paths, m.consolidated)
	}
	return paths
}

func readTable(path string) (Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t Table
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return t, nil
}
