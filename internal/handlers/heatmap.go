package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playfastgg/pingmap/internal/aggregate"
	"github.com/playfastgg/pingmap/internal/legacy"
	"github.com/playfastgg/pingmap/internal/metrics"
	"github.com/playfastgg/pingmap/internal/models"
	"github.com/playfastgg/pingmap/internal/regions"
)

// HeatmapStore is the read-only slice of the store the heatmap needs.
type HeatmapStore interface {
	DistinctGames(ctx context.Context) ([]string, error)
	RegionStats(ctx context.Context, game string) ([]aggregate.RegionStat, error)
	RegionHourStats(ctx context.Context, game string) ([]aggregate.HourStat, error)
}

// pickGame prefers the requested game when present, else the first.
func pickGame(requested string, games []string) string {
	for _, g := range games {
		if g == requested {
			return g
		}
	}
	return games[0]
}

// RegisterHeatmapRoutes registers the serving-path endpoint.
//
// GET /heatmap?game=&region=
// Never hard-fails on missing data: live aggregates, then the legacy
// datasets, then an explicit empty marker, all with HTTP 200.
func RegisterHeatmapRoutes(r gin.IRoutes, log *slog.Logger, st HeatmapStore, merger *legacy.Merger) {
	r.GET("/heatmap", func(c *gin.Context) {
		requested := c.Query("game")

		resp, ok := liveHeatmap(c.Request.Context(), log, st, requested)
		if !ok {
			resp, ok = legacyHeatmap(merger, requested)
		}
		if !ok {
			metrics.HeatmapRequests.WithLabelValues("none").Inc()
			c.JSON(http.StatusOK, models.HeatmapResponse{
				Data:    []models.HeatmapRow{},
				Games:   []string{},
				Regions: regions.Keys(),
				Reason:  "no datasets available",
			})
			return
		}

		if key, found := regions.Normalize(c.Query("region")); found {
			resp.Data = aggregate.FilterRegion(resp.Data, key)
		}

		metrics.HeatmapRequests.WithLabelValues(resp.Source).Inc()
		c.JSON(http.StatusOK, resp)
	})
}

// liveHeatmap serves crowd-sourced aggregates. It returns false when
// the live path is unusable: no stored games, a store error (degrade,
// do not surface), or only zero-sample rows.
func liveHeatmap(ctx context.Context, log *slog.Logger, st HeatmapStore, requested string) (models.HeatmapResponse, bool) {
	games, err := st.DistinctGames(ctx)
	if err != nil {
		log.Warn("live heatmap unavailable, falling back", "error", err)
		return models.HeatmapResponse{}, false
	}
	if len(games) == 0 {
		return models.HeatmapResponse{}, false
	}

	game := pickGame(requested, games)

	stats, err := st.RegionStats(ctx, game)
	if err != nil {
		log.Warn("live heatmap unavailable, falling back", "error", err)
		return models.HeatmapResponse{}, false
	}
	hours, err := st.RegionHourStats(ctx, game)
	if err != nil {
		log.Warn("live heatmap unavailable, falling back", "error", err)
		return models.HeatmapResponse{}, false
	}

	rows := aggregate.BuildRows(stats, hours)
	if aggregate.AllZero(rows) {
		return models.HeatmapResponse{}, false
	}

	return models.HeatmapResponse{
		OK:      true,
		Games:   games,
		Regions: regions.Keys(),
		Data:    rows,
		Game:    game,
		Source:  "live",
	}, true
}

// legacyHeatmap serves the weighted-merged historical datasets.
func legacyHeatmap(merger *legacy.Merger, requested string) (models.HeatmapResponse, bool) {
	games := merger.Games()
	if len(games) == 0 {
		return models.HeatmapResponse{}, false
	}

	game := pickGame(requested, games)
	return models.HeatmapResponse{
		OK:      true,
		Games:   games,
		Regions: regions.Keys(),
		Data:    merger.Rows(game),
		Game:    game,
		Source:  "legacy",
	}, true
}
