package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/playfastgg/pingmap/internal/metrics"
	"github.com/playfastgg/pingmap/internal/models"
	"github.com/playfastgg/pingmap/internal/regions"
)

const (
	// DefaultGame is stored when a submission carries no usable game name.
	DefaultGame = "Unknown"

	maxGameLen   = 64
	maxBatchSize = 32

	minLatencyMs = 1
	maxLatencyMs = 5000
)

// SampleStore is the slice of the store the report path needs.
type SampleStore interface {
	InsertSamples(ctx context.Context, samples []models.PingSample) (int, error)
}

// ClientIP extracts the caller IP: first entry of X-Forwarded-For,
// else X-Real-IP. Empty when neither header is present; the raw
// transport address is deliberately not used.
func ClientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return strings.TrimSpace(c.GetHeader("X-Real-IP"))
}

// sanitizeGame trims and truncates the game name, substituting the
// placeholder when nothing usable remains. Truncation backs up to a
// rune boundary so the stored value is always valid UTF-8.
func sanitizeGame(game string) string {
	game = strings.TrimSpace(game)
	if game == "" {
		return DefaultGame
	}
	if len(game) > maxGameLen {
		cut := maxGameLen
		for cut > 0 && !utf8.RuneStart(game[cut]) {
			cut--
		}
		game = game[:cut]
	}
	return game
}

// hashIP produces the stored digest of ip salted with the server
// secret. Either part missing means no hash: the raw IP is never kept.
func hashIP(ip, salt string) *string {
	if ip == "" || salt == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(ip + "-" + salt))
	digest := hex.EncodeToString(sum[:])
	return &digest
}

// finiteFloat returns the pointed-to value only when it is a real number.
func finiteFloat(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

// parseHeaderFloat reads a float header value, rejecting non-finite input.
func parseHeaderFloat(c *gin.Context, name string) *float64 {
	raw := strings.TrimSpace(c.GetHeader(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return finiteFloat(&v)
}

// roundToInt rounds an optional float to an optional int.
func roundToInt(v *float64) *int {
	if f := finiteFloat(v); f != nil {
		i := int(math.Round(*f))
		return &i
	}
	return nil
}

// wrapHour rounds and wraps an optional hour into [0,24).
func wrapHour(v *float64) *int {
	i := roundToInt(v)
	if i == nil {
		return nil
	}
	h := ((*i % 24) + 24) % 24
	return &h
}

// optText trims free text, returning nil for empty input.
func optText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// RegisterReportRoutes registers the ingestion-path endpoint.
//
// POST /report
// - Anonymous: the caller IP is salted and hashed, never stored raw
// - Invalid entries inside a batch are dropped, not rejected wholesale
// - Writes nothing unless at least one entry survives validation
func RegisterReportRoutes(r gin.IRoutes, log *slog.Logger, st SampleStore, ipSalt string) {
	r.POST("/report", func(c *gin.Context) {
		var req models.ReportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			metrics.ReportOutcomes.WithLabelValues("malformed").Inc()
			c.JSON(http.StatusBadRequest, models.ReportResponse{Error: "malformed payload"})
			return
		}
		if len(req.Results) == 0 {
			metrics.ReportOutcomes.WithLabelValues("malformed").Inc()
			c.JSON(http.StatusBadRequest, models.ReportResponse{Error: "results required"})
			return
		}

		game := sanitizeGame(req.Game)

		// Body geo fields win; edge headers are the fallback source.
		country := strings.TrimSpace(req.Country)
		if country == "" {
			country = strings.TrimSpace(c.GetHeader("x-vercel-ip-country"))
		}
		city := strings.TrimSpace(req.City)
		if city == "" {
			city = strings.TrimSpace(c.GetHeader("x-vercel-ip-city"))
		}
		lat := finiteFloat(req.Latitude)
		if lat == nil {
			lat = parseHeaderFloat(c, "x-vercel-ip-latitude")
		}
		lon := finiteFloat(req.Longitude)
		if lon == nil {
			lon = parseHeaderFloat(c, "x-vercel-ip-longitude")
		}

		var playerRegion *string
		if key, ok := regions.ResolvePlayer(req.PlayerRegion, lat, lon, country); ok {
			playerRegion = &key
		}

		shared := models.PingSample{
			BatchID:         uuid.New().String(),
			Game:            game,
			PlayerRegion:    playerRegion,
			PlayerCountry:   optText(country),
			PlayerCity:      optText(city),
			PlayerLatitude:  lat,
			PlayerLongitude: lon,
			PlayerTzOffset:  roundToInt(req.TzOffsetMinutes),
			PlayerLocalHour: wrapHour(req.LocalHour),
			IPHash:          hashIP(ClientIP(c), ipSalt),
		}

		results := req.Results
		if len(results) > maxBatchSize {
			results = results[:maxBatchSize]
		}

		samples := make([]models.PingSample, 0, len(results))
		for _, res := range results {
			region, ok := regions.Normalize(res.ServerRegion)
			if !ok {
				metrics.SamplesDropped.WithLabelValues("bad_region").Inc()
				continue
			}
			if math.IsNaN(res.LatencyMs) || math.IsInf(res.LatencyMs, 0) {
				metrics.SamplesDropped.WithLabelValues("bad_latency").Inc()
				continue
			}
			latency := int(math.Round(res.LatencyMs))
			if latency < minLatencyMs || latency > maxLatencyMs {
				metrics.SamplesDropped.WithLabelValues("bad_latency").Inc()
				continue
			}
			s := shared
			s.ServerRegion = region
			s.LatencyMs = latency
			samples = append(samples, s)
		}

		if len(samples) == 0 {
			metrics.ReportOutcomes.WithLabelValues("no_valid_samples").Inc()
			c.JSON(http.StatusUnprocessableEntity, models.ReportResponse{Error: "no valid samples"})
			return
		}

		inserted, err := st.InsertSamples(c.Request.Context(), samples)
		if err != nil {
			log.Error("sample batch insert failed", "error", err, "game", game, "batch", shared.BatchID)
			metrics.ReportOutcomes.WithLabelValues("store_error").Inc()
			c.JSON(http.StatusInternalServerError, models.ReportResponse{Error: "db insert failed"})
			return
		}

		metrics.ReportOutcomes.WithLabelValues("ok").Inc()
		metrics.SamplesInserted.Add(float64(inserted))
		c.JSON(http.StatusOK, models.ReportResponse{OK: true, Inserted: inserted})
	})
}
