// Package probe implements the crowd-sourced measurement cycle: fetch
// the probe target list, time one request per region sequentially,
// and submit the surviving measurements as a single report.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/playfastgg/pingmap/internal/models"
)

const (
	defaultProbeTimeout = 4000 * time.Millisecond
	defaultReportEvery  = 30 * time.Minute

	maxLatencyMs = 5000
)

// ErrThrottled is returned when a cycle is skipped because the last
// report for this game is still inside the throttle window.
var ErrThrottled = errors.New("probe: throttled")

// Target is one probe endpoint supplied by the external probe list.
type Target struct {
	Region string `json:"region"`
	URL    string `json:"url"`
}

// Config for an Agent.
type Config struct {
	Logger     *slog.Logger
	Clock      clockwork.Clock
	HTTPClient *http.Client

	// ProbesURL serves the [{region, url}] target list.
	ProbesURL string
	// ReportURL is the ingestion endpoint.
	ReportURL string
	// Game the measurements are attributed to.
	Game string
	// StatePath is the local last-reported state file.
	StatePath string

	// Optional with defaults.
	ProbeTimeout time.Duration
	ReportEvery  time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.ProbesURL == "" {
		return errors.New("probes URL is required")
	}
	if c.ReportURL == "" {
		return errors.New("report URL is required")
	}
	if c.Game == "" {
		return errors.New("game is required")
	}
	if c.StatePath == "" {
		return errors.New("state path is required")
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.ReportEvery == 0 {
		c.ReportEvery = defaultReportEvery
	}
	return nil
}

// Agent runs measurement cycles for one game.
type Agent struct {
	cfg *Config
}

func New(cfg *Config) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Agent{cfg: cfg}, nil
}

// RunCycle executes one measurement cycle. A cycle interrupted by
// context cancellation reports nothing and leaves the throttle state
// untouched; a cycle that completes naturally updates the throttle
// state no matter how many probes succeeded.
func (a *Agent) RunCycle(ctx context.Context) error {
	state, err := loadState(a.cfg.StatePath)
	if err != nil {
		a.cfg.Logger.Warn("resetting unreadable probe state", "path", a.cfg.StatePath, "error", err)
		state = map[string]time.Time{}
	}

	now := a.cfg.Clock.Now()
	if last, ok := state[a.cfg.Game]; ok && now.Sub(last) < a.cfg.ReportEvery {
		a.cfg.Logger.Debug("cycle throttled", "game", a.cfg.Game, "last", last)
		return ErrThrottled
	}

	targets, err := a.fetchTargets(ctx)
	if err != nil {
		return fmt.Errorf("fetch probe targets: %w", err)
	}

	// Sequential on purpose: probes contending for the visitor's link
	// would skew relative timings between regions.
	var results []models.ReportResult
	for _, t := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if ms, ok := a.measure(ctx, t); ok {
			results = append(results, models.ReportResult{ServerRegion: t.Region, LatencyMs: ms})
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Natural completion: stamp the throttle window first so a failed
	// submission cannot turn into a retry storm.
	state[a.cfg.Game] = a.cfg.Clock.Now()
	if err := saveState(a.cfg.StatePath, state); err != nil {
		a.cfg.Logger.Warn("persisting probe state failed", "path", a.cfg.StatePath, "error", err)
	}

	if len(results) == 0 {
		a.cfg.Logger.Info("cycle finished with no successful probes", "game", a.cfg.Game, "targets", len(targets))
		return nil
	}

	if err := a.report(ctx, results); err != nil {
		return fmt.Errorf("submit report: %w", err)
	}
	a.cfg.Logger.Info("reported measurements", "game", a.cfg.Game, "count", len(results))
	return nil
}

// fetchTargets reads the probe list from the external collaborator.
func (a *Agent) fetchTargets(ctx context.Context) ([]Target, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.ProbesURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("probe list returned %d", resp.StatusCode)
	}

	var targets []Target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// measure times one probe. Failures and timeouts are skipped, never
// recorded as a high-latency value.
func (a *Agent) measure(ctx context.Context, t Target) (float64, bool) {
	pctx, cancel := context.WithTimeout(ctx, a.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pctx, http.MethodGet, t.URL, nil)
	if err != nil {
		a.cfg.Logger.Debug("skipping probe", "region", t.Region, "error", err)
		return 0, false
	}

	start := time.Now()
	resp, err := a.cfg.HTTPClient.Do(req)
	if err != nil {
		a.cfg.Logger.Debug("skipping probe", "region", t.Region, "error", err)
		return 0, false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	ms := float64(time.Since(start)) / float64(time.Millisecond)
	if ms <= 0 || ms >= maxLatencyMs {
		return 0, false
	}
	return ms, true
}

// report submits one batched payload to the ingestion endpoint.
func (a *Agent) report(ctx context.Context, results []models.ReportResult) error {
	now := a.cfg.Clock.Now()
	_, offsetSec := now.Zone()
	tz := float64(offsetSec / 60)
	hour := float64(now.Hour())

	body, err := json.Marshal(models.ReportRequest{
		Game:            a.cfg.Game,
		TzOffsetMinutes: &tz,
		LocalHour:       &hour,
		Results:         results,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.ReportURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("report endpoint returned %d", resp.StatusCode)
	}
	return nil
}
