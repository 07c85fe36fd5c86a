package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/playfastgg/pingmap/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// probesServer serves a fixed target list pointing every region at
// the given URL.
func probesServer(t *testing.T, regionURLs map[string]string) *httptest.Server {
	t.Helper()

	var targets []Target
	for region, url := range regionURLs {
		targets = append(targets, Target{Region: region, URL: url})
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(targets)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// reportSink captures report submissions.
type reportSink struct {
	hits     atomic.Int64
	lastBody atomic.Pointer[models.ReportRequest]
}

func (s *reportSink) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.ReportRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.lastBody.Store(&req)
		s.hits.Add(1)
		_ = json.NewEncoder(w).Encode(models.ReportResponse{OK: true, Inserted: len(req.Results)})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAgent(t *testing.T, probesURL, reportURL string, clock clockwork.Clock, statePath string) *Agent {
	t.Helper()
	a, err := New(&Config{
		Logger:       testLogger(),
		Clock:        clock,
		ProbesURL:    probesURL,
		ReportURL:    reportURL,
		Game:         "Roblox",
		StatePath:    statePath,
		ProbeTimeout: 500 * time.Millisecond,
	})
	require.NoError(t, err)
	return a
}

func TestAgent_RunCycle_MeasuresAndReports(t *testing.T) {
	t.Parallel()

	okTarget := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(okTarget.Close)

	probes := probesServer(t, map[string]string{
		"NA-East": okTarget.URL,
		"EU-West": okTarget.URL,
	})
	sink := &reportSink{}
	report := sink.server(t)

	statePath := filepath.Join(t.TempDir(), "state.json")
	a := newAgent(t, probes.URL, report.URL, clockwork.NewRealClock(), statePath)

	require.NoError(t, a.RunCycle(context.Background()))

	require.EqualValues(t, 1, sink.hits.Load())
	body := sink.lastBody.Load()
	require.NotNil(t, body)
	require.Equal(t, "Roblox", body.Game)
	require.NotNil(t, body.TzOffsetMinutes)
	require.NotNil(t, body.LocalHour)
	require.Len(t, body.Results, 2)
	for _, r := range body.Results {
		require.Contains(t, []string{"NA-East", "EU-West"}, r.ServerRegion)
		require.Greater(t, r.LatencyMs, 0.0)
		require.Less(t, r.LatencyMs, 5000.0)
	}

	// Throttle state was stamped.
	state, err := loadState(statePath)
	require.NoError(t, err)
	require.Contains(t, state, "Roblox")
}

func TestAgent_RunCycle_ThrottledWithinWindow(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	statePath := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, saveState(statePath, map[string]time.Time{
		"Roblox": clock.Now().Add(-10 * time.Minute),
	}))

	probes := probesServer(t, map[string]string{"NA-East": "http://127.0.0.1:1/unused"})
	sink := &reportSink{}
	report := sink.server(t)

	a := newAgent(t, probes.URL, report.URL, clock, statePath)
	require.ErrorIs(t, a.RunCycle(context.Background()), ErrThrottled)
	require.EqualValues(t, 0, sink.hits.Load())

	// Past the window the cycle runs again.
	clock.Advance(25 * time.Minute)
	require.NoError(t, a.RunCycle(context.Background()))
}

func TestAgent_RunCycle_FailedProbesSkippedNotRecorded(t *testing.T) {
	t.Parallel()

	okTarget := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(okTarget.Close)

	probes := probesServer(t, map[string]string{
		"NA-East": okTarget.URL,
		"EU-West": "http://127.0.0.1:1/unreachable",
	})
	sink := &reportSink{}
	report := sink.server(t)

	a := newAgent(t, probes.URL, report.URL, clockwork.NewRealClock(), filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, a.RunCycle(context.Background()))

	body := sink.lastBody.Load()
	require.NotNil(t, body)
	require.Len(t, body.Results, 1)
	require.Equal(t, "NA-East", body.Results[0].ServerRegion)
}

func TestAgent_RunCycle_CancellationSuppressesReportAndStateUpdate(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	var served atomic.Int64
	slowTarget := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Tear the page down after the second probe completes.
		if served.Add(1) == 2 {
			cancel()
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(slowTarget.Close)

	regionURLs := map[string]string{}
	for _, r := range []string{"NA-East", "NA-West", "EU-West", "Asia-East", "OCE"} {
		regionURLs[r] = slowTarget.URL
	}
	probes := probesServer(t, regionURLs)
	sink := &reportSink{}
	report := sink.server(t)

	statePath := filepath.Join(t.TempDir(), "state.json")
	a := newAgent(t, probes.URL, report.URL, clockwork.NewRealClock(), statePath)

	require.ErrorIs(t, a.RunCycle(ctx), context.Canceled)

	// No report was sent and the throttle state was never written.
	require.EqualValues(t, 0, sink.hits.Load())
	_, err := os.Stat(statePath)
	require.True(t, os.IsNotExist(err))
}

func TestAgent_RunCycle_ZeroSuccessesStillStampsThrottle(t *testing.T) {
	t.Parallel()

	probes := probesServer(t, map[string]string{"NA-East": "http://127.0.0.1:1/unreachable"})
	sink := &reportSink{}
	report := sink.server(t)

	statePath := filepath.Join(t.TempDir(), "state.json")
	a := newAgent(t, probes.URL, report.URL, clockwork.NewRealClock(), statePath)

	require.NoError(t, a.RunCycle(context.Background()))
	require.EqualValues(t, 0, sink.hits.Load())

	// The window still closes, so a broken network cannot retry-storm.
	state, err := loadState(statePath)
	require.NoError(t, err)
	require.Contains(t, state, "Roblox")
}

func TestAgent_RunCycle_ProbeTimeoutDoesNotStallCycle(t *testing.T) {
	t.Parallel()

	stall := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(stall.Close)
	okTarget := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(okTarget.Close)

	probes := probesServer(t, map[string]string{
		"NA-East": stall.URL,
		"EU-West": okTarget.URL,
	})
	sink := &reportSink{}
	report := sink.server(t)

	a := newAgent(t, probes.URL, report.URL, clockwork.NewRealClock(), filepath.Join(t.TempDir(), "state.json"))

	start := time.Now()
	require.NoError(t, a.RunCycle(context.Background()))
	require.Less(t, time.Since(start), 3*time.Second)

	body := sink.lastBody.Load()
	require.NotNil(t, body)
	require.Len(t, body.Results, 1)
	require.Equal(t, "EU-West", body.Results[0].ServerRegion)
}

func TestConfig_Validate_Defaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Logger:    testLogger(),
		ProbesURL: "http://example.test/probes",
		ReportURL: "http://example.test/report",
		Game:      "Roblox",
		StatePath: filepath.Join(t.TempDir(), "state.json"),
	}
	require.NoError(t, cfg.Validate())
	require.Equal(t, 4000*time.Millisecond, cfg.ProbeTimeout)
	require.Equal(t, 30*time.Minute, cfg.ReportEvery)
	require.NotNil(t, cfg.Clock)
	require.NotNil(t, cfg.HTTPClient)

	require.Error(t, (&Config{}).Validate())
}
