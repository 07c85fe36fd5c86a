package legacy

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/playfastgg/pingmap/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func writeJSON(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func rowFor(t *testing.T, rows []models.HeatmapRow, region string) models.HeatmapRow {
	t.Helper()
	for _, r := range rows {
		if r.Region == region {
			return r
		}
	}
	t.Fatalf("no row for region %s", region)
	return models.HeatmapRow{}
}

func TestMerger_WeightedMergeAcrossSources(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "source-a.json"),
		`{"Roblox":{"NA-East":{"avg_ping":20,"best_hour_local":3,"samples":10}}}`)
	writeJSON(t, filepath.Join(dir, "source-b.json"),
		`{"Roblox":{"NA-East":{"avg_ping":40,"best_hour_local":3,"samples":30}}}`)

	m := NewMerger(testLogger(), dir, "", time.Minute)
	defer m.Close()

	rows := m.Rows("Roblox")
	na := rowFor(t, rows, "NA-East")

	// (20×10 + 40×30) / 40 = 35, weighted by declared sample counts.
	require.NotNil(t, na.AvgPing)
	require.Equal(t, 35, *na.AvgPing)
	require.EqualValues(t, 40, na.Samples)
	require.NotNil(t, na.BestHourLocal)
	require.Equal(t, 3, *na.BestHourLocal)
}

func TestMerger_ZeroSamplesEntryStillContributesWithWeightOne(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "qualitative.json"),
		`{"Roblox":{"EU-West":{"avg_ping":80,"best_hour_local":19,"samples":0}}}`)

	m := NewMerger(testLogger(), dir, "", time.Minute)
	defer m.Close()

	eu := rowFor(t, m.Rows("Roblox"), "EU-West")
	require.NotNil(t, eu.AvgPing)
	require.Equal(t, 80, *eu.AvgPing)
	require.EqualValues(t, 0, eu.Samples)
	require.Equal(t, 19, *eu.BestHourLocal)
}

func TestMerger_NoHourSignalFallsBackToPrimeTime(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "source.json"),
		`{"Roblox":{"NA-East":{"avg_ping":42,"samples":8}}}`)

	m := NewMerger(testLogger(), dir, "", time.Minute)
	defer m.Close()

	// Contributors exist for the pair but none declared a best hour:
	// the merged row must say prime time, not midnight.
	na := rowFor(t, m.Rows("Roblox"), "NA-East")
	require.NotNil(t, na.AvgPing)
	require.Equal(t, 42, *na.AvgPing)
	require.NotNil(t, na.BestHourLocal)
	require.Equal(t, 21, *na.BestHourLocal)
}

func TestMerger_OnlyHourCarryingEntriesVoteOnBestHour(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "with-hour.json"),
		`{"Roblox":{"NA-East":{"avg_ping":20,"best_hour_local":3,"samples":10}}}`)
	writeJSON(t, filepath.Join(dir, "without-hour.json"),
		`{"Roblox":{"NA-East":{"avg_ping":40,"samples":30}}}`)

	m := NewMerger(testLogger(), dir, "", time.Minute)
	defer m.Close()

	na := rowFor(t, m.Rows("Roblox"), "NA-East")

	// The hourless source still weighs into the average...
	require.NotNil(t, na.AvgPing)
	require.Equal(t, 35, *na.AvgPing)

	// ...but not into the best hour, which would otherwise be dragged
	// toward zero by the silent source's weight.
	require.NotNil(t, na.BestHourLocal)
	require.Equal(t, 3, *na.BestHourLocal)
}

func TestMerger_NoContributorsDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "source.json"),
		`{"Roblox":{"NA-East":{"avg_ping":20,"samples":5}}}`)

	m := NewMerger(testLogger(), dir, "", time.Minute)
	defer m.Close()

	// A pair nothing contributed to: null average, prime-time default.
	oce := rowFor(t, m.Rows("Roblox"), "OCE")
	require.Nil(t, oce.AvgPing)
	require.EqualValues(t, 0, oce.Samples)
	require.NotNil(t, oce.BestHourLocal)
	require.Equal(t, 21, *oce.BestHourLocal)
}

func TestMerger_ConsolidatedFileAndGames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "source.json"),
		`{"Valorant":{"NA-East":{"avg_ping":30,"samples":4}}}`)
	consolidated := filepath.Join(t.TempDir(), "consolidated.json")
	writeJSON(t, consolidated,
		`{"Roblox":{"na-east":{"avg_ping":50,"samples":2}}}`)

	m := NewMerger(testLogger(), dir, consolidated, time.Minute)
	defer m.Close()

	require.Equal(t, []string{"Roblox", "Valorant"}, m.Games())

	// Region keys in source files are normalized, not matched verbatim.
	na := rowFor(t, m.Rows("Roblox"), "NA-East")
	require.NotNil(t, na.AvgPing)
	require.Equal(t, 50, *na.AvgPing)
}

func TestMerger_IgnoresBrokenAndUnknownInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "broken.json"), `{not json`)
	writeJSON(t, filepath.Join(dir, "odd.json"),
		`{"Roblox":{"Atlantis":{"avg_ping":10,"samples":3}}}`)

	m := NewMerger(testLogger(), dir, filepath.Join(dir, "missing", "nope.json"), time.Minute)
	defer m.Close()

	require.Empty(t, m.Games())
}

func TestMerger_MissingDirYieldsNoGames(t *testing.T) {
	t.Parallel()

	m := NewMerger(testLogger(), filepath.Join(t.TempDir(), "absent"), "", time.Minute)
	defer m.Close()

	require.Empty(t, m.Games())
	require.Len(t, m.Rows("Roblox"), 12)
}
