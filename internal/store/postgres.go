package store

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/playfastgg/pingmap/internal/aggregate"
	"github.com/playfastgg/pingmap/internal/models"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the durable persistence layer for ping samples.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema() error {
	_, err := p.pool.Exec(context.Background(), schemaSQL)
	return err
}

// Ping is used by readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// InsertSamples persists one submission's surviving records as a unit,
// in a single round trip. Returns the number of rows written.
func (p *PostgresStore) InsertSamples(ctx context.Context, samples []models.PingSample) (int, error) {
	if len(samples) == 0 {
		return 0, errors.New("no samples to insert")
	}

	batch := &pgx.Batch{}
	for _, s := range samples {
		batch.Queue(`
			INSERT INTO ping_samples(
				batch_id, game, server_region, latency_ms,
				player_region, player_country, player_city,
				player_latitude, player_longitude,
				player_tz_offset, player_local_hour, ip_hash)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`,
			s.BatchID, s.Game, s.ServerRegion, s.LatencyMs,
			s.PlayerRegion, s.PlayerCountry, s.PlayerCity,
			s.PlayerLatitude, s.PlayerLongitude,
			s.PlayerTzOffset, s.PlayerLocalHour, s.IPHash,
		)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range samples {
		if _, err := results.Exec(); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

// DistinctGames lists every game with at least one stored sample, sorted.
func (p *PostgresStore) DistinctGames(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT DISTINCT game
		FROM ping_samples
		ORDER BY game
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// RegionStats computes the per-region average latency and sample count
// for one game.
func (p *PostgresStore) RegionStats(ctx context.Context, game string) ([]aggregate.RegionStat, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT server_region, AVG(latency_ms), COUNT(*)
		FROM ping_samples
		WHERE game = $1
		GROUP BY server_region
	`, game)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []aggregate.RegionStat
	for rows.Next() {
		var s aggregate.RegionStat
		if err := rows.Scan(&s.Region, &s.AvgLatency, &s.Samples); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// RegionHourStats computes average latency per (region, local hour)
// bucket, restricted to samples that carried a local hour.
func (p *PostgresStore) RegionHourStats(ctx context.Context, game string) ([]aggregate.HourStat, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT server_region, player_local_hour, AVG(latency_ms)
		FROM ping_samples
		WHERE game = $1 AND player_local_hour IS NOT NULL
		GROUP BY server_region, player_local_hour
		ORDER BY server_region, player_local_hour
	`, game)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []aggregate.HourStat
	for rows.Next() {
		var s aggregate.HourStat
		if err := rows.Scan(&s.Region, &s.Hour, &s.AvgLatency); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// PurgeOlderThan deletes samples created before the cutoff. Only the
// retention sweeper calls this; the ingestion path never deletes.
func (p *PostgresStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM ping_samples
		WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
