package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// RunRetention purges samples older than the rolling window, once at
// startup and then daily, until the context is cancelled. A window of
// zero or less disables retention entirely (keep forever).
func (p *PostgresStore) RunRetention(ctx context.Context, log *slog.Logger, clock clockwork.Clock, retentionDays int) {
	if retentionDays <= 0 {
		return
	}

	sweep := func() {
		cutoff := clock.Now().AddDate(0, 0, -retentionDays)
		purged, err := p.PurgeOlderThan(ctx, cutoff)
		if err != nil {
			log.Error("retention sweep failed", "error", err)
			return
		}
		if purged > 0 {
			log.Info("retention sweep purged samples", "purged", purged, "cutoff", cutoff)
		}
	}

	sweep()

	ticker := clock.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			sweep()
		}
	}
}
