// Package storage persists game outcomes and the bot's own predictions in
// SQLite. It is both the archive (win-rate history) and the fallback feed
// when the remote records endpoint is unreachable.
package storage

import (
	"context"
	"time"

	"wingobot/internal/game"
	logx "wingobot/pkg/logx"
)

type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Store is the persistence surface used by the predictor and updater.
type Store interface {
	Close() error

	// AddOutcome records a finished round. Inserting an outcome settles any
	// open prediction for the same (period, category): the prediction's
	// result and win flag are filled in atomically with the insert.
	// Re-inserting a known period is a no-op.
	AddOutcome(ctx context.Context, o game.Outcome) error

	// LatestOutcomes returns up to limit outcomes for the category, newest
	// first by period.
	LatestOutcomes(ctx context.Context, cat game.Category, limit int) ([]game.Outcome, error)

	// NextPeriod returns max(period)+1 for the category, or the base period
	// when the category has no outcomes yet.
	NextPeriod(ctx context.Context, cat game.Category) (int64, error)

	// SavePrediction upserts the prediction keyed by (period, category).
	// Saving again for the same round replaces the pick; settled fields are
	// preserved unless the new prediction carries its own.
	SavePrediction(ctx context.Context, p game.Prediction) error

	// RecentPredictions returns up to limit predictions for the category,
	// newest first by period, settled or not.
	RecentPredictions(ctx context.Context, cat game.Category, limit int) ([]game.Prediction, error)

	// WinRate returns the win fraction over the last window settled
	// predictions for the category. With no settled history it returns 0.5
	// so the steering logic starts from a neutral baseline.
	WinRate(ctx context.Context, cat game.Category, window int) (float64, error)
}

// Open opens (creating if needed) the SQLite store at cfg.Path and applies
// migrations.
func Open(cfg Config, log logx.Logger) (Store, error) {
	return openSQLite(cfg, log)
}
