package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"wingobot/internal/game"
	logx "wingobot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// basePeriod is the first period issued for a category with no recorded
// history yet.
const basePeriod = 790

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AddOutcome(ctx context.Context, o game.Outcome) error {
	if o.At.IsZero() {
		o.At = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO outcomes(period, category, result, color, size, at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(period, category) DO NOTHING`,
		o.Period, string(o.Category), string(o.Result), string(o.Color), string(o.Size),
		o.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Known period; nothing to settle.
		return tx.Commit()
	}

	// Settle the open prediction for this round, if any.
	var pick string
	err = tx.QueryRowContext(ctx,
		`SELECT pick FROM predictions WHERE period = ? AND category = ? AND result IS NULL`,
		o.Period, string(o.Category),
	).Scan(&pick)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return tx.Commit()
	case err != nil:
		return err
	}

	win := game.Matches(game.Label(pick), o)
	if _, err := tx.ExecContext(ctx,
		`UPDATE predictions SET result = ?, win = ? WHERE period = ? AND category = ?`,
		string(o.Result), boolInt(win), o.Period, string(o.Category),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) LatestOutcomes(ctx context.Context, cat game.Category, limit int) ([]game.Outcome, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT period, result, color, size, at FROM outcomes
		 WHERE category = ? ORDER BY period DESC LIMIT ?`,
		string(cat), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]game.Outcome, 0, limit)
	for rows.Next() {
		var (
			o                   game.Outcome
			result, color, size string
			at                  string
		)
		if err := rows.Scan(&o.Period, &result, &color, &size, &at); err != nil {
			return nil, err
		}
		o.Category = cat
		o.Result = game.Label(result)
		o.Color = game.Label(color)
		o.Size = game.Label(size)
		o.At = parseTime(at)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *sqliteStore) NextPeriod(ctx context.Context, cat game.Category) (int64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(period) FROM outcomes WHERE category = ?`, string(cat),
	).Scan(&max)
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return basePeriod, nil
	}
	return max.Int64 + 1, nil
}

func (s *sqliteStore) SavePrediction(ctx context.Context, p game.Prediction) error {
	if p.At.IsZero() {
		p.At = time.Now()
	}
	var result any
	if p.Result != nil {
		result = string(*p.Result)
	}
	var win any
	if p.Win != nil {
		win = boolInt(*p.Win)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO predictions(period, category, pick, result, win, at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(period, category) DO UPDATE SET
		   pick   = excluded.pick,
		   result = COALESCE(excluded.result, predictions.result),
		   win    = COALESCE(excluded.win, predictions.win),
		   at     = excluded.at`,
		p.Period, string(p.Category), string(p.Pick), result, win,
		p.At.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) RecentPredictions(ctx context.Context, cat game.Category, limit int) ([]game.Prediction, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT period, pick, result, win, at FROM predictions
		 WHERE category = ? ORDER BY period DESC LIMIT ?`,
		string(cat), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]game.Prediction, 0, limit)
	for rows.Next() {
		var (
			p      game.Prediction
			pick   string
			result sql.NullString
			win    sql.NullInt64
			at     string
		)
		if err := rows.Scan(&p.Period, &pick, &result, &win, &at); err != nil {
			return nil, err
		}
		p.Category = cat
		p.Pick = game.Label(pick)
		if result.Valid {
			l := game.Label(result.String)
			p.Result = &l
		}
		if win.Valid {
			w := win.Int64 != 0
			p.Win = &w
		}
		p.At = parseTime(at)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) WinRate(ctx context.Context, cat game.Category, window int) (float64, error) {
	if window <= 0 {
		window = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT win FROM predictions
		 WHERE category = ? AND win IS NOT NULL
		 ORDER BY period DESC LIMIT ?`,
		string(cat), window,
	)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var total, wins int
	for rows.Next() {
		var w int
		if err := rows.Scan(&w); err != nil {
			return 0, err
		}
		total++
		if w != 0 {
			wins++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if total == 0 {
		return 0.5, nil
	}
	return float64(wins) / float64(total), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
