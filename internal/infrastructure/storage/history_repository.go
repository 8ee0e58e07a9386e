package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"NewYorkCrimes/internal/config"
	"NewYorkCrimes/internal/domain"
	"NewYorkCrimes/internal/ports"
)

const (
	historyTable    = "resolutions"
	timestampLayout = "2006-01-02T15:04:05.000000Z"
	trailSeparator  = "\n"
)

const schema = `
CREATE TABLE IF NOT EXISTS resolutions (
  id TEXT PRIMARY KEY,
  original_url TEXT NOT NULL,
  resolved_url TEXT NOT NULL,
  stage TEXT NOT NULL,
  fallback BOOLEAN NOT NULL,
  trail TEXT NOT NULL,
  duration_ms BIGINT NOT NULL,
  created_at TEXT NOT NULL
)`

// HistoryRepository persists finished resolutions into SQLite or Postgres.
type HistoryRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.HistoryRepository = (*HistoryRepository)(nil)

// Open connects using the configured driver.
func Open(cfg config.HistoryConfig) (*HistoryRepository, error) {
	driverName := cfg.Driver
	if driverName == "" {
		driverName = config.DriverSQLite
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driverName, err)
	}
	return NewHistoryRepository(db, driverName), nil
}

// NewHistoryRepository wires a sql.DB; driver selects the placeholder style.
func NewHistoryRepository(db *sql.DB, driver string) *HistoryRepository {
	var placeholder sq.PlaceholderFormat = sq.Question
	if driver == config.DriverPostgres {
		placeholder = sq.Dollar
	}
	return &HistoryRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
}

// Init creates the history table when missing.
func (r *HistoryRepository) Init(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *HistoryRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Record inserts a resolution; replaying the same ID is a no-op.
func (r *HistoryRepository) Record(ctx context.Context, res domain.Resolution) error {
	if r.db == nil {
		return nil
	}

	createdAt := res.StartedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query, args, err := r.builder.
		Insert(historyTable).
		Columns("id", "original_url", "resolved_url", "stage", "fallback", "trail", "duration_ms", "created_at").
		Values(
			res.ID,
			res.Original,
			res.Resolved,
			string(res.Stage),
			res.Fallback,
			strings.Join(res.Trail, trailSeparator),
			res.Duration.Milliseconds(),
			createdAt.UTC().Format(timestampLayout),
		).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert resolution: %w", err)
	}
	return nil
}

// Recent returns the newest resolutions first.
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]domain.Resolution, error) {
	if r.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	query, args, err := r.builder.
		Select("id", "original_url", "resolved_url", "stage", "fallback", "trail", "duration_ms", "created_at").
		From(historyTable).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query resolutions: %w", err)
	}

	var result []domain.Resolution
	for rows.Next() {
		var (
			res        domain.Resolution
			stage      string
			trail      string
			durationMS int64
			createdAt  string
		)
		if err := rows.Scan(&res.ID, &res.Original, &res.Resolved, &stage, &res.Fallback, &trail, &durationMS, &createdAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan resolution: %w", err)
		}
		res.Stage = domain.Stage(stage)
		if trail != "" {
			res.Trail = strings.Split(trail, trailSeparator)
		}
		res.Duration = time.Duration(durationMS) * time.Millisecond
		if parsed, err := time.Parse(timestampLayout, createdAt); err == nil {
			res.StartedAt = parsed
		}
		result = append(result, res)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// Prune deletes resolutions recorded before the cutoff and reports how many
// rows were removed.
func (r *HistoryRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	if r.db == nil {
		return 0, nil
	}

	query, args, err := r.builder.
		Delete(historyTable).
		Where(sq.Lt{"created_at": before.UTC().Format(timestampLayout)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune resolutions: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return removed, nil
}
