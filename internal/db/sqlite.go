package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/spacesedan/moodlens/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    mode        TEXT NOT NULL,
    backend     TEXT NOT NULL,
    created_at  TEXT NOT NULL,
    total       INTEGER NOT NULL,
    positive    INTEGER NOT NULL DEFAULT 0,
    negative    INTEGER NOT NULL DEFAULT 0,
    neutral     INTEGER NOT NULL DEFAULT 0,
    error       TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE TABLE IF NOT EXISTS run_results (
    run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    idx         INTEGER NOT NULL,
    comment     TEXT NOT NULL,
    sentiment   TEXT NOT NULL,
    PRIMARY KEY (run_id, idx)
);`

// fixed-width so created_at sorts lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const resultInsertChunk = 500

var runColumns = []string{"id", "mode", "backend", "created_at", "total", "positive", "negative", "neutral", "error"}

// SQLiteStore keeps runs in a local SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
	sb   sq.StatementBuilderType
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	slog.Info("[SQLiteStore] Opened run store", slog.String("path", path))
	return &SQLiteStore{db: db, path: path, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run models.Run, results []models.SentimentResult) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query, args, err := s.sb.Insert("runs").Columns(runColumns...).Values(
		run.ID,
		run.Mode,
		run.Backend,
		run.CreatedAt.UTC().Format(timeLayout),
		run.Total,
		run.Counts[models.SentimentPositive],
		run.Counts[models.SentimentNegative],
		run.Counts[models.SentimentNeutral],
		nullableString(run.Error),
	).ToSql()
	if err != nil {
		return fmt.Errorf("build run insert: %w", err)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for start := 0; start < len(results); start += resultInsertChunk {
		end := min(start+resultInsertChunk, len(results))
		insert := s.sb.Insert("run_results").Columns("run_id", "idx", "comment", "sentiment")
		for i := start; i < end; i++ {
			insert = insert.Values(run.ID, i, results[i].Comment, string(results[i].Sentiment))
		}
		query, args, err = insert.ToSql()
		if err != nil {
			return fmt.Errorf("build results insert: %w", err)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert results: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}

	slog.Info("[SQLiteStore] Run saved",
		slog.String("run_id", run.ID),
		slog.Int("results", len(results)))
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (models.Run, []models.SentimentResult, error) {
	query, args, err := s.sb.Select(runColumns...).From("runs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return models.Run{}, nil, fmt.Errorf("build run query: %w", err)
	}

	run, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Run{}, nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return models.Run{}, nil, fmt.Errorf("get run: %w", err)
	}

	query, args, err = s.sb.Select("comment", "sentiment").From("run_results").
		Where(sq.Eq{"run_id": id}).OrderBy("idx ASC").ToSql()
	if err != nil {
		return models.Run{}, nil, fmt.Errorf("build results query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return models.Run{}, nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := make([]models.SentimentResult, 0, run.Total)
	for rows.Next() {
		var r models.SentimentResult
		var sentiment string
		if err := rows.Scan(&r.Comment, &sentiment); err != nil {
			return models.Run{}, nil, fmt.Errorf("scan result: %w", err)
		}
		r.Sentiment = models.ParseSentiment(sentiment)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return models.Run{}, nil, fmt.Errorf("iterate results: %w", err)
	}

	return run, results, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	builder := s.sb.Select(runColumns...).From("runs").OrderBy("created_at DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (models.Run, error) {
	var (
		run                         models.Run
		createdAt                   string
		positive, negative, neutral int
		runErr                      sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Mode, &run.Backend, &createdAt, &run.Total, &positive, &negative, &neutral, &runErr); err != nil {
		return models.Run{}, err
	}

	parsed, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return models.Run{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	run.CreatedAt = parsed
	run.Counts = map[models.Sentiment]int{
		models.SentimentPositive: positive,
		models.SentimentNegative: negative,
		models.SentimentNeutral:  neutral,
	}
	run.Error = runErr.String
	return run, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
