// Package db persists analysis runs and their ordered results.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spacesedan/moodlens/config"
	"github.com/spacesedan/moodlens/internal/models"
	"github.com/spacesedan/moodlens/internal/report"
)

var ErrRunNotFound = errors.New("run not found")

// ResultStore saves finished (or partially finished) runs.
type ResultStore interface {
	SaveRun(ctx context.Context, run models.Run, results []models.SentimentResult) error
	GetRun(ctx context.Context, id string) (models.Run, []models.SentimentResult, error)
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]models.Run, error)
	Close() error
}

func NewRunID() string {
	return uuid.NewString()
}

// NewRun describes results produced by one analyzer run. runErr is the
// error the run stopped with, if any; its results are then partial.
func NewRun(mode, backend string, results []models.SentimentResult, runErr error) models.Run {
	run := models.Run{
		ID:        NewRunID(),
		Mode:      mode,
		Backend:   backend,
		CreatedAt: time.Now().UTC(),
		Total:     len(results),
		Counts:    report.Summarize(results),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	return run
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (ResultStore, error) {
	switch cfg.Driver {
	case config.StoreSQLite, "":
		return OpenSQLite(ctx, cfg.Path)
	case config.StoreDynamoDB:
		return OpenDynamo(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
