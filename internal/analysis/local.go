package analysis

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/spacesedan/moodlens/internal/models"
	"github.com/spacesedan/moodlens/internal/sentiment"
)

// Classifier scores a single comment.
type Classifier interface {
	Classify(ctx context.Context, text string) (models.RawClassification, error)
}

// ProgressFunc receives one event per classified comment.
type ProgressFunc func(models.AnalysisProgress)

type LocalOption func(*LocalAnalyzer)

// WithItemFallback records a failing comment as neutral and keeps going
// instead of aborting the run.
func WithItemFallback() LocalOption {
	return func(a *LocalAnalyzer) { a.itemFallback = true }
}

// WithCallTimeout bounds every Classify call. Zero disables the bound.
func WithCallTimeout(d time.Duration) LocalOption {
	return func(a *LocalAnalyzer) { a.callTimeout = d }
}

// LocalAnalyzer classifies comments one after another with an in-process
// model.
type LocalAnalyzer struct {
	classifier   Classifier
	policy       sentiment.Policy
	itemFallback bool
	callTimeout  time.Duration
}

func NewLocalAnalyzer(classifier Classifier, policy sentiment.Policy, opts ...LocalOption) *LocalAnalyzer {
	a := &LocalAnalyzer{classifier: classifier, policy: policy}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Stream yields one progress event per comment, in input order. A non-nil
// error is always the last value yielded.
func (a *LocalAnalyzer) Stream(ctx context.Context, comments []string) iter.Seq2[models.AnalysisProgress, error] {
	return func(yield func(models.AnalysisProgress, error) bool) {
		total := len(comments)
		for i, comment := range comments {
			if err := ctx.Err(); err != nil {
				yield(models.AnalysisProgress{}, err)
				return
			}

			label, err := a.classify(ctx, comment)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					yield(models.AnalysisProgress{}, ctxErr)
					return
				}
				if !a.itemFallback {
					yield(models.AnalysisProgress{}, fmt.Errorf("%w: comment %d of %d: %w", ErrClassifierFailed, i+1, total, err))
					return
				}
				slog.Warn("[LocalAnalyzer] Classification failed, recording neutral",
					slog.Int("index", i),
					slog.String("error", err.Error()))
				label = models.SentimentNeutral
			}

			progress := models.AnalysisProgress{
				Current: i + 1,
				Total:   total,
				Result:  models.SentimentResult{Comment: comment, Sentiment: label},
			}
			if !yield(progress, nil) {
				return
			}
		}
	}
}

// Run drains Stream. On failure it returns the results gathered so far
// together with the error.
func (a *LocalAnalyzer) Run(ctx context.Context, comments []string, onProgress ...ProgressFunc) ([]models.SentimentResult, error) {
	start := time.Now()
	results, err := collect(a.Stream(ctx, comments), len(comments), onProgress)
	if err != nil {
		slog.Error("[LocalAnalyzer] Run aborted",
			slog.Int("completed", len(results)),
			slog.Int("total", len(comments)),
			slog.String("error", err.Error()))
		return results, err
	}

	slog.Info("[LocalAnalyzer] Run complete",
		slog.Int("total", len(results)),
		slog.Duration("elapsed", time.Since(start)))
	return results, nil
}

func (a *LocalAnalyzer) classify(ctx context.Context, comment string) (models.Sentiment, error) {
	if a.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
	}

	raw, err := a.classifier.Classify(ctx, comment)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("classify call exceeded %s: %w", a.callTimeout, err)
		}
		return "", err
	}
	return a.policy.Map(raw), nil
}

func collect(seq iter.Seq2[models.AnalysisProgress, error], total int, onProgress []ProgressFunc) ([]models.SentimentResult, error) {
	results := make([]models.SentimentResult, 0, total)
	for progress, err := range seq {
		if err != nil {
			return results, err
		}
		results = append(results, progress.Result)
		for _, fn := range onProgress {
			if fn != nil {
				fn(progress)
			}
		}
	}
	return results, nil
}
