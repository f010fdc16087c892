package analysis

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/spacesedan/moodlens/internal/models"
	"github.com/spacesedan/moodlens/internal/utils"
)

const (
	DefaultBatchSize      = 10
	DefaultBatchDelay     = time.Second
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 32 * time.Second
)

// BatchClassifier sends one batch of comments upstream and returns the raw
// completion text.
type BatchClassifier interface {
	ClassifyBatch(ctx context.Context, comments []string) (string, error)
}

type RemoteOptions struct {
	BatchSize  int
	BatchDelay time.Duration
	// RateLimitRetries is how many times a rate-limited batch is retried
	// before the run aborts. Zero aborts on the first 429.
	RateLimitRetries int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
}

func DefaultRemoteOptions() RemoteOptions {
	return RemoteOptions{
		BatchSize:      DefaultBatchSize,
		BatchDelay:     DefaultBatchDelay,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

// RemoteAnalyzer classifies comments in fixed-size batches against a hosted
// gateway, pausing between batches.
type RemoteAnalyzer struct {
	client BatchClassifier
	opts   RemoteOptions
	wait   func(ctx context.Context, d time.Duration) error
}

func NewRemoteAnalyzer(client BatchClassifier, opts RemoteOptions) *RemoteAnalyzer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = 0
	}
	if opts.RateLimitRetries < 0 {
		opts.RateLimitRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	return &RemoteAnalyzer{client: client, opts: opts, wait: sleepContext}
}

// Stream yields one progress event per comment in batch order. A non-nil
// error is always the last value yielded.
func (a *RemoteAnalyzer) Stream(ctx context.Context, comments []string) iter.Seq2[models.AnalysisProgress, error] {
	return func(yield func(models.AnalysisProgress, error) bool) {
		total := len(comments)
		batches := utils.Chunk(comments, a.opts.BatchSize)
		current := 0

		for i, batch := range batches {
			if i > 0 && a.opts.BatchDelay > 0 {
				if err := a.wait(ctx, a.opts.BatchDelay); err != nil {
					yield(models.AnalysisProgress{}, err)
					return
				}
			}

			slog.Debug("[RemoteAnalyzer] Sending batch",
				slog.Int("batch", i+1),
				slog.Int("batches", len(batches)),
				slog.Int("batch_size", len(batch)))

			content, err := a.classifyBatch(ctx, batch)
			if err != nil {
				yield(models.AnalysisProgress{}, err)
				return
			}

			labels := ParseBatchLabels(content, len(batch))
			for j, comment := range batch {
				current++
				progress := models.AnalysisProgress{
					Current: current,
					Total:   total,
					Result:  models.SentimentResult{Comment: comment, Sentiment: labels[j]},
				}
				if !yield(progress, nil) {
					return
				}
			}
		}
	}
}

// Run drains Stream. On failure it returns the results of the batches that
// completed together with the error; the caller decides whether to keep them.
func (a *RemoteAnalyzer) Run(ctx context.Context, comments []string, onProgress ...ProgressFunc) ([]models.SentimentResult, error) {
	start := time.Now()
	results, err := collect(a.Stream(ctx, comments), len(comments), onProgress)
	if err != nil {
		slog.Error("[RemoteAnalyzer] Run aborted",
			slog.Int("completed", len(results)),
			slog.Int("total", len(comments)),
			slog.String("error", err.Error()))
		return results, err
	}

	slog.Info("[RemoteAnalyzer] Run complete",
		slog.Int("total", len(results)),
		slog.Duration("elapsed", time.Since(start)))
	return results, nil
}

func (a *RemoteAnalyzer) classifyBatch(ctx context.Context, batch []string) (string, error) {
	backoff := a.opts.InitialBackoff

	for attempt := 0; ; attempt++ {
		content, err := a.client.ClassifyBatch(ctx, batch)
		if err == nil {
			return content, nil
		}

		err = classifyError(err)
		if !errors.Is(err, ErrRateLimited) || attempt >= a.opts.RateLimitRetries {
			return "", err
		}

		slog.Warn("[RemoteAnalyzer] Rate limited, backing off",
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff))

		if werr := a.wait(ctx, backoff); werr != nil {
			return "", werr
		}
		backoff = min(backoff*2, a.opts.MaxBackoff)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
