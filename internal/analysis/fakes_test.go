package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/spacesedan/moodlens/internal/models"
)

type fakeClassifier struct {
	mu      sync.Mutex
	results map[string]models.RawClassification
	errs    map[string]error
	block   bool
	calls   []string
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (models.RawClassification, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return models.RawClassification{}, ctx.Err()
	}
	if err, ok := f.errs[text]; ok {
		return models.RawClassification{}, err
	}
	if res, ok := f.results[text]; ok {
		return res, nil
	}
	return models.RawClassification{Label: "neutral", Score: 1}, nil
}

type batchReply struct {
	content string
	err     error
}

type fakeBatchClient struct {
	replies []batchReply
	calls   [][]string
}

func (f *fakeBatchClient) ClassifyBatch(_ context.Context, comments []string) (string, error) {
	f.calls = append(f.calls, append([]string(nil), comments...))
	if len(f.replies) == 0 {
		return allPositive(len(comments)), nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply.content, reply.err
}

func allPositive(n int) string {
	out := "["
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += `"positive"`
	}
	return out + "]"
}

type recordedWaits struct {
	waits []time.Duration
}

func (r *recordedWaits) wait(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}
