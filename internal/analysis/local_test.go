package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spacesedan/moodlens/internal/models"
	"github.com/spacesedan/moodlens/internal/sentiment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalAnalyzer_RunMapsThroughPolicy(t *testing.T) {
	classifier := &fakeClassifier{results: map[string]models.RawClassification{
		"I love this":   {Label: "POSITIVE", Score: 0.95},
		"This is awful": {Label: "NEGATIVE", Score: 0.9},
		"It's okay":     {Label: "POSITIVE", Score: 0.5},
	}}
	analyzer := NewLocalAnalyzer(classifier, sentiment.Cutoff(0.7))

	var events []models.AnalysisProgress
	results, err := analyzer.Run(context.Background(),
		[]string{"I love this", "This is awful", "It's okay"},
		func(p models.AnalysisProgress) { events = append(events, p) })
	require.NoError(t, err)

	assert.Equal(t, []models.SentimentResult{
		{Comment: "I love this", Sentiment: models.SentimentPositive},
		{Comment: "This is awful", Sentiment: models.SentimentNegative},
		{Comment: "It's okay", Sentiment: models.SentimentNeutral},
	}, results)

	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, i+1, e.Current)
		assert.Equal(t, 3, e.Total)
		assert.Equal(t, results[i], e.Result)
	}
	assert.Equal(t, []string{"I love this", "This is awful", "It's okay"}, classifier.calls)
}

func TestLocalAnalyzer_EmptyInput(t *testing.T) {
	called := false
	results, err := NewLocalAnalyzer(&fakeClassifier{}, sentiment.Ternary()).
		Run(context.Background(), nil, func(models.AnalysisProgress) { called = true })

	require.NoError(t, err)
	assert.Empty(t, results)
	assert.False(t, called)
}

func TestLocalAnalyzer_AbortsOnFirstError(t *testing.T) {
	boom := errors.New("onnx runtime exploded")
	classifier := &fakeClassifier{errs: map[string]error{"b": boom}}
	analyzer := NewLocalAnalyzer(classifier, sentiment.Ternary())

	results, err := analyzer.Run(context.Background(), []string{"a", "b", "c"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClassifierFailed)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, results, 1)
	assert.Equal(t, []string{"a", "b"}, classifier.calls)
}

func TestLocalAnalyzer_ItemFallback(t *testing.T) {
	classifier := &fakeClassifier{
		results: map[string]models.RawClassification{"a": {Label: "positive", Score: 1}, "c": {Label: "negative", Score: 1}},
		errs:    map[string]error{"b": errors.New("bad input")},
	}
	analyzer := NewLocalAnalyzer(classifier, sentiment.Ternary(), WithItemFallback())

	results, err := analyzer.Run(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, []models.Sentiment{
		models.SentimentPositive, models.SentimentNeutral, models.SentimentNegative,
	}, sentiments(results))
}

func TestLocalAnalyzer_CallTimeout(t *testing.T) {
	classifier := &fakeClassifier{block: true}

	_, err := NewLocalAnalyzer(classifier, sentiment.Ternary(), WithCallTimeout(10*time.Millisecond)).
		Run(context.Background(), []string{"slow"})
	assert.ErrorIs(t, err, ErrClassifierFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	results, err := NewLocalAnalyzer(classifier, sentiment.Ternary(), WithCallTimeout(10*time.Millisecond), WithItemFallback()).
		Run(context.Background(), []string{"slow", "slower"})
	require.NoError(t, err)
	assert.Equal(t, []models.Sentiment{models.SentimentNeutral, models.SentimentNeutral}, sentiments(results))
}

func TestLocalAnalyzer_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	classifier := &fakeClassifier{}
	results, err := NewLocalAnalyzer(classifier, sentiment.Ternary(), WithItemFallback()).
		Run(ctx, []string{"a", "b"})

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrClassifierFailed)
	assert.Empty(t, results)
	assert.Empty(t, classifier.calls)
}

func TestLocalAnalyzer_StreamStopsWhenConsumerBreaks(t *testing.T) {
	classifier := &fakeClassifier{}
	analyzer := NewLocalAnalyzer(classifier, sentiment.Ternary())

	for progress, err := range analyzer.Stream(context.Background(), []string{"a", "b", "c"}) {
		require.NoError(t, err)
		assert.Equal(t, 1, progress.Current)
		break
	}
	assert.Equal(t, []string{"a"}, classifier.calls)
}

func sentiments(results []models.SentimentResult) []models.Sentiment {
	out := make([]models.Sentiment, len(results))
	for i, r := range results {
		out[i] = r.Sentiment
	}
	return out
}
