package report

import (
	"strings"
	"testing"
	"time"

	"github.com/spacesedan/moodlens/internal/models"
	"github.com/stretchr/testify/assert"
)

func results(sentiments ...models.Sentiment) []models.SentimentResult {
	out := make([]models.SentimentResult, len(sentiments))
	for i, s := range sentiments {
		out[i] = models.SentimentResult{Comment: "c", Sentiment: s}
	}
	return out
}

func TestSummarize(t *testing.T) {
	counts := Summarize(results(models.SentimentPositive, models.SentimentPositive, models.SentimentNeutral))
	assert.Equal(t, map[models.Sentiment]int{
		models.SentimentPositive: 2,
		models.SentimentNegative: 0,
		models.SentimentNeutral:  1,
	}, counts)
}

func TestSummarize_Empty(t *testing.T) {
	counts := Summarize(nil)
	assert.Len(t, counts, 3)
	for _, c := range counts {
		assert.Zero(t, c)
	}
}

func TestShares(t *testing.T) {
	shares := Shares(map[models.Sentiment]int{models.SentimentPositive: 1, models.SentimentNegative: 3}, 4)

	assert.Equal(t, []Share{
		{Sentiment: models.SentimentPositive, Count: 1, Percent: 25},
		{Sentiment: models.SentimentNegative, Count: 3, Percent: 75},
		{Sentiment: models.SentimentNeutral, Count: 0, Percent: 0},
	}, shares)

	for _, s := range Shares(map[models.Sentiment]int{}, 0) {
		assert.Zero(t, s.Percent)
	}
}

func TestSummaryTable(t *testing.T) {
	out := SummaryTable(map[models.Sentiment]int{models.SentimentPositive: 2, models.SentimentNeutral: 1}, 3)
	assert.Contains(t, out, "Sentiment")
	assert.Contains(t, out, "66.7%")
	assert.Contains(t, out, "33.3%")
	assert.Contains(t, out, "total")
}

func TestResultsTable_TruncatesLongComments(t *testing.T) {
	long := strings.Repeat("a", 200)
	out := ResultsTable([]models.SentimentResult{{Comment: long, Sentiment: models.SentimentNegative}})
	assert.NotContains(t, out, long)
	assert.Contains(t, out, "…")
	assert.Contains(t, out, "negative")
}

func TestRunsTable(t *testing.T) {
	out := RunsTable([]models.Run{
		{ID: "run-1", CreatedAt: time.Now(), Mode: models.ModeLocal, Backend: "vader", Total: 2,
			Counts: map[models.Sentiment]int{models.SentimentPositive: 2}},
		{ID: "run-2", CreatedAt: time.Now(), Mode: models.ModeRemote, Backend: "gateway", Error: "rate limited"},
	})
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "gateway")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
