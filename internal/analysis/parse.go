package analysis

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/spacesedan/moodlens/internal/models"
)

// ParseBatchLabels turns a batch completion into exactly n sentiments.
//
// The first well-formed JSON array in content is used; code fences and
// surrounding prose are ignored. Elements may be bare strings or objects with
// a "sentiment" field. If no array parses every item is neutral. A missing or
// invalid element makes only that item neutral.
func ParseBatchLabels(content string, n int) []models.Sentiment {
	labels := make([]models.Sentiment, n)
	for i := range labels {
		labels[i] = models.SentimentNeutral
	}

	elements, ok := firstJSONArray(cleanResponse(content))
	if !ok {
		slog.Warn("[RemoteAnalyzer] No JSON array in batch response, marking batch neutral",
			slog.Int("batch_size", n),
			slog.String("preview", preview(content)))
		return labels
	}

	if len(elements) != n {
		slog.Warn("[RemoteAnalyzer] Batch response length mismatch",
			slog.Int("expected", n),
			slog.Int("got", len(elements)))
	}

	for i := 0; i < n && i < len(elements); i++ {
		label, ok := parseLabel(elements[i])
		if !ok {
			slog.Warn("[RemoteAnalyzer] Invalid label in batch response, using neutral",
				slog.Int("index", i),
				slog.String("value", preview(string(elements[i]))))
			continue
		}
		labels[i] = label
	}
	return labels
}

func parseLabel(raw json.RawMessage) (models.Sentiment, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return models.LookupSentiment(s)
	}

	var obj models.BatchLabel
	if err := json.Unmarshal(raw, &obj); err == nil {
		return models.LookupSentiment(obj.Sentiment)
	}
	return models.SentimentNeutral, false
}

// firstJSONArray returns the elements of the first '[' in s that starts a
// complete JSON array.
func firstJSONArray(s string) ([]json.RawMessage, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != '[' {
			continue
		}
		var elements []json.RawMessage
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		if err := dec.Decode(&elements); err == nil {
			return elements, true
		}
	}
	return nil, false
}

func cleanResponse(response string) string {
	cleaned := strings.TrimSpace(response)

	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	}

	// curly quotes
	cleaned = strings.ReplaceAll(cleaned, "“", `"`)
	cleaned = strings.ReplaceAll(cleaned, "”", `"`)

	return strings.TrimSpace(cleaned)
}

func preview(s string) string {
	const maxLen = 120
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
