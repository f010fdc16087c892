package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spacesedan/moodlens/config"
	"github.com/spacesedan/moodlens/internal/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionPayload(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 0,
		"model":   "demo-model",
		"choices": []any{
			map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
	}
}

func newGatewayServer(t *testing.T, status int, body any, requests *atomic.Int32, captured *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			requests.Add(1)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if captured != nil {
			_ = json.NewDecoder(r.Body).Decode(captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestGateway(url string) *GatewayClient {
	return NewGatewayClient(config.GatewayConfig{BaseURL: url, APIKey: "test-key", Model: "demo-model"}, 5*time.Second)
}

func TestGatewayClient_ClassifyBatch(t *testing.T) {
	var captured map[string]any
	server := newGatewayServer(t, http.StatusOK,
		completionPayload("```json\n[\"positive\",\"negative\"]\n```"), nil, &captured)

	content, err := newTestGateway(server.URL).ClassifyBatch(context.Background(), []string{"love it", "hate it"})
	require.NoError(t, err)
	assert.Contains(t, content, `["positive","negative"]`)

	assert.Equal(t, "demo-model", captured["model"])
	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	user := messages[1].(map[string]any)
	assert.Equal(t, "user", user["role"])
	assert.Equal(t, "1. love it\n2. hate it", user["content"])
}

func TestGatewayClient_Classify(t *testing.T) {
	server := newGatewayServer(t, http.StatusOK, completionPayload("Negative."), nil, nil)

	raw, err := newTestGateway(server.URL).Classify(context.Background(), "this is bad")
	require.NoError(t, err)
	assert.Equal(t, "negative", raw.Label)
	assert.Equal(t, 1.0, raw.Score)
}

func TestGatewayClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"rate limited", http.StatusTooManyRequests, analysis.ErrRateLimited},
		{"payment required", http.StatusPaymentRequired, analysis.ErrQuotaExhausted},
		{"unauthorized", http.StatusUnauthorized, analysis.ErrUpstream},
		{"server error", http.StatusInternalServerError, analysis.ErrUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests atomic.Int32
			server := newGatewayServer(t, tt.status,
				map[string]any{"error": map[string]any{"message": "nope", "type": "test"}}, &requests, nil)

			_, err := newTestGateway(server.URL).ClassifyBatch(context.Background(), []string{"x"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, int32(1), requests.Load(), "sdk retries must be disabled")
		})
	}
}

func TestGatewayClient_NoChoices(t *testing.T) {
	payload := completionPayload("")
	payload["choices"] = []any{}
	server := newGatewayServer(t, http.StatusOK, payload, nil, nil)

	_, err := newTestGateway(server.URL).ClassifyBatch(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, analysis.ErrUpstream)
}

func TestGatewayClient_CanceledContext(t *testing.T) {
	server := newGatewayServer(t, http.StatusOK, completionPayload("[]"), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestGateway(server.URL).ClassifyBatch(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, analysis.ErrUpstream)
}

func TestFirstWord(t *testing.T) {
	assert.Equal(t, "positive", firstWord("Positive"))
	assert.Equal(t, "neutral", firstWord("  **Neutral** - the comment is factual"))
	assert.Equal(t, "", firstWord("   "))
}
