package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/spacesedan/moodlens/config"
	"github.com/spacesedan/moodlens/internal/analysis"
	"github.com/spacesedan/moodlens/internal/models"
	"golang.org/x/oauth2"
)

// VisionClient talks to the hosted facial-emotion endpoint.
type VisionClient struct {
	Client   *http.Client
	endpoint string
	// backoff before the first 5xx retry; doubled per attempt
	initialBackoff time.Duration
}

func NewVisionClient(cfg config.VisionConfig) *VisionClient {
	httpClient := &http.Client{}
	if cfg.Token != "" {
		httpClient = oauth2.NewClient(context.Background(),
			oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"}))
	}
	httpClient.Timeout = cfg.Timeout.Duration

	slog.Info("[VisionClient] Initializing Client",
		slog.String("endpoint", cfg.Endpoint),
		slog.Duration("timeout", cfg.Timeout.Duration),
		slog.Bool("authenticated", cfg.Token != ""))

	return &VisionClient{
		Client:         httpClient,
		endpoint:       cfg.Endpoint,
		initialBackoff: INITIAL_BACKOFF,
	}
}

// AnalyzeFrame sends one data-URL encoded frame and returns the free-form
// emotion label.
func (v *VisionClient) AnalyzeFrame(ctx context.Context, imageDataURL string) (string, error) {
	var result models.VisionResponse
	start := time.Now()

	err := v.postJSON(ctx, v.endpoint, models.VisionRequest{ImageData: imageDataURL}, &result)
	if err != nil {
		return "", err
	}

	if result.RateLimited {
		return "", fmt.Errorf("%w: %s", analysis.ErrRateLimited, result.Error)
	}
	if result.Error != "" {
		return "", fmt.Errorf("%w: %s", analysis.ErrUpstream, result.Error)
	}

	slog.Debug("[VisionClient] Frame analyzed",
		slog.String("label", result.Sentiment),
		slog.Duration("elapsed", time.Since(start)))
	return result.Sentiment, nil
}

// DoWithRetry retries transport failures and 5xx responses with exponential
// backoff. Anything below 500 is returned to the caller untouched.
func (v *VisionClient) DoWithRetry(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error
	backoff := v.initialBackoff

	for attempt := 0; attempt < MAX_RETRIES; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			req.Body = body
		}

		resp, err = v.Client.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if req.Context().Err() != nil {
			if resp != nil {
				resp.Body.Close()
			}
			return nil, req.Context().Err()
		}

		slog.Warn("[VisionClient] Request failed, will retry",
			slog.Int("attempt", attempt+1),
			slog.String("error", errMsg(err, resp)))

		if attempt == MAX_RETRIES-1 {
			break
		}
		if resp != nil {
			resp.Body.Close()
		}

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, MAX_BACKOFF)
	}

	return resp, err
}

func (v *VisionClient) postJSON(ctx context.Context, endpoint string, input any, output any) error {
	body, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		slog.Error("[VisionClient] Failed to build request",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", USER_AGENT)

	resp, err := v.DoWithRetry(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		slog.Error("[VisionClient] Failed request after retries",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: request failed after retries: %w", analysis.ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", analysis.ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("[VisionClient] Non-success status",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
			getPreview(respBody))
		return analysis.StatusError(resp.StatusCode, errorDetail(respBody))
	}

	if err := json.Unmarshal(respBody, output); err != nil {
		slog.Error("[VisionClient] Failed to unmarshal response",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
			getPreview(respBody),
			slog.Int("raw_response_length", len(respBody)))
		return fmt.Errorf("%w: failed to unmarshal response: %w", analysis.ErrUpstream, err)
	}

	return nil
}

// errorDetail pulls the "error" field out of a JSON error body, if any.
func errorDetail(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		return payload.Error
	}
	return ""
}

func getPreview(respBody []byte) slog.Attr {
	raw := string(respBody)
	if len(raw) > 50 {
		raw = raw[:50]
	}
	return slog.String("raw_response", raw)
}

func errMsg(err error, resp *http.Response) string {
	if err != nil {
		return err.Error()
	}
	if resp != nil {
		return fmt.Sprintf("status code %d", resp.StatusCode)
	}
	return "unknown error"
}
