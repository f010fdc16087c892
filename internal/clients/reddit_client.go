package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spacesedan/moodlens/config"
	"github.com/spacesedan/moodlens/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var ErrRedditCredentials = errors.New("reddit credentials are not configured")

// RedditClient pulls post text from a subreddit search to use as comments.
type RedditClient struct {
	Config  *clientcredentials.Config
	Client  *http.Client
	apiURL  string
	limit   int
	backoff time.Duration
	mu      sync.Mutex
}

func NewRedditClient(cfg config.RedditConfig) (*RedditClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrRedditCredentials
	}

	oauthConf := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.AuthURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	return &RedditClient{
		Config:  oauthConf,
		Client:  oauthConf.Client(context.Background()),
		apiURL:  strings.TrimRight(cfg.APIURL, "/"),
		limit:   cfg.Limit,
		backoff: INITIAL_BACKOFF,
	}, nil
}

func (rc *RedditClient) RefreshClient() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.Client = rc.Config.Client(context.Background())
}

func (rc *RedditClient) httpClient() *http.Client {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.Client
}

// FetchComments searches subreddit for query and returns the title and body
// of every hit as one comment each. An empty query lists the newest posts.
func (rc *RedditClient) FetchComments(ctx context.Context, subreddit, query string) ([]string, error) {
	body, err := rc.fetch(ctx, rc.listingURL(subreddit, query))
	if err != nil {
		return nil, err
	}

	var listing models.RedditAPIResponse
	if err := json.Unmarshal(body, &listing); err != nil {
		slog.Error("[RedditClient] Failed to decode listing",
			slog.String("error", err.Error()),
			getPreview(body))
		return nil, fmt.Errorf("[RedditClient] decoding listing: %w", err)
	}

	comments := make([]string, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		if text := child.Data.Text(); text != "" {
			comments = append(comments, text)
		}
	}

	slog.Info("[RedditClient] Fetched posts",
		slog.String("subreddit", subreddit),
		slog.String("query", query),
		slog.Int("count", len(comments)))
	return comments, nil
}

func (rc *RedditClient) listingURL(subreddit, query string) string {
	subreddit = strings.TrimPrefix(strings.TrimPrefix(subreddit, "/"), "r/")
	params := url.Values{}
	params.Set("limit", strconv.Itoa(rc.limit))
	params.Set("raw_json", "1")

	if query == "" {
		return fmt.Sprintf("%s/r/%s/new?%s", rc.apiURL, url.PathEscape(subreddit), params.Encode())
	}
	params.Set("q", query)
	params.Set("restrict_sr", "1")
	params.Set("sort", "top")
	return fmt.Sprintf("%s/r/%s/search?%s", rc.apiURL, url.PathEscape(subreddit), params.Encode())
}

// fetch refreshes the token once on 401 and backs off on 429.
func (rc *RedditClient) fetch(ctx context.Context, target string) ([]byte, error) {
	backoff := rc.backoff
	refreshed := false

	for attempt := 1; attempt <= MAX_RETRIES; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", USER_AGENT)

		resp, err := rc.httpClient().Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("[RedditClient] request failed: %w", err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusUnauthorized && !refreshed:
			slog.Warn("[RedditClient] Token expired - Refreshing and Retrying...")
			rc.RefreshClient()
			refreshed = true
			continue
		case resp.StatusCode == http.StatusTooManyRequests:
			slog.Warn("[RedditClient] 429 Too Many Requests - Retrying with backoff",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, MAX_BACKOFF)
			continue
		default:
			slog.Error("[RedditClient] Unexpected status",
				slog.Int("status", resp.StatusCode),
				getPreview(body))
			return nil, fmt.Errorf("[RedditClient] unexpected status %d", resp.StatusCode)
		}
	}
	return nil, fmt.Errorf("[RedditClient] Max retries reached request failed")
}
