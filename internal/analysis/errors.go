package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited means the upstream service answered 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExhausted means the upstream service answered 402.
	ErrQuotaExhausted = errors.New("credits exhausted")
	// ErrUpstream covers every other failed upstream call.
	ErrUpstream = errors.New("upstream service error")
	// ErrClassifierFailed wraps the first local classifier error of a run.
	ErrClassifierFailed = errors.New("classifier failed")
)

// StatusError maps a non-2xx HTTP status to the matching sentinel.
func StatusError(status int, detail string) error {
	var sentinel error
	switch status {
	case http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	case http.StatusPaymentRequired:
		sentinel = ErrQuotaExhausted
	default:
		sentinel = ErrUpstream
	}
	if detail == "" {
		return fmt.Errorf("%w (status %d)", sentinel, status)
	}
	return fmt.Errorf("%w (status %d): %s", sentinel, status, detail)
}

// classifyError leaves sentinel and context errors alone and files
// everything else under ErrUpstream.
func classifyError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrQuotaExhausted),
		errors.Is(err, ErrUpstream),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
}

// UserMessage turns an analysis error into the advisory shown to users.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "The AI service is rate limiting requests. Wait a moment and retry."
	case errors.Is(err, ErrQuotaExhausted):
		return "The AI service credits are exhausted. Add credits and retry."
	case errors.Is(err, ErrUpstream):
		return "The AI service returned an error. Try again later."
	case errors.Is(err, ErrClassifierFailed):
		return "The sentiment model failed on a comment. Retry, or enable item fallback to skip failing comments."
	case errors.Is(err, context.DeadlineExceeded):
		return "The analysis timed out."
	case errors.Is(err, context.Canceled):
		return "The analysis was cancelled."
	default:
		return fmt.Sprintf("Analysis failed: %v", err)
	}
}
