// Package face classifies the facial emotion in still frames, one remote
// call per frame.
package face

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"strings"
	"unicode"

	"github.com/spacesedan/moodlens/internal/analysis"
	"github.com/spacesedan/moodlens/internal/models"
)

const DefaultConfidence = 0.8

var (
	happyKeywords = []string{"joy", "happy", "smile", "laugh", "positive"}
	sadKeywords   = []string{"sad", "angry", "anger", "fear", "disgust", "cry", "negative"}
	negations     = map[string]bool{"not": true, "no": true, "never": true, "without": true}
)

// VisionClient sends one data-URL encoded image to the vision endpoint.
type VisionClient interface {
	AnalyzeFrame(ctx context.Context, imageDataURL string) (string, error)
}

type Classifier struct {
	client     VisionClient
	confidence float64
}

// NewClassifier returns a Classifier that reports confidence for every
// detection. A non-positive confidence falls back to DefaultConfidence.
func NewClassifier(client VisionClient, confidence float64) *Classifier {
	if confidence <= 0 || confidence > 1 {
		confidence = DefaultConfidence
	}
	return &Classifier{client: client, confidence: confidence}
}

// Classify returns the emotion for one frame. A nil detection with a nil
// error means the endpoint was rate limited and this frame has no result.
func (c *Classifier) Classify(ctx context.Context, frame []byte, mime string) (*models.FaceDetection, error) {
	if len(frame) == 0 {
		return nil, errors.New("empty frame")
	}

	label, err := c.client.AnalyzeFrame(ctx, EncodeDataURL(frame, mime))
	if err != nil {
		if errors.Is(err, analysis.ErrRateLimited) {
			slog.Warn("[FaceClassifier] Rate limited, skipping frame")
			return nil, nil
		}
		return nil, fmt.Errorf("analyzing frame: %w", err)
	}

	return &models.FaceDetection{
		Box:        frameBox(frame),
		Emotion:    MapEmotion(label),
		Confidence: c.confidence,
	}, nil
}

// EncodeDataURL builds a base64 data URL. An empty mime type is sniffed
// from the frame bytes.
func EncodeDataURL(frame []byte, mime string) string {
	if mime == "" {
		mime = http.DetectContentType(frame)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(frame)
}

// MapEmotion buckets a free-form label by keyword, one word at a time. Sad
// keywords win over happy ones, and a negated happy word ("unhappy",
// "not happy", "joyless") counts as sad. Anything unmatched is neutral.
func MapEmotion(label string) models.Emotion {
	words := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	happy, sad := false, false
	for i, word := range words {
		negated := negatedAt(words, i)
		switch {
		case containsAny(word, sadKeywords):
			if !negated {
				sad = true
			}
		case containsAny(word, happyKeywords):
			if negated || strings.HasPrefix(word, "un") || strings.HasSuffix(word, "less") {
				sad = true
			} else {
				happy = true
			}
		}
	}

	switch {
	case sad:
		return models.EmotionSad
	case happy:
		return models.EmotionHappy
	default:
		return models.EmotionNeutral
	}
}

// negatedAt reports whether one of the two words before i is a negation.
func negatedAt(words []string, i int) bool {
	for j := max(0, i-2); j < i; j++ {
		if negations[words[j]] {
			return true
		}
	}
	return false
}

func containsAny(word string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(word, kw) {
			return true
		}
	}
	return false
}

// frameBox covers the whole frame, or is zero when the format is unknown.
func frameBox(frame []byte) models.BoundingBox {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(frame))
	if err != nil {
		return models.BoundingBox{}
	}
	return models.BoundingBox{XMax: cfg.Width, YMax: cfg.Height}
}
