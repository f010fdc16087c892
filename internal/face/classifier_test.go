package face

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/spacesedan/moodlens/internal/analysis"
	"github.com/spacesedan/moodlens/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVision struct {
	label string
	err   error
	urls  []string
}

func (f *fakeVision) AnalyzeFrame(_ context.Context, url string) (string, error) {
	f.urls = append(f.urls, url)
	return f.label, f.err
}

func pngFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestMapEmotion(t *testing.T) {
	tests := []struct {
		label string
		want  models.Emotion
	}{
		{"Joy", models.EmotionHappy},
		{"happy", models.EmotionHappy},
		{"big smile", models.EmotionHappy},
		{"laughing", models.EmotionHappy},
		{"POSITIVE", models.EmotionHappy},
		{"sad", models.EmotionSad},
		{"Angry", models.EmotionSad},
		{"anger", models.EmotionSad},
		{"fearful", models.EmotionSad},
		{"disgust", models.EmotionSad},
		{"crying", models.EmotionSad},
		{"negative", models.EmotionSad},
		{"unhappy", models.EmotionSad},
		{"not happy", models.EmotionSad},
		{"not a happy face", models.EmotionSad},
		{"sad, no smile", models.EmotionSad},
		{"joyless", models.EmotionSad},
		{"happy but crying", models.EmotionSad},
		{"not sad", models.EmotionNeutral},
		{"joyful", models.EmotionHappy},
		{"surprised", models.EmotionNeutral},
		{"calm", models.EmotionNeutral},
		{"", models.EmotionNeutral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapEmotion(tt.label), tt.label)
	}
}

func TestEncodeDataURL(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,AQID", EncodeDataURL([]byte{1, 2, 3}, "image/jpeg"))

	frame := pngFrame(t, 1, 1)
	assert.True(t, strings.HasPrefix(EncodeDataURL(frame, ""), "data:image/png;base64,"))
}

func TestClassifier_Classify(t *testing.T) {
	vision := &fakeVision{label: "a joyful smile"}
	frame := pngFrame(t, 64, 48)

	det, err := NewClassifier(vision, 0).Classify(context.Background(), frame, "image/png")
	require.NoError(t, err)
	require.NotNil(t, det)

	assert.Equal(t, models.EmotionHappy, det.Emotion)
	assert.Equal(t, DefaultConfidence, det.Confidence)
	assert.Equal(t, models.BoundingBox{XMax: 64, YMax: 48}, det.Box)
	require.Len(t, vision.urls, 1)
	assert.True(t, strings.HasPrefix(vision.urls[0], "data:image/png;base64,"))
}

func TestClassifier_ConfiguredConfidence(t *testing.T) {
	det, err := NewClassifier(&fakeVision{label: "sad"}, 0.65).Classify(context.Background(), pngFrame(t, 2, 2), "image/png")
	require.NoError(t, err)
	assert.Equal(t, 0.65, det.Confidence)
	assert.Equal(t, models.EmotionSad, det.Emotion)
}

func TestClassifier_UnknownFormatHasZeroBox(t *testing.T) {
	det, err := NewClassifier(&fakeVision{label: "neutral"}, 0).Classify(context.Background(), []byte("not an image"), "image/webp")
	require.NoError(t, err)
	assert.Equal(t, models.BoundingBox{}, det.Box)
}

func TestClassifier_RateLimitedIsNoDetection(t *testing.T) {
	vision := &fakeVision{err: analysis.StatusError(429, "")}

	det, err := NewClassifier(vision, 0).Classify(context.Background(), pngFrame(t, 2, 2), "image/png")
	assert.NoError(t, err)
	assert.Nil(t, det)
}

func TestClassifier_Errors(t *testing.T) {
	boom := errors.New("endpoint down")
	_, err := NewClassifier(&fakeVision{err: boom}, 0).Classify(context.Background(), pngFrame(t, 2, 2), "image/png")
	assert.ErrorIs(t, err, boom)

	vision := &fakeVision{label: "happy"}
	_, err = NewClassifier(vision, 0).Classify(context.Background(), nil, "image/png")
	assert.Error(t, err)
	assert.Empty(t, vision.urls)
}
