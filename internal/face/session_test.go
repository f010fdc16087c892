package face

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spacesedan/moodlens/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tick = 5 * time.Millisecond

type fakeSource struct {
	closed atomic.Bool
}

func (f *fakeSource) Frame(ctx context.Context) ([]byte, string, error) {
	return []byte("frame"), "image/png", ctx.Err()
}

func (f *fakeSource) Close() error {
	f.closed.Store(true)
	return nil
}

func openFake(src *fakeSource) SourceOpener {
	return func() (FrameSource, error) { return src, nil }
}

type fakeFrameClassifier struct {
	calls     atomic.Int32
	release   chan struct{}
	detection *models.FaceDetection
	// later calls behave as if rate limited
	onlyFirst bool
}

func (f *fakeFrameClassifier) Classify(_ context.Context, _ []byte, _ string) (*models.FaceDetection, error) {
	n := f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.onlyFirst && n > 1 {
		return nil, nil
	}
	return f.detection, nil
}

func happy() *models.FaceDetection {
	return &models.FaceDetection{Emotion: models.EmotionHappy, Confidence: 0.8}
}

func TestSession_PublishesDetections(t *testing.T) {
	classifier := &fakeFrameClassifier{detection: happy()}
	session := NewSession(openFake(&fakeSource{}), classifier, tick)

	var mu sync.Mutex
	var seen [][]models.FaceDetection
	session.OnDetection = func(d []models.FaceDetection) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, d)
	}

	require.NoError(t, session.Start(context.Background()))
	assert.Eventually(t, func() bool { return len(session.Latest()) == 1 }, time.Second, tick)
	require.NoError(t, session.Stop())

	assert.Equal(t, models.EmotionHappy, session.Latest()[0].Emotion)
	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, seen)
}

func TestSession_SkipsTicksWhileInFlight(t *testing.T) {
	classifier := &fakeFrameClassifier{release: make(chan struct{}), detection: happy()}
	session := NewSession(openFake(&fakeSource{}), classifier, tick)

	require.NoError(t, session.Start(context.Background()))
	assert.Eventually(t, func() bool { return session.Skipped() >= 3 }, time.Second, tick)
	assert.Equal(t, int32(1), classifier.calls.Load())

	close(classifier.release)
	require.NoError(t, session.Stop())
}

func TestSession_StopDiscardsLateResults(t *testing.T) {
	classifier := &fakeFrameClassifier{release: make(chan struct{}), detection: happy()}
	session := NewSession(openFake(&fakeSource{}), classifier, tick)

	var called atomic.Bool
	session.OnDetection = func([]models.FaceDetection) { called.Store(true) }

	require.NoError(t, session.Start(context.Background()))
	assert.Eventually(t, func() bool { return classifier.calls.Load() == 1 }, time.Second, tick)

	go func() {
		time.Sleep(4 * tick)
		close(classifier.release)
	}()
	require.NoError(t, session.Stop())

	assert.Empty(t, session.Latest())
	assert.False(t, called.Load())
}

func TestSession_NilDetectionKeepsPrevious(t *testing.T) {
	classifier := &fakeFrameClassifier{detection: happy(), onlyFirst: true}
	session := NewSession(openFake(&fakeSource{}), classifier, tick)

	var published atomic.Int32
	session.OnDetection = func([]models.FaceDetection) { published.Add(1) }

	require.NoError(t, session.Start(context.Background()))
	assert.Eventually(t, func() bool { return classifier.calls.Load() >= 3 }, time.Second, tick)
	require.NoError(t, session.Stop())

	require.Len(t, session.Latest(), 1)
	assert.Equal(t, models.EmotionHappy, session.Latest()[0].Emotion)
	assert.Equal(t, int32(1), published.Load())
}

func TestSession_StartFailsWhenSourceUnavailable(t *testing.T) {
	session := NewSession(func() (FrameSource, error) {
		return nil, errors.New("permission denied")
	}, &fakeFrameClassifier{}, tick)

	err := session.Start(context.Background())
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Contains(t, err.Error(), "permission denied")
	assert.NoError(t, session.Stop())
}

func TestSession_StartTwice(t *testing.T) {
	session := NewSession(openFake(&fakeSource{}), &fakeFrameClassifier{}, tick)
	require.NoError(t, session.Start(context.Background()))
	defer session.Stop()

	assert.Error(t, session.Start(context.Background()))
}

func TestSession_StopClosesSourceAndIsIdempotent(t *testing.T) {
	src := &fakeSource{}
	session := NewSession(openFake(src), &fakeFrameClassifier{}, tick)

	require.NoError(t, session.Start(context.Background()))
	require.NoError(t, session.Stop())
	assert.True(t, src.closed.Load())
	assert.NoError(t, session.Stop())
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.png")
	require.NoError(t, os.WriteFile(path, pngFrame(t, 3, 2), 0o644))

	src, err := FileSource(path)()
	require.NoError(t, err)

	frame, contentType, err := src.Frame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	assert.NotEmpty(t, frame)

	_, err = FileSource(filepath.Join(dir, "missing.png"))()
	assert.Error(t, err)

	session := NewSession(FileSource(filepath.Join(dir, "missing.png")), &fakeFrameClassifier{}, tick)
	assert.ErrorIs(t, session.Start(context.Background()), ErrDeviceUnavailable)
}

func TestUserMessage(t *testing.T) {
	assert.Contains(t, UserMessage(ErrDeviceUnavailable), "permission")
	assert.Contains(t, UserMessage(errors.New("boom")), "boom")
}
