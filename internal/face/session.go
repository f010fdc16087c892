package face

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spacesedan/moodlens/internal/analysis"
	"github.com/spacesedan/moodlens/internal/models"
)

const DefaultInterval = 3 * time.Second

// ErrDeviceUnavailable means the frame source could not be opened.
var ErrDeviceUnavailable = errors.New("frame source unavailable")

// UserMessage extends analysis.UserMessage with frame source failures.
func UserMessage(err error) string {
	if errors.Is(err, ErrDeviceUnavailable) {
		return "The frame source could not be opened. Check that it exists and that you have permission to read it."
	}
	return analysis.UserMessage(err)
}

// FrameSource hands out the current frame on demand.
type FrameSource interface {
	Frame(ctx context.Context) ([]byte, string, error)
	Close() error
}

// SourceOpener acquires a FrameSource when a session starts.
type SourceOpener func() (FrameSource, error)

// FrameClassifier is satisfied by *Classifier.
type FrameClassifier interface {
	Classify(ctx context.Context, frame []byte, mime string) (*models.FaceDetection, error)
}

// FileFrameSource re-reads a snapshot file on every frame, so another
// process can keep overwriting it.
type FileFrameSource struct {
	path string
}

// FileSource opens path as a frame source. The file must exist and be
// readable when the session starts.
func FileSource(path string) SourceOpener {
	return func() (FrameSource, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		f.Close()
		return &FileFrameSource{path: path}, nil
	}
}

func (s *FileFrameSource) Frame(ctx context.Context) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, "", fmt.Errorf("reading frame: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(s.path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

func (s *FileFrameSource) Close() error { return nil }

// Session classifies a frame every Interval until stopped. A tick that
// fires while the previous call is still running is skipped.
type Session struct {
	open       SourceOpener
	classifier FrameClassifier
	interval   time.Duration

	// OnDetection, if set, is called after every published frame result.
	OnDetection func([]models.FaceDetection)

	inFlight atomic.Bool
	skipped  atomic.Int64

	mu      sync.Mutex
	latest  []models.FaceDetection
	source  FrameSource
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewSession(open SourceOpener, classifier FrameClassifier, interval time.Duration) *Session {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Session{open: open, classifier: classifier, interval: interval}
}

// Start acquires the frame source and begins ticking in the background.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("session already running")
	}

	source, err := s.open()
	if err != nil {
		slog.Error("[FaceSession] Failed to open frame source", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.source = source
	s.cancel = cancel
	s.done = make(chan struct{})
	s.latest = nil
	s.running = true

	slog.Info("[FaceSession] Session started", slog.Duration("interval", s.interval))
	go s.loop(runCtx, source, s.done)
	return nil
}

// Stop cancels the loop, waits for any in-flight call to return and
// releases the frame source. Results that arrive after Stop are dropped.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel, done, source := s.cancel, s.done, s.source
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done

	slog.Info("[FaceSession] Session stopped", slog.Int64("skipped_ticks", s.skipped.Load()))
	return source.Close()
}

// Latest returns the detections of the most recent published frame.
func (s *Session) Latest() []models.FaceDetection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.FaceDetection(nil), s.latest...)
}

// Skipped is the number of ticks dropped because a call was in flight.
func (s *Session) Skipped() int64 {
	return s.skipped.Load()
}

func (s *Session) loop(ctx context.Context, source FrameSource, done chan struct{}) {
	defer close(done)

	var wg sync.WaitGroup
	defer wg.Wait()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.inFlight.CompareAndSwap(false, true) {
				s.skipped.Add(1)
				slog.Debug("[FaceSession] Previous frame still in flight, skipping tick")
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer s.inFlight.Store(false)
				s.tick(ctx, source)
			}()
		}
	}
}

func (s *Session) tick(ctx context.Context, source FrameSource) {
	frame, contentType, err := source.Frame(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("[FaceSession] Failed to grab frame", slog.String("error", err.Error()))
		}
		return
	}

	detection, err := s.classifier.Classify(ctx, frame, contentType)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("[FaceSession] Frame classification failed", slog.String("error", err.Error()))
		}
		return
	}
	if detection == nil {
		return
	}

	s.publish(ctx, []models.FaceDetection{*detection})
}

func (s *Session) publish(ctx context.Context, detections []models.FaceDetection) {
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		slog.Debug("[FaceSession] Discarding result that arrived after stop")
		return
	}
	s.latest = detections
	onDetection := s.OnDetection
	s.mu.Unlock()

	if onDetection != nil {
		onDetection(detections)
	}
}
