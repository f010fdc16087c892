package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/spacesedan/moodlens/config"
	"github.com/spacesedan/moodlens/internal/models"
)

// HugotClassifier runs a local text-classification model. Calls are
// serialized; the underlying session is not shared across goroutines.
type HugotClassifier struct {
	session  *hugot.Session
	pipeline *pipelines.TextClassificationPipeline
	mu       sync.Mutex
}

// HugotLoader owns one model handle. Get loads it on first use and returns
// the same handle until the config changes or the owner calls Close. Only a
// successful load is kept, so a failed download can be retried.
type HugotLoader struct {
	mu         sync.Mutex
	cfg        config.HugotConfig
	classifier *HugotClassifier
	load       func(config.HugotConfig) (*HugotClassifier, error)
}

func NewHugotLoader() *HugotLoader {
	return &HugotLoader{load: newHugotClassifier}
}

func (l *HugotLoader) Get(cfg config.HugotConfig) (*HugotClassifier, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.classifier != nil {
		if l.cfg == cfg {
			return l.classifier, nil
		}
		slog.Info("[HugotClient] Model config changed, reloading", slog.String("model", cfg.Model))
		if err := l.release(); err != nil {
			slog.Warn("[HugotClient] Failed to close previous session", slog.String("error", err.Error()))
		}
	}

	classifier, err := l.load(cfg)
	if err != nil {
		return nil, err
	}
	l.cfg, l.classifier = cfg, classifier
	return classifier, nil
}

// Close destroys the loaded session, if any. A later Get loads a new one.
func (l *HugotLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.release()
}

func (l *HugotLoader) release() error {
	if l.classifier == nil {
		return nil
	}
	err := l.classifier.Close()
	l.classifier = nil
	return err
}

func newHugotClassifier(cfg config.HugotConfig) (*HugotClassifier, error) {
	modelPath, err := ensureModel(cfg)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		slog.Error("[HugotClient] Failed to initialize Hugot session", slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating hugot session: %w", err)
	}

	pipeline, err := hugot.NewPipeline(session, hugot.TextClassificationConfig{
		ModelPath: modelPath,
		Name:      "moodlensSentimentPipeline",
	})
	if err != nil {
		slog.Error("[HugotClient] Failed to initialize pipeline", slog.String("error", err.Error()))
		return nil, errors.Join(fmt.Errorf("creating pipeline: %w", err), session.Destroy())
	}

	slog.Info("[HugotClient] Pipeline ready", slog.String("model", cfg.Model))
	return &HugotClassifier{session: session, pipeline: pipeline}, nil
}

func ensureModel(cfg config.HugotConfig) (string, error) {
	modelPath := localModelPath(cfg)
	if _, err := os.Stat(modelPath); err == nil {
		slog.Info("[HugotClient] Using existing model", slog.String("path", modelPath))
		return modelPath, nil
	}

	if err := os.MkdirAll(cfg.ModelDir, os.ModePerm); err != nil {
		return "", fmt.Errorf("creating model directory: %w", err)
	}

	slog.Info("[HugotClient] Model not found, downloading...", slog.String("model", cfg.Model))
	downloaded, err := hugot.DownloadModel(cfg.Model, cfg.ModelDir, hugot.NewDownloadOptions())
	if err != nil {
		slog.Error("[HugotClient] Failed to download model", slog.String("error", err.Error()))
		return "", fmt.Errorf("downloading %s: %w", cfg.Model, err)
	}
	slog.Info("[HugotClient] Model downloaded successfully", slog.String("path", downloaded))
	return downloaded, nil
}

// localModelPath is where hugot stores a downloaded model: the repo id with
// slashes replaced by underscores.
func localModelPath(cfg config.HugotConfig) string {
	return filepath.Join(cfg.ModelDir, strings.ReplaceAll(cfg.Model, "/", "_"))
}

func (h *HugotClassifier) Classify(ctx context.Context, text string) (models.RawClassification, error) {
	if err := ctx.Err(); err != nil {
		return models.RawClassification{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	output, err := h.pipeline.RunPipeline([]string{text})
	if err != nil {
		return models.RawClassification{}, fmt.Errorf("running pipeline: %w", err)
	}
	if len(output.ClassificationOutputs) == 0 || len(output.ClassificationOutputs[0]) == 0 {
		return models.RawClassification{}, errors.New("pipeline returned no classification")
	}

	top := output.ClassificationOutputs[0][0]
	return models.RawClassification{Label: top.Label, Score: float64(top.Score)}, nil
}

func (h *HugotClassifier) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return nil
	}
	err := h.session.Destroy()
	h.session = nil
	return err
}
