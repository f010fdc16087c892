package consumers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/spacesedan/moodlens/config"
	"github.com/spacesedan/moodlens/internal/analysis"
	"github.com/spacesedan/moodlens/internal/clients/kafka_client"
	"github.com/spacesedan/moodlens/internal/clients/kafka_client/utils"
	"github.com/spacesedan/moodlens/internal/db"
	"github.com/spacesedan/moodlens/internal/models"
	"github.com/spacesedan/moodlens/internal/textprep"
)

const (
	publishAttempts    = 3
	defaultHealthPoll  = 5 * time.Second
	defaultPublishWait = 2 * time.Second
	defaultHealthWait  = 2 * time.Minute
)

var (
	ErrUnknownMode = errors.New("unknown analysis mode")
	// ErrGatewayUnavailable is reported when the gateway stays unhealthy
	// for longer than HealthWait.
	ErrGatewayUnavailable = fmt.Errorf("%w: gateway health check failing", analysis.ErrUpstream)
)

// Analyzer is satisfied by *analysis.LocalAnalyzer and *analysis.RemoteAnalyzer.
type Analyzer interface {
	Run(ctx context.Context, comments []string, onProgress ...analysis.ProgressFunc) ([]models.SentimentResult, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// AnalysisRequestConsumer serves analysis requests from Kafka: it runs the
// requested analyzer, stores the run and publishes the results.
type AnalysisRequestConsumer struct {
	Local        Analyzer
	LocalBackend string
	// Remote is optional; remote requests fail when it is nil.
	Remote      Analyzer
	Store       db.ResultStore
	Publisher   Publisher
	ResultTopic string

	HealthPoll time.Duration
	// HealthWait caps how long a remote request waits for the gateway
	// before it is answered with an advisory.
	HealthWait  time.Duration
	PublishWait time.Duration
}

// Start is a HealthAwareFunc. Remote-mode requests wait while any of the
// health flags is false.
func (c *AnalysisRequestConsumer) Start(ctx context.Context, consumer *kafka.Consumer, health ...*atomic.Bool) {
	c.consume(ctx, consumer, consumer, health)
}

func (c *AnalysisRequestConsumer) consume(ctx context.Context, reader kafka_client.MessageReader, committer kafka_client.OffsetCommitter, health []*atomic.Bool) {
	iterator := kafka_client.NewKafkaMessageIterator(ctx, reader)
	commitHandler := kafka_client.NewCommitHandler(ctx, committer)

	slog.Info("[AnalysisRequestConsumer] Listening for requests...")

	for {
		msg, err := iterator.Next()
		if err != nil {
			if ctx.Err() != nil {
				slog.Warn("[AnalysisRequestConsumer] Consumer shutting down...")
				return
			}
			utils.HandleConsumerError(err)
			if sleepErr := sleepContext(ctx, c.publishWait()); sleepErr != nil {
				return
			}
			continue
		}

		c.handleMessage(ctx, msg, commitHandler, health)
	}
}

func (c *AnalysisRequestConsumer) handleMessage(ctx context.Context, msg *kafka.Message, committer *kafka_client.KafkaCommitHandler, health []*atomic.Bool) {
	req, err := utils.DeserializeFromJSON[models.AnalysisRequest](msg.Value)
	if err != nil {
		// undecodable requests are skipped so they cannot block the partition
		slog.Warn("[AnalysisRequestConsumer] Skipping malformed request",
			slog.String("offset", msg.TopicPartition.Offset.String()))
		c.commit(committer, msg)
		return
	}

	resp, err := c.Process(ctx, req, health...)
	if err != nil {
		slog.Warn("[AnalysisRequestConsumer] Request abandoned, leaving offset uncommitted",
			slog.String("request_id", req.RequestID),
			slog.String("error", err.Error()))
		return
	}

	if err := c.publish(ctx, resp); err != nil {
		slog.Error("[AnalysisRequestConsumer] Failed to publish response",
			slog.String("request_id", req.RequestID),
			slog.String("error", err.Error()))
		return
	}

	c.commit(committer, msg)
}

func (c *AnalysisRequestConsumer) commit(committer *kafka_client.KafkaCommitHandler, msg *kafka.Message) {
	if err := committer.Commit(msg); err != nil {
		slog.Warn("[AnalysisRequestConsumer] Failed to commit offset",
			slog.String("error", err.Error()))
	}
}

// Process runs one request and builds its response. Analysis failures are
// reported in the response; a non-nil error means the consumer is shutting
// down and the request should be redelivered.
func (c *AnalysisRequestConsumer) Process(ctx context.Context, req models.AnalysisRequest, health ...*atomic.Bool) (models.AnalysisResponse, error) {
	resp := models.AnalysisResponse{RequestID: req.RequestID, Results: []models.SentimentResult{}}

	mode := req.Mode
	if mode == "" {
		mode = models.ModeLocal
	}

	analyzer, backend, err := c.analyzerFor(mode)
	if err != nil {
		resp.Error = err.Error()
		return resp, nil
	}

	if mode == models.ModeRemote {
		if err := c.waitHealthy(ctx, health); err != nil {
			if ctx.Err() != nil {
				return resp, err
			}
			slog.Warn("[AnalysisRequestConsumer] Gateway still unhealthy, answering with advisory",
				slog.String("request_id", req.RequestID),
				slog.Duration("waited", c.healthWait()))
			resp.Error = analysis.UserMessage(err)
			return resp, nil
		}
	}

	comments := textprep.Prepare(req.Comments)
	if len(comments) == 0 {
		return resp, nil
	}

	slog.Info("[AnalysisRequestConsumer] Analyzing request",
		slog.String("request_id", req.RequestID),
		slog.String("mode", mode),
		slog.Int("comments", len(comments)))

	results, runErr := analyzer.Run(ctx, comments)
	if ctx.Err() != nil {
		return resp, ctx.Err()
	}
	if results != nil {
		resp.Results = results
	}
	if runErr != nil {
		slog.Warn("[AnalysisRequestConsumer] Run stopped early",
			slog.String("request_id", req.RequestID),
			slog.Int("completed", len(results)),
			slog.String("error", runErr.Error()))
		resp.Error = analysis.UserMessage(runErr)
	}

	if c.Store != nil {
		run := db.NewRun(mode, backend, results, runErr)
		if err := c.Store.SaveRun(ctx, run, results); err != nil {
			slog.Error("[AnalysisRequestConsumer] Failed to save run",
				slog.String("request_id", req.RequestID),
				slog.String("error", err.Error()))
		} else {
			resp.RunID = run.ID
		}
	}

	return resp, nil
}

func (c *AnalysisRequestConsumer) analyzerFor(mode string) (Analyzer, string, error) {
	switch mode {
	case models.ModeLocal:
		if c.Local != nil {
			return c.Local, c.LocalBackend, nil
		}
	case models.ModeRemote:
		if c.Remote != nil {
			return c.Remote, config.BackendGateway, nil
		}
	default:
		return nil, "", fmt.Errorf("%w %q", ErrUnknownMode, mode)
	}
	return nil, "", fmt.Errorf("%s analysis is not configured", mode)
}

// waitHealthy returns ctx's error on shutdown and ErrGatewayUnavailable once
// HealthWait has passed.
func (c *AnalysisRequestConsumer) waitHealthy(ctx context.Context, health []*atomic.Bool) error {
	deadline := time.Now().Add(c.healthWait())
	logged := false
	for !allHealthy(health) {
		if !time.Now().Before(deadline) {
			return ErrGatewayUnavailable
		}
		if !logged {
			slog.Warn("[AnalysisRequestConsumer] Gateway unhealthy, holding remote request")
			logged = true
		}
		if err := sleepContext(ctx, c.healthPoll()); err != nil {
			return err
		}
	}
	return nil
}

func (c *AnalysisRequestConsumer) publish(ctx context.Context, resp models.AnalysisResponse) error {
	var err error
	for i := 0; i < publishAttempts; i++ {
		err = c.Publisher.Publish(ctx, c.ResultTopic, resp.RequestID, resp)
		if err == nil {
			return nil
		}
		slog.Warn("[AnalysisRequestConsumer] Publishing failed",
			slog.Int("attempt", i+1),
			slog.String("error", err.Error()))
		if sleepErr := sleepContext(ctx, c.publishWait()); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

func (c *AnalysisRequestConsumer) healthPoll() time.Duration {
	if c.HealthPoll > 0 {
		return c.HealthPoll
	}
	return defaultHealthPoll
}

func (c *AnalysisRequestConsumer) healthWait() time.Duration {
	if c.HealthWait > 0 {
		return c.HealthWait
	}
	return defaultHealthWait
}

func (c *AnalysisRequestConsumer) publishWait() time.Duration {
	if c.PublishWait > 0 {
		return c.PublishWait
	}
	return defaultPublishWait
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
