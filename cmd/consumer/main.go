package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spacesedan/moodlens/config"
	"github.com/spacesedan/moodlens/internal/backend"
	"github.com/spacesedan/moodlens/internal/clients/kafka_client"
	"github.com/spacesedan/moodlens/internal/consumers"
	"github.com/spacesedan/moodlens/internal/db"
	"github.com/spacesedan/moodlens/internal/logging"
	"github.com/spacesedan/moodlens/internal/monitoring"
)

func main() {
	config.LoadEnv(config.AppEnv())

	cfg, err := config.Load(os.Getenv("MOODLENS_CONFIG"))
	if err != nil {
		slog.Error("[Main] Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logging.InitLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("[Main] Consumer stopped", slog.String("error", err.Error()))
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := db.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	local, cleanup, err := backend.Local(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	requestConsumer := &consumers.AnalysisRequestConsumer{
		Local:        local,
		LocalBackend: cfg.Analysis.Backend,
		Store:        store,
		ResultTopic:  cfg.Kafka.ResultTopic,
	}

	gatewayHealthy := &atomic.Bool{}
	remote, gateway, err := backend.Remote(cfg)
	if err != nil {
		slog.Warn("[Main] Remote mode disabled", slog.String("reason", err.Error()))
	} else {
		requestConsumer.Remote = remote
		monitoring.CheckGateway(ctx, gateway, gatewayHealthy)
		go monitoring.MonitorGatewayHealth(ctx, gateway, gatewayHealthy, monitoring.HEALTHCHECK_TIMER)
	}

	var producer *kafka_client.Producer
	for {
		producer, err = kafka_client.NewProducer(ctx, cfg.Kafka)
		if err == nil {
			break
		}
		slog.Warn("[Main] Kafka init failed, retrying...", slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
		}
	}
	defer producer.Close()
	requestConsumer.Publisher = producer

	kafka_client.RegisterConsumer(cfg.Kafka.RequestTopic,
		consumers.WrapConsumer(requestConsumer.Start).WithHealthCheck(gatewayHealthy).Handler())

	return kafka_client.StartConsumer(ctx, cfg.Kafka)
}
