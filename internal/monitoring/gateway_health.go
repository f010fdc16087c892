package monitoring

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	HEALTHCHECK_TIMER   = 15 * time.Second
	HEALTHCHECK_TIMEOUT = 5 * time.Second
)

// Pinger is satisfied by *clients.GatewayClient.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckGateway pings once and stores the outcome in healthy.
func CheckGateway(ctx context.Context, gateway Pinger, healthy *atomic.Bool) bool {
	ctx, cancel := context.WithTimeout(ctx, HEALTHCHECK_TIMEOUT)
	defer cancel()

	err := gateway.Ping(ctx)
	isHealthy := err == nil
	if was := healthy.Swap(isHealthy); was != isHealthy {
		if isHealthy {
			slog.Info("[HealthCheck] Gateway is healthy")
		} else {
			slog.Warn("[HealthCheck] Gateway is unhealthy", slog.String("error", err.Error()))
		}
	}
	return isHealthy
}

// MonitorGatewayHealth checks the gateway every interval until ctx is done.
func MonitorGatewayHealth(ctx context.Context, gateway Pinger, healthy *atomic.Bool, interval time.Duration) {
	if interval <= 0 {
		interval = HEALTHCHECK_TIMER
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			CheckGateway(ctx, gateway, healthy)
		}
	}
}
