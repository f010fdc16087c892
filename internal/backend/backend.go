// Package backend builds analyzers from configuration.
package backend

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spacesedan/moodlens/config"
	"github.com/spacesedan/moodlens/internal/analysis"
	"github.com/spacesedan/moodlens/internal/clients"
	"github.com/spacesedan/moodlens/internal/sentiment"
)

// Local builds the sequential analyzer for cfg.Analysis.Backend. The returned
// cleanup releases the model session and the cache connection.
func Local(cfg *config.Config) (*analysis.LocalAnalyzer, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	classifier, policy, err := localClassifier(cfg, &closers)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	if cfg.Cache.Address != "" {
		cache, err := clients.NewValkeyCache(cfg.Cache)
		if err != nil {
			slog.Warn("[Backend] Classification cache unavailable, continuing without it",
				slog.String("error", err.Error()))
		} else {
			closers = append(closers, cache.Close)
			classifier = analysis.NewCachedClassifier(classifier, cache, cacheNamespace(cfg))
		}
	}

	opts := []analysis.LocalOption{analysis.WithCallTimeout(cfg.Analysis.CallTimeout.Duration)}
	if cfg.Analysis.ItemFallback {
		opts = append(opts, analysis.WithItemFallback())
	}

	slog.Info("[Backend] Local analyzer ready",
		slog.String("backend", cfg.Analysis.Backend),
		slog.String("policy", policy.Mode))
	return analysis.NewLocalAnalyzer(classifier, policy, opts...), cleanup, nil
}

func localClassifier(cfg *config.Config, closers *[]func()) (analysis.Classifier, sentiment.Policy, error) {
	switch cfg.Analysis.Backend {
	case config.BackendVader:
		policy, err := sentiment.NewPolicy(cfg.Policy)
		if err != nil {
			return nil, sentiment.Policy{}, err
		}
		return sentiment.NewVaderClassifier(), policy, nil

	case config.BackendHugot:
		policy, err := sentiment.NewPolicy(cfg.Policy)
		if err != nil {
			return nil, sentiment.Policy{}, err
		}
		loader := clients.NewHugotLoader()
		model, err := loader.Get(cfg.Hugot)
		if err != nil {
			return nil, sentiment.Policy{}, fmt.Errorf("loading local model: %w", err)
		}
		*closers = append(*closers, func() {
			if err := loader.Close(); err != nil {
				slog.Warn("[Backend] Failed to close model session", slog.String("error", err.Error()))
			}
		})
		return model, policy, nil

	case config.BackendGateway:
		if cfg.Gateway.APIKey == "" {
			return nil, sentiment.Policy{}, errors.New("gateway backend needs GATEWAY_API_KEY or OPENAI_API_KEY")
		}
		// single-word labels carry no score
		return clients.NewGatewayClient(cfg.Gateway, cfg.Analysis.CallTimeout.Duration), sentiment.Ternary(), nil

	default:
		return nil, sentiment.Policy{}, fmt.Errorf("unknown backend %q", cfg.Analysis.Backend)
	}
}

func cacheNamespace(cfg *config.Config) string {
	switch cfg.Analysis.Backend {
	case config.BackendHugot:
		return cfg.Analysis.Backend + ":" + cfg.Hugot.Model
	case config.BackendGateway:
		return cfg.Analysis.Backend + ":" + cfg.Gateway.Model
	default:
		return cfg.Analysis.Backend
	}
}

// Remote builds the batched gateway analyzer. The gateway client is returned
// too so callers can health-check it.
func Remote(cfg *config.Config) (*analysis.RemoteAnalyzer, *clients.GatewayClient, error) {
	if cfg.Gateway.APIKey == "" {
		return nil, nil, errors.New("remote mode needs GATEWAY_API_KEY or OPENAI_API_KEY")
	}
	gateway := clients.NewGatewayClient(cfg.Gateway, cfg.Analysis.CallTimeout.Duration)
	return analysis.NewRemoteAnalyzer(gateway, RemoteOptions(cfg.Analysis)), gateway, nil
}

func RemoteOptions(cfg config.AnalysisConfig) analysis.RemoteOptions {
	return analysis.RemoteOptions{
		BatchSize:        cfg.BatchSize,
		BatchDelay:       cfg.BatchDelay.Duration,
		RateLimitRetries: cfg.RateLimitRetries,
		InitialBackoff:   cfg.InitialBackoff.Duration,
		MaxBackoff:       cfg.MaxBackoff.Duration,
	}
}
