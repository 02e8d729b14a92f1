package main

import (
	"github.com/rs/zerolog"

	"github.com/rcourtman/harborview/internal/config"
	"github.com/rcourtman/harborview/internal/engine"
	"github.com/rcourtman/harborview/internal/monitoring"
)

// Overridden in tests to run commands against a fake engine.
var (
	newEnumeratorFn = func(cfg *config.Config, logger zerolog.Logger) engine.EndpointEnumerator {
		return engine.NewCLIEnumerator(cfg.ContextBinary, logger)
	}
	newConnectorFn = func(cfg *config.Config, enumerator engine.EndpointEnumerator, logger zerolog.Logger) engine.Connector {
		return engine.NewStrategy(enumerator, cfg.ProbeTimeout, logger)
	}
)

// components is the engine-facing object graph shared by every command.
type components struct {
	cfg        *config.Config
	enumerator engine.EndpointEnumerator
	cache      *engine.Cache
	fetcher    *monitoring.Fetcher
	logger     zerolog.Logger
}

func buildComponents(cfg *config.Config, logger zerolog.Logger) *components {
	enumerator := newEnumeratorFn(cfg, logger)
	connector := newConnectorFn(cfg, enumerator, logger)

	return &components{
		cfg:        cfg,
		enumerator: enumerator,
		cache: engine.NewCache(connector, engine.CacheConfig{
			RevalidateInterval: cfg.RevalidateInterval,
			ProbeTimeout:       cfg.ProbeTimeout,
		}, logger),
		fetcher: monitoring.NewFetcher(monitoring.FetcherConfig{
			IgnoreContainers: cfg.IgnoreContainers,
			SkipEngineInfo:   cfg.SkipEngineInfo,
		}, logger),
		logger: logger,
	}
}

func (c *components) newMonitor(broadcaster monitoring.Broadcaster) *monitoring.Monitor {
	return monitoring.New(c.cache, c.fetcher, broadcaster, monitorConfig(c.cfg), c.logger)
}

func (c *components) close() {
	if err := c.cache.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Engine cache close failed")
	}
}

func monitorConfig(cfg *config.Config) monitoring.Config {
	return monitoring.Config{
		PollInterval:       cfg.PollInterval,
		FirstEventTimeout:  cfg.FirstEventTimeout,
		BaselineTimeout:    cfg.BaselineTimeout,
		MaxEventFailures:   cfg.MaxEventFailures,
		BackoffBase:        cfg.BackoffBase,
		BackoffMaxExponent: cfg.BackoffMaxExponent,
		BackoffJitter:      cfg.BackoffJitter,
	}
}
