// Package backend builds the bot backend and query cache a front end runs
// on, from loaded configuration.
package backend

import (
	"github.com/sirupsen/logrus"

	"whatsbot/internal/config"
	"whatsbot/internal/metrics"
	"whatsbot/internal/models"
	"whatsbot/internal/query"
	"whatsbot/pkg/botapi"
	"whatsbot/pkg/botapi/offline"
	"whatsbot/pkg/circuitbreaker"
)

// New returns the fixture backend in offline mode, otherwise an HTTP client
// for cfg.API.BaseURL. verbose forces unmasked request logging.
func New(cfg *models.Config, logger *logrus.Logger, registry *metrics.Registry, verbose bool) (botapi.Backend, error) {
	if cfg.Offline() {
		logger.Info("Using offline demo backend")
		return offline.New(offline.WithSimulatedLatency()), nil
	}

	opts := []botapi.Option{
		botapi.WithLogger(logger),
		botapi.WithTimeout(config.Seconds(cfg.API.TimeoutSec)),
		botapi.WithUserAgent(cfg.API.UserAgent),
		botapi.WithMetrics(registry),
		botapi.WithVerboseLogging(verbose || cfg.API.VerboseLogging),
	}
	if cfg.API.CircuitMaxFailures > 0 {
		opts = append(opts, botapi.WithCircuitBreaker(circuitbreaker.New("bot-api",
			circuitbreaker.WithMaxFailures(cfg.API.CircuitMaxFailures),
			circuitbreaker.WithCooldown(config.Seconds(cfg.API.CircuitCooldownSec)),
			circuitbreaker.WithLogger(logger),
			circuitbreaker.WithMetrics(registry),
		)))
	}

	client, err := botapi.New(cfg.API.BaseURL, opts...)
	if err != nil {
		return nil, err
	}
	logger.WithField("base_url", client.BaseURL()).Info("Using bot backend")
	return client, nil
}

// NewCache returns a query cache configured from cfg.Query.
func NewCache(cfg *models.Config, logger *logrus.Logger, registry *metrics.Registry) *query.Cache {
	return query.New(
		query.WithStaleTime(config.Seconds(cfg.Query.StaleTimeSec)),
		query.WithGCTime(config.Seconds(cfg.Query.GCTimeSec)),
		query.WithGCInterval(config.Seconds(cfg.Query.GCIntervalSec)),
		query.WithQueryRetry(config.QueryRetry(cfg)),
		query.WithMutationRetry(config.MutationRetry(cfg)),
		query.WithLogger(logger),
		query.WithMetrics(registry),
	)
}
