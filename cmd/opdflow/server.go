package main

import (
	"io"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/opdflow/internal/config"
	"github.com/ehr/opdflow/internal/platform/auth"
	"github.com/ehr/opdflow/internal/platform/events"
	"github.com/ehr/opdflow/internal/platform/middleware"
)

// newLogger writes JSON, or human-readable console output in development.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Str("service", "opdflow").Logger()
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.ResolvedAuthMode() == config.AuthDevelopment {
		return auth.DevAuthMiddleware()
	}
	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
	}
	if cfg.AuthSigningKey != "" {
		jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
	}
	return auth.JWTMiddleware(jwtCfg)
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

// newPublisher publishes stage changes to Kafka when brokers are
// configured, and only logs them otherwise.
func newPublisher(cfg *config.Config, logger zerolog.Logger) (events.Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info().Msg("no kafka brokers configured, stage changes are logged only")
		return events.NewLogPublisher(logger), nil
	}
	pub, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, err
	}
	logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing stage changes to kafka")
	return pub, nil
}
