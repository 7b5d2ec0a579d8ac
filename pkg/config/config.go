// Package config provides environment-based configuration loading and
// validation, plus helpers to read and update the two files the console
// persists state in: .env (credentials and resource selection) and
// config.toml (everything else, including the chosen auth method).
//
// This package reads configuration from environment variables (and .env
// files) using struct tags, then validates the loaded configuration.
//
// Usage:
//
//	import "github.com/sb-console/engine/pkg/config"
//
//	type AppConfig struct {
//		Port     int    `env:"PORT" env-default:"8080"`
//		LogLevel string `env:"LOG_LEVEL" env-default:"INFO" validate:"required"`
//	}
//
//	var cfg AppConfig
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/sb-console/engine/pkg/errors"
)

// Load reads configuration from .env file or environment variables and
// validates it against the struct's `validate` tags.
func Load[T any](cfg *T) error {
	if err := cleanenv.ReadConfig(".env", cfg); err != nil {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return errors.Configuration("failed to read env config", err)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return errors.Configuration("config validation failed", err)
	}

	return nil
}

// RuntimeConfig holds the operator-tunable runtime options: pagination
// width, bulk batching/pacing, queue-stats and resource-cache TTLs, DLQ
// timeouts and auth refresh tuning.
type RuntimeConfig struct {
	MaxMessages int `env:"MAX_MESSAGES" env-default:"100" validate:"min=100,max=1000"`

	BulkChunkSize          int           `env:"BATCH_BULK_CHUNK_SIZE" env-default:"2048" validate:"min=1"`
	BulkPacingThreshold    int           `env:"BATCH_PACING_THRESHOLD" env-default:"500" validate:"min=1"`
	OperationTimeout       time.Duration `env:"BATCH_OPERATION_TIMEOUT_SECS" env-default:"300s"`
	OrderWarningThreshold  int           `env:"BATCH_ORDER_WARNING_THRESHOLD" env-default:"2048"`
	QueueStatsTTL          time.Duration `env:"QUEUE_STATS_TTL_SECS" env-default:"60s"`
	QueueStatsUseMgmtAPI   bool          `env:"QUEUE_STATS_USE_MANAGEMENT_API" env-default:"true"`
	ResourceCacheTTL       time.Duration `env:"RESOURCE_CACHE_TTL_SECS" env-default:"300s"`
	ResourceCacheMaxEntry  int           `env:"RESOURCE_CACHE_MAX_ENTRIES" env-default:"1000"`
	DLQReceiveTimeout      time.Duration `env:"DLQ_RECEIVE_TIMEOUT_SECS" env-default:"30s"`
	DLQSendTimeout         time.Duration `env:"DLQ_SEND_TIMEOUT_SECS" env-default:"30s"`
	DLQOverallTimeoutCap   time.Duration `env:"DLQ_OVERALL_TIMEOUT_CAP_SECS" env-default:"600s"`
	AuthTokenSafetyMargin  time.Duration `env:"AUTH_TOKEN_SAFETY_MARGIN_SECS" env-default:"45s" validate:"min=30000000000,max=60000000000"`
	AuthMaxRefreshRetries  int           `env:"AUTH_MAX_REFRESH_RETRIES" env-default:"5" validate:"min=1"`
}

// ValidPageSizes enumerates the only page sizes the pagination engine
// accepts: 100 through 1000 in steps of 100.
func ValidPageSizes() []int {
	sizes := make([]int, 0, 10)
	for n := 100; n <= 1000; n += 100 {
		sizes = append(sizes, n)
	}
	return sizes
}

// IsValidPageSize reports whether n is one of ValidPageSizes().
func IsValidPageSize(n int) bool {
	return n >= 100 && n <= 1000 && n%100 == 0
}
