// Package config loads service configuration from defaults, an optional file and
// JOBSTREAM_ prefixed environment variables.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"

	ModeGroup  = "group"
	ModeSimple = "simple"

	RunnerSleep  = "sleep"
	RunnerDocker = "docker"
)

// Config is the root configuration.
type Config struct {
	Stream StreamConfig `mapstructure:"stream"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Worker WorkerConfig `mapstructure:"worker"`
	HTTP   HTTPConfig   `mapstructure:"http"`
	Log    LogConfig    `mapstructure:"log"`
}

// StreamConfig selects the store and names the stream and consumer group.
type StreamConfig struct {
	Backend         string `mapstructure:"backend"`
	Key             string `mapstructure:"key"`
	Group           string `mapstructure:"group"`
	Consumer        string `mapstructure:"consumer"`
	Mode            string `mapstructure:"mode"`
	AtomicAdmission bool   `mapstructure:"atomic_admission"`
	OutcomesChannel string `mapstructure:"outcomes_channel"`
}

type RedisConfig struct {
	URL              string        `mapstructure:"url"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// WorkerConfig tunes the job processor.
type WorkerConfig struct {
	Runner          string        `mapstructure:"runner"`
	JobDuration     time.Duration `mapstructure:"job_duration"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	ShutdownGrace   time.Duration `mapstructure:"shutdown_grace"`
	ReclaimInterval time.Duration `mapstructure:"reclaim_interval"`
	ReclaimMinIdle  time.Duration `mapstructure:"reclaim_min_idle"`
	Image           string        `mapstructure:"image"`
}

type HTTPConfig struct {
	Addr      string  `mapstructure:"addr"`
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Stream: StreamConfig{
			Backend:         BackendRedis,
			Key:             "jobstream:jobs",
			Group:           "jobstream:workers",
			Consumer:        defaultConsumer(),
			Mode:            ModeGroup,
			OutcomesChannel: "jobstream:outcomes",
		},
		Redis: RedisConfig{
			URL:              "redis://localhost:6379/0",
			OperationTimeout: 5 * time.Second,
		},
		Worker: WorkerConfig{
			Runner:          RunnerSleep,
			JobDuration:     10 * time.Second,
			PollInterval:    100 * time.Millisecond,
			ShutdownGrace:   15 * time.Second,
			ReclaimInterval: 30 * time.Second,
			ReclaimMinIdle:  5 * time.Minute,
			Image:           "alpine:3.20",
		},
		HTTP: HTTPConfig{
			Addr:      ":8080",
			RateLimit: 5,
			RateBurst: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// defaultConsumer names the consumer after the host, or a random id when the host name
// is unavailable.
func defaultConsumer() string {
	if host, err := os.Hostname(); err == nil && strings.TrimSpace(host) != "" {
		return host
	}
	return "consumer-" + uuid.NewString()
}
