package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. JOBSTREAM_STREAM_KEY.
const EnvPrefix = "JOBSTREAM"

// ViperLoader loads Config with precedence ENV > file > defaults.
type ViperLoader struct {
	configFile string
	envPrefix  string
}

// NewViperLoader creates a loader. configFile may be empty; envPrefix defaults to EnvPrefix.
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	if strings.TrimSpace(envPrefix) == "" {
		envPrefix = EnvPrefix
	}
	return &ViperLoader{configFile: configFile, envPrefix: envPrefix}
}

// Load reads, unmarshals and validates the configuration.
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	for _, key := range v.AllKeys() {
		v.BindEnv(key, l.envName(key))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (l *ViperLoader) envName(key string) string {
	return strings.ToUpper(l.envPrefix + "_" + strings.ReplaceAll(key, ".", "_"))
}

func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("stream.backend", cfg.Stream.Backend)
	v.SetDefault("stream.key", cfg.Stream.Key)
	v.SetDefault("stream.group", cfg.Stream.Group)
	v.SetDefault("stream.consumer", cfg.Stream.Consumer)
	v.SetDefault("stream.mode", cfg.Stream.Mode)
	v.SetDefault("stream.atomic_admission", cfg.Stream.AtomicAdmission)
	v.SetDefault("stream.outcomes_channel", cfg.Stream.OutcomesChannel)

	v.SetDefault("redis.url", cfg.Redis.URL)
	v.SetDefault("redis.operation_timeout", cfg.Redis.OperationTimeout)

	v.SetDefault("worker.runner", cfg.Worker.Runner)
	v.SetDefault("worker.job_duration", cfg.Worker.JobDuration)
	v.SetDefault("worker.poll_interval", cfg.Worker.PollInterval)
	v.SetDefault("worker.shutdown_grace", cfg.Worker.ShutdownGrace)
	v.SetDefault("worker.reclaim_interval", cfg.Worker.ReclaimInterval)
	v.SetDefault("worker.reclaim_min_idle", cfg.Worker.ReclaimMinIdle)
	v.SetDefault("worker.image", cfg.Worker.Image)

	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.rate_limit", cfg.HTTP.RateLimit)
	v.SetDefault("http.rate_burst", cfg.HTTP.RateBurst)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}

// Validate checks enum values and required names. It reports every problem at once.
func Validate(cfg *Config) error {
	var errs []error

	oneOf := func(field, value string, allowed ...string) {
		if !slices.Contains(allowed, strings.ToLower(value)) {
			errs = append(errs, fmt.Errorf("invalid %s: %q (must be one of: %v)", field, value, allowed))
		}
	}
	required := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", field))
		}
	}

	oneOf("stream.backend", cfg.Stream.Backend, BackendRedis, BackendMemory)
	oneOf("stream.mode", cfg.Stream.Mode, ModeGroup, ModeSimple)
	oneOf("worker.runner", cfg.Worker.Runner, RunnerSleep, RunnerDocker)
	oneOf("log.level", cfg.Log.Level, "debug", "info", "warn", "error")
	oneOf("log.format", cfg.Log.Format, "json", "text")

	required("stream.key", cfg.Stream.Key)
	required("stream.consumer", cfg.Stream.Consumer)
	if strings.EqualFold(cfg.Stream.Mode, ModeGroup) {
		required("stream.group", cfg.Stream.Group)
	}
	if strings.EqualFold(cfg.Stream.Backend, BackendRedis) {
		required("redis.url", cfg.Redis.URL)
	}
	if strings.EqualFold(cfg.Worker.Runner, RunnerDocker) {
		required("worker.image", cfg.Worker.Image)
	}

	if cfg.Worker.PollInterval <= 0 {
		errs = append(errs, errors.New("worker.poll_interval must be positive"))
	}
	if cfg.Worker.ShutdownGrace < 0 {
		errs = append(errs, errors.New("worker.shutdown_grace must not be negative"))
	}
	if cfg.HTTP.RateLimit <= 0 || cfg.HTTP.RateBurst <= 0 {
		errs = append(errs, errors.New("http.rate_limit and http.rate_burst must be positive"))
	}

	return errors.Join(errs...)
}
