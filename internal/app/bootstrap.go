package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dontdude/jobstream/internal/config"
	"github.com/dontdude/jobstream/internal/platform/logger"
)

// Load reads the configuration and builds the logger it asks for.
func Load(configFile string) (*config.Config, *logger.ZapLogger, error) {
	cfg, err := config.NewViperLoader(configFile, config.EnvPrefix).Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(logger.Config{
		Level:  logger.Level(cfg.Log.Level),
		Format: logger.Format(cfg.Log.Format),
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
