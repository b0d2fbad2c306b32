package main

import (
	"fmt"
	"os"

	"github.com/dontdude/jobstream/internal/app"
	"github.com/spf13/cobra"
)

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "worker",
		Short:         "Consume and process queued jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := app.Load(configFile)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := app.SignalContext()
			defer stop()

			a, err := app.New(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			w, err := a.NewWorker(ctx)
			if err != nil {
				return err
			}
			log.Info("Starting worker", "consumer", cfg.Stream.Consumer, "mode", cfg.Stream.Mode)
			return w.Run(ctx)
		},
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "path to a config file (yaml, json or toml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
