package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dontdude/jobstream/internal/app"
	"github.com/dontdude/jobstream/internal/platform/web"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		configFile string
		apiOnly    bool
	)

	rootCmd := &cobra.Command{
		Use:           "server",
		Short:         "Run the job queue HTTP API and, unless --api-only, the job processor",
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

			g, gctx := errgroup.WithContext(ctx)
			var processor web.ProcessorState
			if !apiOnly {
				w, err := a.NewWorker(ctx)
				if err != nil {
					return err
				}
				processor = w.Processor
				// The worker keeps the signal context so a failing server does not cut the
				// in-flight body short.
				g.Go(func() error { return w.Run(ctx) })
			}
			g.Go(func() error {
				err := a.Serve(gctx, processor)
				stop()
				return err
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info("Shutdown complete")
			return nil
		},
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "path to a config file (yaml, json or toml)")
	rootCmd.Flags().BoolVar(&apiOnly, "api-only", false, "serve the API without consuming jobs")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
