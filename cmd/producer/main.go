package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/dontdude/jobstream/internal/app"
	"github.com/dontdude/jobstream/internal/domain"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "producer",
		Short:         "Administer the job queue directly on the stream",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a config file (yaml, json or toml)")

	// withApp runs fn against a freshly opened app and closes it afterwards.
	withApp := func(fn func(cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, log, err := app.Load(configFile)
			if err != nil {
				return err
			}
			defer log.Sync()

			a, err := app.New(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			return fn(cmd, a, args)
		}
	}

	var (
		jobID   int64
		jobName string
	)
	admitCmd := &cobra.Command{
		Use:   "admit",
		Short: "Append a job to the queue",
		RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			entryID, err := a.Queue().Admit(cmd.Context(), domain.Job{ID: jobID, Name: jobName})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), entryID)
			return nil
		}),
	}
	admitCmd.Flags().Int64Var(&jobID, "id", 0, "job id")
	admitCmd.Flags().StringVar(&jobName, "name", "", "job name")
	_ = admitCmd.MarkFlagRequired("id")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print the ids of queued jobs, oldest first",
		RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			ids, err := a.Queue().ListPendingIDs(cmd.Context())
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(ids)
		}),
	}

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Print the number of queued jobs",
		RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			n, err := a.Queue().Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		}),
	}

	removeCmd := &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Remove a queued job that is not running",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}
			return a.Queue().Remove(cmd.Context(), id)
		}),
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every queued job, including the running one",
		RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			return a.Queue().Clear(cmd.Context())
		}),
	}

	rootCmd.AddCommand(admitCmd, listCmd, countCmd, removeCmd, clearCmd)
	return rootCmd
}
