package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/rehydrator/internal/app"
	"github.com/dharsanguruparan/rehydrator/internal/config"
	"github.com/dharsanguruparan/rehydrator/internal/idlist"
	"github.com/dharsanguruparan/rehydrator/internal/logger"
	"github.com/dharsanguruparan/rehydrator/internal/queue"
)

var configFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "rehydrate: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rehydrate",
		Short: "Rehydrate archived activities from id lists",
		Long: `rehydrate reads activity id lists dropped into the in-box, requests the activities from the
rehydration API in batches of 25, and stores them as files, database rows, or objects.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (REHYDRATE_* env vars override it)")
	cmd.AddCommand(
		newRunCmd(),
		newEnqueueCmd(),
		newIDsCmd(),
	)
	return cmd
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(cfg.Logging.Level, cfg.Logging.Format), nil
}

func newRunCmd() *cobra.Command {
	var inBox, completed string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every file currently in the in-box and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if inBox != "" {
				cfg.Rehydration.InBox = inBox
			}
			if completed != "" {
				cfg.Rehydration.InBoxCompleted = completed
			}

			pipeline, err := app.Build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			report, err := pipeline.Orchestrator.RunOnce(ctx, cfg.Rehydration.InBox, cfg.Rehydration.InBoxCompleted)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"run_id":   report.RunID,
				"files":    len(report.Files),
				"skipped":  len(report.Skipped),
				"requests": report.Requests(),
			}).Info("run finished")
			if len(report.Skipped) > 0 {
				return fmt.Errorf("left unreadable files in the in-box: %s", strings.Join(report.Skipped, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&inBox, "in-box", "", "Override the configured in-box directory")
	cmd.Flags().StringVar(&completed, "completed", "", "Override the configured completed directory")
	return cmd
}

func newEnqueueCmd() *cobra.Command {
	var inBox, completed string
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Ask the worker to drain the in-box",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			client := asynq.NewClient(asynq.RedisClientOpt{
				Addr:     cfg.Queue.RedisAddr,
				Password: cfg.Queue.RedisPassword,
				DB:       cfg.Queue.RedisDB,
			})
			defer client.Close()

			payload := queue.DrainPayload{InBox: inBox, InBoxCompleted: completed}
			if err := queue.EnqueueDrain(cmd.Context(), client, payload); err != nil {
				return err
			}
			log.WithField("redis", cfg.Queue.RedisAddr).Info("drain enqueued")
			return nil
		},
	}
	cmd.Flags().StringVar(&inBox, "in-box", "", "In-box directory as seen by the worker")
	cmd.Flags().StringVar(&completed, "completed", "", "Completed directory as seen by the worker")
	return cmd
}

func newIDsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ids <file>",
		Short: "Print the ids the parser finds in a request file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			ids := idlist.Parse(strings.TrimSpace(string(data)))
			out := cmd.OutOrStdout()
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d ids\n", len(ids))
			return nil
		},
	}
}
