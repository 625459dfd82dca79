package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"bulkpress/internal/app"
	"bulkpress/internal/config"
)

type configLoader func(ctx context.Context) (*config.Config, error)

func loadConfig(ctx context.Context) (*config.Config, error) {
	return config.Load(ctx)
}

// cli carries state shared by the subcommands.
type cli struct {
	load     configLoader
	pipeline string
	cfg      *config.Config
	logger   *slog.Logger
}

func newRootCmd(load configLoader) *cobra.Command {
	c := &cli{load: load}

	root := &cobra.Command{
		Use:          "bulkpress",
		Short:        "Generate articles for keyword batches",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			if c.pipeline != "" {
				cfg.PipelineFile = c.pipeline
			}
			c.cfg = cfg
			c.logger = app.NewLogger(cfg)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.pipeline, "config", "c", "", "pipeline YAML file (overrides PIPELINE_CONFIG)")

	root.AddCommand(
		newRunCmd(c),
		newInvalidateCmd(c),
		newProvidersCmd(c),
	)
	return root
}

// build wires the application for one command.
func (c *cli) build(ctx context.Context) (*app.App, error) {
	return app.Build(ctx, c.cfg, c.logger, app.Options{})
}
