package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"boldpipe/internal/artifacts"
	"boldpipe/pkg/config"
	"boldpipe/pkg/pipeline"
)

func newRunCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline for the configured subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configFlag)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			log := newLogger(cfg.Logging.Level)

			store, err := artifacts.Open(cfg.Output.Dir)
			if err != nil {
				return err
			}
			defer store.Close()

			env := &pipeline.Env{
				Cfg:    cfg,
				Log:    log,
				Layout: pipeline.Layout{Dir: cfg.Output.Dir},
			}
			stages, err := pipeline.BuildStages(env)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return pipeline.NewRunner(store, log).Run(ctx, stages)
		},
	}
}
