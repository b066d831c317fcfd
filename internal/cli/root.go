package cli

import (
	"io"

	"github.com/spf13/cobra"

	"hybridsched/internal/job"
	"hybridsched/internal/logx"
	"hybridsched/internal/sched"
)

var (
	flagConfig   string
	flagLogLevel string
	flagLogFile  string

	logger    = logx.Nop()
	logCloser io.Closer
	loaded    sched.Config
)

// NewRootCmd creates the root cobra command for the ticksched CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ticksched",
		Short: "Simulate a hybrid FIFO, Round-Robin and fair-share tick scheduler",
		Long:  "ticksched simulates a tick-driven scheduler mixing real-time (FIFO, Round-Robin) and fair-share (vruntime) tasks.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			loaded = cfg

			// --log-level wins over the config file's log_level
			level := flagLogLevel
			if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
				level = cfg.LogLevel
			}
			l, c, err := logx.New(logx.Config{
				Level:   level,
				Console: true,
				File:    logx.FileConfig{Enabled: flagLogFile != "", Path: flagLogFile},
			})
			if err != nil {
				return err
			}
			logger, logCloser = l, c
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config.yml (empty = defaults + demo workload)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "Also write JSON logs to this file")

	root.AddCommand(
		newRunCmd(),
		newSimulateCmd(),
	)

	return root
}

// loadConfig reads --config and falls back to the demo workload when no tasks are configured.
func loadConfig() (sched.Config, error) {
	cfg, err := sched.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	if len(cfg.Tasks) == 0 {
		cfg.Tasks = job.Demo()
		if len(cfg.Events) == 0 {
			cfg.Events = job.DemoEvents()
		}
	}
	return cfg, nil
}
