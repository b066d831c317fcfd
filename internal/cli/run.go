package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hybridsched/internal/httpapi"
	"hybridsched/internal/job"
	"hybridsched/internal/logx"
	"hybridsched/internal/sched"
)

func newRunCmd() *cobra.Command {
	var (
		ticks    uint64
		tickMS   int
		csvPath  string
		httpAddr string
		mode     string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler against the wall clock until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loaded
			if cmd.Flags().Changed("ticks") {
				cfg.MaxTicks = ticks
			}
			if tickMS > 0 {
				cfg.TickMS = tickMS
			}
			if csvPath != "" {
				cfg.CSVPath = csvPath
			}
			if httpAddr != "" {
				cfg.HTTPAddr = httpAddr
			}
			if mode != "" {
				cfg.Mode = mode
			}

			s, err := sched.New(cfg, sched.WithLogger(logger))
			if err != nil {
				return err
			}
			if cfg.CSVPath != "" {
				if err := s.EnableCSVLogging(cfg.CSVPath); err != nil {
					return fmt.Errorf("enable csv logging: %w", err)
				}
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			script := job.NewScript(cfg.Events, logger)
			go func() {
				if err := script.Play(ctx, s, cfg.TickInterval()/4); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("event script stopped", logx.Err(err))
				}
			}()

			if cfg.HTTPAddr != "" {
				srv := &http.Server{Addr: cfg.HTTPAddr, Handler: httpapi.New(s, logger)}
				go func() {
					logger.Info("http api listening", logx.String("addr", cfg.HTTPAddr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("http api failed", logx.Err(err))
						cancel()
					}
				}()
				defer func() {
					shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
					defer done()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			if err := s.Run(ctx); err != nil {
				return err
			}
			return writeSummary(cmd.OutOrStdout(), s.CurrentTick(), s.Inspect())
		},
	}

	cmd.Flags().Uint64Var(&ticks, "ticks", 0, "Stop after this many ticks (0 = until interrupted)")
	cmd.Flags().IntVar(&tickMS, "tick-ms", 0, "Wall-clock milliseconds per tick (overrides config)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "Write every scheduler event to this CSV file")
	cmd.Flags().StringVar(&httpAddr, "http", "", "Serve the inspection API on this address, e.g. :8080")
	cmd.Flags().StringVar(&mode, "mode", "", "Class selection mode: alternate or strict")
	return cmd
}
