package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"hybridsched/internal/job"
	"hybridsched/internal/sched"
)

func newSimulateCmd() *cobra.Command {
	var (
		ticks uint64
		mode  string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Step the scheduler a fixed number of ticks without waiting and print the trace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loaded
			if mode != "" {
				cfg.Mode = mode
			}

			s, err := sched.New(cfg, sched.WithLogger(logger))
			if err != nil {
				return err
			}
			script := job.NewScript(cfg.Events, logger)

			out := cmd.OutOrStdout()
			for i := uint64(1); i <= ticks; i++ {
				script.Fire(s, i)
				writeTrace(out, s.Step())
			}
			return writeSummary(out, s.CurrentTick(), s.Inspect())
		},
	}

	cmd.Flags().Uint64Var(&ticks, "ticks", 20, "Number of ticks to simulate")
	cmd.Flags().StringVar(&mode, "mode", "", "Class selection mode: alternate or strict")
	return cmd
}

func writeTrace(w io.Writer, res sched.TickResult) {
	for _, ts := range res.Woken {
		fmt.Fprintf(w, "tick %04d  %-6s %-20s woke up\n", res.Tick, "", ts.Name)
	}
	if !res.Ran {
		fmt.Fprintf(w, "tick %04d  idle\n", res.Tick)
		return
	}
	ts := res.Task
	line := fmt.Sprintf("tick %04d  %-6s %-20s total=%-6d state=%s", res.Tick, "["+ts.Policy.String()+"]", ts.Name, ts.TotalRuntime, ts.State)
	if ts.Policy == sched.Fair {
		line += fmt.Sprintf(" vruntime=%d", ts.Vruntime)
	}
	fmt.Fprintln(w, line)
}
