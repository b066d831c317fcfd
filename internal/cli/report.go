package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"hybridsched/internal/sched"
)

// writeSummary prints one row per task after a run.
func writeSummary(w io.Writer, tick uint64, tasks []sched.TaskSnapshot) error {
	fmt.Fprintf(w, "\n%s ticks, %d tasks\n", humanize.Comma(int64(tick)), len(tasks))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPOLICY\tNICE\tSTATE\tRUNTIME\tVRUNTIME\tSHARE")

	var total uint64
	for _, ts := range tasks {
		total += ts.TotalRuntime
	}
	for _, ts := range tasks {
		share := "-"
		if total > 0 {
			share = humanize.FtoaWithDigits(100*float64(ts.TotalRuntime)/float64(total), 1) + "%"
		}
		vr := "-"
		if ts.Policy == sched.Fair {
			vr = humanize.Comma(int64(ts.Vruntime))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			ts.ID, ts.Name, ts.Policy, ts.Nice, ts.State,
			humanize.Comma(int64(ts.TotalRuntime)), vr, share)
	}
	return tw.Flush()
}
