package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

func WriteTable(w io.Writer, results ...Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENGINE\tWORKERS\tINPUT\tITER\tRESULT\tTOTAL\tPER ITER\tELEM/SEC")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.1fms\t%.2fms\t%.3g\n",
			r.Engine, r.Workers, r.InputSize, r.Iterations,
			r.PerIteration, r.TotalElapsedMs, r.MeanIterationMs(), r.Throughput())
	}
	return tw.Flush()
}

func WriteJSON(w io.Writer, results ...Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if len(results) == 1 {
		return enc.Encode(results[0])
	}
	return enc.Encode(results)
}
