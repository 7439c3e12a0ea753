package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/fluidhost/internal/storage"
)

func newRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "list saved runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := storage.New(cfg.DataDir).List()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tENGINE\tWORKERS\tTIME\tRESULT")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.ID, r.Kind, r.Engine, r.Workers, r.Timestamp.Format("2006-01-02 15:04:05"), summary(r))
			}
			return w.Flush()
		},
	}
}

func summary(r storage.RunMetadata) string {
	switch {
	case r.Error != "":
		return "failed: " + r.Error
	case r.Bench != nil:
		return fmt.Sprintf("%d x %d in %.1fms", r.Bench.Iterations, r.Bench.InputSize, r.Bench.TotalElapsedMs)
	default:
		return fmt.Sprintf("%.0f frames, %.2fms/step", r.Metrics["frames"], r.Metrics["mean_step_ms"])
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [run_id]",
		Short: "print saved run metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := storage.New(cfg.DataDir).Load(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(meta)
		},
	}
}

func newPlotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot step durations of a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frames, err := storage.New(cfg.DataDir).LoadFrames(args[0])
			if err != nil {
				return err
			}
			if len(frames) == 0 {
				return fmt.Errorf("no frames in run %s", args[0])
			}

			stepMs := make([]float64, len(frames))
			for i, f := range frames {
				stepMs[i] = f.StepMs
			}
			fmt.Println(asciigraph.Plot(stepMs,
				asciigraph.Height(15),
				asciigraph.Width(80),
				asciigraph.Caption(fmt.Sprintf("%s step duration (ms)", args[0]))))
			return nil
		},
	}
}
