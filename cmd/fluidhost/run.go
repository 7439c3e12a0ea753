package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/fluidhost/internal/frame"
	"github.com/san-kum/fluidhost/internal/loader"
	"github.com/san-kum/fluidhost/internal/metrics"
	"github.com/san-kum/fluidhost/internal/storage"
	"github.com/san-kum/fluidhost/internal/surface"
)

func newRunCmd() *cobra.Command {
	var (
		sf        simFlags
		frames    int
		snapshots string
		every     int
		save      bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the simulation headless for a number of frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sf.apply(cmd); err != nil {
				return err
			}
			if frames < 1 {
				return fmt.Errorf("frames must be positive, got %d", frames)
			}
			if snapshots != "" {
				if err := os.MkdirAll(snapshots, 0755); err != nil {
					return err
				}
			}

			d := newDriver()
			defer closeDriver(d)

			raster := surface.NewRaster(cfg.Simulation.SurfaceSize())
			defer raster.Close()

			// Frames on schedule fit their steps in the budget, or in one
			// display interval when no budget is set.
			budget := cfg.Simulation.StepBudgetMs
			if budget <= 0 {
				budget = 1000 / float64(cfg.Simulation.FPS)
			}
			set := metrics.Default(budget)

			var history []storage.Frame
			pacer := frame.NewManualPacer()
			sess, err := d.Simulate(cmd.Context(), raster, pacer,
				frame.WithObserver(set),
				frame.WithObserver(frame.ObserverFunc(func(s frame.State) {
					if s.Err == nil {
						history = append(history, storage.Frame{Index: s.FrameIndex, StepMs: s.LastStepDurationMs})
					}
				})))
			if err != nil {
				return err
			}

			fmt.Printf("running %d particles for %d frames\n", cfg.Simulation.Particles, frames)
			start := time.Now()
			for i := 1; i <= frames; i++ {
				if cmd.Context().Err() != nil || pacer.Fire(time.Now()) == 0 {
					break
				}
				if snapshots != "" && every > 0 && i%every == 0 && sess.State().Err == nil {
					path := filepath.Join(snapshots, fmt.Sprintf("frame_%05d.png", i))
					if err := raster.SavePNG(path); err != nil {
						sess.Stop()
						return err
					}
					log.Debug("snapshot written", zap.String("path", path))
				}
			}
			elapsed := time.Since(start)
			sess.Stop()
			runErr := sess.Wait(context.Background())

			values := set.Values()
			st := sess.State()
			fmt.Printf("frames: %d in %v\n", st.FrameIndex, elapsed.Round(time.Millisecond))
			fmt.Printf("mean step: %.3f ms  peak step: %.3f ms  on budget: %.0f%%\n",
				values["mean_step_ms"], values["peak_step_ms"], 100*values["on_budget"])
			checksum, hasChecksum := sess.Checksum()
			if hasChecksum {
				fmt.Printf("checksum: %.6f\n", checksum)
			}
			if len(history) > 1 {
				stepMs := make([]float64, len(history))
				for i, f := range history {
					stepMs[i] = f.StepMs
				}
				fmt.Println()
				fmt.Println(asciigraph.Plot(stepMs, asciigraph.Height(8), asciigraph.Width(60), asciigraph.Caption("step duration (ms)")))
			}

			if save {
				if err := saveRun(d.Loader(), values, checksum, runErr, history); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	sf.register(cmd)
	cmd.Flags().IntVar(&frames, "frames", 300, "frames to run")
	cmd.Flags().StringVar(&snapshots, "snapshots", "", "directory for PNG snapshots")
	cmd.Flags().IntVar(&every, "every", 30, "write a snapshot every N frames")
	cmd.Flags().BoolVar(&save, "save", false, "save the run to the data directory")
	return cmd
}

func saveRun(l *loader.Loader, values map[string]float64, checksum float64, runErr error, history []storage.Frame) error {
	h, err := l.Load(context.Background())
	if err != nil {
		return err
	}
	meta := storage.RunMetadata{
		Engine:    h.Engine(),
		Workers:   h.Workers(),
		Particles: cfg.Simulation.Particles,
		Seed:      cfg.Simulation.Seed,
		Checksum:  checksum,
		Metrics:   values,
	}
	if runErr != nil {
		meta.Error = runErr.Error()
	}
	runID, err := storage.New(cfg.DataDir).SaveRun(meta, history)
	if err != nil {
		return err
	}
	fmt.Printf("saved run %s\n", runID)
	return nil
}
