package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/fluidhost/internal/frame"
	"github.com/san-kum/fluidhost/internal/surface"
	"github.com/san-kum/fluidhost/internal/viz"
)

func newLiveCmd() *cobra.Command {
	var (
		sf    simFlags
		theme string
	)
	cmd := &cobra.Command{
		Use:   "live",
		Short: "run the simulation with a live terminal view",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sf.apply(cmd); err != nil {
				return err
			}

			d := newDriver()
			defer closeDriver(d)

			canvas := surface.NewCanvas(60, 30)
			defer canvas.Close()

			pacer := frame.NewManualPacer()
			sess, err := d.Simulate(cmd.Context(), canvas, pacer)
			if err != nil {
				return err
			}
			defer func() {
				if err := sess.Shutdown(context.Background()); err != nil {
					log.Warn("simulation ended with error", zap.Error(err))
				}
			}()

			h, err := d.Prepare(cmd.Context())
			if err != nil {
				return err
			}
			info := viz.Info{
				Title:     "fluid",
				Engine:    h.Engine(),
				Workers:   h.Workers(),
				Particles: cfg.Simulation.Particles,
				FPS:       cfg.Simulation.FPS,
			}
			m := viz.NewModel(sess, pacer, canvas, info, viz.GetTheme(theme))
			return viz.Run(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		},
	}
	sf.register(cmd)
	cmd.Flags().StringVar(&theme, "theme", "ocean", "color theme")
	return cmd
}
