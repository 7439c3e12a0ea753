package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/fluidhost/internal/frame"
	"github.com/san-kum/fluidhost/internal/shim"
	"github.com/san-kum/fluidhost/internal/surface"
)

func newServeCmd() *cobra.Command {
	var (
		sf       simFlags
		addr     string
		dir      string
		simulate bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve static assets with cross-origin isolation headers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				cfg.Serve.Addr = addr
			}
			if cmd.Flags().Changed("dir") {
				cfg.Serve.Dir = dir
			}
			if err := sf.apply(cmd); err != nil {
				return err
			}
			if simulate && !cfg.Serve.Telemetry {
				return errors.New("--simulate needs telemetry enabled in the serve config")
			}

			srv := shim.NewServer(cfg.Serve, log)
			if simulate {
				d := newDriver()
				defer closeDriver(d)

				raster := surface.NewRaster(cfg.Simulation.SurfaceSize())
				defer raster.Close()

				sess, err := d.Simulate(cmd.Context(), raster, frame.NewTickerPacer(cfg.Simulation.FPS),
					frame.WithObserver(srv.Telemetry()))
				if err != nil {
					return err
				}
				defer func() {
					if err := sess.Shutdown(context.Background()); err != nil {
						log.Warn("simulation ended with error", zap.Error(err))
					}
				}()
				log.Info("streaming frame telemetry", zap.String("path", shim.TelemetryPath))
			}
			return srv.ListenAndServe(cmd.Context())
		},
	}
	sf.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&dir, "dir", "", "static asset directory (default from config)")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "run a headless simulation and stream its frames on the telemetry socket")
	return cmd
}
