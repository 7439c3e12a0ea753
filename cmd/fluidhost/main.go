package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/fluidhost/internal/config"
	"github.com/san-kum/fluidhost/internal/driver"
	"github.com/san-kum/fluidhost/internal/logging"
)

var (
	configFile        string
	preset            string
	logLevel          string
	logFormat         string
	engine            string
	image             string
	origin            string
	threadsCap        int
	allowSingleThread bool
	dataDir           string

	cfg *config.Config
	log *zap.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "fluidhost",
		Short:         "host driver for the multithreaded fluid compute module",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err = logging.New(cfg.Log)
			if err != nil {
				return err
			}
			logging.Set(log)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "use preset configuration")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	pf.StringVar(&engine, "engine", "native", "compute engine (native, wasm)")
	pf.StringVar(&image, "image", "builtin", "module image: builtin, file path or http(s) URL")
	pf.StringVar(&origin, "origin", "", "origin whose isolation headers decide threading support")
	pf.IntVar(&threadsCap, "threads-cap", 0, "upper bound on worker threads (0 keeps the configured cap)")
	pf.StringVar(&dataDir, "data", ".fluidhost", "data directory for saved runs")
	pf.BoolVar(&allowSingleThread, "allow-single-thread", false, "run on one worker when threading is unavailable")

	rootCmd.AddCommand(
		newProbeCmd(),
		newBenchCmd(),
		newRunCmd(),
		newLiveCmd(),
		newServeCmd(),
		newKernelCmd(),
		newPresetsCmd(),
		newRunsCmd(),
		newShowCmd(),
		newPlotCmd(),
	)
	return rootCmd
}

// loadConfig layers defaults, the preset, the config file and finally the
// flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	c := config.DefaultConfig()

	if preset != "" {
		p, ok := config.GetPreset(preset)
		if !ok {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		p.Apply(c)
	}

	if configFile != "" {
		if err := config.LoadInto(configFile, c); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		c.Log.Format = logFormat
	}
	if flags.Changed("engine") {
		c.Engine = engine
	}
	if flags.Changed("image") {
		c.Image = image
	}
	if flags.Changed("origin") {
		c.Origin = origin
	}
	if flags.Changed("threads-cap") {
		c.Threads.PolicyCap = threadsCap
	}
	if flags.Changed("data") {
		c.DataDir = dataDir
	}
	if flags.Changed("allow-single-thread") {
		c.Threads.AllowSingleThread = allowSingleThread
	}
	return c, nil
}

func newDriver() *driver.Driver {
	return driver.New(cfg, driver.WithLogger(log))
}

// closeDriver releases the module after a command finishes.
func closeDriver(d *driver.Driver) {
	if err := d.Close(context.Background()); err != nil {
		log.Warn("closing compute module", zap.Error(err))
	}
}
