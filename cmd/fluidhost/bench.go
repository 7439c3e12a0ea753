package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/fluidhost/internal/bench"
	"github.com/san-kum/fluidhost/internal/storage"
)

func newBenchCmd() *cobra.Command {
	var (
		size       int
		iterations int
		asJSON     bool
		save       bool
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "time repeated parallel reductions over 0..size-1",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("size") {
				cfg.Bench.InputSize = size
			}
			if cmd.Flags().Changed("iterations") {
				cfg.Bench.Iterations = iterations
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			d := newDriver()
			defer closeDriver(d)

			res, err := d.Benchmark(cmd.Context())
			if err != nil {
				return err
			}
			if save {
				runID, err := storage.New(cfg.DataDir).SaveBench(res)
				if err != nil {
					return err
				}
				log.Info("benchmark saved", zap.String("id", runID))
			}
			if asJSON {
				return bench.WriteJSON(os.Stdout, res)
			}
			fmt.Printf("benchmarking %s reduce over %d elements\n\n", res.Engine, res.InputSize)
			return bench.WriteTable(os.Stdout, res)
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "input length (default from config)")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "iterations (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&save, "save", false, "save the result to the data directory")
	return cmd
}
