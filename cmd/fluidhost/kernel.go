package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/san-kum/fluidhost/internal/compute"
)

func newKernelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kernel [path]",
		Short: "write the built-in reduction kernel image",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "kernel.wasm"
			if len(args) > 0 {
				path = args[0]
			}
			if err := os.WriteFile(path, compute.KernelImage, 0644); err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d bytes)\n", path, len(compute.KernelImage))
			return nil
		},
	}
}
