package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/san-kum/fluidhost/internal/config"
)

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("presets:")
			for _, name := range config.ListPresets() {
				p, _ := config.GetPreset(name)
				fmt.Printf("  %-12s %s\n", name, p.Description)
			}
		},
	}
}
