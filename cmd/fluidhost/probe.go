package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newProbeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "report SIMD and shared-memory threading support",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := newDriver()
			defer closeDriver(d)

			profile := d.Profile(cmd.Context())
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(profile)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "extended simd\t%v\t%s\n", profile.ExtendedSIMD, profile.Detail.SIMDFeature)
			fmt.Fprintf(w, "shared-memory threading\t%v\t%s\n", profile.SharedMemoryThreading, profile.Detail.IsolationNote)
			fmt.Fprintf(w, "cpu\t%s\t%d logical cores\n", profile.Detail.CPU, profile.Detail.LogicalCores)
			fmt.Fprintf(w, "arch\t%s\t\n", profile.Detail.Arch)
			if profile.Detail.Origin != "" {
				fmt.Fprintf(w, "origin\t%s\t\n", profile.Detail.Origin)
				fmt.Fprintf(w, "  coep\t%s\t\n", orNone(profile.Detail.COEP))
				fmt.Fprintf(w, "  coop\t%s\t\n", orNone(profile.Detail.COOP))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if err := profile.Require(true); err != nil {
				fmt.Printf("\nmultithreaded module: unavailable (%v)\n", err)
			} else {
				fmt.Println("\nmultithreaded module: available")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the profile as JSON")
	return cmd
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
