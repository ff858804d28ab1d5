package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/PortGo/internal/engine"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print vendor, module and software version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		v := engine.Version()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "vendor:   %d\n", v.VendorID)
		fmt.Fprintf(out, "module:   %d\n", v.ModuleID)
		fmt.Fprintf(out, "software: %d.%d.%d\n", v.Major, v.Minor, v.Patch)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
