package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/PortGo/internal/engine"
	"github.com/cjeanneret/PortGo/internal/pinmap"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print the pin table",
	Long: `Load the configuration, validate its pin table and print it in pin map
form. No register is touched.

Examples:
  portgo check
  portgo check --config configs/launchpad.yaml`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	table := cfg.Table()
	out := cmd.OutOrStdout()

	if err := pinmap.Format(out, table); err != nil {
		return err
	}
	for i, d := range table {
		if c := engine.Classify(d.Group, d.Index); c != engine.PinNormal {
			fmt.Fprintf(out, "# pin %d (%s) is %s\n", i, d.Name(), c)
		}
	}
	fmt.Fprintf(out, "OK: %d pins in %d port groups\n", len(table), table.Groups())
	return nil
}
