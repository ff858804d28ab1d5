package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/PortGo/internal/debug"
	"github.com/cjeanneret/PortGo/internal/hw/gpio"
)

var (
	opList []string
	noDump bool
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the pin table, run runtime operations, dump registers",
	Long: `Apply the configured pin table to the register surface, then run each
--op in order and print the resulting register values.

Operations:
  dir:<id>:in|out       change the direction of pin <id>
  mode:<id>:<mode>      change the mode of pin <id> (0..15, dio, analog, afN)
  refresh               re-assert non-changeable directions

Examples:
  portgo apply
  portgo apply --op dir:2:in --op mode:2:af7 --op refresh
  portgo apply --config configs/launchpad.yaml --no-dump`,
	Args: cobra.NoArgs,
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().StringArrayVar(&opList, "op", nil,
		"runtime operation to run after apply (repeatable)")
	applyCmd.Flags().BoolVar(&noDump, "no-dump", false,
		"do not print the register dump")
}

func runApply(cmd *cobra.Command, args []string) error {
	ops, err := parseOps(opList)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openSession(cfg, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.apply(cfg); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "applied %d pins\n", len(cfg.Table()))
	if s.engine.LockedPin() {
		fmt.Fprintln(out, "reserved debug pins skipped")
	}

	failed := 0
	for _, o := range ops {
		debug.Live("op %s", o.text)
		if err := o.run(s.engine); err != nil {
			fmt.Fprintf(out, "%s: %v\n", o.text, err)
			failed++
			continue
		}
		fmt.Fprintf(out, "%s: ok\n", o.text)
	}

	if d := s.dumper(); d != nil && !noDump {
		printDump(out, d.Dump())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d operations failed", failed, len(ops))
	}
	return nil
}

func printDump(w io.Writer, dump []gpio.BlockDump) {
	for _, b := range dump {
		names := make([]string, 0, len(b.Registers))
		for name := range b.Registers {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(w, "%s\n", b.Block)
		for _, name := range names {
			fmt.Fprintf(w, "  %-6s 0x%08X\n", name, b.Registers[name])
		}
	}
}
