package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/PortGo/internal/config"
	"github.com/cjeanneret/PortGo/internal/debug"
	"github.com/cjeanneret/PortGo/internal/engine"
)

var (
	// Global flags
	cfgPath    string
	debugLevel int
)

var rootCmd = &cobra.Command{
	Use:   "portgo",
	Short: "Port pin configuration engine for TM4C-class GPIO blocks",
	Long: `PortGo programs a static pin table into the GPIO port registers of a
TM4C-class microcontroller and applies runtime direction and mode changes.

Examples:
  portgo check                                      # Validate configs/default.yaml
  portgo apply --op dir:1:in --op mode:2:7          # Apply, change pins, dump registers
  portgo serve --listen :8080                       # Apply and expose the HTTP console
  portgo version                                    # Print the driver version`,
	Version:      fmt.Sprintf("%d.%d.%d", engine.SWMajor, engine.SWMinor, engine.SWPatch),
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", filepath.Join("configs", "default.yaml"),
		"path to config file")
	rootCmd.PersistentFlags().IntVarP(&debugLevel, "debug", "d", -1,
		"debug level 0-4, overrides engine.debug_level")
}

// loadConfig validates the config path, loads it and initializes the
// debug system.
func loadConfig() (*config.Config, error) {
	if err := config.ValidateConfigPath(cfgPath); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	level := cfg.Engine.DebugLevel
	if debugLevel >= 0 {
		if debugLevel > 4 {
			return nil, fmt.Errorf("--debug must be between 0 and 4, got %d", debugLevel)
		}
		level = debugLevel
	}
	debug.Init(level)
	debug.Section("Initialization")
	debug.Value("Config path", cfgPath)
	debug.Value("Debug level", level)
	debug.Value("Backend", cfg.Engine.Backend)
	debug.PrintStruct("Engine config", cfg.Engine)
	debug.PrintStruct("Diag config", cfg.Diag)
	return cfg, nil
}
