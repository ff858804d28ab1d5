package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/PortGo/internal/pinmap"
	"github.com/cjeanneret/PortGo/internal/port"
)

// MaxConfigFileBytes caps the size of a configuration file.
const MaxConfigFileBytes = 1 << 20

// EngineConfig selects the register surface and logging.
type EngineConfig struct {
	Backend    string         `yaml:"backend"`     // mock, devmem or rpio
	DebugLevel int            `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	RPioMap    map[string]int `yaml:"rpio_map"`    // pin name -> BCM line, rpio backend only
}

// DiagConfig describes where diagnostic reports go besides the log.
// An empty SerialDevice keeps them in the log only.
type DiagConfig struct {
	SerialDevice  string `yaml:"serial_device"` // e.g. "/dev/ttyUSB0"
	SerialBaud    int    `yaml:"serial_baud"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
}

// WebConfig holds the HTTP surface settings.
type WebConfig struct {
	Listen string `yaml:"listen"` // e.g. ":8080"
}

// PinConfig is one inline pin table entry.
type PinConfig struct {
	Pin                 string `yaml:"pin"`       // e.g. "PF3"
	Mode                string `yaml:"mode"`      // dio, analog or afN
	Direction           string `yaml:"direction"` // in or out
	Initial             string `yaml:"initial"`   // high or low, outputs only
	Resistor            string `yaml:"resistor"`  // none, pullup or pulldown, inputs only
	DirectionChangeable bool   `yaml:"direction_changeable"`
	ModeChangeable      bool   `yaml:"mode_changeable"`
}

// Config aggregates all application configuration.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Diag   DiagConfig   `yaml:"diag"`
	Web    WebConfig    `yaml:"web"`
	Pins   []PinConfig  `yaml:"pins,omitempty"`
	Pinmap string       `yaml:"pinmap,omitempty"` // pin map file, relative to the config file

	table port.Table
}

var backends = map[string]bool{"mock": true, "devmem": true, "rpio": true}

// ValidateConfigPath rejects paths that traverse upwards, do not end in
// .yaml or do not sit directly inside a configs/ directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, elem := range strings.Split(filepath.ToSlash(path), "/") {
		if elem == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must end in .yaml", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration with its pin
// table resolved.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if cfg.Engine.Backend == "" {
		cfg.Engine.Backend = "mock"
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}
	if cfg.Diag.SerialBaud <= 0 {
		cfg.Diag.SerialBaud = 115200
	}

	if !backends[cfg.Engine.Backend] {
		return nil, fmt.Errorf("engine.backend must be mock, devmem or rpio, got %q", cfg.Engine.Backend)
	}
	if cfg.Engine.DebugLevel < 0 || cfg.Engine.DebugLevel > 4 {
		return nil, fmt.Errorf("engine.debug_level must be between 0 and 4, got %d", cfg.Engine.DebugLevel)
	}
	if cfg.Engine.Backend == "rpio" && len(cfg.Engine.RPioMap) == 0 {
		return nil, fmt.Errorf("engine.rpio_map is required for the rpio backend")
	}
	for name := range cfg.Engine.RPioMap {
		if _, _, err := port.ParsePinName(name); err != nil {
			return nil, fmt.Errorf("engine.rpio_map: %w", err)
		}
	}

	switch {
	case len(cfg.Pins) > 0 && cfg.Pinmap != "":
		return nil, fmt.Errorf("pins and pinmap are mutually exclusive")
	case cfg.Pinmap != "":
		mapPath, err := resolvePinmap(path, cfg.Pinmap)
		if err != nil {
			return nil, err
		}
		cfg.table, err = pinmap.Load(mapPath)
		if err != nil {
			return nil, fmt.Errorf("pinmap: %w", err)
		}
	default:
		cfg.table, err = PinTable(cfg.Pins)
		if err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func resolvePinmap(cfgPath, mapPath string) (string, error) {
	if filepath.IsAbs(mapPath) {
		return "", fmt.Errorf("pinmap %q must be relative to the config file", mapPath)
	}
	for _, elem := range strings.Split(filepath.ToSlash(mapPath), "/") {
		if elem == ".." {
			return "", fmt.Errorf("pinmap %q must not contain '..'", mapPath)
		}
	}
	return filepath.Join(filepath.Dir(cfgPath), mapPath), nil
}

// PinTable converts inline pin entries into a validated table.
func PinTable(pins []PinConfig) (port.Table, error) {
	if len(pins) == 0 {
		return nil, fmt.Errorf("pins or pinmap is required")
	}
	table := make(port.Table, 0, len(pins))
	for i, p := range pins {
		d, err := p.descriptor()
		if err != nil {
			return nil, fmt.Errorf("pins[%d]: %w", i, err)
		}
		table = append(table, d)
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("pins: %w", err)
	}
	return table, nil
}

func (p PinConfig) descriptor() (port.Descriptor, error) {
	g, idx, err := port.ParsePinName(p.Pin)
	if err != nil {
		return port.Descriptor{}, err
	}
	d := port.Descriptor{
		Group:               g,
		Index:               idx,
		DirectionChangeable: p.DirectionChangeable,
		ModeChangeable:      p.ModeChangeable,
	}
	if p.Mode == "" {
		return port.Descriptor{}, fmt.Errorf("%s: mode is required", p.Pin)
	}
	if d.Mode, err = port.ParseMode(p.Mode); err != nil {
		return port.Descriptor{}, fmt.Errorf("%s: %w", p.Pin, err)
	}
	if p.Direction != "" {
		if d.Direction, err = port.ParseDirection(p.Direction); err != nil {
			return port.Descriptor{}, fmt.Errorf("%s: %w", p.Pin, err)
		}
	}
	if d.Resistor, err = port.ParseResistor(p.Resistor); err != nil {
		return port.Descriptor{}, fmt.Errorf("%s: %w", p.Pin, err)
	}
	switch strings.ToLower(p.Initial) {
	case "", "low":
	case "high":
		d.Initial = true
	default:
		return port.Descriptor{}, fmt.Errorf("%s: initial must be high or low, got %q", p.Pin, p.Initial)
	}
	if p.Initial != "" && d.Direction != port.Out {
		return port.Descriptor{}, fmt.Errorf("%s: initial level needs an output", p.Pin)
	}
	if d.Resistor != port.NoPull && d.Direction == port.Out {
		return port.Descriptor{}, fmt.Errorf("%s: pull resistor on an output", p.Pin)
	}
	return d, nil
}

// Table returns a copy of the resolved pin table.
func (c *Config) Table() port.Table {
	return c.table.Clone()
}

// ReadTimeout returns the serial read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Diag.ReadTimeoutMs) * time.Millisecond
}
