package cmd

import (
	"fmt"

	"github.com/cjeanneret/PortGo/internal/config"
	"github.com/cjeanneret/PortGo/internal/debug"
	"github.com/cjeanneret/PortGo/internal/diag"
	"github.com/cjeanneret/PortGo/internal/engine"
	"github.com/cjeanneret/PortGo/internal/hw/gpio"
)

// session bundles the register surface, the diagnostic sinks and the
// engine built on them.
type session struct {
	surface gpio.Surface
	serial  *diag.SerialSink
	engine  *engine.Engine
}

// openSession builds the engine for cfg. extra receives reports in
// addition to the log and the optional serial port.
func openSession(cfg *config.Config, extra diag.Sink) (*session, error) {
	debug.Step(1, "Opening register surface")
	surface, err := gpio.NewSurface(cfg.Engine.Backend, cfg.Engine.RPioMap)
	if err != nil {
		return nil, fmt.Errorf("init register surface failed: %w", err)
	}
	s := &session{surface: surface}

	sinks := []diag.Sink{diag.LogSink{}}
	if cfg.Diag.SerialDevice != "" {
		debug.Step(2, "Opening diagnostic serial port")
		s.serial, err = diag.OpenSerial(diag.SerialConfig{
			Device:      cfg.Diag.SerialDevice,
			Baud:        cfg.Diag.SerialBaud,
			ReadTimeout: cfg.ReadTimeout(),
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		sinks = append(sinks, s.serial)
	}
	sinks = append(sinks, extra)

	s.engine, err = engine.New(surface, diag.Multi(sinks...))
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// apply programs the configured pin table.
func (s *session) apply(cfg *config.Config) error {
	debug.Step(3, "Applying pin table")
	if err := s.engine.Apply(cfg.Table()); err != nil {
		return err
	}
	debug.Summary("Pin table applied")
	if s.engine.LockedPin() {
		debug.Info("Reserved debug pins in the table were left untouched")
	}
	return nil
}

// dumper returns the surface as a gpio.Dumper, or nil.
func (s *session) dumper() gpio.Dumper {
	if d, ok := s.surface.(gpio.Dumper); ok {
		return d
	}
	return nil
}

func (s *session) Close() {
	if s.serial != nil {
		if err := s.serial.Close(); err != nil {
			debug.Error(fmt.Errorf("closing diagnostic port failed: %w", err))
		}
	}
	if err := s.surface.Close(); err != nil {
		debug.Error(fmt.Errorf("closing register surface failed: %w", err))
	}
}
