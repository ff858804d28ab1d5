package diag

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cjeanneret/PortGo/internal/debug"
	"github.com/tarm/serial"
)

// SerialConfig selects the UART that receives diagnostic reports.
type SerialConfig struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}

// SerialSink writes one line per report to a serial port, e.g.
// "DET 120 0 01 0B\r\n" (module, instance, service, code; hex for the
// last two).
type SerialSink struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// OpenSerial opens the configured serial port.
func OpenSerial(cfg SerialConfig) (*SerialSink, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("serial device is required")
	}
	if cfg.Baud <= 0 {
		cfg.Baud = 115200
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	debug.Info("Diagnostic reports mirrored to %s @ %d baud", cfg.Device, cfg.Baud)
	return NewWriterSink(p), nil
}

// NewWriterSink wraps any writer, which is handy for pipes and tests.
func NewWriterSink(w io.WriteCloser) *SerialSink {
	return &SerialSink{w: w}
}

// Report writes r as one line. Write errors are logged and dropped.
func (s *SerialSink) Report(r Report) {
	line := FormatLine(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.w, line); err != nil {
		debug.Error(fmt.Errorf("serial diag write: %w", err))
	}
}

// Close closes the underlying port.
func (s *SerialSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}

// FormatLine renders the wire form of a report.
func FormatLine(r Report) string {
	return fmt.Sprintf("DET %d %d %02X %02X\r\n", r.Module, r.Instance, uint8(r.Service), uint8(r.Code))
}
