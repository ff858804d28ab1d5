// Package diag carries invalid-usage reports from the configuration
// engine to whoever records them: the debug log, an in-memory recorder,
// a serial line or the web status stream.
package diag

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/PortGo/internal/debug"
)

// Code identifies the kind of invalid usage.
type Code uint8

const (
	CodeInvalidPin            Code = 0x0A
	CodeDirectionUnchangeable Code = 0x0B
	CodeInvalidConfig         Code = 0x0C
	CodeInvalidMode           Code = 0x0D
	CodeModeUnchangeable      Code = 0x0E
	CodeNotInitialized        Code = 0x0F
	CodeNullOutput            Code = 0x10
)

func (c Code) String() string {
	switch c {
	case CodeInvalidPin:
		return "invalid_pin"
	case CodeDirectionUnchangeable:
		return "direction_unchangeable"
	case CodeInvalidConfig:
		return "invalid_config"
	case CodeInvalidMode:
		return "invalid_mode"
	case CodeModeUnchangeable:
		return "mode_unchangeable"
	case CodeNotInitialized:
		return "not_initialized"
	case CodeNullOutput:
		return "null_output"
	default:
		return fmt.Sprintf("code_0x%02X", uint8(c))
	}
}

// Service identifies the engine operation that raised a report.
type Service uint8

const (
	ServiceApply          Service = 0x00
	ServiceSetDirection   Service = 0x01
	ServiceRefreshAll     Service = 0x02
	ServiceGetVersionInfo Service = 0x03
	ServiceSetMode        Service = 0x04
)

func (s Service) String() string {
	switch s {
	case ServiceApply:
		return "apply"
	case ServiceSetDirection:
		return "set_direction"
	case ServiceRefreshAll:
		return "refresh_all"
	case ServiceGetVersionInfo:
		return "get_version_info"
	case ServiceSetMode:
		return "set_mode"
	default:
		return fmt.Sprintf("service_0x%02X", uint8(s))
	}
}

// Report is one invalid-usage event.
type Report struct {
	Module   uint16
	Instance uint16
	Service  Service
	Code     Code
}

func (r Report) String() string {
	return fmt.Sprintf("module=%d instance=%d service=%s error=%s", r.Module, r.Instance, r.Service, r.Code)
}

// Sink receives reports. Report must not block for long; the engine
// calls it synchronously and ignores the outcome.
type Sink interface {
	Report(r Report)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Report)

func (f SinkFunc) Report(r Report) { f(r) }

// Discard drops every report.
var Discard Sink = SinkFunc(func(Report) {})

// LogSink writes reports to the debug log at the live level.
type LogSink struct{}

func (LogSink) Report(r Report) {
	debug.Diag(r.Module, r.Instance, uint8(r.Service), uint8(r.Code))
}

// Multi fans a report out to several sinks in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(r Report) {
		for _, s := range sinks {
			if s != nil {
				s.Report(r)
			}
		}
	})
}

// Recorder keeps every report in memory. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	reports []Report
}

func (rec *Recorder) Report(r Report) {
	rec.mu.Lock()
	rec.reports = append(rec.reports, r)
	rec.mu.Unlock()
}

// Reports returns a copy of what was recorded so far.
func (rec *Recorder) Reports() []Report {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]Report, len(rec.reports))
	copy(out, rec.reports)
	return out
}

// Last returns the most recent report.
func (rec *Recorder) Last() (Report, bool) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.reports) == 0 {
		return Report{}, false
	}
	return rec.reports[len(rec.reports)-1], true
}

// Len returns the number of recorded reports.
func (rec *Recorder) Len() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.reports)
}

// Reset drops every recorded report.
func (rec *Recorder) Reset() {
	rec.mu.Lock()
	rec.reports = nil
	rec.mu.Unlock()
}
