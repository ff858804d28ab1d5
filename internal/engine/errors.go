package engine

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/PortGo/internal/diag"
)

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrNotInitialized = errors.New("engine not initialized")
	ErrInvalidPin     = errors.New("invalid pin id")
	ErrInvalidMode    = errors.New("invalid pin mode")
	ErrNullOutput     = errors.New("nil output destination")

	// ErrUnchangeable is wrapped by both unchangeable errors.
	ErrUnchangeable          = errors.New("unchangeable")
	ErrDirectionUnchangeable = fmt.Errorf("pin direction %w", ErrUnchangeable)
	ErrModeUnchangeable      = fmt.Errorf("pin mode %w", ErrUnchangeable)

	// ErrReservedPin is returned by SetMode for a reserved debug pin. It is
	// not reported to the diagnostic sink.
	ErrReservedPin = errors.New("reserved debug pin")
)

// CodeOf maps an engine error to its diagnostic code.
func CodeOf(err error) (diag.Code, bool) {
	switch {
	case err == nil:
		return 0, false
	case errors.Is(err, ErrInvalidConfig):
		return diag.CodeInvalidConfig, true
	case errors.Is(err, ErrNotInitialized):
		return diag.CodeNotInitialized, true
	case errors.Is(err, ErrInvalidPin):
		return diag.CodeInvalidPin, true
	case errors.Is(err, ErrInvalidMode):
		return diag.CodeInvalidMode, true
	case errors.Is(err, ErrDirectionUnchangeable):
		return diag.CodeDirectionUnchangeable, true
	case errors.Is(err, ErrModeUnchangeable):
		return diag.CodeModeUnchangeable, true
	case errors.Is(err, ErrNullOutput):
		return diag.CodeNullOutput, true
	default:
		return 0, false
	}
}
