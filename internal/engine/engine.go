// Package engine programs a pin table into the port register blocks and
// applies runtime direction and mode changes afterwards.
//
// An Engine is not safe for concurrent use: every operation is a sequence
// of read-modify-write register accesses. Callers sharing one engine
// across goroutines must serialize the calls.
package engine

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/PortGo/internal/debug"
	"github.com/cjeanneret/PortGo/internal/diag"
	"github.com/cjeanneret/PortGo/internal/hw/gpio"
	"github.com/cjeanneret/PortGo/internal/port"
)

// State is the engine life cycle. There is no way back to Uninitialized.
type State uint8

const (
	Uninitialized State = iota
	Ready
)

func (s State) String() string {
	if s == Ready {
		return "ready"
	}
	return "uninitialized"
}

// Engine owns the retained pin table and the register block lookup.
type Engine struct {
	sink   diag.Sink
	clock  gpio.Block
	blocks [port.NumGroups]gpio.Block

	table     port.Table
	state     State
	lockedPin bool
}

// New resolves every port block of s once. A nil sink discards reports.
func New(s gpio.Surface, sink diag.Sink) (*Engine, error) {
	if s == nil {
		return nil, errors.New("engine: nil register surface")
	}
	if sink == nil {
		sink = diag.Discard
	}
	e := &Engine{sink: sink, clock: s.SysCtl()}
	for g := port.GroupA; g < port.NumGroups; g++ {
		b, err := s.Port(g)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		e.blocks[g] = b
	}
	return e, nil
}

// State returns the current life-cycle state.
func (e *Engine) State() State { return e.state }

// LockedPin reports whether the last Apply, SetDirection or RefreshAll
// that passed validation ran into a reserved debug pin.
func (e *Engine) LockedPin() bool { return e.lockedPin }

// Table returns a copy of the retained pin table (nil before Apply).
func (e *Engine) Table() port.Table { return e.table.Clone() }

// Apply programs every descriptor of table in order and makes the engine
// Ready. The table is validated as a whole first; an invalid table is
// reported and nothing is written. The engine keeps its own copy.
func (e *Engine) Apply(table port.Table) error {
	if err := table.Validate(); err != nil {
		return e.fail(diag.ServiceApply, fmt.Errorf("apply: %w: %w", ErrInvalidConfig, err))
	}

	tab := table.Clone()
	e.lockedPin = false
	for i, d := range tab {
		debug.Verbose("pin %d: %s mode=%s dir=%s class=%s", i, d.Name(), d.Mode, d.Direction, Classify(d.Group, d.Index))
		e.configure(d)
	}

	e.table = tab
	e.state = Ready
	debug.Table(len(tab), tab.Groups())
	return nil
}

func (e *Engine) configure(d port.Descriptor) {
	b := e.blocks[d.Group]
	e.enableClock(d.Group)

	switch Classify(d.Group, d.Index) {
	case PinCommitProtected:
		b.Write(gpio.RegLock, gpio.UnlockKey)
		gpio.SetBit(b, gpio.RegCommit, d.Index)
	case PinReserved:
		e.lockedPin = true
		debug.Verbose("%s is a reserved debug pin, left at reset state", d.Name())
		return
	}

	switch d.Mode {
	case port.ModeDIO:
		configureDigital(b, d)
	case port.ModeAnalog:
		configureAnalog(b, d)
	default:
		selectAlternate(b, d.Index, d.Mode)
	}
}

// enableClock gates the port clock on and reads the gate back; the block
// must not be touched until one bus cycle after the gate opens.
func (e *Engine) enableClock(g port.Group) {
	gpio.SetBit(e.clock, gpio.RegClockGate, uint8(g))
	_ = e.clock.Read(gpio.RegClockGate)
}

func configureDigital(b gpio.Block, d port.Descriptor) {
	bit := d.Index
	gpio.ClearBit(b, gpio.RegAnalogSel, bit)
	gpio.ClearBit(b, gpio.RegAltFunc, bit)
	gpio.ClearField(b, gpio.RegPortCtl, 4*bit, 4)

	if d.Direction == port.Out {
		gpio.SetBit(b, gpio.RegDir, bit)
		gpio.WriteBit(b, gpio.RegData, bit, d.Initial)
	} else {
		gpio.ClearBit(b, gpio.RegDir, bit)
		switch d.Resistor {
		case port.PullUp:
			gpio.ClearBit(b, gpio.RegPullDown, bit)
			gpio.SetBit(b, gpio.RegPullUp, bit)
		case port.PullDown:
			gpio.ClearBit(b, gpio.RegPullUp, bit)
			gpio.SetBit(b, gpio.RegPullDown, bit)
		default:
			gpio.ClearBit(b, gpio.RegPullUp, bit)
			gpio.ClearBit(b, gpio.RegPullDown, bit)
		}
	}

	gpio.SetBit(b, gpio.RegDigitalEnable, bit)
}

// configureAnalog leaves AFSEL and PCTL alone.
func configureAnalog(b gpio.Block, d port.Descriptor) {
	bit := d.Index
	gpio.ClearBit(b, gpio.RegDigitalEnable, bit)
	gpio.WriteBit(b, gpio.RegDir, bit, d.Direction == port.Out)
	gpio.SetBit(b, gpio.RegAnalogSel, bit)
}

func selectAlternate(b gpio.Block, bit uint8, m port.Mode) {
	gpio.ClearBit(b, gpio.RegAnalogSel, bit)
	gpio.SetBit(b, gpio.RegAltFunc, bit)
	gpio.ClearField(b, gpio.RegPortCtl, 4*bit, 4)
	gpio.OrField(b, gpio.RegPortCtl, 4*bit, 4, uint32(m))
	gpio.SetBit(b, gpio.RegDigitalEnable, bit)
}

// SetDirection changes the direction of pin id (its index in the applied
// table). Reserved debug pins are skipped silently and raise the
// locked-pin flag.
func (e *Engine) SetDirection(id int, dir port.Direction) error {
	d, err := e.lookup(id)
	if err != nil {
		return e.fail(diag.ServiceSetDirection, fmt.Errorf("set direction: %w", err))
	}
	if !d.DirectionChangeable {
		return e.fail(diag.ServiceSetDirection, fmt.Errorf("set direction %s: %w", d.Name(), ErrDirectionUnchangeable))
	}
	if !dir.Valid() {
		return e.fail(diag.ServiceSetDirection, fmt.Errorf("set direction %s: %w: direction %d", d.Name(), ErrInvalidConfig, uint8(dir)))
	}

	e.lockedPin = false
	if Classify(d.Group, d.Index) == PinReserved {
		e.lockedPin = true
		debug.Live("set direction %s skipped: reserved debug pin", d.Name())
		return nil
	}

	gpio.WriteBit(e.blocks[d.Group], gpio.RegDir, d.Index, dir == port.Out)
	debug.Live("pin %d (%s) direction -> %s", id, d.Name(), dir)
	return nil
}

// SetMode switches pin id to mode m. Unlike SetDirection, a reserved
// debug pin is rejected with ErrReservedPin, without a diagnostic report
// and without touching the locked-pin flag.
func (e *Engine) SetMode(id int, m port.Mode) error {
	d, err := e.lookup(id)
	if err != nil {
		return e.fail(diag.ServiceSetMode, fmt.Errorf("set mode: %w", err))
	}
	if !m.Valid() {
		return e.fail(diag.ServiceSetMode, fmt.Errorf("set mode %s: %w: %d", d.Name(), ErrInvalidMode, uint8(m)))
	}
	if !d.ModeChangeable {
		return e.fail(diag.ServiceSetMode, fmt.Errorf("set mode %s: %w", d.Name(), ErrModeUnchangeable))
	}
	if Classify(d.Group, d.Index) == PinReserved {
		return fmt.Errorf("set mode %s: %w", d.Name(), ErrReservedPin)
	}

	b := e.blocks[d.Group]
	bit := d.Index
	switch m {
	case port.ModeDIO:
		gpio.ClearBit(b, gpio.RegAnalogSel, bit)
		gpio.ClearBit(b, gpio.RegAltFunc, bit)
		gpio.ClearField(b, gpio.RegPortCtl, 4*bit, 4)
		gpio.SetBit(b, gpio.RegDigitalEnable, bit)
	case port.ModeAnalog:
		gpio.ClearBit(b, gpio.RegDigitalEnable, bit)
		gpio.ClearBit(b, gpio.RegAltFunc, bit)
		gpio.ClearField(b, gpio.RegPortCtl, 4*bit, 4)
		gpio.SetBit(b, gpio.RegAnalogSel, bit)
	default:
		selectAlternate(b, bit, m)
	}
	debug.Live("pin %d (%s) mode -> %s", id, d.Name(), m)
	return nil
}

// RefreshAll re-asserts the configured direction of every pin whose
// direction is not changeable at runtime. Pins with a changeable
// direction keep whatever SetDirection last wrote; reserved debug pins
// are skipped.
func (e *Engine) RefreshAll() error {
	if e.state != Ready {
		return e.fail(diag.ServiceRefreshAll, fmt.Errorf("refresh: %w", ErrNotInitialized))
	}

	e.lockedPin = false
	n := 0
	for _, d := range e.table {
		if Classify(d.Group, d.Index) == PinReserved {
			e.lockedPin = true
			continue
		}
		if d.DirectionChangeable {
			continue
		}
		gpio.WriteBit(e.blocks[d.Group], gpio.RegDir, d.Index, d.Direction == port.Out)
		n++
	}
	debug.Live("refreshed direction of %d pins", n)
	return nil
}

// lookup checks readiness and the pin id range, in that order.
func (e *Engine) lookup(id int) (port.Descriptor, error) {
	if e.state != Ready {
		return port.Descriptor{}, ErrNotInitialized
	}
	if id < 0 || id >= len(e.table) {
		return port.Descriptor{}, fmt.Errorf("%w: %d (table has %d pins)", ErrInvalidPin, id, len(e.table))
	}
	return e.table[id], nil
}

// fail reports err to the sink when it carries a diagnostic code and
// returns it unchanged.
func (e *Engine) fail(svc diag.Service, err error) error {
	if code, ok := CodeOf(err); ok {
		e.sink.Report(diag.Report{Module: ModuleID, Instance: InstanceID, Service: svc, Code: code})
	}
	debug.Error(err)
	return err
}
