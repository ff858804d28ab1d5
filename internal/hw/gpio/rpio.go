package gpio

import (
	"fmt"
	"sort"

	"github.com/cjeanneret/PortGo/internal/debug"
	"github.com/cjeanneret/PortGo/internal/port"
	"github.com/stianeikeland/go-rpio/v4"
)

// Line is a physical GPIO line driven by the bench bridge. rpio.Pin
// satisfies it.
type Line interface {
	Input()
	Output()
	High()
	Low()
	PullUp()
	PullDown()
	PullOff()
}

// lineState is what a mapped pin currently looks like on the bench.
type lineState uint8

const (
	lineUnset lineState = iota
	lineFloat           // not digital, or driven by a peripheral
	lineInNoPull
	lineInPullUp
	lineInPullDown
	lineOutLow
	lineOutHigh
)

type bridgedPin struct {
	group port.Group
	index uint8
	line  Line
	state lineState
}

// RPiSurface mirrors the register writes the engine performs onto
// Raspberry Pi GPIO lines. Register values live in a MockSurface shadow;
// after every write to a port block the mapped pins of that block are
// re-derived and the lines updated through go-rpio.
type RPiSurface struct {
	shadow *MockSurface
	pins   []*bridgedPin
	closer func() error
}

// NewRPiSurface opens /dev/gpiomem and maps pins by name, e.g.
// {"PF3": 17} drives BCM 17 from port F bit 3.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiSurface(pinMap map[string]int) (*RPiSurface, error) {
	debug.Info("Initializing Raspberry Pi register bridge (go-rpio)")

	if len(pinMap) == 0 {
		return nil, fmt.Errorf("rpio backend needs a non-empty pin map")
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	lines := make(map[string]Line, len(pinMap))
	for name, bcm := range pinMap {
		lines[name] = rpio.Pin(bcm)
	}
	s, err := newRPiSurface(lines, rpio.Close)
	if err != nil {
		_ = rpio.Close()
		return nil, err
	}
	return s, nil
}

func newRPiSurface(lines map[string]Line, closer func() error) (*RPiSurface, error) {
	s := &RPiSurface{shadow: NewMockSurface(), closer: closer}
	names := make([]string, 0, len(lines))
	for name := range lines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		g, idx, err := port.ParsePinName(name)
		if err != nil {
			return nil, fmt.Errorf("rpio pin map: %w", err)
		}
		s.pins = append(s.pins, &bridgedPin{group: g, index: idx, line: lines[name]})
	}
	for g := port.GroupA; g < port.NumGroups; g++ {
		s.sync(g)
	}
	return s, nil
}

// Port returns a block whose writes are forwarded to the mapped lines.
func (s *RPiSurface) Port(g port.Group) (Block, error) {
	b, err := s.shadow.Port(g)
	if err != nil {
		return nil, err
	}
	return &bridgedBlock{Block: b, s: s, group: g}, nil
}

// SysCtl returns the shadow system-control block.
func (s *RPiSurface) SysCtl() Block { return s.shadow.SysCtl() }

// Dump reports the shadow register values.
func (s *RPiSurface) Dump() []BlockDump { return s.shadow.Dump() }

// Close floats every mapped line (safe state) and releases the GPIO memory.
func (s *RPiSurface) Close() error {
	debug.Trace("register surface close (rpio bridge)")

	for _, p := range s.pins {
		debug.Verbose("Resetting %s to input", port.PinName(p.group, p.index))
		p.line.Input()
		p.line.PullOff()
		p.state = lineFloat
	}
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

type bridgedBlock struct {
	Block
	s     *RPiSurface
	group port.Group
}

func (b *bridgedBlock) Write(off uintptr, v uint32) {
	b.Block.Write(off, v)
	switch off {
	case RegDir, RegData, RegPullUp, RegPullDown, RegDigitalEnable, RegAltFunc, RegAnalogSel:
		b.s.sync(b.group)
	}
}

// sync re-derives the state of every mapped pin in group g from the
// shadow registers and touches only the lines whose state changed.
func (s *RPiSurface) sync(g port.Group) {
	for _, p := range s.pins {
		if p.group != g {
			continue
		}
		next := s.derive(p)
		if next == p.state {
			continue
		}
		debug.Trace("rpio %s: state %d -> %d", port.PinName(p.group, p.index), p.state, next)
		driveLine(p.line, next)
		p.state = next
	}
}

func (s *RPiSurface) derive(p *bridgedPin) lineState {
	bit := uint32(1) << p.index
	reg := func(off uintptr) bool { return s.shadow.Reg(p.group, off)&bit != 0 }

	if !reg(RegDigitalEnable) || reg(RegAltFunc) || reg(RegAnalogSel) {
		return lineFloat
	}
	if reg(RegDir) {
		if reg(RegData) {
			return lineOutHigh
		}
		return lineOutLow
	}
	switch {
	case reg(RegPullUp):
		return lineInPullUp
	case reg(RegPullDown):
		return lineInPullDown
	default:
		return lineInNoPull
	}
}

func driveLine(l Line, st lineState) {
	switch st {
	case lineOutHigh:
		l.Output()
		l.High()
	case lineOutLow:
		l.Output()
		l.Low()
	case lineInPullUp:
		l.Input()
		l.PullUp()
	case lineInPullDown:
		l.Input()
		l.PullDown()
	default:
		l.Input()
		l.PullOff()
	}
}
