package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/PortGo/internal/debug"
	"github.com/cjeanneret/PortGo/internal/port"
)

// Access is one logged register access on a MockSurface.
type Access struct {
	Write  bool
	Block  string
	Offset uintptr
	Value  uint32
}

func (a Access) String() string {
	op := "read"
	if a.Write {
		op = "write"
	}
	return fmt.Sprintf("%s %s.%s 0x%08X", op, a.Block, RegName(a.Offset), a.Value)
}

// MockSurface is an in-memory register surface. It starts from the
// part's reset values, honours the lock/commit protection of the commit
// register and logs every access in order.
type MockSurface struct {
	mu     sync.Mutex
	ports  [port.NumGroups]*mockBlock
	sysctl *mockBlock
	log    []Access
}

// NewMockSurface returns a surface in its power-on reset state.
func NewMockSurface() *MockSurface {
	s := &MockSurface{}
	for g := port.GroupA; g < port.NumGroups; g++ {
		s.ports[g] = newPortBlock(s, g)
	}
	s.sysctl = &mockBlock{s: s, name: "SYSCTL", regs: map[uintptr]uint32{}}
	return s
}

// Port returns the block for group g.
func (s *MockSurface) Port(g port.Group) (Block, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("no register block for port group %d", uint8(g))
	}
	return s.ports[g], nil
}

// SysCtl returns the system-control block.
func (s *MockSurface) SysCtl() Block { return s.sysctl }

// Close is a no-op.
func (s *MockSurface) Close() error {
	debug.Trace("register surface close (mock)")
	return nil
}

// Reg returns a register value without logging the access.
func (s *MockSurface) Reg(g port.Group, off uintptr) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ports[g].value(off)
}

// ClockGate returns the clock gating register without logging the access.
func (s *MockSurface) ClockGate() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sysctl.value(RegClockGate)
}

// Accesses returns a copy of the access log.
func (s *MockSurface) Accesses() []Access {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Access, len(s.log))
	copy(out, s.log)
	return out
}

// Writes returns the logged writes to block name ("PORTF", "SYSCTL").
// An empty name matches every block.
func (s *MockSurface) Writes(name string) []Access {
	var out []Access
	for _, a := range s.Accesses() {
		if a.Write && (name == "" || a.Block == name) {
			out = append(out, a)
		}
	}
	return out
}

// ResetLog drops the access log but keeps register values.
func (s *MockSurface) ResetLog() {
	s.mu.Lock()
	s.log = nil
	s.mu.Unlock()
}

// Dump returns every port register value.
func (s *MockSurface) Dump() []BlockDump {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BlockDump, 0, port.NumGroups+1)
	out = append(out, BlockDump{
		Block:     s.sysctl.name,
		Registers: map[string]uint32{"RCGC2": s.sysctl.value(RegClockGate)},
	})
	for _, b := range s.ports {
		regs := make(map[string]uint32, len(portRegs))
		for _, off := range portRegs {
			regs[RegName(off)] = b.value(off)
		}
		out = append(out, BlockDump{Block: b.name, Registers: regs})
	}
	return out
}

type mockBlock struct {
	s      *MockSurface
	name   string
	isPort bool
	locked bool
	regs   map[uintptr]uint32
}

// newPortBlock applies the reset values: PD7, PF0 and PC0..PC3 start
// uncommitted, and PC0..PC3 start in their debug alternate function.
func newPortBlock(s *MockSurface, g port.Group) *mockBlock {
	b := &mockBlock{
		s:      s,
		name:   blockName(g),
		isPort: true,
		locked: true,
		regs:   map[uintptr]uint32{RegCommit: 0xFF},
	}
	switch g {
	case port.GroupC:
		b.regs[RegCommit] = 0xF0
		b.regs[RegAltFunc] = 0x0F
		b.regs[RegDigitalEnable] = 0x0F
		b.regs[RegPullUp] = 0x0F
		b.regs[RegPortCtl] = 0x00001111
	case port.GroupD:
		b.regs[RegCommit] = 0x7F
	case port.GroupF:
		b.regs[RegCommit] = 0xFE
	}
	return b
}

func (b *mockBlock) value(off uintptr) uint32 {
	if b.isPort && off == RegLock {
		if b.locked {
			return 1
		}
		return 0
	}
	return b.regs[off]
}

func (b *mockBlock) Read(off uintptr) uint32 {
	b.s.mu.Lock()
	v := b.value(off)
	b.s.log = append(b.s.log, Access{Block: b.name, Offset: off, Value: v})
	b.s.mu.Unlock()
	debug.Reg("read", b.name, off, v)
	return v
}

func (b *mockBlock) Write(off uintptr, v uint32) {
	b.s.mu.Lock()
	b.s.log = append(b.s.log, Access{Write: true, Block: b.name, Offset: off, Value: v})
	b.store(off, v)
	b.s.mu.Unlock()
	debug.Reg("write", b.name, off, v)
}

func (b *mockBlock) store(off uintptr, v uint32) {
	if !b.isPort {
		b.regs[off] = v
		return
	}
	switch off {
	case RegLock:
		b.locked = v != UnlockKey
	case RegCommit:
		if !b.locked {
			b.regs[off] = v & 0xFF
		}
	case RegDir, RegAltFunc, RegPullUp, RegPullDown, RegDigitalEnable, RegAnalogSel:
		mask := b.regs[RegCommit]
		b.regs[off] = b.regs[off]&^mask | v&mask
	case RegPortCtl:
		mask := nibbleMask(b.regs[RegCommit])
		b.regs[off] = b.regs[off]&^mask | v&mask
	default:
		b.regs[off] = v
	}
}

// nibbleMask widens a per-pin commit mask to the 4-bit port-control fields.
func nibbleMask(commit uint32) uint32 {
	var m uint32
	for i := 0; i < port.PinsPerGroup; i++ {
		if commit&(1<<i) != 0 {
			m |= 0xF << (4 * i)
		}
	}
	return m
}
