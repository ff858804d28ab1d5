package gpio

import (
	"fmt"

	"github.com/cjeanneret/PortGo/internal/debug"
	"github.com/cjeanneret/PortGo/internal/port"
)

// Register offsets inside a port block.
const (
	RegData          uintptr = 0x3FC // GPIODATA, all bits unmasked
	RegDir           uintptr = 0x400
	RegAltFunc       uintptr = 0x420
	RegPullUp        uintptr = 0x510
	RegPullDown      uintptr = 0x514
	RegDigitalEnable uintptr = 0x51C
	RegLock          uintptr = 0x520
	RegCommit        uintptr = 0x524
	RegAnalogSel     uintptr = 0x528
	RegPortCtl       uintptr = 0x52C
)

// RegClockGate is the run-mode clock gating register (RCGC2) inside the
// system-control block. Bit n gates port n.
const RegClockGate uintptr = 0x108

// UnlockKey opens the commit register of a port when written to RegLock.
const UnlockKey uint32 = 0x4C4F434B

// Physical base addresses.
var (
	PortBase = [port.NumGroups]uintptr{
		port.GroupA: 0x40004000,
		port.GroupB: 0x40005000,
		port.GroupC: 0x40006000,
		port.GroupD: 0x40007000,
		port.GroupE: 0x40024000,
		port.GroupF: 0x40025000,
	}
	SysCtlBase uintptr = 0x400FE000
)

// Block is one memory-mapped register window. Offsets are in bytes from
// the block base.
type Block interface {
	Read(off uintptr) uint32
	Write(off uintptr, v uint32)
}

// Surface is the fixed set of register blocks: one per port group plus
// the system-control block that holds the clock gates.
type Surface interface {
	Port(g port.Group) (Block, error)
	SysCtl() Block
	Close() error
}

// Dumper is implemented by surfaces that can report every register value
// without touching hardware.
type Dumper interface {
	Dump() []BlockDump
}

// BlockDump is a snapshot of one register block.
type BlockDump struct {
	Block     string            `json:"block"`
	Registers map[string]uint32 `json:"registers"`
}

// NewSurface creates a register surface for the chosen backend:
// "mock" (in-memory, for development and tests), "devmem" (/dev/mem on
// the target) or "rpio" (bench bridge onto Raspberry Pi GPIO lines).
func NewSurface(backend string, pinMap map[string]int) (Surface, error) {
	switch backend {
	case "", "mock":
		debug.Info("Using MOCK register surface (development mode)")
		return NewMockSurface(), nil
	case "devmem":
		s, err := NewDevMemSurface()
		if err != nil {
			return nil, err
		}
		return s, nil
	case "rpio":
		s, err := NewRPiSurface(pinMap)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown register backend: %q", backend)
	}
}

// SetBit sets one bit with a read-modify-write.
func SetBit(b Block, off uintptr, bit uint8) {
	b.Write(off, b.Read(off)|1<<bit)
}

// ClearBit clears one bit with a read-modify-write.
func ClearBit(b Block, off uintptr, bit uint8) {
	b.Write(off, b.Read(off)&^(1<<bit))
}

// WriteBit sets or clears one bit.
func WriteBit(b Block, off uintptr, bit uint8, on bool) {
	if on {
		SetBit(b, off, bit)
		return
	}
	ClearBit(b, off, bit)
}

// ClearField clears the width-bit field starting at shift.
func ClearField(b Block, off uintptr, shift, width uint8) {
	mask := uint32(1)<<width - 1
	b.Write(off, b.Read(off)&^(mask<<shift))
}

// OrField ORs v into the width-bit field starting at shift without
// clearing it first.
func OrField(b Block, off uintptr, shift, width uint8, v uint32) {
	mask := uint32(1)<<width - 1
	b.Write(off, b.Read(off)|(v&mask)<<shift)
}

// RegName returns the datasheet name of a port register offset.
func RegName(off uintptr) string {
	switch off {
	case RegData:
		return "DATA"
	case RegDir:
		return "DIR"
	case RegAltFunc:
		return "AFSEL"
	case RegPullUp:
		return "PUR"
	case RegPullDown:
		return "PDR"
	case RegDigitalEnable:
		return "DEN"
	case RegLock:
		return "LOCK"
	case RegCommit:
		return "CR"
	case RegAnalogSel:
		return "AMSEL"
	case RegPortCtl:
		return "PCTL"
	default:
		return fmt.Sprintf("0x%03X", off)
	}
}

// portRegs lists the port registers in datasheet order.
var portRegs = []uintptr{
	RegData, RegDir, RegAltFunc, RegPullUp, RegPullDown,
	RegDigitalEnable, RegLock, RegCommit, RegAnalogSel, RegPortCtl,
}

func blockName(g port.Group) string {
	return "PORT" + g.String()
}
