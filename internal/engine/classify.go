package engine

import "github.com/cjeanneret/PortGo/internal/port"

// PinClass tells the engine how much of a pin it may touch.
type PinClass uint8

const (
	// PinNormal pins are configured directly.
	PinNormal PinClass = iota
	// PinCommitProtected pins need the unlock key and their commit bit
	// before their control registers accept writes.
	PinCommitProtected
	// PinReserved pins carry the debug port and are never reconfigured.
	PinReserved
)

func (c PinClass) String() string {
	switch c {
	case PinCommitProtected:
		return "commit-protected"
	case PinReserved:
		return "reserved"
	default:
		return "normal"
	}
}

type pinRef struct {
	group port.Group
	index uint8
}

// PD7 and PF0 share their pads with NMI.
var commitProtected = [...]pinRef{
	{port.GroupD, 7},
	{port.GroupF, 0},
}

// PC0..PC3 are TCK, TMS, TDI and TDO.
var reservedDebug = [...]pinRef{
	{port.GroupC, 0},
	{port.GroupC, 1},
	{port.GroupC, 2},
	{port.GroupC, 3},
}

// Classify returns the class of the pin at group g, bit index.
func Classify(g port.Group, index uint8) PinClass {
	ref := pinRef{g, index}
	for _, r := range reservedDebug {
		if r == ref {
			return PinReserved
		}
	}
	for _, r := range commitProtected {
		if r == ref {
			return PinCommitProtected
		}
	}
	return PinNormal
}
