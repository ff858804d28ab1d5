// Package port describes the static pin table: one Descriptor per
// configured pin, naming its port group, bit index, electrical role and
// which runtime changes are allowed.
package port

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Group identifies a port register block.
type Group uint8

const (
	GroupA Group = iota
	GroupB
	GroupC
	GroupD
	GroupE
	GroupF
)

// NumGroups is the number of port groups on the part.
const NumGroups = 6

// PinsPerGroup is the number of pins in one port group.
const PinsPerGroup = 8

// Valid reports whether g names one of the six port groups.
func (g Group) Valid() bool { return g < NumGroups }

func (g Group) String() string {
	if !g.Valid() {
		return fmt.Sprintf("Group(%d)", uint8(g))
	}
	return string(rune('A' + g))
}

// ParseGroup accepts "A".."F" in either case.
func ParseGroup(s string) (Group, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 1 || s[0] < 'A' || s[0] > 'F' {
		return 0, fmt.Errorf("unknown port group %q", s)
	}
	return Group(s[0] - 'A'), nil
}

// Direction is the data direction of a digital pin.
type Direction uint8

const (
	In Direction = iota
	Out
)

// Valid reports whether d is In or Out.
func (d Direction) Valid() bool { return d == In || d == Out }

func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// ParseDirection accepts "in"/"input" and "out"/"output".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in", "input":
		return In, nil
	case "out", "output":
		return Out, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// Resistor selects the internal pull resistor of an input pin.
type Resistor uint8

const (
	NoPull Resistor = iota
	PullUp
	PullDown
)

// Valid reports whether r is one of the three resistor settings.
func (r Resistor) Valid() bool { return r <= PullDown }

func (r Resistor) String() string {
	switch r {
	case NoPull:
		return "none"
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return fmt.Sprintf("Resistor(%d)", uint8(r))
	}
}

// ParseResistor accepts "", "none"/"off", "up"/"pullup" and "down"/"pulldown".
func ParseResistor(s string) (Resistor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off", "nopull":
		return NoPull, nil
	case "up", "pullup", "pull_up":
		return PullUp, nil
	case "down", "pulldown", "pull_down":
		return PullDown, nil
	default:
		return 0, fmt.Errorf("unknown resistor %q", s)
	}
}

// Mode is the electrical function of a pin. Values from ModeAltFirst to
// MaxMode are alternate-function selectors written into the pin's
// port-control nibble.
type Mode uint8

const (
	ModeDIO      Mode = 0
	ModeAnalog   Mode = 1
	ModeAltFirst Mode = 2
	MaxMode      Mode = 15
)

// Valid reports whether m fits the 4-bit function selector.
func (m Mode) Valid() bool { return m <= MaxMode }

// IsAlternate reports whether m selects an alternate function.
func (m Mode) IsAlternate() bool { return m >= ModeAltFirst && m <= MaxMode }

func (m Mode) String() string {
	switch {
	case m == ModeDIO:
		return "dio"
	case m == ModeAnalog:
		return "analog"
	case m.IsAlternate():
		return fmt.Sprintf("af%d", uint8(m))
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode accepts "dio"/"gpio", "analog"/"adc" and "afN".
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "dio", "gpio", "digital":
		return ModeDIO, nil
	case "analog", "adc":
		return ModeAnalog, nil
	}
	if num, ok := strings.CutPrefix(s, "af"); ok {
		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, fmt.Errorf("unknown mode %q", s)
		}
		if n < int(ModeAltFirst) || n > int(MaxMode) {
			return 0, fmt.Errorf("alternate function %d out of range %d..%d", n, ModeAltFirst, MaxMode)
		}
		return Mode(n), nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// Descriptor configures a single pin.
type Descriptor struct {
	Group     Group
	Index     uint8
	Mode      Mode
	Direction Direction
	// Initial is the level driven right after configuration (outputs only).
	Initial  bool
	Resistor Resistor // inputs only
	// DirectionChangeable allows SetDirection at runtime.
	DirectionChangeable bool
	// ModeChangeable allows SetMode at runtime.
	ModeChangeable bool
}

// Name returns the conventional pin name, e.g. "PF3".
func (d Descriptor) Name() string {
	return PinName(d.Group, d.Index)
}

// PinName formats a group/index pair as "P<group><index>".
func PinName(g Group, index uint8) string {
	return fmt.Sprintf("P%s%d", g, index)
}

// ParsePinName parses "PF3" (or "pf3") into its group and index.
func ParsePinName(s string) (Group, uint8, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 || s[0] != 'P' {
		return 0, 0, fmt.Errorf("invalid pin name %q", s)
	}
	g, err := ParseGroup(s[1:2])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid pin name %q: %w", s, err)
	}
	if s[2] < '0' || s[2] >= '0'+PinsPerGroup {
		return 0, 0, fmt.Errorf("invalid pin name %q: index out of range", s)
	}
	return g, s[2] - '0', nil
}

// Table is the ordered pin table. A pin's position in the table is its
// runtime pin id.
type Table []Descriptor

// ErrEmptyTable is returned by Validate for a nil or empty table.
var ErrEmptyTable = errors.New("pin table is empty")

// Validate checks every descriptor and rejects tables that target the
// same physical pin twice.
func (t Table) Validate() error {
	if len(t) == 0 {
		return ErrEmptyTable
	}
	var seen [NumGroups][PinsPerGroup]int
	for i, d := range t {
		if err := d.validate(); err != nil {
			return fmt.Errorf("pin %d: %w", i, err)
		}
		if prev := seen[d.Group][d.Index]; prev != 0 {
			return fmt.Errorf("pin %d: %s already configured by pin %d", i, d.Name(), prev-1)
		}
		seen[d.Group][d.Index] = i + 1
	}
	return nil
}

func (d Descriptor) validate() error {
	if !d.Group.Valid() {
		return fmt.Errorf("invalid port group %d", uint8(d.Group))
	}
	if d.Index >= PinsPerGroup {
		return fmt.Errorf("%s: pin index %d out of range 0..%d", d.Group, d.Index, PinsPerGroup-1)
	}
	if !d.Mode.Valid() {
		return fmt.Errorf("%s: mode %d out of range 0..%d", d.Name(), uint8(d.Mode), MaxMode)
	}
	if !d.Direction.Valid() {
		return fmt.Errorf("%s: invalid direction %d", d.Name(), uint8(d.Direction))
	}
	if !d.Resistor.Valid() {
		return fmt.Errorf("%s: invalid resistor %d", d.Name(), uint8(d.Resistor))
	}
	return nil
}

// Clone returns a copy that shares no storage with t.
func (t Table) Clone() Table {
	if t == nil {
		return nil
	}
	out := make(Table, len(t))
	copy(out, t)
	return out
}

// Groups returns the number of distinct port groups used by t.
func (t Table) Groups() int {
	var used [NumGroups]bool
	n := 0
	for _, d := range t {
		if d.Group.Valid() && !used[d.Group] {
			used[d.Group] = true
			n++
		}
	}
	return n
}
