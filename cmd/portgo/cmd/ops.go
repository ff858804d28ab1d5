package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cjeanneret/PortGo/internal/engine"
	"github.com/cjeanneret/PortGo/internal/port"
)

type opKind int

const (
	opDirection opKind = iota
	opMode
	opRefresh
)

// op is one runtime change requested with --op:
//
//	dir:<id>:in|out
//	mode:<id>:<n>     (n is 0..15, or dio, analog, afN)
//	refresh
type op struct {
	kind opKind
	id   int
	dir  port.Direction
	mode port.Mode
	text string
}

func parseOp(s string) (op, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	o := op{text: s}
	switch strings.ToLower(parts[0]) {
	case "refresh":
		if len(parts) != 1 {
			return op{}, fmt.Errorf("op %q: refresh takes no arguments", s)
		}
		o.kind = opRefresh
		return o, nil
	case "dir", "direction":
		o.kind = opDirection
	case "mode":
		o.kind = opMode
	default:
		return op{}, fmt.Errorf("op %q: unknown operation %q", s, parts[0])
	}

	if len(parts) != 3 {
		return op{}, fmt.Errorf("op %q: want %s:<id>:<value>", s, parts[0])
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return op{}, fmt.Errorf("op %q: pin id must be an integer", s)
	}
	o.id = id

	if o.kind == opDirection {
		if o.dir, err = port.ParseDirection(parts[2]); err != nil {
			return op{}, fmt.Errorf("op %q: %w", s, err)
		}
		return o, nil
	}
	// Numeric modes pass through unchecked so the engine can reject them.
	if n, nerr := strconv.ParseUint(parts[2], 10, 8); nerr == nil {
		o.mode = port.Mode(n)
		return o, nil
	}
	if o.mode, err = port.ParseMode(parts[2]); err != nil {
		return op{}, fmt.Errorf("op %q: %w", s, err)
	}
	return o, nil
}

func parseOps(list []string) ([]op, error) {
	ops := make([]op, 0, len(list))
	for _, s := range list {
		o, err := parseOp(s)
		if err != nil {
			return nil, err
		}
		ops = append(ops, o)
	}
	return ops, nil
}

func (o op) run(e *engine.Engine) error {
	switch o.kind {
	case opDirection:
		return e.SetDirection(o.id, o.dir)
	case opMode:
		return e.SetMode(o.id, o.mode)
	default:
		return e.RefreshAll()
	}
}
