// Package pinmap reads the line-oriented pin map format:
//
//	# pin  mode   settings...
//	PF3    dio    out high dir-changeable
//	PF4    dio    in pullup mode-changeable
//	PE3    analog in
//	PB0    af2
//
// Every line names one pin followed by its mode and optional settings.
// A pin's line order is its runtime pin id.
package pinmap

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/cjeanneret/PortGo/internal/port"
)

// File is the parsed form of a pin map.
type File struct {
	Entries []*Entry `parser:"( @@ | EOL )*"`
}

// Entry is one pin line.
type Entry struct {
	Pos   lexer.Position
	Pin   string     `parser:"@Pin"`
	Words []*Setting `parser:"@@* EOL"`
}

// Setting is one word after the pin name.
type Setting struct {
	Pos   lexer.Position
	Value string `parser:"@Word"`
}

// Error is a semantic error located in the source.
type Error struct {
	Pos lexer.Position
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

func errorf(pos lexer.Position, format string, args ...interface{}) *Error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Parser converts pin map text into a pin table.
type Parser struct {
	parser *participle.Parser[File]
}

// NewParser creates a new pin map parser.
func NewParser() (*Parser, error) {
	parser, err := participle.Build[File](
		participle.Lexer(PinmapLexer),
		participle.Elide("Comment", "Whitespace"),
		participle.UseLookahead(2),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build parser: %w", err)
	}
	return &Parser{parser: parser}, nil
}

// ParseString parses input; name is used in error positions.
func (p *Parser) ParseString(name, input string) (port.Table, error) {
	if !strings.HasSuffix(input, "\n") {
		input += "\n"
	}
	f, err := p.parser.ParseString(name, input)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return f.Table()
}

// Parse parses a pin map from a reader.
func (p *Parser) Parse(name string, r io.Reader) (port.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pin map: %w", err)
	}
	return p.ParseString(name, string(data))
}

// ParseFile parses a pin map file.
func (p *Parser) ParseFile(filename string) (port.Table, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return p.Parse(filename, file)
}

// Load parses a pin map file with a fresh parser.
func Load(filename string) (port.Table, error) {
	p, err := NewParser()
	if err != nil {
		return nil, err
	}
	return p.ParseFile(filename)
}

// Table converts the parsed entries into a validated pin table.
func (f *File) Table() (port.Table, error) {
	table := make(port.Table, 0, len(f.Entries))
	seen := make(map[string]lexer.Position, len(f.Entries))
	for _, e := range f.Entries {
		d, err := e.Descriptor()
		if err != nil {
			return nil, err
		}
		name := d.Name()
		if prev, dup := seen[name]; dup {
			return nil, errorf(e.Pos, "%s already configured at line %d", name, prev.Line)
		}
		seen[name] = e.Pos
		table = append(table, d)
	}
	if len(table) == 0 {
		return nil, port.ErrEmptyTable
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// Descriptor converts a single entry.
func (e *Entry) Descriptor() (port.Descriptor, error) {
	g, idx, err := port.ParsePinName(e.Pin)
	if err != nil {
		return port.Descriptor{}, errorf(e.Pos, "%v", err)
	}
	d := port.Descriptor{Group: g, Index: idx}

	var haveMode, haveDir, haveLevel, havePull bool
	var levelPos, pullPos lexer.Position
	once := func(have *bool, s *Setting, what string) error {
		if *have {
			return errorf(s.Pos, "%s: %s given twice", e.Pin, what)
		}
		*have = true
		return nil
	}

	for _, s := range e.Words {
		var err error
		switch w := strings.ToLower(s.Value); w {
		case "in", "out":
			if err = once(&haveDir, s, "direction"); err == nil {
				d.Direction, _ = port.ParseDirection(w)
			}
		case "high", "low":
			if err = once(&haveLevel, s, "level"); err == nil {
				d.Initial = w == "high"
				levelPos = s.Pos
			}
		case "pullup", "pulldown", "nopull":
			if err = once(&havePull, s, "resistor"); err == nil {
				d.Resistor, _ = port.ParseResistor(w)
				pullPos = s.Pos
			}
		case "dir-changeable":
			d.DirectionChangeable = true
		case "mode-changeable":
			d.ModeChangeable = true
		default:
			m, perr := port.ParseMode(w)
			if perr != nil {
				return port.Descriptor{}, errorf(s.Pos, "%s: unknown setting %q", e.Pin, s.Value)
			}
			if err = once(&haveMode, s, "mode"); err == nil {
				d.Mode = m
			}
		}
		if err != nil {
			return port.Descriptor{}, err
		}
	}

	if !haveMode {
		return port.Descriptor{}, errorf(e.Pos, "%s: missing mode", e.Pin)
	}
	if haveLevel && d.Direction != port.Out {
		return port.Descriptor{}, errorf(levelPos, "%s: initial level needs an output", e.Pin)
	}
	if havePull && d.Direction == port.Out {
		return port.Descriptor{}, errorf(pullPos, "%s: pull resistor on an output", e.Pin)
	}
	return d, nil
}
