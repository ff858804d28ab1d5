package pinmap

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// PinmapLexer splits a pin map into one entry per line.
var PinmapLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Comments run to end of line
	{Name: "Comment", Pattern: `#[^\n]*`},

	// Newlines end an entry, so they are not whitespace here
	{Name: "EOL", Pattern: `\n`},
	{Name: "Whitespace", Pattern: `[ \t\r]+`},

	// Pin names: port group A..F, bit 0..7
	{Name: "Pin", Pattern: `(?i)\bP[A-F][0-7]\b`},

	// Settings words (dio, af7, pullup, dir-changeable, ...)
	{Name: "Word", Pattern: `[a-zA-Z][a-zA-Z0-9_-]*`},

	// Anything else, reported by the parser with its position
	{Name: "Other", Pattern: `[^\s#]+`},
})
