package pinmap

import (
	"fmt"
	"io"
	"strings"

	"github.com/cjeanneret/PortGo/internal/port"
)

// Format writes t in pin map form, one line per pin in table order.
func Format(w io.Writer, t port.Table) error {
	for i, d := range t {
		if _, err := fmt.Fprintf(w, "%s # pin %d\n", FormatLine(d), i); err != nil {
			return err
		}
	}
	return nil
}

// FormatLine renders one descriptor without a trailing newline.
func FormatLine(d port.Descriptor) string {
	words := []string{d.Name(), d.Mode.String(), d.Direction.String()}
	if d.Direction == port.Out {
		if d.Initial {
			words = append(words, "high")
		} else {
			words = append(words, "low")
		}
	} else {
		switch d.Resistor {
		case port.PullUp:
			words = append(words, "pullup")
		case port.PullDown:
			words = append(words, "pulldown")
		}
	}
	if d.DirectionChangeable {
		words = append(words, "dir-changeable")
	}
	if d.ModeChangeable {
		words = append(words, "mode-changeable")
	}
	return strings.Join(words, " ")
}
