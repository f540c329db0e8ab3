package diagnostics

import (
	"fmt"
	"io"
	"strings"
)

// Rating grades a measured value.
type Rating int

const (
	Good Rating = iota
	Moderate
	Poor
)

func (r Rating) String() string {
	switch r {
	case Good:
		return "good"
	case Moderate:
		return "moderate"
	case Poor:
		return "poor"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the rating by name.
func (r Rating) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

func (r Rating) marker() string {
	switch r {
	case Good:
		return "[ok]  "
	case Moderate:
		return "[warn]"
	default:
		return "[FAIL]"
	}
}

const ruleWidth = 60

// Section writes a titled separator.
func Section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n%s\n", title, strings.Repeat("=", ruleWidth))
}

// Rule writes a separator line.
func Rule(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", ruleWidth))
}

func line(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  "+format+"\n", args...)
}

func rated(w io.Writer, r Rating, format string, args ...any) {
	fmt.Fprintf(w, "  %s %s\n", r.marker(), fmt.Sprintf(format, args...))
}
