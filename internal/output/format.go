// Package output renders command results as text tables or JSON.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/term"
)

//nolint:gochecknoglobals // shared encoder configuration
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Format selects how results are written.
type Format string

// Output formats. FormatAuto resolves to text on a terminal and JSON
// everywhere else.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatAuto Format = "auto"
)

// ParseFormat maps a flag or config value to a Format. Unknown values mean
// auto.
func ParseFormat(s string) Format {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatText:
		return f
	default:
		return FormatAuto
	}
}

// DetectFormat resolves FormatAuto for w and returns other formats as is.
func DetectFormat(w io.Writer, explicit Format) Format {
	switch {
	case explicit != FormatAuto:
		return explicit
	case IsTerminal(w):
		return FormatText
	default:
		return FormatJSON
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // G115: Fd() fits in int on supported platforms
}

// Formatter writes command results in one format. Results go to the output
// writer; warnings go to the error writer so piped JSON stays clean.
type Formatter struct {
	format Format
	out    io.Writer
	errOut io.Writer
}

// NewFormatter writes results to w and warnings to stderr.
func NewFormatter(format Format, w io.Writer) *Formatter {
	return &Formatter{format: format, out: w, errOut: os.Stderr}
}

// WithErrorWriter returns a copy of f that writes warnings to w.
func (f *Formatter) WithErrorWriter(w io.Writer) *Formatter {
	c := *f
	c.errOut = w
	return &c
}

// Format returns the resolved output format.
func (f *Formatter) Format() Format {
	return f.format
}

// IsJSON reports whether results are written as JSON.
func (f *Formatter) IsJSON() bool {
	return f.format == FormatJSON
}

// Print writes v as an indented JSON document, or as one line of text.
func (f *Formatter) Print(v any) error {
	if f.IsJSON() {
		return writeJSON(f.out, v)
	}
	if s, ok := v.(fmt.Stringer); ok {
		v = s.String()
	}
	_, err := fmt.Fprintln(f.out, v)
	return err
}

// Printf writes formatted text.
func (f *Formatter) Printf(format string, args ...any) error {
	_, err := fmt.Fprintf(f.out, format, args...)
	return err
}

// Println writes a line of text.
func (f *Formatter) Println(args ...any) error {
	_, err := fmt.Fprintln(f.out, args...)
	return err
}

// Info writes a status line. JSON mode drops it so the document stays
// parseable.
func (f *Formatter) Info(format string, args ...any) {
	f.notice(f.out, "", format, args...)
}

// Success writes an "ok:" line. JSON mode drops it.
func (f *Formatter) Success(format string, args ...any) {
	f.notice(f.out, "ok: ", format, args...)
}

// Warn writes a warning to the error writer in every mode.
func (f *Formatter) Warn(format string, args ...any) {
	_, _ = fmt.Fprintf(f.errOut, "warning: "+format+"\n", args...)
}

func (f *Formatter) notice(w io.Writer, prefix, format string, args ...any) {
	if f.IsJSON() {
		return
	}
	_, _ = fmt.Fprintf(w, prefix+format+"\n", args...)
}

// writeJSON encodes v with two-space indentation.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
