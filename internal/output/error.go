package output

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

// ErrorOutput is the JSON document written for a failed command.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed command.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	ExitCode   int               `json:"exit_code"`

	// cause is shown on its own line in text mode.
	cause string
}

// describe flattens err. Errors outside the coinerr taxonomy report as
// GENERAL_ERROR.
func describe(err error) ErrorDetail {
	var ce *coinerr.CoinError
	if !errors.As(err, &ce) {
		return ErrorDetail{Code: "GENERAL_ERROR", Message: err.Error(), ExitCode: coinerr.ExitGeneral}
	}

	d := ErrorDetail{
		Code:       ce.Code,
		Message:    ce.Message,
		Details:    ce.Details,
		Suggestion: ce.Suggestion,
		ExitCode:   ce.ExitCode,
	}
	if ce.Cause != nil {
		d.cause = ce.Cause.Error()
	}
	return d
}

// FormatError writes err to w as a JSON document or as readable text.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}

	d := describe(err)
	if format == FormatJSON {
		if d.cause != "" {
			d.Message += ": " + d.cause
		}
		return writeJSON(w, ErrorOutput{Error: d})
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "Error: %s\n", d.Message)
	if d.cause != "" {
		_, _ = fmt.Fprintf(&sb, "Cause: %s\n", d.cause)
	}
	if len(d.Details) > 0 {
		sb.WriteString("\nDetails:\n")
		t := KeyValue()
		keys := make([]string, 0, len(d.Details))
		for k := range d.Details {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			t.AddRow("  "+k+":", d.Details[k])
		}
		_ = t.Render(&sb)
	}
	if d.Suggestion != "" {
		_, _ = fmt.Fprintf(&sb, "\nSuggestion: %s\n", d.Suggestion)
	}

	_, err = io.WriteString(w, sb.String())
	return err
}
