package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompt seams; replaced in tests.
//
//nolint:gochecknoglobals // test seams for interactive input
var (
	promptConfirmFn   = promptConfirmation
	stdinIsTerminalFn = stdinIsTerminal
)

// promptConfirmation asks the user to approve a send. Anything but y or yes
// declines.
func promptConfirmation(w io.Writer) bool {
	out(w, "Send this transaction? [y/N]: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}

	response := strings.ToLower(strings.TrimSpace(line))
	return response == "y" || response == "yes"
}

// stdinIsTerminal reports whether the user can answer a prompt.
func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) //nolint:gosec // G115: Fd() fits in int on supported platforms
}

// out writes formatted text, ignoring write errors.
func out(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

// outln writes a line, ignoring write errors.
func outln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}
