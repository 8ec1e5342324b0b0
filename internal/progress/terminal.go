// Package progress renders fetch and polling progress on the terminal.
// With a TTY it draws bars; otherwise it prints one line per state change.
package progress

import (
	"io"
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// humanMiB formats a byte count in MiB with one decimal.
func humanMiB(n int64) float64 {
	return float64(n) / (1024 * 1024)
}
