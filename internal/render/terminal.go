package render

import (
	"fmt"
	"io"
	"strings"
)

// TerminalWriter prints messages for a human reading a terminal or cron mail.
type TerminalWriter struct {
	color bool
}

// NewTerminal creates a terminal writer. Set color=true for ANSI colors.
func NewTerminal(color bool) *TerminalWriter {
	return &TerminalWriter{color: color}
}

// Write prints a header line followed by one block per message.
func (w *TerminalWriter) Write(out io.Writer, accounts int, msgs []Message) error {
	header := fmt.Sprintf("postnotify: %d accounts, %d new posts", accounts, len(msgs))
	if _, err := fmt.Fprintln(out, w.bold(header)); err != nil {
		return err
	}
	fmt.Fprintln(out)

	if len(msgs) == 0 {
		fmt.Fprintln(out, "No new posts.")
		return nil
	}

	for _, m := range msgs {
		if err := w.WriteMessage(out, m); err != nil {
			return err
		}
	}
	return nil
}

// WriteMessage prints a single message block.
func (w *TerminalWriter) WriteMessage(out io.Writer, m Message) error {
	if _, err := fmt.Fprintf(out, "%s\n", w.green(w.bold(m.Title))); err != nil {
		return err
	}
	for _, line := range strings.Split(m.Body, "\n") {
		fmt.Fprintf(out, "  %s\n", line)
	}
	if m.URL != "" {
		fmt.Fprintf(out, "  %s\n", w.dim(m.URL))
	}
	_, err := fmt.Fprintln(out)
	return err
}

// ANSI helpers, no-op when color=false.

func (w *TerminalWriter) bold(s string) string {
	if !w.color {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

func (w *TerminalWriter) green(s string) string {
	if !w.color {
		return s
	}
	return "\033[32m" + s + "\033[0m"
}

func (w *TerminalWriter) dim(s string) string {
	if !w.color {
		return s
	}
	return "\033[2m" + s + "\033[0m"
}
