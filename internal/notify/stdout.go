package notify

import (
	"context"
	"io"

	"github.com/ppiankov/postnotify/internal/render"
)

// Stdout prints messages instead of pushing them. The device is ignored.
type Stdout struct {
	w      io.Writer
	writer *render.TerminalWriter
}

func NewStdout(w io.Writer, color bool) *Stdout {
	return &Stdout{w: w, writer: render.NewTerminal(color)}
}

func (s *Stdout) Send(_ context.Context, msgs []render.Message, _ string) Report {
	var rep Report
	for _, m := range msgs {
		rep.record(ProviderStdout, s.writer.WriteMessage(s.w, m))
	}
	return rep
}
