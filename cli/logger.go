package cli

import (
	"io"
	"log/slog"
)

// newLogger writes human-readable records when w is a terminal and JSON
// records otherwise. Callers scope it with site, user or rotation
// attributes; secret values are never passed to it.
func newLogger(w io.Writer, level slog.Level, terminal bool) *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: level}
	if terminal {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(handler)
}
