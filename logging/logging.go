// Package logging builds the slog loggers used by the sqlm tool.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Options select the handler and level.
type Options struct {
	Level   string // debug, info, warn or error
	Format  string // text, json or pretty
	Verbose bool   // forces debug
	Writer  io.Writer
}

// ParseLevel parses a level name. The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

// New creates a logger.
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(opts.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, ho)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, ho)), nil
	case "pretty":
		return slog.New(newPrettyJSONHandler(w, ho)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: expected text, json or pretty", opts.Format)
	}
}

// Discard is a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// PrettyJSONHandler prints each record as indented JSON, for reading
// compile traces in a terminal.
type PrettyJSONHandler struct {
	*slog.JSONHandler
	writer io.Writer
	attrs  []slog.Attr
}

func newPrettyJSONHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyJSONHandler {
	return &PrettyJSONHandler{
		JSONHandler: slog.NewJSONHandler(w, opts),
		writer:      w,
	}
}

func (h *PrettyJSONHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs()+len(h.attrs)+3)
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Resolve().Any()
		return true
	})
	for k, v := range attrs {
		if err, ok := v.(error); ok {
			attrs[k] = err.Error()
		}
	}

	attrs["time"] = r.Time.Format(time.RFC3339)
	attrs["level"] = r.Level.String()
	attrs["msg"] = r.Message

	pretty, err := json.MarshalIndent(attrs, "", "  ")
	if err != nil {
		return err
	}
	_, err = h.writer.Write(append(pretty, '\n'))
	return err
}

func (h *PrettyJSONHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &PrettyJSONHandler{
		JSONHandler: h.JSONHandler.WithAttrs(attrs).(*slog.JSONHandler),
		writer:      h.writer,
		attrs:       append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}
