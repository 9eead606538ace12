package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// Tee returns a logger that writes every record to primary and, as JSON, to
// w. palace serve uses it for --log-file: the terminal keeps its usual
// format while the file gets machine-readable records. opts configure the
// file sink; WithJSON and WithWriter are applied after them.
func Tee(primary *slog.Logger, w io.Writer, opts ...Option) *slog.Logger {
	sink := New(append(opts, WithJSON(true), WithWriter(w))...)
	return Multi(primary, sink)
}

// Multi returns a logger that dispatches each record to the handlers of all
// loggers. Each sink applies its own level.
func Multi(loggers ...*slog.Logger) *slog.Logger {
	sinks := make(fanout, 0, len(loggers))
	for _, l := range loggers {
		sinks = append(sinks, l.Handler())
	}
	return slog.New(sinks)
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers r to every enabled sink. A failing sink does not stop the
// others; their errors are joined.
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) derive(fn func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}
