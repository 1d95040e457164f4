package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// levelRouter sends INFO/WARN records to one handler and ERROR+ to another.
type levelRouter struct {
	out slog.Handler
	err slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.err.Handle(ctx, r)
	}
	return lr.out.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{out: lr.out.WithAttrs(attrs), err: lr.err.WithAttrs(attrs)}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{out: lr.out.WithGroup(name), err: lr.err.WithGroup(name)}
}

// newLogger builds the process logger. Every level is also appended to
// logPath when it is set; the returned close func is never nil.
func newLogger(stdout, stderr io.Writer, logPath string) (*slog.Logger, func(), error) {
	closeFn := func() {}
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		closeFn = func() { f.Close() }
		stdout = io.MultiWriter(stdout, f)
		stderr = io.MultiWriter(stderr, f)
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	return slog.New(&levelRouter{
		out: slog.NewTextHandler(stdout, opts),
		err: slog.NewTextHandler(stderr, opts),
	}), closeFn, nil
}
