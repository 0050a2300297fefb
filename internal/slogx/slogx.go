// Package slogx is a thin log/slog helper: a level mapper for the CLI's
// -l/--logs integer scale, an --forceLoggerColors writer wrapper, and an
// Error attribute constructor. Grounded on go-musicfox's utils/slogx,
// generalized from its fixed log-file init() to a Setup call the config
// layer drives with the flags spec §6 defines.
package slogx

import (
	"fmt"
	"io"
	"log/slog"
)

// Off is a level above every level slog defines; Setup uses it to
// implement --logs -1 ("none") by filtering every record out.
const Off = slog.Level(100)

// LevelFromInt maps spec §6's -l/--logs integer scale
// ({-1,0,1,2,3} = none/error/warn/info/debug) to an slog.Level.
func LevelFromInt(n int) slog.Level {
	switch n {
	case -1:
		return Off
	case 0:
		return slog.LevelError
	case 1:
		return slog.LevelWarn
	case 3:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Setup builds the default logger: a text handler over w, optionally
// wrapped to force ANSI color codes regardless of whether w is a
// terminal (spec §12 supplemented feature "--forceLoggerColors", kmp3's
// argv parser carries the same flag).
func Setup(w io.Writer, level int, forceColors bool) *slog.Logger {
	out := w
	if forceColors {
		out = &colorWriter{w: w}
	}
	h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: LevelFromInt(level)})
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// Error wraps an error as a structured attribute, matching go-musicfox's
// slogx.Error so call sites read `slog.Error("...", slogx.Error(err))`.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", fmt.Sprintf("%+v", err))
}

// colorWriter wraps every write in an ANSI bold prefix and a reset suffix
// so log output stays styled even when slog's TextHandler is
// writing to a non-terminal (a redirected file, a log aggregator that
// still renders ANSI). slog's own handlers never colorize on their own,
// so forcing it means owning the byte stream at this layer.
type colorWriter struct {
	w io.Writer
}

const (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
)

func (c *colorWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(c.w, ansiBold); err != nil {
		return 0, err
	}
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	if _, werr := io.WriteString(c.w, ansiReset); werr != nil {
		return n, werr
	}
	return n, nil
}
