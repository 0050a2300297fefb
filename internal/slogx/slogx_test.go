package slogx

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelFromIntMapsFullRange(t *testing.T) {
	cases := map[int]slog.Level{
		-1: Off,
		0:  slog.LevelError,
		1:  slog.LevelWarn,
		2:  slog.LevelInfo,
		3:  slog.LevelDebug,
	}
	for n, want := range cases {
		if got := LevelFromInt(n); got != want {
			t.Errorf("LevelFromInt(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestErrorAttrNilIsZeroValue(t *testing.T) {
	if got := Error(nil); got.Key != "" {
		t.Errorf("Error(nil) = %+v, want zero Attr", got)
	}
}

func TestErrorAttrWrapsMessage(t *testing.T) {
	attr := Error(errors.New("boom"))
	if !strings.Contains(attr.Value.String(), "boom") {
		t.Errorf("Error(err).Value = %q, want it to contain %q", attr.Value.String(), "boom")
	}
}

func TestSetupOffLevelSuppressesEverything(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(&buf, -1, false)
	logger.Error("should not appear")
	if buf.Len() != 0 {
		t.Errorf("Off level should suppress all output, got %q", buf.String())
	}
}

func TestColorWriterWrapsOutputInAnsiCodes(t *testing.T) {
	var buf bytes.Buffer
	cw := &colorWriter{w: &buf}
	if _, err := cw.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := buf.String()
	if !strings.HasPrefix(got, ansiBold) || !strings.HasSuffix(got, ansiReset) {
		t.Errorf("colorWriter output = %q, want ANSI-wrapped", got)
	}
}
