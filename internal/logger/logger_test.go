package logger

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	defer SetLevel("info")

	var tests = []struct {
		name    string
		level   string
		log     func()
		written bool
	}{
		{"info at info", "info", func() { Info("table %s loaded", "users") }, true},
		{"debug at info", "info", func() { Debug("hidden") }, false},
		{"debug at debug", "debug", func() { Debug("shown") }, true},
		{"warn at error", "error", func() { Warn("hidden") }, false},
		{"error at error", "error", func() { Error("boom %d", 1) }, true},
		{"unknown level falls back to info", "verbose", func() { Info("shown") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			SetLevel(tt.level)
			tt.log()
			if (buf.Len() > 0) != tt.written {
				t.Errorf("\ngot output %q, wanted written=%v", buf.String(), tt.written)
			}
		})
	}
}

func TestException(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	Exception(nil)
	if buf.Len() != 0 {
		t.Errorf("\nnil error produced output %q", buf.String())
	}

	Exception(errors.New("table users not found"))
	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "table users not found") {
		t.Errorf("\nunexpected exception output %q", out)
	}
}
