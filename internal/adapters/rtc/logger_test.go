package rtc

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerFactory(t *testing.T) {
	var buf bytes.Buffer
	f := &LoggerFactory{base: zerolog.New(&buf), level: zerolog.WarnLevel}
	l := f.NewLogger("ice")

	l.Info("hidden")
	l.Debugf("hidden %d", 1)
	l.Warnf("candidate %s failed", "host")
	l.Error("boom")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("below level message logged: %s", out)
	}
	for _, want := range []string{`"scope":"ice"`, `"module":"pion"`, "candidate host failed", "boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q lacks %q", out, want)
		}
	}
}

func TestNewLoggerFactoryLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.WarnLevel},
		{"nonsense", zerolog.WarnLevel},
		{"debug", zerolog.DebugLevel},
		{"error", zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		if got := NewLoggerFactory(tt.in).level; got != tt.want {
			t.Errorf("NewLoggerFactory(%q) level = %v, want %v", tt.in, got, tt.want)
		}
	}
}
