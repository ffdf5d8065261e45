package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNewWithWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("production", &buf)

	l.Debug("hidden")
	l.Info("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug leaked at production level: %s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, `"env":"production"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestFromFallsBackToDefault(t *testing.T) {
	if From(context.Background()) == nil {
		t.Fatalf("expected default logger")
	}

	var buf bytes.Buffer
	l := NewWithWriter("dev", &buf)
	ctx := With(context.Background(), l)
	if From(ctx) != l {
		t.Fatalf("expected context logger back")
	}
}
