package logging

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"Error", ERROR},
		{"fatal", FATAL},
		{"bogus", INFO},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := FromZap(zap.New(core)).WithComponent("billing")

	l.Debug("hidden")
	l.Info("charged", map[string]interface{}{"customer_id": "c1", "error": errors.New("boom")})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["component"] != "billing" || ctx["customer_id"] != "c1" || ctx["error"] != "boom" {
		t.Errorf("Unexpected fields: %v", ctx)
	}
}

func TestFileLogger(t *testing.T) {
	l, err := NewFileLogger(t.TempDir(), "server", DEBUG, true)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	l.Info("hello")
	_ = l.Sync()
}
