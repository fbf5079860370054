package runtime

import (
	"context"
	"testing"

	"github.com/loqalabs/loqa-jtalk/internal/config"
)

func TestTraceExporterSelection(t *testing.T) {
	cases := []struct {
		level string
		want  string
	}{
		{"info", "none"},
		{"warn", "none"},
		{"", "none"},
		{"debug", "stdout"},
		{" DEBUG ", "stdout"},
	}
	for _, tc := range cases {
		exporter, name, err := traceExporter(context.Background(), config.TelemetryConfig{LogLevel: tc.level})
		if err != nil {
			t.Fatalf("traceExporter(%q): %v", tc.level, err)
		}
		if name != tc.want {
			t.Fatalf("traceExporter(%q) = %q, want %q", tc.level, name, tc.want)
		}
		if (exporter == nil) != (tc.want == "none") {
			t.Fatalf("traceExporter(%q): exporter presence does not match %q", tc.level, name)
		}
		if exporter != nil {
			_ = exporter.Shutdown(context.Background())
		}
	}
}

func TestSetupTelemetryWithoutExporter(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.LogLevel = "info"
	shutdown, handler, err := setupTelemetry(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if handler == nil {
		t.Fatal("expected a metrics handler")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
