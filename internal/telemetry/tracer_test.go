package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInit_ExportsToConfiguredWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var spans bytes.Buffer
	shutdown, err := Init(Options{ServiceName: "tracer-test", Writer: &spans}, logger)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "test-span")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	out := spans.String()
	if !strings.Contains(out, "test-span") {
		t.Errorf("exported spans missing span name, got: %s", out)
	}
	if !strings.Contains(out, "tracer-test") {
		t.Errorf("exported spans missing service name, got: %s", out)
	}
}

func TestInit_DefaultsWriter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	shutdown, err := Init(Options{ServiceName: "tracer-test"}, logger)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
