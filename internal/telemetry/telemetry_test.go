package telemetry

import (
	"context"
	"errors"
	"testing"

	"cfpanel/internal/config"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TelemetryConfig{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	ctx, span := StartSpan(context.Background(), "test")
	if ctx == nil {
		t.Fatalf("nil context")
	}
	EndSpan(span, errors.New("x"))
}

func TestSampleRatioClamp(t *testing.T) {
	if sampleRatio(0) != 1 || sampleRatio(2) != 1 || sampleRatio(0.25) != 0.25 {
		t.Fatalf("unexpected clamp")
	}
}
