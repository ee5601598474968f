package tracing

import (
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	prev := otel.GetTracerProvider()

	tp, err := NewTracerProvider(context.Background(), TracerConfig{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp.Tracer("catalog") == nil {
		t.Fatal("expected tracer")
	}
	if otel.GetTracerProvider() != prev {
		t.Error("disabled provider must not replace the global provider")
	}
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Errorf("ForceFlush: %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestNewTracerProvider_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TracerConfig
		wantErr string
	}{
		{
			name:    "missing service name",
			cfg:     TracerConfig{Enabled: true, Endpoint: "localhost:4317", SampleRate: 1},
			wantErr: "service name is required",
		},
		{
			name:    "missing endpoint",
			cfg:     TracerConfig{Enabled: true, ServiceName: "catalog", SampleRate: 1},
			wantErr: "OTLP endpoint is required",
		},
		{
			name:    "sample rate below zero",
			cfg:     TracerConfig{Enabled: true, ServiceName: "catalog", Endpoint: "localhost:4317", SampleRate: -0.1},
			wantErr: "sample rate must be between 0 and 1",
		},
		{
			name:    "sample rate above one",
			cfg:     TracerConfig{Enabled: true, ServiceName: "catalog", Endpoint: "localhost:4317", SampleRate: 1.5},
			wantErr: "sample rate must be between 0 and 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTracerProvider(context.Background(), tt.cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewTracerProvider_EnabledInstallsGlobalProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		otel.SetTextMapPropagator(prevProp)
	})

	tp, err := NewTracerProvider(context.Background(), TracerConfig{
		ServiceName:    "catalog",
		ServiceVersion: "test",
		Environment:    "test",
		Endpoint:       "localhost:4317",
		SampleRate:     1,
		Enabled:        true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if otel.GetTracerProvider() != tp.provider {
		t.Error("expected the global provider to be replaced")
	}

	fields := otel.GetTextMapPropagator().Fields()
	if len(fields) == 0 {
		t.Error("expected trace context propagation fields")
	}

	// Nothing was recorded, so shutdown does not need the collector.
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
