// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"os"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// TestOTLPSmoke exercises the otlp exporter path against a live collector.
// Gated behind env vars so the suite stays hermetic by default.
func TestOTLPSmoke(t *testing.T) {
	if os.Getenv("METIS_OTLP_SMOKE_TEST") != "1" {
		t.Skip("set METIS_OTLP_SMOKE_TEST=1 to run")
	}

	endpoint := os.Getenv("METIS_TELEMETRY_ENDPOINT")
	if endpoint == "" {
		t.Skip("set METIS_TELEMETRY_ENDPOINT for the OTLP smoke test")
	}

	cfg := Config{
		ServiceName: "metis-smoke-test",
		Version:     "v0.1.0",
		Exporter:    "otlp",
		Endpoint:    endpoint,
		Insecure:    os.Getenv("METIS_TELEMETRY_INSECURE") == "true",
	}

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to init telemetry: %v", err)
	}

	tracer := otel.Tracer("metis/telemetry-smoke")
	ctx, span := tracer.Start(context.Background(), "smoke.span")
	span.SetAttributes(attribute.String("smoke.test", "otlp"))
	span.End()

	meter := otel.Meter("metis/telemetry-smoke")
	counter, err := meter.Int64Counter("metis.telemetry.smoke.counter")
	if err == nil {
		counter.Add(ctx, 1, metric.WithAttributes(attribute.String("smoke.test", "otlp")))
	}

	time.Sleep(2 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("telemetry shutdown failed: %v", err)
	}
}
