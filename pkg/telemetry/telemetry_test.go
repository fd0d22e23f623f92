// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"strings"
	"testing"
)

func TestInitStdout(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{
		ServiceName: "metis-test",
		Version:     "v0.0.1",
		Exporter:    "stdout",
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if shutdown == nil {
		t.Fatal("Init() returned a nil shutdown")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown error = %v", err)
	}
}

func TestInitDefaultsToStdout(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())
}

func TestInitUnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{Exporter: "jaeger"})
	if err == nil {
		t.Fatal("Init() accepted an unknown exporter")
	}
	if !strings.Contains(err.Error(), "unknown telemetry exporter") {
		t.Errorf("error = %v", err)
	}
}

func TestInitOTLPRequiresEndpoint(t *testing.T) {
	_, err := Init(context.Background(), Config{Exporter: "otlp"})
	if err == nil {
		t.Fatal("Init() accepted otlp without an endpoint")
	}
}
