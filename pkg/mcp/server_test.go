// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/metis-ai/metis/pkg/errors"
	"github.com/metis-ai/metis/pkg/skills"
)

// echoSkill is the canonical fixture served by the transport tests.
type echoSkill struct{}

func (echoSkill) Name() string        { return "echo" }
func (echoSkill) Version() string     { return "1.0.0" }
func (echoSkill) Description() string { return "echoes its input back" }
func (echoSkill) SLA() skills.SLA     { return skills.DefaultSLA() }

func (echoSkill) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"input":{"type":"string"}},"required":["input"]}`)
}

func (echoSkill) OutputSchema() json.RawMessage { return nil }

func (echoSkill) Invoke(_ context.Context, in skills.SkillInput, _ *skills.RunContext) (skills.SkillOutput, error) {
	return skills.NewSkillOutput(map[string]any{"echo": in.Payload["input"]}), nil
}

type brokenSkill struct{}

func (brokenSkill) Name() string        { return "broken" }
func (brokenSkill) Version() string     { return "1.0.0" }
func (brokenSkill) Description() string { return "always fails" }
func (brokenSkill) SLA() skills.SLA     { return skills.DefaultSLA() }

func (brokenSkill) Invoke(context.Context, skills.SkillInput, *skills.RunContext) (skills.SkillOutput, error) {
	return skills.SkillOutput{}, errors.New(errors.CodeSkillExecutionFailure, "wires crossed", nil)
}

type runContextProbe struct{}

func (runContextProbe) Name() string        { return "probe" }
func (runContextProbe) Version() string     { return "1.0.0" }
func (runContextProbe) Description() string { return "reports whether a run context was supplied" }
func (runContextProbe) SLA() skills.SLA     { return skills.DefaultSLA() }

func (runContextProbe) Invoke(_ context.Context, _ skills.SkillInput, rc *skills.RunContext) (skills.SkillOutput, error) {
	return skills.NewSkillOutput(map[string]any{"has_run_context": rc != nil}), nil
}

// newTestHTTPClient serves srv over an in-process streamable HTTP server and
// connects a Client to it.
func newTestHTTPClient(t *testing.T, srv *SkillServer, opts ...ClientOption) *Client {
	t.Helper()

	httpServer := mcpserver.NewTestStreamableHTTPServer(srv.MCPServer())
	t.Cleanup(httpServer.Close)

	c, err := NewClientWithStreamableHTTPProtocol(httpServer.URL, mcpgo.LATEST_PROTOCOL_VERSION, opts...)
	if err != nil {
		t.Fatalf("NewClientWithStreamableHTTPProtocol: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSkillServerAdvertisesSchema(t *testing.T) {
	srv := NewSkillServer("metis-test", "0.0.1")
	srv.RegisterSkill(echoSkill{})

	c := newTestHTTPClient(t, srv)

	tools, err := c.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "echo" {
		t.Fatalf("expected tool echo, got %+v", tools)
	}
	if tools[0].Description != "echoes its input back" {
		t.Fatalf("unexpected description %q", tools[0].Description)
	}
	if len(tools[0].InputSchema.Required) != 1 || tools[0].InputSchema.Required[0] != "input" {
		t.Fatalf("expected required input field in schema, got %+v", tools[0].InputSchema)
	}
}

func TestSkillServerCallReturnsPayload(t *testing.T) {
	srv := NewSkillServer("metis-test", "0.0.1")
	srv.RegisterSkill(echoSkill{})

	c := newTestHTTPClient(t, srv)

	result, err := c.CallTool(context.Background(), "echo", map[string]any{"input": "hello"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	structured, ok := result.StructuredContent.(map[string]any)
	if !ok || structured["echo"] != "hello" {
		t.Fatalf("expected structured echo payload, got %+v", result.StructuredContent)
	}
}

func TestSkillServerSkillError(t *testing.T) {
	srv := NewSkillServer("metis-test", "0.0.1")
	srv.RegisterSkill(brokenSkill{})

	c := newTestHTTPClient(t, srv)

	result, err := c.CallTool(context.Background(), "broken", map[string]any{})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error result, got %+v", result)
	}
}

func TestSkillServerRunContext(t *testing.T) {
	withRC := NewSkillServer("metis-test", "0.0.1", WithRunContext(&skills.RunContext{TraceID: "trace-1"}))
	withRC.RegisterSkill(runContextProbe{})

	c := newTestHTTPClient(t, withRC)

	result, err := c.CallTool(context.Background(), "probe", nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	structured, ok := result.StructuredContent.(map[string]any)
	if !ok || structured["has_run_context"] != true {
		t.Fatalf("expected run context to reach the skill, got %+v", result.StructuredContent)
	}
}
