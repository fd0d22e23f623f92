// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/metis-ai/metis/pkg/errors"
	"github.com/metis-ai/metis/pkg/skills"
)

// ToolCaller is the slice of Client the adapter needs. *Client satisfies it.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// ToolLister extends ToolCaller with discovery, for wrapping a whole server
// at once.
type ToolLister interface {
	ToolCaller
	ListTools(ctx context.Context) ([]mcp.Tool, error)
}

// AdapterOption customizes a SkillAdapter.
type AdapterOption func(*SkillAdapter)

// WithSLA overrides the invocation budget for the adapted tool. The default
// is skills.DefaultSLA; remote servers that are slow or flaky deserve their
// own budget and usually a breaker.
func WithSLA(sla skills.SLA) AdapterOption {
	return func(a *SkillAdapter) {
		a.sla = sla
	}
}

// WithAdapterVersion sets the version the adapter reports. MCP tools carry
// no version of their own.
func WithAdapterVersion(version string) AdapterOption {
	return func(a *SkillAdapter) {
		if version != "" {
			a.version = version
		}
	}
}

// SkillAdapter exposes one remote MCP tool as a skills.Skill. The engine
// treats it like any native skill: the SLA budget, breaker, and input schema
// validation all apply before the call crosses the wire.
type SkillAdapter struct {
	tool    mcp.Tool
	caller  ToolCaller
	sla     skills.SLA
	version string
}

// NewSkillAdapter wraps tool so a registry can dispatch to it through caller.
func NewSkillAdapter(tool mcp.Tool, caller ToolCaller, opts ...AdapterOption) (*SkillAdapter, error) {
	if tool.Name == "" {
		return nil, errors.New(errors.CodeInvalidInput, "mcp tool name is required", nil)
	}
	if caller == nil {
		return nil, errors.New(errors.CodeInvalidInput, "mcp tool caller is required", nil)
	}
	a := &SkillAdapter{
		tool:    tool,
		caller:  caller,
		sla:     skills.DefaultSLA(),
		version: "1.0.0",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// SkillsFromClient discovers the tools a server advertises and wraps each
// one as a skill. All returned skills share the client's connection; any
// AdapterOptions apply to every tool.
func SkillsFromClient(ctx context.Context, c ToolLister, opts ...AdapterOption) ([]skills.Skill, error) {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]skills.Skill, 0, len(tools))
	for _, tool := range tools {
		adapter, err := NewSkillAdapter(tool, c, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, adapter)
	}
	return out, nil
}

// Name returns the remote tool name.
func (a *SkillAdapter) Name() string {
	return a.tool.Name
}

// Version returns the adapter version.
func (a *SkillAdapter) Version() string {
	return a.version
}

// Description returns the remote tool description.
func (a *SkillAdapter) Description() string {
	if a.tool.Description != "" {
		return a.tool.Description
	}
	return "remote MCP tool " + a.tool.Name
}

// SLA returns the invocation budget configured for this tool.
func (a *SkillAdapter) SLA() skills.SLA {
	return a.sla
}

// InputSchema surfaces the remote tool's declared input schema so the
// invoker rejects bad payloads before they cross the wire.
func (a *SkillAdapter) InputSchema() json.RawMessage {
	if len(a.tool.RawInputSchema) > 0 {
		return json.RawMessage(a.tool.RawInputSchema)
	}
	if a.tool.InputSchema.Type == "" {
		return nil
	}
	encoded, err := json.Marshal(a.tool.InputSchema)
	if err != nil {
		return nil
	}
	return encoded
}

// OutputSchema returns nil: MCP tools do not declare result schemas.
func (a *SkillAdapter) OutputSchema() json.RawMessage {
	return nil
}

// Invoke forwards the input payload as the tool's arguments and folds the
// result back into an output payload. Structured object results become the
// payload itself; anything else lands under "output".
func (a *SkillAdapter) Invoke(ctx context.Context, in skills.SkillInput, rc *skills.RunContext) (skills.SkillOutput, error) {
	args := in.Payload
	if args == nil {
		args = map[string]any{}
	}
	if err := a.checkRequired(args); err != nil {
		return skills.SkillOutput{}, err
	}

	rc.Log().Debug("calling mcp tool", "tool", a.tool.Name, "trace_id", in.TraceID)

	result, err := a.caller.CallTool(ctx, a.tool.Name, args)
	if err != nil {
		return skills.SkillOutput{}, err
	}
	payload, err := resultPayload(a.tool.Name, result)
	if err != nil {
		return skills.SkillOutput{}, err
	}
	return skills.NewSkillOutput(payload), nil
}

// checkRequired guards direct Invoke calls that bypass the invoker's schema
// validation. It only covers presence; full validation needs the schema.
func (a *SkillAdapter) checkRequired(args map[string]any) error {
	schema := a.tool.InputSchema
	if schema.Type != "" && schema.Type != "object" {
		return nil
	}
	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			return errors.New(errors.CodeInvalidInput, "missing required tool argument", nil).
				WithContext("tool", a.tool.Name).
				WithContext("argument", key)
		}
	}
	return nil
}

func resultPayload(name string, result *mcp.CallToolResult) (map[string]any, error) {
	if result == nil {
		return nil, errors.New(errors.CodeSkillExecutionFailure, "mcp tool returned no result", nil).
			WithContext("tool", name)
	}
	if result.IsError {
		return nil, errors.New(errors.CodeSkillExecutionFailure, "mcp tool reported an error", nil).
			WithContext("tool", name).
			WithContext("detail", textContent(result.Content))
	}
	if result.StructuredContent != nil {
		if m, ok := result.StructuredContent.(map[string]any); ok {
			return m, nil
		}
		return map[string]any{"output": result.StructuredContent}, nil
	}
	return map[string]any{"output": textContent(result.Content)}, nil
}

func textContent(items []mcp.Content) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var (
	_ skills.Skill          = (*SkillAdapter)(nil)
	_ skills.SchemaProvider = (*SkillAdapter)(nil)
	_ ToolLister            = (*Client)(nil)
)
