// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/metis-ai/metis/pkg/skills"
)

// ServerOption customizes a SkillServer.
type ServerOption func(*SkillServer)

// WithRunContext supplies the run dependencies handed to every published
// skill. Without it, skills are invoked with a nil run context and must
// tolerate that.
func WithRunContext(rc *skills.RunContext) ServerOption {
	return func(s *SkillServer) {
		s.runContext = rc
	}
}

// SkillServer publishes local skills as MCP tools so other agents and
// MCP-aware callers can invoke them. Calls go straight to Skill.Invoke;
// SLA enforcement stays on the calling side.
type SkillServer struct {
	mcpServer  *server.MCPServer
	runContext *skills.RunContext
}

// NewSkillServer creates a server that identifies itself with the given
// name and version during the MCP handshake.
func NewSkillServer(name, version string, opts ...ServerOption) *SkillServer {
	s := &SkillServer{
		mcpServer: server.NewMCPServer(name, version,
			server.WithToolCapabilities(true),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MCPServer returns the underlying mcp-go server for custom transport setup.
func (s *SkillServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// RegisterSkill publishes sk as an MCP tool. The tool advertises the
// skill's input schema when it declares one. Results carry the output
// payload both as structured content and as a JSON text block.
func (s *SkillServer) RegisterSkill(sk skills.Skill) {
	tool := mcp.NewTool(sk.Name(), mcp.WithDescription(sk.Description()))
	if provider, ok := sk.(skills.SchemaProvider); ok {
		if schema := provider.InputSchema(); len(schema) > 0 {
			tool.RawInputSchema = schema
		}
	}

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)
		out, err := sk.Invoke(ctx, skills.NewSkillInput(args), s.runContext)
		if err != nil {
			return errorResult(err.Error()), nil
		}

		encoded, err := json.Marshal(out.Payload)
		if err != nil {
			return nil, err
		}
		return &mcp.CallToolResult{
			Content:           []mcp.Content{mcp.TextContent{Type: "text", Text: string(encoded)}},
			StructuredContent: out.Payload,
		}, nil
	})
}

// ServeStdio serves MCP over stdin/stdout until the stream closes.
func (s *SkillServer) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// StreamableHTTPServer returns a streamable HTTP transport for this server.
// The result is an http.Handler and can also run its own listener via
// Start(addr).
func (s *SkillServer) StreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcpServer)
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: msg}},
		IsError: true,
	}
}
