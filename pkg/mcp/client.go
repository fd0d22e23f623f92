// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp bridges Model Context Protocol servers into the skills layer.
// A Client speaks the protocol over stdio or streamable HTTP, and
// SkillAdapter wraps each remote tool as a skills.Skill, so the engine
// dispatches to external servers with the same SLAs, breakers, and schema
// validation as native skills. SkillServer is the inverse direction: it
// publishes local skills to MCP-aware callers.
package mcp

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/metis-ai/metis/pkg/errors"
	"github.com/metis-ai/metis/pkg/resilience"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultCacheTTL = 30 * time.Second
	initTimeout     = 10 * time.Second

	clientName    = "metis"
	clientVersion = "0.1.0"
)

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request budget for a single attempt.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetry replaces the transport retry policy.
func WithRetry(rc resilience.RetryConfig) ClientOption {
	return func(c *Client) {
		c.retry = rc
	}
}

// WithToolCacheTTL sets how long a ListTools response is reused. Zero
// disables caching.
func WithToolCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl >= 0 {
			c.cacheTTL = ttl
		}
	}
}

// Client wraps an mcp-go connection with per-request timeouts, transport
// retries, and a short-lived tool discovery cache. Safe for concurrent use.
type Client struct {
	mcpClient client.MCPClient
	timeout   time.Duration
	retry     resilience.RetryConfig
	cacheTTL  time.Duration

	mu          sync.Mutex
	toolsCache  []mcp.Tool
	cacheExpiry time.Time
}

// NewClient wraps an already-initialized MCP connection.
func NewClient(c client.MCPClient, opts ...ClientOption) *Client {
	out := &Client{
		mcpClient: c,
		timeout:   defaultTimeout,
		retry:     defaultTransportRetry(),
		cacheTTL:  defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(out)
	}
	return out
}

// NewClientWithStdio launches command as a subprocess and speaks MCP over
// its stdin/stdout.
func NewClientWithStdio(command string, args []string, opts ...ClientOption) (*Client, error) {
	return NewClientWithStdioProtocol(command, args, mcp.LATEST_PROTOCOL_VERSION, opts...)
}

// NewClientWithStdioProtocol is NewClientWithStdio pinned to a specific
// protocol version.
func NewClientWithStdioProtocol(command string, args []string, protocolVersion string, opts ...ClientOption) (*Client, error) {
	stdioClient, err := client.NewStdioMCPClient(command, nil, args...)
	if err != nil {
		return nil, err
	}
	if err := stdioClient.Start(context.Background()); err != nil {
		return nil, err
	}
	if err := initialize(stdioClient, protocolVersion); err != nil {
		_ = stdioClient.Close()
		return nil, err
	}
	return NewClient(stdioClient, opts...), nil
}

// NewClientWithStreamableHTTP connects to an MCP server over streamable HTTP.
func NewClientWithStreamableHTTP(endpoint string, opts ...ClientOption) (*Client, error) {
	return NewClientWithStreamableHTTPProtocol(endpoint, mcp.LATEST_PROTOCOL_VERSION, opts...)
}

// NewClientWithStreamableHTTPProtocol is NewClientWithStreamableHTTP pinned
// to a specific protocol version.
func NewClientWithStreamableHTTPProtocol(endpoint, protocolVersion string, opts ...ClientOption) (*Client, error) {
	httpClient, err := client.NewStreamableHttpClient(endpoint)
	if err != nil {
		return nil, err
	}
	if err := initialize(httpClient, protocolVersion); err != nil {
		_ = httpClient.Close()
		return nil, err
	}
	return NewClient(httpClient, opts...), nil
}

func initialize(c *client.Client, protocolVersion string) error {
	if protocolVersion == "" {
		protocolVersion = mcp.LATEST_PROTOCOL_VERSION
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = protocolVersion
	req.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}
	_, err := c.Initialize(ctx, req)
	return err
}

// defaultTransportRetry retries transport failures with a short backoff.
// Context cancellation and per-attempt deadlines are terminal: a server that
// is too slow once will not get faster on an immediate second try.
func defaultTransportRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		Multiplier:    2.0,
		IsRecoverable: retryableTransportError,
	}
}

func retryableTransportError(err error) bool {
	return !stderrors.Is(err, context.Canceled) && !stderrors.Is(err, context.DeadlineExceeded)
}

// ListTools returns the tools the server advertises, serving from the
// discovery cache while it is fresh.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if cached := c.cachedTools(); cached != nil {
		return cached, nil
	}

	var res *mcp.ListToolsResult
	err := c.retry.Do(ctx, func() error {
		reqCtx, cancel := c.attemptContext(ctx)
		defer cancel()
		var callErr error
		res, callErr = c.mcpClient.ListTools(reqCtx, mcp.ListToolsRequest{})
		return callErr
	})
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, "mcp tool discovery failed", err)
	}

	c.storeTools(res.Tools)
	return res.Tools, nil
}

// CallTool executes a named tool on the server. The result is returned as
// the server produced it; IsError results are not turned into Go errors
// here, that interpretation belongs to the adapter.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	var res *mcp.CallToolResult
	err := c.retry.Do(ctx, func() error {
		reqCtx, cancel := c.attemptContext(ctx)
		defer cancel()
		var callErr error
		res, callErr = c.mcpClient.CallTool(reqCtx, req)
		return callErr
	})
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, "mcp tool call failed", err).
			WithContext("tool", name)
	}
	return res, nil
}

// Close tears down the underlying connection. For stdio clients this ends
// the subprocess.
func (c *Client) Close() error {
	return c.mcpClient.Close()
}

func (c *Client) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) cachedTools() []mcp.Tool {
	if c.cacheTTL == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toolsCache) == 0 || time.Now().After(c.cacheExpiry) {
		return nil
	}
	out := make([]mcp.Tool, len(c.toolsCache))
	copy(out, c.toolsCache)
	return out
}

func (c *Client) storeTools(tools []mcp.Tool) {
	if c.cacheTTL == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolsCache = make([]mcp.Tool, len(tools))
	copy(c.toolsCache, tools)
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
}
