// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/metis-ai/metis/pkg/telemetry"
)

// DefaultOpenAIBaseURL targets the hosted OpenAI API. The base URL carries
// the version prefix, so compatible servers plug in with their own path
// (Ollama serves the same dialect under /v1, DashScope under
// /compatible-mode/v1).
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAICompatProvider implements Provider against any endpoint speaking
// the OpenAI chat-completions dialect.
type OpenAICompatProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	tracer  trace.Tracer
}

// NewOpenAICompat creates a provider for an OpenAI-compatible endpoint. An
// empty baseURL targets the hosted OpenAI API; the key is sent as a bearer
// token when present, and local servers typically accept an empty one.
func NewOpenAICompat(baseURL, apiKey string) *OpenAICompatProvider {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	return &OpenAICompatProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 120 * time.Second},
		tracer:  otel.Tracer("metis/llm"),
	}
}

type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Chat sends a chat-completions request and maps the first choice.
func (p *OpenAICompatProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, span := p.tracer.Start(ctx, "LLM.Chat",
		trace.WithAttributes(telemetry.LLMAttributes(req.Model, "openai", len(req.Messages))...),
	)
	defer span.End()

	oReq := openAIChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
	}
	if req.Temperature != 0 {
		oReq.Temperature = &req.Temperature
	}

	body, err := json.Marshal(oReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("chat completions call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr openAIErrorResponse
		_ = json.Unmarshal(respBody, &apiErr)
		msg := apiErr.Error.Message
		if msg == "" {
			msg = string(respBody)
		}
		err := fmt.Errorf("chat completions returned status %d: %s", resp.StatusCode, msg)
		span.RecordError(err)
		return nil, err
	}

	var oResp openAIChatResponse
	if err := json.Unmarshal(respBody, &oResp); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(oResp.Choices) == 0 {
		return nil, fmt.Errorf("chat completions returned no choices")
	}

	span.SetAttributes(telemetry.LLMUsageAttributes(
		oResp.Usage.PromptTokens,
		oResp.Usage.CompletionTokens,
		float64(time.Since(start).Milliseconds()),
	)...)

	return &ChatResponse{
		Content: oResp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     oResp.Usage.PromptTokens,
			CompletionTokens: oResp.Usage.CompletionTokens,
			TotalTokens:      oResp.Usage.TotalTokens,
		},
	}, nil
}

var _ Provider = (*OpenAICompatProvider)(nil)
