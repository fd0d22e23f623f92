// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/metis-ai/metis/pkg/errors"
	"github.com/metis-ai/metis/pkg/llm"
	"github.com/metis-ai/metis/pkg/resilience"
)

// QuestionAnsweringSkillName is the canonical name of the built-in
// question-answering skill, and the engine's default fallback.
const QuestionAnsweringSkillName = "question_answering"

const qaSystemPrompt = "You are a helpful assistant. Provide clear, accurate, and concise answers."

// QuestionAnswering answers general questions with a language model. It is
// the reference fallback skill: anything the router cannot place lands
// here with a {query, text} payload.
type QuestionAnswering struct {
	provider llm.Provider
	model    string
}

// NewQuestionAnswering wraps a model provider as a skill.
func NewQuestionAnswering(provider llm.Provider, model string) *QuestionAnswering {
	return &QuestionAnswering{provider: provider, model: model}
}

func (q *QuestionAnswering) Name() string        { return QuestionAnsweringSkillName }
func (q *QuestionAnswering) Version() string     { return "1.0.0" }
func (q *QuestionAnswering) Description() string {
	return "Answers general questions with the configured language model."
}

// SLA opts into a circuit breaker with a zero config: the run's breaker
// registry fills in its defaults. Remote model servers are exactly the
// dependency breakers exist for.
func (q *QuestionAnswering) SLA() SLA {
	return SLA{Timeout: 60 * time.Second, Retries: 1, Breaker: &resilience.BreakerConfig{}}
}

// Invoke asks the model. The query is taken from the query, input, or text
// parameter, in that order. Provider failures surface as errors so the
// resilience layer's retry and breaker policy applies.
func (q *QuestionAnswering) Invoke(ctx context.Context, in SkillInput, _ *RunContext) (SkillOutput, error) {
	query := stringParam(in.Payload, "query")
	if query == "" {
		query = stringParam(in.Payload, "input")
	}
	if query == "" {
		query = stringParam(in.Payload, "text")
	}
	query = strings.TrimSpace(query)

	if query == "" {
		out := NewSkillOutput(map[string]any{
			"final_answer": "No query provided",
			"error":        "missing query parameter",
		})
		return out, nil
	}

	if q.provider == nil {
		return SkillOutput{}, errors.New(errors.CodeInvalidInput, "no language model provider configured", nil)
	}

	resp, err := q.provider.Chat(ctx, llm.ChatRequest{
		Model: q.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: qaSystemPrompt},
			{Role: llm.RoleUser, Content: query},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return SkillOutput{}, fmt.Errorf("language model call failed: %w", err)
	}

	out := NewSkillOutput(map[string]any{
		"final_answer": resp.Content,
		"model":        q.model,
	})
	out.SetMetric("total_tokens", float64(resp.Usage.TotalTokens))
	return out, nil
}
