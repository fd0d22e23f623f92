// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package gemini

import (
	"testing"

	"github.com/metis-ai/metis/pkg/llm"
)

func TestProviderImplementsInterface(t *testing.T) {
	var _ llm.Provider = (*Provider)(nil)
}

func TestWithModel(t *testing.T) {
	// Test option function
	opt := WithModel("gemini-1.5-pro")
	p := &Provider{model: "gemini-2.0-flash"}
	opt(p)
	if p.model != "gemini-1.5-pro" {
		t.Errorf("expected model gemini-1.5-pro, got %s", p.model)
	}
}

func TestConvertMessages(t *testing.T) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are helpful"},
		{Role: llm.RoleUser, Content: "Hello"},
		{Role: llm.RoleAssistant, Content: "Hi there"},
	}

	contents, systemInstruction := convertMessages(messages)

	if systemInstruction != "You are helpful" {
		t.Errorf("expected system instruction 'You are helpful', got %s", systemInstruction)
	}

	// Should have 2 contents (user and assistant), system is extracted
	if len(contents) != 2 {
		t.Errorf("expected 2 contents, got %d", len(contents))
	}
	if contents[1].Role != "model" {
		t.Errorf("assistant messages map to role model, got %s", contents[1].Role)
	}
}

func TestClose(t *testing.T) {
	p := &Provider{}
	err := p.Close()
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
