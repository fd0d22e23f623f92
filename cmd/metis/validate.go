// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/metis-ai/metis/pkg/config"
	"github.com/metis-ai/metis/pkg/mcp"
	"github.com/metis-ai/metis/pkg/planner"
)

type validateResult struct {
	Config   checkResult   `json:"config"`
	LLM      checkResult   `json:"llm"`
	Memory   checkResult   `json:"memory"`
	Feedback checkResult   `json:"feedback"`
	MCP      []checkResult `json:"mcp"`
	Plan     *checkResult  `json:"plan,omitempty"`
	Overall  string        `json:"overall"`
}

type checkResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warn", "error", "skip"
	Message string `json:"message,omitempty"`
}

// runValidate checks that the configured backends are usable before a run:
// config parses, the LLM endpoint answers, memory storage is writable, and
// each MCP server is dialable. With --plan it also validates a plan file.
func runValidate(ctx context.Context, global globalFlags, args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	planPath := fs.String("plan", "", "Also validate a plan file")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	result := validateResult{MCP: []checkResult{}}
	hasError := false
	hasWarn := false

	track := func(r checkResult) checkResult {
		switch r.Status {
		case "error":
			hasError = true
		case "warn":
			hasWarn = true
		}
		return r
	}

	cfg, _, err := loadConfig(global)
	if err != nil {
		result.Config = track(checkResult{Name: "config", Status: "error", Message: err.Error()})
	} else {
		result.Config = checkResult{Name: "config", Status: "ok"}
	}

	if cfg != nil {
		result.LLM = track(validateLLM(cfg))
		result.Memory = track(validateMemory(cfg))
		result.Feedback = track(validateFeedback(cfg))
		for _, r := range validateMCPServers(ctx, cfg) {
			result.MCP = append(result.MCP, track(r))
		}
	} else {
		result.LLM = checkResult{Name: "llm", Status: "skip", Message: "config not loaded"}
		result.Memory = checkResult{Name: "memory", Status: "skip", Message: "config not loaded"}
		result.Feedback = checkResult{Name: "feedback", Status: "skip", Message: "config not loaded"}
	}

	if *planPath != "" {
		r := track(validatePlanFile(*planPath))
		result.Plan = &r
	}

	switch {
	case hasError:
		result.Overall = "error"
	case hasWarn:
		result.Overall = "warn"
	default:
		result.Overall = "ok"
	}

	if global.JSON {
		printJSON(result)
	} else {
		printValidateResult(result)
	}

	if hasError {
		os.Exit(1)
	}
}

func validateLLM(cfg *config.Config) checkResult {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "ollama", "":
		baseURL := cfg.LLM.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(baseURL + "/api/tags")
		if err != nil {
			return checkResult{
				Name:    "llm",
				Status:  "error",
				Message: fmt.Sprintf("ollama not reachable at %s: %v", baseURL, err),
			}
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return checkResult{
				Name:    "llm",
				Status:  "error",
				Message: fmt.Sprintf("ollama returned status %d", resp.StatusCode),
			}
		}
		if cfg.LLM.Model == "" {
			return checkResult{
				Name:    "llm",
				Status:  "warn",
				Message: "ollama reachable but no model configured",
			}
		}
		return checkResult{
			Name:    "llm",
			Status:  "ok",
			Message: fmt.Sprintf("ollama (%s)", cfg.LLM.Model),
		}

	case "openai":
		// A custom base_url usually points at a local compatible server,
		// which needs no key; the hosted API always does.
		if cfg.LLM.APIKey == "" && cfg.LLM.BaseURL == "" {
			return checkResult{
				Name:    "llm",
				Status:  "error",
				Message: "openai configured but no api_key set",
			}
		}
		target := cfg.LLM.BaseURL
		if target == "" {
			target = "api.openai.com"
		}
		return checkResult{
			Name:    "llm",
			Status:  "ok",
			Message: fmt.Sprintf("openai-compatible (%s)", target),
		}

	case "mock":
		return checkResult{Name: "llm", Status: "ok", Message: "mock provider"}

	default:
		return checkResult{
			Name:    "llm",
			Status:  "error",
			Message: fmt.Sprintf("unknown provider %q", cfg.LLM.Provider),
		}
	}
}

func validateMemory(cfg *config.Config) checkResult {
	if !cfg.Memory.Enabled {
		return checkResult{Name: "memory", Status: "ok", Message: "disabled"}
	}

	switch strings.ToLower(cfg.Memory.LongTerm.Driver) {
	case "local", "":
		if err := os.MkdirAll(cfg.Memory.DataDir, 0o755); err != nil {
			return checkResult{
				Name:    "memory",
				Status:  "error",
				Message: fmt.Sprintf("data dir %s not writable: %v", cfg.Memory.DataDir, err),
			}
		}
		return checkResult{
			Name:    "memory",
			Status:  "ok",
			Message: fmt.Sprintf("local (%s)", cfg.Memory.DataDir),
		}

	case "qdrant":
		addr := fmt.Sprintf("%s:%d", cfg.Memory.Qdrant.Host, cfg.Memory.Qdrant.Port)
		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err != nil {
			return checkResult{
				Name:    "memory",
				Status:  "error",
				Message: fmt.Sprintf("qdrant not reachable at %s: %v", addr, err),
			}
		}
		conn.Close()
		return checkResult{
			Name:    "memory",
			Status:  "ok",
			Message: fmt.Sprintf("qdrant (%s, collection %s)", addr, cfg.Memory.Qdrant.Collection),
		}

	case "inmemory":
		return checkResult{Name: "memory", Status: "warn", Message: "inmemory (records are not persisted)"}

	default:
		return checkResult{
			Name:    "memory",
			Status:  "error",
			Message: fmt.Sprintf("unknown long-term driver %q", cfg.Memory.LongTerm.Driver),
		}
	}
}

func validateFeedback(cfg *config.Config) checkResult {
	switch strings.ToLower(cfg.Feedback.Driver) {
	case "none", "", "log", "memory":
		return checkResult{Name: "feedback", Status: "ok", Message: cfg.Feedback.Driver}
	case "sqlite":
		if cfg.Feedback.Path == "" {
			return checkResult{Name: "feedback", Status: "error", Message: "sqlite driver needs feedback.path"}
		}
		return checkResult{
			Name:    "feedback",
			Status:  "ok",
			Message: fmt.Sprintf("sqlite (%s)", cfg.Feedback.Path),
		}
	default:
		return checkResult{
			Name:    "feedback",
			Status:  "error",
			Message: fmt.Sprintf("unknown driver %q", cfg.Feedback.Driver),
		}
	}
}

func validateMCPServers(ctx context.Context, cfg *config.Config) []checkResult {
	results := make([]checkResult, 0, len(cfg.MCP.Servers))

	for i, server := range cfg.MCP.Servers {
		name := server.Name
		if name == "" {
			name = fmt.Sprintf("server-%d", i+1)
		}

		switch strings.ToLower(strings.TrimSpace(server.Transport)) {
		case "stdio", "":
			if strings.TrimSpace(server.Command) == "" {
				results = append(results, checkResult{
					Name:    "mcp:" + name,
					Status:  "error",
					Message: "missing command for stdio transport",
				})
				continue
			}
			// Spawning the process just to probe it is expensive, so stdio
			// servers only get a config check.
			results = append(results, checkResult{
				Name:    "mcp:" + name,
				Status:  "ok",
				Message: "stdio: " + server.Command,
			})

		case "http":
			if server.URL == "" {
				results = append(results, checkResult{
					Name:    "mcp:" + name,
					Status:  "error",
					Message: "missing url for http transport",
				})
				continue
			}
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			client, err := mcp.NewClientWithStreamableHTTP(server.URL)
			if err != nil {
				cancel()
				results = append(results, checkResult{
					Name:    "mcp:" + name,
					Status:  "error",
					Message: fmt.Sprintf("failed to connect: %v", err),
				})
				continue
			}
			tools, err := client.ListTools(checkCtx)
			cancel()
			_ = client.Close()
			if err != nil {
				results = append(results, checkResult{
					Name:    "mcp:" + name,
					Status:  "error",
					Message: fmt.Sprintf("failed to list tools: %v", err),
				})
				continue
			}
			results = append(results, checkResult{
				Name:    "mcp:" + name,
				Status:  "ok",
				Message: fmt.Sprintf("http: %d tools available", len(tools)),
			})

		default:
			results = append(results, checkResult{
				Name:    "mcp:" + name,
				Status:  "error",
				Message: fmt.Sprintf("unsupported transport %q", server.Transport),
			})
		}
	}

	return results
}

func validatePlanFile(path string) checkResult {
	plan, err := planner.LoadPlan(path)
	if err != nil {
		return checkResult{
			Name:    "plan",
			Status:  "error",
			Message: fmt.Sprintf("%s: %v", path, err),
		}
	}
	return checkResult{
		Name:    "plan",
		Status:  "ok",
		Message: fmt.Sprintf("%d steps toward %q", len(plan.Steps), truncateString(plan.Goal, 50)),
	}
}

func truncateString(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func printValidateResult(result validateResult) {
	statusIcon := map[string]string{
		"ok":    "✓",
		"warn":  "⚠",
		"error": "✗",
		"skip":  "○",
	}

	fmt.Println("Metis Configuration Validation")
	fmt.Println("==============================")
	fmt.Println()

	printCheck(statusIcon, result.Config)
	printCheck(statusIcon, result.LLM)
	printCheck(statusIcon, result.Memory)
	printCheck(statusIcon, result.Feedback)

	if len(result.MCP) > 0 {
		for _, r := range result.MCP {
			printCheck(statusIcon, r)
		}
	} else {
		fmt.Printf("%s mcp: no servers configured\n", statusIcon["ok"])
	}

	if result.Plan != nil {
		printCheck(statusIcon, *result.Plan)
	}

	fmt.Println()
	switch result.Overall {
	case "ok":
		fmt.Println("✓ All checks passed")
	case "warn":
		fmt.Println("⚠ Validation completed with warnings")
	case "error":
		fmt.Println("✗ Validation failed")
	}
}

func printCheck(icons map[string]string, r checkResult) {
	icon := icons[r.Status]
	if r.Message != "" {
		fmt.Printf("%s %s: %s\n", icon, r.Name, r.Message)
	} else {
		fmt.Printf("%s %s\n", icon, r.Name)
	}
}
