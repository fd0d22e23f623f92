// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/metis-ai/metis/pkg/agent"
	"github.com/metis-ai/metis/pkg/config"
	"github.com/metis-ai/metis/pkg/planner"
	"github.com/metis-ai/metis/pkg/telemetry"
)

func runRun(ctx context.Context, global globalFlags, args []string) {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	prompt := cmd.String("prompt", "", "Single task to run (non-interactive)")
	planPath := cmd.String("plan", "", "Path to an explicit plan file (YAML/JSON)")
	watch := cmd.Bool("watch", false, "Watch the config file for changes")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}

	cfg, cfgPath, err := loadConfig(global)
	if err != nil {
		fatal(err)
	}
	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		fatal(err)
	}
	defer app.close()

	if *watch && cfgPath != "" {
		watcher, _, err := config.Watch(ctx, cfgPath, config.WithWatchLogger(logger))
		if err != nil {
			logger.Warn("config watch unavailable", "error", err)
		} else {
			watcher.OnChange(func(*config.Config) {
				logger.Info("config changed; restart to apply engine settings")
			})
		}
	}

	var plan *planner.AgentPlan
	if strings.TrimSpace(*planPath) != "" {
		plan, err = planner.LoadPlan(*planPath)
		if err != nil {
			fatal(fmt.Errorf("load plan: %w", err))
		}
	}

	if !global.JSON {
		fmt.Printf("Metis %s\n", version)
		fmt.Printf("Model: %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
		if app.facade != nil {
			fmt.Printf("Memory: %s\n", cfg.Memory.LongTerm.Driver)
		}
		if plan != nil {
			fmt.Printf("Plan: %s (%d steps)\n", *planPath, len(plan.Steps))
		}
		fmt.Println()
	}

	if *prompt != "" || plan != nil {
		task := *prompt
		if task == "" && plan != nil {
			task = plan.Goal
		}
		res := runTask(ctx, app, task, plan)
		printResult(res, global.JSON)
		if res.Status == agent.StatusFailed {
			os.Exit(1)
		}
		return
	}

	if isatty.IsTerminal(os.Stdin.Fd()) {
		runREPL(ctx, app, global.JSON)
		return
	}
	runPipe(ctx, app, global.JSON)
}

func runTask(ctx context.Context, a *app, task string, plan *planner.AgentPlan) *agent.AgentResult {
	if plan != nil {
		return a.engine.RunWithPlan(ctx, task, plan)
	}
	return a.engine.Run(ctx, task)
}

func runREPL(ctx context.Context, a *app, jsonOutput bool) {
	if !jsonOutput {
		fmt.Println("Interactive mode. Type 'exit' or Ctrl+C to quit, /help for commands.")
		fmt.Println("---")
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if !jsonOutput {
			fmt.Print("\n> ")
		}

		select {
		case <-ctx.Done():
			if !jsonOutput {
				fmt.Println("\nGoodbye!")
			}
			return
		default:
		}

		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if lower := strings.ToLower(input); lower == "exit" || lower == "quit" {
			if !jsonOutput {
				fmt.Println("Goodbye!")
			}
			return
		}
		if strings.HasPrefix(input, "/") {
			handleCommand(ctx, a, input, jsonOutput)
			continue
		}

		printResult(a.engine.Run(ctx, input), jsonOutput)
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		fmt.Fprintf(os.Stderr, "read error: %v\n", err)
	}
}

func runPipe(ctx context.Context, a *app, jsonOutput bool) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		printResult(a.engine.Run(ctx, input), jsonOutput)
	}
}

func handleCommand(ctx context.Context, a *app, input string, jsonOutput bool) {
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/help":
		if !jsonOutput {
			fmt.Println(`Commands:
  /help     Show this help
  /skills   List registered skills
  /stats    Show breaker states and memory counts
  /exit     Exit`)
		}

	case "/skills":
		names := a.registry.Names()
		if jsonOutput {
			printJSON(map[string]any{"skills": names})
			return
		}
		if len(names) == 0 {
			fmt.Println("No skills registered")
			return
		}
		for _, name := range names {
			s, err := a.registry.Get(name)
			if err != nil {
				continue
			}
			fmt.Printf("  - %s %s: %s\n", s.Name(), s.Version(), s.Description())
		}

	case "/stats":
		printStats(ctx, a, jsonOutput)

	case "/exit", "/quit":
		if !jsonOutput {
			fmt.Println("Goodbye!")
		}
		os.Exit(0)

	default:
		if !jsonOutput {
			fmt.Printf("Unknown command: %s (try /help)\n", input)
		}
	}
}

func printStats(ctx context.Context, a *app, jsonOutput bool) {
	breakers := a.breakers.States(ctx)

	memCounts := map[string]int{}
	if a.facade != nil {
		stats, err := a.facade.Stats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "memory stats: %v\n", err)
		}
		for tier, count := range stats {
			memCounts[string(tier)] = count
		}
	}

	if jsonOutput {
		printJSON(map[string]any{"breakers": breakers, "memory": memCounts})
		return
	}
	if len(breakers) == 0 {
		fmt.Println("Breakers: none created yet")
	} else {
		fmt.Println("Breakers:")
		for name, state := range breakers {
			fmt.Printf("  - %s: %s\n", name, state)
		}
	}
	if a.facade != nil {
		fmt.Println("Memory records:")
		for tier, count := range memCounts {
			fmt.Printf("  - %s: %d\n", tier, count)
		}
	}
}

func printResult(res *agent.AgentResult, jsonOutput bool) {
	if jsonOutput {
		printJSON(map[string]any{
			"plan_id":         res.PlanID,
			"status":          res.Status,
			"final_answer":    res.FinalAnswer,
			"steps_completed": res.StepsCompleted,
			"total_time_ms":   res.TotalTimeMS,
			"memory_used":     res.MemoryUsed,
		})
		return
	}

	switch res.Status {
	case agent.StatusSuccess:
		fmt.Println(res.FinalAnswer)
	case agent.StatusPartial:
		if res.FinalAnswerSet {
			fmt.Println(res.FinalAnswer)
		}
		fmt.Fprintf(os.Stderr, "run ended without a definitive answer after %d steps\n", len(res.StepResults))
	default:
		fmt.Fprintf(os.Stderr, "run failed after %d steps\n", len(res.StepResults))
		if reason, ok := res.Metadata["error"].(string); ok && reason != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", reason)
		}
		for _, sr := range res.FailedSteps() {
			fmt.Fprintf(os.Stderr, "  step %s: %s\n", sr.StepID, sr.Error)
		}
	}
}
