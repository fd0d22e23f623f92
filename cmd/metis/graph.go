// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"github.com/metis-ai/metis/pkg/planner"
)

type graphResult struct {
	Format  string `json:"format"`
	Content string `json:"content"`
	PlanID  string `json:"plan_id,omitempty"`
	Steps   int    `json:"steps"`
	Edges   int    `json:"edges"`
}

type planEdge struct {
	From string
	To   string
}

// runGraph renders a plan file as a diagram. Steps chain in execution
// order; depends_on declarations replace the chain when any step carries
// them, showing the declared DAG instead.
func runGraph(global globalFlags, args []string) {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	output := fs.String("output", "mermaid", "Output format: mermaid, dot, json")
	planPath := fs.String("plan", "", "Path to plan YAML/JSON file")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	if *planPath == "" {
		fatal(fmt.Errorf("no plan specified; use --plan <file>"))
	}

	plan, err := planner.LoadPlan(*planPath)
	if err != nil {
		fatal(err)
	}

	edges := planEdges(plan)
	result := graphResult{
		Format: *output,
		PlanID: plan.ID,
		Steps:  len(plan.Steps),
		Edges:  len(edges),
	}

	switch *output {
	case "mermaid":
		result.Content = planToMermaid(plan, edges)
	case "dot":
		result.Content = planToDot(plan, edges)
	case "json":
		jsonBytes, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			fatal(err)
		}
		result.Content = string(jsonBytes)
	default:
		fatal(fmt.Errorf("unknown output format %q; use mermaid, dot, or json", *output))
	}

	if global.JSON {
		printJSON(result)
		return
	}

	fmt.Println(result.Content)
}

// planEdges derives the step graph. LoadPlan has already validated the
// plan, so every step has an id.
func planEdges(plan *planner.AgentPlan) []planEdge {
	declared := false
	for _, step := range plan.Steps {
		if len(step.DependsOn) > 0 {
			declared = true
			break
		}
	}

	var edges []planEdge
	if declared {
		for _, step := range plan.Steps {
			for _, dep := range step.DependsOn {
				edges = append(edges, planEdge{From: dep, To: step.ID})
			}
		}
		return edges
	}

	for i := 1; i < len(plan.Steps); i++ {
		edges = append(edges, planEdge{From: plan.Steps[i-1].ID, To: plan.Steps[i].ID})
	}
	return edges
}

func planToMermaid(plan *planner.AgentPlan, edges []planEdge) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, step := range plan.Steps {
		sb.WriteString(fmt.Sprintf("    %s[%s: %s]\n", step.ID, step.ID, step.Skill))
	}

	for _, edge := range edges {
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", edge.From, edge.To))
	}

	// Mark the entry step
	if len(plan.Steps) > 0 {
		sb.WriteString(fmt.Sprintf("    style %s fill:#90EE90\n", plan.Steps[0].ID))
	}

	return sb.String()
}

func planToDot(plan *planner.AgentPlan, edges []planEdge) string {
	var sb strings.Builder
	sb.WriteString("digraph plan {\n")
	sb.WriteString("    rankdir=TB;\n")
	sb.WriteString("    node [shape=box, style=rounded];\n")

	for i, step := range plan.Steps {
		attrs := fmt.Sprintf("label=\"%s\\n(%s)\"", step.ID, step.Skill)
		if i == 0 {
			attrs += ", style=\"rounded,filled\", fillcolor=\"#90EE90\""
		}
		sb.WriteString(fmt.Sprintf("    %q [%s];\n", step.ID, attrs))
	}

	for _, edge := range edges {
		sb.WriteString(fmt.Sprintf("    %q -> %q;\n", edge.From, edge.To))
	}

	sb.WriteString("}\n")
	return sb.String()
}
