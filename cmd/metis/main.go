// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

// Command metis runs the agent engine from the command line: one-shot and
// interactive task runs, plus the maintenance daemon for long-lived
// deployments.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/metis-ai/metis/pkg/config"
	"github.com/metis-ai/metis/pkg/errors"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

type globalFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A .env next to the binary seeds METIS_ variables before koanf reads
	// the environment. A missing file is not an error.
	_ = godotenv.Load()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		runRun(ctx, global, args[1:])
	case "maintain":
		runMaintain(ctx, global, args[1:])
	case "validate":
		runValidate(ctx, global, args[1:])
	case "graph":
		runGraph(global, args[1:])
	case "history":
		runHistory(ctx, global, args[1:])
	case "version":
		printVersion(global)
	case "help":
		printUsage()
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var flags globalFlags

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --config")
			}
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			flags.ConfigPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--log-level":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --log-level")
			}
			flags.LogLevel = args[i+1]
			i++
		case strings.HasPrefix(arg, "--log-level="):
			flags.LogLevel = strings.TrimPrefix(arg, "--log-level=")
		case arg == "--log-format":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --log-format")
			}
			flags.LogFormat = args[i+1]
			i++
		case strings.HasPrefix(arg, "--log-format="):
			flags.LogFormat = strings.TrimPrefix(arg, "--log-format=")
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

// loadConfig resolves the config file (explicit flag first, then the
// default probe locations) and applies the global log overrides on top.
func loadConfig(global globalFlags) (*config.Config, string, error) {
	path := global.ConfigPath
	if path == "" {
		for _, candidate := range []string{"./metis.yaml", "./config/metis.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	if global.LogLevel != "" {
		cfg.Log.Level = global.LogLevel
	}
	if global.LogFormat != "" {
		cfg.Log.Format = global.LogFormat
	}
	return cfg, path, nil
}

func printVersion(global globalFlags) {
	if global.JSON {
		printJSON(map[string]string{"version": version})
		return
	}
	fmt.Println("metis " + version)
}

func printUsage() {
	fmt.Println(`Metis agent runtime

Usage:
  metis [global flags] <command> [args]

Global flags:
  --config <path>      Path to metis.yaml (default: ./metis.yaml if present)
  --log-level <level>  Override log level (debug|info|warn|error)
  --log-format <fmt>   Override log format (text|json)
  --json               JSON output

Commands:
  run [--prompt <text>] [--plan <path>] [--watch]
              Run a task: one-shot with --prompt, a plan file with --plan,
              interactive REPL otherwise (pipe mode when stdin is not a TTY)
  maintain [--once] [--watch]
              Run the background maintenance daemon (compaction, feedback
              pruning, memory stats)
  validate [--plan <path>]
              Check config, LLM endpoint, memory storage, and MCP servers;
              optionally validate a plan file
  graph --plan <path> [--output mermaid|dot|json]
              Render a plan file as a diagram
  history [--limit <n>] [--outcome <o>] [--since <age>]
              List recorded run outcomes (needs feedback.driver: sqlite)
  version     Print the version
  help        Show this help`)
}

func printJSON(value any) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(data))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error: "+err.Error())
	if me := errors.AsMetisError(err); me != nil && me.Recoverable {
		fmt.Fprintln(os.Stderr, "  Hint: this may be transient; try again")
	}
	os.Exit(1)
}
