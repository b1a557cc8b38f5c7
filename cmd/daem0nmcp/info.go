package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// runInfo handles the "daem0nmcp info" subcommand.
func runInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	opencode := fs.Bool("opencode", false, "show OpenCode MCP client configuration")
	claude := fs.Bool("claude", false, "show Claude Desktop MCP client configuration")
	cursor := fs.Bool("cursor", false, "show Cursor MCP client configuration")
	fs.Parse(args)

	switch {
	case *opencode:
		printClientConfig("OpenCode", ".opencode.json or opencode.json")
	case *claude:
		printClientConfig("Claude Desktop", "claude_desktop_config.json")
	case *cursor:
		printClientConfig("Cursor", ".cursor/mcp.json")
	default:
		printGeneralInfo()
	}
}

func printGeneralInfo() {
	fmt.Fprintf(os.Stdout, `daem0nmcp %s — persistent project memory for AI coding assistants

daem0nmcp is a Model Context Protocol (MCP) server that gives an AI coding
assistant a memory of one project across sessions: the decisions it made,
the patterns and warnings it learned, the facts it has confirmed, and the
rules it must keep following.

TRANSPORT MODES

  stdio (default)
    Communicates over stdin/stdout using JSON-RPC 2.0. Used when launched
    as a subprocess by an MCP client.

  http
    Runs as a standalone HTTP server (MCP Streamable HTTP transport,
    spec 2025-03-26). Single project, no auth — the engine is local.

    Endpoint:      POST /mcp
    Health check:  GET /health
    Default port:  8787

TOOLS (11)

  Action tools (8): commune, consult, inscribe, reflect, understand,
                    govern, explore, maintain
  Standalone (3):   simulate_decision, evolve_rule, debate_internal

PROMPTS (2)

  daem0nmcp-guide      Overview of the brief/preflight/recall/reflect cycle
  investigate-failure  Guide for investigating a decision that didn't work

RESOURCES (5)

  daem0n://warnings/{project}   Active warning-category memories
  daem0n://failed/{project}     Decisions recorded worked=false
  daem0n://rules/{project}      Registered governance rules
  daem0n://context/{project}    Memories pinned into active context
  daem0n://triggered/{file}     Memories recalled by triggers matching a path

GETTING STARTED

  1. Brief the session:   commune (action: commune.briefing)
  2. Recall before a decision:  consult (action: consult.recall)
  3. Preflight a change:  consult (action: consult.preflight)
  4. Write the decision:  inscribe (action: inscribe.remember)
  5. Record what happened:  reflect (action: reflect.outcome)

CLIENT CONFIGURATION

  To see configuration for a specific MCP client, run:

    daem0nmcp info --opencode
    daem0nmcp info --claude
    daem0nmcp info --cursor
`, Version)
}

func printClientConfig(client, file string) {
	fmt.Fprintf(os.Stdout, `%s — stdio mode
%s

Add to %s:

{
  "mcpServers": {
    "daem0nmcp": {
      "command": "daem0nmcp",
      "env": {
        "DAEM0N_PROJECT_PATH": "/path/to/your/project"
      }
    }
  }
}

%s — HTTP mode (remote server)
%s

Add to %s:

{
  "mcpServers": {
    "daem0nmcp": {
      "type": "streamable-http",
      "url": "http://your-daem0nmcp-server:8787/mcp"
    }
  }
}

DAEM0N_PROJECT_PATH defaults to the current directory if unset.
`, client, strings.Repeat("─", len(client)+14), file,
		client, strings.Repeat("─", len(client)+30), file)
}
