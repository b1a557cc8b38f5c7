// Package content provides MCP prompts and resources for the daem0nmcp server.
package content

import "github.com/daem0nmcp/daem0nmcp/internal/mcp"

// --- daem0nmcp-guide prompt ---

// GuidePrompt walks a new session through the covenant workflow.
type GuidePrompt struct{}

func (p *GuidePrompt) Definition() mcp.PromptDefinition {
	return mcp.PromptDefinition{
		Name:        "daem0nmcp-guide",
		Description: "Overview of the covenant workflow: brief, preflight, recall, and record outcomes.",
		Arguments:   []mcp.PromptArgument{},
	}
}

func (p *GuidePrompt) Get(arguments map[string]string) (*mcp.PromptsGetResult, error) {
	return &mcp.PromptsGetResult{
		Description: "Guide for working with this project's persistent memory",
		Messages: []mcp.PromptMessage{
			{Role: "user", Content: mcp.TextContent(guideText)},
		},
	}, nil
}

const guideText = `# Working With Project Memory

This project carries persistent memory across sessions: prior decisions,
patterns, warnings, and facts, plus the rules that govern how you should
behave here.

## Start every session with a briefing

Call ` + "`commune`" + ` with action ` + "`commune.briefing`" + `. It returns a summary of the
project, the count of stored memories and rules, and whatever is pinned
into active context right now. Until you brief, most tools refuse to run.

## Recall before you decide

Call ` + "`consult`" + ` with action ` + "`consult.recall`" + ` and a topic before making a
nontrivial decision. It returns the most relevant prior decisions,
patterns, warnings, and facts, ranked by a hybrid of lexical and semantic
similarity plus graph proximity.

## Preflight before you write

Before any action that changes memory (` + "`inscribe.*`" + `, ` + "`reflect.outcome`" + `,
` + "`govern.*`" + `, ` + "`maintain.*`" + `, ` + "`evolve_rule`" + `), call ` + "`consult.preflight`" + ` with a short
description of the change you intend to make. It returns a token that is
honored by every mutating call until it expires; the gate exists so mutations
are always preceded by a recorded intent.

## Record what happened

After acting on a recalled decision, call ` + "`reflect`" + ` with action
` + "`reflect.outcome`" + ` and whether it worked. Outcomes feed importance scoring,
fact promotion, and the rules ` + "`evolve_rule`" + ` can derive from repeated
failures — the system gets more useful the more outcomes it sees.
`

// --- investigate-failure prompt ---

// InvestigateFailurePrompt guides re-examining a decision that did not work.
type InvestigateFailurePrompt struct{}

func (p *InvestigateFailurePrompt) Definition() mcp.PromptDefinition {
	return mcp.PromptDefinition{
		Name:        "investigate-failure",
		Description: "Step-by-step guide for investigating a decision that was recorded as not having worked.",
		Arguments: []mcp.PromptArgument{
			{Name: "decision_id", Description: "ID of the failed decision to investigate", Required: false},
		},
	}
}

func (p *InvestigateFailurePrompt) Get(arguments map[string]string) (*mcp.PromptsGetResult, error) {
	id := arguments["decision_id"]
	return &mcp.PromptsGetResult{
		Description: "Guide for investigating a failed decision",
		Messages: []mcp.PromptMessage{
			{Role: "user", Content: mcp.TextContent(buildInvestigateFailureGuide(id))},
		},
	}, nil
}

func buildInvestigateFailureGuide(id string) string {
	guide := `# Investigate a Failed Decision

A decision was recorded with ` + "`worked=false`" + `. Work through these steps
before trying a similar approach again.

## 1. Read the decision's neighborhood

Call ` + "`understand`" + ` with action ` + "`understand.chain`" + ` or ` + "`understand.subgraph`" + ` seeded
on the decision to see what led to it and what it led to. Look for a
` + "`conflicts_with`" + ` edge — another memory may already contradict it.

## 2. Check whether this has already been debated

Call ` + "`debate_internal`" + ` with the decision's topic. It surfaces memories
that conflict with each other on the same subject, so you are not the
first to notice the tension.

## 3. Simulate before retrying

Before repeating the same kind of decision, call ` + "`simulate_decision`" + ` with
the proposed approach. It forecasts a confidence score from the recorded
outcomes of the most similar prior decisions (5 unless you pass a limit),
rank-weighted by similarity.

## 4. Consider evolving the governing rule

If the failure is part of a pattern rather than a one-off, call
` + "`evolve_rule`" + ` on the rule whose trigger covers this case. It folds
repeated ` + "`worked=false`" + ` outcomes into new ` + "`must_not`" + ` clauses automatically.

## 5. Record the new outcome

Whatever you try next, call ` + "`reflect.outcome`" + ` when you know whether it
worked, so the next session benefits from what you learned.
`
	if id != "" {
		guide += "\nStart with decision id " + id + ".\n"
	}
	return guide
}
