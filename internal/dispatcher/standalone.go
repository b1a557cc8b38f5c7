package dispatcher

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/daem0nmcp/daem0nmcp/internal/errs"
	"github.com/daem0nmcp/daem0nmcp/internal/store"
)

// DispatchStandalone routes the three standalone tools — simulate_decision,
// evolve_rule, debate_internal — through the same project and covenant
// gates as the eight action tools, keyed by tool name rather than an
// "action" field since these tools carry no action vocabulary of their own.
func (d *Dispatcher) DispatchStandalone(ctx context.Context, tool, projectPath string, raw json.RawMessage) (any, error) {
	d.Activity.RecordRequest()
	if projectPath != "" && projectPath != d.ProjectPath {
		return nil, errs.Newf(errs.InvalidArgument, "project_path %q does not match the engine's project %q", projectPath, d.ProjectPath)
	}
	if err := d.Session.Check(tool); err != nil {
		return nil, err
	}

	switch tool {
	case "simulate_decision":
		return d.simulateDecision(ctx, raw)
	case "evolve_rule":
		return d.evolveRule(raw)
	case "debate_internal":
		return d.debateInternal(ctx, raw)
	default:
		return nil, errs.Newf(errs.InvalidArgument, "unknown standalone tool %q", tool)
	}
}

type simulateDecisionParams struct {
	Proposal string `json:"proposal"`
	Limit    int    `json:"limit,omitempty"`
}

// PrecedentOutcome is one historical decision informing a simulation.
type PrecedentOutcome struct {
	Memory *store.Memory `json:"memory"`
	Worked *bool         `json:"worked,omitempty"`
}

type simulateDecisionResult struct {
	Confidence float64            `json:"confidence"`
	Precedents []PrecedentOutcome `json:"precedents"`
	Rationale  string             `json:"rationale"`
}

// simulateDecision retrieves prior decisions similar to the proposal and
// forecasts a confidence score from their recorded outcomes, weighted by
// retrieval rank (closer precedents count more). Grounded in
// internal/retriever's hybrid recall and internal/feedback's outcome model;
// there is nothing to simulate beyond what the engine has already observed,
// so this is a read over existing memory, not a new inference component.
func (d *Dispatcher) simulateDecision(ctx context.Context, raw json.RawMessage) (*simulateDecisionResult, error) {
	var p simulateDecisionParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing simulate_decision params")
	}
	if p.Proposal == "" {
		return nil, errs.New(errs.InvalidArgument, "proposal is required")
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 5
	}

	items, err := d.Retriever.Retrieve(ctx, p.Proposal, store.Filter{Categories: []store.Category{store.CategoryDecision}}, "", limit)
	if err != nil {
		return nil, err
	}

	var precedents []PrecedentOutcome
	weightedSum, weightTotal := 0.0, 0.0
	for i, item := range items {
		weight := 1.0 / float64(i+1)
		var worked *bool
		if item.Memory.Outcome != nil {
			w := item.Memory.Outcome.Worked
			worked = &w
			weightTotal += weight
			if w {
				weightedSum += weight
			} else {
				weightedSum += weight * 0.2
			}
		}
		precedents = append(precedents, PrecedentOutcome{Memory: item.Memory, Worked: worked})
	}

	confidence := 0.5
	rationale := "no prior decisions with recorded outcomes resemble this proposal"
	if weightTotal > 0 {
		confidence = weightedSum / weightTotal
		rationale = "confidence derived from outcome-weighted similarity to prior decisions"
	}

	return &simulateDecisionResult{Confidence: confidence, Precedents: precedents, Rationale: rationale}, nil
}

type evolveRuleParams struct {
	RuleID int64 `json:"rule_id"`
}

type evolveRuleResult struct {
	RuleID      int64    `json:"rule_id"`
	AddedMustNot []string `json:"added_must_not,omitempty"`
	Unchanged   bool     `json:"unchanged"`
}

// evolveRule inspects the decisions/learnings tagged with a rule's
// trigger and, for every one recorded worked=false with no must_not entry
// already covering it, appends the memory's content as a new must_not
// clause. This turns repeated negative outcomes into governance the way
// spec.md §4.8's fact promotion turns repeated positive ones into facts —
// the same EWMA feedback loop, read from the other direction.
func (d *Dispatcher) evolveRule(raw json.RawMessage) (*evolveRuleResult, error) {
	var p evolveRuleParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing evolve_rule params")
	}

	rules, err := d.Store.ListRules()
	if err != nil {
		return nil, err
	}
	var target *store.Rule
	for i := range rules {
		if rules[i].ID == p.RuleID {
			target = &rules[i]
			break
		}
	}
	if target == nil {
		return nil, errs.Newf(errs.NotFound, "rule %d not found", p.RuleID)
	}

	memories, err := d.Store.IterMemories(store.Filter{
		Categories: []store.Category{store.CategoryDecision, store.CategoryLearning},
		Tags:       []string{target.Trigger},
	})
	if err != nil {
		return nil, err
	}

	existing := map[string]bool{}
	for _, m := range target.MustNot {
		existing[m] = true
	}

	var added []string
	for _, m := range memories {
		if m.Outcome == nil || m.Outcome.Worked {
			continue
		}
		if existing[m.Content] {
			continue
		}
		existing[m.Content] = true
		added = append(added, m.Content)
	}

	if len(added) == 0 {
		return &evolveRuleResult{RuleID: target.ID, Unchanged: true}, nil
	}

	target.MustNot = append(target.MustNot, added...)
	if _, err := d.Store.PutRule(*target); err != nil {
		return nil, err
	}
	return &evolveRuleResult{RuleID: target.ID, AddedMustNot: added}, nil
}

type debateInternalParams struct {
	Topic string `json:"topic"`
	Limit int    `json:"limit,omitempty"`
}

// Perspective is one side of an internal disagreement surfaced for a topic.
type Perspective struct {
	Memory    *store.Memory   `json:"memory"`
	Conflicts []*store.Memory `json:"conflicts"`
}

type debateInternalResult struct {
	Perspectives []Perspective `json:"perspectives"`
}

// debateInternal recalls memories relevant to a topic and, for each, looks
// up its conflicts_with neighbors so the caller can weigh both sides of a
// disagreement rather than receive a single averaged answer. Grounded in
// internal/graphengine's relationship-typed adjacency and the conflicts_with
// edge weight spec.md §4.6 already gives special treatment in community
// detection.
func (d *Dispatcher) debateInternal(ctx context.Context, raw json.RawMessage) (*debateInternalResult, error) {
	var p debateInternalParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing debate_internal params")
	}
	if p.Topic == "" {
		return nil, errs.New(errs.InvalidArgument, "topic is required")
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 5
	}

	items, err := d.Retriever.Retrieve(ctx, p.Topic, store.Filter{}, "", limit)
	if err != nil {
		return nil, err
	}

	conflicts := store.RelConflictsWith
	var perspectives []Perspective
	for _, item := range items {
		neighborIDs := d.Graph.Neighbors(item.Memory.ID, &conflicts, 1)
		var conflictMemories []*store.Memory
		for _, id := range neighborIDs {
			m, err := d.Store.GetMemory(id)
			if err == nil {
				conflictMemories = append(conflictMemories, m)
			}
		}
		perspectives = append(perspectives, Perspective{Memory: item.Memory, Conflicts: conflictMemories})
	}

	sort.SliceStable(perspectives, func(i, j int) bool {
		return len(perspectives[i].Conflicts) > len(perspectives[j].Conflicts)
	})
	return &debateInternalResult{Perspectives: perspectives}, nil
}
