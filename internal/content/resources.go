package content

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/daem0nmcp/daem0nmcp/internal/mcp"
	"github.com/daem0nmcp/daem0nmcp/internal/retriever"
	"github.com/daem0nmcp/daem0nmcp/internal/store"
)

func jsonResource(uri string, v any) (*mcp.ResourcesReadResult, error) {
	text, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ResourcesReadResult{
		Contents: []mcp.ResourceContent{
			{URI: uri, MimeType: "application/json", Text: string(text)},
		},
	}, nil
}

// --- daem0n://warnings/{project} ---

// WarningsResource exposes every non-archived warning-category memory.
type WarningsResource struct {
	store       *store.Store
	projectPath string
}

func NewWarningsResource(s *store.Store, projectPath string) *WarningsResource {
	return &WarningsResource{store: s, projectPath: projectPath}
}

func (r *WarningsResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         fmt.Sprintf("daem0n://warnings/%s", r.projectPath),
		Name:        "Active warnings",
		Description: "Non-archived warning-category memories for this project",
		MimeType:    "application/json",
	}
}

func (r *WarningsResource) Read(_ string) (*mcp.ResourcesReadResult, error) {
	archived := false
	memories, err := r.store.IterMemories(store.Filter{
		Categories: []store.Category{store.CategoryWarning},
		Archived:   &archived,
	})
	if err != nil {
		return nil, err
	}
	return jsonResource(r.Definition().URI, memories)
}

// --- daem0n://failed/{project} ---

// FailedDecisionsResource exposes decisions recorded worked=false.
type FailedDecisionsResource struct {
	store       *store.Store
	projectPath string
}

func NewFailedDecisionsResource(s *store.Store, projectPath string) *FailedDecisionsResource {
	return &FailedDecisionsResource{store: s, projectPath: projectPath}
}

func (r *FailedDecisionsResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         fmt.Sprintf("daem0n://failed/%s", r.projectPath),
		Name:        "Failed decisions",
		Description: "Decisions recorded with a worked=false outcome, most recent first",
		MimeType:    "application/json",
	}
}

func (r *FailedDecisionsResource) Read(_ string) (*mcp.ResourcesReadResult, error) {
	all, err := r.store.IterMemories(store.Filter{Categories: []store.Category{store.CategoryDecision}})
	if err != nil {
		return nil, err
	}
	var failed []*store.Memory
	for _, m := range all {
		if m.Outcome != nil && !m.Outcome.Worked {
			failed = append(failed, m)
		}
	}
	return jsonResource(r.Definition().URI, failed)
}

// --- daem0n://rules/{project} ---

// RulesResource exposes the project's governance rules.
type RulesResource struct {
	store       *store.Store
	projectPath string
}

func NewRulesResource(s *store.Store, projectPath string) *RulesResource {
	return &RulesResource{store: s, projectPath: projectPath}
}

func (r *RulesResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         fmt.Sprintf("daem0n://rules/%s", r.projectPath),
		Name:        "Governance rules",
		Description: "Every enabled and disabled rule registered for this project",
		MimeType:    "application/json",
	}
}

func (r *RulesResource) Read(_ string) (*mcp.ResourcesReadResult, error) {
	rules, err := r.store.ListRules()
	if err != nil {
		return nil, err
	}
	return jsonResource(r.Definition().URI, rules)
}

// --- daem0n://context/{project} ---

// ActiveContextResource exposes the memories currently pinned into working
// context for the project's session.
type ActiveContextResource struct {
	store       *store.Store
	projectPath string
}

func NewActiveContextResource(s *store.Store, projectPath string) *ActiveContextResource {
	return &ActiveContextResource{store: s, projectPath: projectPath}
}

func (r *ActiveContextResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         fmt.Sprintf("daem0n://context/%s", r.projectPath),
		Name:        "Active context",
		Description: "Memories currently pinned into this project's working context",
		MimeType:    "application/json",
	}
}

func (r *ActiveContextResource) Read(_ string) (*mcp.ResourcesReadResult, error) {
	entries, err := r.store.ListActiveContext()
	if err != nil {
		return nil, err
	}
	memories := make([]*store.Memory, 0, len(entries))
	for _, e := range entries {
		m, err := r.store.GetMemory(e.MemoryID)
		if err != nil {
			continue
		}
		memories = append(memories, m)
	}
	return jsonResource(r.Definition().URI, memories)
}

// --- daem0n://triggered/{file} ---

// TriggeredResource is templated: reading daem0n://triggered/<path> evaluates
// every file-matching Trigger against <path> and recalls each match's topic.
type TriggeredResource struct {
	store     *store.Store
	retriever *retriever.Retriever
}

func NewTriggeredResource(s *store.Store, rt *retriever.Retriever) *TriggeredResource {
	return &TriggeredResource{store: s, retriever: rt}
}

func (r *TriggeredResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         triggeredResourcePrefix + "{file}",
		Name:        "File-triggered guidance",
		Description: "Memories recalled by triggers whose file pattern matches the requested path",
		MimeType:    "application/json",
	}
}

// matchedTrigger pairs a fired Trigger with what it recalled.
type matchedTrigger struct {
	Trigger *store.Trigger `json:"trigger"`
	Results []*store.Memory `json:"results"`
}

const triggeredResourcePrefix = "daem0n://triggered/"

func (r *TriggeredResource) Read(uri string) (*mcp.ResourcesReadResult, error) {
	filePath := strings.TrimPrefix(uri, triggeredResourcePrefix)

	triggers, err := r.store.ListTriggers()
	if err != nil {
		return nil, err
	}

	var matched []matchedTrigger
	for i := range triggers {
		t := triggers[i]
		if !t.MatchFilePath {
			continue
		}
		ok, err := path.Match(t.Pattern, filePath)
		if err == nil && !ok {
			ok, err = path.Match(t.Pattern, path.Base(filePath))
		}
		if err != nil || !ok {
			continue
		}
		items, err := r.retriever.Retrieve(context.Background(), t.RecallTopic, store.Filter{Categories: t.CategoryFilter}, "", 5)
		if err != nil {
			continue
		}
		memories := make([]*store.Memory, 0, len(items))
		for _, it := range items {
			memories = append(memories, it.Memory)
		}
		matched = append(matched, matchedTrigger{Trigger: &t, Results: memories})
	}
	return jsonResource(uri, matched)
}
