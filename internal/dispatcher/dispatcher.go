// Package dispatcher routes the action-tagged tool calls to the memory
// engine's components, gates mutations through Covenant, and normalizes
// component errors. Per spec.md §9's redesign flag, routing is an
// exhaustive switch over known action strings rather than a dynamic
// dispatch table keyed by reflection or a map of closures — an unknown
// action is a compile-time-enumerable case, not a runtime lookup miss.
package dispatcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/daem0nmcp/daem0nmcp/internal/config"
	"github.com/daem0nmcp/daem0nmcp/internal/covenant"
	"github.com/daem0nmcp/daem0nmcp/internal/embedder"
	"github.com/daem0nmcp/daem0nmcp/internal/errs"
	"github.com/daem0nmcp/daem0nmcp/internal/feedback"
	"github.com/daem0nmcp/daem0nmcp/internal/graphengine"
	"github.com/daem0nmcp/daem0nmcp/internal/lexical"
	"github.com/daem0nmcp/daem0nmcp/internal/retriever"
	"github.com/daem0nmcp/daem0nmcp/internal/scheduler"
	"github.com/daem0nmcp/daem0nmcp/internal/store"
	"github.com/daem0nmcp/daem0nmcp/internal/vectorindex"
)

// Dispatcher owns every engine component and the single project's covenant
// session. One process serves exactly one project directory (spec.md §4.1's
// single-writer contract), so there is one Dispatcher and one Session.
type Dispatcher struct {
	ProjectPath string

	Store     *store.Store
	Embedder  *embedder.Embedder
	Lexical   *lexical.Index
	Vector    *vectorindex.Index
	Graph     *graphengine.Engine
	Retriever *retriever.Retriever
	Feedback  *feedback.Engine
	Session   *covenant.Session
	Activity  *scheduler.ActivityTracker

	cfg *config.Config
	log *slog.Logger
}

// New wires a Dispatcher over already-opened components. Activity starts
// freshly active; the caller wires it into the scheduler's background jobs.
func New(projectPath string, s *store.Store, e *embedder.Embedder, lx *lexical.Index,
	vx *vectorindex.Index, ge *graphengine.Engine, rt *retriever.Retriever, fb *feedback.Engine,
	sess *covenant.Session, cfg *config.Config, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		ProjectPath: projectPath, Store: s, Embedder: e, Lexical: lx, Vector: vx,
		Graph: ge, Retriever: rt, Feedback: fb, Session: sess, Activity: scheduler.NewActivityTracker(),
		cfg: cfg, log: log,
	}
}

// Envelope is the common shape every one of the eight action-dispatching
// tools carries, per spec.md §6.
type Envelope struct {
	Action      string          `json:"action"`
	ProjectPath string          `json:"project_path"`
	Params      json.RawMessage `json:"-"`
}

// Dispatch gates action via Covenant, then routes to its handler. raw is the
// full tool-call params payload (action/project_path plus action-specific
// fields); handlers re-unmarshal raw into their own typed params struct.
func (d *Dispatcher) Dispatch(ctx context.Context, action, projectPath string, raw json.RawMessage) (any, error) {
	d.Activity.RecordRequest()
	if projectPath != "" && projectPath != d.ProjectPath {
		return nil, errs.Newf(errs.InvalidArgument, "project_path %q does not match the engine's project %q", projectPath, d.ProjectPath)
	}
	if err := d.Session.Check(action); err != nil {
		return nil, err
	}

	switch action {
	case "commune.briefing":
		return d.briefing(ctx)
	case "commune.health":
		return d.health(ctx)
	case "consult.preflight":
		return d.preflight(raw)
	case "consult.recall":
		return d.recall(ctx, raw)
	case "inscribe.remember":
		return d.remember(raw)
	case "inscribe.remember_batch":
		return d.rememberBatch(raw)
	case "inscribe.link":
		return d.link(raw)
	case "inscribe.pin":
		return d.pin(raw)
	case "reflect.outcome":
		return d.outcome(raw)
	case "understand.neighbors":
		return d.neighbors(raw)
	case "understand.chain":
		return d.chain(raw)
	case "understand.subgraph":
		return d.subgraph(raw)
	case "understand.evolution":
		return d.evolution(raw)
	case "govern.add_rule":
		return d.addRule(raw)
	case "govern.update_rule":
		return d.updateRule(raw)
	case "govern.list_rules":
		return d.listRules()
	case "explore.versions":
		return d.versions(raw)
	case "explore.at_time":
		return d.atTime(raw)
	case "maintain.archive":
		return d.archive(raw)
	case "maintain.prune":
		return d.prune(raw)
	case "maintain.cleanup":
		return d.cleanup(raw)
	case "maintain.compact":
		return d.compact()
	default:
		return nil, errs.Newf(errs.InvalidArgument, "unknown action %q", action)
	}
}

type briefingResult struct {
	Summary       string        `json:"summary"`
	MemoryCount   int           `json:"memory_count"`
	RuleCount     int           `json:"rule_count"`
	ActiveContext []*store.Memory `json:"active_context"`
}

func (d *Dispatcher) briefing(ctx context.Context) (*briefingResult, error) {
	memories, err := d.Store.IterMemories(store.Filter{})
	if err != nil {
		return nil, err
	}
	rules, err := d.Store.ListRules()
	if err != nil {
		return nil, err
	}
	entries, err := d.Store.ListActiveContext()
	if err != nil {
		return nil, err
	}

	var active []*store.Memory
	for _, e := range entries {
		m, err := d.Store.GetMemory(e.MemoryID)
		if err == nil {
			active = append(active, m)
		}
	}

	d.Session.Briefed()
	return &briefingResult{
		Summary:       "project briefed",
		MemoryCount:   len(memories),
		RuleCount:     len(rules),
		ActiveContext: active,
	}, nil
}

type healthResult struct {
	State       string `json:"state"`
	ProjectPath string `json:"project_path"`
}

func (d *Dispatcher) health(_ context.Context) (*healthResult, error) {
	return &healthResult{State: d.Session.State().String(), ProjectPath: d.ProjectPath}, nil
}

type preflightParams struct {
	Description string `json:"description"`
}

type preflightResult struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in_seconds"`
}

func (d *Dispatcher) preflight(raw json.RawMessage) (*preflightResult, error) {
	var p preflightParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing preflight params")
	}
	token, err := d.Session.IssuePreflightToken(p.Description)
	if err != nil {
		return nil, err
	}
	return &preflightResult{Token: token, ExpiresIn: d.cfg.Covenant.PreflightTTLSeconds}, nil
}

type recallParams struct {
	Topic      string   `json:"topic"`
	Categories []string `json:"categories,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	FilePrefix string   `json:"file_prefix,omitempty"`
	Archived   *bool    `json:"archived,omitempty"`
	Complexity string   `json:"complexity,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

func (d *Dispatcher) recall(ctx context.Context, raw json.RawMessage) ([]retriever.Item, error) {
	var p recallParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing recall params")
	}
	filter := store.Filter{Tags: p.Tags, FilePrefix: p.FilePrefix, Archived: p.Archived}
	for _, c := range p.Categories {
		filter.Categories = append(filter.Categories, store.Category(c))
	}
	return d.Retriever.Retrieve(ctx, p.Topic, filter, p.Complexity, p.Limit)
}

type rememberParams struct {
	Category   string   `json:"category"`
	Content    string   `json:"content"`
	Rationale  string   `json:"rationale,omitempty"`
	Context    string   `json:"context,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	FilePath   string   `json:"file_path,omitempty"`
	Entities   []string `json:"entities,omitempty"`
	HappenedAt *time.Time `json:"happened_at,omitempty"`
	Pinned     bool     `json:"pinned,omitempty"`
}

type rememberResult struct {
	ID int64 `json:"id"`
}

func (d *Dispatcher) remember(raw json.RawMessage) (*rememberResult, error) {
	var p rememberParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing remember params")
	}
	id, err := d.insertMemory(p)
	if err != nil {
		return nil, err
	}
	return &rememberResult{ID: id}, nil
}

func (d *Dispatcher) insertMemory(p rememberParams) (int64, error) {
	id, err := d.Store.PutMemory(store.Draft{
		Category: store.Category(p.Category), Content: p.Content, Rationale: p.Rationale,
		Context: p.Context, Tags: p.Tags, FilePath: p.FilePath, Entities: p.Entities,
		HappenedAt: p.HappenedAt, Pinned: p.Pinned,
	})
	if err != nil {
		return 0, err
	}

	d.Lexical.Add(lexical.Doc{ID: id, Content: p.Content, Rationale: p.Rationale, Context: p.Context, Tags: p.Tags, FilePath: p.FilePath})

	ctx := context.Background()
	vec, err := d.Embedder.EncodeDocument(ctx, p.Content)
	if err != nil {
		d.log.Warn("embedding new memory failed, marking for reindex", "id", id, "error", err)
		_ = d.Store.MarkPendingReindex(id, true)
		return id, nil
	}

	surprise, err := feedback.ComputeSurprise(ctx, d.Vector, vec, d.cfg.Feedback.SurpriseK)
	if err == nil {
		_ = d.Store.SetSurprise(id, surprise)
	}
	if err := d.Vector.Add(id, vec); err != nil {
		d.log.Warn("indexing new memory vector failed, marking for reindex", "id", id, "error", err)
		_ = d.Store.MarkPendingReindex(id, true)
	}
	return id, nil
}

type rememberBatchParams struct {
	Memories []rememberParams `json:"memories"`
}

type rememberBatchResult struct {
	IDs []int64 `json:"ids"`
}

func (d *Dispatcher) rememberBatch(raw json.RawMessage) (*rememberBatchResult, error) {
	var p rememberBatchParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing remember_batch params")
	}
	ids := make([]int64, 0, len(p.Memories))
	for _, m := range p.Memories {
		id, err := d.insertMemory(m)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return &rememberBatchResult{IDs: ids}, nil
}

type linkParams struct {
	Source       int64  `json:"source"`
	Target       int64  `json:"target"`
	Relationship string `json:"relationship"`
}

func (d *Dispatcher) link(raw json.RawMessage) (*struct{}, error) {
	var p linkParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing link params")
	}
	l := store.Link{Source: p.Source, Target: p.Target, Relationship: store.Relationship(p.Relationship)}
	if err := d.Store.PutLink(l); err != nil {
		return nil, err
	}
	links, err := d.Store.AllLinks()
	if err == nil {
		d.Graph.Rebuild(links)
	}
	d.Activity.RecordLinkMutation()
	return &struct{}{}, nil
}

type pinParams struct {
	ID     int64 `json:"id"`
	Pinned bool  `json:"pinned"`
}

func (d *Dispatcher) pin(raw json.RawMessage) (*struct{}, error) {
	var p pinParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing pin params")
	}
	return &struct{}{}, d.Store.Pin(p.ID, p.Pinned)
}

type outcomeParams struct {
	ID     int64  `json:"id"`
	Worked bool   `json:"worked"`
	Text   string `json:"text,omitempty"`
}

func (d *Dispatcher) outcome(raw json.RawMessage) (*struct{}, error) {
	var p outcomeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing outcome params")
	}
	return &struct{}{}, d.Feedback.RecordOutcome(p.ID, p.Worked, p.Text)
}

type neighborsParams struct {
	ID           int64  `json:"id"`
	Relationship string `json:"relationship,omitempty"`
	Depth        int    `json:"depth,omitempty"`
}

func (d *Dispatcher) neighbors(raw json.RawMessage) ([]int64, error) {
	var p neighborsParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing neighbors params")
	}
	depth := p.Depth
	if depth <= 0 {
		depth = 1
	}
	var rel *store.Relationship
	if p.Relationship != "" {
		r := store.Relationship(p.Relationship)
		rel = &r
	}
	return d.Graph.Neighbors(p.ID, rel, depth), nil
}

type chainParams struct {
	From     int64 `json:"from"`
	To       int64 `json:"to"`
	MaxDepth int   `json:"max_depth,omitempty"`
}

func (d *Dispatcher) chain(raw json.RawMessage) ([]int64, error) {
	var p chainParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing chain params")
	}
	maxDepth := p.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 6
	}
	return d.Graph.Chain(p.From, p.To, maxDepth)
}

type subgraphParams struct {
	SeedIDs []int64 `json:"seed_ids"`
	Depth   int     `json:"depth,omitempty"`
}

func (d *Dispatcher) subgraph(raw json.RawMessage) (*graphengine.SubgraphResult, error) {
	var p subgraphParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing subgraph params")
	}
	depth := p.Depth
	if depth <= 0 {
		depth = 1
	}
	result := d.Graph.Subgraph(p.SeedIDs, depth)
	return &result, nil
}

type evolutionParams struct {
	EntityName string `json:"entity_name"`
}

func (d *Dispatcher) evolution(raw json.RawMessage) ([]*store.Memory, error) {
	var p evolutionParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing evolution params")
	}
	memories, err := d.Store.IterMemories(store.Filter{Entity: p.EntityName})
	if err != nil {
		return nil, err
	}
	return d.Graph.Evolution(memories), nil
}

type ruleParams struct {
	ID       int64    `json:"id,omitempty"`
	Trigger  string   `json:"trigger"`
	MustDo   []string `json:"must_do,omitempty"`
	MustNot  []string `json:"must_not,omitempty"`
	AskFirst []string `json:"ask_first,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Priority int      `json:"priority,omitempty"`
	Enabled  bool     `json:"enabled"`
}

type ruleResult struct {
	ID int64 `json:"id"`
}

func (d *Dispatcher) addRule(raw json.RawMessage) (*ruleResult, error) {
	var p ruleParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing add_rule params")
	}
	p.Enabled = true
	id, err := d.Store.PutRule(store.Rule{
		Trigger: p.Trigger, MustDo: p.MustDo, MustNot: p.MustNot, AskFirst: p.AskFirst,
		Warnings: p.Warnings, Priority: p.Priority, Enabled: p.Enabled,
	})
	if err != nil {
		return nil, err
	}
	return &ruleResult{ID: id}, nil
}

func (d *Dispatcher) updateRule(raw json.RawMessage) (*ruleResult, error) {
	var p ruleParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing update_rule params")
	}
	if p.ID == 0 {
		return nil, errs.New(errs.InvalidArgument, "update_rule requires id")
	}
	id, err := d.Store.PutRule(store.Rule{
		ID: p.ID, Trigger: p.Trigger, MustDo: p.MustDo, MustNot: p.MustNot, AskFirst: p.AskFirst,
		Warnings: p.Warnings, Priority: p.Priority, Enabled: p.Enabled,
	})
	if err != nil {
		return nil, err
	}
	return &ruleResult{ID: id}, nil
}

func (d *Dispatcher) listRules() ([]store.Rule, error) {
	return d.Store.ListRules()
}

type versionsParams struct {
	ID int64 `json:"id"`
}

func (d *Dispatcher) versions(raw json.RawMessage) ([]*store.MemoryVersion, error) {
	var p versionsParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing versions params")
	}
	return d.Store.Versions(p.ID)
}

type atTimeParams struct {
	ID int64     `json:"id"`
	At time.Time `json:"at"`
}

func (d *Dispatcher) atTime(raw json.RawMessage) (*store.MemoryVersion, error) {
	var p atTimeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing at_time params")
	}
	return d.Store.AtTime(p.ID, p.At)
}

type archiveParams struct {
	ID int64 `json:"id"`
}

func (d *Dispatcher) archive(raw json.RawMessage) (*struct{}, error) {
	var p archiveParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing archive params")
	}
	return &struct{}{}, d.Store.Archive(p.ID)
}

type pruneParams struct {
	OlderThanDays int  `json:"older_than_days"`
	DryRun        bool `json:"dry_run"`
}

func (d *Dispatcher) prune(raw json.RawMessage) ([]feedback.PruneCandidate, error) {
	var p pruneParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing prune params")
	}
	return d.Feedback.Prune(p.OlderThanDays, p.DryRun)
}

type cleanupParams struct {
	DryRun bool `json:"dry_run"`
}

func (d *Dispatcher) cleanup(raw json.RawMessage) ([]feedback.DuplicatePair, error) {
	var p cleanupParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "parsing cleanup params")
	}
	return d.Feedback.Cleanup(p.DryRun)
}

type compactResult struct {
	CommunityCount int `json:"community_count"`
}

func (d *Dispatcher) compact() (*compactResult, error) {
	links, err := d.Store.AllLinks()
	if err != nil {
		return nil, err
	}
	d.Graph.Rebuild(links)
	communities := d.Graph.DetectCommunities(d.cfg.Graph.MinCommunitySize, 1.0)
	for i := range communities {
		communities[i].Summary = d.summarizeCommunity(communities[i].Members)
	}
	if err := d.Store.ReplaceCommunities(communities); err != nil {
		return nil, err
	}
	d.Activity.MarkCommunitiesRebuilt()
	return &compactResult{CommunityCount: len(communities)}, nil
}

// communitySummaryMembers caps how many member memories contribute content
// to a community's summary; beyond this the concatenation stops paying off.
const communitySummaryMembers = 5

// summarizeCommunity derives a community's summary from its own members'
// content rather than a generic placeholder, so the retriever's complex-tier
// community match (which re-embeds this text per query) has something
// semantically meaningful to compare against.
func (d *Dispatcher) summarizeCommunity(members []int64) string {
	memories := make([]*store.Memory, 0, len(members))
	for _, id := range members {
		m, err := d.Store.GetMemory(id)
		if err != nil {
			continue
		}
		memories = append(memories, m)
	}
	if len(memories) == 0 {
		return "empty community"
	}

	sort.Slice(memories, func(i, j int) bool {
		return memories[i].ImportanceScore > memories[j].ImportanceScore
	})
	if len(memories) > communitySummaryMembers {
		memories = memories[:communitySummaryMembers]
	}

	parts := make([]string, 0, len(memories))
	for _, m := range memories {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "; ")
}

// RebuildCommunities re-runs community detection and persists the result;
// exposed for the scheduler's periodic background job (spec.md §5).
func (d *Dispatcher) RebuildCommunities(_ context.Context) error {
	_, err := d.compact()
	return err
}
