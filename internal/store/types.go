package store

import "time"

// Category enumerates the five kinds of memory.
type Category string

const (
	CategoryDecision Category = "decision"
	CategoryPattern  Category = "pattern"
	CategoryWarning  Category = "warning"
	CategoryLearning Category = "learning"
	CategoryFact     Category = "fact"
)

// ValidCategory reports whether c is one of the five recognized categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryDecision, CategoryPattern, CategoryWarning, CategoryLearning, CategoryFact:
		return true
	}
	return false
}

// Relationship enumerates the labeled kinds of directed link between memories.
type Relationship string

const (
	RelLedTo        Relationship = "led_to"
	RelSupersedes   Relationship = "supersedes"
	RelDependsOn    Relationship = "depends_on"
	RelConflictsWith Relationship = "conflicts_with"
	RelRelatedTo    Relationship = "related_to"
)

// ValidRelationship reports whether r is one of the five recognized relationships.
func ValidRelationship(r Relationship) bool {
	switch r {
	case RelLedTo, RelSupersedes, RelDependsOn, RelConflictsWith, RelRelatedTo:
		return true
	}
	return false
}

// Outcome records whether a memory's prescribed action worked in practice.
type Outcome struct {
	Worked     bool      `json:"worked"`
	Text       string    `json:"text"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Memory is the primary entity: a timestamped record of a decision, pattern,
// warning, learning, or fact.
type Memory struct {
	ID              int64     `json:"id"`
	Category        Category  `json:"category"`
	Content         string    `json:"content"`
	Rationale       string    `json:"rationale,omitempty"`
	Context         string    `json:"context,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	FilePath        string    `json:"file_path,omitempty"`
	Entities        []string  `json:"entities,omitempty"`
	ValidTime       time.Time `json:"valid_time"`
	TransactionTime time.Time `json:"transaction_time"`
	SupersededBy    *int64    `json:"superseded_by,omitempty"`
	Archived        bool      `json:"archived"`
	Pinned          bool      `json:"pinned"`
	ImportanceScore float64   `json:"importance_score"`
	SurpriseScore   float64   `json:"surprise_score"`
	Outcome         *Outcome  `json:"outcome,omitempty"`
	RecallCount     int64     `json:"recall_count"`
	LastRecalledAt  *time.Time `json:"last_recalled_at,omitempty"`
	PendingReindex  bool      `json:"pending_reindex,omitempty"`
}

// Draft is the caller-supplied content for a new memory; Store assigns the id
// and timestamps.
type Draft struct {
	Category    Category
	Content     string
	Rationale   string
	Context     string
	Tags        []string
	FilePath    string
	Entities    []string
	HappenedAt  *time.Time // overrides valid_time if set
	Pinned      bool
}

// Link is a directed, labeled edge between two memories.
type Link struct {
	Source       int64        `json:"source"`
	Target       int64        `json:"target"`
	Relationship Relationship `json:"relationship"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Rule is a governance record surfaced by Covenant briefings.
type Rule struct {
	ID       int64    `json:"id"`
	Trigger  string   `json:"trigger"`
	MustDo   []string `json:"must_do,omitempty"`
	MustNot  []string `json:"must_not,omitempty"`
	AskFirst []string `json:"ask_first,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Priority int      `json:"priority"`
	Enabled  bool     `json:"enabled"`
}

// Trigger is an auto-recall condition.
type Trigger struct {
	ID             int64    `json:"id"`
	Pattern        string   `json:"pattern"`
	MatchFilePath  bool     `json:"match_file_path"`
	MatchTags      bool     `json:"match_tags"`
	MatchEntities  bool     `json:"match_entities"`
	RecallTopic    string   `json:"recall_topic"`
	CategoryFilter []Category `json:"category_filter,omitempty"`
}

// ActiveContextEntry pins a memory into working context for a session.
type ActiveContextEntry struct {
	MemoryID  int64      `json:"memory_id"`
	Priority  int        `json:"priority"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	AddedAt   time.Time  `json:"added_at"`
}

// Community is the output of graph clustering at a given hierarchy level.
type Community struct {
	ID        int64     `json:"id"`
	Level     int       `json:"level"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	Members   []int64   `json:"members"`
	Summary   string    `json:"summary"`
	FreshAt   time.Time `json:"fresh_at"`
}

// Fact is a learning promoted to immutable status after repeated successes.
type Fact struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Content   string    `json:"content"`
	SourceID  int64     `json:"source_memory_id"`
	PromotedAt time.Time `json:"promoted_at"`
}

// PreflightToken is a short-lived credential gating mutating actions.
type PreflightToken struct {
	Value           string    `json:"-"`
	Project         string    `json:"project"`
	DescriptionHash string    `json:"description_hash"`
	IssuedAt        time.Time `json:"issued_at"`
}

// MemoryVersion is a point-in-time snapshot of a Memory's mutable fields.
type MemoryVersion struct {
	MemoryID        int64     `json:"memory_id"`
	TransactionTime time.Time `json:"transaction_time"`
	Content         string    `json:"content"`
	Rationale       string    `json:"rationale"`
	Context         string    `json:"context"`
	Tags            []string  `json:"tags"`
}

// Filter restricts iter_memories queries.
type Filter struct {
	Categories []Category
	Tags       []string
	Entity     string
	FilePrefix string
	Since      *time.Time
	Until      *time.Time
	Archived   *bool // nil = any
}
