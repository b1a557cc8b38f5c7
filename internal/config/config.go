// Package config loads daem0nmcp's settings once at startup: defaults, then an
// optional TOML file, then environment variables (which always win). There is
// no runtime attribute lookup — every tunable is a typed field on Config.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config holds all tunables for the daem0nmcp engine.
// Precedence: environment variables > config file > defaults.
type Config struct {
	Project   ProjectConfig   `toml:"project"`
	Server    ServerConfig    `toml:"server"`
	Transport TransportConfig `toml:"transport"`
	Log       LogConfig       `toml:"log"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Lexical   LexicalConfig   `toml:"lexical"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Covenant  CovenantConfig  `toml:"covenant"`
	Feedback  FeedbackConfig  `toml:"feedback"`
	Dream     DreamConfig     `toml:"dream"`
	Graph     GraphConfig     `toml:"graph"`
}

// ProjectConfig identifies the project directory the engine serves.
type ProjectConfig struct {
	Path string `toml:"path"` // directory containing .daem0nmcp/
}

// ServerConfig holds MCP server metadata.
type ServerConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// TransportConfig holds transport-related settings.
type TransportConfig struct {
	// Mode selects the transport: "stdio" (default) or "http".
	Mode string `toml:"mode"`
	Port string `toml:"port"`
	Host string `toml:"host"`
	// CORSOrigins is a comma-separated list of allowed CORS origins (default: "*").
	CORSOrigins string `toml:"cors_origins"`
	// RequestDeadlineSeconds is used as the HTTP server's read timeout.
	// Tool calls themselves run without a deadline on either transport.
	RequestDeadlineSeconds int `toml:"request_deadline_seconds"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// EmbeddingConfig configures the Embedder.
type EmbeddingConfig struct {
	Dimension      int    `toml:"dimension"`
	QueryPrefix    string `toml:"query_prefix"`
	DocumentPrefix string `toml:"document_prefix"`
	WorkerQueueCap int    `toml:"worker_queue_capacity"`
}

// LexicalConfig configures the BM25 LexicalIndex.
type LexicalConfig struct {
	K1 float64 `toml:"k1"`
	B  float64 `toml:"b"`
}

// RetrievalConfig configures HybridRetriever tunables.
type RetrievalConfig struct {
	RRFK            int  `toml:"rrf_k"`
	MaxPerFile      int  `toml:"max_per_file"`
	SimpleLimit     int  `toml:"simple_limit"`
	MediumLimit     int  `toml:"medium_limit"`
	ComplexLimit    int  `toml:"complex_limit"`
	CandidateTopK   int  `toml:"candidate_top_k"`
	GraphHopDepth   int  `toml:"graph_hop_depth"`
	AutoZoomEnabled bool `toml:"auto_zoom_enabled"`
	ShadowMode      bool `toml:"shadow_mode"`
}

// CovenantConfig configures session gating.
type CovenantConfig struct {
	PreflightTTLSeconds int `toml:"preflight_ttl_seconds"`
}

// FeedbackConfig configures outcome/importance/fact-promotion/pruning.
type FeedbackConfig struct {
	FactPromotionThreshold int     `toml:"fact_promotion_threshold"`
	PruneImportanceFloor   float64 `toml:"prune_importance_floor"`
	PruneMinRecallCount    int     `toml:"prune_min_recall_count"`
	DecisionHalfLifeDays   float64 `toml:"decision_half_life_days"`
	DuplicateJaccardMin    float64 `toml:"duplicate_jaccard_min"`
	DuplicateCosineMin     float64 `toml:"duplicate_cosine_min"`
	SurpriseK              int     `toml:"surprise_k"`
}

// DreamConfig configures the idle-time dream pass.
type DreamConfig struct {
	IdleTimeoutSeconds     int `toml:"idle_timeout_seconds"`
	MaxDecisionsPerSession int `toml:"max_decisions_per_session"`
	MinDecisionAgeHours    int `toml:"min_decision_age_hours"`
}

// GraphConfig configures community detection and background rebuilds.
type GraphConfig struct {
	MinCommunitySize          int `toml:"min_community_size"`
	RebuildAfterLinkMutations int `toml:"rebuild_after_link_mutations"`
	RebuildIdleMinutes        int `toml:"rebuild_idle_minutes"`
}

// Load creates a Config from defaults, an optional TOML file, and environment
// variables. Config file search order: explicit path, DAEM0N_CONFIG env var,
// ./daem0nmcp.toml, ~/.config/daem0nmcp/daem0nmcp.toml.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if err := cfg.loadFile(configPath); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Project: ProjectConfig{Path: "."},
		Server: ServerConfig{
			Name:    "daem0nmcp",
			Version: "0.1.0",
		},
		Transport: TransportConfig{
			Mode:                   "stdio",
			Port:                   "8787",
			Host:                   "127.0.0.1",
			CORSOrigins:            "*",
			RequestDeadlineSeconds: 30,
		},
		Log: LogConfig{Level: "info"},
		Embedding: EmbeddingConfig{
			Dimension:      256,
			QueryPrefix:    "search_query: ",
			DocumentPrefix: "search_document: ",
			WorkerQueueCap: 256,
		},
		Lexical: LexicalConfig{K1: 1.5, B: 0.75},
		Retrieval: RetrievalConfig{
			RRFK:            60,
			MaxPerFile:      3,
			SimpleLimit:     5,
			MediumLimit:     10,
			ComplexLimit:    20,
			CandidateTopK:   20,
			GraphHopDepth:   2,
			AutoZoomEnabled: true,
			ShadowMode:      false,
		},
		Covenant: CovenantConfig{PreflightTTLSeconds: 300},
		Feedback: FeedbackConfig{
			FactPromotionThreshold: 3,
			PruneImportanceFloor:   0.3,
			PruneMinRecallCount:    2,
			DecisionHalfLifeDays:   30,
			DuplicateJaccardMin:    0.6,
			DuplicateCosineMin:     0.9,
			SurpriseK:              5,
		},
		Dream: DreamConfig{
			IdleTimeoutSeconds:     60,
			MaxDecisionsPerSession: 5,
			MinDecisionAgeHours:    24,
		},
		Graph: GraphConfig{
			MinCommunitySize:          3,
			RebuildAfterLinkMutations: 50,
			RebuildIdleMinutes:        15,
		},
	}
}

func (c *Config) loadFile(configPath string) error {
	path := resolveConfigPath(configPath)
	if path == "" {
		return nil
	}
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv("DAEM0N_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("daem0nmcp.toml"); err == nil {
		return "daem0nmcp.toml"
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := home + "/.config/daem0nmcp/daem0nmcp.toml"
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// applyEnv overlays recognized environment variables on top of existing
// values. An env var only takes effect if it is non-empty; unrecognized
// DAEM0N_* variables are simply never consulted and are ignored; no
// warning is logged for them.
func (c *Config) applyEnv() {
	envOverride("DAEM0N_PROJECT_PATH", &c.Project.Path)
	envOverride("DAEM0N_TRANSPORT", &c.Transport.Mode)
	envOverride("DAEM0N_PORT", &c.Transport.Port)
	envOverride("DAEM0N_HOST", &c.Transport.Host)
	envOverride("DAEM0N_CORS_ORIGINS", &c.Transport.CORSOrigins)
	envOverride("DAEM0N_LOG_LEVEL", &c.Log.Level)

	envOverrideInt("DAEM0N_EMBEDDING_DIMENSION", &c.Embedding.Dimension)
	envOverrideFloat("DAEM0N_BM25_K1", &c.Lexical.K1)
	envOverrideFloat("DAEM0N_BM25_B", &c.Lexical.B)
	envOverrideInt("DAEM0N_RRF_K", &c.Retrieval.RRFK)
	envOverrideInt("DAEM0N_MAX_PER_FILE", &c.Retrieval.MaxPerFile)
	envOverrideBool("DAEM0N_AUTO_ZOOM", &c.Retrieval.AutoZoomEnabled)
	envOverrideBool("DAEM0N_SHADOW_MODE", &c.Retrieval.ShadowMode)
	envOverrideInt("DAEM0N_PREFLIGHT_TTL_SECONDS", &c.Covenant.PreflightTTLSeconds)
	envOverrideInt("DAEM0N_FACT_PROMOTION_THRESHOLD", &c.Feedback.FactPromotionThreshold)
	envOverrideInt("DAEM0N_DREAM_IDLE_TIMEOUT_SECONDS", &c.Dream.IdleTimeoutSeconds)
	envOverrideInt("DAEM0N_GRAPH_MIN_COMMUNITY_SIZE", &c.Graph.MinCommunitySize)
}

// Validate checks required invariants on the assembled configuration.
func (c *Config) Validate() error {
	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport mode: %q (must be \"stdio\" or \"http\")", c.Transport.Mode)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if c.Covenant.PreflightTTLSeconds <= 0 {
		return fmt.Errorf("covenant preflight_ttl_seconds must be positive")
	}
	return nil
}

func envOverride(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envOverrideFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envOverrideBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}
