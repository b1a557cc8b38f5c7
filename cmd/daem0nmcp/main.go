// Command daem0nmcp runs the daem0nmcp MCP server: a per-project persistent
// memory engine for AI coding assistants, exposed over stdio or HTTP using
// JSON-RPC 2.0 (MCP protocol).
//
// Optional environment variables (see internal/config for the full list):
//
//	DAEM0N_PROJECT_PATH   - Project directory containing .daem0nmcp/ (default: ".")
//	DAEM0N_TRANSPORT      - "stdio" (default) or "http"
//	DAEM0N_LOG_LEVEL      - debug, info, warn, error (default: info)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/daem0nmcp/daem0nmcp/internal/bootstrap"
	"github.com/daem0nmcp/daem0nmcp/internal/config"
	"github.com/daem0nmcp/daem0nmcp/internal/content"
	"github.com/daem0nmcp/daem0nmcp/internal/covenant"
	"github.com/daem0nmcp/daem0nmcp/internal/dispatcher"
	"github.com/daem0nmcp/daem0nmcp/internal/dream"
	"github.com/daem0nmcp/daem0nmcp/internal/embedder"
	"github.com/daem0nmcp/daem0nmcp/internal/feedback"
	"github.com/daem0nmcp/daem0nmcp/internal/graphengine"
	"github.com/daem0nmcp/daem0nmcp/internal/lexical"
	"github.com/daem0nmcp/daem0nmcp/internal/mcp"
	"github.com/daem0nmcp/daem0nmcp/internal/retriever"
	"github.com/daem0nmcp/daem0nmcp/internal/scheduler"
	"github.com/daem0nmcp/daem0nmcp/internal/store"
	"github.com/daem0nmcp/daem0nmcp/internal/tools/commune"
	"github.com/daem0nmcp/daem0nmcp/internal/tools/consult"
	"github.com/daem0nmcp/daem0nmcp/internal/tools/explore"
	"github.com/daem0nmcp/daem0nmcp/internal/tools/govern"
	"github.com/daem0nmcp/daem0nmcp/internal/tools/inscribe"
	"github.com/daem0nmcp/daem0nmcp/internal/tools/maintain"
	"github.com/daem0nmcp/daem0nmcp/internal/tools/reflect"
	"github.com/daem0nmcp/daem0nmcp/internal/tools/standalone"
	"github.com/daem0nmcp/daem0nmcp/internal/tools/understand"
	"github.com/daem0nmcp/daem0nmcp/internal/vectorindex"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "info" {
		runInfo(os.Args[2:])
		return
	}
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "daem0nmcp: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to daem0nmcp.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	version := cfg.Server.Version
	if Version != "dev" {
		version = Version
	}
	logger.Info("starting daem0nmcp", "version", version, "project_path", cfg.Project.Path, "transport", cfg.Transport.Mode)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := store.Open(cfg.Project.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	vx, err := vectorindex.Open(cfg.Project.Path, cfg.Embedding.Dimension)
	if err != nil {
		return fmt.Errorf("opening vector index: %w", err)
	}
	defer vx.Close()
	if vx.Rebuilt {
		logger.Warn("vector shard dimension changed, wiped and rebuilt; forcing full reindex")
	}

	emb := embedder.New(cfg.Embedding.Dimension, cfg.Embedding.QueryPrefix, cfg.Embedding.DocumentPrefix, cfg.Embedding.WorkerQueueCap)
	defer emb.Close()

	lx := lexical.New(cfg.Lexical.K1, cfg.Lexical.B)
	ge := graphengine.New()

	if err := bootstrap.Run(ctx, s, emb, lx, vx, ge, vx.Rebuilt, logger); err != nil {
		return fmt.Errorf("bootstrapping indexes: %w", err)
	}

	rt := retriever.New(s, emb, lx, vx, ge, cfg.Retrieval, cfg.Feedback, logger)
	fb := feedback.New(s, vx, cfg.Feedback)
	sess := covenant.NewSession(s, cfg.Project.Path, time.Duration(cfg.Covenant.PreflightTTLSeconds)*time.Second)
	disp := dispatcher.New(cfg.Project.Path, s, emb, lx, vx, ge, rt, fb, sess, cfg, logger)

	registry := mcp.NewRegistry()
	registry.Register(commune.New(disp))
	registry.Register(consult.New(disp))
	registry.Register(inscribe.New(disp))
	registry.Register(reflect.New(disp))
	registry.Register(understand.New(disp))
	registry.Register(govern.New(disp))
	registry.Register(explore.New(disp))
	registry.Register(maintain.New(disp))
	registry.Register(standalone.NewSimulateDecision(disp))
	registry.Register(standalone.NewEvolveRule(disp))
	registry.Register(standalone.NewDebateInternal(disp))

	registry.RegisterPrompt(&content.GuidePrompt{})
	registry.RegisterPrompt(&content.InvestigateFailurePrompt{})
	registry.RegisterResource(content.NewWarningsResource(s, cfg.Project.Path))
	registry.RegisterResource(content.NewFailedDecisionsResource(s, cfg.Project.Path))
	registry.RegisterResource(content.NewRulesResource(s, cfg.Project.Path))
	registry.RegisterResource(content.NewActiveContextResource(s, cfg.Project.Path))
	registry.RegisterResource(content.NewTriggeredResource(s, rt))

	sched := scheduler.NewScheduler(logger)
	sched.AddJob(&scheduler.CommunityRebuildJob{
		Tracker:           disp.Activity,
		MutationThreshold: cfg.Graph.RebuildAfterLinkMutations,
		IdleThreshold:     time.Duration(cfg.Graph.RebuildIdleMinutes) * time.Minute,
		Rebuild:           disp.RebuildCommunities,
	}, 30*time.Second)

	dreamEngine := dream.New(s, rt, emb, lx, vx, cfg.Dream, logger)
	sched.AddJob(scheduler.NewIdleJob(dreamEngine.Name(), disp.Activity,
		time.Duration(cfg.Dream.IdleTimeoutSeconds)*time.Second, dreamEngine.Run), 30*time.Second)

	sched.Start(ctx)
	defer sched.Stop()

	server := mcp.NewServer(registry, mcp.ServerInfo{Name: cfg.Server.Name, Version: version}, logger)

	if cfg.Transport.Mode == "http" {
		return runHTTP(ctx, server, cfg, logger)
	}
	return server.Run(ctx)
}

func runHTTP(ctx context.Context, server *mcp.Server, cfg *config.Config, logger *slog.Logger) error {
	httpServer := mcp.NewHTTPServer(server, cfg.Transport.CORSOrigins, logger)
	addr := cfg.Transport.Host + ":" + cfg.Transport.Port
	httpSrv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Handler(),
		ReadTimeout: time.Duration(cfg.Transport.RequestDeadlineSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("daem0nmcp listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
