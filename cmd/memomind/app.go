package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/hpungsan/memomind/internal/artifact"
	"github.com/hpungsan/memomind/internal/backend"
	"github.com/hpungsan/memomind/internal/config"
	"github.com/hpungsan/memomind/internal/dedupe"
	"github.com/hpungsan/memomind/internal/library"
	"github.com/hpungsan/memomind/internal/logger"
	"github.com/hpungsan/memomind/internal/mcp"
	"github.com/hpungsan/memomind/internal/routes"
	"github.com/hpungsan/memomind/internal/session"
	"github.com/hpungsan/memomind/internal/transport"
	"github.com/hpungsan/memomind/internal/web"
	"github.com/hpungsan/memomind/internal/workflow"
)

// app holds the wired client components shared by every command.
type app struct {
	cfg       *config.Config
	log       logger.Logger
	session   *session.Provider
	backend   *backend.Client
	artifacts *artifact.Registry
	library   *library.Library
	dedupe    *dedupe.Cache
}

func newApp(baseDir string, database *sql.DB, cfg *config.Config, log logger.Logger) *app {
	if log == nil {
		log = logger.NewNop()
	}
	sess := session.NewProvider(database, log)
	sess.OnExpired(func() {
		fmt.Fprintln(os.Stderr, "Session expired. Run 'memomind login' to sign in again.")
	})

	client := transport.New(cfg.APIBaseURL, sess,
		transport.WithTimeout(cfg.RequestTimeout()),
		transport.WithLogger(log),
	)
	be := backend.New(client, backend.Timeouts{
		Generate: cfg.GenerateTimeout(),
		Save:     cfg.SaveTimeout(),
	})
	registry := artifact.NewRegistry(database, baseDir, viewerURL(cfg), log)

	return &app{
		cfg:       cfg,
		log:       log,
		session:   sess,
		backend:   be,
		artifacts: registry,
		library:   library.New(be, registry, log),
		dedupe:    dedupe.New(cfg.DedupeTTL()),
	}
}

func viewerURL(cfg *config.Config) string {
	return fmt.Sprintf("http://%s:%d", cfg.ViewerBind, cfg.ViewerPort)
}

// deps returns the collaborators for a workflow instance.
func (a *app) deps() workflow.Deps {
	return workflow.Deps{
		Backend:   a.backend,
		Identity:  a.session,
		Artifacts: a.artifacts,
		Dedupe:    a.dedupe,
		Log:       a.log,
	}
}

// guard applies the route guard to path. A token whose exp claim has passed
// is cleared first so the guard sees the user as signed out.
func (a *app) guard(ctx context.Context, path string) error {
	if a.session.Stale(ctx, time.Now()) {
		a.log.Info("cli", "stored token has expired", nil)
		_ = a.session.Clear(ctx)
	}
	_, err := routes.Require(path, a.session.Token(ctx) != "")
	return err
}

func (a *app) mcpHandlers() *mcp.Handlers {
	return mcp.NewHandlers(a.deps(), a.session, a.library, a.backend)
}

func (a *app) webHandlers() *web.Handlers {
	return web.NewHandlers(a.artifacts, a.library, a.session, a.log)
}

// sweep releases the artifacts this process registered and still holds.
func (a *app) sweep(ctx context.Context) {
	n, err := a.artifacts.Sweep(ctx)
	if err != nil {
		a.log.Warn("cli", "artifact sweep failed", map[string]any{"error": err.Error()})
		return
	}
	a.log.Debug("cli", "artifacts swept", map[string]any{"count": n})
}
