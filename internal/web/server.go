package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hpungsan/memomind/internal/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// NewServer creates the local viewer. It serves artifact references and
// renders saved content for the signed-in user.
func NewServer(h *Handlers, version, bind string, port int) (*http.Server, error) {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}
	h.renderer = NewRenderer(templateSub, version)
	h.renderer.log = h.log

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/saved/notes", http.StatusFound)
	})
	mux.HandleFunc("GET /artifacts/{id}", h.HandleArtifact)
	mux.HandleFunc("GET /saved/{kind}", h.HandleSaved)
	mux.HandleFunc("DELETE /saved/{kind}/{itemId}", h.HandleDelete)
	mux.HandleFunc("GET /notes/{itemId}", h.HandleNotes)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           securityHeaders(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// securityHeaders adds security-related HTTP headers to all responses.
// Framing is same-origin so the notes page can embed its own PDFs.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'; object-src 'self' data: https:; frame-src 'self' data: https:; frame-ancestors 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		next.ServeHTTP(w, r)
	})
}

// Run starts the server and shuts it down on SIGINT/SIGTERM. onStop runs
// after shutdown; the CLI uses it to sweep artifact references.
func Run(srv *http.Server, log logger.Logger, onStop func(context.Context)) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("web", "viewer running", map[string]any{"url": "http://" + srv.Addr})
	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn("web", "viewer is binding to all interfaces and may be accessible from the network", nil)
	}

	var err error
	select {
	case err = <-errCh:
	case <-sigCh:
		log.Info("web", "shutting down", nil)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = srv.Shutdown(ctx)
		cancel()
	}
	if onStop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		onStop(ctx)
		cancel()
	}
	return err
}
