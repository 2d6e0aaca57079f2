package web

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hpungsan/memomind/internal/artifact"
	"github.com/hpungsan/memomind/internal/db"
	"github.com/hpungsan/memomind/internal/document"
	"github.com/hpungsan/memomind/internal/errors"
	"github.com/hpungsan/memomind/internal/library"
	"github.com/hpungsan/memomind/internal/logger"
	"github.com/hpungsan/memomind/internal/session"
)

// Artifacts looks up and releases local PDF references.
type Artifacts interface {
	Open(ctx context.Context, id string) (*db.Artifact, error)
	Release(ctx context.Context, ref *artifact.Ref) error
}

// Library is the saved-content façade.
type Library interface {
	List(ctx context.Context, kind document.Kind, userID string) ([]document.Summary, error)
	Load(ctx context.Context, kind document.Kind, userID, itemID string) (*library.Loaded, error)
	Delete(ctx context.Context, kind document.Kind, userID, itemID string) error
}

// Identity supplies the signed-in user.
type Identity interface {
	Require(ctx context.Context) (session.Identity, error)
}

// Handlers contains HTTP route handlers for the local viewer.
type Handlers struct {
	artifacts Artifacts
	library   Library
	identity  Identity
	log       logger.Logger
	renderer  *Renderer

	mu      sync.Mutex
	shown   map[string]*artifact.Ref // notes PDF per user and item
	shelves map[string]*library.Shelf
}

// NewHandlers wires the viewer's collaborators.
func NewHandlers(artifacts Artifacts, lib Library, identity Identity, log logger.Logger) *Handlers {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handlers{
		artifacts: artifacts,
		library:   lib,
		identity:  identity,
		log:       log,
		shown:     make(map[string]*artifact.Ref),
		shelves:   make(map[string]*library.Shelf),
	}
}

// Close releases every notes PDF the viewer is still showing.
func (h *Handlers) Close(ctx context.Context) {
	h.mu.Lock()
	shown := h.shown
	h.shown = make(map[string]*artifact.Ref)
	h.mu.Unlock()
	for _, ref := range shown {
		h.release(ctx, ref)
	}
}

// HandleArtifact handles GET /artifacts/{id}: the PDF bytes of a live
// reference. Released references are 404.
func (h *Handlers) HandleArtifact(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("artifact ID is required"))
		return
	}

	a, err := h.artifacts.Open(r.Context(), id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	f, err := os.Open(a.Path)
	if err != nil {
		h.log.Warn("web", "artifact file missing", map[string]any{"id": id, "error": err.Error()})
		h.renderer.renderError(w, r, errors.NewNotFound(id))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+strings.ReplaceAll(a.Filename, `"`, "")+`"`)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, a.Filename, time.Unix(a.CreatedAt, 0), f)
}

// HandleSaved handles GET /saved/{kind}: the saved list for the signed-in user.
func (h *Handlers) HandleSaved(w http.ResponseWriter, r *http.Request) {
	kind, err := document.ParseKind(r.PathValue("kind"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	id, err := h.identity.Require(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	shelf := h.shelf(kind, id.UserID)
	if err := shelf.Refresh(r.Context()); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	items := shelf.Items()
	if limit := parseIntParam(r, "limit", 0); limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, map[string]any{"kind": kind, "items": items})
		return
	}

	h.renderer.renderPage(w, r, "saved", SavedPageData{
		PageData: PageData{
			Title:   "Saved " + kindLabel(kind),
			Version: h.renderer.version,
			Nav:     string(kind),
		},
		Kind:  kind,
		Items: items,
	})
}

// HandleDelete handles DELETE /saved/{kind}/{itemId}.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	kind, err := document.ParseKind(r.PathValue("kind"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	itemID := r.PathValue("itemId")
	if itemID == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("item ID is required"))
		return
	}
	id, err := h.identity.Require(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	shelf := h.shelf(kind, id.UserID)
	if err := shelf.Remove(r.Context(), itemID); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	listPath := "/saved/" + string(kind)
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", listPath)
		w.WriteHeader(http.StatusOK)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, map[string]any{"deleted": true, "itemId": itemID, "items": shelf.Items()})
		return
	}
	http.Redirect(w, r, listPath, http.StatusSeeOther)
}

// HandleNotes handles GET /notes/{itemId}: a saved note, embedded as a PDF
// when the export returned one, else rendered from its structure.
func (h *Handlers) HandleNotes(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("itemId")
	if itemID == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("item ID is required"))
		return
	}
	id, err := h.identity.Require(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	loaded, err := h.library.Load(r.Context(), document.KindNotes, id.UserID, itemID)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.show(r.Context(), id.UserID+"/"+itemID, loaded.PDF)

	data := NotesPageData{
		PageData: PageData{
			Title:   document.DefaultNotesTitle,
			Version: h.renderer.version,
			Nav:     string(document.KindNotes),
		},
		ItemID: itemID,
	}
	if note := loaded.Document.Notes; note != nil {
		data.Title = note.Title
		data.RenderedHTML = h.renderer.renderMarkdown(note.Markdown())
	}
	if loaded.PDF != nil {
		data.PDFURL = pdfURL(loaded.PDF)
	}
	data.Empty = data.PDFURL == "" && data.RenderedHTML == ""

	h.renderer.renderPage(w, r, "notes", data)
}

// show makes ref the PDF displayed for key and releases the one it replaces.
func (h *Handlers) show(ctx context.Context, key string, ref *artifact.Ref) {
	h.mu.Lock()
	prev := h.shown[key]
	if ref != nil && ref.Owned {
		h.shown[key] = ref
	} else {
		delete(h.shown, key)
	}
	h.mu.Unlock()
	if prev != nil && prev != ref {
		h.release(ctx, prev)
	}
}

func (h *Handlers) release(ctx context.Context, ref *artifact.Ref) {
	if err := h.artifacts.Release(context.WithoutCancel(ctx), ref); err != nil {
		h.log.Warn("web", "failed to release notes PDF", map[string]any{"id": ref.ID, "error": err.Error()})
	}
}

// shelf returns the saved list for kind and user, creating it on first use.
func (h *Handlers) shelf(kind document.Kind, userID string) *library.Shelf {
	key := string(kind) + "/" + userID
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.shelves[key]
	if !ok {
		s = library.NewShelf(h.library, kind, userID)
		h.shelves[key] = s
	}
	return s
}

// pdfURL returns a same-origin path for owned refs so the embed passes the
// viewer's frame policy; remote and data URLs are used as given.
func pdfURL(ref *artifact.Ref) string {
	if ref.Owned {
		return "/artifacts/" + ref.ID
	}
	return ref.URL
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
