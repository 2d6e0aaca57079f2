package mcp

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/memomind/internal/document"
	"github.com/hpungsan/memomind/internal/errors"
	"github.com/hpungsan/memomind/internal/library"
	"github.com/hpungsan/memomind/internal/localfile"
	"github.com/hpungsan/memomind/internal/routes"
	"github.com/hpungsan/memomind/internal/session"
	"github.com/hpungsan/memomind/internal/workflow"
)

// Identity supplies the signed-in user.
type Identity interface {
	Require(ctx context.Context) (session.Identity, error)
}

// Library is the saved-content façade.
type Library interface {
	Save(ctx context.Context, kind document.Kind, userID, itemID, itemName string, doc document.Document) (json.RawMessage, error)
	List(ctx context.Context, kind document.Kind, userID string) ([]document.Summary, error)
	Load(ctx context.Context, kind document.Kind, userID, itemID string) (*library.Loaded, error)
	Delete(ctx context.Context, kind document.Kind, userID, itemID string) error
}

// Uploader sends a PDF to the backend.
type Uploader interface {
	Upload(ctx context.Context, userID, filename string, r io.Reader, progress func(sent, total int64)) (*document.Item, error)
}

// page is the part of a workflow the tools drive.
type page interface {
	State() workflow.State
	ItemName() string
	Mount(ctx context.Context) (bool, error)
	Generate(ctx context.Context) error
	Retry(ctx context.Context) error
	FollowUp(ctx context.Context, prompt string) error
	Document() document.Document
	Close(ctx context.Context) error
}

// Handlers holds dependencies for MCP tool handlers. Generated pages are
// kept per (kind, item) so follow-ups revise the same content.
type Handlers struct {
	deps     workflow.Deps
	identity Identity
	library  Library
	uploader Uploader

	mu    sync.Mutex
	pages map[string]page
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps workflow.Deps, identity Identity, lib Library, up Uploader) *Handlers {
	return &Handlers{
		deps:     deps,
		identity: identity,
		library:  lib,
		uploader: up,
		pages:    make(map[string]page),
	}
}

// Request types for each tool

// GenerateRequest represents the arguments for the generate tools.
type GenerateRequest struct {
	ItemID   string `json:"item_id"`
	ItemName string `json:"item_name,omitempty"`
}

// FollowUpRequest represents the arguments for the follow-up tools.
type FollowUpRequest struct {
	ItemID string `json:"item_id"`
	Prompt string `json:"prompt"`
}

// ContentRequest represents the arguments for load and delete.
type ContentRequest struct {
	Kind   string `json:"kind"`
	ItemID string `json:"item_id"`
}

// SaveRequest represents the arguments for content_save.
type SaveRequest struct {
	Kind     string          `json:"kind"`
	ItemID   string          `json:"item_id"`
	ItemName string          `json:"item_name,omitempty"`
	Document json.RawMessage `json:"document,omitempty"`
}

// ListRequest represents the arguments for content_list.
type ListRequest struct {
	Kind  string `json:"kind"`
	Limit int    `json:"limit,omitempty"`
}

// UploadRequest represents the arguments for file_upload.
type UploadRequest struct {
	Path string `json:"path"`
}

// Handler implementations

func (h *Handlers) generate(kind document.Kind) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := decode[GenerateRequest](req)
		if err != nil {
			return errorResult(errors.NewInvalidRequest(err.Error())), nil
		}
		if input.ItemID == "" {
			return errorResult(errors.NewInvalidRequest("item_id is required")), nil
		}

		p := h.page(kind, input.ItemID, input.ItemName)
		switch p.State().Phase {
		case workflow.Idle:
			var ran bool
			ran, err = p.Mount(ctx)
			if err == nil && !ran && p.State().Phase == workflow.Idle {
				// Another call for this item holds the fetch-once slot.
				err = errors.NewBusy(workflow.Generating.String())
			}
		case workflow.Failed:
			err = p.Retry(ctx)
		default:
			// Ready, or a call is in flight; report the current view.
		}
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(view(p))
	}
}

func (h *Handlers) followUp(kind document.Kind) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := decode[FollowUpRequest](req)
		if err != nil {
			return errorResult(errors.NewInvalidRequest(err.Error())), nil
		}

		p, ok := h.lookup(kind, input.ItemID)
		if !ok {
			return errorResult(errors.NewInvalidRequest("no content to follow up on; call " + string(kind) + "_generate first")), nil
		}
		if err := p.FollowUp(ctx, input.Prompt); err != nil {
			apiErr, isAPI := errors.As(err)
			if !isAPI {
				apiErr = errors.NewInternal(err)
			}
			// The page keeps its prior content; report the failure the way
			// the alert would read.
			return errorResult(&errors.APIError{
				Code:    apiErr.Code,
				Status:  apiErr.Status,
				Message: workflow.FollowUpAlert(err),
				Details: apiErr.Details,
			}), nil
		}
		return successResult(view(p))
	}
}

// HandleSave handles the content_save tool call.
func (h *Handlers) HandleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SaveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	kind, err := document.ParseKind(input.Kind)
	if err != nil {
		return errorResult(err), nil
	}
	id, err := h.identity.Require(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	itemName := input.ItemName
	var doc document.Document
	if len(input.Document) > 0 && string(input.Document) != "null" {
		doc, err = document.Parse(kind, input.Document)
		if err != nil {
			return errorResult(err), nil
		}
	} else {
		p, ok := h.lookup(kind, input.ItemID)
		if !ok {
			return errorResult(errors.NewInvalidRequest("nothing generated for this item; pass a document")), nil
		}
		doc = p.Document()
		if itemName == "" {
			itemName = p.ItemName()
		}
	}

	ack, err := h.library.Save(ctx, kind, id.UserID, input.ItemID, itemName, doc)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"saved": true, "kind": kind, "item_id": input.ItemID, "response": ack})
}

// HandleList handles the content_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	kind, err := document.ParseKind(input.Kind)
	if err != nil {
		return errorResult(err), nil
	}
	id, err := h.identity.Require(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	items, err := h.library.List(ctx, kind, id.UserID)
	if err != nil {
		return errorResult(err), nil
	}
	if input.Limit > 0 && input.Limit < len(items) {
		items = items[:input.Limit]
	}
	return successResult(map[string]any{"kind": kind, "items": items})
}

// HandleLoad handles the content_load tool call.
func (h *Handlers) HandleLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ContentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	kind, err := document.ParseKind(input.Kind)
	if err != nil {
		return errorResult(err), nil
	}
	id, err := h.identity.Require(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	loaded, err := h.library.Load(ctx, kind, id.UserID, input.ItemID)
	if err != nil {
		return errorResult(err), nil
	}
	out := map[string]any{"kind": kind, "item_id": input.ItemID, "document": loaded.Document.Payload()}
	if loaded.PDF != nil {
		out["pdf"] = loaded.PDF
	}
	return successResult(out)
}

// HandleDelete handles the content_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ContentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	kind, err := document.ParseKind(input.Kind)
	if err != nil {
		return errorResult(err), nil
	}
	id, err := h.identity.Require(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	if err := h.library.Delete(ctx, kind, id.UserID, input.ItemID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"deleted": true, "kind": kind, "item_id": input.ItemID})
}

// HandleUpload handles the file_upload tool call.
func (h *Handlers) HandleUpload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UploadRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if _, err := localfile.Check(input.Path, localfile.Read); err != nil {
		return errorResult(err), nil
	}
	id, err := h.identity.Require(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	f, err := localfile.Open(input.Path)
	if err != nil {
		return errorResult(err), nil
	}
	defer f.Close()

	item, err := h.uploader.Upload(ctx, id.UserID, filepath.Base(input.Path), f, nil)
	if err != nil {
		return errorResult(err), nil
	}
	paths := make(map[string]string, len(document.Kinds))
	for _, k := range document.Kinds {
		paths[string(k)] = routes.GeneratePath(k, item.ItemName, item.ItemID)
	}
	return successResult(map[string]any{"item": item, "routes": paths})
}

// Close closes every open page, releasing their PDF references.
func (h *Handlers) Close(ctx context.Context) {
	h.mu.Lock()
	pages := h.pages
	h.pages = make(map[string]page)
	h.mu.Unlock()
	for _, p := range pages {
		_ = p.Close(ctx)
	}
}

func pageKey(kind document.Kind, itemID string) string {
	return string(kind) + ":" + itemID
}

// page returns the open page for (kind, itemID), creating it when absent.
func (h *Handlers) page(kind document.Kind, itemID, itemName string) page {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := pageKey(kind, itemID)
	if p, ok := h.pages[key]; ok {
		return p
	}
	var p page
	switch kind {
	case document.KindNotes:
		p = workflow.NewNotes(h.deps, itemID, itemName)
	case document.KindMCQs:
		p = workflow.NewMCQs(h.deps, itemID, itemName)
	default:
		p = workflow.NewFlashcards(h.deps, itemID, itemName)
	}
	h.pages[key] = p
	return p
}

func (h *Handlers) lookup(kind document.Kind, itemID string) (page, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pages[pageKey(kind, itemID)]
	return p, ok
}

// view is the tool result for a page.
func view(p page) any {
	switch w := p.(type) {
	case *workflow.Notes:
		v := w.View()
		return map[string]any{"state": v.State, "showing": v.Showing(), "note": v.Note, "pdf": v.PDF}
	case *workflow.MCQs:
		v := w.View()
		return map[string]any{"state": v.State, "mcqs": v.Set}
	case *workflow.Flashcards:
		v := w.View()
		return map[string]any{"state": v.State, "flashcards": v.Deck}
	}
	return map[string]any{"state": p.State()}
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if apiErr, ok := errors.As(err); ok {
		msg := apiErr.Message
		// Keep wrapper context added with fmt.Errorf("...: %w", err).
		if wrapped := err.Error(); wrapped != apiErr.Error() {
			msg = strings.TrimSuffix(wrapped, apiErr.Error()) + apiErr.Message
		}
		errorObj := map[string]any{
			"code":    apiErr.Code,
			"message": msg,
			"status":  apiErr.Status,
		}
		if apiErr.Code != errors.ErrInternal && apiErr.Details != nil {
			errorObj["details"] = apiErr.Details
		}
		if apiErr.Data != nil {
			errorObj["data"] = apiErr.Data
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
