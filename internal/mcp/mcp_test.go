package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/memomind/internal/artifact"
	"github.com/hpungsan/memomind/internal/config"
	"github.com/hpungsan/memomind/internal/dedupe"
	"github.com/hpungsan/memomind/internal/document"
	"github.com/hpungsan/memomind/internal/errors"
	"github.com/hpungsan/memomind/internal/library"
	"github.com/hpungsan/memomind/internal/session"
	"github.com/hpungsan/memomind/internal/transport"
	"github.com/hpungsan/memomind/internal/workflow"
)

const twoPlusTwo = `{"questions":[{"question":"2+2?","options":["3","4","5"],"answer":1}]}`

func jsonResponse(body string) *transport.Response {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return &transport.Response{Status: 200, Header: h, Body: []byte(body)}
}

type fakeBackend struct {
	mu        sync.Mutex
	generates int
	followUp  func(prompt string) (*transport.Response, error)
}

func (f *fakeBackend) Generate(_ context.Context, kind document.Kind, _, _ string) (*transport.Response, error) {
	f.mu.Lock()
	f.generates++
	f.mu.Unlock()
	switch kind {
	case document.KindNotes:
		return jsonResponse(`{"title":"Cells","content":"# Membrane\nLipids."}`), nil
	case document.KindMCQs:
		return jsonResponse(twoPlusTwo), nil
	}
	return jsonResponse(`{"flashcards":[{"question":"ATP?","answer":"Energy"}]}`), nil
}

func (f *fakeBackend) Export(context.Context, string, string) (*transport.Response, error) {
	h := http.Header{}
	h.Set("Content-Type", "application/pdf")
	return &transport.Response{Status: 200, Header: h, Body: []byte("%PDF-1.7\n%%EOF")}, nil
}

func (f *fakeBackend) FollowUp(_ context.Context, _ document.Kind, _, _, prompt string) (*transport.Response, error) {
	if f.followUp == nil {
		return nil, errors.NewServerError(500, "quota exceeded", nil)
	}
	return f.followUp(prompt)
}

type fakeIdentity struct {
	id session.Identity
}

func (f fakeIdentity) Get(context.Context) (session.Identity, error) { return f.id, nil }

func (f fakeIdentity) Require(context.Context) (session.Identity, error) {
	if !f.id.Present() {
		return session.Identity{}, errors.NewAuthRequired()
	}
	return f.id, nil
}

var signedIn = fakeIdentity{id: session.Identity{Token: "tok", UserID: "ada"}}

type fakeArtifacts struct {
	mu       sync.Mutex
	next     int
	released []string
}

func (f *fakeArtifacts) Adopt(_ context.Context, _ string, b *artifact.Binary) (*artifact.Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := fmt.Sprintf("ref-%d", f.next)
	return &artifact.Ref{ID: id, URL: "http://viewer/artifacts/" + id, Filename: b.Filename, Owned: true}, nil
}

func (f *fakeArtifacts) Release(_ context.Context, ref *artifact.Ref) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref != nil {
		f.released = append(f.released, ref.ID)
	}
	return nil
}

type savedDoc struct {
	kind     document.Kind
	itemName string
	doc      document.Document
}

type fakeLibrary struct {
	saved   []savedDoc
	items   []document.Summary
	deleted []string
	loadErr error
}

func (f *fakeLibrary) Save(_ context.Context, kind document.Kind, _, _, itemName string, doc document.Document) (json.RawMessage, error) {
	f.saved = append(f.saved, savedDoc{kind: kind, itemName: itemName, doc: doc})
	return json.RawMessage(`{"ok":true}`), nil
}

func (f *fakeLibrary) List(context.Context, document.Kind, string) ([]document.Summary, error) {
	return f.items, nil
}

func (f *fakeLibrary) Load(_ context.Context, kind document.Kind, _, itemID string) (*library.Loaded, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	set, _ := document.NormalizeMCQs([]byte(twoPlusTwo))
	return &library.Loaded{Document: document.FromMCQs(set)}, nil
}

func (f *fakeLibrary) Delete(_ context.Context, _ document.Kind, _, itemID string) error {
	f.deleted = append(f.deleted, itemID)
	return nil
}

type fakeUploader struct {
	filename string
	body     string
}

func (f *fakeUploader) Upload(_ context.Context, userID, filename string, r io.Reader, _ func(sent, total int64)) (*document.Item, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.filename, f.body = filename, string(b)
	return &document.Item{ItemID: "item-9", ItemName: "Cells", OwnerUserID: userID}, nil
}

type fixture struct {
	h         *Handlers
	backend   *fakeBackend
	artifacts *fakeArtifacts
	library   *fakeLibrary
	uploader  *fakeUploader
	dedupe    *dedupe.Cache
}

func newFixture(t *testing.T, id fakeIdentity) *fixture {
	t.Helper()
	f := &fixture{
		backend:   &fakeBackend{},
		artifacts: &fakeArtifacts{},
		library:   &fakeLibrary{},
		uploader:  &fakeUploader{},
	}
	f.dedupe = dedupe.New(0)
	deps := workflow.Deps{Backend: f.backend, Identity: id, Artifacts: f.artifacts, Dedupe: f.dedupe}
	f.h = NewHandlers(deps, id, f.library, f.uploader)
	return f
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) *mcp.CallToolResult {
	t.Helper()
	result, err := handler(context.Background(), makeRequest(args))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return result
}

func TestGenerate_MCQs(t *testing.T) {
	f := newFixture(t, signedIn)
	gen := f.h.generate(document.KindMCQs)

	out := parseOutput(t, call(t, gen, map[string]any{"item_id": "item-1", "item_name": "Math"}))
	state := out["state"].(map[string]any)
	if state["phase"] != "ready" {
		t.Errorf("phase = %v, want ready", state["phase"])
	}
	set := out["mcqs"].(map[string]any)
	if set["totalQuestions"] != float64(1) {
		t.Errorf("totalQuestions = %v, want 1", set["totalQuestions"])
	}

	// A ready page is returned as-is.
	parseOutput(t, call(t, gen, map[string]any{"item_id": "item-1"}))
	if f.backend.generates != 1 {
		t.Errorf("generate calls = %d, want 1", f.backend.generates)
	}
}

func TestGenerate_NotesAdoptsPDF(t *testing.T) {
	f := newFixture(t, signedIn)

	out := parseOutput(t, call(t, f.h.generate(document.KindNotes), map[string]any{"item_id": "item-1"}))
	if out["showing"] != "pdf" {
		t.Errorf("showing = %v, want pdf", out["showing"])
	}
	pdf := out["pdf"].(map[string]any)
	if pdf["id"] != "ref-1" {
		t.Errorf("pdf id = %v, want ref-1", pdf["id"])
	}

	f.h.Close(context.Background())
	if len(f.artifacts.released) != 1 || f.artifacts.released[0] != "ref-1" {
		t.Errorf("released = %v, want [ref-1]", f.artifacts.released)
	}
}

func TestGenerate_NotesRepeatedCallsGenerateOnce(t *testing.T) {
	f := newFixture(t, signedIn)
	gen := f.h.generate(document.KindNotes)

	for i := 0; i < 3; i++ {
		out := parseOutput(t, call(t, gen, map[string]any{"item_id": "item-1"}))
		state := out["state"].(map[string]any)
		if state["phase"] != "ready" {
			t.Fatalf("call %d: phase = %v, want ready", i, state["phase"])
		}
	}
	if f.backend.generates != 1 {
		t.Errorf("generate calls = %d, want 1", f.backend.generates)
	}
	if !f.dedupe.Complete(dedupe.Key{Kind: document.KindNotes, ItemID: "item-1"}) {
		t.Error("initial generation was not recorded in the fetch-once cache")
	}
}

func TestGenerate_HeldFetchOnceSlotIsBusy(t *testing.T) {
	f := newFixture(t, signedIn)
	guard := f.dedupe.Guard(document.KindFlashcards)
	if !guard.Mount("item-1") {
		t.Fatal("expected to claim the slot")
	}

	gen := f.h.generate(document.KindFlashcards)
	assertErrorCode(t, call(t, gen, map[string]any{"item_id": "item-1"}), "BUSY")
	if f.backend.generates != 0 {
		t.Errorf("generate calls = %d, want 0", f.backend.generates)
	}

	guard.Reset()
	parseOutput(t, call(t, gen, map[string]any{"item_id": "item-1"}))
	if f.backend.generates != 1 {
		t.Errorf("generate calls = %d, want 1", f.backend.generates)
	}
}

func TestGenerate_Validation(t *testing.T) {
	f := newFixture(t, signedIn)
	assertErrorCode(t, call(t, f.h.generate(document.KindNotes), map[string]any{}), "INVALID_REQUEST")
}

func TestGenerate_SignedOut(t *testing.T) {
	f := newFixture(t, fakeIdentity{})
	assertErrorCode(t, call(t, f.h.generate(document.KindFlashcards), map[string]any{"item_id": "item-1"}), "AUTH_REQUIRED")
	if f.backend.generates != 0 {
		t.Errorf("generate calls = %d, want 0", f.backend.generates)
	}
}

func TestFollowUp_RequiresGenerate(t *testing.T) {
	f := newFixture(t, signedIn)
	result := call(t, f.h.followUp(document.KindMCQs), map[string]any{"item_id": "item-1", "prompt": "harder"})
	assertErrorCode(t, result, "INVALID_REQUEST")
	if !strings.Contains(extractErrorMessage(result), "mcqs_generate") {
		t.Errorf("message should name the generate tool, got: %s", extractErrorMessage(result))
	}
}

func TestFollowUp_ReplacesContent(t *testing.T) {
	f := newFixture(t, signedIn)
	f.backend.followUp = func(prompt string) (*transport.Response, error) {
		return jsonResponse(`{"flashcards":[{"question":"A","answer":"1"},{"question":"B","answer":"2"}]}`), nil
	}
	call(t, f.h.generate(document.KindFlashcards), map[string]any{"item_id": "item-1"})

	out := parseOutput(t, call(t, f.h.followUp(document.KindFlashcards), map[string]any{"item_id": "item-1", "prompt": "more"}))
	deck := out["flashcards"].(map[string]any)
	if deck["totalCards"] != float64(2) {
		t.Errorf("totalCards = %v, want 2", deck["totalCards"])
	}
}

func TestFollowUp_FailureKeepsContent(t *testing.T) {
	f := newFixture(t, signedIn)
	call(t, f.h.generate(document.KindMCQs), map[string]any{"item_id": "item-1"})

	result := call(t, f.h.followUp(document.KindMCQs), map[string]any{"item_id": "item-1", "prompt": "harder"})
	assertErrorCode(t, result, "SERVER_ERROR")
	if !strings.Contains(extractErrorMessage(result), "Follow-up failed (500): quota exceeded") {
		t.Errorf("unexpected message: %s", extractErrorMessage(result))
	}

	p, ok := f.h.lookup(document.KindMCQs, "item-1")
	if !ok {
		t.Fatal("page should still be open")
	}
	if p.State().Phase != workflow.Ready {
		t.Errorf("phase = %v, want ready", p.State().Phase)
	}
	if p.Document().MCQ.TotalQuestions != 1 {
		t.Errorf("prior questions lost")
	}
}

func TestHandleSave(t *testing.T) {
	t.Run("generated content", func(t *testing.T) {
		f := newFixture(t, signedIn)
		call(t, f.h.generate(document.KindMCQs), map[string]any{"item_id": "item-1", "item_name": "Math"})

		out := parseOutput(t, call(t, f.h.HandleSave, map[string]any{"kind": "mcqs", "item_id": "item-1"}))
		if out["saved"] != true {
			t.Errorf("saved = %v, want true", out["saved"])
		}
		if len(f.library.saved) != 1 {
			t.Fatalf("saves = %d, want 1", len(f.library.saved))
		}
		got := f.library.saved[0]
		if got.itemName != "Math" {
			t.Errorf("itemName = %q, want Math", got.itemName)
		}
		if got.doc.MCQ == nil || got.doc.MCQ.TotalQuestions != 1 {
			t.Errorf("unexpected document: %+v", got.doc)
		}
	})

	t.Run("explicit document", func(t *testing.T) {
		f := newFixture(t, signedIn)
		result := call(t, f.h.HandleSave, map[string]any{
			"kind":      "notes",
			"item_id":   "item-2",
			"item_name": "Bio",
			"document":  map[string]any{"title": "Cells", "content": "Lipids."},
		})
		parseOutput(t, result)
		if got := f.library.saved[0].doc; got.Notes == nil || got.Notes.Title != "Cells" {
			t.Errorf("unexpected document: %+v", got)
		}
	})

	t.Run("nothing generated", func(t *testing.T) {
		f := newFixture(t, signedIn)
		assertErrorCode(t, call(t, f.h.HandleSave, map[string]any{"kind": "mcqs", "item_id": "item-1"}), "INVALID_REQUEST")
	})

	t.Run("unknown kind", func(t *testing.T) {
		f := newFixture(t, signedIn)
		assertErrorCode(t, call(t, f.h.HandleSave, map[string]any{"kind": "essays", "item_id": "item-1"}), "INVALID_REQUEST")
	})
}

func TestHandleList(t *testing.T) {
	f := newFixture(t, signedIn)
	f.library.items = []document.Summary{{ItemID: "a"}, {ItemID: "b"}, {ItemID: "c"}}

	tests := []struct {
		name  string
		args  map[string]any
		count int
	}{
		{name: "all", args: map[string]any{"kind": "flashcards"}, count: 3},
		{name: "limit", args: map[string]any{"kind": "fc", "limit": 2}, count: 2},
		{name: "limit above count", args: map[string]any{"kind": "mcq", "limit": 10}, count: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := parseOutput(t, call(t, f.h.HandleList, tt.args))
			items := out["items"].([]any)
			if len(items) != tt.count {
				t.Errorf("items = %d, want %d", len(items), tt.count)
			}
		})
	}

	signedOut := newFixture(t, fakeIdentity{})
	assertErrorCode(t, call(t, signedOut.h.HandleList, map[string]any{"kind": "notes"}), "AUTH_REQUIRED")
}

func TestHandleLoad(t *testing.T) {
	f := newFixture(t, signedIn)
	out := parseOutput(t, call(t, f.h.HandleLoad, map[string]any{"kind": "mcqs", "item_id": "item-1"}))
	doc := out["document"].(map[string]any)
	if doc["totalQuestions"] != float64(1) {
		t.Errorf("totalQuestions = %v, want 1", doc["totalQuestions"])
	}
	if _, ok := out["pdf"]; ok {
		t.Error("mcqs load should not carry a pdf")
	}

	f.library.loadErr = errors.NewServerError(404, "not saved", nil)
	assertErrorCode(t, call(t, f.h.HandleLoad, map[string]any{"kind": "mcqs", "item_id": "item-1"}), "SERVER_ERROR")
}

func TestHandleDelete(t *testing.T) {
	f := newFixture(t, signedIn)
	out := parseOutput(t, call(t, f.h.HandleDelete, map[string]any{"kind": "notes", "item_id": "item-1"}))
	if out["deleted"] != true {
		t.Errorf("deleted = %v, want true", out["deleted"])
	}
	if len(f.library.deleted) != 1 || f.library.deleted[0] != "item-1" {
		t.Errorf("deleted = %v", f.library.deleted)
	}
}

func TestHandleUpload(t *testing.T) {
	f := newFixture(t, signedIn)
	path := filepath.Join(t.TempDir(), "cells.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.7"), 0600); err != nil {
		t.Fatal(err)
	}

	out := parseOutput(t, call(t, f.h.HandleUpload, map[string]any{"path": path}))
	if f.uploader.filename != "cells.pdf" || f.uploader.body != "%PDF-1.7" {
		t.Errorf("uploaded %q with body %q", f.uploader.filename, f.uploader.body)
	}
	paths := out["routes"].(map[string]any)
	if paths["notes"] != "/generate-notes/Cells/item-9" {
		t.Errorf("notes route = %v", paths["notes"])
	}

	assertErrorCode(t, call(t, f.h.HandleUpload, map[string]any{"path": "notes.txt"}), "INVALID_REQUEST")
	assertErrorCode(t, call(t, f.h.HandleUpload, map[string]any{"path": filepath.Join(t.TempDir(), "missing.pdf")}), "INVALID_REQUEST")
}

func TestServerRegistration(t *testing.T) {
	f := newFixture(t, signedIn)
	s := NewServer(f.h, config.DefaultConfig(), "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"notes_generate",
		"notes_follow_up",
		"mcqs_generate",
		"mcqs_follow_up",
		"flashcards_generate",
		"flashcards_follow_up",
		"content_save",
		"content_list",
		"content_load",
		"content_delete",
		"file_upload",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}

	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTypes(t *testing.T) {
	f := newFixture(t, signedIn)
	cfg := config.DefaultConfig()
	cfg.DisabledTypes = []string{"content"}
	cfg.DisabledTools = []string{"file_upload", "file_upload"}
	tools := NewServer(f.h, cfg, "test").ListTools()

	if len(tools) != 6 {
		t.Errorf("registered tool count = %d, want 6", len(tools))
	}
	for _, name := range []string{"content_save", "content_delete", "file_upload"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{name: "all valid", input: []string{"file_upload", "content_delete"}, wantLen: 0},
		{name: "one unknown", input: []string{"file_upload", "fake_tool"}, wantLen: 1},
		{name: "all unknown", input: []string{"foo", "bar", "baz"}, wantLen: 3},
		{name: "empty list", input: []string{}, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestValidateDisabledTypes(t *testing.T) {
	if unknown := ValidateDisabledTypes([]string{"notes", "file", "essays"}); len(unknown) != 1 || unknown[0] != "essays" {
		t.Errorf("ValidateDisabledTypes() = %v, want [essays]", unknown)
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != 11 {
		t.Errorf("AllToolNames() returned %d names, want 11", len(names))
	}
	for _, name := range names {
		if GetTypeForTool(name) == "" {
			t.Errorf("tool %q has no type prefix", name)
		}
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	r := errorResult(fmt.Errorf("load notes: %w", errors.NewNotFound("item-1")))

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrNotFound) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	msg := errObj["message"].(string)
	if !strings.Contains(msg, "load notes") {
		t.Errorf("message should contain wrapper context, got: %s", msg)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

func TestErrorResult_PlainError(t *testing.T) {
	errObj := errorObject(t, errorResult(fmt.Errorf("boom")))
	if errObj["code"] != "INTERNAL" || errObj["message"] != "an internal error occurred" {
		t.Errorf("unexpected error object: %v", errObj)
	}
}

// Helper functions

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	return payload["error"].(map[string]any)
}

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if !result.IsError {
		t.Errorf("expected error result, got success: %v", extractErrorMessage(result))
		return
	}
	if code := errorObject(t, result)["code"]; code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}
