package library

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/memomind/internal/artifact"
	"github.com/hpungsan/memomind/internal/backend"
	"github.com/hpungsan/memomind/internal/document"
	"github.com/hpungsan/memomind/internal/errors"
	"github.com/hpungsan/memomind/internal/transport"
)

type fakeBackend struct {
	saved   []backend.SaveRequest
	list    []document.Summary
	load    func(kind document.Kind) (*transport.Response, error)
	deleted []string
	delErr  error
}

func (f *fakeBackend) Save(_ context.Context, _ document.Kind, req backend.SaveRequest) (json.RawMessage, error) {
	f.saved = append(f.saved, req)
	return json.RawMessage(`{"ok":true}`), nil
}

func (f *fakeBackend) Fetch(context.Context, document.Kind, string) ([]document.Summary, error) {
	return f.list, nil
}

func (f *fakeBackend) Load(_ context.Context, kind document.Kind, _, _ string) (*transport.Response, error) {
	return f.load(kind)
}

func (f *fakeBackend) Delete(_ context.Context, _ document.Kind, _, itemID string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.deleted = append(f.deleted, itemID)
	return nil
}

type fakeAdopter struct{ adopted int }

func (f *fakeAdopter) Adopt(_ context.Context, owner string, b *artifact.Binary) (*artifact.Ref, error) {
	f.adopted++
	return &artifact.Ref{ID: owner, Filename: b.Filename, Owned: true}, nil
}

func response(ct, body string) *transport.Response {
	h := http.Header{}
	h.Set("Content-Type", ct)
	return &transport.Response{Status: 200, Header: h, Body: []byte(body)}
}

func TestSave_StampsDateAndValidates(t *testing.T) {
	b := &fakeBackend{}
	lib := New(b, nil, nil)
	lib.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	note := &document.Notes{Title: "Cells", Content: "Mitochondria."}
	_, err := lib.Save(context.Background(), document.KindNotes, "ada", "item-1", "Biology", document.FromNotes(note))
	require.NoError(t, err)
	require.Len(t, b.saved, 1)
	require.Equal(t, "Biology", b.saved[0].ItemName)

	sent, ok := b.saved[0].Document.(*document.Notes)
	require.True(t, ok)
	require.Equal(t, "2026-03-01T12:00:00Z", sent.Date)
	require.Equal(t, "Cells", sent.Title)

	// The caller's note is shared with a live workflow; it is never written.
	require.NotSame(t, note, sent)
	require.Empty(t, note.Date)
}

func TestSave_Rejections(t *testing.T) {
	lib := New(&fakeBackend{}, nil, nil)
	ctx := context.Background()
	set := document.FromMCQs(&document.MCQSet{Questions: []document.Question{{Question: "q", Options: []string{"a", "b"}, Answer: 5}}})

	tests := []struct {
		name   string
		kind   document.Kind
		userID string
		itemID string
		name2  string
		doc    document.Document
		code   errors.ErrorCode
	}{
		{"no user", document.KindMCQs, "", "i", "n", set, errors.ErrAuthRequired},
		{"no item", document.KindMCQs, "u", "", "n", set, errors.ErrInvalidRequest},
		{"no name", document.KindMCQs, "u", "i", "", set, errors.ErrInvalidRequest},
		{"kind mismatch", document.KindNotes, "u", "i", "n", set, errors.ErrInvalidRequest},
		{"empty", document.KindFlashcards, "u", "i", "n", document.Document{Kind: document.KindFlashcards}, errors.ErrInvalidRequest},
		{"answer out of range", document.KindMCQs, "u", "i", "n", set, errors.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lib.Save(ctx, tt.kind, tt.userID, tt.itemID, tt.name2, tt.doc)
			require.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestLoad_NotesPDF(t *testing.T) {
	b := &fakeBackend{load: func(document.Kind) (*transport.Response, error) {
		return response("application/pdf", "%PDF-1.4 body"), nil
	}}
	a := &fakeAdopter{}
	got, err := New(b, a, nil).Load(context.Background(), document.KindNotes, "ada", "item-1")
	require.NoError(t, err)
	require.NotNil(t, got.PDF)
	require.Equal(t, "saved:item-1", got.PDF.ID)
	require.Equal(t, 1, a.adopted)
}

func TestLoad_NotesStructured(t *testing.T) {
	b := &fakeBackend{load: func(document.Kind) (*transport.Response, error) {
		return response("application/json", `{"title":"Cells","sections":[{"heading":"Intro","content":"Hi"}]}`), nil
	}}
	got, err := New(b, &fakeAdopter{}, nil).Load(context.Background(), document.KindNotes, "ada", "item-1")
	require.NoError(t, err)
	require.Nil(t, got.PDF)
	require.Equal(t, "Cells", got.Document.Notes.Title)
}

func TestLoad_NotesMalformed(t *testing.T) {
	b := &fakeBackend{load: func(document.Kind) (*transport.Response, error) {
		return response("application/json", `{"status":"queued"}`), nil
	}}
	_, err := New(b, &fakeAdopter{}, nil).Load(context.Background(), document.KindNotes, "ada", "item-1")
	require.True(t, errors.Is(err, errors.ErrUnexpectedFormat))
}

func TestLoad_UnwrapsSavedMCQ(t *testing.T) {
	b := &fakeBackend{load: func(document.Kind) (*transport.Response, error) {
		return response("application/json", `{"mcq":{"questions":[{"question":"2+2?","options":["3","4"],"answer":1}]}}`), nil
	}}
	got, err := New(b, nil, nil).Load(context.Background(), document.KindMCQs, "ada", "item-1")
	require.NoError(t, err)
	require.Len(t, got.Document.MCQ.Questions, 1)
}

func TestLoad_FlashcardFailureIsEmptyDeck(t *testing.T) {
	b := &fakeBackend{load: func(document.Kind) (*transport.Response, error) {
		return nil, errors.NewServerError(500, "gone", nil)
	}}
	got, err := New(b, nil, nil).Load(context.Background(), document.KindFlashcards, "ada", "item-1")
	require.Error(t, err)
	require.NotNil(t, got)
	require.Empty(t, got.Document.Flashcards.Flashcards)
}

func TestShelf_RemoveIsOptimistic(t *testing.T) {
	b := &fakeBackend{list: []document.Summary{{ItemID: "a"}, {ItemID: "b"}}}
	s := New(b, nil, nil).Shelf(document.KindMCQs, "ada")
	ctx := context.Background()

	require.NoError(t, s.Refresh(ctx))
	require.Len(t, s.Items(), 2)

	require.NoError(t, s.Remove(ctx, "a"))
	require.Equal(t, []document.Summary{{ItemID: "b"}}, s.Items())
	require.Equal(t, []string{"a"}, b.deleted)

	b.delErr = errors.NewServerError(500, "", nil)
	require.Error(t, s.Remove(ctx, "b"))
	require.Len(t, s.Items(), 1)
}
