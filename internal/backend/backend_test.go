package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/memomind/internal/document"
	"github.com/hpungsan/memomind/internal/errors"
	"github.com/hpungsan/memomind/internal/transport"
)

type recorded struct {
	Method string
	Path   string
	Query  map[string]string
	Body   string
}

// recorder is a fake backend that records every call.
type recorder struct {
	mu    sync.Mutex
	calls []recorded
	reply func(w http.ResponseWriter, r *http.Request)
}

func (rec *recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	q := map[string]string{}
	for k := range r.URL.Query() {
		q[k] = r.URL.Query().Get(k)
	}
	rec.mu.Lock()
	rec.calls = append(rec.calls, recorded{Method: r.Method, Path: r.URL.Path, Query: q, Body: string(body)})
	rec.mu.Unlock()
	if rec.reply != nil {
		rec.reply(w, r)
		return
	}
	_, _ = w.Write([]byte(`{}`))
}

func setup(t *testing.T, reply func(w http.ResponseWriter, r *http.Request)) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{reply: reply}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	return New(transport.New(srv.URL+"/api", nil), Timeouts{Generate: time.Second, Save: time.Second}), rec
}

func TestGenerate_SendsTaskAndOptions(t *testing.T) {
	c, rec := setup(t, nil)

	_, err := c.Generate(context.Background(), document.KindNotes, "ada", "item-1")
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), document.KindMCQs, "ada", "item-1")
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), document.KindFlashcards, "ada", "item-1")
	require.NoError(t, err)

	require.Len(t, rec.calls, 3)
	notes := rec.calls[0]
	require.Equal(t, "/api/generate", notes.Path)
	require.Equal(t, "notes", notes.Query["task"])
	require.Equal(t, "structured", notes.Query["format"])
	require.Equal(t, "true", notes.Query["includeKeyPoints"])

	require.Equal(t, "10", rec.calls[1].Query["count"])
	require.Equal(t, "medium", rec.calls[1].Query["difficulty"])
	require.Equal(t, "15", rec.calls[2].Query["count"])
	require.Equal(t, "true", rec.calls[2].Query["includeCategories"])
}

func TestGenerate_MissingIDsRejectedLocally(t *testing.T) {
	c, rec := setup(t, nil)

	_, err := c.Generate(context.Background(), document.KindNotes, "", "item")
	require.True(t, errors.Is(err, errors.ErrAuthRequired))

	_, err = c.Generate(context.Background(), document.KindNotes, "ada", "")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	require.Empty(t, rec.calls)
}

func TestFollowUp(t *testing.T) {
	c, rec := setup(t, nil)

	_, err := c.FollowUp(context.Background(), document.KindMCQs, "ada", "item-1", "make them harder")
	require.NoError(t, err)

	call := rec.calls[0]
	require.Equal(t, http.MethodPost, call.Method)
	require.Equal(t, "/api/follow-up", call.Path)
	require.Equal(t, "mcqs", call.Query["task"])
	require.JSONEq(t, `{"prompt":"make them harder"}`, call.Body)

	_, err = c.FollowUp(context.Background(), document.KindMCQs, "ada", "item-1", "  ")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	require.Len(t, rec.calls, 1)
}

func TestSave(t *testing.T) {
	c, rec := setup(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"saved"}`))
	})

	ack, err := c.Save(context.Background(), document.KindNotes, SaveRequest{
		UserID: "ada", ItemID: "item-1", ItemName: "Lecture 1",
		Document: &document.Notes{Title: "T"},
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"message":"saved"}`, string(ack))

	call := rec.calls[0]
	require.Equal(t, "/api/save/notes", call.Path)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(call.Body), &body))
	require.Equal(t, "Lecture 1", body["itemName"])
	require.Equal(t, "T", body["document"].(map[string]any)["title"])

	_, err = c.Save(context.Background(), document.KindNotes, SaveRequest{UserID: "ada", ItemID: "item-1"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestFetch_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"data wrapper", `{"data":[{"itemId":"a","itemName":"A","createdAt":"2026-01-01T00:00:00Z"}]}`, 1},
		{"bare array", `[{"itemId":"a"},{"itemId":"b"}]`, 2},
		{"kind key", `{"mcqs":[{"itemId":"a"}]}`, 1},
		{"no list", `{"message":"nothing"}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := setup(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			got, err := c.Fetch(context.Background(), document.KindMCQs, "ada")
			require.NoError(t, err)
			require.Len(t, got, tt.want)
			require.NotNil(t, got)
			require.Equal(t, "/api/fetch/mcqs", rec.calls[0].Path)
			require.Equal(t, "ada", rec.calls[0].Query["userId"])
		})
	}
}

func TestLoad_NotesUsesExport(t *testing.T) {
	c, rec := setup(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF"))
	})

	resp, err := c.Load(context.Background(), document.KindNotes, "ada", "item-1")
	require.NoError(t, err)
	require.Equal(t, "application/pdf", resp.ContentType())
	require.Equal(t, "/api/export", rec.calls[0].Path)

	_, err = c.Load(context.Background(), document.KindFlashcards, "ada", "item-1")
	require.NoError(t, err)
	require.Equal(t, "/api/load/flashcards", rec.calls[1].Path)
}

func TestDelete(t *testing.T) {
	c, rec := setup(t, nil)
	require.NoError(t, c.Delete(context.Background(), document.KindFlashcards, "ada", "item-1"))
	require.Equal(t, http.MethodDelete, rec.calls[0].Method)
	require.Equal(t, "/api/delete/flashcards", rec.calls[0].Path)
	require.Equal(t, "item-1", rec.calls[0].Query["itemId"])
}

func TestUpload(t *testing.T) {
	c, rec := setup(t, func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile(UploadField)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.Close()
		_, _ = w.Write([]byte(`{"itemId":"item-9","itemName":"Lecture 9"}`))
	})

	var calls int
	item, err := c.Upload(context.Background(), "ada", "lecture9.pdf", strings.NewReader("%PDF"), func(sent, total int64) { calls++ })
	require.NoError(t, err)
	require.Equal(t, "item-9", item.ItemID)
	require.Equal(t, "Lecture 9", item.ItemName)
	require.Equal(t, "ada", item.OwnerUserID)
	require.Positive(t, calls)
	require.Equal(t, "/api/upload", rec.calls[0].Path)
}

func TestUpload_NoItemID(t *testing.T) {
	c, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	})
	_, err := c.Upload(context.Background(), "ada", "x.pdf", strings.NewReader("%PDF"), nil)
	require.True(t, errors.Is(err, errors.ErrUnexpectedFormat))
}

func TestAuth(t *testing.T) {
	c, rec := setup(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login", "/api/auth/signup":
			_, _ = w.Write([]byte(`{"token":"tok","user":{"username":"ada","fullName":"Ada L"}}`))
		case "/api/auth/profile":
			_, _ = w.Write([]byte(`{"username":"ada"}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	})
	ctx := context.Background()

	res, err := c.Login(ctx, Credentials{Username: "ada", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "tok", res.Token)
	require.Equal(t, "Ada L", res.User.FullName)

	_, err = c.Signup(ctx, Registration{Username: "ada", Password: "a", ConfirmPassword: "b"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	res, err = c.Signup(ctx, Registration{Username: "ada", FullName: "Ada L", Password: "a", ConfirmPassword: "a"})
	require.NoError(t, err)
	require.Equal(t, "ada", res.User.Username)

	profile, err := c.Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, "ada", profile["username"])

	_, err = c.UpdateProfile(ctx, map[string]any{"fullName": "Ada Lovelace"})
	require.NoError(t, err)
	require.Equal(t, http.MethodPut, rec.calls[len(rec.calls)-1].Method)

	require.NoError(t, c.Logout(ctx))
	require.Equal(t, "/api/auth/logout", rec.calls[len(rec.calls)-1].Path)
}
