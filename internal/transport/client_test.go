package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/memomind/internal/errors"
)

type fakeTokens struct {
	mu      sync.Mutex
	token   string
	expired []string
}

func (f *fakeTokens) Token(context.Context) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeTokens) Expire(_ context.Context, token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, token)
	if f.token == token {
		f.token = ""
		return true
	}
	return false
}

func TestDo_BearerInjection(t *testing.T) {
	var gotAuth, gotRequestID, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/api/", &fakeTokens{token: "tok"})
	var out map[string]bool
	err := c.JSON(context.Background(), http.MethodGet, "/fetch/notes", Options{
		Params: url.Values{"userId": {"ada"}},
	}, &out)
	require.NoError(t, err)
	require.True(t, out["ok"])
	require.Equal(t, "Bearer tok", gotAuth)
	require.NotEmpty(t, gotRequestID)
	require.Equal(t, "/api/fetch/notes", gotPath)
	require.Equal(t, "userId=ada", gotQuery)
}

func TestDo_NoTokenOmitsHeader(t *testing.T) {
	var hasAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, &fakeTokens{})
	_, err := c.Do(context.Background(), http.MethodGet, "/x", Options{})
	require.NoError(t, err)
	require.False(t, hasAuth)

	// nil token source is also fine
	_, err = New(srv.URL, nil).Do(context.Background(), http.MethodGet, "/x", Options{})
	require.NoError(t, err)
}

func TestDo_JSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.JSONEq(t, `{"prompt":"shorter"}`, string(body))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.Do(context.Background(), http.MethodPost, "/follow-up", Options{Body: map[string]string{"prompt": "shorter"}})
	require.NoError(t, err)
}

func TestDo_UnauthorizedExpiresSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"jwt expired"}`))
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "tok"}
	c := New(srv.URL, tokens)
	_, err := c.Do(context.Background(), http.MethodGet, "/generate", Options{})
	require.True(t, errors.Is(err, errors.ErrSessionExpired))
	require.Equal(t, []string{"tok"}, tokens.expired)
	require.Equal(t, "", tokens.token)
}

func TestDo_UnauthorizedWithoutTokenIsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
	}))
	defer srv.Close()

	tokens := &fakeTokens{}
	_, err := New(srv.URL, tokens).Do(context.Background(), http.MethodPost, "/auth/login", Options{})
	apiErr, ok := errors.As(err)
	require.True(t, ok)
	require.Equal(t, errors.ErrServerError, apiErr.Code)
	require.Equal(t, "Invalid credentials", apiErr.Message)
	require.Empty(t, tokens.expired)
}

func TestDo_ServerErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantMsg  string
		wantData bool
	}{
		{"message field", `{"message":"quota exceeded","data":{"limit":3}}`, "quota exceeded", true},
		{"error field", `{"error":"bad item"}`, "bad item", false},
		{"empty object", `{}`, "Server error (500)", false},
		{"html body", `<html>oops</html>`, "Server error (500)", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, nil).Do(context.Background(), http.MethodGet, "/generate", Options{})
			apiErr, ok := errors.As(err)
			require.True(t, ok)
			require.Equal(t, errors.ErrServerError, apiErr.Code)
			require.Equal(t, 500, apiErr.Status)
			require.Equal(t, tt.wantMsg, apiErr.Message)
			require.Equal(t, tt.wantData, apiErr.Data != nil)
		})
	}
}

func TestDo_NetworkUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := New(addr, nil).Do(context.Background(), http.MethodGet, "/generate", Options{})
	apiErr, ok := errors.As(err)
	require.True(t, ok)
	require.Equal(t, errors.ErrNetworkUnreachable, apiErr.Code)
	require.Equal(t, errors.NetworkMessage, apiErr.Message)
}

func TestDo_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(srv.URL, nil).Do(context.Background(), http.MethodGet, "/export", Options{Timeout: 50 * time.Millisecond})
	require.True(t, errors.Is(err, errors.ErrNetworkUnreachable))
}

func TestDo_BinaryKeepsHeaders(t *testing.T) {
	pdf := []byte("%PDF-1.4 fake")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/pdf, application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="notes.pdf"`)
		_, _ = w.Write(pdf)
	}))
	defer srv.Close()

	resp, err := New(srv.URL, nil).Do(context.Background(), http.MethodGet, "/export", Options{Kind: KindBinary})
	require.NoError(t, err)
	require.Equal(t, "application/pdf", resp.ContentType())
	require.Equal(t, `attachment; filename="notes.pdf"`, resp.Header.Get("Content-Disposition"))
	require.Equal(t, pdf, resp.Body)
}

func TestDo_MultipartWithProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "ada", r.FormValue("userId"))
		f, hdr, err := r.FormFile("pdfFile")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		require.Equal(t, "lecture.pdf", hdr.Filename)
		require.Equal(t, "%PDF-1.7", string(data))
		_, _ = w.Write([]byte(`{"itemId":"i1","itemName":"lecture"}`))
	}))
	defer srv.Close()

	var lastSent, lastTotal int64
	form := &Form{
		Fields: map[string]string{"userId": "ada"},
		File:   &File{Field: "pdfFile", Name: "lecture.pdf", Reader: strings.NewReader("%PDF-1.7")},
		Progress: func(sent, total int64) {
			lastSent, lastTotal = sent, total
		},
	}
	var out map[string]string
	err := New(srv.URL, nil).JSON(context.Background(), http.MethodPost, "/upload", Options{Form: form}, &out)
	require.NoError(t, err)
	require.Equal(t, "i1", out["itemId"])
	require.Positive(t, lastTotal)
	require.Equal(t, lastTotal, lastSent)
}

func TestJSON_UndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	var out map[string]any
	err := New(srv.URL, nil).JSON(context.Background(), http.MethodGet, "/load/mcqs", Options{}, &out)
	require.True(t, errors.Is(err, errors.ErrUnexpectedFormat))
}
