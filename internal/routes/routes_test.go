package routes

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/memomind/internal/document"
	"github.com/hpungsan/memomind/internal/errors"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		path string
		want Route
	}{
		{"/", Route{Page: PageHome, Path: "/"}},
		{"/login", Route{Page: PageLogin, Path: "/login"}},
		{"/signup/", Route{Page: PageSignup, Path: "/signup"}},
		{"/upload", Route{Page: PageUpload, Path: "/upload"}},
		{"/mcqs", Route{Page: PageSaved, Path: "/mcqs", Kind: document.KindMCQs}},
		{"/generate-notes/Bio%20101/abc", Route{Page: PageGenerate, Path: "/generate-notes/Bio%20101/abc", Kind: document.KindNotes, ItemName: "Bio 101", ItemID: "abc"}},
		{"/generate-flashcards/Bio/xyz", Route{Page: PageGenerate, Path: "/generate-flashcards/Bio/xyz", Kind: document.KindFlashcards, ItemName: "Bio", ItemID: "xyz"}},
		{"/load-mcq/42", Route{Page: PageLoad, Path: "/load-mcq/42", Kind: document.KindMCQs, ItemID: "42"}},
		{"/load-notes", Route{Page: PageUnknown, Path: "/load-notes"}},
		{"/generate-mcq/onlyname", Route{Page: PageUnknown, Path: "/generate-mcq/onlyname"}},
		{"/nope", Route{Page: PageUnknown, Path: "/nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			require.Equal(t, tt.want, Resolve(tt.path))
		})
	}
}

func TestGuard(t *testing.T) {
	tests := []struct {
		path     string
		hasToken bool
		want     string
	}{
		{"/", false, LoginPath},
		{"/", true, ""},
		{"/login", true, HomePath},
		{"/login", false, ""},
		{"/signup", true, HomePath},
		{"/load-flashcards/1", false, LoginPath},
		{"/load-flashcards/1", true, ""},
		{"/missing", true, HomePath},
		{"/missing", false, LoginPath},
	}
	for _, tt := range tests {
		if got := Guard(Resolve(tt.path), tt.hasToken); got != tt.want {
			t.Errorf("Guard(%q, %v) = %q, want %q", tt.path, tt.hasToken, got, tt.want)
		}
	}
}

func TestRequire(t *testing.T) {
	_, err := Require("/notes", false)
	require.True(t, errors.Is(err, errors.ErrAuthRequired))

	r, err := Require("/notes", true)
	require.NoError(t, err)
	require.Equal(t, PageSaved, r.Page)
}

func TestPathsRoundTrip(t *testing.T) {
	r := Resolve(GeneratePath(document.KindMCQs, "Chem 2/3", "id-9"))
	require.Equal(t, PageGenerate, r.Page)
	require.Equal(t, "Chem 2/3", r.ItemName)
	require.Equal(t, "id-9", r.ItemID)

	r = Resolve(LoadPath(document.KindNotes, "id-9"))
	require.Equal(t, PageLoad, r.Page)
	require.Equal(t, document.KindNotes, r.Kind)
}
