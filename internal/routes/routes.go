// Package routes resolves client paths to pages and applies the auth guards.
package routes

import (
	"net/url"
	"strings"

	"github.com/hpungsan/memomind/internal/document"
	"github.com/hpungsan/memomind/internal/errors"
)

// Page names a screen of the client.
type Page string

const (
	PageHome     Page = "home"
	PageLogin    Page = "login"
	PageSignup   Page = "signup"
	PageUpload   Page = "upload"
	PageGenerate Page = "generate"
	PageLoad     Page = "load"
	PageSaved    Page = "saved"
	PageUnknown  Page = "unknown"
)

// Paths the guards redirect to.
const (
	HomePath  = "/"
	LoginPath = "/login"
)

// Route is a resolved path. Kind is set for generate, load and saved pages;
// ItemID for generate and load; ItemName for generate.
type Route struct {
	Page     Page
	Path     string
	Kind     document.Kind
	ItemID   string
	ItemName string
}

// Public reports whether the page is only for signed-out users.
func (r Route) Public() bool {
	return r.Page == PageLogin || r.Page == PageSignup
}

var generatePrefixes = map[string]document.Kind{
	"generate-notes":      document.KindNotes,
	"generate-mcq":        document.KindMCQs,
	"generate-flashcards": document.KindFlashcards,
}

var loadPrefixes = map[string]document.Kind{
	"load-notes":      document.KindNotes,
	"load-mcq":        document.KindMCQs,
	"load-flashcards": document.KindFlashcards,
}

var savedPaths = map[string]document.Kind{
	"notes":      document.KindNotes,
	"mcqs":       document.KindMCQs,
	"flashcards": document.KindFlashcards,
}

// Resolve maps a client path to a route. Unmatched paths resolve to
// PageUnknown.
func Resolve(path string) Route {
	clean := "/" + strings.Trim(path, "/")
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		if u, err := url.PathUnescape(s); err == nil {
			segs[i] = u
		}
	}
	r := Route{Page: PageUnknown, Path: clean}

	switch {
	case clean == "/":
		r.Page = PageHome
	case len(segs) == 1:
		switch segs[0] {
		case "login":
			r.Page = PageLogin
		case "signup":
			r.Page = PageSignup
		case "upload":
			r.Page = PageUpload
		default:
			if kind, ok := savedPaths[segs[0]]; ok {
				r.Page, r.Kind = PageSaved, kind
			}
		}
	case len(segs) == 3:
		if kind, ok := generatePrefixes[segs[0]]; ok && segs[2] != "" {
			r.Page, r.Kind, r.ItemName, r.ItemID = PageGenerate, kind, segs[1], segs[2]
		}
	case len(segs) == 2:
		if kind, ok := loadPrefixes[segs[0]]; ok && segs[1] != "" {
			r.Page, r.Kind, r.ItemID = PageLoad, kind, segs[1]
		}
	}
	return r
}

// Guard returns the path to redirect to, or "" when the route may render.
// Protected pages need a token; login and signup are for signed-out users;
// unknown paths go home or to login.
func Guard(r Route, hasToken bool) string {
	switch {
	case r.Page == PageUnknown && hasToken:
		return HomePath
	case r.Page == PageUnknown:
		return LoginPath
	case r.Public() && hasToken:
		return HomePath
	case !r.Public() && !hasToken:
		return LoginPath
	}
	return ""
}

// Require resolves path and fails with AUTH_REQUIRED when the guard would
// send the user to login.
func Require(path string, hasToken bool) (Route, error) {
	r := Resolve(path)
	if Guard(r, hasToken) == LoginPath {
		return r, errors.NewAuthRequired()
	}
	return r, nil
}

// GeneratePath builds the generate page path for an uploaded item.
func GeneratePath(kind document.Kind, itemName, itemID string) string {
	for prefix, k := range generatePrefixes {
		if k == kind {
			return "/" + prefix + "/" + url.PathEscape(itemName) + "/" + url.PathEscape(itemID)
		}
	}
	return HomePath
}

// LoadPath builds the load page path for a saved item.
func LoadPath(kind document.Kind, itemID string) string {
	for prefix, k := range loadPrefixes {
		if k == kind {
			return "/" + prefix + "/" + url.PathEscape(itemID)
		}
	}
	return HomePath
}
