// Package library saves, lists, loads and deletes content kept for revision.
package library

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hpungsan/memomind/internal/artifact"
	"github.com/hpungsan/memomind/internal/backend"
	"github.com/hpungsan/memomind/internal/document"
	"github.com/hpungsan/memomind/internal/errors"
	"github.com/hpungsan/memomind/internal/logger"
	"github.com/hpungsan/memomind/internal/transport"
)

// Backend is the subset of backend calls the library makes.
type Backend interface {
	Save(ctx context.Context, kind document.Kind, req backend.SaveRequest) (json.RawMessage, error)
	Fetch(ctx context.Context, kind document.Kind, userID string) ([]document.Summary, error)
	Load(ctx context.Context, kind document.Kind, userID, itemID string) (*transport.Response, error)
	Delete(ctx context.Context, kind document.Kind, userID, itemID string) error
}

// Adopter turns a classified PDF into a displayable reference.
type Adopter interface {
	Adopt(ctx context.Context, owner string, b *artifact.Binary) (*artifact.Ref, error)
}

// Library is the save/load/delete façade.
type Library struct {
	backend   Backend
	artifacts Adopter
	log       logger.Logger
	now       func() time.Time
}

// New creates a Library. artifacts may be nil when notes are never loaded.
func New(b Backend, artifacts Adopter, log logger.Logger) *Library {
	if log == nil {
		log = logger.NewNop()
	}
	return &Library{backend: b, artifacts: artifacts, log: log, now: time.Now}
}

// Loaded is a saved document. PDF is set when a note loaded as a PDF; the
// caller owns it and releases it when done.
type Loaded struct {
	Document document.Document
	PDF      *artifact.Ref
}

// Save transmits doc for revision. The date is stamped when absent.
func (l *Library) Save(ctx context.Context, kind document.Kind, userID, itemID, itemName string, doc document.Document) (json.RawMessage, error) {
	if userID == "" {
		return nil, errors.NewAuthRequired()
	}
	if itemID == "" {
		return nil, errors.NewInvalidRequest("no item id available to save")
	}
	if itemName == "" {
		return nil, errors.NewInvalidRequest("item name is required")
	}
	if doc.Kind != kind {
		return nil, errors.NewInvalidRequest("document kind " + string(doc.Kind) + " does not match " + string(kind))
	}
	if doc.Empty() {
		return nil, errors.NewInvalidRequest("nothing to save")
	}
	doc = doc.Clone()
	doc.Stamp(l.now().UTC().Format(time.RFC3339))
	if err := document.ValidateDocument(doc); err != nil {
		return nil, err
	}

	ack, err := l.backend.Save(ctx, kind, backend.SaveRequest{
		UserID:   userID,
		ItemID:   itemID,
		ItemName: itemName,
		Document: doc.Payload(),
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("library", "saved", map[string]any{"kind": string(kind), "item_id": itemID})
	return ack, nil
}

// List returns the saved items of kind.
func (l *Library) List(ctx context.Context, kind document.Kind, userID string) ([]document.Summary, error) {
	return l.backend.Fetch(ctx, kind, userID)
}

// Load fetches a saved document. Notes go through export and may come back
// as a PDF or a structure. A failed question or card load returns an empty
// document alongside the error, never stale data.
func (l *Library) Load(ctx context.Context, kind document.Kind, userID, itemID string) (*Loaded, error) {
	switch kind {
	case document.KindNotes:
		return l.loadNotes(ctx, userID, itemID)
	case document.KindMCQs:
		set, err := loadList(ctx, l, kind, userID, itemID, document.NormalizeMCQs)
		if err != nil {
			return &Loaded{Document: document.FromMCQs(&document.MCQSet{Questions: []document.Question{}})}, err
		}
		return &Loaded{Document: document.FromMCQs(set)}, nil
	case document.KindFlashcards:
		deck, err := loadList(ctx, l, kind, userID, itemID, document.NormalizeDeck)
		if err != nil {
			return &Loaded{Document: document.FromDeck(&document.Deck{Flashcards: []document.Card{}})}, err
		}
		return &Loaded{Document: document.FromDeck(deck)}, nil
	}
	return nil, errors.NewInvalidRequest("unknown content kind: " + string(kind))
}

func loadList[T any](ctx context.Context, l *Library, kind document.Kind, userID, itemID string, normalize func([]byte) (T, error)) (T, error) {
	var zero T
	resp, err := l.backend.Load(ctx, kind, userID, itemID)
	if err != nil {
		l.log.Warn("library", "load failed", map[string]any{"kind": string(kind), "item_id": itemID, "error": err.Error()})
		return zero, err
	}
	v, err := normalize(resp.Body)
	if err != nil {
		l.log.Warn("library", "load returned an unexpected shape", map[string]any{"kind": string(kind), "item_id": itemID})
		return zero, err
	}
	return v, nil
}

func (l *Library) loadNotes(ctx context.Context, userID, itemID string) (*Loaded, error) {
	resp, err := l.backend.Load(ctx, document.KindNotes, userID, itemID)
	if err != nil {
		return nil, err
	}
	res := artifact.Classify(resp)
	if err := res.Err(); err != nil {
		return nil, err
	}

	out := &Loaded{Document: document.Document{Kind: document.KindNotes}}
	if res.Structured != nil {
		note, err := document.NotesFromObject(res.Structured, nil)
		if err != nil {
			return nil, err
		}
		out.Document.Notes = note
	}
	if res.Kind == artifact.KindBinary {
		if l.artifacts == nil {
			return nil, errors.NewInternal(nil)
		}
		ref, err := l.artifacts.Adopt(ctx, "saved:"+itemID, res.Binary)
		if err != nil {
			return nil, err
		}
		out.PDF = ref
	}
	return out, nil
}

// Delete removes a saved item.
func (l *Library) Delete(ctx context.Context, kind document.Kind, userID, itemID string) error {
	if err := l.backend.Delete(ctx, kind, userID, itemID); err != nil {
		return err
	}
	l.log.Info("library", "deleted", map[string]any{"kind": string(kind), "item_id": itemID})
	return nil
}

// Source lists and deletes saved items. *Library satisfies it.
type Source interface {
	List(ctx context.Context, kind document.Kind, userID string) ([]document.Summary, error)
	Delete(ctx context.Context, kind document.Kind, userID, itemID string) error
}

// Shelf is the in-memory saved list for one kind.
type Shelf struct {
	src    Source
	kind   document.Kind
	userID string

	mu    sync.Mutex
	items []document.Summary
}

// NewShelf returns a list view of kind for userID over src. Call Refresh to
// populate it.
func NewShelf(src Source, kind document.Kind, userID string) *Shelf {
	return &Shelf{src: src, kind: kind, userID: userID}
}

// Shelf returns a list view of kind for userID.
func (l *Library) Shelf(kind document.Kind, userID string) *Shelf {
	return NewShelf(l, kind, userID)
}

// Refresh replaces the items with the server's list.
func (s *Shelf) Refresh(ctx context.Context) error {
	items, err := s.src.List(ctx, s.kind, s.userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	return nil
}

// Items returns a copy of the current list.
func (s *Shelf) Items() []document.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]document.Summary{}, s.items...)
}

// Remove deletes itemID and drops it from the list without re-fetching.
// The list is unchanged when the delete fails.
func (s *Shelf) Remove(ctx context.Context, itemID string) error {
	if err := s.src.Delete(ctx, s.kind, s.userID, itemID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0:0]
	for _, it := range s.items {
		if it.ItemID != itemID {
			kept = append(kept, it)
		}
	}
	s.items = kept
	return nil
}
