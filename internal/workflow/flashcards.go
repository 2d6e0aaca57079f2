package workflow

import (
	"context"

	"github.com/hpungsan/memomind/internal/document"
	"github.com/hpungsan/memomind/internal/errors"
	"github.com/hpungsan/memomind/internal/transport"
)

// Flashcards generates a deck in one call and tracks study progress.
type Flashcards struct {
	base
	deck  *document.Deck
	study *DeckSession
}

// DeckView is a snapshot of a flashcards page.
type DeckView struct {
	State State          `json:"state"`
	Deck  *document.Deck `json:"deck,omitempty"`
	Study DeckSession    `json:"study"`
}

// NewFlashcards creates an idle flashcards workflow for one item.
func NewFlashcards(deps Deps, itemID, itemName string) *Flashcards {
	return &Flashcards{base: newBase(document.KindFlashcards, deps, itemID, itemName)}
}

// Mount triggers the initial generation once per item. See base.mount.
func (f *Flashcards) Mount(ctx context.Context) (bool, error) {
	return f.mount(ctx, f.Generate)
}

// Retry regenerates after a failure.
func (f *Flashcards) Retry(ctx context.Context) error {
	if err := f.beginRetry(); err != nil {
		return err
	}
	return f.Generate(ctx)
}

// View returns a snapshot of the deck and study position.
func (f *Flashcards) View() DeckView {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := DeckView{State: f.state, Deck: f.deck}
	if f.study != nil {
		v.Study = *f.study
	}
	return v
}

// Document returns a copy of the current deck for saving.
func (f *Flashcards) Document() document.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return document.FromDeck(f.deck).Clone()
}

// Study runs fn against the deck session under the workflow lock.
func (f *Flashcards) Study(fn func(*DeckSession) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.study == nil || f.state.Phase != Ready {
		return errors.NewInvalidRequest("no flashcards loaded")
	}
	return fn(f.study)
}

// Generate requests a new deck. On failure the deck is cleared and the
// workflow moves to Failed.
func (f *Flashcards) Generate(ctx context.Context) error {
	userID, err := f.beginGenerate(ctx)
	if err != nil {
		return err
	}
	deck, err := f.call(f.deps.Backend.Generate(ctx, f.kind, userID, f.itemID))
	if err != nil {
		f.logFailure("generate", err)
		f.settle(Failed, errors.Reason(err), func() { f.deck, f.study = nil, nil })
		return err
	}
	if !f.settle(Ready, "", func() { f.replace(deck) }) {
		f.discarded("generate")
	}
	return nil
}

// FollowUp replaces the deck wholesale, returning to the first card with the
// answer hidden. On failure the prior deck and position are kept.
func (f *Flashcards) FollowUp(ctx context.Context, prompt string) error {
	userID, err := f.beginFollowUp(ctx, prompt)
	if err != nil {
		return err
	}
	deck, err := f.call(f.deps.Backend.FollowUp(ctx, f.kind, userID, f.itemID, prompt))
	if err != nil {
		f.logFailure("follow-up", err)
		f.settle(Ready, "", nil)
		return err
	}
	if !f.settle(Ready, "", func() { f.replace(deck) }) {
		f.discarded("follow-up")
	}
	return nil
}

// Close unmounts the workflow; later results are discarded.
func (f *Flashcards) Close(context.Context) error {
	f.markClosed(func() { f.deck, f.study = nil, nil })
	return nil
}

func (f *Flashcards) call(resp *transport.Response, err error) (*document.Deck, error) {
	if err != nil {
		return nil, err
	}
	return document.NormalizeDeck(resp.Body)
}

// replace swaps in a new deck with fresh progress. Caller holds f.mu.
func (f *Flashcards) replace(deck *document.Deck) {
	f.deck = deck
	f.study = NewDeckSession(deck)
}
