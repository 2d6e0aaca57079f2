// Package document models generated study content as explicit variants.
// Backend responses are normalized into these types once, at the transport
// boundary, so nothing downstream re-derives their shape.
package document

import (
	"fmt"
	"strings"

	"github.com/hpungsan/memomind/internal/errors"
)

// Kind is the content type of a workflow or saved document.
type Kind string

const (
	KindNotes      Kind = "notes"
	KindMCQs       Kind = "mcqs"
	KindFlashcards Kind = "flashcards"
)

// Kinds lists every content type in display order.
var Kinds = []Kind{KindNotes, KindMCQs, KindFlashcards}

// ParseKind accepts the canonical names plus the short forms used in routes.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "notes", "note":
		return KindNotes, nil
	case "mcqs", "mcq":
		return KindMCQs, nil
	case "flashcards", "flashcard", "fcs", "fc":
		return KindFlashcards, nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("unknown content type %q (want notes, mcqs or flashcards)", s))
}

// Default titles and subjects stamped on generated documents.
const (
	DefaultNotesTitle      = "Generated Notes"
	DefaultMCQSubject      = "Generated MCQs"
	DefaultFlashcardsTitle = "Generated Flashcards"
)

// Item is an uploaded source document. Immutable once created.
type Item struct {
	ItemID      string `json:"itemId" validate:"required"`
	ItemName    string `json:"itemName"`
	OwnerUserID string `json:"userId,omitempty"`
}

// Section is one heading of a structured note.
type Section struct {
	Heading    string   `json:"heading,omitempty"`
	Paragraphs []string `json:"paragraphs,omitempty"`
	Content    string   `json:"content,omitempty"`
}

// Notes is a structured note. Either Content or Sections carries the body.
type Notes struct {
	Title     string    `json:"title" validate:"required"`
	Content   string    `json:"content,omitempty"`
	Sections  []Section `json:"sections,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	KeyPoints []string  `json:"keyPoints,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Date      string    `json:"date,omitempty"`
}

// HasContent reports whether the note carries a body to render.
func (n *Notes) HasContent() bool {
	return n != nil && (strings.TrimSpace(n.Content) != "" || len(n.Sections) > 0)
}

// Question is a single multiple-choice question. Answer indexes Options.
type Question struct {
	Question    string   `json:"question" validate:"required"`
	Options     []string `json:"options" validate:"min=2"`
	Answer      int      `json:"answer" validate:"gte=0"`
	Explanation string   `json:"explanation,omitempty"`
}

// MCQSet is a generated or saved question set.
type MCQSet struct {
	Questions      []Question `json:"questions" validate:"dive"`
	TotalQuestions int        `json:"totalQuestions"`
	Subject        string     `json:"subject,omitempty"`
	Type           string     `json:"type,omitempty"`
	Date           string     `json:"date,omitempty"`
}

// Card is a single flashcard.
type Card struct {
	Question string `json:"question" validate:"required"`
	Answer   string `json:"answer"`
	Category string `json:"category,omitempty"`
}

// Deck is a generated or saved flashcard deck.
type Deck struct {
	Title      string `json:"title,omitempty"`
	Flashcards []Card `json:"flashcards" validate:"dive"`
	TotalCards int    `json:"totalCards"`
	Subject    string `json:"subject,omitempty"`
	Type       string `json:"type,omitempty"`
	Date       string `json:"date,omitempty"`
}

// Document is a tagged union over the three content kinds.
// Exactly one of Notes, MCQ, Flashcards is set, matching Kind.
type Document struct {
	Kind       Kind
	Notes      *Notes
	MCQ        *MCQSet
	Flashcards *Deck
}

// FromNotes wraps a note.
func FromNotes(n *Notes) Document { return Document{Kind: KindNotes, Notes: n} }

// FromMCQs wraps a question set.
func FromMCQs(m *MCQSet) Document { return Document{Kind: KindMCQs, MCQ: m} }

// FromDeck wraps a deck.
func FromDeck(d *Deck) Document { return Document{Kind: KindFlashcards, Flashcards: d} }

// Payload returns the variant value for wire encoding, or nil when empty.
func (d Document) Payload() any {
	switch d.Kind {
	case KindNotes:
		if d.Notes != nil {
			return d.Notes
		}
	case KindMCQs:
		if d.MCQ != nil {
			return d.MCQ
		}
	case KindFlashcards:
		if d.Flashcards != nil {
			return d.Flashcards
		}
	}
	return nil
}

// Empty reports whether the document has no variant set.
func (d Document) Empty() bool {
	return d.Payload() == nil
}

// Clone returns a document whose variant is a shallow copy, so top-level
// fields can be written without touching the source.
func (d Document) Clone() Document {
	out := Document{Kind: d.Kind}
	if d.Notes != nil {
		n := *d.Notes
		out.Notes = &n
	}
	if d.MCQ != nil {
		m := *d.MCQ
		out.MCQ = &m
	}
	if d.Flashcards != nil {
		f := *d.Flashcards
		out.Flashcards = &f
	}
	return out
}

// Stamp fills the date field when absent.
func (d Document) Stamp(date string) {
	switch d.Kind {
	case KindNotes:
		if d.Notes != nil && d.Notes.Date == "" {
			d.Notes.Date = date
		}
	case KindMCQs:
		if d.MCQ != nil && d.MCQ.Date == "" {
			d.MCQ.Date = date
		}
	case KindFlashcards:
		if d.Flashcards != nil && d.Flashcards.Date == "" {
			d.Flashcards.Date = date
		}
	}
}

// Summary is one entry of a saved-content listing.
type Summary struct {
	ItemID         string `json:"itemId"`
	ItemName       string `json:"itemName"`
	CreatedAt      string `json:"createdAt,omitempty"`
	Title          string `json:"title,omitempty"`
	Subject        string `json:"subject,omitempty"`
	TotalQuestions int    `json:"totalQuestions,omitempty"`
	TotalCards     int    `json:"totalCards,omitempty"`
}
