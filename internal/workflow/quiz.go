package workflow

import (
	"fmt"

	"github.com/hpungsan/memomind/internal/document"
	"github.com/hpungsan/memomind/internal/errors"
)

// NoSelection is MCQSession.Selected before an answer is picked.
const NoSelection = -1

// Outcome is the result of answering a question. Answer is the correct
// option, reported whatever was selected.
type Outcome struct {
	Selected int  `json:"selected"`
	Correct  bool `json:"correct"`
	Answer   int  `json:"answer"`
}

// MCQSession is progress through a question set. Not safe for concurrent use.
type MCQSession struct {
	Set      *document.MCQSet `json:"-"`
	Index    int              `json:"index"`
	Selected int              `json:"selected"`
	Shown    bool             `json:"shown"`
	Score    int              `json:"score"`
}

// NewMCQSession starts at the first question with no selection.
func NewMCQSession(set *document.MCQSet) *MCQSession {
	return &MCQSession{Set: set, Selected: NoSelection}
}

// Reset returns progress to its initial values.
func (s *MCQSession) Reset() {
	s.Index = 0
	s.Selected = NoSelection
	s.Shown = false
	s.Score = 0
}

// Len returns the number of questions.
func (s *MCQSession) Len() int {
	if s.Set == nil {
		return 0
	}
	return len(s.Set.Questions)
}

// Current returns the question at Index, or nil for an empty set.
func (s *MCQSession) Current() *document.Question {
	if s.Index < 0 || s.Index >= s.Len() {
		return nil
	}
	return &s.Set.Questions[s.Index]
}

// Select answers the current question. Only the first selection per question
// counts; later calls return the recorded outcome unchanged.
func (s *MCQSession) Select(option int) (Outcome, error) {
	q := s.Current()
	if q == nil {
		return Outcome{}, errors.NewInvalidRequest("no question to answer")
	}
	if s.Shown {
		return Outcome{Selected: s.Selected, Correct: s.Selected == q.Answer, Answer: q.Answer}, nil
	}
	if option < 0 || option >= len(q.Options) {
		return Outcome{}, errors.NewInvalidRequest(fmt.Sprintf("option %d out of range (0-%d)", option, len(q.Options)-1))
	}
	s.Selected = option
	s.Shown = true
	correct := option == q.Answer
	if correct {
		s.Score++
	}
	return Outcome{Selected: option, Correct: correct, Answer: q.Answer}, nil
}

// Next moves forward and clears the selection. False at the last question.
func (s *MCQSession) Next() bool {
	if s.Index >= s.Len()-1 {
		return false
	}
	s.Index++
	s.Selected = NoSelection
	s.Shown = false
	return true
}

// Prev moves back and clears the selection. False at the first question.
func (s *MCQSession) Prev() bool {
	if s.Index <= 0 {
		return false
	}
	s.Index--
	s.Selected = NoSelection
	s.Shown = false
	return true
}

// DeckSession is progress through a flashcard deck. Not safe for concurrent use.
type DeckSession struct {
	Deck       *document.Deck `json:"-"`
	Index      int            `json:"index"`
	ShowAnswer bool           `json:"showAnswer"`
}

// NewDeckSession starts at the first card with the answer hidden.
func NewDeckSession(deck *document.Deck) *DeckSession {
	return &DeckSession{Deck: deck}
}

// Len returns the number of cards.
func (s *DeckSession) Len() int {
	if s.Deck == nil {
		return 0
	}
	return len(s.Deck.Flashcards)
}

// Current returns the card at Index, or nil for an empty deck.
func (s *DeckSession) Current() *document.Card {
	if s.Index < 0 || s.Index >= s.Len() {
		return nil
	}
	return &s.Deck.Flashcards[s.Index]
}

// ToggleAnswer flips answer visibility and returns the new value.
func (s *DeckSession) ToggleAnswer() bool {
	s.ShowAnswer = !s.ShowAnswer
	return s.ShowAnswer
}

// Next moves forward and hides the answer. False at the last card.
func (s *DeckSession) Next() bool {
	if s.Index >= s.Len()-1 {
		return false
	}
	s.Index++
	s.ShowAnswer = false
	return true
}

// Prev moves back and hides the answer. False at the first card.
func (s *DeckSession) Prev() bool {
	if s.Index <= 0 {
		return false
	}
	s.Index--
	s.ShowAnswer = false
	return true
}

// Restart returns to the first card with the answer hidden.
func (s *DeckSession) Restart() {
	s.Index = 0
	s.ShowAnswer = false
}
