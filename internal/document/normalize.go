package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hpungsan/memomind/internal/errors"
)

// Field-name fallbacks seen across backend versions. Each list is tried in order.
var (
	notesTitleKeys    = []string{"title", "notesTitle"}
	notesContentKeys  = []string{"content", "notes", "text", "body"}
	notesSectionKeys  = []string{"sections", "parts"}
	notesKeyPointKeys = []string{"keyPoints", "key_points"}

	mcqListKeys  = []string{"questions"}
	deckListKeys = []string{"flashcards", "questions", "fcs", "cards"}

	// noteShapeKeys mark a JSON object as a structured note.
	noteShapeKeys = []string{"title", "sections", "content", "body", "notes", "text", "parts"}
)

// Object is a decoded JSON object with deferred field decoding.
type Object map[string]json.RawMessage

// ParseObject decodes body as a JSON object. ok is false for any other JSON
// value or invalid JSON.
func ParseObject(body []byte) (Object, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var obj Object
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// String returns the first non-empty string value among keys.
func (o Object) String(keys ...string) string {
	for _, k := range keys {
		raw, ok := o[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// Array returns the first value among keys that is a JSON array.
func (o Object) Array(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		raw, ok := o[k]
		if !ok {
			continue
		}
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			return trimmed, true
		}
	}
	return nil, false
}

// Has reports whether any of keys is present with a truthy value.
func (o Object) Has(keys ...string) bool {
	for _, k := range keys {
		raw, ok := o[k]
		if !ok {
			continue
		}
		switch strings.TrimSpace(string(raw)) {
		case "", "null", "false", `""`, "0":
			continue
		}
		return true
	}
	return false
}

// unwrap returns the nested object under key when present, else o.
func (o Object) unwrap(key string) Object {
	raw, ok := o[key]
	if !ok {
		return o
	}
	if inner, ok := ParseObject(raw); ok {
		return inner
	}
	return o
}

// NoteShaped reports whether obj carries note fields.
func NoteShaped(obj Object) bool {
	return obj.Has(noteShapeKeys...)
}

// NormalizeNotes builds a Notes from a generate or follow-up response. Fields
// missing from the response fall back to prev (the current note) when given,
// so a follow-up that returns only a new summary keeps the old body.
func NormalizeNotes(body []byte, prev *Notes) (*Notes, error) {
	obj, ok := ParseObject(body)
	if !ok {
		return nil, errors.NewUnexpectedFormat(string(body))
	}
	if !NoteShaped(obj) {
		obj = obj.unwrap("note")
	}
	return NotesFromObject(obj, prev)
}

// NotesFromObject is NormalizeNotes for an already decoded object.
func NotesFromObject(obj Object, prev *Notes) (*Notes, error) {
	if prev == nil {
		prev = &Notes{}
	}
	n := &Notes{
		Title:     firstNonEmpty(obj.String(notesTitleKeys...), prev.Title, DefaultNotesTitle),
		Content:   firstNonEmpty(obj.String(notesContentKeys...), prev.Content),
		Summary:   firstNonEmpty(obj.String("summary"), prev.Summary),
		Subject:   firstNonEmpty(obj.String("subject"), prev.Subject),
		Date:      obj.String("date"),
		Sections:  prev.Sections,
		KeyPoints: prev.KeyPoints,
	}
	if raw, ok := obj.Array(notesSectionKeys...); ok {
		sections, err := decodeSections(raw)
		if err != nil {
			return nil, err
		}
		n.Sections = sections
	}
	if raw, ok := obj.Array(notesKeyPointKeys...); ok {
		n.KeyPoints = decodeStrings(raw)
	}
	if err := check(n); err != nil {
		return nil, err
	}
	return n, nil
}

func decodeSections(raw json.RawMessage) ([]Section, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.NewUnexpectedFormat(string(raw))
	}
	sections := make([]Section, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			sections = append(sections, Section{Content: s})
			continue
		}
		obj, ok := ParseObject(item)
		if !ok {
			continue
		}
		sec := Section{
			Heading: obj.String("heading", "title"),
			Content: obj.String("content", "text"),
		}
		if paras, ok := obj.Array("paragraphs"); ok {
			sec.Paragraphs = decodeStrings(paras)
		}
		sections = append(sections, sec)
	}
	return sections, nil
}

// decodeStrings decodes a JSON array, formatting non-string elements.
func decodeStrings(raw json.RawMessage) []string {
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case string:
			out = append(out, v)
		case nil:
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

// NormalizeMCQs builds an MCQSet from a generate, follow-up or load response.
// Accepts {questions:[...]}, {mcq:{questions:[...]}} or a bare array.
func NormalizeMCQs(body []byte) (*MCQSet, error) {
	raw, subject, err := listPayload(body, "mcq", mcqListKeys)
	if err != nil {
		return nil, err
	}
	var items []rawQuestion
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.NewUnexpectedFormat(string(body))
	}
	set := &MCQSet{
		Questions: make([]Question, 0, len(items)),
		Subject:   firstNonEmpty(subject, DefaultMCQSubject),
		Type:      string(KindMCQs),
	}
	for _, it := range items {
		set.Questions = append(set.Questions, it.toQuestion())
	}
	set.TotalQuestions = len(set.Questions)
	if err := check(set); err != nil {
		return nil, err
	}
	return set, nil
}

type rawQuestion struct {
	Question      string          `json:"question"`
	Options       []string        `json:"options"`
	Answer        json.RawMessage `json:"answer"`
	CorrectAnswer json.RawMessage `json:"correctAnswer"`
	Explanation   string          `json:"explanation"`
}

func (r rawQuestion) toQuestion() Question {
	answer := r.Answer
	if len(bytes.TrimSpace(answer)) == 0 || string(answer) == "null" {
		answer = r.CorrectAnswer
	}
	return Question{
		Question:    r.Question,
		Options:     r.Options,
		Answer:      resolveAnswer(answer, r.Options),
		Explanation: r.Explanation,
	}
}

// resolveAnswer maps an answer given as an index, a numeric string or the
// option text to an option index. -1 when unresolvable.
func resolveAnswer(raw json.RawMessage, options []string) int {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return -1
	}
	for i, opt := range options {
		if opt == s {
			return i
		}
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n
	}
	return -1
}

// NormalizeDeck builds a Deck from a generate, follow-up or load response.
// Accepts {flashcards|questions|fcs|cards:[...]}, {fc:{...}} or a bare array.
func NormalizeDeck(body []byte) (*Deck, error) {
	raw, subject, err := listPayload(body, "fc", deckListKeys)
	if err != nil {
		return nil, err
	}
	var items []rawCard
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.NewUnexpectedFormat(string(body))
	}
	deck := &Deck{
		Title:      DefaultFlashcardsTitle,
		Flashcards: make([]Card, 0, len(items)),
		Subject:    firstNonEmpty(subject, DefaultFlashcardsTitle),
		Type:       string(KindFlashcards),
	}
	if obj, ok := ParseObject(body); ok {
		deck.Title = firstNonEmpty(obj.unwrap("fc").String("title"), deck.Title)
	}
	for _, it := range items {
		deck.Flashcards = append(deck.Flashcards, Card{
			Question: firstNonEmpty(it.Question, it.Front),
			Answer:   firstNonEmpty(it.Answer, it.Back),
			Category: it.Category,
		})
	}
	deck.TotalCards = len(deck.Flashcards)
	if err := check(deck); err != nil {
		return nil, err
	}
	return deck, nil
}

type rawCard struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Front    string `json:"front"`
	Back     string `json:"back"`
	Category string `json:"category"`
}

// Parse normalizes body as a document of kind.
func Parse(kind Kind, body []byte) (Document, error) {
	switch kind {
	case KindNotes:
		n, err := NormalizeNotes(body, nil)
		if err != nil {
			return Document{}, err
		}
		return FromNotes(n), nil
	case KindMCQs:
		set, err := NormalizeMCQs(body)
		if err != nil {
			return Document{}, err
		}
		return FromMCQs(set), nil
	case KindFlashcards:
		deck, err := NormalizeDeck(body)
		if err != nil {
			return Document{}, err
		}
		return FromDeck(deck), nil
	}
	return Document{}, errors.NewInvalidRequest("unknown content type " + string(kind))
}

// listPayload locates the item array in a list-shaped response.
func listPayload(body []byte, wrapper string, keys []string) (json.RawMessage, string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return trimmed, "", nil
	}
	obj, ok := ParseObject(trimmed)
	if !ok {
		return nil, "", errors.NewUnexpectedFormat(string(body))
	}
	obj = obj.unwrap(wrapper)
	raw, ok := obj.Array(keys...)
	if !ok {
		return nil, "", errors.NewUnexpectedFormat(string(body))
	}
	return raw, obj.String("subject"), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
