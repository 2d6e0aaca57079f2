package workflow

import (
	"context"

	"github.com/hpungsan/memomind/internal/document"
	"github.com/hpungsan/memomind/internal/errors"
	"github.com/hpungsan/memomind/internal/transport"
)

// MCQs generates a question set in one call and tracks quiz progress.
type MCQs struct {
	base
	set  *document.MCQSet
	quiz *MCQSession
}

// MCQView is a snapshot of an MCQ page.
type MCQView struct {
	State State            `json:"state"`
	Set   *document.MCQSet `json:"set,omitempty"`
	Quiz  MCQSession       `json:"quiz"`
}

// NewMCQs binds an MCQ workflow to one uploaded item.
func NewMCQs(deps Deps, itemID, itemName string) *MCQs {
	return &MCQs{base: newBase(document.KindMCQs, deps, itemID, itemName)}
}

// Mount triggers the initial generation once per item.
func (m *MCQs) Mount(ctx context.Context) (bool, error) {
	return m.mount(ctx, m.Generate)
}

// Retry re-enters generation from Failed.
func (m *MCQs) Retry(ctx context.Context) error {
	if err := m.beginRetry(); err != nil {
		return err
	}
	return m.Generate(ctx)
}

// View returns a snapshot of the state, the set and quiz progress.
func (m *MCQs) View() MCQView {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := MCQView{State: m.state, Set: m.set, Quiz: MCQSession{Selected: NoSelection}}
	if m.quiz != nil {
		v.Quiz = *m.quiz
	}
	return v
}

// Document returns a copy of the last known-good question set for saving.
func (m *MCQs) Document() document.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return document.FromMCQs(m.set).Clone()
}

// Quiz runs fn against the quiz session under the workflow lock. Fails when
// no questions are loaded.
func (m *MCQs) Quiz(fn func(*MCQSession) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quiz == nil || m.state.Phase != Ready {
		return errors.NewInvalidRequest("no questions loaded")
	}
	return fn(m.quiz)
}

// Generate fetches the question set. Failure moves to Failed with the set
// cleared.
func (m *MCQs) Generate(ctx context.Context) error {
	userID, err := m.beginGenerate(ctx)
	if err != nil {
		return err
	}
	set, err := m.call(m.deps.Backend.Generate(ctx, m.kind, userID, m.itemID))
	if err != nil {
		m.logFailure("generate", err)
		m.settle(Failed, errors.Reason(err), func() { m.set, m.quiz = nil, nil })
		return err
	}
	if !m.settle(Ready, "", func() { m.replace(set) }) {
		m.discarded("generate")
	}
	return nil
}

// FollowUp replaces the set wholesale and resets progress. On failure the
// prior set and progress are kept.
func (m *MCQs) FollowUp(ctx context.Context, prompt string) error {
	userID, err := m.beginFollowUp(ctx, prompt)
	if err != nil {
		return err
	}
	set, err := m.call(m.deps.Backend.FollowUp(ctx, m.kind, userID, m.itemID, prompt))
	if err != nil {
		m.logFailure("follow-up", err)
		m.settle(Ready, "", nil)
		return err
	}
	if !m.settle(Ready, "", func() { m.replace(set) }) {
		m.discarded("follow-up")
	}
	return nil
}

// Close unmounts the page.
func (m *MCQs) Close(context.Context) error {
	m.markClosed(func() { m.set, m.quiz = nil, nil })
	return nil
}

func (m *MCQs) call(resp *transport.Response, err error) (*document.MCQSet, error) {
	if err != nil {
		return nil, err
	}
	return document.NormalizeMCQs(resp.Body)
}

// replace swaps in a new set with fresh progress. Caller holds m.mu.
func (m *MCQs) replace(set *document.MCQSet) {
	m.set = set
	m.quiz = NewMCQSession(set)
}
