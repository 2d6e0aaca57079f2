// Package workflow orchestrates one content page: the initial generation,
// follow-up regeneration and the state a renderer displays.
//
// Each workflow instance owns its state behind a mutex. Only one generation
// or follow-up runs per instance; a second call while one is active gets
// BUSY. Close marks the instance unmounted: results that arrive afterwards
// are discarded and any local PDF reference created for them is released.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hpungsan/memomind/internal/artifact"
	"github.com/hpungsan/memomind/internal/dedupe"
	"github.com/hpungsan/memomind/internal/document"
	"github.com/hpungsan/memomind/internal/errors"
	"github.com/hpungsan/memomind/internal/logger"
	"github.com/hpungsan/memomind/internal/session"
	"github.com/hpungsan/memomind/internal/transport"
)

// Phase is the displayed state of a workflow.
type Phase int

const (
	Idle Phase = iota
	Generating
	Compiling
	AwaitingFollowUp
	Ready
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Generating:
		return "generating"
	case Compiling:
		return "compiling"
	case AwaitingFollowUp:
		return "awaiting_follow_up"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Busy reports whether a call is in flight in this phase.
func (p Phase) Busy() bool {
	return p == Generating || p == Compiling || p == AwaitingFollowUp
}

// State is a phase plus the failure reason when Failed.
type State struct {
	Phase  Phase  `json:"phase"`
	Reason string `json:"reason,omitempty"`
}

// Backend is the subset of backend calls a workflow makes.
type Backend interface {
	Generate(ctx context.Context, kind document.Kind, userID, itemID string) (*transport.Response, error)
	Export(ctx context.Context, userID, itemID string) (*transport.Response, error)
	FollowUp(ctx context.Context, kind document.Kind, userID, itemID, prompt string) (*transport.Response, error)
}

// Identity supplies the current user.
type Identity interface {
	Get(ctx context.Context) (session.Identity, error)
}

// Artifacts creates and releases local PDF references.
type Artifacts interface {
	Adopt(ctx context.Context, owner string, b *artifact.Binary) (*artifact.Ref, error)
	Release(ctx context.Context, ref *artifact.Ref) error
}

// Deps are the collaborators shared by every workflow.
type Deps struct {
	Backend   Backend
	Identity  Identity
	Artifacts Artifacts
	// Dedupe suppresses repeat initial generations across instances. Optional.
	Dedupe *dedupe.Cache
	Log    logger.Logger
}

// base holds what every workflow kind shares.
type base struct {
	kind     document.Kind
	deps     Deps
	itemID   string
	itemName string
	guard    *dedupe.Guard

	mu        sync.Mutex
	state     State
	closed    bool
	listeners []func(State)
}

func newBase(kind document.Kind, deps Deps, itemID, itemName string) base {
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	if deps.Dedupe == nil {
		deps.Dedupe = dedupe.New(0)
	}
	return base{
		kind:     kind,
		deps:     deps,
		itemID:   itemID,
		itemName: itemName,
		guard:    deps.Dedupe.Guard(kind),
	}
}

// Kind returns the workflow's content kind.
func (b *base) Kind() document.Kind { return b.kind }

// ItemID returns the bound item id.
func (b *base) ItemID() string { return b.itemID }

// ItemName returns the bound item name.
func (b *base) ItemName() string { return b.itemName }

// State returns the current state.
func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// OnChange registers a listener called after every phase transition.
func (b *base) OnChange(fn func(State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Closed reports whether Close has been called.
func (b *base) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// setLocked changes the state and returns the listeners to notify once the
// lock is released. Caller holds b.mu.
func (b *base) setLocked(p Phase, reason string) (State, []func(State)) {
	b.state = State{Phase: p, Reason: reason}
	return b.state, append([]func(State){}, b.listeners...)
}

func notify(st State, listeners []func(State)) {
	for _, fn := range listeners {
		fn(st)
	}
}

// identity resolves the user id or returns AUTH_REQUIRED.
func (b *base) identity(ctx context.Context) (string, error) {
	if b.deps.Identity == nil {
		return "", errors.NewAuthRequired()
	}
	id, err := b.deps.Identity.Get(ctx)
	if err != nil {
		return "", err
	}
	if !id.Present() || id.UserID == "" {
		return "", errors.NewAuthRequired()
	}
	return id.UserID, nil
}

// beginGenerate moves Idle/Failed to Generating. Caller must not hold b.mu.
// A missing identity or item id fails the workflow with that reason.
func (b *base) beginGenerate(ctx context.Context) (string, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", errors.NewInvalidRequest("workflow is closed")
	}
	if b.state.Phase.Busy() {
		phase := b.state.Phase.String()
		b.mu.Unlock()
		return "", errors.NewBusy(phase)
	}
	if b.state.Phase == Ready {
		b.mu.Unlock()
		return "", errors.NewInvalidRequest("content already generated; use a follow-up to change it")
	}
	b.mu.Unlock()

	userID, err := b.identity(ctx)
	if err == nil && b.itemID == "" {
		err = errors.NewInvalidRequest("no itemId provided")
	}

	b.mu.Lock()
	if b.state.Phase.Busy() {
		phase := b.state.Phase.String()
		b.mu.Unlock()
		return "", errors.NewBusy(phase)
	}
	if err != nil {
		st, ls := b.setLocked(Failed, errors.Reason(err))
		b.mu.Unlock()
		notify(st, ls)
		return "", err
	}
	st, ls := b.setLocked(Generating, "")
	b.mu.Unlock()
	notify(st, ls)
	return userID, nil
}

// beginFollowUp validates a follow-up locally and moves Ready to
// AwaitingFollowUp. Every rejection happens before any network call.
func (b *base) beginFollowUp(ctx context.Context, prompt string) (string, error) {
	userID, err := b.identity(ctx)
	if err != nil {
		return "", err
	}
	if b.itemID == "" {
		return "", errors.NewInvalidRequest("no item id available for follow-up")
	}
	if strings.TrimSpace(prompt) == "" {
		return "", errors.NewInvalidRequest("prompt is required")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", errors.NewInvalidRequest("workflow is closed")
	}
	if b.state.Phase.Busy() {
		phase := b.state.Phase.String()
		b.mu.Unlock()
		return "", errors.NewBusy(phase)
	}
	if b.state.Phase != Ready {
		b.mu.Unlock()
		return "", errors.NewInvalidRequest("no content to follow up on")
	}
	st, ls := b.setLocked(AwaitingFollowUp, "")
	b.mu.Unlock()
	notify(st, ls)
	return userID, nil
}

// mount triggers the initial generation the first time this item is shown.
// Returns false without calling the backend when the item was already
// triggered. A failed generation is not re-triggered by mounting again;
// Retry is the explicit path.
func (b *base) mount(ctx context.Context, run func(context.Context) error) (bool, error) {
	if !b.guard.Mount(b.itemID) {
		b.deps.Log.Debug("workflow", "generation already triggered, skipping", map[string]any{
			"kind":    string(b.kind),
			"item_id": b.itemID,
		})
		return false, nil
	}
	err := run(ctx)
	b.guard.Done(b.itemID)
	return true, err
}

func (b *base) logFailure(op string, err error) {
	b.deps.Log.Warn("workflow", op+" failed", map[string]any{
		"kind":    string(b.kind),
		"item_id": b.itemID,
		"error":   err.Error(),
	})
}

// settle applies a result and moves to p unless the workflow was closed in
// the meantime. Returns false when the result was discarded.
func (b *base) settle(p Phase, reason string, apply func()) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	if apply != nil {
		apply()
	}
	st, ls := b.setLocked(p, reason)
	b.mu.Unlock()
	notify(st, ls)
	return true
}

// markClosed flips closed once and runs drop under the lock.
// Returns false when already closed.
func (b *base) markClosed(drop func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.closed = true
	b.listeners = nil
	if drop != nil {
		drop()
	}
	return true
}

func (b *base) discarded(op string) {
	b.deps.Log.Debug("workflow", op+" result discarded after close", map[string]any{
		"kind":    string(b.kind),
		"item_id": b.itemID,
	})
}

// beginRetry checks that the workflow is in Failed.
func (b *base) beginRetry() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.Phase != Failed {
		return errors.NewInvalidRequest("retry is only available after a failed generation")
	}
	return nil
}

// FollowUpAlert formats a rejected or failed follow-up for a transient alert.
func FollowUpAlert(err error) string {
	if apiErr, ok := errors.As(err); ok && apiErr.Code == errors.ErrServerError {
		return fmt.Sprintf("Follow-up failed (%d): %s", apiErr.Status, apiErr.Message)
	}
	return errors.Reason(err)
}
