package workflow

import (
	"context"

	"github.com/hpungsan/memomind/internal/artifact"
	"github.com/hpungsan/memomind/internal/document"
	"github.com/hpungsan/memomind/internal/errors"
)

// Notes runs the two-step notes flow: generate the structure, then export it
// to a PDF.
type Notes struct {
	base
	note *document.Notes
	ref  *artifact.Ref
}

// NotesView is what a renderer shows for a notes page.
type NotesView struct {
	State State           `json:"state"`
	Note  *document.Notes `json:"note,omitempty"`
	PDF   *artifact.Ref   `json:"pdf,omitempty"`
}

// Showing names what the view displays: "pdf", "notes" or "none".
func (v NotesView) Showing() string {
	switch {
	case v.PDF != nil:
		return "pdf"
	case v.Note != nil && v.Note.HasContent():
		return "notes"
	}
	return "none"
}

// NewNotes binds a notes workflow to one uploaded item.
func NewNotes(deps Deps, itemID, itemName string) *Notes {
	return &Notes{base: newBase(document.KindNotes, deps, itemID, itemName)}
}

// View returns a snapshot of the displayed state.
func (n *Notes) View() NotesView {
	n.mu.Lock()
	defer n.mu.Unlock()
	return NotesView{State: n.state, Note: n.note, PDF: n.ref}
}

// Document returns a copy of the last known-good note for saving.
func (n *Notes) Document() document.Document {
	n.mu.Lock()
	defer n.mu.Unlock()
	return document.FromNotes(n.note).Clone()
}

// Mount triggers the initial generation once per item. See base.mount.
func (n *Notes) Mount(ctx context.Context) (bool, error) {
	return n.mount(ctx, n.Generate)
}

// Retry re-enters generation from Failed.
func (n *Notes) Retry(ctx context.Context) error {
	if err := n.beginRetry(); err != nil {
		return err
	}
	return n.Generate(ctx)
}

// Generate runs generate then export. Export is never called when generate
// fails. Any failure moves to Failed with the content cleared.
func (n *Notes) Generate(ctx context.Context) error {
	userID, err := n.beginGenerate(ctx)
	if err != nil {
		return err
	}

	resp, err := n.deps.Backend.Generate(ctx, n.kind, userID, n.itemID)
	if err != nil {
		return n.fail(ctx, "generate", err)
	}
	draft, err := document.NormalizeNotes(resp.Body, nil)
	if err != nil {
		n.deps.Log.Debug("workflow", "generate response carried no note structure", map[string]any{
			"item_id": n.itemID,
			"error":   err.Error(),
		})
		draft = &document.Notes{Title: document.DefaultNotesTitle}
	}

	if !n.settle(Compiling, "", func() { n.note = draft }) {
		n.discarded("generate")
		return nil
	}

	note, ref, err := n.compile(ctx, userID, draft)
	if err != nil {
		return n.fail(ctx, "export", err)
	}
	if !n.settle(Ready, "", func() { n.note, n.ref = note, ref }) {
		n.release(ctx, ref)
		n.discarded("export")
	}
	return nil
}

// FollowUp asks the backend to revise the note, then re-exports it. The
// prior note and PDF stay displayed until both steps succeed; on failure the
// workflow returns to Ready with them intact.
func (n *Notes) FollowUp(ctx context.Context, prompt string) error {
	userID, err := n.beginFollowUp(ctx, prompt)
	if err != nil {
		return err
	}

	n.mu.Lock()
	prev := n.note
	n.mu.Unlock()

	resp, err := n.deps.Backend.FollowUp(ctx, n.kind, userID, n.itemID, prompt)
	if err != nil {
		return n.restore("follow-up", err)
	}
	draft, err := document.NormalizeNotes(resp.Body, prev)
	if err != nil {
		return n.restore("follow-up", err)
	}

	if !n.settle(Compiling, "", nil) {
		n.discarded("follow-up")
		return nil
	}

	note, ref, err := n.compile(ctx, userID, draft)
	if err != nil {
		return n.restore("export", err)
	}

	var old *artifact.Ref
	if !n.settle(Ready, "", func() {
		old = n.ref
		n.note, n.ref = note, ref
	}) {
		n.release(ctx, ref)
		n.discarded("follow-up")
		return nil
	}
	// The previous PDF stays live until the new export has been assigned, so
	// a failed follow-up still shows it. It is released right after the swap.
	n.release(ctx, old)
	return nil
}

// Close unmounts the page and releases the current PDF reference. Results
// that arrive afterwards are discarded.
func (n *Notes) Close(ctx context.Context) error {
	var ref *artifact.Ref
	if !n.markClosed(func() {
		ref = n.ref
		n.ref = nil
		n.note = nil
	}) {
		return nil
	}
	if ref == nil || n.deps.Artifacts == nil {
		return nil
	}
	return n.deps.Artifacts.Release(context.WithoutCancel(ctx), ref)
}

// compile exports the note and classifies the result. A structured export
// yields no PDF and replaces the draft with the exported structure.
func (n *Notes) compile(ctx context.Context, userID string, draft *document.Notes) (*document.Notes, *artifact.Ref, error) {
	resp, err := n.deps.Backend.Export(ctx, userID, n.itemID)
	if err != nil {
		return nil, nil, err
	}
	res := artifact.Classify(resp)
	note := draft
	if res.Structured != nil {
		if note, err = document.NotesFromObject(res.Structured, draft); err != nil {
			return nil, nil, err
		}
	}
	switch res.Kind {
	case artifact.KindMalformed:
		return nil, nil, res.Err()
	case artifact.KindStructured:
		return note, nil, nil
	}
	if n.deps.Artifacts == nil {
		return nil, nil, errors.NewInternal(nil)
	}
	ref, err := n.deps.Artifacts.Adopt(ctx, "notes:"+n.itemID, res.Binary)
	if err != nil {
		return nil, nil, err
	}
	return note, ref, nil
}

// fail moves to Failed and clears the content, releasing any PDF.
func (n *Notes) fail(ctx context.Context, op string, err error) error {
	n.logFailure(op, err)
	var old *artifact.Ref
	if n.settle(Failed, errors.Reason(err), func() {
		old = n.ref
		n.note, n.ref = nil, nil
	}) {
		n.release(ctx, old)
	}
	return err
}

// restore returns to Ready after a failed follow-up, keeping prior content.
func (n *Notes) restore(op string, err error) error {
	n.logFailure(op, err)
	n.settle(Ready, "", nil)
	return err
}

func (n *Notes) release(ctx context.Context, ref *artifact.Ref) {
	if ref == nil || n.deps.Artifacts == nil {
		return
	}
	if err := n.deps.Artifacts.Release(context.WithoutCancel(ctx), ref); err != nil {
		n.deps.Log.Warn("workflow", "failed to release PDF", map[string]any{
			"item_id": n.itemID,
			"error":   err.Error(),
		})
	}
}
