// Package client implements the editor side of the sync protocol:
// merging remote operations against locally pending ones and keeping a
// connection alive across network loss.
package client

import (
	"sync"

	"github.com/quillboard/backend/internal/document"
	"github.com/quillboard/backend/internal/ot"
	"github.com/quillboard/backend/internal/state"
)

// Reconciler tracks the local replica of one room's document plus the
// locally originated operations the server has not yet acknowledged.
type Reconciler struct {
	mu      sync.Mutex
	boardID string
	store   *state.Store
	pending []document.Operation
}

func NewReconciler(boardID string) *Reconciler {
	return &Reconciler{
		boardID: boardID,
		store:   state.NewStore(state.DefaultHistoryLimit, nil),
	}
}

// ApplyLocal applies a locally originated operation and marks it pending
// until the server acknowledges it.
func (r *Reconciler) ApplyLocal(op document.Operation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	op.BoardID = r.boardID
	if !r.store.Apply(op) {
		return false
	}
	if !op.PresenceOnly() {
		r.pending = append(r.pending, op)
	}
	return true
}

// Ack clears an operation from the pending set once the server has
// confirmed it.
func (r *Reconciler) Ack(operationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.pending {
		if r.pending[i].ID == operationID {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return
		}
	}
}

// MergeRemote folds a batch of remote operations into the local replica.
// Already-applied ids are skipped; the rest are transformed against the
// pending set before applying. Returns the operations actually applied,
// in their transformed form.
func (r *Reconciler) MergeRemote(remote []document.Operation) []document.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()

	var applied []document.Operation
	for _, op := range remote {
		if r.store.Applied(op.ID) {
			continue
		}
		transformed := ot.Transform(op, r.pending)
		if r.store.Apply(transformed) {
			applied = append(applied, transformed)
		}
	}
	return applied
}

// Pending returns the unacknowledged local operations, oldest first.
func (r *Reconciler) Pending() []document.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]document.Operation, len(r.pending))
	copy(out, r.pending)
	return out
}

// Document returns a copy of the local replica.
func (r *Reconciler) Document() *document.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Document(r.boardID)
}

// Resync replaces the local replica with a server snapshot and replays
// the pending operations on top, so in-flight local edits survive a
// reconnect. The applied-id set carries over: an operation folded into
// the snapshot stays rejected if its broadcast arrives late.
func (r *Reconciler) Resync(doc *document.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := r.store.AppliedIDs()
	r.store = state.NewStore(state.DefaultHistoryLimit, nil)
	r.store.RestoreDocument(doc, 0)
	for _, op := range r.pending {
		r.store.Apply(op)
	}
	r.store.MarkApplied(seen)
}
