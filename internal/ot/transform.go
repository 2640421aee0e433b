// Package ot adjusts operations so they remain correct when applied after
// concurrently-originated operations. All functions are pure.
package ot

import (
	"github.com/quillboard/backend/internal/document"
)

// Transform folds op through transformPair against each element of
// concurrent, left to right, and returns the adjusted operation.
//
// The fold order is the caller's: the result depends on it, so all
// replicas must present concurrent sets in a consistent order to
// converge. This is a documented limitation, not a CRDT guarantee.
func Transform(op document.Operation, concurrent []document.Operation) document.Operation {
	for i := range concurrent {
		op = transformPair(op, concurrent[i])
	}
	return op
}

// transformPair derives the version of a that can be applied after b has
// already been applied. b is never modified.
func transformPair(a, b document.Operation) document.Operation {
	switch a.Kind {
	case document.OpUpdateContent:
		switch b.Kind {
		case document.OpUpdateContent:
			if a.BlockID == b.BlockID {
				return transformContentContent(a, b)
			}
		case document.OpDeleteBlock:
			// A concurrent delete of a's target is tolerated: the update
			// proceeds and degrades to a no-op at apply time.
			return a
		}
		return a

	case document.OpAddBlock:
		if b.Kind == document.OpAddBlock {
			return transformAddAdd(a, b)
		}
		return a

	case document.OpDeleteBlock, document.OpUpdateFormatting,
		document.OpUpdateType, document.OpCursorMove:
		// Operations on disjoint blocks never conflict, and same-block
		// pairings here commute at apply time (last write wins on
		// formatting/type, delete is idempotent, cursors are presence-only).
		return a
	}
	return a
}

// Two content insertions into the same block. An insertion before a's
// point pushes a right. Equal positions are ordered by operation id: the
// lexicographically smaller id counts as applied first, so the larger
// id shifts forward. Every replica performs the same comparison, which
// yields a total order.
func transformContentContent(a, b document.Operation) document.Operation {
	if b.Position < a.Position || (b.Position == a.Position && b.ID < a.ID) {
		a.Position += len(b.Content)
	}
	return a
}

// Two block insertions. When both share an anchor, id order decides who
// stacks first: the loser is re-anchored after the winner's new block so
// inserts pile up deterministically instead of racing for the same slot.
// When b created exactly the block a anchors on, a's anchor is already
// b's new block and needs no adjustment.
func transformAddAdd(a, b document.Operation) document.Operation {
	if b.Block == nil {
		return a
	}
	if sameAnchor(a.AfterBlockID, b.AfterBlockID) && b.ID < a.ID {
		anchor := b.Block.ID
		a.AfterBlockID = &anchor
	}
	return a
}

func sameAnchor(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
