package client

import (
	"testing"

	"github.com/quillboard/backend/internal/document"
)

func addBlockOp(id, blockID, content string) document.Operation {
	block := document.NewBlock(blockID, "paragraph", content)
	return document.Operation{
		ID:    id,
		Kind:  document.OpAddBlock,
		Block: &block,
	}
}

func contentOp(id, blockID, content string, position int) document.Operation {
	return document.Operation{
		ID:       id,
		Kind:     document.OpUpdateContent,
		BlockID:  blockID,
		Content:  content,
		Position: position,
	}
}

func TestApplyLocalTracksPending(t *testing.T) {
	rec := NewReconciler("r1")

	if !rec.ApplyLocal(addBlockOp("op-1", "B1", "hello")) {
		t.Fatal("Local apply should succeed")
	}
	if got := len(rec.Pending()); got != 1 {
		t.Fatalf("Expected 1 pending op, got %d", got)
	}

	// Duplicates neither apply nor re-enter the pending set.
	if rec.ApplyLocal(addBlockOp("op-1", "B1", "hello")) {
		t.Error("Duplicate local apply should return false")
	}
	if got := len(rec.Pending()); got != 1 {
		t.Errorf("Expected pending unchanged, got %d", got)
	}
}

func TestAckClearsPending(t *testing.T) {
	rec := NewReconciler("r1")
	rec.ApplyLocal(addBlockOp("op-1", "B1", ""))
	rec.ApplyLocal(contentOp("op-2", "B1", "x", 0))

	rec.Ack("op-1")
	pending := rec.Pending()
	if len(pending) != 1 || pending[0].ID != "op-2" {
		t.Errorf("Expected only op-2 pending, got %+v", pending)
	}

	// Acking an unknown id is a no-op.
	rec.Ack("op-unknown")
	if len(rec.Pending()) != 1 {
		t.Error("Unknown ack changed the pending set")
	}
}

func TestCursorMoveNotPending(t *testing.T) {
	rec := NewReconciler("r1")

	rec.ApplyLocal(document.Operation{
		ID: "op-1", Kind: document.OpCursorMove, UserID: "alice", Position: 2,
	})
	if len(rec.Pending()) != 0 {
		t.Error("Presence-only operations should not be tracked as pending")
	}
}

func TestMergeRemoteSkipsApplied(t *testing.T) {
	rec := NewReconciler("r1")
	rec.ApplyLocal(addBlockOp("op-1", "B1", "hello"))

	// The echo of our own operation (already applied) is skipped.
	applied := rec.MergeRemote([]document.Operation{addBlockOp("op-1", "B1", "hello")})
	if len(applied) != 0 {
		t.Errorf("Already-applied remote op should be skipped, got %d applied", len(applied))
	}
}

func TestMergeRemoteTransformsAgainstPending(t *testing.T) {
	rec := NewReconciler("r1")
	rec.ApplyLocal(addBlockOp("op-0", "B1", "Hello"))

	// Local unacked insertion at 0 with id "a"; remote insertion at 0
	// with id "b" must shift past it.
	rec.ApplyLocal(contentOp("a", "B1", "AA", 0))

	applied := rec.MergeRemote([]document.Operation{contentOp("b", "B1", "BB", 0)})
	if len(applied) != 1 {
		t.Fatalf("Expected 1 applied remote op, got %d", len(applied))
	}
	if applied[0].Position != 2 {
		t.Errorf("Expected remote op shifted to position 2, got %d", applied[0].Position)
	}

	doc := rec.Document()
	if doc.Blocks[0].Content != "AABBHello" {
		t.Errorf("Expected \"AABBHello\", got %q", doc.Blocks[0].Content)
	}
}

func TestMergeRemoteBatchOrder(t *testing.T) {
	rec := NewReconciler("r1")
	rec.ApplyLocal(addBlockOp("op-0", "B1", ""))
	rec.Ack("op-0")

	applied := rec.MergeRemote([]document.Operation{
		contentOp("r1-op", "B1", "one", 0),
		contentOp("r2-op", "B1", " two", 3),
	})
	if len(applied) != 2 {
		t.Fatalf("Expected both remote ops applied, got %d", len(applied))
	}

	doc := rec.Document()
	if doc.Blocks[0].Content != "one two" {
		t.Errorf("Expected \"one two\", got %q", doc.Blocks[0].Content)
	}
}

func TestResyncReplaysPending(t *testing.T) {
	rec := NewReconciler("r1")
	rec.ApplyLocal(addBlockOp("op-0", "B1", "base"))
	rec.Ack("op-0")
	rec.ApplyLocal(contentOp("op-1", "B1", "!", 4))

	// Server snapshot arrives without our in-flight edit.
	rec.Resync(&document.Document{
		ID:     "r1",
		Blocks: []document.ContentBlock{document.NewBlock("B1", "paragraph", "base")},
	})

	doc := rec.Document()
	if doc.Blocks[0].Content != "base!" {
		t.Errorf("Pending op should replay after resync, got %q", doc.Blocks[0].Content)
	}
	if len(rec.Pending()) != 1 {
		t.Errorf("Pending set should survive resync, got %d", len(rec.Pending()))
	}
}

func TestResyncKeepsAppliedIDs(t *testing.T) {
	rec := NewReconciler("r1")
	rec.ApplyLocal(addBlockOp("op-0", "B1", ""))
	rec.Ack("op-0")

	// A remote edit lands, then the connection drops and the snapshot
	// we resync from already includes it.
	rec.MergeRemote([]document.Operation{contentOp("remote-1", "B1", "hi", 0)})
	rec.Resync(&document.Document{
		ID:     "r1",
		Blocks: []document.ContentBlock{document.NewBlock("B1", "paragraph", "hi")},
	})

	// Its broadcast arriving late must not apply a second time.
	applied := rec.MergeRemote([]document.Operation{contentOp("remote-1", "B1", "hi", 0)})
	if len(applied) != 0 {
		t.Errorf("Op folded into the snapshot should stay rejected, got %d applied", len(applied))
	}
	if got := rec.Document().Blocks[0].Content; got != "hi" {
		t.Errorf("Expected \"hi\", got %q", got)
	}
}

func TestConnStateString(t *testing.T) {
	states := map[ConnState]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateReconnecting: "reconnecting",
		StateError:        "error",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("State %d: expected %q, got %q", s, want, s.String())
		}
	}
}
