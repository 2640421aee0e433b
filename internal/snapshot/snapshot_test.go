package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quillboard/backend/internal/db"
	"github.com/quillboard/backend/internal/document"
	"github.com/quillboard/backend/internal/state"
)

func setupTestService(t *testing.T) (*Service, *state.Store, *db.Database, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "quillboard-snapshot-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	database, err := db.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	store := state.NewStore(0, func(boardID string) *document.Document {
		return &document.Document{ID: boardID}
	})

	svc := New(database, store, Config{Interval: time.Hour, KeepAutoVersions: 3})

	cleanup := func() {
		database.Close()
		os.RemoveAll(tmpDir)
	}
	return svc, store, database, cleanup
}

func addBlock(t *testing.T, store *state.Store, opID, boardID, blockID, content string) {
	t.Helper()
	block := document.NewBlock(blockID, "paragraph", content)
	if !store.Apply(document.Operation{
		ID:      opID,
		BoardID: boardID,
		Kind:    document.OpAddBlock,
		Block:   &block,
	}) {
		t.Fatalf("Apply %s failed", opID)
	}
}

func TestSaveNowPersistsDirtyRoom(t *testing.T) {
	svc, store, database, cleanup := setupTestService(t)
	defer cleanup()

	addBlock(t, store, "op-1", "room1", "B1", "hello")

	svc.SaveNow("room1")

	doc, revision, err := database.LoadDocument("room1")
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if doc == nil {
		t.Fatal("Expected a persisted document")
	}
	if revision != 1 {
		t.Errorf("Expected revision 1, got %d", revision)
	}
	if len(doc.Blocks) != 1 || doc.Blocks[0].Content != "hello" {
		t.Errorf("Unexpected persisted blocks: %+v", doc.Blocks)
	}
}

func TestSaveNowSkipsCleanRoom(t *testing.T) {
	svc, store, database, cleanup := setupTestService(t)
	defer cleanup()

	addBlock(t, store, "op-1", "room1", "B1", "hello")
	svc.SaveNow("room1")
	svc.SaveNow("room1")

	versions, err := database.ListVersions("room1", 50, 0)
	if err != nil {
		t.Fatalf("ListVersions failed: %v", err)
	}
	if len(versions) != 1 {
		t.Errorf("Unchanged room should not be re-versioned, got %d versions", len(versions))
	}
}

func TestSaveNowAfterFurtherEdits(t *testing.T) {
	svc, store, database, cleanup := setupTestService(t)
	defer cleanup()

	addBlock(t, store, "op-1", "room1", "B1", "hello")
	svc.SaveNow("room1")

	addBlock(t, store, "op-2", "room1", "B2", "world")
	svc.SaveNow("room1")

	doc, revision, err := database.LoadDocument("room1")
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if revision != 2 {
		t.Errorf("Expected revision 2, got %d", revision)
	}
	if len(doc.Blocks) != 2 {
		t.Errorf("Expected 2 blocks, got %d", len(doc.Blocks))
	}
}

func TestAutoVersionPruning(t *testing.T) {
	svc, store, database, cleanup := setupTestService(t)
	defer cleanup()

	for i := 0; i < 6; i++ {
		addBlock(t, store, "op-"+string(rune('a'+i)), "room1", "B"+string(rune('a'+i)), "x")
		svc.SaveNow("room1")
	}

	versions, err := database.ListVersions("room1", 50, 0)
	if err != nil {
		t.Fatalf("ListVersions failed: %v", err)
	}
	if len(versions) != 3 {
		t.Errorf("Expected 3 retained auto versions, got %d", len(versions))
	}
}

func TestTrustsExistingSnapshotRevision(t *testing.T) {
	svc, store, database, cleanup := setupTestService(t)
	defer cleanup()

	// Simulate a prior run: snapshot at revision 2 already on disk, and
	// the restored in-memory room carries the same revision.
	saved := &document.Document{
		ID:     "room1",
		Blocks: []document.ContentBlock{document.NewBlock("B1", "paragraph", "restored")},
	}
	if err := database.SaveDocument(saved, 2); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}
	store.RestoreDocument(saved, 2)

	svc.SaveNow("room1")

	versions, err := database.ListVersions("room1", 50, 0)
	if err != nil {
		t.Fatalf("ListVersions failed: %v", err)
	}
	if len(versions) != 0 {
		t.Errorf("Room at the persisted revision should not be re-saved, got %d versions", len(versions))
	}
}
