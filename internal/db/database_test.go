package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quillboard/backend/internal/document"
)

func setupTestDB(t *testing.T) (*Database, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "quillboard-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := New(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return db, cleanup
}

func TestDatabaseCreation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if db == nil {
		t.Fatal("Database should not be nil")
	}
}

func TestRoomOperations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	// Create room
	err := db.CreateRoom("test-room", "Test Room")
	if err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}

	// Get room
	room, err := db.GetRoom("test-room")
	if err != nil {
		t.Fatalf("Failed to get room: %v", err)
	}
	if room == nil {
		t.Fatal("Room should exist")
	}
	if room.ID != "test-room" {
		t.Errorf("Expected room ID 'test-room', got '%s'", room.ID)
	}
	if room.Name != "Test Room" {
		t.Errorf("Expected room name 'Test Room', got '%s'", room.Name)
	}

	// Get non-existent room
	room, err = db.GetRoom("non-existent")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if room != nil {
		t.Error("Non-existent room should return nil")
	}

	err = db.DeleteRoom("test-room")
	if err != nil {
		t.Fatalf("Failed to delete room: %v", err)
	}

	// Verify deletion
	room, err = db.GetRoom("test-room")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if room != nil {
		t.Error("Deleted room should not exist")
	}
}

func TestListRooms(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	for i := 0; i < 5; i++ {
		err := db.CreateRoom("room-"+string(rune('a'+i)), "Room "+string(rune('A'+i)))
		if err != nil {
			t.Fatalf("Failed to create room: %v", err)
		}
	}

	rooms, err := db.ListRooms(10, 0)
	if err != nil {
		t.Fatalf("Failed to list rooms: %v", err)
	}
	if len(rooms) != 5 {
		t.Errorf("Expected 5 rooms, got %d", len(rooms))
	}

	rooms, err = db.ListRooms(2, 0)
	if err != nil {
		t.Fatalf("Failed to list rooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Errorf("Expected 2 rooms with limit, got %d", len(rooms))
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	doc := &document.Document{
		ID: "doc-room",
		Blocks: []document.ContentBlock{
			document.NewBlock("B1", "heading1", "Title"),
			document.NewBlock("B2", "paragraph", "Body text"),
		},
	}

	if err := db.SaveDocument(doc, 3); err != nil {
		t.Fatalf("Failed to save document: %v", err)
	}

	loaded, revision, err := db.LoadDocument("doc-room")
	if err != nil {
		t.Fatalf("Failed to load document: %v", err)
	}
	if loaded == nil {
		t.Fatal("Document should exist")
	}
	if revision != 3 {
		t.Errorf("Expected revision 3, got %d", revision)
	}
	if len(loaded.Blocks) != 2 {
		t.Fatalf("Expected 2 blocks, got %d", len(loaded.Blocks))
	}
	if loaded.Blocks[0].Content != "Title" || loaded.Blocks[1].Content != "Body text" {
		t.Errorf("Block content mismatch: %+v", loaded.Blocks)
	}

	// Missing snapshot is nil, not an error.
	loaded, _, err = db.LoadDocument("never-saved")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if loaded != nil {
		t.Error("Missing snapshot should return nil")
	}
}

func TestDocumentOverwrite(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	doc := &document.Document{
		ID:     "doc-room",
		Blocks: []document.ContentBlock{document.NewBlock("B1", "paragraph", "v1")},
	}
	if err := db.SaveDocument(doc, 1); err != nil {
		t.Fatalf("Failed to save document: %v", err)
	}

	doc.Blocks[0].Content = "v2"
	if err := db.SaveDocument(doc, 2); err != nil {
		t.Fatalf("Failed to overwrite document: %v", err)
	}

	loaded, revision, err := db.LoadDocument("doc-room")
	if err != nil {
		t.Fatalf("Failed to load document: %v", err)
	}
	if revision != 2 || loaded.Blocks[0].Content != "v2" {
		t.Errorf("Expected v2 at revision 2, got %q at %d", loaded.Blocks[0].Content, revision)
	}

	rev, err := db.GetSnapshotRevision("doc-room")
	if err != nil || rev != 2 {
		t.Errorf("Expected snapshot revision 2, got %d (err %v)", rev, err)
	}
}

func TestVersionOperations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.CreateRoom("v-room", ""); err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}

	v, err := db.CreateVersion("v-room", "first draft", "initial", `{"blocks":[]}`, "alice", false)
	if err != nil {
		t.Fatalf("Failed to create version: %v", err)
	}
	if v == nil || v.Name != "first draft" || v.CreatedBy != "alice" {
		t.Errorf("Unexpected version: %+v", v)
	}

	versions, err := db.ListVersions("v-room", 10, 0)
	if err != nil {
		t.Fatalf("Failed to list versions: %v", err)
	}
	if len(versions) != 1 {
		t.Errorf("Expected 1 version, got %d", len(versions))
	}
}

func TestDeleteOldAutoVersions(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.CreateRoom("v-room", ""); err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := db.CreateVersion("v-room", "autosave", "", "{}", "", true); err != nil {
			t.Fatalf("Failed to create version: %v", err)
		}
	}
	if _, err := db.CreateVersion("v-room", "manual", "", "{}", "alice", false); err != nil {
		t.Fatalf("Failed to create version: %v", err)
	}

	if err := db.DeleteOldAutoVersions("v-room", 2); err != nil {
		t.Fatalf("Failed to prune versions: %v", err)
	}

	versions, err := db.ListVersions("v-room", 10, 0)
	if err != nil {
		t.Fatalf("Failed to list versions: %v", err)
	}

	auto, manual := 0, 0
	for _, v := range versions {
		if v.IsAuto {
			auto++
		} else {
			manual++
		}
	}
	if auto != 2 {
		t.Errorf("Expected 2 auto versions kept, got %d", auto)
	}
	if manual != 1 {
		t.Errorf("Manual versions must survive pruning, got %d", manual)
	}
}

func TestStats(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		if err := db.CreateRoom("stats-room-"+string(rune('a'+i)), ""); err != nil {
			t.Fatalf("Failed to create room: %v", err)
		}
	}
	if _, err := db.CreateVersion("stats-room-a", "v", "", "{}", "", true); err != nil {
		t.Fatalf("Failed to create version: %v", err)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}

	if stats["room_count"].(int) != 3 {
		t.Errorf("Expected 3 rooms, got %v", stats["room_count"])
	}
	if stats["version_count"].(int) != 1 {
		t.Errorf("Expected 1 version, got %v", stats["version_count"])
	}
}
