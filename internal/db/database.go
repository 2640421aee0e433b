package db

import (
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quillboard/backend/internal/document"
)

// Database is the snapshot source/sink for room documents. The live
// sync engine never waits on it; the snapshot service writes through it
// in the background.
type Database struct {
	db *sql.DB
}

type Room struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Version struct {
	ID          int       `json:"id"`
	RoomID      string    `json:"room_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	IsAuto      bool      `json:"is_auto"` // Auto-saved vs manual
}

func New(dbPath string) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	log.Printf("Database initialized at %s", dbPath)
	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS document_snapshots (
		room_id TEXT PRIMARY KEY,
		document_data BLOB NOT NULL,
		revision INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS document_versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT DEFAULT '',
		content TEXT NOT NULL,
		created_by TEXT DEFAULT '',
		is_auto BOOLEAN DEFAULT FALSE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_document_versions_room_id ON document_versions(room_id);
	CREATE INDEX IF NOT EXISTS idx_document_versions_created_at ON document_versions(room_id, created_at DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Room operations

func (d *Database) CreateRoom(id, name string) error {
	_, err := d.db.Exec(
		"INSERT OR IGNORE INTO rooms (id, name) VALUES (?, ?)",
		id, name,
	)
	return err
}

func (d *Database) GetRoom(id string) (*Room, error) {
	row := d.db.QueryRow(
		"SELECT id, name, created_at, updated_at FROM rooms WHERE id = ?",
		id,
	)

	var room Room
	err := row.Scan(&room.ID, &room.Name, &room.CreatedAt, &room.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (d *Database) ListRooms(limit, offset int) ([]Room, error) {
	rows, err := d.db.Query(
		"SELECT id, name, created_at, updated_at FROM rooms ORDER BY updated_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (d *Database) UpdateRoomTimestamp(id string) error {
	_, err := d.db.Exec(
		"UPDATE rooms SET updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		id,
	)
	return err
}

func (d *Database) DeleteRoom(id string) error {
	_, err := d.db.Exec("DELETE FROM rooms WHERE id = ?", id)
	return err
}

// Snapshot operations

// SaveDocument persists the full document for a room along with the
// revision it reflects.
func (d *Database) SaveDocument(doc *document.Document, revision int) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := d.CreateRoom(doc.ID, ""); err != nil {
		return err
	}
	_, err = d.db.Exec(`
		INSERT INTO document_snapshots (room_id, document_data, revision, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(room_id) DO UPDATE SET
			document_data = excluded.document_data,
			revision = excluded.revision,
			updated_at = CURRENT_TIMESTAMP
	`, doc.ID, data, revision)
	if err != nil {
		return err
	}
	return d.UpdateRoomTimestamp(doc.ID)
}

// LoadDocument returns the persisted document for a room, or nil when no
// snapshot exists.
func (d *Database) LoadDocument(roomID string) (*document.Document, int, error) {
	var data []byte
	var revision int
	err := d.db.QueryRow(
		"SELECT document_data, revision FROM document_snapshots WHERE room_id = ?",
		roomID,
	).Scan(&data, &revision)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	var doc document.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, err
	}
	return &doc, revision, nil
}

// GetSnapshotRevision returns the revision of the stored snapshot, 0 when
// absent.
func (d *Database) GetSnapshotRevision(roomID string) (int, error) {
	var revision int
	err := d.db.QueryRow(
		"SELECT revision FROM document_snapshots WHERE room_id = ?",
		roomID,
	).Scan(&revision)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return revision, err
}

// Version operations

// CreateVersion saves a named point-in-time copy of the document.
func (d *Database) CreateVersion(roomID, name, description, content, createdBy string, isAuto bool) (*Version, error) {
	result, err := d.db.Exec(`
		INSERT INTO document_versions (room_id, name, description, content, created_by, is_auto)
		VALUES (?, ?, ?, ?, ?, ?)
	`, roomID, name, description, content, createdBy, isAuto)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return d.GetVersion(int(id))
}

// GetVersion retrieves a specific version by ID
func (d *Database) GetVersion(id int) (*Version, error) {
	row := d.db.QueryRow(`
		SELECT id, room_id, name, description, content, created_by, is_auto, created_at
		FROM document_versions WHERE id = ?
	`, id)

	var v Version
	err := row.Scan(&v.ID, &v.RoomID, &v.Name, &v.Description, &v.Content, &v.CreatedBy, &v.IsAuto, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVersions returns all versions for a room, newest first
func (d *Database) ListVersions(roomID string, limit, offset int) ([]Version, error) {
	rows, err := d.db.Query(`
		SELECT id, room_id, name, description, content, created_by, is_auto, created_at
		FROM document_versions
		WHERE room_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, roomID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.RoomID, &v.Name, &v.Description, &v.Content, &v.CreatedBy, &v.IsAuto, &v.CreatedAt); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// DeleteOldAutoVersions removes old auto-saved versions, keeping the most recent N
func (d *Database) DeleteOldAutoVersions(roomID string, keepCount int) error {
	_, err := d.db.Exec(`
		DELETE FROM document_versions
		WHERE room_id = ? AND is_auto = TRUE AND id NOT IN (
			SELECT id FROM document_versions
			WHERE room_id = ? AND is_auto = TRUE
			ORDER BY created_at DESC
			LIMIT ?
		)
	`, roomID, roomID, keepCount)
	return err
}

// Stats

func (d *Database) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var roomCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM rooms").Scan(&roomCount); err != nil {
		return nil, err
	}
	stats["room_count"] = roomCount

	var versionCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM document_versions").Scan(&versionCount); err != nil {
		return nil, err
	}
	stats["version_count"] = versionCount

	return stats, nil
}
