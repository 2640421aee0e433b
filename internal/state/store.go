// Package state owns the live document for each room and applies
// operations to it sequentially.
package state

import (
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/quillboard/backend/internal/document"
)

const (
	// Retention cap for per-room operation history.
	DefaultHistoryLimit = 200

	// Size of the applied-operation idempotency set. Old ids eventually
	// age out; duplicate delivery windows are far shorter than this.
	appliedCacheSize = 8192
)

type roomState struct {
	doc      *document.Document
	history  []document.Operation
	revision int
}

// Store holds every room's document, the applied-operation set used for
// idempotency, and a bounded operation history per room. All methods are
// safe for concurrent use; Apply serializes mutations.
type Store struct {
	mu           sync.RWMutex
	rooms        map[string]*roomState
	applied      *lru.Cache[string, struct{}]
	historyLimit int
	seed         func(boardID string) *document.Document
}

// Creates a store. A nil seed falls back to WelcomeDocument.
func NewStore(historyLimit int, seed func(boardID string) *document.Document) *Store {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if seed == nil {
		seed = WelcomeDocument
	}
	applied, _ := lru.New[string, struct{}](appliedCacheSize)
	return &Store{
		rooms:        make(map[string]*roomState),
		applied:      applied,
		historyLimit: historyLimit,
		seed:         seed,
	}
}

// The document every room starts from when no snapshot exists.
func WelcomeDocument(boardID string) *document.Document {
	return &document.Document{
		ID: boardID,
		Blocks: []document.ContentBlock{
			document.NewBlock(uuid.NewString(), "heading1", "Untitled"),
			document.NewBlock(uuid.NewString(), "paragraph", ""),
		},
	}
}

// Apply applies op to its room's document. Returns false without touching
// any state when the operation id was already applied. Malformed
// references (missing block, out-of-range position) degrade to no-ops
// rather than rejecting the operation.
func (s *Store) Apply(op document.Operation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.applied.Get(op.ID); dup {
		return false
	}

	room := s.room(op.BoardID)
	applyToDocument(room.doc, &op)

	s.applied.Add(op.ID, struct{}{})
	room.history = append(room.history, op)
	if len(room.history) > s.historyLimit {
		room.history = room.history[len(room.history)-s.historyLimit:]
	}
	if !op.PresenceOnly() {
		room.revision++
	}
	return true
}

// Applied reports whether an operation id has been applied.
func (s *Store) Applied(operationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.applied.Get(operationID)
	return ok
}

// AppliedIDs returns the idempotency set's ids, oldest first.
func (s *Store) AppliedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied.Keys()
}

// MarkApplied records ids as applied without touching any document, so a
// rebuilt replica keeps rejecting operations it has already seen.
func (s *Store) MarkApplied(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.applied.Add(id, struct{}{})
	}
}

// Document returns a copy of the room's document, seeding it on first
// access.
func (s *Store) Document(boardID string) *document.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room(boardID).doc.Clone()
}

// RestoreDocument replaces a room's document with a persisted snapshot,
// keeping the revision counter aligned with what was saved.
func (s *Store) RestoreDocument(doc *document.Document, revision int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[doc.ID] = &roomState{doc: doc.Clone(), revision: revision}
}

// Loaded reports whether the room's document is already in memory.
func (s *Store) Loaded(boardID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[boardID]
	return ok
}

// History returns the room's retained operations, oldest first.
func (s *Store) History(boardID string) []document.Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[boardID]
	if !ok {
		return nil
	}
	out := make([]document.Operation, len(room.history))
	copy(out, room.history)
	return out
}

// Revision returns a counter incremented on every content mutation,
// used by the snapshot service to detect dirty rooms.
func (s *Store) Revision(boardID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if room, ok := s.rooms[boardID]; ok {
		return room.revision
	}
	return 0
}

// RoomIDs lists rooms currently held in memory.
func (s *Store) RoomIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Caller holds s.mu.
func (s *Store) room(boardID string) *roomState {
	room, ok := s.rooms[boardID]
	if !ok {
		room = &roomState{doc: s.seed(boardID)}
		s.rooms[boardID] = room
	}
	return room
}

// Dispatches on the operation kind and mutates doc in place.
func applyToDocument(doc *document.Document, op *document.Operation) {
	switch op.Kind {
	case document.OpAddBlock:
		applyAddBlock(doc, op)
	case document.OpDeleteBlock:
		if i := doc.IndexOf(op.BlockID); i >= 0 {
			doc.Blocks = append(doc.Blocks[:i], doc.Blocks[i+1:]...)
		}
	case document.OpUpdateContent:
		applyUpdateContent(doc, op)
	case document.OpUpdateFormatting:
		applyUpdateFormatting(doc, op)
	case document.OpUpdateType:
		if i := doc.IndexOf(op.BlockID); i >= 0 {
			doc.Blocks[i].Type = op.NewType
		}
	case document.OpCursorMove:
		// Presence-only, never touches the block sequence.
	}
}

func applyAddBlock(doc *document.Document, op *document.Operation) {
	if op.Block == nil || doc.IndexOf(op.Block.ID) >= 0 {
		return
	}
	block := *op.Block
	if op.AfterBlockID == nil {
		doc.Blocks = append([]document.ContentBlock{block}, doc.Blocks...)
		return
	}
	// A stale anchor appends at the end rather than failing the insert.
	i := doc.IndexOf(*op.AfterBlockID)
	if i < 0 {
		doc.Blocks = append(doc.Blocks, block)
		return
	}
	doc.Blocks = append(doc.Blocks, document.ContentBlock{})
	copy(doc.Blocks[i+2:], doc.Blocks[i+1:])
	doc.Blocks[i+1] = block
}

func applyUpdateContent(doc *document.Document, op *document.Operation) {
	i := doc.IndexOf(op.BlockID)
	if i < 0 {
		return
	}
	existing := doc.Blocks[i].Content
	pos := op.Position
	if pos < 0 {
		pos = 0
	}
	if pos > len(existing) {
		pos = len(existing)
	}
	doc.Blocks[i].Content = existing[:pos] + op.Content + existing[pos:]
}

func applyUpdateFormatting(doc *document.Document, op *document.Operation) {
	i := doc.IndexOf(op.BlockID)
	if i < 0 || op.Formatting == nil {
		return
	}
	b := &doc.Blocks[i]
	p := op.Formatting
	if p.FontWeight != nil {
		b.FontWeight = *p.FontWeight
	}
	if p.FontStyle != nil {
		b.FontStyle = *p.FontStyle
	}
	if p.TextDecoration != nil {
		b.TextDecoration = *p.TextDecoration
	}
	if p.FontSize != nil {
		b.FontSize = *p.FontSize
	}
	if p.Color != nil {
		b.Color = *p.Color
	}
	if p.TextAlign != nil {
		b.TextAlign = *p.TextAlign
	}
}
