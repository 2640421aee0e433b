// Package registry tracks which sessions are in which room and fans
// messages out to them.
package registry

import (
	"log"
	"sync"

	"github.com/quillboard/backend/internal/document"
)

// Session is one live connection. Send must not block: it returns an
// error when the session's outbound path is closed or full, which the
// registry treats as a dead connection.
type Session interface {
	ID() string
	Send(data []byte) error
}

type binding struct {
	boardID string
	userID  string
}

// Registry is the shared session/presence state. Membership changes
// commute, so a single RWMutex over plain maps is enough; document
// mutation order is the state machine's concern, not ours.
type Registry struct {
	mu           sync.RWMutex
	rooms        map[string]map[Session]bool
	userSessions map[string]map[Session]bool
	bindings     map[Session]binding
	presence     map[string]map[string]*document.PresenceInfo

	// Called after a reaped session's user has no sessions left in the
	// room, so the transport can announce the departure.
	onUserLeft func(boardID, userID string)
}

// SetUserLeftHandler installs the departure callback. Must be called
// before sessions join.
func (r *Registry) SetUserLeftHandler(fn func(boardID, userID string)) {
	r.onUserLeft = fn
}

func New() *Registry {
	return &Registry{
		rooms:        make(map[string]map[Session]bool),
		userSessions: make(map[string]map[Session]bool),
		bindings:     make(map[Session]binding),
		presence:     make(map[string]map[string]*document.PresenceInfo),
	}
}

// JoinRoom registers the session under the room and the user (a user may
// hold several sessions at once). A session holds at most one binding: a
// re-join releases the previous room first, announcing the departure
// through the user-left handler when the old room loses the user.
// Returns the room roster including the joiner.
func (r *Registry) JoinRoom(s Session, boardID string, user document.PresenceInfo) []document.PresenceInfo {
	r.mu.Lock()

	prevBoard, prevUser, userGone := r.leaveLocked(s)

	if _, ok := r.rooms[boardID]; !ok {
		r.rooms[boardID] = make(map[Session]bool)
	}
	r.rooms[boardID][s] = true

	if _, ok := r.userSessions[user.UserID]; !ok {
		r.userSessions[user.UserID] = make(map[Session]bool)
	}
	r.userSessions[user.UserID][s] = true

	r.bindings[s] = binding{boardID: boardID, userID: user.UserID}

	if _, ok := r.presence[boardID]; !ok {
		r.presence[boardID] = make(map[string]*document.PresenceInfo)
	}
	user.IsOnline = true
	r.presence[boardID][user.UserID] = &user

	log.Printf("Session %s joined room %s as %s (room size: %d)",
		s.ID(), boardID, user.UserID, len(r.rooms[boardID]))
	roster := r.rosterLocked(boardID)
	r.mu.Unlock()

	// The callback runs unlocked, like reap's. Switching rooms within
	// the same board is a no-op for presence, so no announcement.
	if userGone && prevBoard != boardID && r.onUserLeft != nil {
		r.onUserLeft(prevBoard, prevUser)
	}
	return roster
}

// LeaveRoom removes the session from its room and its user's session
// set, garbage-collecting empty entries. Idempotent: unknown sessions
// are a no-op. userGone is true when this was the user's last session in
// the room, i.e. a UserLeft broadcast is due.
func (r *Registry) LeaveRoom(s Session) (boardID, userID string, userGone bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(s)
}

func (r *Registry) leaveLocked(s Session) (boardID, userID string, userGone bool) {
	b, ok := r.bindings[s]
	if !ok {
		return "", "", false
	}
	delete(r.bindings, s)

	if sessions, ok := r.rooms[b.boardID]; ok {
		delete(sessions, s)
		if len(sessions) == 0 {
			delete(r.rooms, b.boardID)
			delete(r.presence, b.boardID)
			log.Printf("Room %s closed (empty)", b.boardID)
		}
	}

	if sessions, ok := r.userSessions[b.userID]; ok {
		delete(sessions, s)
		if len(sessions) == 0 {
			delete(r.userSessions, b.userID)
		}
	}

	// The user is gone from the room once none of their remaining
	// sessions are bound to it.
	userGone = true
	for other := range r.userSessions[b.userID] {
		if r.bindings[other].boardID == b.boardID {
			userGone = false
			break
		}
	}
	if userGone {
		if users, ok := r.presence[b.boardID]; ok {
			delete(users, b.userID)
		}
	}
	return b.boardID, b.userID, userGone
}

// Binding reports the room and user a session is registered under.
func (r *Registry) Binding(s Session) (boardID, userID string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[s]
	return b.boardID, b.userID, ok
}

// UpdateCursor records a user's cursor position in their room's
// presence.
func (r *Registry) UpdateCursor(boardID, userID string, cursor *document.CursorPosition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if users, ok := r.presence[boardID]; ok {
		if info, ok := users[userID]; ok {
			info.Cursor = cursor
		}
	}
}

// ActiveUsers returns the presence roster for a room.
func (r *Registry) ActiveUsers(boardID string) []document.PresenceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rosterLocked(boardID)
}

func (r *Registry) rosterLocked(boardID string) []document.PresenceInfo {
	users := r.presence[boardID]
	roster := make([]document.PresenceInfo, 0, len(users))
	for _, info := range users {
		roster = append(roster, *info)
	}
	return roster
}

// BroadcastToRoom sends data to every session in the room.
func (r *Registry) BroadcastToRoom(boardID string, data []byte) {
	r.broadcast(boardID, nil, data)
}

// BroadcastToRoomExcept sends data to every session in the room but one,
// so an edit's originator does not receive an echo of its own operation.
func (r *Registry) BroadcastToRoomExcept(boardID string, except Session, data []byte) {
	r.broadcast(boardID, except, data)
}

func (r *Registry) broadcast(boardID string, except Session, data []byte) {
	r.mu.RLock()
	var failed []Session
	for s := range r.rooms[boardID] {
		if s == except {
			continue
		}
		if err := s.Send(data); err != nil {
			failed = append(failed, s)
		}
	}
	r.mu.RUnlock()
	r.reap(failed)
}

// SendToUser fans data out to every session the user holds, across all
// their devices.
func (r *Registry) SendToUser(userID string, data []byte) {
	r.mu.RLock()
	var failed []Session
	for s := range r.userSessions[userID] {
		if err := s.Send(data); err != nil {
			failed = append(failed, s)
		}
	}
	r.mu.RUnlock()
	r.reap(failed)
}

// A send failure tears down exactly that session; the registry and the
// other sessions are unaffected.
func (r *Registry) reap(failed []Session) {
	for _, s := range failed {
		log.Printf("Session %s unreachable, removing", s.ID())
		boardID, userID, userGone := r.LeaveRoom(s)
		if userGone && r.onUserLeft != nil {
			r.onUserLeft(boardID, userID)
		}
	}
}

// Presence returns a user's presence record in a room.
func (r *Registry) Presence(boardID, userID string) (document.PresenceInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if users, ok := r.presence[boardID]; ok {
		if info, ok := users[userID]; ok {
			return *info, true
		}
	}
	return document.PresenceInfo{}, false
}

// RoomCount returns the number of rooms with at least one session.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// SessionCount returns the number of live sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}

// ActiveRooms maps room id to session count, for the stats endpoint.
func (r *Registry) ActiveRooms() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.rooms))
	for id, sessions := range r.rooms {
		out[id] = len(sessions)
	}
	return out
}
