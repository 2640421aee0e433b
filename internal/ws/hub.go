package ws

import (
	"log"

	"github.com/quillboard/backend/internal/auth"
	"github.com/quillboard/backend/internal/db"
	"github.com/quillboard/backend/internal/document"
	"github.com/quillboard/backend/internal/protocol"
	"github.com/quillboard/backend/internal/registry"
	"github.com/quillboard/backend/internal/state"
)

// session is what the hub needs from a connection: registry membership
// plus teardown. *Client implements it; tests substitute mocks.
type session interface {
	registry.Session
	close()
}

type frame struct {
	client session
	data   []byte
}

// Hub routes inbound frames between sessions sharing a room. Frames are
// processed one at a time by Run, which makes applyOperation a single
// mutation point across all documents.
type Hub struct {
	registry *registry.Registry
	store    *state.Store
	database *db.Database  // nil in tests
	verifier *auth.Verifier // nil disables token checks

	inbound    chan *frame
	unregister chan session

	messagesPerSecond float64
	messageBurst      int
}

func NewHub(reg *registry.Registry, store *state.Store, database *db.Database, verifier *auth.Verifier) *Hub {
	h := &Hub{
		registry:          reg,
		store:             store,
		database:          database,
		verifier:          verifier,
		inbound:           make(chan *frame, 256),
		unregister:        make(chan session, 64),
		messagesPerSecond: 100,
		messageBurst:      200,
	}
	reg.SetUserLeftHandler(func(boardID, userID string) {
		reg.BroadcastToRoom(boardID, h.encode(&protocol.Envelope{
			Type:    protocol.TypeUserLeft,
			BoardID: boardID,
			UserID:  userID,
		}))
	})
	return h
}

// SetRateLimit overrides the per-session message rate limits.
func (h *Hub) SetRateLimit(perSecond float64, burst int) {
	h.messagesPerSecond = perSecond
	h.messageBurst = burst
}

func (h *Hub) Run() {
	for {
		select {
		case f := <-h.inbound:
			h.handleFrame(f.client, f.data)
		case c := <-h.unregister:
			h.handleDisconnect(c)
		}
	}
}

func (h *Hub) handleFrame(c session, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		h.reply(c, protocol.NewError(protocol.CodeBadMessage, "unparseable message"))
		return
	}

	switch env.Type {
	case protocol.TypeJoinRoom:
		h.handleJoin(c, env)
	case protocol.TypeDocumentOperation:
		h.handleOperation(c, env)
	case protocol.TypeCursorUpdate:
		h.handleCursor(c, env)
	case protocol.TypeRequestDocumentState:
		h.handleStateRequest(c, env)
	default:
		h.reply(c, protocol.NewError(protocol.CodeUnknownType, "unknown message type: "+string(env.Type)))
	}
}

func (h *Hub) handleJoin(c session, env *protocol.Envelope) {
	if env.BoardID == "" {
		h.reply(c, protocol.NewError(protocol.CodeBadMessage, "join_room requires boardId"))
		return
	}

	identity, err := h.identify(env)
	if err != nil {
		h.reply(c, protocol.NewError(protocol.CodeUnauthorized, err.Error()))
		return
	}

	h.ensureDocument(env.BoardID)
	if h.database != nil {
		if err := h.database.CreateRoom(env.BoardID, ""); err != nil {
			log.Printf("Failed to record room %s: %v", env.BoardID, err)
		}
	}

	user := document.PresenceInfo{
		UserID: identity.UserID,
		Name:   identity.UserName,
		Color:  document.CursorColorFor(identity.UserID),
	}
	roster := h.registry.JoinRoom(c, env.BoardID, user)

	h.broadcastExcept(env.BoardID, c, &protocol.Envelope{
		Type:    protocol.TypeUserJoined,
		BoardID: env.BoardID,
		User:    &user,
	})

	h.reply(c, &protocol.Envelope{
		Type:    protocol.TypeRoomJoined,
		BoardID: env.BoardID,
		Users:   roster,
	})
}

// identify resolves the joining user. With a verifier configured the
// token is required; otherwise the client self-asserts.
func (h *Hub) identify(env *protocol.Envelope) (*auth.Identity, error) {
	if h.verifier != nil {
		return h.verifier.Verify(env.Token)
	}
	if env.UserID == "" {
		return nil, auth.ErrNoIdentity
	}
	name := env.UserName
	if name == "" {
		name = env.UserID
	}
	return &auth.Identity{UserID: env.UserID, UserName: name}, nil
}

func (h *Hub) handleOperation(c session, env *protocol.Envelope) {
	boardID, userID, ok := h.registry.Binding(c)
	if !ok {
		h.reply(c, protocol.NewError(protocol.CodeNotJoined, "join a room first"))
		return
	}
	op := env.Operation
	if op == nil || op.ID == "" {
		h.reply(c, protocol.NewError(protocol.CodeBadMessage, "document_operation requires an operation"))
		return
	}
	op.BoardID = boardID

	applied := h.store.Apply(*op)

	h.reply(c, &protocol.Envelope{
		Type:        protocol.TypeOperationAck,
		BoardID:     boardID,
		OperationID: op.ID,
		Applied:     &applied,
	})
	if !applied {
		return
	}

	userName := userID
	if info, ok := h.registry.Presence(boardID, userID); ok {
		userName = info.Name
	}
	h.broadcastExcept(boardID, c, &protocol.Envelope{
		Type:      protocol.TypeOperationBroadcast,
		BoardID:   boardID,
		Operation: op,
		UserID:    userID,
		UserName:  userName,
	})
}

func (h *Hub) handleCursor(c session, env *protocol.Envelope) {
	boardID, userID, ok := h.registry.Binding(c)
	if !ok {
		h.reply(c, protocol.NewError(protocol.CodeNotJoined, "join a room first"))
		return
	}

	cursor := &document.CursorPosition{
		BlockID:      env.BlockID,
		Position:     env.Position,
		SelectionEnd: env.SelectionEnd,
	}
	h.registry.UpdateCursor(boardID, userID, cursor)

	color := ""
	if info, ok := h.registry.Presence(boardID, userID); ok {
		color = info.Color
	}
	h.broadcastExcept(boardID, c, &protocol.Envelope{
		Type:         protocol.TypeCursorUpdate,
		BoardID:      boardID,
		UserID:       userID,
		BlockID:      env.BlockID,
		Position:     env.Position,
		SelectionEnd: env.SelectionEnd,
		Color:        color,
	})
}

func (h *Hub) handleStateRequest(c session, env *protocol.Envelope) {
	boardID, _, ok := h.registry.Binding(c)
	if !ok {
		h.reply(c, protocol.NewError(protocol.CodeNotJoined, "join a room first"))
		return
	}
	h.reply(c, &protocol.Envelope{
		Type:     protocol.TypeDocumentState,
		BoardID:  boardID,
		Document: h.store.Document(boardID),
		Users:    h.registry.ActiveUsers(boardID),
	})
}

func (h *Hub) handleDisconnect(c session) {
	boardID, userID, userGone := h.registry.LeaveRoom(c)
	c.close()
	if userGone {
		h.registry.BroadcastToRoom(boardID, h.encode(&protocol.Envelope{
			Type:    protocol.TypeUserLeft,
			BoardID: boardID,
			UserID:  userID,
		}))
	}
}

// ensureDocument restores a persisted snapshot the first time a room is
// touched, so reconnecting editors resume where the room left off.
func (h *Hub) ensureDocument(boardID string) {
	if h.database == nil || h.store.Loaded(boardID) {
		return
	}
	doc, revision, err := h.database.LoadDocument(boardID)
	if err != nil {
		log.Printf("Failed to load snapshot for room %s: %v", boardID, err)
		return
	}
	if doc != nil {
		h.store.RestoreDocument(doc, revision)
	}
}

func (h *Hub) reply(c session, env *protocol.Envelope) {
	if err := c.Send(h.encode(env)); err != nil {
		h.handleDisconnect(c)
	}
}

func (h *Hub) broadcastExcept(boardID string, except session, env *protocol.Envelope) {
	h.registry.BroadcastToRoomExcept(boardID, except, h.encode(env))
}

func (h *Hub) encode(env *protocol.Envelope) []byte {
	data, err := protocol.Encode(env)
	if err != nil {
		log.Printf("Failed to encode %s message: %v", env.Type, err)
		return nil
	}
	return data
}

// Stats passthroughs for the REST layer.

func (h *Hub) GetRoomCount() int              { return h.registry.RoomCount() }
func (h *Hub) GetClientCount() int            { return h.registry.SessionCount() }
func (h *Hub) GetActiveRooms() map[string]int { return h.registry.ActiveRooms() }

func (h *Hub) GetActiveUsers(boardID string) []document.PresenceInfo {
	return h.registry.ActiveUsers(boardID)
}
