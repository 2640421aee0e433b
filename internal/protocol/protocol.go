// Package protocol defines the JSON wire envelope exchanged over the
// websocket.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/quillboard/backend/internal/document"
)

// Message kinds carried in the envelope's type field.
type Type string

const (
	TypeJoinRoom             Type = "join_room"
	TypeRoomJoined           Type = "room_joined"
	TypeUserJoined           Type = "user_joined"
	TypeUserLeft             Type = "user_left"
	TypeDocumentOperation    Type = "document_operation"
	TypeOperationBroadcast   Type = "document_operation_broadcast"
	TypeOperationAck         Type = "operation_ack"
	TypeRequestDocumentState Type = "request_document_state"
	TypeDocumentState        Type = "document_state"
	TypeCursorUpdate         Type = "cursor_update"
	TypeError                Type = "error"
)

// Machine-readable error codes for the error message.
const (
	CodeBadMessage   = "bad_message"
	CodeUnknownType  = "unknown_type"
	CodeUnauthorized = "unauthorized"
	CodeNotJoined    = "not_joined"
)

// Envelope is the single wire frame. Type discriminates which payload
// fields are meaningful; unused fields are omitted.
type Envelope struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	BoardID  string `json:"boardId,omitempty"`
	UserID   string `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`
	Token    string `json:"token,omitempty"`

	User  *document.PresenceInfo  `json:"user,omitempty"`
	Users []document.PresenceInfo `json:"users,omitempty"`

	Operation   *document.Operation `json:"operation,omitempty"`
	OperationID string              `json:"operationId,omitempty"`
	Applied     *bool               `json:"applied,omitempty"`

	Document *document.Document `json:"document,omitempty"`

	// cursor_update
	BlockID      *string `json:"blockId,omitempty"`
	Position     int     `json:"position,omitempty"`
	SelectionEnd *int    `json:"selectionEnd,omitempty"`
	Color        string  `json:"color,omitempty"`

	// error
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Decode parses a wire frame. A frame without a type field is rejected.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, errMissingType
	}
	return &env, nil
}

// Encode serializes an envelope, stamping the timestamp if unset.
func Encode(env *Envelope) ([]byte, error) {
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	return json.Marshal(env)
}

type protocolError string

func (e protocolError) Error() string { return string(e) }

const errMissingType = protocolError("message has no type")

// NewError builds an error frame for the offending sender.
func NewError(code, message string) *Envelope {
	return &Envelope{Type: TypeError, Code: code, Message: message}
}
