package client

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quillboard/backend/internal/document"
	"github.com/quillboard/backend/internal/protocol"
)

// ConnState is the connection lifecycle:
// Disconnected -> Connecting -> Connected -> (Reconnecting ->) ...
// StateError is terminal once reconnect attempts are exhausted.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	}
	return "unknown"
}

type Options struct {
	URL      string // ws:// endpoint
	BoardID  string
	UserID   string
	UserName string
	Token    string // optional, required when the server verifies auth

	// Reconnect attempts before giving up. Zero means DefaultMaxRetries.
	MaxReconnects int
}

const DefaultMaxRetries = 10

// Client keeps one websocket session to the relay, feeding remote
// operations into the reconciler and shipping local ones out.
type Client struct {
	opts Options
	rec  *Reconciler

	writeMu sync.Mutex
	conn    *websocket.Conn

	stateMu sync.Mutex
	state   ConnState

	// Optional observers, invoked from the receive loop.
	OnStateChange func(ConnState)
	OnRemoteOp    func(document.Operation)
	OnEvent       func(*protocol.Envelope)
}

func New(opts Options) *Client {
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = DefaultMaxRetries
	}
	return &Client{
		opts:  opts,
		rec:   NewReconciler(opts.BoardID),
		state: StateDisconnected,
	}
}

// Reconciler exposes the local replica for the embedding editor.
func (c *Client) Reconciler() *Reconciler {
	return c.rec
}

func (c *Client) State() ConnState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Client) setState(s ConnState) {
	c.stateMu.Lock()
	changed := c.state != s
	c.state = s
	c.stateMu.Unlock()
	if changed && c.OnStateChange != nil {
		c.OnStateChange(s)
	}
}

// Run connects and serves the session until ctx is canceled or the
// reconnect budget is spent. Re-joining and requesting a fresh document
// snapshot after a drop are this side's responsibility; the server keeps
// no per-client cursor into the operation stream.
func (c *Client) Run(ctx context.Context) error {
	first := true
	for {
		if err := c.connectWithBackoff(ctx, first); err != nil {
			c.setState(StateError)
			return err
		}
		first = false

		err := c.receiveLoop()
		c.closeConn()
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}
		log.Printf("Connection lost: %v", err)
		c.setState(StateReconnecting)
	}
}

func (c *Client) connectWithBackoff(ctx context.Context, first bool) error {
	if first {
		c.setState(StateConnecting)
	}

	attempt := 0
	connect := func() error {
		attempt++
		if !first {
			log.Printf("Reconnect attempt %d/%d", attempt, c.opts.MaxReconnects)
		}
		return c.connect(ctx, !first)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	err := backoff.Retry(connect,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.MaxReconnects)), ctx))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.opts.URL, err)
	}
	c.setState(StateConnected)
	return nil
}

func (c *Client) connect(ctx context.Context, resync bool) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	if err := c.sendEnvelope(&protocol.Envelope{
		Type:     protocol.TypeJoinRoom,
		BoardID:  c.opts.BoardID,
		UserID:   c.opts.UserID,
		UserName: c.opts.UserName,
		Token:    c.opts.Token,
	}); err != nil {
		c.closeConn()
		return err
	}

	if resync {
		// The retained history may have gaps, so ask for the full
		// snapshot rather than replaying the stream.
		if err := c.sendEnvelope(&protocol.Envelope{
			Type:    protocol.TypeRequestDocumentState,
			BoardID: c.opts.BoardID,
		}); err != nil {
			c.closeConn()
			return err
		}
	}
	return nil
}

func (c *Client) receiveLoop() error {
	c.writeMu.Lock()
	conn := c.conn
	c.writeMu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		env, err := protocol.Decode(data)
		if err != nil {
			log.Printf("Dropping unparseable frame: %v", err)
			continue
		}
		c.handle(env)
	}
}

func (c *Client) handle(env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeOperationAck:
		c.rec.Ack(env.OperationID)

	case protocol.TypeOperationBroadcast:
		if env.Operation == nil {
			return
		}
		applied := c.rec.MergeRemote([]document.Operation{*env.Operation})
		if c.OnRemoteOp != nil {
			for _, op := range applied {
				c.OnRemoteOp(op)
			}
		}

	case protocol.TypeDocumentState:
		if env.Document != nil {
			c.rec.Resync(env.Document)
		}

	case protocol.TypeError:
		log.Printf("Server error [%s]: %s", env.Code, env.Message)
	}

	if c.OnEvent != nil {
		c.OnEvent(env)
	}
}

// Submit applies an edit locally and ships it to the server. A missing
// operation id is minted here.
func (c *Client) Submit(op document.Operation) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	op.BoardID = c.opts.BoardID
	if !c.rec.ApplyLocal(op) {
		return nil // duplicate, nothing to send
	}
	return c.sendEnvelope(&protocol.Envelope{
		Type:      protocol.TypeDocumentOperation,
		BoardID:   c.opts.BoardID,
		Operation: &op,
	})
}

// MoveCursor publishes the local cursor position.
func (c *Client) MoveCursor(blockID *string, position int, selectionEnd *int) error {
	return c.sendEnvelope(&protocol.Envelope{
		Type:         protocol.TypeCursorUpdate,
		BoardID:      c.opts.BoardID,
		UserID:       c.opts.UserID,
		BlockID:      blockID,
		Position:     position,
		SelectionEnd: selectionEnd,
	})
}

// RequestState asks the server for a full document snapshot.
func (c *Client) RequestState() error {
	return c.sendEnvelope(&protocol.Envelope{
		Type:    protocol.TypeRequestDocumentState,
		BoardID: c.opts.BoardID,
	})
}

func (c *Client) sendEnvelope(env *protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) closeConn() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
