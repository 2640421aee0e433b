package document

// OpKind discriminates the operation variants. Every dispatch site in the
// transform engine and the state machine switches over the full set.
type OpKind string

const (
	OpAddBlock         OpKind = "add_block"
	OpDeleteBlock      OpKind = "delete_block"
	OpUpdateContent    OpKind = "update_content"
	OpUpdateFormatting OpKind = "update_formatting"
	OpUpdateType       OpKind = "update_type"
	OpCursorMove       OpKind = "cursor_move"
)

// Formatting fields for an update_formatting operation. Nil fields leave
// the existing value untouched.
type FormattingPatch struct {
	FontWeight     *string `json:"fontWeight,omitempty"`
	FontStyle      *string `json:"fontStyle,omitempty"`
	TextDecoration *string `json:"textDecoration,omitempty"`
	FontSize       *int    `json:"fontSize,omitempty"`
	Color          *string `json:"color,omitempty"`
	TextAlign      *string `json:"textAlign,omitempty"`
}

// Operation is one atomic edit intent. ID is client-generated, globally
// unique, and doubles as the idempotency key and the deterministic
// tie-breaker for concurrent conflicts. Which payload fields are
// meaningful depends on Kind.
type Operation struct {
	ID      string `json:"operationId"`
	BoardID string `json:"boardId"`
	Kind    OpKind `json:"kind"`

	// add_block
	Block        *ContentBlock `json:"block,omitempty"`
	AfterBlockID *string       `json:"afterBlockId,omitempty"` // nil means insert at head

	// delete_block, update_content, update_formatting, update_type, cursor_move
	BlockID string `json:"blockId,omitempty"`

	// update_content
	Content  string `json:"content,omitempty"`
	Position int    `json:"position,omitempty"`

	// update_formatting
	Formatting *FormattingPatch `json:"formatting,omitempty"`

	// update_type
	NewType string `json:"newType,omitempty"`

	// cursor_move
	UserID       string `json:"userId,omitempty"`
	SelectionEnd *int   `json:"selectionEnd,omitempty"`
}

// True for operations that never mutate document content.
func (op *Operation) PresenceOnly() bool {
	return op.Kind == OpCursorMove
}

// Returns the block id the operation targets for conflict purposes: the
// anchor for add_block, the subject block for everything else. Empty for
// a head insertion.
func (op *Operation) TargetBlockID() string {
	if op.Kind == OpAddBlock {
		if op.AfterBlockID == nil {
			return ""
		}
		return *op.AfterBlockID
	}
	return op.BlockID
}
