package document

// Live cursor location within a document.
type CursorPosition struct {
	BlockID      *string `json:"blockId,omitempty"`
	Position     int     `json:"position"`
	SelectionEnd *int    `json:"selectionEnd,omitempty"`
}

// One user's presence in a room: identity, assigned cursor color, and
// current cursor location. Distinct from document content.
type PresenceInfo struct {
	UserID   string          `json:"userId"`
	Name     string          `json:"name"`
	Email    string          `json:"email,omitempty"`
	Color    string          `json:"color"`
	Cursor   *CursorPosition `json:"cursor,omitempty"`
	IsOnline bool            `json:"isOnline"`
}

// Palette cycled through when assigning cursor colors to joining users.
var cursorColors = []string{
	"#E91E63", "#2196F3", "#4CAF50", "#FF9800",
	"#9C27B0", "#00BCD4", "#F44336", "#795548",
}

// Picks a stable color for a user id.
func CursorColorFor(userID string) string {
	var sum int
	for _, c := range userID {
		sum += int(c)
	}
	return cursorColors[sum%len(cursorColors)]
}
