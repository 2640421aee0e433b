package document

// Default formatting applied to newly created blocks.
const (
	DefaultFontWeight     = "normal"
	DefaultFontStyle      = "normal"
	DefaultTextDecoration = "none"
	DefaultFontSize       = 16
	DefaultColor          = "#000000"
	DefaultTextAlign      = "left"
)

// A single unit of content in a document. The Type tag is an open string
// (e.g. "heading1", "paragraph") so new block kinds don't require a
// protocol change.
type ContentBlock struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Content        string `json:"content"`
	FontWeight     string `json:"fontWeight"`
	FontStyle      string `json:"fontStyle"`
	TextDecoration string `json:"textDecoration"`
	FontSize       int    `json:"fontSize"`
	Color          string `json:"color"`
	TextAlign      string `json:"textAlign"`
}

// Creates a block of the given type with default formatting.
func NewBlock(id, blockType, content string) ContentBlock {
	return ContentBlock{
		ID:             id,
		Type:           blockType,
		Content:        content,
		FontWeight:     DefaultFontWeight,
		FontStyle:      DefaultFontStyle,
		TextDecoration: DefaultTextDecoration,
		FontSize:       DefaultFontSize,
		Color:          DefaultColor,
		TextAlign:      DefaultTextAlign,
	}
}

// An ordered sequence of blocks shared by one room. Block order is the
// rendered order. No two blocks share an ID.
type Document struct {
	ID     string         `json:"id"`
	Blocks []ContentBlock `json:"blocks"`
}

// Returns a deep copy safe to hand outside the owning goroutine.
func (d *Document) Clone() *Document {
	blocks := make([]ContentBlock, len(d.Blocks))
	copy(blocks, d.Blocks)
	return &Document{ID: d.ID, Blocks: blocks}
}

// Returns the index of the block with the given id, or -1.
func (d *Document) IndexOf(blockID string) int {
	for i := range d.Blocks {
		if d.Blocks[i].ID == blockID {
			return i
		}
	}
	return -1
}
