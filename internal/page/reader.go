// Package page exposes a catalog page as labeled rows of value nodes. The
// term extractor only sees the Reader and Node interfaces, so it can run
// against parsed HTML or against pages assembled in memory.
package page

// Reader gives access to the labeled data rows of one page.
type Reader interface {
	// Row returns the value node of the row with the given label.
	Row(label string) (Node, bool)
	// ShowingJapanese reports whether the page currently renders its data
	// fields in Japanese.
	ShowingJapanese() bool
}

// Node is one element of a row value.
type Node interface {
	// Text is the displayed text, whitespace-collapsed and trimmed.
	Text() string
	// AltText is the text of the other language, when the page carries one.
	AltText() (string, bool)
	// Items lists the leaf elements of the node in document order: every
	// span, and every anchor that does not wrap a span.
	Items() []Node
	// Inline lists the direct children of the node as a flat sequence.
	Inline() []Inline
}

// InlineKind classifies a direct child of a node.
type InlineKind int

const (
	InlineText InlineKind = iota
	InlineBreak
	InlineSmall
	InlineElement
)

func (k InlineKind) String() string {
	switch k {
	case InlineText:
		return "text"
	case InlineBreak:
		return "break"
	case InlineSmall:
		return "small"
	case InlineElement:
		return "element"
	default:
		return "unknown"
	}
}

// Inline is a direct child of a node. Text holds the raw node value for
// text children and the collapsed text for elements.
type Inline struct {
	Kind InlineKind
	Text string
}
