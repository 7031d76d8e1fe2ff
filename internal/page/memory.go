package page

// Static is a Reader over rows assembled in memory.
type Static struct {
	Rows     map[string]*StaticNode
	Japanese bool
}

func (s *Static) Row(label string) (Node, bool) {
	n, ok := s.Rows[label]
	if !ok || n == nil {
		return nil, false
	}
	return n, true
}

func (s *Static) ShowingJapanese() bool {
	return s.Japanese
}

// StaticNode is a Node with fixed content.
type StaticNode struct {
	Value    string
	Alt      string
	Children []*StaticNode
	Flow     []Inline
}

// Leaf returns a node with only displayed text.
func Leaf(text string) *StaticNode {
	return &StaticNode{Value: text}
}

// Switchable returns a node displaying text with alt as the other language.
func Switchable(text, alt string) *StaticNode {
	return &StaticNode{Value: text, Alt: alt}
}

// List returns a node whose items are the given children.
func List(children ...*StaticNode) *StaticNode {
	return &StaticNode{Children: children}
}

func (n *StaticNode) Text() string {
	return n.Value
}

func (n *StaticNode) AltText() (string, bool) {
	return n.Alt, n.Alt != ""
}

func (n *StaticNode) Items() []Node {
	items := make([]Node, 0, len(n.Children))
	for _, c := range n.Children {
		items = append(items, c)
	}
	return items
}

func (n *StaticNode) Inline() []Inline {
	return n.Flow
}
