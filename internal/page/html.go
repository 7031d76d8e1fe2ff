package page

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

const (
	classRow            = "data-field"
	classLabel          = "data-label"
	classValue          = "data-value"
	classLanguageSwitch = "item-switch-alphabet"
	attrAlternate       = "switch"
)

// Document is a Reader over a parsed catalog page.
type Document struct {
	rows     map[string]*html.Node
	labels   []string
	japanese bool
}

// Parse reads an HTML page and indexes its data rows. Rows missing either
// a label or a value element are ignored; a later row with the same label
// replaces an earlier one.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	return newDocument(root), nil
}

// ParseString is Parse over an in-memory page.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func newDocument(root *html.Node) *Document {
	doc := &Document{rows: make(map[string]*html.Node)}

	for _, row := range findAll(root, func(n *html.Node) bool { return hasClass(n, classRow) }) {
		label := findFirst(row, func(n *html.Node) bool { return hasClass(n, classLabel) })
		value := findFirst(row, func(n *html.Node) bool { return hasClass(n, classValue) })
		if label == nil || value == nil {
			continue
		}
		key := innerText(label)
		if _, seen := doc.rows[key]; !seen {
			doc.labels = append(doc.labels, key)
		}
		doc.rows[key] = value
	}

	// The switch link names the language it switches to, so a page showing
	// Japanese offers "English" and vice versa. No switch means English.
	if sw := findFirst(root, func(n *html.Node) bool { return hasClass(n, classLanguageSwitch) }); sw != nil {
		doc.japanese = innerText(sw) != "Japanese"
	}
	return doc
}

func (d *Document) Row(label string) (Node, bool) {
	n, ok := d.rows[label]
	if !ok {
		return nil, false
	}
	return element{n}, true
}

func (d *Document) ShowingJapanese() bool {
	return d.japanese
}

// Labels returns the row labels in page order.
func (d *Document) Labels() []string {
	out := make([]string, len(d.labels))
	copy(out, d.labels)
	return out
}

type element struct {
	n *html.Node
}

func (e element) Text() string {
	return innerText(e.n)
}

func (e element) AltText() (string, bool) {
	for _, a := range e.n.Attr {
		if a.Key == attrAlternate && a.Val != "" {
			return collapse(a.Val), true
		}
	}
	return "", false
}

func (e element) Items() []Node {
	var items []Node
	walk(e.n, func(n *html.Node) {
		switch n.DataAtom {
		case atom.Span:
			items = append(items, element{n})
		case atom.A:
			if findFirst(n, isSpan) == nil {
				items = append(items, element{n})
			}
		}
	})
	return items
}

func (e element) Inline() []Inline {
	var out []Inline
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.TextNode:
			out = append(out, Inline{Kind: InlineText, Text: norm.NFC.String(c.Data)})
		case c.Type == html.ElementNode && c.DataAtom == atom.Br:
			out = append(out, Inline{Kind: InlineBreak})
		case c.Type == html.ElementNode && c.DataAtom == atom.Small:
			out = append(out, Inline{Kind: InlineSmall, Text: innerText(c)})
		default:
			out = append(out, Inline{Kind: InlineElement, Text: innerText(c)})
		}
	}
	return out
}

// walk visits the element descendants of n in document order, excluding n.
func walk(n *html.Node, fn func(*html.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			fn(c)
		}
		walk(c, fn)
	}
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	walk(n, func(c *html.Node) {
		if match(c) {
			out = append(out, c)
		}
	})
	return out
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func isSpan(n *html.Node) bool {
	return n.DataAtom == atom.Span
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// innerText approximates the rendered text of n: text of all descendants
// outside script and style, with whitespace runs collapsed.
func innerText(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
			return
		case html.ElementNode:
			switch c.DataAtom {
			case atom.Script, atom.Style:
				return
			case atom.Br:
				b.WriteByte(' ')
				return
			}
		}
		for cc := c.FirstChild; cc != nil; cc = cc.NextSibling {
			visit(cc)
		}
	}
	visit(n)
	return collapse(b.String())
}

func collapse(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}
