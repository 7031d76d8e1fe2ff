// Package query segments a free-form search query against a term
// dictionary. Spans that match a dictionary key are translated; everything
// between them is passed through literally.
package query

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mfc-shop/mfc-shop/internal/terms"
)

// Kind tells matched spans from literal ones.
type Kind int

const (
	Literal Kind = iota
	Match
)

func (k Kind) String() string {
	if k == Match {
		return "match"
	}
	return "literal"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "match":
		*k = Match
	case "literal":
		*k = Literal
	default:
		return fmt.Errorf("unknown segment kind %q", b)
	}
	return nil
}

// Segment is a contiguous span of the query. Text is the span as typed and
// Translation what is displayed for it; the two are equal for literals.
// Skipped holds the whitespace consumed right after a match, if any.
type Segment struct {
	Kind        Kind   `json:"kind"`
	Text        string `json:"text"`
	Translation string `json:"translation"`
	Skipped     string `json:"-"`
}

// Tokenizer segments queries against a fixed dictionary. It is safe for
// concurrent use.
type Tokenizer struct {
	dict terms.Dictionary
	keys []string
}

// NewTokenizer prepares dict for matching. Keys are ordered longest first,
// then lexicographically, so the first key that prefixes the remaining
// input is the longest match. Empty keys never match.
func NewTokenizer(dict terms.Dictionary) *Tokenizer {
	keys := make([]string, 0, len(dict))
	for k := range dict {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return &Tokenizer{dict: dict, keys: keys}
}

// Len is the number of usable dictionary keys.
func (t *Tokenizer) Len() int {
	return len(t.keys)
}

// Tokenize partitions q into segments, scanning left to right and taking
// the longest dictionary key at each position. One whitespace rune after a
// match is consumed with it.
func (t *Tokenizer) Tokenize(q string) []Segment {
	segments := make([]Segment, 0, 4)
	var literal strings.Builder

	flush := func() {
		if literal.Len() == 0 {
			return
		}
		s := literal.String()
		segments = append(segments, Segment{Kind: Literal, Text: s, Translation: s})
		literal.Reset()
	}

	rest := q
	for rest != "" {
		key, ok := t.longestPrefix(rest)
		if !ok {
			_, size := utf8.DecodeRuneInString(rest)
			literal.WriteString(rest[:size])
			rest = rest[size:]
			continue
		}

		flush()
		rest = rest[len(key):]
		seg := Segment{Kind: Match, Text: key, Translation: t.dict[key]}
		if r, size := utf8.DecodeRuneInString(rest); size > 0 && unicode.IsSpace(r) {
			seg.Skipped = rest[:size]
			rest = rest[size:]
		}
		segments = append(segments, seg)
	}
	flush()
	return segments
}

func (t *Tokenizer) longestPrefix(s string) (string, bool) {
	for _, k := range t.keys {
		if len(k) <= len(s) && strings.HasPrefix(s, k) {
			return k, true
		}
	}
	return "", false
}

// Join rebuilds a query from segments: each span is trimmed, empty spans
// are dropped and the rest are separated by a single space.
//
// Joining the raw texts and trimming only the ends would keep the space a
// match consumed next to the literal space after it, so removing a middle
// segment leaves a double space that the next tokenize and join pass
// collapses. Trimming per span makes Join(Tokenize(q)) a fixed point after
// one pass whenever no dictionary key contains whitespace.
func Join(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if text := strings.TrimSpace(s.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Reconstruct concatenates the segments exactly as they were cut from the
// query, including consumed whitespace.
func Reconstruct(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
		b.WriteString(s.Skipped)
	}
	return b.String()
}
