package query

import (
	"net/http"
	"strings"

	apperrors "github.com/mfc-shop/mfc-shop/pkg/errors"
)

// Editor owns one query string and its current segmentation. Every change
// re-segments the whole query. An Editor has a single writer and is not
// safe for concurrent use.
type Editor struct {
	tokenizer *Tokenizer
	query     string
	segments  []Segment
}

// NewEditor starts an editor on query.
func NewEditor(tokenizer *Tokenizer, query string) *Editor {
	e := &Editor{tokenizer: tokenizer}
	e.SetQuery(query)
	return e
}

// Query returns the current query text.
func (e *Editor) Query() string {
	return e.query
}

// Segments returns a copy of the current segmentation.
func (e *Editor) Segments() []Segment {
	return append([]Segment(nil), e.segments...)
}

// SetQuery replaces the query, as on a free edit of the input.
func (e *Editor) SetQuery(q string) {
	e.query = q
	e.segments = e.tokenizer.Tokenize(q)
}

// AddTerm appends value to the query, separated by a space.
func (e *Editor) AddTerm(value string) {
	e.SetQuery(strings.TrimSpace(e.query + " " + value))
}

// Remove drops the segment at position i and rebuilds the query from the
// remaining ones.
func (e *Editor) Remove(i int) error {
	if i < 0 || i >= len(e.segments) {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"segment %d out of range [0,%d)", i, len(e.segments))
	}
	rest := make([]Segment, 0, len(e.segments)-1)
	rest = append(rest, e.segments[:i]...)
	rest = append(rest, e.segments[i+1:]...)
	e.SetQuery(Join(rest))
	return nil
}
