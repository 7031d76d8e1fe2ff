package terms

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Terms maps category names to their terms, remembering the order in which
// categories were first set. A category is present only while it holds at
// least one term.
type Terms struct {
	order []string
	items map[string][]Term
}

// New returns an empty Terms.
func New() *Terms {
	return &Terms{items: make(map[string][]Term)}
}

// Set stores list under category. An empty list leaves the mapping as it
// was. Replacing an existing category keeps its position.
func (t *Terms) Set(category string, list []Term) {
	if len(list) == 0 {
		return
	}
	if t.items == nil {
		t.items = make(map[string][]Term)
	}
	if _, ok := t.items[category]; !ok {
		t.order = append(t.order, category)
	}
	t.items[category] = append([]Term(nil), list...)
}

// Append adds terms to the end of an existing or new category.
func (t *Terms) Append(category string, more ...Term) {
	t.Set(category, append(t.Get(category), more...))
}

// Get returns a copy of the terms of category.
func (t *Terms) Get(category string) []Term {
	list, ok := t.items[category]
	if !ok {
		return nil
	}
	return append([]Term(nil), list...)
}

func (t *Terms) Has(category string) bool {
	_, ok := t.items[category]
	return ok
}

// Categories returns the category names in insertion order.
func (t *Terms) Categories() []string {
	return append([]string(nil), t.order...)
}

// Len is the number of categories.
func (t *Terms) Len() int {
	return len(t.order)
}

// Contains reports whether any term of category matches one of values.
func (t *Terms) Contains(category string, values ...string) bool {
	for _, term := range t.items[category] {
		for _, v := range values {
			if term.Matches(v) {
				return true
			}
		}
	}
	return false
}

// MarshalJSON writes the categories as an object in insertion order.
func (t *Terms) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, category := range t.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(category)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(t.items[category])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of category lists, keeping key order.
func (t *Terms) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decoding terms: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decoding terms: expected object, got %v", tok)
	}
	decoded := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decoding terms: %w", err)
		}
		category, ok := tok.(string)
		if !ok {
			return fmt.Errorf("decoding terms: unexpected key %v", tok)
		}
		var list []Term
		if err := dec.Decode(&list); err != nil {
			return fmt.Errorf("decoding category %q: %w", category, err)
		}
		decoded.Set(category, list)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decoding terms: %w", err)
	}
	*t = *decoded
	return nil
}
