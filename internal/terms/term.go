// Package terms extracts the labeled search terms of a catalog page and
// flattens them into the Japanese-to-English dictionary used for query
// translation.
package terms

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Term is either plain text with no known translation or an
// English/Japanese pair. The zero value is an empty plain term.
type Term struct {
	text      string
	english   string
	japanese  string
	bilingual bool
}

// Plain returns a term with no translation.
func Plain(text string) Term {
	return Term{text: text}
}

// Pair returns a bilingual term.
func Pair(english, japanese string) Term {
	return Term{english: english, japanese: japanese, bilingual: true}
}

func (t Term) Bilingual() bool { return t.bilingual }

// English is the English side of a pair, or the text of a plain term.
func (t Term) English() string {
	if t.bilingual {
		return t.english
	}
	return t.text
}

// Japanese is the Japanese side of a pair, or the text of a plain term.
func (t Term) Japanese() string {
	if t.bilingual {
		return t.japanese
	}
	return t.text
}

// Matches reports whether s equals the plain text or either side of a pair.
func (t Term) Matches(s string) bool {
	if t.bilingual {
		return t.english == s || t.japanese == s
	}
	return t.text == s
}

func (t Term) String() string {
	if t.bilingual {
		return fmt.Sprintf("%s/%s", t.english, t.japanese)
	}
	return t.text
}

type pairJSON struct {
	EN string `json:"en"`
	JP string `json:"jp"`
}

// MarshalJSON encodes plain terms as strings and pairs as {"en","jp"}.
func (t Term) MarshalJSON() ([]byte, error) {
	if t.bilingual {
		return json.Marshal(pairJSON{EN: t.english, JP: t.japanese})
	}
	return json.Marshal(t.text)
}

func (t *Term) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Plain(s)
		return nil
	}
	var p pairJSON
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decoding term: %w", err)
	}
	*t = Pair(p.EN, p.JP)
	return nil
}
