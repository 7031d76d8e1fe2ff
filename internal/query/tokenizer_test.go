package query

import (
	"encoding/json"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfc-shop/mfc-shop/internal/terms"
)

func newTestTokenizer() *Tokenizer {
	return NewTokenizer(terms.Dictionary{
		"東京":   "Tokyo",
		"東京都":  "Tokyo Metropolis",
		"世界":   "World",
		"初音ミク": "Hatsune Miku",
		"フィギュア": "Figure",
	})
}

func TestTokenizeLongestMatch(t *testing.T) {
	segs := newTestTokenizer().Tokenize("東京都庁")

	require.Len(t, segs, 2)
	assert.Equal(t, Segment{Kind: Match, Text: "東京都", Translation: "Tokyo Metropolis"}, segs[0])
	assert.Equal(t, Segment{Kind: Literal, Text: "庁", Translation: "庁"}, segs[1])
}

func TestTokenizeSkipsOneSpaceAfterMatch(t *testing.T) {
	segs := newTestTokenizer().Tokenize("hello 世界 world")

	assert.Equal(t, []Segment{
		{Kind: Literal, Text: "hello ", Translation: "hello "},
		{Kind: Match, Text: "世界", Translation: "World", Skipped: " "},
		{Kind: Literal, Text: "world", Translation: "world"},
	}, segs)
}

func TestTokenizeOnlyOneWhitespaceRuneIsSkipped(t *testing.T) {
	segs := newTestTokenizer().Tokenize("世界　 x")

	require.Len(t, segs, 2)
	assert.Equal(t, "　", segs[0].Skipped)
	assert.Equal(t, " x", segs[1].Text)
}

func TestTokenizeAdjacentMatches(t *testing.T) {
	segs := newTestTokenizer().Tokenize("初音ミクフィギュア")

	require.Len(t, segs, 2)
	assert.Equal(t, "Hatsune Miku", segs[0].Translation)
	assert.Equal(t, "Figure", segs[1].Translation)
}

func TestTokenizeEdgeCases(t *testing.T) {
	tok := newTestTokenizer()

	assert.Empty(t, tok.Tokenize(""))

	segs := NewTokenizer(nil).Tokenize("anything at all")
	assert.Equal(t, []Segment{{Kind: Literal, Text: "anything at all", Translation: "anything at all"}}, segs)

	segs = NewTokenizer(terms.Dictionary{"": "nothing"}).Tokenize("abc")
	require.Len(t, segs, 1)
	assert.Equal(t, Literal, segs[0].Kind)
}

func TestTokenizeCoversQuery(t *testing.T) {
	tok := newTestTokenizer()
	queries := []string{
		"hello 世界 world",
		"  東京 東京都  初音ミク",
		"初音ミク フィギュア 1/7",
		"世界",
		"no match here",
	}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			assert.Equal(t, q, Reconstruct(tok.Tokenize(q)))
		})
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	tok := newTestTokenizer()
	queries := []string{
		"hello 世界 world",
		"東京都庁 初音ミク   figure",
		"  leading and trailing  ",
		"フィギュア",
	}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			first := tok.Tokenize(q)
			joined := Join(first)
			second := tok.Tokenize(joined)

			require.Len(t, second, len(first))
			for i := range first {
				assert.Equal(t, first[i].Kind, second[i].Kind)
				assert.Equal(t, first[i].Translation != first[i].Text, second[i].Translation != second[i].Text)
			}
			assert.Equal(t, joined, Join(second))
			assert.Equal(t, second, tok.Tokenize(Join(second)))
		})
	}
}

func TestTokenizeRandomQueries(t *testing.T) {
	tok := NewTokenizer(terms.Dictionary{
		"初音":   "Hatsune",
		"ミク":   "Miku",
		"初音ミク": "Hatsune Miku",
		"a":    "A",
		"ab":   "AB",
	})
	alphabet := []string{"初音", "ミク", "初", "a", "b", "x", " ", "\t", "\u3000", "\n"}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		var b strings.Builder
		for n := rng.Intn(12); n > 0; n-- {
			b.WriteString(alphabet[rng.Intn(len(alphabet))])
		}
		q := b.String()

		segs := tok.Tokenize(q)
		require.Equal(t, q, Reconstruct(segs), "reconstruct %q", q)

		once := Join(segs)
		require.Equal(t, once, Join(tok.Tokenize(once)), "join of %q", q)
		require.Equal(t, strings.TrimSpace(once), once)
	}
}

func TestKeyOrder(t *testing.T) {
	tok := NewTokenizer(terms.Dictionary{"b": "1", "aa": "2", "a": "3", "ccc": "4"})

	assert.Equal(t, []string{"ccc", "aa", "a", "b"}, tok.keys)
	assert.Equal(t, 4, tok.Len())
}

func TestSegmentJSON(t *testing.T) {
	seg := Segment{Kind: Match, Text: "世界", Translation: "World", Skipped: " "}

	data, err := json.Marshal(seg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"match","text":"世界","translation":"World"}`, string(data))

	var decoded Segment
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, Match, decoded.Kind)

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"other"}`), &decoded))
}
