package terms

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetKeepsFirstPosition(t *testing.T) {
	tm := New()
	tm.Set("Origins", []Term{Plain("A")})
	tm.Set("Companies", []Term{Plain("B")})
	tm.Set("Origins", []Term{Plain("C")})
	tm.Set("Title", nil)

	assert.Equal(t, []string{"Origins", "Companies"}, tm.Categories())
	assert.Equal(t, []Term{Plain("C")}, tm.Get("Origins"))
}

func TestGetReturnsCopy(t *testing.T) {
	tm := New()
	tm.Set("Origins", []Term{Plain("A")})

	list := tm.Get("Origins")
	list[0] = Plain("mutated")

	assert.Equal(t, []Term{Plain("A")}, tm.Get("Origins"))
}

func TestTermsJSONKeepsOrder(t *testing.T) {
	tm := New()
	tm.Set("Title", []Term{Plain("Snow Miku")})
	tm.Set("Category", []Term{Plain("Prepainted"), Pair("Figure", "フィギュア")})

	data, err := json.Marshal(tm)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Title":["Snow Miku"],"Category":["Prepainted",{"en":"Figure","jp":"フィギュア"}]}`, string(data))
	assert.Less(t, indexOf(string(data), "Title"), indexOf(string(data), "Category"))

	decoded := New()
	require.NoError(t, json.Unmarshal(data, decoded))
	assert.Equal(t, tm.Categories(), decoded.Categories())
	assert.Equal(t, tm.Get("Category"), decoded.Get("Category"))
}

func TestTermsUnmarshalRejectsNonObject(t *testing.T) {
	assert.Error(t, json.Unmarshal([]byte(`["Title"]`), New()))
}

func TestTermAccessors(t *testing.T) {
	p := Pair("Figure", "フィギュア")
	assert.True(t, p.Bilingual())
	assert.True(t, p.Matches("フィギュア"))
	assert.Equal(t, "Figure/フィギュア", p.String())

	plain := Plain("Max Factory")
	assert.False(t, plain.Bilingual())
	assert.Equal(t, "Max Factory", plain.English())
	assert.Equal(t, "Max Factory", plain.Japanese())
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
