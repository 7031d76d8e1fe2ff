package terms

import (
	"strings"

	"github.com/mfc-shop/mfc-shop/internal/page"
)

// Category names produced by the extractor.
const (
	CategoryCategory       = "Category"
	CategoryName           = "Name"
	CategoryOrigins        = "Origins"
	CategoryCharacters     = "Characters"
	CategoryVersion        = "Version"
	CategoryCompanies      = "Companies"
	CategoryClassification = "Classifications"
	CategoryTitle          = "Title"
	CategoryAliases        = "Aliases"
	CategoryAdaptations    = "Adaptations/Translations"
	CategoryProductType    = "Product Type"
)

const (
	rowName         = "Name"
	rowOriginalName = "Original name"
)

// listCategories maps each canonical category to the row labels that feed
// it. When several labels are present the last one wins.
var listCategories = []struct {
	category string
	labels   []string
}{
	{CategoryOrigins, []string{"Origins", "Origin"}},
	{CategoryCharacters, []string{"Characters", "Character"}},
	{CategoryVersion, []string{"Version"}},
	{CategoryCompanies, []string{"Companies", "Company"}},
	{CategoryClassification, []string{"Classifications", "Classification"}},
	{CategoryTitle, []string{"Title"}},
}

var nameListCategories = []string{CategoryAliases, CategoryAdaptations}

// Extractor turns the rows of one page into Terms.
type Extractor struct {
	reader   page.Reader
	japanese bool
}

// NewExtractor binds an extractor to reader. The page language is read
// once here and applies to every leaf.
func NewExtractor(reader page.Reader) *Extractor {
	return &Extractor{
		reader:   reader,
		japanese: reader.ShowingJapanese(),
	}
}

// Extract collects every known category of the page and applies the
// contextual rules. Absent rows simply contribute nothing.
func (e *Extractor) Extract() *Terms {
	t := New()

	// The category row starts with an icon element, so its items would
	// not describe it; take the row text as a whole.
	if row, ok := e.reader.Row(CategoryCategory); ok {
		t.Set(CategoryCategory, nonEmpty(Plain(row.Text())))
	}

	e.extractName(t)

	for _, lc := range listCategories {
		for _, label := range lc.labels {
			row, ok := e.reader.Row(label)
			if !ok {
				continue
			}
			items := row.Items()
			list := make([]Term, 0, len(items))
			for _, item := range items {
				list = append(list, e.leaf(item)...)
			}
			t.Set(lc.category, list)
		}
	}

	for _, category := range nameListCategories {
		row, ok := e.reader.Row(category)
		if !ok {
			continue
		}
		if names := nameList(row.Inline()); len(names) > 1 {
			t.Set(category, names)
		}
	}

	ApplyContextRules(t)
	return t
}

func (e *Extractor) extractName(t *Terms) {
	name, hasName := e.reader.Row(rowName)
	original, hasOriginal := e.reader.Row(rowOriginalName)
	switch {
	case hasName && hasOriginal:
		t.Set(CategoryName, []Term{Pair(name.Text(), original.Text())})
	case hasName:
		t.Set(CategoryName, nonEmpty(Plain(name.Text())))
	case hasOriginal:
		t.Set(CategoryName, nonEmpty(Plain(original.Text())))
	}
}

// leaf applies the alternate-language rule to a single element.
func (e *Extractor) leaf(n page.Node) []Term {
	current := n.Text()
	alt, ok := n.AltText()
	if !ok {
		return nonEmpty(Plain(current))
	}
	if e.japanese {
		return []Term{Pair(alt, current)}
	}
	return []Term{Pair(current, alt)}
}

// nameList reads entries laid out as `text <small>note</small>` separated
// by line breaks.
func nameList(flow []page.Inline) []Term {
	var names []Term
	for i := 0; i < len(flow); i++ {
		if flow[i].Kind != page.InlineText {
			continue
		}
		names = append(names, nonEmpty(Plain(strings.TrimSpace(flow[i].Text)))...)
		if i+1 < len(flow) && flow[i+1].Kind == page.InlineSmall {
			i++
		}
	}
	return names
}

func nonEmpty(t Term) []Term {
	if !t.Bilingual() && strings.TrimSpace(t.English()) == "" {
		return nil
	}
	return []Term{t}
}
