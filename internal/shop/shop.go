// Package shop builds the shop view model for one catalog page: the term
// chips to pick from, the merchants to search and the help text.
package shop

import (
	"net/http"

	"github.com/mfc-shop/mfc-shop/internal/merchant"
	"github.com/mfc-shop/mfc-shop/internal/page"
	"github.com/mfc-shop/mfc-shop/internal/terms"
	apperrors "github.com/mfc-shop/mfc-shop/pkg/errors"
)

// DisplayOrder is the order categories are shown in. Categories not listed
// are never shown.
var DisplayOrder = []string{
	terms.CategoryCategory,
	terms.CategoryOrigins,
	terms.CategoryClassification,
	terms.CategoryCharacters,
	terms.CategoryName,
	terms.CategoryTitle,
	terms.CategoryVersion,
	terms.CategoryAliases,
	terms.CategoryAdaptations,
	terms.CategoryProductType,
	terms.CategoryCompanies,
}

// Help is shown below the shop section.
var Help = []string{
	"Shop functionality is provided by the MFC-Shop service, and is not an official part of MFC.",
	"This service makes it easier to search Japanese marketplaces for items such as figures and " +
		"keychains by building and editing Japanese search queries from MFC data, without requiring " +
		"any knowledge of Japanese.",
	"Text is added to the search query by picking terms from the Search Terms section, which are " +
		"collected from the current page. Terms with a translation are shown in English without " +
		"quotes and insert their Japanese equivalent into the query. Terms without a translation are " +
		"shown in quotes and insert themselves.",
	"When the search query contains text, a best-effort translation is shown below it, based on " +
		"the terms collected from the page. Picking a translated term removes it from the query.",
	"The search query may also be edited directly when the collected terms are not sufficient.",
	"Once the query is ready, pick a marketplace to open its search in a new window.",
}

// Chip is one selectable term. Value is what gets inserted into the query.
type Chip struct {
	Label      string `json:"label"`
	Value      string `json:"value"`
	Translated bool   `json:"translated"`
}

// Group holds the chips of one category.
type Group struct {
	Category string `json:"category"`
	Chips    []Chip `json:"chips"`
}

// Button links to one merchant search.
type Button struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	ImageURL    string `json:"imageUrl"`
}

// Section is everything needed to render the shop for a page.
type Section struct {
	Terms          *terms.Terms `json:"terms"`
	Groups         []Group      `json:"groups"`
	Merchants      []Button     `json:"merchants"`
	Help           []string     `json:"help"`
	DictionarySize int          `json:"dictionarySize"`
}

// Augment extracts the terms of the page behind reader and builds its
// Section. It either succeeds completely or returns an error wrapping
// ErrExtractionFailed, never a partial Section.
func Augment(reader page.Reader, registry *merchant.Registry) (*Section, error) {
	t, err := ExtractTerms(reader)
	if err != nil {
		return nil, err
	}
	return Build(t, registry), nil
}

// ExtractTerms runs the extractor over reader, turning a panic from a
// malformed page into an ErrExtractionFailed error.
func ExtractTerms(reader page.Reader) (t *terms.Terms, err error) {
	defer func() {
		if r := recover(); r != nil {
			t = nil
			err = apperrors.Newf(apperrors.ErrExtractionFailed, http.StatusUnprocessableEntity,
				"reading page: %v", r)
		}
	}()
	if reader == nil {
		return nil, apperrors.New(apperrors.ErrExtractionFailed, http.StatusUnprocessableEntity,
			"no page to read")
	}
	return terms.NewExtractor(reader).Extract(), nil
}

// Build lays out already extracted terms.
func Build(t *terms.Terms, registry *merchant.Registry) *Section {
	s := &Section{
		Terms:          t,
		Groups:         Groups(t),
		Help:           Help,
		DictionarySize: len(terms.BuildDictionary(t)),
	}
	if registry != nil {
		for _, m := range registry.All() {
			s.Merchants = append(s.Merchants, Button{
				ID:          m.ID,
				DisplayName: m.DisplayName,
				ImageURL:    m.ImageURL,
			})
		}
	}
	return s
}

// Groups returns the chip groups of t in display order.
func Groups(t *terms.Terms) []Group {
	groups := make([]Group, 0, len(DisplayOrder))
	for _, category := range DisplayOrder {
		if !t.Has(category) {
			continue
		}
		list := t.Get(category)
		chips := make([]Chip, 0, len(list))
		for _, term := range list {
			chips = append(chips, ChipFor(term))
		}
		groups = append(groups, Group{Category: category, Chips: chips})
	}
	return groups
}

// ChipFor labels a term. Bilingual terms show English and insert Japanese.
func ChipFor(t terms.Term) Chip {
	if t.Bilingual() {
		return Chip{Label: t.English(), Value: t.Japanese(), Translated: true}
	}
	return Chip{Label: `"` + t.English() + `"`, Value: t.English()}
}
