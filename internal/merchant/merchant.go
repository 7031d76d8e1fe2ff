// Package merchant holds the marketplaces a finished query can be sent to.
package merchant

import (
	"net/url"
	"strings"

	"github.com/mfc-shop/mfc-shop/pkg/config"
)

// Merchant is one marketplace search endpoint.
type Merchant struct {
	ID          string
	DisplayName string
	ImageURL    string
	queryURL    func(query string) string
}

// QueryURL returns the search URL for query. The result is not validated.
func (m Merchant) QueryURL(query string) string {
	return m.queryURL(query)
}

// Registry is an ordered, read-only set of merchants.
type Registry struct {
	merchants []Merchant
	byID      map[string]int
}

// NewRegistry builds a registry. A later merchant with a duplicate ID
// replaces the earlier one in place.
func NewRegistry(merchants ...Merchant) *Registry {
	r := &Registry{byID: make(map[string]int, len(merchants))}
	for _, m := range merchants {
		if i, ok := r.byID[m.ID]; ok {
			r.merchants[i] = m
			continue
		}
		r.byID[m.ID] = len(r.merchants)
		r.merchants = append(r.merchants, m)
	}
	return r
}

// Lookup finds a merchant by ID.
func (r *Registry) Lookup(id string) (Merchant, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Merchant{}, false
	}
	return r.merchants[i], true
}

// All returns the merchants in registration order.
func (r *Registry) All() []Merchant {
	return append([]Merchant(nil), r.merchants...)
}

func (r *Registry) Len() int {
	return len(r.merchants)
}

type service struct {
	id   string
	name string
}

// Neokyo proxies some marketplaces through a per-service search path and
// the rest through a shared results page with a provider parameter.
var (
	neokyoPathServices = []service{
		{"rakuma", "Rakuma"},
		{"mercari", "Mercari"},
		{"yahoo", "Yahoo Auction JP"},
		{"surugaya", "Surugaya"},
	}
	neokyoProviderServices = []service{
		{"rakuten", "Rakuten"},
		{"amazonJapan", "Amazon JP"},
		{"magi", "Magi"},
	}
)

// Default returns the built-in merchants.
func Default(cfg config.MerchantsConfig) *Registry {
	base := strings.TrimRight(cfg.NeokyoBaseURL, "/")
	merchants := make([]Merchant, 0, len(neokyoPathServices)+len(neokyoProviderServices))
	for _, s := range neokyoPathServices {
		merchants = append(merchants, neokyoByPath(base, cfg.NeokyoIconURL, s))
	}
	for _, s := range neokyoProviderServices {
		merchants = append(merchants, neokyoByProvider(base, cfg.NeokyoIconURL, s))
	}
	return NewRegistry(merchants...)
}

func neokyoByPath(base, icon string, s service) Merchant {
	return Merchant{
		ID:          "neokyo-" + s.id,
		DisplayName: s.name,
		ImageURL:    icon,
		queryURL: func(query string) string {
			v := url.Values{}
			v.Set("keyword", query)
			return base + "/en/search/" + url.PathEscape(s.id) + "?" + v.Encode()
		},
	}
}

func neokyoByProvider(base, icon string, s service) Merchant {
	return Merchant{
		ID:          "neokyo-" + s.id,
		DisplayName: s.name,
		ImageURL:    icon,
		queryURL: func(query string) string {
			// keyword first, then provider
			return base + "/en/search-results?keyword=" + url.QueryEscape(query) +
				"&provider=" + url.QueryEscape(s.id)
		},
	}
}
