package merchant

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfc-shop/mfc-shop/pkg/config"
)

func testConfig() config.MerchantsConfig {
	return config.MerchantsConfig{
		NeokyoBaseURL: "https://neokyo.com/",
		NeokyoIconURL: "https://cdn.example.com/neokyo.png",
	}
}

func TestDefaultOrder(t *testing.T) {
	reg := Default(testConfig())

	var ids []string
	for _, m := range reg.All() {
		ids = append(ids, m.ID)
		assert.Equal(t, "https://cdn.example.com/neokyo.png", m.ImageURL)
	}
	assert.Equal(t, []string{
		"neokyo-rakuma", "neokyo-mercari", "neokyo-yahoo", "neokyo-surugaya",
		"neokyo-rakuten", "neokyo-amazonJapan", "neokyo-magi",
	}, ids)
	assert.Equal(t, 7, reg.Len())
}

func TestPathMerchantURL(t *testing.T) {
	m, ok := Default(testConfig()).Lookup("neokyo-mercari")
	require.True(t, ok)
	assert.Equal(t, "Mercari", m.DisplayName)

	got := m.QueryURL("初音ミク フィギュア")
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "neokyo.com", u.Host)
	assert.Equal(t, "/en/search/mercari", u.Path)
	assert.Equal(t, "初音ミク フィギュア", u.Query().Get("keyword"))
}

func TestProviderMerchantURL(t *testing.T) {
	m, ok := Default(testConfig()).Lookup("neokyo-amazonJapan")
	require.True(t, ok)
	assert.Equal(t, "Amazon JP", m.DisplayName)

	got := m.QueryURL("a&b")
	assert.Equal(t, "https://neokyo.com/en/search-results?keyword=a%26b&provider=amazonJapan", got)
}

func TestEmptyQuery(t *testing.T) {
	m, ok := Default(testConfig()).Lookup("neokyo-yahoo")
	require.True(t, ok)
	assert.Equal(t, "https://neokyo.com/en/search/yahoo?keyword=", m.QueryURL(""))
}

func TestLookupUnknown(t *testing.T) {
	_, ok := Default(testConfig()).Lookup("ebay")
	assert.False(t, ok)
}

func TestNewRegistryDuplicateReplaces(t *testing.T) {
	reg := NewRegistry(
		Merchant{ID: "a", DisplayName: "first"},
		Merchant{ID: "b", DisplayName: "second"},
		Merchant{ID: "a", DisplayName: "third"},
	)

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "third", all[0].DisplayName)
	assert.Equal(t, "second", all[1].DisplayName)
}

func TestAllIsCopy(t *testing.T) {
	reg := Default(testConfig())
	all := reg.All()
	all[0].DisplayName = "changed"

	m, _ := reg.Lookup("neokyo-rakuma")
	assert.Equal(t, "Rakuma", m.DisplayName)
}
