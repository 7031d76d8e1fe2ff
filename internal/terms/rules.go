package terms

var (
	termFigure   = Pair("Figure", "フィギュア")
	termKeychain = Pair("Keychain", "キーチェーン")
	termStrap    = Pair("Strap", "ストラップ")
)

var figureCategories = []string{"Prepainted", "Action/Dolls", "Trading", "Garage Kits", "Model Kits"}

const (
	hangingCategory   = "Hanged up"
	characterCategory = "Characters"
)

// ApplyContextRules adds terms implied by the Category of a page but not
// printed on it. All rules test the Category terms as they were before
// any rule ran.
func ApplyContextRules(t *Terms) {
	figure := t.Contains(CategoryCategory, figureCategories...)
	hanging := t.Contains(CategoryCategory, hangingCategory)
	character := t.Contains(CategoryCategory, characterCategory)

	if figure {
		t.Append(CategoryCategory, termFigure)
	}
	if hanging {
		t.Append(CategoryCategory, termKeychain, termStrap)
	}
	// Character pages list no product, so offer the common product kinds.
	if character {
		t.Set(CategoryProductType, []Term{termFigure, termKeychain, termStrap})
	}
}
