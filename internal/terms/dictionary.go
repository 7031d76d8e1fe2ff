package terms

// Dictionary maps Japanese text to its English translation.
type Dictionary map[string]string

// BuildDictionary flattens the bilingual terms of t, visiting categories in
// order and terms in list order; a later duplicate key overwrites an
// earlier one. Plain terms and pairs without Japanese text are skipped.
func BuildDictionary(t *Terms) Dictionary {
	dict := make(Dictionary)
	for _, category := range t.Categories() {
		for _, term := range t.Get(category) {
			if !term.Bilingual() || term.Japanese() == "" {
				continue
			}
			dict[term.Japanese()] = term.English()
		}
	}
	return dict
}
