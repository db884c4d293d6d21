package longdoc

// assemble groups translated blocks into pages, preserving the ingestion
// order of both pages and blocks. Every block appears exactly once in the
// output, including skipped and failed ones.
func assemble(blocks []TranslatedDocumentBlock) []TranslatedDocumentPage {
	var pages []TranslatedDocumentPage
	index := make(map[int]int)
	for _, b := range blocks {
		i, ok := index[b.PageNumber]
		if !ok {
			i = len(pages)
			index[b.PageNumber] = i
			pages = append(pages, TranslatedDocumentPage{PageNumber: b.PageNumber})
		}
		pages[i].Blocks = append(pages[i].Blocks, b)
	}
	return pages
}
