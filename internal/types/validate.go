package types

import "fmt"

// Validate checks the structural contract of a source document: positive
// 1-based page numbers, non-empty block identifiers unique within the
// document, and known block types. A malformed document aborts the run
// before any block is processed.
func (d *SourceDocument) Validate() error {
	if d == nil {
		return NewAppError(ErrInvalidInput, "source document is nil", nil)
	}
	if d.ID == "" {
		return NewAppError(ErrInvalidInput, "source document has no identifier", nil)
	}

	seen := make(map[string]int, 64)
	for _, page := range d.Pages {
		if page.Number <= 0 {
			return NewAppErrorWithDetails(ErrInvalidInput, "invalid page number",
				fmt.Sprintf("page number %d (must be >= 1)", page.Number), nil)
		}
		for _, block := range page.Blocks {
			if block.ID == "" {
				return NewAppErrorWithDetails(ErrInvalidInput, "block without identifier",
					fmt.Sprintf("page %d", page.Number), nil)
			}
			if prev, dup := seen[block.ID]; dup {
				return NewAppErrorWithDetails(ErrInvalidInput, "duplicate block identifier",
					fmt.Sprintf("block %q on pages %d and %d", block.ID, prev, page.Number), nil)
			}
			seen[block.ID] = page.Number
			if block.Type != "" && !IsValidBlockType(block.Type) {
				return NewAppErrorWithDetails(ErrInvalidInput, "unknown block type",
					fmt.Sprintf("block %q has type %q", block.ID, block.Type), nil)
			}
		}
	}
	return nil
}
