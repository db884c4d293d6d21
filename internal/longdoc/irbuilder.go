package longdoc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"longdoc-translator/internal/formula"
	"longdoc-translator/internal/types"
)

// irBlockID derives a stable IR identifier from (page, source block id).
// The same input always yields the same id, so external callers can use IR
// ids for idempotent retries and checkpointing.
func irBlockID(pageNumber int, sourceBlockID string) string {
	return fmt.Sprintf("ir_p%d_%s", pageNumber, sourceBlockID)
}

// contentHash fingerprints the original (pre-protection) text
func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// buildIr assigns IR identifiers, content hashes, and parent links to the
// ingested blocks, preserving their exact relative order. Formula
// protection runs as a separate stage (protectIr).
func buildIr(documentID string, blocks []ingestedBlock) *DocumentIr {
	ir := &DocumentIr{
		DocumentID: documentID,
		Blocks:     make([]DocumentBlockIr, 0, len(blocks)),
	}

	// First pass: ids and hashes.
	known := make(map[string]string, len(blocks)) // (page, source id) -> ir id
	for _, ib := range blocks {
		id := irBlockID(ib.page, ib.block.ID)
		known[id] = id
		blockType := ib.block.Type
		if blockType == "" {
			blockType = types.BlockUnknown
		}
		ir.Blocks = append(ir.Blocks, DocumentBlockIr{
			IrBlockID:     id,
			PageNumber:    ib.page,
			SourceBlockID: ib.block.ID,
			Type:          blockType,
			OriginalText:  ib.block.Text,
			ProtectedText: ib.block.Text,
			SourceHash:    contentHash(ib.block.Text),
			Bounds:        ib.block.Bounds,
		})
	}

	// Second pass: parent resolution on the same page. Unresolved parents
	// stay empty; an orphaned caption is not an error.
	for i, ib := range blocks {
		if ib.block.ParentID == "" {
			continue
		}
		parentID := irBlockID(ib.page, ib.block.ParentID)
		if _, ok := known[parentID]; ok {
			ir.Blocks[i].ParentIrBlockID = parentID
		}
	}

	return ir
}

// protectIr computes the protected-text variant of every IR block and marks
// blocks that carry no translatable content as skipped. Formula-tagged
// blocks are protected whole; other blocks get span-level protection.
// When protection is disabled, blocks translate verbatim and only
// whitespace-only blocks are skipped.
func protectIr(ir *DocumentIr, blocks []ingestedBlock, enabled bool) {
	for i := range ir.Blocks {
		b := &ir.Blocks[i]

		if !enabled {
			if strings.TrimSpace(b.OriginalText) == "" {
				b.TranslationSkipped = true
			}
			continue
		}

		isFormulaBlock := b.Type == types.BlockFormula || blocks[i].block.IsFormula
		if isFormulaBlock {
			b.ProtectedText, b.tokens = formula.ProtectWhole(b.OriginalText)
		} else {
			b.ProtectedText, b.tokens = formula.Protect(b.OriginalText)
		}

		if strings.TrimSpace(b.ProtectedText) == "" || formula.IsTokenOnly(b.ProtectedText) {
			b.TranslationSkipped = true
		}
	}
}
