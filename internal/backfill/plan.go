// Package backfill writes translated text back into a copy of the source
// PDF. Rendering degrades per block: overlay at the original size, then a
// smaller font, then truncation, and finally a structured sidecar entry
// when the block cannot be rendered in place at all.
package backfill

import (
	"strings"
	"unicode"

	"longdoc-translator/internal/longdoc"
)

type renderAction int

const (
	actionOverlay renderAction = iota
	actionShrinkFont
	actionTruncate
	actionStructuredFallback
)

const (
	defaultFontSize = 10.0
	minFontSize     = 6.0
	ellipsis        = "…"
)

// plannedBlock is the rendering decision for one translated block.
type plannedBlock struct {
	block    longdoc.TranslatedDocumentBlock
	action   renderAction
	fontSize float64
	text     string
}

// estimateTextWidth approximates rendered width in points. CJK glyphs are
// roughly square; Latin glyphs average half the font size.
func estimateTextWidth(text string, fontSize float64) float64 {
	var w float64
	for _, r := range text {
		if isWideGlyph(r) {
			w += fontSize
		} else {
			w += fontSize * 0.5
		}
	}
	return w
}

func isWideGlyph(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// planBlock decides how one block gets rendered. Blocks without bounds
// cannot be positioned and fall through to the structured sidecar.
func planBlock(block longdoc.TranslatedDocumentBlock) plannedBlock {
	text := flattenForOverlay(block.TranslatedText)

	if block.Bounds == nil || block.Bounds.Width <= 0 || block.Bounds.Height <= 0 {
		return plannedBlock{block: block, action: actionStructuredFallback, text: text}
	}

	fontSize := block.Bounds.Height / 1.2
	if fontSize <= 0 || fontSize > 72 {
		fontSize = defaultFontSize
	}

	// Bounds hold roughly width*height/fontSize points of text when
	// wrapped; approximate the capacity as area divided by line height.
	capacity := block.Bounds.Width * (block.Bounds.Height / (fontSize * 1.2))
	if capacity < block.Bounds.Width {
		capacity = block.Bounds.Width
	}

	if estimateTextWidth(text, fontSize) <= capacity {
		return plannedBlock{block: block, action: actionOverlay, fontSize: fontSize, text: text}
	}

	// Shrink until the text fits or the floor is reached.
	for size := fontSize * 0.9; size >= minFontSize; size *= 0.9 {
		scaled := block.Bounds.Width * (block.Bounds.Height / (size * 1.2))
		if scaled < block.Bounds.Width {
			scaled = block.Bounds.Width
		}
		if estimateTextWidth(text, size) <= scaled {
			return plannedBlock{block: block, action: actionShrinkFont, fontSize: size, text: text}
		}
	}

	// Truncate at the minimum size rather than spilling over neighbors.
	capacity = block.Bounds.Width * (block.Bounds.Height / (minFontSize * 1.2))
	if capacity < block.Bounds.Width {
		capacity = block.Bounds.Width
	}
	truncated := truncateToWidth(text, minFontSize, capacity)
	return plannedBlock{block: block, action: actionTruncate, fontSize: minFontSize, text: truncated}
}

// planDocument plans every candidate block. Skipped blocks keep their
// original rendering and are not candidates.
func planDocument(pages []longdoc.TranslatedDocumentPage) []plannedBlock {
	var planned []plannedBlock
	for _, page := range pages {
		for _, block := range page.Blocks {
			if block.TranslationSkipped {
				continue
			}
			if strings.TrimSpace(block.TranslatedText) == "" {
				continue
			}
			planned = append(planned, planBlock(block))
		}
	}
	return planned
}

func truncateToWidth(text string, fontSize, maxWidth float64) string {
	budget := maxWidth - estimateTextWidth(ellipsis, fontSize)
	var w float64
	runes := []rune(text)
	for i, r := range runes {
		if isWideGlyph(r) {
			w += fontSize
		} else {
			w += fontSize * 0.5
		}
		if w > budget {
			return strings.TrimSpace(string(runes[:i])) + ellipsis
		}
	}
	return text
}

// flattenForOverlay collapses a block to a single overlay line and escapes
// characters that break pdfcpu watermark strings.
func flattenForOverlay(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, "(", "\\(")
	text = strings.ReplaceAll(text, ")", "\\)")
	return text
}

// collectMetrics aggregates planning decisions into the quality metrics
// reported alongside the translation result. Overlay rendering can never
// replace PDF content objects directly, so DirectReplaced stays zero.
func collectMetrics(planned []plannedBlock, rendered map[string]bool) *longdoc.BackfillQualityMetrics {
	metrics := &longdoc.BackfillQualityMetrics{}
	pageIndex := make(map[int]int)

	pageFor := func(n int) *longdoc.BackfillPageMetrics {
		i, ok := pageIndex[n]
		if !ok {
			i = len(metrics.Pages)
			pageIndex[n] = i
			metrics.Pages = append(metrics.Pages, longdoc.BackfillPageMetrics{PageNumber: n})
		}
		return &metrics.Pages[i]
	}

	for _, p := range planned {
		pm := pageFor(p.block.PageNumber)
		metrics.CandidateBlocks++
		pm.CandidateBlocks++

		switch p.action {
		case actionStructuredFallback:
			metrics.MissingBounds++
			pm.MissingBounds++
			metrics.StructuredFallback++
			pm.StructuredFallback++
			continue
		case actionShrinkFont:
			metrics.ShrunkFont++
			pm.ShrunkFont++
		case actionTruncate:
			metrics.Truncated++
			pm.Truncated++
		}

		if rendered[p.block.IrBlockID] {
			metrics.RenderedBlocks++
			pm.RenderedBlocks++
			metrics.OverlayRendered++
			pm.OverlayRendered++
		} else {
			metrics.StructuredFallback++
			pm.StructuredFallback++
		}
	}
	return metrics
}
