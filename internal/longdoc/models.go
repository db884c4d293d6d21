// Package longdoc implements the long-document translation pipeline:
// ingestion, block-level intermediate representation with content hashing,
// formula protection, per-block translation with bounded retry, structured
// output assembly, and quality reporting.
package longdoc

import (
	"context"

	"golang.org/x/text/language"

	"longdoc-translator/internal/formula"
	"longdoc-translator/internal/types"
)

// TranslateCapability translates text into the target language. It is
// supplied by the caller; the orchestrator treats any returned error as a
// retryable failure unless the context was canceled.
type TranslateCapability func(ctx context.Context, text, targetLang string) (string, error)

// OCRCapability recovers text from a scanned page. An empty string with a
// nil error means nothing was recoverable, which is not an error.
type OCRCapability func(ctx context.Context, pageNumber int) (string, error)

// AutoDetectLanguage is the source-language value meaning "let the
// translation capability detect the language".
const AutoDetectLanguage = "auto"

// DefaultMaxRetriesPerBlock is the default for TranslationOptions.MaxRetriesPerBlock
const DefaultMaxRetriesPerBlock = 1

// Stage names for the quality report timing map. Every run reports all of
// them, including stages that did zero work.
const (
	StageIngest           = "ingest"
	StageBuildIr          = "build-ir"
	StageFormulaProtect   = "formula-protection"
	StageTranslate        = "translate"
	StageStructuredOutput = "structured-layout-output"
)

var stageNames = []string{
	StageIngest,
	StageBuildIr,
	StageFormulaProtect,
	StageTranslate,
	StageStructuredOutput,
}

// TranslationOptions configures one translation run
type TranslationOptions struct {
	// ServiceID identifies the translation capability in reports/logs
	ServiceID string `json:"service_id"`
	// SourceLanguage defaults to AutoDetectLanguage when empty
	SourceLanguage string `json:"source_language"`
	// TargetLanguage is required
	TargetLanguage string `json:"target_language"`
	// EnableFormulaProtection guards math spans with placeholder tokens
	EnableFormulaProtection bool `json:"enable_formula_protection"`
	// EnableOCRFallback recovers text from scanned pages with no blocks
	EnableOCRFallback bool `json:"enable_ocr_fallback"`
	// MaxRetriesPerBlock must be >= 0; negative values are rejected
	MaxRetriesPerBlock int `json:"max_retries_per_block"`
	// Glossary maps source terms to their required translations
	Glossary map[string]string `json:"glossary,omitempty"`
	// TermWindowPages overrides the terminology recency window (0 keeps
	// the enforcer default of ±2 pages)
	TermWindowPages int `json:"term_window_pages,omitempty"`
}

// DefaultTranslationOptions returns options with formula protection and OCR
// fallback enabled, auto-detected source language, and one retry per block.
func DefaultTranslationOptions(targetLang string) TranslationOptions {
	return TranslationOptions{
		SourceLanguage:          AutoDetectLanguage,
		TargetLanguage:          targetLang,
		EnableFormulaProtection: true,
		EnableOCRFallback:       true,
		MaxRetriesPerBlock:      DefaultMaxRetriesPerBlock,
	}
}

// Validate checks the option contract before any block is processed
func (o *TranslationOptions) Validate() error {
	if o.MaxRetriesPerBlock < 0 {
		return types.NewAppError(types.ErrInvalidInput, "MaxRetriesPerBlock must be >= 0", nil)
	}
	if o.TargetLanguage == "" {
		return types.NewAppError(types.ErrInvalidInput, "target language is required", nil)
	}
	if _, err := language.Parse(o.TargetLanguage); err != nil {
		return types.NewAppErrorWithDetails(types.ErrInvalidInput, "invalid target language tag", o.TargetLanguage, err)
	}
	if o.SourceLanguage != "" && o.SourceLanguage != AutoDetectLanguage {
		if _, err := language.Parse(o.SourceLanguage); err != nil {
			return types.NewAppErrorWithDetails(types.ErrInvalidInput, "invalid source language tag", o.SourceLanguage, err)
		}
	}
	return nil
}

// DocumentBlockIr is the translation unit: a source block normalized,
// hash-stamped, and formula-protected.
type DocumentBlockIr struct {
	IrBlockID          string          `json:"ir_block_id"`
	PageNumber         int             `json:"page_number"`
	SourceBlockID      string          `json:"source_block_id"`
	Type               types.BlockType `json:"type"`
	OriginalText       string          `json:"original_text"`
	ProtectedText      string          `json:"protected_text"`
	SourceHash         string          `json:"source_hash"`
	Bounds             *types.Rect     `json:"bounds,omitempty"`
	ParentIrBlockID    string          `json:"parent_ir_block_id,omitempty"`
	TranslationSkipped bool            `json:"translation_skipped"`

	tokens *formula.TokenMap
}

// DocumentIr carries the full ordered block list for one document. Blocks
// preserve ingestion order exactly; callers rely on this for round-tripping.
type DocumentIr struct {
	DocumentID string            `json:"document_id"`
	Blocks     []DocumentBlockIr `json:"blocks"`
}

// TranslatedDocumentBlock extends the IR block with the translation outcome
type TranslatedDocumentBlock struct {
	DocumentBlockIr
	TranslatedText string `json:"translated_text"`
	RetryCount     int    `json:"retry_count"`
	LastError      string `json:"last_error,omitempty"`
}

// TranslatedDocumentPage groups translated blocks by page, in ingestion order
type TranslatedDocumentPage struct {
	PageNumber int                       `json:"page_number"`
	Blocks     []TranslatedDocumentBlock `json:"blocks"`
}

// FailedBlockInfo records a block that exhausted its retries (or failed
// formula restoration) without a usable translation.
type FailedBlockInfo struct {
	IrBlockID     string `json:"ir_block_id"`
	SourceBlockID string `json:"source_block_id"`
	PageNumber    int    `json:"page_number"`
	RetryCount    int    `json:"retry_count"`
	Error         string `json:"error"`
}

// FormulaRestoreFailed is the LastError tag distinguishing a structural
// restoration failure from a transient translation failure.
const FormulaRestoreFailed = "formula-restore-failed"

// BackfillPageMetrics are per-page rendering-mode counts from the optional
// PDF backfill stage.
type BackfillPageMetrics struct {
	PageNumber         int `json:"page_number"`
	CandidateBlocks    int `json:"candidate_blocks"`
	RenderedBlocks     int `json:"rendered_blocks"`
	MissingBounds      int `json:"missing_bounds"`
	ShrunkFont         int `json:"shrunk_font"`
	Truncated          int `json:"truncated"`
	DirectReplaced     int `json:"direct_replaced"`
	OverlayRendered    int `json:"overlay_rendered"`
	StructuredFallback int `json:"structured_fallback"`
}

// BackfillQualityMetrics aggregates backfill rendering modes document-wide,
// with optional per-page detail.
type BackfillQualityMetrics struct {
	CandidateBlocks    int                   `json:"candidate_blocks"`
	RenderedBlocks     int                   `json:"rendered_blocks"`
	MissingBounds      int                   `json:"missing_bounds"`
	ShrunkFont         int                   `json:"shrunk_font"`
	Truncated          int                   `json:"truncated"`
	DirectReplaced     int                   `json:"direct_replaced"`
	OverlayRendered    int                   `json:"overlay_rendered"`
	StructuredFallback int                   `json:"structured_fallback"`
	Pages              []BackfillPageMetrics `json:"pages,omitempty"`
}

// QualityReport packages stage timings, counts, and failure records for one
// run. TranslatedBlocks counts every block sent through the translation
// capability that completed the pipeline, including blocks whose output
// degraded to the original text; FailedBlocks is informational.
type QualityReport struct {
	StageTimingsMs   map[string]int64        `json:"stage_timings_ms"`
	Backfill         *BackfillQualityMetrics `json:"backfill,omitempty"`
	TotalBlocks      int                     `json:"total_blocks"`
	TranslatedBlocks int                     `json:"translated_blocks"`
	SkippedBlocks    int                     `json:"skipped_blocks"`
	FailedBlocks     []FailedBlockInfo       `json:"failed_blocks,omitempty"`
}

// TranslationResult is the final product of one run: the IR, the ordered
// translated pages, and the quality report. It exists only in memory;
// persistence is the caller's concern.
type TranslationResult struct {
	Ir     *DocumentIr              `json:"ir"`
	Pages  []TranslatedDocumentPage `json:"pages"`
	Report *QualityReport           `json:"report"`
}
