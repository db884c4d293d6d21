package longdoc

import (
	"context"
	"time"

	"longdoc-translator/internal/formula"
	"longdoc-translator/internal/logger"
	"longdoc-translator/internal/terminology"
	"longdoc-translator/internal/types"
)

// ServiceConfig wires the external capabilities into the pipeline
type ServiceConfig struct {
	// Translate is required
	Translate TranslateCapability
	// OCR is optional; scanned pages contribute no blocks without it
	OCR OCRCapability
	// Terms optionally shares a terminology enforcer across runs. When
	// nil, each run gets a fresh enforcer scoped to that document.
	Terms *terminology.Enforcer
}

// Service drives the long-document translation pipeline. It performs no
// file or network I/O itself; all blocking happens inside the injected
// capabilities.
type Service struct {
	translate TranslateCapability
	ocr       OCRCapability
	terms     *terminology.Enforcer
}

// NewService creates a Service from the given capabilities
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Translate == nil {
		return nil, types.NewAppError(types.ErrConfig, "translate capability is required", nil)
	}
	return &Service{
		translate: cfg.Translate,
		ocr:       cfg.OCR,
		terms:     cfg.Terms,
	}, nil
}

// TranslateDocument runs the full pipeline over a source document. It either
// returns a complete result or an error; a canceled run never returns a
// partial result. Per-block translation failures are recovered locally and
// reported in the result, never by aborting the document.
func (s *Service) TranslateDocument(ctx context.Context, doc *types.SourceDocument, opts TranslationOptions) (*TranslationResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.SourceLanguage == "" {
		opts.SourceLanguage = AutoDetectLanguage
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Info("starting document translation",
		logger.String("docID", doc.ID),
		logger.String("service", opts.ServiceID),
		logger.String("target", opts.TargetLanguage),
		logger.Int("maxRetries", opts.MaxRetriesPerBlock))

	// All stage keys are reported even when a stage does zero work.
	timings := make(map[string]int64, len(stageNames))
	for _, name := range stageNames {
		timings[name] = 0
	}

	start := time.Now()
	ingested, err := s.ingest(ctx, doc, opts)
	if err != nil {
		return nil, err
	}
	timings[StageIngest] = time.Since(start).Milliseconds()

	start = time.Now()
	ir := buildIr(doc.ID, ingested)
	timings[StageBuildIr] = time.Since(start).Milliseconds()

	start = time.Now()
	protectIr(ir, ingested, opts.EnableFormulaProtection)
	timings[StageFormulaProtect] = time.Since(start).Milliseconds()

	enforcer := s.terms
	if enforcer == nil {
		enforcer = terminology.NewEnforcer(opts.TermWindowPages)
	}

	start = time.Now()
	translated := make([]TranslatedDocumentBlock, 0, len(ir.Blocks))
	var failures []FailedBlockInfo
	for i := range ir.Blocks {
		block, failure, err := s.translateBlock(ctx, &ir.Blocks[i], opts, enforcer)
		if err != nil {
			// Cancellation aborts the whole run; accumulated blocks are
			// discarded rather than returned as a partial document.
			return nil, err
		}
		if failure != nil {
			failures = append(failures, *failure)
		}
		translated = append(translated, block)
	}
	timings[StageTranslate] = time.Since(start).Milliseconds()

	start = time.Now()
	pages := assemble(translated)
	timings[StageStructuredOutput] = time.Since(start).Milliseconds()

	report := buildReport(timings, translated, failures)

	logger.Info("document translation complete",
		logger.String("docID", doc.ID),
		logger.Int("totalBlocks", report.TotalBlocks),
		logger.Int("translated", report.TranslatedBlocks),
		logger.Int("skipped", report.SkippedBlocks),
		logger.Int("failed", len(report.FailedBlocks)))

	return &TranslationResult{Ir: ir, Pages: pages, Report: report}, nil
}

// translateBlock runs one block through the per-block state machine:
// Pending -> Translating -> (Succeeded | Retrying -> Translating | Failed),
// with Skipped blocks never entering Translating. The returned error is
// non-nil only for cancellation.
func (s *Service) translateBlock(ctx context.Context, block *DocumentBlockIr, opts TranslationOptions, enforcer *terminology.Enforcer) (TranslatedDocumentBlock, *FailedBlockInfo, error) {
	out := TranslatedDocumentBlock{DocumentBlockIr: *block}

	if block.TranslationSkipped {
		// Formula-only or empty block: output equals input with
		// placeholders already restored, and the capability is never
		// called.
		out.TranslatedText = block.OriginalText
		return out, nil, nil
	}

	attempts := opts.MaxRetriesPerBlock + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return out, nil, err
		}

		result, err := s.translate(ctx, block.ProtectedText, opts.TargetLanguage)
		if err != nil {
			if ctx.Err() != nil {
				return out, nil, ctx.Err()
			}
			lastErr = err
			out.RetryCount = attempt
			if attempt+1 < attempts {
				logger.Debug("block translation attempt failed, retrying",
					logger.String("irBlockID", block.IrBlockID),
					logger.Int("attempt", attempt+1),
					logger.Err(err))
				out.RetryCount = attempt + 1
			}
			continue
		}

		out.RetryCount = attempt

		restored, restoreErr := formula.Restore(result, block.tokens)
		if restoreErr != nil {
			// Structural mismatch: retrying the provider would not fix
			// it. Fall back to the original text immediately.
			logger.Warn("formula restoration failed, falling back to original text",
				logger.String("irBlockID", block.IrBlockID),
				logger.Err(restoreErr))
			out.TranslatedText = block.OriginalText
			out.LastError = FormulaRestoreFailed
			return out, &FailedBlockInfo{
				IrBlockID:     block.IrBlockID,
				SourceBlockID: block.SourceBlockID,
				PageNumber:    block.PageNumber,
				RetryCount:    out.RetryCount,
				Error:         FormulaRestoreFailed,
			}, nil
		}

		out.TranslatedText = enforcer.Apply(restored, block.OriginalText, opts.Glossary, block.PageNumber)
		return out, nil, nil
	}

	// All retries exhausted: degrade to the original text, never to an
	// empty or corrupted block.
	logger.Warn("block translation failed after all retries",
		logger.String("irBlockID", block.IrBlockID),
		logger.Int("retries", out.RetryCount),
		logger.Err(lastErr))
	out.TranslatedText = block.OriginalText
	out.LastError = lastErr.Error()
	return out, &FailedBlockInfo{
		IrBlockID:     block.IrBlockID,
		SourceBlockID: block.SourceBlockID,
		PageNumber:    block.PageNumber,
		RetryCount:    out.RetryCount,
		Error:         lastErr.Error(),
	}, nil
}

// buildReport aggregates counts and failures; TranslatedBlocks counts every
// block that went through the translation capability, whether or not it
// ultimately degraded to fallback text.
func buildReport(timings map[string]int64, blocks []TranslatedDocumentBlock, failures []FailedBlockInfo) *QualityReport {
	report := &QualityReport{
		StageTimingsMs: timings,
		TotalBlocks:    len(blocks),
		FailedBlocks:   failures,
	}
	for _, b := range blocks {
		if b.TranslationSkipped {
			report.SkippedBlocks++
		} else {
			report.TranslatedBlocks++
		}
	}
	return report
}
