package longdoc

import (
	"context"
	"fmt"
	"strings"

	"longdoc-translator/internal/logger"
	"longdoc-translator/internal/types"
)

// ingestedBlock pairs a source block with its page during the flattening
// walk. Ingestion order is the order invariant every later stage preserves.
type ingestedBlock struct {
	page  int
	block types.SourceDocumentBlock
}

// ingest flattens the source document into an ordered block list, visiting
// pages and blocks in input order. Scanned pages with no extractable blocks
// go through the OCR capability when enabled; a page that stays empty is
// legitimate and contributes zero blocks.
func (s *Service) ingest(ctx context.Context, doc *types.SourceDocument, opts TranslationOptions) ([]ingestedBlock, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	blocks := make([]ingestedBlock, 0, 64)
	for _, page := range doc.Pages {
		if page.IsScanned && len(page.Blocks) == 0 {
			recovered, err := s.recoverScannedPage(ctx, page.Number, opts)
			if err != nil {
				return nil, err
			}
			if recovered != nil {
				blocks = append(blocks, ingestedBlock{page: page.Number, block: *recovered})
			}
			continue
		}
		for _, block := range page.Blocks {
			blocks = append(blocks, ingestedBlock{page: page.Number, block: block})
		}
	}

	logger.Info("document ingested",
		logger.String("docID", doc.ID),
		logger.Int("pages", len(doc.Pages)),
		logger.Int("blocks", len(blocks)))
	return blocks, nil
}

// recoverScannedPage runs OCR for a scanned page. It returns nil when OCR
// is disabled, unavailable, or recovers no text. Cancellation propagates;
// other OCR errors degrade to an empty page.
func (s *Service) recoverScannedPage(ctx context.Context, pageNumber int, opts TranslationOptions) (*types.SourceDocumentBlock, error) {
	if !opts.EnableOCRFallback || s.ocr == nil {
		logger.Debug("scanned page skipped, OCR fallback unavailable", logger.Int("page", pageNumber))
		return nil, nil
	}

	text, err := s.ocr(ctx, pageNumber)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("OCR extraction failed, page contributes no blocks",
			logger.Int("page", pageNumber), logger.Err(err))
		return nil, nil
	}
	if strings.TrimSpace(text) == "" {
		logger.Debug("OCR recovered no text", logger.Int("page", pageNumber))
		return nil, nil
	}

	logger.Info("OCR recovered scanned page",
		logger.Int("page", pageNumber), logger.Int("textLen", len(text)))
	return &types.SourceDocumentBlock{
		ID:   fmt.Sprintf("ocr_page_%d", pageNumber),
		Type: types.BlockParagraph,
		Text: text,
	}, nil
}
