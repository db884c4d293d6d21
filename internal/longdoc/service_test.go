package longdoc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"longdoc-translator/internal/types"
)

func newTestService(t *testing.T, translate TranslateCapability, ocr OCRCapability) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{Translate: translate, OCR: ocr})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func echoTranslate(ctx context.Context, text, targetLang string) (string, error) {
	return text, nil
}

func singlePageDoc(blocks ...types.SourceDocumentBlock) *types.SourceDocument {
	return &types.SourceDocument{
		ID:    "doc-1",
		Pages: []types.SourceDocumentPage{{Number: 1, Blocks: blocks}},
	}
}

func TestNewServiceRequiresTranslate(t *testing.T) {
	_, err := NewService(ServiceConfig{})
	if err == nil {
		t.Fatal("expected error for missing translate capability")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrConfig {
		t.Errorf("expected ErrConfig, got %v", err)
	}
}

func TestTranslateDocumentPreservesOrder(t *testing.T) {
	doc := singlePageDoc(
		types.SourceDocumentBlock{ID: "b1", Type: types.BlockParagraph, Text: "first"},
		types.SourceDocumentBlock{ID: "b10", Type: types.BlockParagraph, Text: "second"},
		types.SourceDocumentBlock{ID: "b2", Type: types.BlockParagraph, Text: "third"},
	)
	svc := newTestService(t, echoTranslate, nil)

	result, err := svc.TranslateDocument(context.Background(), doc, DefaultTranslationOptions("en"))
	if err != nil {
		t.Fatalf("TranslateDocument failed: %v", err)
	}
	if len(result.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(result.Pages))
	}
	got := make([]string, 0, 3)
	for _, b := range result.Pages[0].Blocks {
		got = append(got, b.SourceBlockID)
	}
	want := []string{"b1", "b10", "b2"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("block %d: got %q, want %q (order must match ingestion, not lexicographic)", i, got[i], want[i])
		}
	}
}

func TestTranslateDocumentSkipsFormulaOnlyBlocks(t *testing.T) {
	var calls int32
	translate := func(ctx context.Context, text, targetLang string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return text, nil
	}
	doc := singlePageDoc(
		types.SourceDocumentBlock{ID: "f1", Type: types.BlockFormula, Text: "$x+y=z$"},
		types.SourceDocumentBlock{ID: "e1", Type: types.BlockParagraph, Text: "   "},
	)
	svc := newTestService(t, translate, nil)

	result, err := svc.TranslateDocument(context.Background(), doc, DefaultTranslationOptions("en"))
	if err != nil {
		t.Fatalf("TranslateDocument failed: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("translate capability called %d times for skip-only document", n)
	}
	if result.Report.SkippedBlocks != 2 {
		t.Errorf("SkippedBlocks = %d, want 2", result.Report.SkippedBlocks)
	}
	for _, b := range result.Pages[0].Blocks {
		if !b.TranslationSkipped {
			t.Errorf("block %s not marked skipped", b.SourceBlockID)
		}
		if b.TranslatedText != b.OriginalText {
			t.Errorf("skipped block %s: output %q differs from input %q", b.SourceBlockID, b.TranslatedText, b.OriginalText)
		}
	}
}

func TestTranslateDocumentFormulaRoundTrip(t *testing.T) {
	original := "The energy relation $E=mc^2$ governs the process."
	var sawDollar bool
	translate := func(ctx context.Context, text, targetLang string) (string, error) {
		if strings.Contains(text, "$") {
			sawDollar = true
		}
		return text, nil
	}
	doc := singlePageDoc(types.SourceDocumentBlock{ID: "b1", Type: types.BlockParagraph, Text: original})
	svc := newTestService(t, translate, nil)

	result, err := svc.TranslateDocument(context.Background(), doc, DefaultTranslationOptions("en"))
	if err != nil {
		t.Fatalf("TranslateDocument failed: %v", err)
	}
	if sawDollar {
		t.Error("translate capability received an unprotected formula span")
	}
	got := result.Pages[0].Blocks[0]
	if got.TranslatedText != original {
		t.Errorf("round trip mismatch:\n got %q\nwant %q", got.TranslatedText, original)
	}
	if got.LastError != "" {
		t.Errorf("unexpected LastError %q", got.LastError)
	}
}

func TestTranslateDocumentRestoreFallback(t *testing.T) {
	original := "See equation $a^2+b^2=c^2$ above."
	translate := func(ctx context.Context, text, targetLang string) (string, error) {
		// Simulates a provider that mangles placeholder tokens.
		return strings.ReplaceAll(text, "[[FORMULA_", "[[FORMLA_"), nil
	}
	doc := singlePageDoc(types.SourceDocumentBlock{ID: "b1", Type: types.BlockParagraph, Text: original})
	svc := newTestService(t, translate, nil)

	result, err := svc.TranslateDocument(context.Background(), doc, DefaultTranslationOptions("en"))
	if err != nil {
		t.Fatalf("TranslateDocument should recover per-block, got run error: %v", err)
	}
	got := result.Pages[0].Blocks[0]
	if got.TranslatedText != original {
		t.Errorf("fallback text = %q, want original %q", got.TranslatedText, original)
	}
	if got.LastError != FormulaRestoreFailed {
		t.Errorf("LastError = %q, want %q", got.LastError, FormulaRestoreFailed)
	}
	if len(result.Report.FailedBlocks) != 1 {
		t.Fatalf("FailedBlocks = %d, want 1", len(result.Report.FailedBlocks))
	}
	if result.Report.FailedBlocks[0].Error != FormulaRestoreFailed {
		t.Errorf("failure reason = %q, want %q", result.Report.FailedBlocks[0].Error, FormulaRestoreFailed)
	}
}

func TestTranslateDocumentRetryCap(t *testing.T) {
	var calls int32
	translate := func(ctx context.Context, text, targetLang string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errors.New("upstream unavailable")
	}
	doc := singlePageDoc(types.SourceDocumentBlock{ID: "b1", Type: types.BlockParagraph, Text: "some text"})
	svc := newTestService(t, translate, nil)

	opts := DefaultTranslationOptions("en")
	opts.MaxRetriesPerBlock = 2

	result, err := svc.TranslateDocument(context.Background(), doc, opts)
	if err != nil {
		t.Fatalf("per-block failures must not abort the run: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("capability called %d times, want 3 (1 attempt + 2 retries)", n)
	}
	got := result.Pages[0].Blocks[0]
	if got.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", got.RetryCount)
	}
	if got.TranslatedText != "some text" {
		t.Errorf("failed block text = %q, want original fallback", got.TranslatedText)
	}
	if got.LastError == "" {
		t.Error("failed block missing LastError")
	}
	if len(result.Report.FailedBlocks) != 1 {
		t.Errorf("FailedBlocks = %d, want 1", len(result.Report.FailedBlocks))
	}
}

func TestTranslateDocumentRejectsNegativeRetries(t *testing.T) {
	var calls int32
	translate := func(ctx context.Context, text, targetLang string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return text, nil
	}
	doc := singlePageDoc(types.SourceDocumentBlock{ID: "b1", Type: types.BlockParagraph, Text: "text"})
	svc := newTestService(t, translate, nil)

	opts := DefaultTranslationOptions("en")
	opts.MaxRetriesPerBlock = -1

	_, err := svc.TranslateDocument(context.Background(), doc, opts)
	if err == nil {
		t.Fatal("expected validation error for negative retry budget")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrInvalidInput {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("capability called %d times before validation", n)
	}
}

func TestTranslateDocumentAppliesGlossary(t *testing.T) {
	translate := func(ctx context.Context, text, targetLang string) (string, error) {
		return text, nil
	}
	doc := singlePageDoc(types.SourceDocumentBlock{
		ID: "b1", Type: types.BlockParagraph, Text: "The model converges quickly.",
	})
	svc := newTestService(t, translate, nil)

	opts := DefaultTranslationOptions("en")
	opts.Glossary = map[string]string{"model": "engine"}

	result, err := svc.TranslateDocument(context.Background(), doc, opts)
	if err != nil {
		t.Fatalf("TranslateDocument failed: %v", err)
	}
	got := result.Pages[0].Blocks[0].TranslatedText
	if !strings.Contains(got, "engine") {
		t.Errorf("glossary mapping not enforced, got %q", got)
	}
	if strings.Contains(got, "model") {
		t.Errorf("source term survived glossary enforcement, got %q", got)
	}
}

func TestTranslateDocumentCanceledContext(t *testing.T) {
	var calls int32
	translate := func(ctx context.Context, text, targetLang string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return text, nil
	}
	doc := singlePageDoc(types.SourceDocumentBlock{ID: "b1", Type: types.BlockParagraph, Text: "text"})
	svc := newTestService(t, translate, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.TranslateDocument(ctx, doc, DefaultTranslationOptions("en"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result != nil {
		t.Error("canceled run must not return a partial result")
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("capability called %d times on a canceled run", n)
	}
}

func TestTranslateDocumentCancelMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	translate := func(ctx context.Context, text, targetLang string) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			cancel()
			return text, nil
		}
		return text, nil
	}
	doc := singlePageDoc(
		types.SourceDocumentBlock{ID: "b1", Type: types.BlockParagraph, Text: "one"},
		types.SourceDocumentBlock{ID: "b2", Type: types.BlockParagraph, Text: "two"},
	)
	svc := newTestService(t, translate, nil)

	result, err := svc.TranslateDocument(ctx, doc, DefaultTranslationOptions("en"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result != nil {
		t.Error("mid-run cancellation must discard accumulated blocks")
	}
}

func TestTranslateDocumentStageTimings(t *testing.T) {
	doc := singlePageDoc(types.SourceDocumentBlock{ID: "b1", Type: types.BlockParagraph, Text: "text"})
	svc := newTestService(t, echoTranslate, nil)

	result, err := svc.TranslateDocument(context.Background(), doc, DefaultTranslationOptions("en"))
	if err != nil {
		t.Fatalf("TranslateDocument failed: %v", err)
	}
	wantKeys := []string{StageIngest, StageBuildIr, StageFormulaProtect, StageTranslate, StageStructuredOutput}
	if len(result.Report.StageTimingsMs) != len(wantKeys) {
		t.Errorf("got %d timing keys, want %d", len(result.Report.StageTimingsMs), len(wantKeys))
	}
	for _, key := range wantKeys {
		ms, ok := result.Report.StageTimingsMs[key]
		if !ok {
			t.Errorf("missing stage timing key %q", key)
			continue
		}
		if ms < 0 {
			t.Errorf("stage %q reported negative duration %d", key, ms)
		}
	}
}

func TestTranslateDocumentOCRFallback(t *testing.T) {
	ocr := func(ctx context.Context, pageNumber int) (string, error) {
		return fmt.Sprintf("Recovered text from page %d", pageNumber), nil
	}
	doc := &types.SourceDocument{
		ID: "doc-scan",
		Pages: []types.SourceDocumentPage{
			{Number: 1, IsScanned: true},
			{Number: 2, Blocks: []types.SourceDocumentBlock{
				{ID: "b1", Type: types.BlockParagraph, Text: "native text"},
			}},
		},
	}
	svc := newTestService(t, echoTranslate, ocr)

	opts := DefaultTranslationOptions("en")
	opts.EnableOCRFallback = true

	result, err := svc.TranslateDocument(context.Background(), doc, opts)
	if err != nil {
		t.Fatalf("TranslateDocument failed: %v", err)
	}
	if result.Report.TotalBlocks != 2 {
		t.Fatalf("TotalBlocks = %d, want 2 (OCR block + native block)", result.Report.TotalBlocks)
	}
	first := result.Pages[0].Blocks[0]
	if first.SourceBlockID != "ocr_page_1" {
		t.Errorf("recovered block ID = %q, want ocr_page_1", first.SourceBlockID)
	}
	if !strings.Contains(first.TranslatedText, "Recovered text") {
		t.Errorf("recovered block text = %q", first.TranslatedText)
	}
}

func TestTranslateDocumentOCRDisabled(t *testing.T) {
	var ocrCalls int32
	ocr := func(ctx context.Context, pageNumber int) (string, error) {
		atomic.AddInt32(&ocrCalls, 1)
		return "should not be used", nil
	}
	doc := &types.SourceDocument{
		ID:    "doc-scan",
		Pages: []types.SourceDocumentPage{{Number: 1, IsScanned: true}},
	}
	svc := newTestService(t, echoTranslate, ocr)

	opts := DefaultTranslationOptions("en")
	opts.EnableOCRFallback = false

	result, err := svc.TranslateDocument(context.Background(), doc, opts)
	if err != nil {
		t.Fatalf("empty scanned page is legitimate, got error: %v", err)
	}
	if n := atomic.LoadInt32(&ocrCalls); n != 0 {
		t.Errorf("OCR called %d times while disabled", n)
	}
	if result.Report.TotalBlocks != 0 {
		t.Errorf("TotalBlocks = %d, want 0", result.Report.TotalBlocks)
	}
}

func TestTranslateDocumentRetrySucceedsSecondAttempt(t *testing.T) {
	var calls int32
	translate := func(ctx context.Context, text, targetLang string) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return "", errors.New("transient failure")
		}
		return text, nil
	}
	doc := singlePageDoc(types.SourceDocumentBlock{ID: "b1", Type: types.BlockParagraph, Text: "hello"})
	svc := newTestService(t, translate, nil)

	result, err := svc.TranslateDocument(context.Background(), doc, DefaultTranslationOptions("en"))
	if err != nil {
		t.Fatalf("TranslateDocument failed: %v", err)
	}
	got := result.Pages[0].Blocks[0]
	if got.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", got.RetryCount)
	}
	if got.LastError != "" {
		t.Errorf("successful retry must clear error state, got %q", got.LastError)
	}
	if got.TranslatedText != "hello" {
		t.Errorf("TranslatedText = %q, want %q", got.TranslatedText, "hello")
	}
	if len(result.Report.FailedBlocks) != 0 {
		t.Errorf("FailedBlocks = %d, want 0", len(result.Report.FailedBlocks))
	}
}

func TestTranslateDocumentRejectsInvalidDocument(t *testing.T) {
	svc := newTestService(t, echoTranslate, nil)
	doc := &types.SourceDocument{
		ID: "doc-dup",
		Pages: []types.SourceDocumentPage{{Number: 1, Blocks: []types.SourceDocumentBlock{
			{ID: "b1", Type: types.BlockParagraph, Text: "a"},
			{ID: "b1", Type: types.BlockParagraph, Text: "b"},
		}}},
	}
	_, err := svc.TranslateDocument(context.Background(), doc, DefaultTranslationOptions("en"))
	if err == nil {
		t.Fatal("expected error for duplicate block IDs")
	}
}
