// Package pdfload extracts text blocks from PDF files into the source
// document model the translation pipeline consumes.
package pdfload

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"longdoc-translator/internal/logger"
	"longdoc-translator/internal/types"
)

// DocumentInfo carries the basic facts about a PDF before extraction.
type DocumentInfo struct {
	FilePath  string `json:"file_path"`
	FileName  string `json:"file_name"`
	PageCount int    `json:"page_count"`
	FileSize  int64  `json:"file_size"`
}

// Loader reads PDF files with ledongthuc/pdf and groups extracted rows into
// typed source blocks. Pages that carry content but yield no extractable
// text are marked scanned so the pipeline can route them through OCR.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

// Info returns page count and file size without extracting any text.
func (l *Loader) Info(pdfPath string) (*DocumentInfo, error) {
	fileInfo, err := os.Stat(pdfPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewAppError(types.ErrIngest, "PDF file does not exist", err)
		}
		return nil, types.NewAppError(types.ErrIngest, "cannot access PDF file", err)
	}
	if fileInfo.IsDir() {
		return nil, types.NewAppError(types.ErrIngest, "path is a directory, not a file", nil)
	}

	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, types.NewAppError(types.ErrIngest, "cannot open PDF file", err)
	}
	defer f.Close()

	return &DocumentInfo{
		FilePath:  pdfPath,
		FileName:  filepath.Base(pdfPath),
		PageCount: r.NumPage(),
		FileSize:  fileInfo.Size(),
	}, nil
}

// Load extracts the full document. Block order within a page follows
// reading order: top to bottom, then left to right within a line.
func (l *Loader) Load(pdfPath string) (*types.SourceDocument, error) {
	if _, err := os.Stat(pdfPath); err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewAppError(types.ErrIngest, "PDF file does not exist", err)
		}
		return nil, types.NewAppError(types.ErrIngest, "cannot access PDF file", err)
	}

	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, types.NewAppError(types.ErrIngest, "cannot open PDF file", err)
	}
	defer f.Close()

	doc := &types.SourceDocument{
		ID:    filepath.Base(pdfPath),
		Pages: make([]types.SourceDocumentPage, 0, r.NumPage()),
	}

	for pageNum := 1; pageNum <= r.NumPage(); pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			doc.Pages = append(doc.Pages, types.SourceDocumentPage{Number: pageNum})
			continue
		}

		hasContent := page.V.Key("Contents").Kind() != pdf.Null
		blocks := extractPageBlocks(page, pageNum)
		attachCaptionParents(blocks)

		doc.Pages = append(doc.Pages, types.SourceDocumentPage{
			Number:    pageNum,
			Blocks:    blocks,
			IsScanned: hasContent && len(blocks) == 0,
		})
	}

	logger.Info("PDF loaded",
		logger.String("file", doc.ID),
		logger.Int("pages", len(doc.Pages)))
	return doc, nil
}

// rawBlock accumulates one text row before typing and sorting.
type rawBlock struct {
	text     string
	x, y     float64
	width    float64
	height   float64
	fontSize float64
	bold     bool
}

func extractPageBlocks(page pdf.Page, pageNum int) []types.SourceDocumentBlock {
	rows, err := page.GetTextByRow()
	if err != nil {
		logger.Warn("text extraction failed for page",
			logger.Int("page", pageNum), logger.Err(err))
		return nil
	}

	raws := make([]rawBlock, 0, len(rows))
	for _, row := range rows {
		if len(row.Content) == 0 {
			continue
		}

		var sb strings.Builder
		var minX, maxX, minY, maxY, totalFontSize float64
		var bold bool
		first := true
		kept := 0

		for _, piece := range row.Content {
			if piece.S == "" || isPostScriptCode(piece.S) {
				continue
			}
			sb.WriteString(piece.S)
			kept++
			if first {
				minX, maxX, minY, maxY = piece.X, piece.X, piece.Y, piece.Y
				first = false
			} else {
				if piece.X < minX {
					minX = piece.X
				}
				if piece.X > maxX {
					maxX = piece.X
				}
				if piece.Y < minY {
					minY = piece.Y
				}
				if piece.Y > maxY {
					maxY = piece.Y
				}
			}
			totalFontSize += piece.FontSize
			if strings.Contains(strings.ToLower(piece.Font), "bold") {
				bold = true
			}
		}

		text := strings.TrimSpace(sb.String())
		if text == "" || kept == 0 || isPostScriptCode(text) || hasExcessiveNonPrintable(text) {
			continue
		}

		fontSize := totalFontSize / float64(kept)
		if fontSize <= 0 {
			fontSize = 10.0
		}
		width := maxX - minX + fontSize
		if est := float64(len(text)) * fontSize * 0.5; est > width {
			width = est
		}

		raws = append(raws, rawBlock{
			text:     text,
			x:        minX,
			y:        minY,
			width:    width,
			height:   fontSize * 1.2,
			fontSize: fontSize,
			bold:     bold,
		})
	}

	// PDF coordinates put the origin bottom-left, so descending Y is
	// top-to-bottom reading order. Rows within 5pt count as one line.
	sort.SliceStable(raws, func(i, j int) bool {
		const yTolerance = 5.0
		dy := raws[i].y - raws[j].y
		if dy < yTolerance && dy > -yTolerance {
			return raws[i].x < raws[j].x
		}
		return raws[i].y > raws[j].y
	})

	blocks := make([]types.SourceDocumentBlock, 0, len(raws))
	for i, rb := range raws {
		blockType := classifyBlock(rb.text, rb.fontSize, rb.bold)
		blocks = append(blocks, types.SourceDocumentBlock{
			ID:        fmt.Sprintf("p%d_b%d", pageNum, i+1),
			Type:      blockType,
			Text:      rb.text,
			IsFormula: blockType == types.BlockFormula,
			Bounds: &types.Rect{
				X:      rb.x,
				Y:      rb.y,
				Width:  rb.width,
				Height: rb.height,
			},
		})
	}
	return blocks
}

// attachCaptionParents links a caption block to the block directly above
// it on the same page. Captions with nothing above them stay orphaned.
func attachCaptionParents(blocks []types.SourceDocumentBlock) {
	for i := range blocks {
		if blocks[i].Type != types.BlockCaption || i == 0 {
			continue
		}
		blocks[i].ParentID = blocks[i-1].ID
	}
}

// classifyBlock maps extraction heuristics onto the source block types the
// pipeline understands.
func classifyBlock(text string, fontSize float64, bold bool) types.BlockType {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.BlockParagraph
	}

	if looksLikeFormula(text) {
		return types.BlockFormula
	}

	textLower := strings.ToLower(text)
	if strings.HasPrefix(textLower, "figure") ||
		strings.HasPrefix(textLower, "table") ||
		strings.HasPrefix(textLower, "fig.") ||
		strings.HasPrefix(textLower, "tab.") ||
		strings.HasPrefix(textLower, "图") ||
		strings.HasPrefix(textLower, "表") {
		return types.BlockCaption
	}

	isShort := len(text) < 100
	if isNumberedHeading(text) {
		return types.BlockHeading
	}
	if bold && isShort && (fontSize > 12 || isAllUpperCase(text)) {
		return types.BlockHeading
	}
	if fontSize > 12 && isShort && !strings.Contains(text, ".") {
		return types.BlockHeading
	}

	return types.BlockParagraph
}

// looksLikeFormula reports whether a block is predominantly mathematical
// notation rather than prose.
func looksLikeFormula(text string) bool {
	if len(text) == 0 {
		return false
	}

	const mathSymbols = "∫∑∏√∂∇±×÷≤≥≠≈∞∈∉⊂⊃∪∩∧∨¬∀∃αβγδεζηθικλμνξοπρστυφχψω"

	mathCount := 0
	total := 0
	for _, r := range text {
		total++
		switch {
		case strings.ContainsRune("+-*/=<>^_~()[]{}", r):
			mathCount++
		case strings.ContainsRune(mathSymbols, r):
			mathCount++
		}
	}
	if total > 0 && float64(mathCount)/float64(total) > 0.3 {
		return true
	}

	if strings.ContainsAny(text, "∫∑∏√∂∇") {
		return true
	}

	if strings.Contains(text, "=") && strings.ContainsAny(text, "(+-") {
		if len(strings.Fields(text)) <= 5 && len(text) < 100 {
			return true
		}
	}

	if strings.Count(text, "_")+strings.Count(text, "^") > 2 && len(text) < 100 {
		return true
	}

	return false
}

// isNumberedHeading matches section-style prefixes like "1.1 Results",
// "A) Setup", or well-known heading words.
func isNumberedHeading(text string) bool {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return false
	}

	headingWords := []string{
		"chapter", "section", "appendix", "abstract", "introduction",
		"conclusion", "references", "bibliography", "acknowledgment",
	}
	textLower := strings.ToLower(text)
	for _, w := range headingWords {
		if strings.HasPrefix(textLower, w) {
			return true
		}
	}

	if len(text) < 2 {
		return false
	}
	c := text[0]
	if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z')) {
		return false
	}

	i := 0
	for i < len(text) && i < 15 {
		ch := text[i]
		if (ch >= '0' && ch <= '9') || ch == '.' || (ch >= 'A' && ch <= 'Z') {
			i++
		} else {
			break
		}
	}
	if i == 0 || i >= len(text) {
		return false
	}

	numberPart := text[:i]
	next := text[i]
	if strings.Contains(numberPart, ".") && (next == ' ' || next == '\t') {
		return len(strings.TrimSpace(text[i:])) < 80
	}
	if !strings.Contains(numberPart, ".") && (next == '.' || next == ')') {
		if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\t') {
			return len(strings.TrimSpace(text[i+1:])) < 80
		}
	}
	return false
}

func isAllUpperCase(text string) bool {
	hasLetter := false
	for _, r := range text {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

// isPostScriptCode filters out PDF operator streams that leak into text
// extraction as garbage rows.
func isPostScriptCode(text string) bool {
	if len(text) == 0 {
		return false
	}
	textLower := strings.ToLower(text)

	if (strings.Contains(text, " def ") || strings.HasSuffix(text, " def")) && strings.Contains(text, "/") {
		return true
	}
	if strings.Contains(textLower, "null def") {
		return true
	}
	if strings.Contains(text, "@stx") || strings.Contains(text, "@etx") {
		return true
	}
	if strings.Contains(textLower, "/burl") || strings.Contains(textLower, "burl@") {
		return true
	}

	psOperators := []string{
		"currentpoint", "gsave", "grestore", "newpath", "closepath",
		"setrgbcolor", "setgray", "setlinewidth", "showpage",
		"moveto", "lineto", "curveto",
	}
	for _, op := range psOperators {
		if strings.Contains(textLower, op) {
			return true
		}
	}

	if !strings.Contains(text, "://") && !strings.Contains(textLower, "http") {
		slashNames := 0
		for _, word := range strings.Fields(text) {
			if len(word) > 1 && word[0] == '/' && isPostScriptName(word[1:]) {
				slashNames++
			}
		}
		if slashNames >= 3 {
			return true
		}
	}
	return false
}

func isPostScriptName(s string) bool {
	for _, c := range s {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '@') {
			return false
		}
	}
	return true
}

// hasExcessiveNonPrintable rejects rows where control characters dominate.
func hasExcessiveNonPrintable(text string) bool {
	if len(text) == 0 {
		return false
	}
	nonPrintable := 0
	for _, r := range text {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			nonPrintable++
		}
		if r >= 0x7F && r <= 0x9F {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(text)) > 0.1
}
