package backfill

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/color"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"longdoc-translator/internal/logger"
	"longdoc-translator/internal/longdoc"
	"longdoc-translator/internal/types"
)

// Exporter writes translated text onto a copy of the source PDF using
// pdfcpu text watermarks. Blocks that cannot be rendered in place land in
// a JSON sidecar next to the output file.
type Exporter struct {
	fontName string
	conf     *model.Configuration
}

func NewExporter() *Exporter {
	return &Exporter{fontName: "Helvetica"}
}

// SetFont overrides the overlay font, e.g. for CJK output.
func (e *Exporter) SetFont(fontName string) {
	if fontName != "" {
		e.fontName = fontName
	}
}

// SidecarEntry is one unrendered block in the structured sidecar file.
type SidecarEntry struct {
	IrBlockID  string `json:"ir_block_id"`
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
	Reason     string `json:"reason"`
}

// Export copies sourcePath to outputPath, overlays every plannable block,
// writes the sidecar for the rest, and returns the aggregated metrics.
func (e *Exporter) Export(sourcePath, outputPath string, pages []longdoc.TranslatedDocumentPage) (*longdoc.BackfillQualityMetrics, error) {
	if _, err := api.ReadContextFile(sourcePath); err != nil {
		return nil, types.NewAppError(types.ErrExport, "cannot read source PDF", err)
	}
	if err := copyFile(sourcePath, outputPath); err != nil {
		return nil, types.NewAppError(types.ErrExport, "cannot create output PDF", err)
	}

	planned := planDocument(pages)
	rendered := make(map[string]bool, len(planned))
	var sidecar []SidecarEntry

	for _, p := range planned {
		if p.action == actionStructuredFallback {
			sidecar = append(sidecar, SidecarEntry{
				IrBlockID:  p.block.IrBlockID,
				PageNumber: p.block.PageNumber,
				Text:       p.block.TranslatedText,
				Reason:     "missing-bounds",
			})
			continue
		}

		if err := e.overlayBlock(outputPath, p); err != nil {
			logger.Warn("block overlay failed, moving to sidecar",
				logger.String("irBlockID", p.block.IrBlockID),
				logger.Int("page", p.block.PageNumber),
				logger.Err(err))
			sidecar = append(sidecar, SidecarEntry{
				IrBlockID:  p.block.IrBlockID,
				PageNumber: p.block.PageNumber,
				Text:       p.block.TranslatedText,
				Reason:     "render-failed",
			})
			continue
		}
		rendered[p.block.IrBlockID] = true
	}

	if len(sidecar) > 0 {
		if err := writeSidecar(outputPath, sidecar); err != nil {
			return nil, err
		}
	}

	metrics := collectMetrics(planned, rendered)
	logger.Info("PDF backfill complete",
		logger.String("output", filepath.Base(outputPath)),
		logger.Int("candidates", metrics.CandidateBlocks),
		logger.Int("rendered", metrics.RenderedBlocks),
		logger.Int("sidecar", len(sidecar)))
	return metrics, nil
}

// overlayBlock masks the original text with a white rectangle and stamps
// the translated text at the block position.
func (e *Exporter) overlayBlock(pdfPath string, p plannedBlock) error {
	page := []string{fmt.Sprintf("%d", p.block.PageNumber)}

	bgColor := color.White
	mask := &model.Watermark{
		Mode:       model.WMText,
		TextString: " ",
		BgColor:    &bgColor,
		Opacity:    1.0,
		OnTop:      true,
		Pos:        pdftypes.TopLeft,
		Dx:         p.block.Bounds.X,
		Dy:         p.block.Bounds.Y,
		Width:      int(p.block.Bounds.Width),
		Height:     int(p.block.Bounds.Height),
	}
	if err := api.AddWatermarksFile(pdfPath, "", page, mask, e.conf); err != nil {
		// The mask is cosmetic; the text stamp still goes on.
		logger.Debug("text mask failed", logger.String("irBlockID", p.block.IrBlockID), logger.Err(err))
	}

	wm := &model.Watermark{
		Mode:           model.WMText,
		TextString:     p.text,
		FontName:       e.fontName,
		FontSize:       int(p.fontSize),
		ScaledFontSize: int(p.fontSize),
		Color:          color.Black,
		Opacity:        1.0,
		OnTop:          true,
		Pos:            pdftypes.TopLeft,
		Dx:             p.block.Bounds.X,
		Dy:             p.block.Bounds.Y,
		Width:          int(p.block.Bounds.Width),
		Height:         int(p.block.Bounds.Height),
	}
	if err := api.AddWatermarksFile(pdfPath, "", page, wm, e.conf); err != nil {
		return types.NewAppErrorWithDetails(types.ErrExport, "text overlay failed", p.block.IrBlockID, err)
	}
	return nil
}

// SidecarPath returns the sidecar location for an output PDF.
func SidecarPath(outputPath string) string {
	ext := filepath.Ext(outputPath)
	return outputPath[:len(outputPath)-len(ext)] + ".unrendered.json"
}

func writeSidecar(outputPath string, entries []SidecarEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrExport, "cannot marshal sidecar", err)
	}
	if err := os.WriteFile(SidecarPath(outputPath), data, 0644); err != nil {
		return types.NewAppError(types.ErrExport, "cannot write sidecar", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
