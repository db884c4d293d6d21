// Package types defines the source document model and error types shared
// across the long-document translation pipeline.
package types

// BlockType 文本块类型
type BlockType string

const (
	BlockParagraph BlockType = "paragraph"
	BlockHeading   BlockType = "heading"
	BlockCaption   BlockType = "caption"
	BlockTableCell BlockType = "table_cell"
	BlockFormula   BlockType = "formula"
	BlockUnknown   BlockType = "unknown"
)

// IsValidBlockType checks if the given value is a known BlockType
func IsValidBlockType(t BlockType) bool {
	switch t {
	case BlockParagraph, BlockHeading, BlockCaption, BlockTableCell, BlockFormula, BlockUnknown:
		return true
	default:
		return false
	}
}

// Rect is a bounding rectangle in page-local units
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SourceDocumentBlock 源文档文本块
type SourceDocumentBlock struct {
	ID        string    `json:"id"`
	Type      BlockType `json:"type"`
	Text      string    `json:"text"`
	Bounds    *Rect     `json:"bounds,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"`
	IsFormula bool      `json:"is_formula,omitempty"`
}

// SourceDocumentPage 源文档页
type SourceDocumentPage struct {
	Number    int                   `json:"number"` // 1-based
	Blocks    []SourceDocumentBlock `json:"blocks"`
	IsScanned bool                  `json:"is_scanned"` // image-only page with no extractable text
}

// SourceDocument is the read-only input to a translation run. It is
// constructed externally (e.g., by the PDF loader) and never mutated by
// the pipeline.
type SourceDocument struct {
	ID    string               `json:"id"`
	Pages []SourceDocumentPage `json:"pages"`
}

// ErrorCode 错误代码枚举
type ErrorCode string

const (
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrConfig       ErrorCode = "CONFIG_ERROR"
	ErrIngest       ErrorCode = "INGEST_ERROR"
	ErrOCR          ErrorCode = "OCR_ERROR"
	ErrAPICall      ErrorCode = "API_CALL_ERROR"
	ErrAPIRateLimit ErrorCode = "API_RATE_LIMIT"
	ErrTranslation  ErrorCode = "TRANSLATION_ERROR"
	ErrNetwork      ErrorCode = "NETWORK_ERROR"
	ErrExport       ErrorCode = "EXPORT_ERROR"
	ErrStore        ErrorCode = "STORE_ERROR"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}
