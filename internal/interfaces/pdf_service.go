package interfaces

// PDFService handles PDF generation from article markdown
type PDFService interface {
	// ConvertMarkdownToPDF converts markdown content to a PDF byte slice
	ConvertMarkdownToPDF(markdown, title string) ([]byte, error)

	// ValidatePDF checks that a generated PDF is structurally well-formed
	ValidatePDF(data []byte) error
}
