// Package pdfgen produces the archival PDF for each published article
// and validates the result before it is stored.
package pdfgen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/ternarybob/aestimo/internal/interfaces"
)

const (
	bodyFont = "Arial"
	bodySize = 9.0
	monoFont = "Courier"
)

// Service converts article markdown to PDF.
type Service struct {
	logger arbor.ILogger
}

var _ interfaces.PDFService = (*Service)(nil)

// NewService creates a PDF service.
func NewService(logger arbor.ILogger) *Service {
	return &Service{logger: logger}
}

// ConvertMarkdownToPDF renders article markdown to an A4 PDF. The title
// goes into document metadata; the body is expected to carry its own
// headings.
func (s *Service) ConvertMarkdownToPDF(markdown, title string) ([]byte, error) {
	markdown = stripFrontMatter(markdown)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("aestimo", true)
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont(bodyFont, "I", 7)
		pdf.CellFormat(0, 5, fmt.Sprintf("%s  |  page %d", title, pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()
	pdf.SetFont(bodyFont, "", bodySize)

	md := goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)
	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	w := &docWriter{pdf: pdf, source: source}
	if err := ast.Walk(doc, w.walk); err != nil {
		return nil, fmt.Errorf("failed to lay out pdf: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug().
			Str("title", title).
			Int("bytes", buf.Len()).
			Msg("Article PDF generated")
	}
	return buf.Bytes(), nil
}

// ValidatePDF checks structural well-formedness of a generated PDF.
func (s *Service) ValidatePDF(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("pdf is empty")
	}
	if err := api.Validate(bytes.NewReader(data), nil); err != nil {
		return fmt.Errorf("pdf failed validation: %w", err)
	}
	return nil
}

// docWriter walks the markdown AST and emits fpdf calls.
type docWriter struct {
	pdf    *fpdf.Fpdf
	source []byte

	bold      bool
	italic    bool
	listDepth int
}

func (w *docWriter) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n.Kind() {
	case ast.KindHeading:
		w.heading(n.(*ast.Heading), entering)
	case ast.KindParagraph:
		if !entering {
			w.pdf.Ln(7)
		}
	case ast.KindText:
		if entering {
			w.pdf.Write(5, string(n.Text(w.source)))
		}
	case ast.KindEmphasis:
		if n.(*ast.Emphasis).Level == 2 {
			w.bold = entering
		} else {
			w.italic = entering
		}
		w.applyFont()
	case ast.KindLink:
		// Source links render as their visible label; the URL is kept as
		// an annotation so it survives into the archive copy.
		if entering {
			link := n.(*ast.Link)
			w.pdf.SetTextColor(40, 80, 160)
			w.pdf.WriteLinkString(5, string(link.Text(w.source)), string(link.Destination))
			w.pdf.SetTextColor(0, 0, 0)
			return ast.WalkSkipChildren, nil
		}
	case ast.KindCodeSpan:
		if entering {
			w.pdf.SetFont(monoFont, "", bodySize)
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if tn, ok := c.(*ast.Text); ok {
					w.pdf.Write(5, string(tn.Segment.Value(w.source)))
				}
			}
		} else {
			w.applyFont()
		}
		return ast.WalkSkipChildren, nil
	case ast.KindFencedCodeBlock:
		if entering {
			w.codeBlock(n.(*ast.FencedCodeBlock).Lines())
			return ast.WalkSkipChildren, nil
		}
	case ast.KindCodeBlock:
		if entering {
			w.codeBlock(n.(*ast.CodeBlock).Lines())
			return ast.WalkSkipChildren, nil
		}
	case ast.KindList:
		if entering {
			w.listDepth++
		} else {
			w.listDepth--
			if w.listDepth == 0 {
				w.pdf.Ln(2)
			}
		}
	case ast.KindListItem:
		if entering {
			w.pdf.Ln(5)
			w.pdf.SetX(12 + float64(w.listDepth)*4)
			w.pdf.Write(5, "- ")
		}
	case ast.KindThematicBreak:
		if entering {
			w.pdf.Ln(3)
			w.pdf.Line(12, w.pdf.GetY(), 198, w.pdf.GetY())
			w.pdf.Ln(3)
		}
	case extast.KindTable:
		if entering {
			w.table(n.(*extast.Table))
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

func (w *docWriter) applyFont() {
	style := ""
	if w.bold {
		style += "B"
	}
	if w.italic {
		style += "I"
	}
	w.pdf.SetFont(bodyFont, style, bodySize)
}

func (w *docWriter) heading(n *ast.Heading, entering bool) {
	if entering {
		w.pdf.Ln(6)
		size := 10.0
		switch n.Level {
		case 1:
			size = 14
		case 2:
			size = 12
		case 3:
			size = 11
		}
		w.pdf.SetFont(bodyFont, "B", size)
		return
	}
	w.pdf.Ln(6)
	w.applyFont()
}

func (w *docWriter) codeBlock(lines *text.Segments) {
	w.pdf.Ln(2)
	w.pdf.SetFont(monoFont, "", 8)
	w.pdf.SetFillColor(245, 245, 245)
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		w.pdf.MultiCell(0, 4.5, string(seg.Value(w.source)), "", "L", true)
	}
	w.pdf.SetFillColor(255, 255, 255)
	w.applyFont()
	w.pdf.Ln(2)
}

// table renders a markdown table with column widths proportional to the
// widest cell in each column, capped so wide tables still fit the page.
func (w *docWriter) table(n *extast.Table) {
	var rows [][]string
	var collect func(node ast.Node)
	collect = func(node ast.Node) {
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			switch t := child.(type) {
			case *extast.TableRow:
				rows = append(rows, w.cells(t))
			case *extast.TableHeader:
				collect(t)
			}
		}
	}
	collect(n)
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	cols := len(rows[0])
	widths := w.columnWidths(rows, cols, 190)
	lineHeight := 4.5

	w.pdf.Ln(2)
	for i, row := range rows {
		if i == 0 {
			w.pdf.SetFont(bodyFont, "B", 8)
			w.pdf.SetFillColor(232, 232, 232)
		} else {
			w.pdf.SetFont(bodyFont, "", 8)
			w.pdf.SetFillColor(255, 255, 255)
		}

		rowHeight := lineHeight + 2
		startX, startY := w.pdf.GetX(), w.pdf.GetY()
		if startY+rowHeight > 285 {
			w.pdf.AddPage()
			startX, startY = w.pdf.GetX(), w.pdf.GetY()
		}

		x := startX
		for j := 0; j < cols; j++ {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			fill := "D"
			if i == 0 {
				fill = "FD"
			}
			w.pdf.Rect(x, startY, widths[j], rowHeight, fill)
			w.pdf.SetXY(x+1, startY+1)
			w.pdf.CellFormat(widths[j]-2, lineHeight, w.fit(cell, widths[j]-2), "", 0, "L", false, 0, "")
			x += widths[j]
		}
		w.pdf.SetXY(startX, startY+rowHeight)
	}
	w.pdf.Ln(3)
	w.applyFont()
}

func (w *docWriter) cells(row *extast.TableRow) []string {
	var out []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		if _, ok := cell.(*extast.TableCell); ok {
			out = append(out, string(cell.Text(w.source)))
		}
	}
	return out
}

func (w *docWriter) columnWidths(rows [][]string, cols int, pageWidth float64) []float64 {
	w.pdf.SetFont(bodyFont, "B", 8)
	widths := make([]float64, cols)
	for _, row := range rows {
		for j, cell := range row {
			if j >= cols {
				break
			}
			if width := w.pdf.GetStringWidth(cell) + 4; width > widths[j] {
				widths[j] = width
			}
		}
	}

	total := 0.0
	for j := range widths {
		if widths[j] < 12 {
			widths[j] = 12
		}
		total += widths[j]
	}
	scale := pageWidth / total
	for j := range widths {
		widths[j] *= scale
	}
	return widths
}

// fit truncates a cell to its column width with an ellipsis.
func (w *docWriter) fit(cell string, width float64) string {
	if w.pdf.GetStringWidth(cell) <= width {
		return cell
	}
	for len(cell) > 3 && w.pdf.GetStringWidth(cell+"...") > width {
		cell = cell[:len(cell)-1]
	}
	return cell + "..."
}

// stripFrontMatter drops a leading YAML block so renderer metadata never
// appears in the archive copy.
func stripFrontMatter(markdown string) string {
	if !strings.HasPrefix(markdown, "---\n") {
		return markdown
	}
	end := strings.Index(markdown[4:], "\n---\n")
	if end == -1 {
		return markdown
	}
	return strings.TrimSpace(markdown[4+end+5:])
}
