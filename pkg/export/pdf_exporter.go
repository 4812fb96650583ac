package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPageWidth  = 277.0
	pdfLineHeight = 6.0
)

// PDFExporter renders a landscape table. The last column takes the width
// the others leave free and wraps its text.
type PDFExporter struct {
	// NarrowWidth is the width in mm of every column except the last.
	NarrowWidth float64
}

func NewPDFExporter() *PDFExporter {
	return &PDFExporter{NarrowWidth: 60}
}

func (e *PDFExporter) Format() Format { return FormatPDF }

func (e *PDFExporter) columnWidths(n int) []float64 {
	widths := make([]float64, n)
	narrow := e.NarrowWidth
	if n > 1 && narrow*float64(n-1) > pdfPageWidth/2 {
		narrow = pdfPageWidth / 2 / float64(n-1)
	}
	for i := 0; i < n-1; i++ {
		widths[i] = narrow
	}
	widths[n-1] = pdfPageWidth - narrow*float64(n-1)
	return widths
}

func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf export %q has no headers", data.Title)
	}
	widths := e.columnWidths(len(data.Headers))

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range data.Headers {
			pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
	}
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() > 1 {
			header()
		}
	})
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont("Helvetica", "B", 13)
		pdf.CellFormat(0, 9, data.Title, "", 1, "L", false, 0, "")
		pdf.Ln(2)
	}
	header()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	last := len(data.Headers) - 1
	for i := range data.Rows {
		record := data.Record(i)
		lines := pdf.SplitLines([]byte(tr(record[last])), widths[last]-2)
		height := pdfLineHeight * float64(max(len(lines), 1))
		if pdf.GetY()+height > 210-12 {
			pdf.AddPage()
		}
		x, y := pdf.GetXY()
		for j := 0; j < last; j++ {
			pdf.Rect(x, y, widths[j], height, "D")
			pdf.CellFormat(widths[j], pdfLineHeight, tr(record[j]), "", 0, "L", false, 0, "")
			x += widths[j]
			pdf.SetXY(x, y)
		}
		pdf.MultiCell(widths[last], pdfLineHeight, tr(record[last]), "1", "L", false)
		pdf.SetXY(10, y+height)
	}
	if pdf.Err() {
		return nil, fmt.Errorf("build pdf: %w", pdf.Error())
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
