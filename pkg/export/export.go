package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// Format names a supported export encoding.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// Dataset is tabular report content. Rows are keyed by header.
type Dataset struct {
	Title   string
	Headers []string
	Rows    []map[string]string
}

// Record returns row i ordered by Headers.
func (d Dataset) Record(i int) []string {
	record := make([]string, len(d.Headers))
	for j, header := range d.Headers {
		record[j] = d.Rows[i][header]
	}
	return record
}

// Exporter renders a dataset to bytes.
type Exporter interface {
	Render(data Dataset) ([]byte, error)
	Format() Format
}

// New returns the exporter for format.
func New(format string) (Exporter, error) {
	switch Format(strings.ToLower(strings.TrimSpace(format))) {
	case FormatCSV:
		return NewCSVExporter(), nil
	case FormatPDF:
		return NewPDFExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// Filename builds "<slug(title)>-<timestamp>.<format>".
func Filename(title string, format Format, at time.Time) string {
	name := slug.Make(title)
	if name == "" {
		name = "export"
	}
	return fmt.Sprintf("%s-%s.%s", name, at.UTC().Format("20060102T150405Z"), format)
}
