// Package report renders override listings as PDF.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	overrides "github.com/said46/autoSOC/internal/overrides/domain"
)

type column struct {
	title string
	width float64
	value func(overrides.ExistingOverride) string
}

var columns = []column{
	{"Tag", 32, func(o overrides.ExistingOverride) string { return o.TagNumber }},
	{"Description", 48, func(o overrides.ExistingOverride) string { return o.Description }},
	{"Type", 22, func(o overrides.ExistingOverride) string { return o.TypeTitle }},
	{"Method", 34, func(o overrides.ExistingOverride) string { return o.MethodTitle }},
	{"Applied", 30, func(o overrides.ExistingOverride) string { return withValue(o.AppliedStateTitle, o.AdditionalValueApplied) }},
	{"Removed", 30, func(o overrides.ExistingOverride) string { return withValue(o.RemovedStateTitle, o.AdditionalValueRemoved) }},
	{"Current", 26, func(o overrides.ExistingOverride) string { return o.CurrentStateTitle }},
	{"Comment", 55, func(o overrides.ExistingOverride) string { return o.Comment }},
}

// BuildPDF renders a landscape listing of the overrides of a certificate.
func BuildPDF(certificateID string, rows []overrides.ExistingOverride, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "SOC Overrides")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("SOC ID: %s", certificateID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Overrides: %d", len(rows)))
	pdf.Ln(8)

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	header := func() {
		pdf.SetFont("Arial", "B", 9)
		for _, c := range columns {
			pdf.CellFormat(c.width, 6, c.title, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}
	header()
	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range rows {
		if pdf.GetY()+6 > pageHeight-bottom-10 {
			pdf.AddPage()
			header()
		}
		for _, c := range columns {
			pdf.CellFormat(c.width, 6, fit(pdf, tr(c.value(row)), c.width), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func withValue(state, value string) string {
	if value == "" {
		return state
	}
	return fmt.Sprintf("%s (%s)", state, value)
}

// fit truncates s to the cell width.
func fit(pdf *gofpdf.Fpdf, s string, width float64) string {
	limit := width - 2
	if pdf.GetStringWidth(s) <= limit {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > limit {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
