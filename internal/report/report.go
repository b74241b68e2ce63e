// Package report renders the per-taxpayer PDF tax report.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-pdf/fpdf"

	"taxledger/internal/core"
)

const (
	ContentType = "application/pdf"

	// 40pt page margin.
	marginMM = 14.1
	lineMM   = 8.0
)

// Renderer produces A4 PDF reports.
type Renderer struct {
	font string
}

func NewRenderer() *Renderer {
	return &Renderer{font: "Helvetica"}
}

// Render lays out the taxpayer details and the calculation figures on a
// single A4 page.
func (r *Renderer) Render(t core.Taxpayer, c core.TaxCalculation) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginMM, marginMM, marginMM)
	pdf.SetAutoPageBreak(true, marginMM)
	pdf.SetTitle("Tax Report - "+t.Name, true)
	pdf.SetCreator("taxledger", false)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(c.CalculatedAt.UTC())
	pdf.SetModificationDate(c.CalculatedAt.UTC())
	pdf.AddPage()

	// Core fonts are cp1252.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont(r.font, "B", 24)
	pdf.CellFormat(0, 12, "Tax Report", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont(r.font, "", 14)
	pdf.CellFormat(0, lineMM, tr("Taxpayer: "+t.Name), "", 1, "L", false, 0, "")

	pdf.SetFont(r.font, "", 12)
	for _, line := range []string{
		"CNIC: " + t.CNIC,
		"Contact: " + t.Contact,
		"Calculated At: " + c.CalculatedAt.UTC().Format(time.RFC3339),
	} {
		pdf.CellFormat(0, lineMM, tr(line), "", 1, "L", false, 0, "")
	}
	pdf.Ln(lineMM / 2)

	pdf.CellFormat(0, lineMM, "Total Income: "+core.FormatMoney(c.TotalIncome), "", 1, "L", false, 0, "")
	pdf.SetFont(r.font, "B", 12)
	pdf.CellFormat(0, lineMM, "Tax Amount: "+core.FormatMoney(c.TaxAmount), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename returns TaxReport_<name>_<yyyyMMddHHmmss>.pdf. Characters unsafe
// in a Content-Disposition header are replaced with underscores.
func Filename(taxpayerName string, at time.Time) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r == '-' || r == '_' || r == '.':
			return r
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			return r
		}
		return '_'
	}, strings.TrimSpace(taxpayerName))
	if name == "" {
		name = "taxpayer"
	}
	return fmt.Sprintf("TaxReport_%s_%s.pdf", name, at.UTC().Format("20060102150405"))
}
