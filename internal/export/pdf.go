package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"backoffice/internal/model"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

// InvoiceDocument is everything printed on an invoice.
type InvoiceDocument struct {
	Invoice    model.Invoice
	ClientName string
	IssuerName string
}

const pdfFont = "Helvetica"

type PDFGenerator struct{}

func NewPDFGenerator() *PDFGenerator {
	return &PDFGenerator{}
}

func (g *PDFGenerator) Generate(doc InvoiceDocument) ([]byte, error) {
	inv := doc.Invoice
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	toLatin := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont(pdfFont, "B", 16)
	pdf.CellFormat(0, 10, toLatin(safeValue(doc.IssuerName)), "", 1, "L", false, 0, "")
	pdf.SetFont(pdfFont, "B", 14)
	pdf.CellFormat(0, 10, "INVOICE "+inv.InvoiceNo, "", 1, "R", false, 0, "")

	pdf.SetFont(pdfFont, "", 10)
	pdf.CellFormat(0, 6, "Issued: "+formatDate(inv.CreatedAt), "", 1, "R", false, 0, "")
	if inv.DueDate != nil {
		pdf.CellFormat(0, 6, "Due: "+formatDate(*inv.DueDate), "", 1, "R", false, 0, "")
	}
	pdf.CellFormat(0, 6, "Status: "+strings.ToUpper(string(inv.Status)), "", 1, "R", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(pdfFont, "B", 11)
	pdf.CellFormat(0, 6, "Bill to", "", 1, "L", false, 0, "")
	pdf.SetFont(pdfFont, "", 10)
	pdf.MultiCell(0, 5, toLatin(safeValue(doc.ClientName)), "", "L", false)
	if v := vehicleLine(inv.Vehicle); v != "" {
		pdf.MultiCell(0, 5, toLatin(v), "", "L", false)
	}
	pdf.Ln(4)

	widths := []float64{80, 20, 40, 40}
	drawTableRow(pdf, []string{"Service", "Qty", "Unit price", "Amount"}, widths, true)
	for _, it := range inv.Services {
		name := it.ServiceName
		if name == "" {
			name = it.ServiceID
		}
		drawTableRow(pdf, []string{
			toLatin(name),
			strconv.Itoa(it.Quantity),
			formatAmount(it.UnitPrice),
			formatAmount(it.LineTotal()),
		}, widths, false)
	}

	pdf.Ln(2)
	pdf.SetFont(pdfFont, "", 11)
	pdf.CellFormat(0, 6, "Subtotal: "+formatAmount(inv.Subtotal), "", 1, "R", false, 0, "")
	pdf.SetFont(pdfFont, "B", 12)
	pdf.CellFormat(0, 7, "Total: "+formatAmount(inv.TotalAmount), "", 1, "R", false, 0, "")

	if inv.Note != "" {
		pdf.Ln(4)
		pdf.SetFont(pdfFont, "", 10)
		pdf.MultiCell(0, 5, toLatin(inv.Note), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func drawTableRow(pdf *gofpdf.Fpdf, cols []string, widths []float64, header bool) {
	style := ""
	if header {
		style = "B"
	}
	pdf.SetFont(pdfFont, style, 10)
	for i, col := range cols {
		align := "L"
		if i > 0 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 8, col, "1", 0, align, false, 0, "")
	}
	pdf.Ln(-1)
}

func vehicleLine(v model.Vehicle) string {
	parts := make([]string, 0, 4)
	if v.Year > 0 {
		parts = append(parts, strconv.Itoa(v.Year))
	}
	for _, s := range []string{v.Make, v.Model} {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	line := strings.Join(parts, " ")
	if v.VIN != "" {
		line = strings.TrimSpace(line + " VIN " + v.VIN)
	}
	return line
}

func safeValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
