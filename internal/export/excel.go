// Package export renders commission reports as xlsx workbooks and invoices as PDF.
package export

import (
	"fmt"
	"time"

	"backoffice/internal/model"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// CommissionLine is one credited line of a completed work order.
type CommissionLine struct {
	WorkOrderNo string
	CompletedAt time.Time
	ServiceID   string
	ServiceName string
	StaffName   string
	Base        decimal.Decimal
	Commission  decimal.Decimal
}

type CommissionReport struct {
	GeneratedAt time.Time
	Staff       []model.StaffCommission
	Lines       []CommissionLine
}

const (
	SummarySheet = "Summary"
	LinesSheet   = "Lines"
)

type WorkbookGenerator struct{}

func NewWorkbookGenerator() *WorkbookGenerator {
	return &WorkbookGenerator{}
}

func (g *WorkbookGenerator) Generate(report CommissionReport) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, err
	}
	g.writeSummary(file, report)

	if _, err := file.NewSheet(LinesSheet); err != nil {
		return nil, err
	}
	g.writeLines(file, report.Lines)

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *WorkbookGenerator) writeSummary(file *excelize.File, report CommissionReport) {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(SummarySheet, cell, value)
	}

	set("A1", "Commission report")
	set("A2", "Generated at")
	set("B2", report.GeneratedAt.UTC().Format("2006-01-02 15:04"))

	tableRow := 4
	headers := []string{"Staff", "Profile ID", "Today", "This week", "This month"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, tableRow)
		set(cell, h)
	}

	for i, row := range report.Staff {
		r := tableRow + 1 + i
		set(fmt.Sprintf("A%d", r), nameOr(row.FullName, row.ProfileID.String()))
		set(fmt.Sprintf("B%d", r), row.ProfileID.String())
		set(fmt.Sprintf("C%d", r), money(row.DailyAmount))
		set(fmt.Sprintf("D%d", r), money(row.WeeklyAmount))
		set(fmt.Sprintf("E%d", r), money(row.MonthlyAmount))
	}

	_ = file.SetColWidth(SummarySheet, "A", "A", 30)
	_ = file.SetColWidth(SummarySheet, "B", "B", 38)
	_ = file.SetColWidth(SummarySheet, "C", "E", 14)
}

func (g *WorkbookGenerator) writeLines(file *excelize.File, lines []CommissionLine) {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(LinesSheet, cell, value)
	}

	headers := []string{"Work order", "Completed", "Service", "Staff", "Line total", "Commission"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		set(cell, h)
	}
	for i, l := range lines {
		r := i + 2
		set(fmt.Sprintf("A%d", r), l.WorkOrderNo)
		set(fmt.Sprintf("B%d", r), l.CompletedAt.UTC().Format("2006-01-02"))
		set(fmt.Sprintf("C%d", r), nameOr(l.ServiceName, l.ServiceID))
		set(fmt.Sprintf("D%d", r), l.StaffName)
		set(fmt.Sprintf("E%d", r), money(l.Base))
		set(fmt.Sprintf("F%d", r), money(l.Commission))
	}

	_ = file.SetColWidth(LinesSheet, "A", "A", 20)
	_ = file.SetColWidth(LinesSheet, "B", "B", 12)
	_ = file.SetColWidth(LinesSheet, "C", "D", 30)
	_ = file.SetColWidth(LinesSheet, "E", "F", 14)
}

// money writes amounts as numbers so the sheet can sum them.
func money(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
