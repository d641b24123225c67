package export

import (
	"bytes"
	"testing"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/datatypes"
)

func TestWorkbookContainsStaffRowsAndLines(t *testing.T) {
	staff := uuid.New()
	report := CommissionReport{
		GeneratedAt: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
		Staff: []model.StaffCommission{{
			ProfileID:     staff,
			FullName:      "Sam Lee",
			DailyAmount:   decimal.RequireFromString("10"),
			WeeklyAmount:  decimal.RequireFromString("25.5"),
			MonthlyAmount: decimal.RequireFromString("40"),
		}},
		Lines: []CommissionLine{{
			WorkOrderNo: "WO-20240502-00001",
			CompletedAt: time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC),
			ServiceID:   "oil",
			ServiceName: "Oil change",
			StaffName:   "Sam Lee",
			Base:        decimal.RequireFromString("100"),
			Commission:  decimal.RequireFromString("10"),
		}},
	}

	data, err := NewWorkbookGenerator().Generate(report)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SummarySheet, LinesSheet}, f.GetSheetList())

	name, err := f.GetCellValue(SummarySheet, "A5")
	require.NoError(t, err)
	assert.Equal(t, "Sam Lee", name)
	weekly, err := f.GetCellValue(SummarySheet, "D5")
	require.NoError(t, err)
	assert.Equal(t, "25.5", weekly)

	wo, err := f.GetCellValue(LinesSheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "WO-20240502-00001", wo)
	commission, err := f.GetCellValue(LinesSheet, "F2")
	require.NoError(t, err)
	assert.Equal(t, "10", commission)
}

func TestInvoicePDFRenders(t *testing.T) {
	due := time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC)
	inv := model.Invoice{
		InvoiceNo: "INV-20240502-00001",
		Vehicle:   model.Vehicle{Make: "Toyota", Model: "Corolla", Year: 2019, VIN: "JT123"},
		Services: datatypes.JSONSlice[model.ServiceLineItem]{
			{ServiceID: "oil", ServiceName: "Oil change", Quantity: 1, UnitPrice: decimal.RequireFromString("120")},
			{ServiceID: "brakes", ServiceName: "Brake pads", Quantity: 2, UnitPrice: decimal.RequireFromString("40.25")},
		},
		Subtotal:    decimal.RequireFromString("200.50"),
		TotalAmount: decimal.RequireFromString("200.50"),
		Status:      model.InvoiceDraft,
		DueDate:     &due,
		CreatedAt:   due.AddDate(0, 0, -14),
	}

	data, err := NewPDFGenerator().Generate(InvoiceDocument{Invoice: inv, ClientName: "Zoë Client", IssuerName: "Garage"})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestVehicleLine(t *testing.T) {
	assert.Equal(t, "2019 Toyota Corolla VIN JT123", vehicleLine(model.Vehicle{Make: "Toyota", Model: "Corolla", Year: 2019, VIN: "JT123"}))
	assert.Equal(t, "", vehicleLine(model.Vehicle{}))
}
