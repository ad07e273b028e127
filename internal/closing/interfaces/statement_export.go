package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	closing "condo-ledger/internal/closing/domain"
	"condo-ledger/internal/money"
)

// StatementLine is one apartment's month summary inside an export.
type StatementLine struct {
	ApartmentID     string
	Number          string
	OwnerName       string
	ChargesCents    int64
	PaymentsCents   int64
	EndBalanceCents int64
}

// Statement is the renderable snapshot of a closed month.
type Statement struct {
	BuildingID   string
	BuildingName string
	Balance      closing.MonthlyBalance
	Lines        []StatementLine
}

// BuildStatementPDF renders a monthly statement as PDF.
func BuildStatementPDF(stmt Statement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Monthly Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Building: %s (%s)", stmt.BuildingName, stmt.BuildingID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Month: %s", stmt.Balance.Period))
	pdf.Ln(5)
	if stmt.Balance.ClosedAt != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Closed: %s", stmt.Balance.ClosedAt.Format(time.RFC3339)))
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Expenses: %s", money.Format(stmt.Balance.TotalExpensesCents)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Management fees: %s", money.Format(stmt.Balance.ManagementFeesCents)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Reserve fund: %s", money.Format(stmt.Balance.ReserveFundCents)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Previous obligations: %s", money.Format(stmt.Balance.PreviousObligations)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Payments: %s", money.Format(stmt.Balance.TotalPaymentsCents)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Carry forward: %s", money.Format(stmt.Balance.CarryForwardCents)))
	pdf.Ln(8)

	// Apartment table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 6, "Apartment", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Owner", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Charges", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Payments", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Balance", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, line := range stmt.Lines {
		label := line.Number
		if label == "" {
			label = line.ApartmentID
		}
		pdf.CellFormat(35, 6, label, "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, line.OwnerName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, money.Format(line.ChargesCents), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, money.Format(line.PaymentsCents), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, money.Format(line.EndBalanceCents), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStatementXLSX renders a monthly statement as XLSX.
func BuildStatementXLSX(stmt Statement) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	apartmentsSheet := "apartments"
	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(apartmentsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Monthly Statement")
	_ = f.SetCellValue(summarySheet, "A3", "Building")
	_ = f.SetCellValue(summarySheet, "B3", stmt.BuildingName)
	_ = f.SetCellValue(summarySheet, "A4", "Month")
	_ = f.SetCellValue(summarySheet, "B4", stmt.Balance.Period.String())
	_ = f.SetCellValue(summarySheet, "A5", "Expenses")
	_ = f.SetCellValue(summarySheet, "B5", money.Format(stmt.Balance.TotalExpensesCents))
	_ = f.SetCellValue(summarySheet, "A6", "Management fees")
	_ = f.SetCellValue(summarySheet, "B6", money.Format(stmt.Balance.ManagementFeesCents))
	_ = f.SetCellValue(summarySheet, "A7", "Reserve fund")
	_ = f.SetCellValue(summarySheet, "B7", money.Format(stmt.Balance.ReserveFundCents))
	_ = f.SetCellValue(summarySheet, "A8", "Previous obligations")
	_ = f.SetCellValue(summarySheet, "B8", money.Format(stmt.Balance.PreviousObligations))
	_ = f.SetCellValue(summarySheet, "A9", "Payments")
	_ = f.SetCellValue(summarySheet, "B9", money.Format(stmt.Balance.TotalPaymentsCents))
	_ = f.SetCellValue(summarySheet, "A10", "Carry forward")
	_ = f.SetCellValue(summarySheet, "B10", money.Format(stmt.Balance.CarryForwardCents))
	if stmt.Balance.ClosedAt != nil {
		_ = f.SetCellValue(summarySheet, "A11", "Closed at")
		_ = f.SetCellValue(summarySheet, "B11", stmt.Balance.ClosedAt.Format(time.RFC3339))
	}

	_ = f.SetCellValue(apartmentsSheet, "A1", "Apartment")
	_ = f.SetCellValue(apartmentsSheet, "B1", "Owner")
	_ = f.SetCellValue(apartmentsSheet, "C1", "Charges")
	_ = f.SetCellValue(apartmentsSheet, "D1", "Payments")
	_ = f.SetCellValue(apartmentsSheet, "E1", "Balance")
	for i, line := range stmt.Lines {
		row := i + 2
		label := line.Number
		if label == "" {
			label = line.ApartmentID
		}
		_ = f.SetCellValue(apartmentsSheet, fmt.Sprintf("A%d", row), label)
		_ = f.SetCellValue(apartmentsSheet, fmt.Sprintf("B%d", row), line.OwnerName)
		_ = f.SetCellValue(apartmentsSheet, fmt.Sprintf("C%d", row), money.Format(line.ChargesCents))
		_ = f.SetCellValue(apartmentsSheet, fmt.Sprintf("D%d", row), money.Format(line.PaymentsCents))
		_ = f.SetCellValue(apartmentsSheet, fmt.Sprintf("E%d", row), money.Format(line.EndBalanceCents))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
