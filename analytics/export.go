package analytics

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportWorkbook renders the tenant's summary and monthly views into an xlsx
// workbook. Data comes through the façade, so an export warms the same cache
// entries a dashboard read would.
func (s *Service) ExportWorkbook(ctx context.Context, companyId string) (*excelize.File, error) {
	summary, err := s.GetSummary(ctx, companyId)
	if err != nil {
		return nil, err
	}
	monthly, err := s.GetMonthlyData(ctx, companyId)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	summarySheet := "Summary"
	f.SetSheetName("Sheet1", summarySheet)

	// Add headers
	f.SetCellValue(summarySheet, "A1", "TotalIncome")
	f.SetCellValue(summarySheet, "B1", "TotalExpenses")
	f.SetCellValue(summarySheet, "C1", "NetProfit")
	f.SetCellValue(summarySheet, "D1", "ProfitMargin")
	f.SetCellValue(summarySheet, "E1", "TransactionCount")

	// Add data
	f.SetCellValue(summarySheet, "A2", summary.TotalIncome.String())
	f.SetCellValue(summarySheet, "B2", summary.TotalExpenses.String())
	f.SetCellValue(summarySheet, "C2", summary.NetProfit.String())
	f.SetCellValue(summarySheet, "D2", summary.ProfitMargin)
	f.SetCellValue(summarySheet, "E2", summary.TransactionCount)

	monthlySheet := "Monthly"
	if _, err := f.NewSheet(monthlySheet); err != nil {
		return nil, err
	}
	f.SetCellValue(monthlySheet, "A1", "Month")
	f.SetCellValue(monthlySheet, "B1", "Income")
	f.SetCellValue(monthlySheet, "C1", "Expenses")
	f.SetCellValue(monthlySheet, "D1", "Profit")
	f.SetCellValue(monthlySheet, "E1", "TransactionCount")
	f.SetCellValue(monthlySheet, "F1", "ProfitMargin")

	for i, bucket := range monthly {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(monthlySheet, "A"+row, bucket.Month)
		f.SetCellValue(monthlySheet, "B"+row, bucket.Income.String())
		f.SetCellValue(monthlySheet, "C"+row, bucket.Expenses.String())
		f.SetCellValue(monthlySheet, "D"+row, bucket.Profit.String())
		f.SetCellValue(monthlySheet, "E"+row, bucket.TransactionCount)
		f.SetCellValue(monthlySheet, "F"+row, bucket.ProfitMargin)
	}
	return f, nil
}
