package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmdatafocus/finrecords_backend/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeTransactionStore struct {
	sums        map[models.TransactionType]decimal.Decimal
	count       int64
	monthly     []MonthlyRow
	typeMonthly []TypeMonthRow
	departments []DepartmentRow
	actions     []ActionRow
	monthTotals map[string]MonthTotalsRow
	top         map[models.TransactionType][]models.Transaction
}

func (f *fakeTransactionStore) SumAmountByType(ctx context.Context, companyId string, t models.TransactionType) (decimal.Decimal, error) {
	return f.sums[t], nil
}

func (f *fakeTransactionStore) CountByCompany(ctx context.Context, companyId string) (int64, error) {
	return f.count, nil
}

func (f *fakeTransactionStore) MonthlyTotals(ctx context.Context, companyId string, limit int) ([]MonthlyRow, error) {
	return f.monthly, nil
}

func (f *fakeTransactionStore) MonthlyTypeTotals(ctx context.Context, companyId string, since time.Time) ([]TypeMonthRow, error) {
	return f.typeMonthly, nil
}

func (f *fakeTransactionStore) DepartmentTotals(ctx context.Context, companyId string) ([]DepartmentRow, error) {
	return f.departments, nil
}

func (f *fakeTransactionStore) ActionTotals(ctx context.Context, companyId string) ([]ActionRow, error) {
	return f.actions, nil
}

func (f *fakeTransactionStore) MonthTotals(ctx context.Context, companyId string, month string) (MonthTotalsRow, error) {
	return f.monthTotals[month], nil
}

func (f *fakeTransactionStore) TopAmountsByType(ctx context.Context, companyId string, t models.TransactionType, limit int) ([]models.Transaction, error) {
	rows := f.top[t]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func testEngine(store *fakeTransactionStore, at time.Time) *Engine {
	e := NewEngine(store)
	e.now = func() time.Time { return at }
	return e
}

func TestSummaryEmptyCompany(t *testing.T) {
	store := &fakeTransactionStore{
		sums:        map[models.TransactionType]decimal.Decimal{},
		monthTotals: map[string]MonthTotalsRow{},
	}
	e := testEngine(store, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))

	s, err := e.Summary(context.Background(), "co-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !s.TotalIncome.IsZero() || !s.TotalExpenses.IsZero() || !s.NetProfit.IsZero() {
		t.Fatalf("expected zero totals, got %+v", s)
	}
	if s.ProfitMargin != 0 {
		t.Fatalf("zero income must yield margin 0, got %v", s.ProfitMargin)
	}
	if s.TransactionCount != 0 {
		t.Fatalf("expected 0 transactions, got %d", s.TransactionCount)
	}
}

func TestSummaryComputation(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	store := &fakeTransactionStore{
		sums: map[models.TransactionType]decimal.Decimal{
			models.TransactionTypeIncome:  dec("300"),
			models.TransactionTypeExpense: dec("40"),
		},
		count: 3,
		monthTotals: map[string]MonthTotalsRow{
			"2026-03": {Income: dec("100"), Expenses: dec("40")},
		},
	}
	e := testEngine(store, now)

	s, err := e.Summary(context.Background(), "co-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !s.NetProfit.Equal(dec("260")) {
		t.Fatalf("net profit = %s, want 260", s.NetProfit)
	}
	if got := s.ProfitMargin; got < 86.66 || got > 86.67 {
		t.Fatalf("profit margin = %v, want ~86.67", got)
	}
	if !s.CurrentMonth.Profit.Equal(dec("60")) {
		t.Fatalf("current month profit = %s, want 60", s.CurrentMonth.Profit)
	}
	if s.TransactionCount != 3 {
		t.Fatalf("count = %d, want 3", s.TransactionCount)
	}
}

func TestMonthlyDataOrderAndCap(t *testing.T) {
	var rows []MonthlyRow
	for m := 1; m <= 13; m++ {
		rows = append(rows, MonthlyRow{
			Month:  time.Date(2025, time.Month(m), 1, 0, 0, 0, 0, time.UTC).Format("2006-01"),
			Income: dec("100"),
		})
	}
	store := &fakeTransactionStore{monthly: rows}
	e := testEngine(store, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

	buckets, err := e.MonthlyData(context.Background(), "co-1")
	if err != nil {
		t.Fatalf("monthly: %v", err)
	}
	if len(buckets) != 12 {
		t.Fatalf("expected 12 buckets, got %d", len(buckets))
	}
	if buckets[0].Month != "2026-01" {
		t.Fatalf("expected newest month first, got %s", buckets[0].Month)
	}
	for i := 1; i < len(buckets); i++ {
		if buckets[i].Month > buckets[i-1].Month {
			t.Fatalf("months not descending at %d: %s > %s", i, buckets[i].Month, buckets[i-1].Month)
		}
	}
}

func TestTrendsGrowthAndTransferFolding(t *testing.T) {
	store := &fakeTransactionStore{
		typeMonthly: []TypeMonthRow{
			{Month: "2026-03", Type: models.TransactionTypeIncome, Total: dec("200"), Count: 2},
			{Month: "2026-03", Type: models.TransactionTypeExpense, Total: dec("50"), Count: 1},
			{Month: "2026-03", Type: models.TransactionTypeTransfer, Total: dec("25"), Count: 1},
			{Month: "2026-02", Type: models.TransactionTypeIncome, Total: dec("100"), Count: 1},
			{Month: "2026-01", Type: models.TransactionTypeExpense, Total: dec("10"), Count: 1},
		},
	}
	e := testEngine(store, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))

	trends, err := e.Trends(context.Background(), "co-1")
	if err != nil {
		t.Fatalf("trends: %v", err)
	}
	if len(trends) != 3 {
		t.Fatalf("expected 3 months, got %d", len(trends))
	}
	if trends[0].Month != "2026-03" {
		t.Fatalf("expected newest first, got %s", trends[0].Month)
	}
	// Transfers count into expenses.
	if !trends[0].Expenses.Equal(dec("75")) {
		t.Fatalf("march expenses = %s, want 75", trends[0].Expenses)
	}
	if trends[0].GrowthRate != 100 {
		t.Fatalf("march growth = %v, want 100", trends[0].GrowthRate)
	}
	// January has income 0, so February's growth over it is 0 by convention.
	if trends[1].GrowthRate != 0 {
		t.Fatalf("february growth = %v, want 0", trends[1].GrowthRate)
	}
	// Oldest month has no prior month.
	if trends[2].GrowthRate != 0 {
		t.Fatalf("january growth = %v, want 0", trends[2].GrowthRate)
	}
}

func TestDistributionUnspecifiedAndActionFold(t *testing.T) {
	store := &fakeTransactionStore{
		departments: []DepartmentRow{
			{Department: "Sales", Income: dec("100"), Count: 2},
			{Department: "", Expenses: dec("30"), Count: 1},
		},
		actions: []ActionRow{
			{Action: "consulting", Type: models.TransactionTypeIncome, Total: dec("80"), Count: 1},
			{Action: "consulting", Type: models.TransactionTypeExpense, Total: dec("20"), Count: 1},
			{Action: "", Type: models.TransactionTypeExpense, Total: dec("5"), Count: 1},
		},
		monthTotals: map[string]MonthTotalsRow{
			"2026-03": {Income: dec("150"), Expenses: dec("50")},
			"2026-02": {Income: dec("100"), Expenses: dec("60")},
		},
	}
	e := testEngine(store, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))

	d, err := e.Distribution(context.Background(), "co-1")
	if err != nil {
		t.Fatalf("distribution: %v", err)
	}
	if d.ByDepartment[1].Department != "Unspecified" {
		t.Fatalf("empty department should bucket as Unspecified, got %q", d.ByDepartment[1].Department)
	}
	if len(d.ByAction) != 2 {
		t.Fatalf("expected folded actions, got %d", len(d.ByAction))
	}
	consulting := d.ByAction[0]
	if consulting.Action != "consulting" || !consulting.Income.Equal(dec("80")) || !consulting.Expenses.Equal(dec("20")) || consulting.Count != 2 {
		t.Fatalf("unexpected folded action: %+v", consulting)
	}

	cmp := d.MonthlyComparison
	if cmp.Current.Month != "2026-03" || cmp.Previous.Month != "2026-02" {
		t.Fatalf("unexpected comparison months: %+v", cmp)
	}
	if cmp.Changes.Income != 50 {
		t.Fatalf("income change = %v, want 50", cmp.Changes.Income)
	}
	// Profit went 40 -> 100, +150% against |40|.
	if cmp.Changes.Profit != 150 {
		t.Fatalf("profit change = %v, want 150", cmp.Changes.Profit)
	}
}

func TestMonthlyComparisonAcrossYearBoundary(t *testing.T) {
	store := &fakeTransactionStore{
		monthTotals: map[string]MonthTotalsRow{
			"2026-01": {Income: dec("100")},
			"2025-12": {Income: dec("50")},
		},
	}
	// Jan 31: naive AddDate(0,-1,0) from the 31st would land in December via
	// overflow tricks; anchoring at the first of the month avoids that.
	e := testEngine(store, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC))

	cmp, err := e.monthlyComparison(context.Background(), "co-1")
	if err != nil {
		t.Fatalf("comparison: %v", err)
	}
	if cmp.Previous.Month != "2025-12" {
		t.Fatalf("previous month = %s, want 2025-12", cmp.Previous.Month)
	}
}

func TestHighestRecords(t *testing.T) {
	var incomes []models.Transaction
	for i := 0; i < 11; i++ {
		incomes = append(incomes, models.Transaction{
			ID:     "in-" + string(rune('a'+i)),
			Amount: decimal.NewFromInt(int64(1000 - i)),
		})
	}
	dept := "Sales"
	store := &fakeTransactionStore{
		top: map[models.TransactionType][]models.Transaction{
			models.TransactionTypeIncome: incomes,
			models.TransactionTypeExpense: {
				{ID: "ex-1", Amount: dec("99"), Department: &dept},
			},
		},
	}
	e := testEngine(store, time.Now())

	h, err := e.HighestRecords(context.Background(), "co-1")
	if err != nil {
		t.Fatalf("highest: %v", err)
	}
	if len(h.HighestIncome) != 10 {
		t.Fatalf("expected top 10 incomes, got %d", len(h.HighestIncome))
	}
	if h.HighestIncome[0].Department != "Unspecified" {
		t.Fatalf("nil department should render Unspecified, got %q", h.HighestIncome[0].Department)
	}
	if h.HighestExpense[0].Department != "Sales" {
		t.Fatalf("expense department = %q, want Sales", h.HighestExpense[0].Department)
	}
}
