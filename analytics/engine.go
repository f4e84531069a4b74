package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmdatafocus/finrecords_backend/models"
)

const (
	unspecifiedBucket = "Unspecified"
	monthLayout       = "2006-01"
	monthlyWindow     = 12
	trendsWindow      = 6
	highestLimit      = 10
)

// Row shapes returned by the transaction store's aggregate queries.

type MonthlyRow struct {
	Month            string          `json:"month"`
	Income           decimal.Decimal `json:"income"`
	Expenses         decimal.Decimal `json:"expenses"`
	TransactionCount int64           `json:"transaction_count"`
}

type TypeMonthRow struct {
	Month string                 `json:"month"`
	Type  models.TransactionType `json:"type"`
	Total decimal.Decimal        `json:"total"`
	Count int64                  `json:"count"`
}

type DepartmentRow struct {
	Department string          `json:"department"`
	Income     decimal.Decimal `json:"income"`
	Expenses   decimal.Decimal `json:"expenses"`
	Count      int64           `json:"count"`
}

type ActionRow struct {
	Action string                 `json:"action"`
	Type   models.TransactionType `json:"type"`
	Total  decimal.Decimal        `json:"total"`
	Count  int64                  `json:"count"`
}

type MonthTotalsRow struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
}

// TransactionStore provides the filtered aggregate queries the engine
// computes views from, scoped by tenant. The production implementation runs
// GORM/MySQL aggregates; tests substitute a fake.
type TransactionStore interface {
	SumAmountByType(ctx context.Context, companyId string, t models.TransactionType) (decimal.Decimal, error)
	CountByCompany(ctx context.Context, companyId string) (int64, error)
	MonthlyTotals(ctx context.Context, companyId string, limit int) ([]MonthlyRow, error)
	MonthlyTypeTotals(ctx context.Context, companyId string, since time.Time) ([]TypeMonthRow, error)
	DepartmentTotals(ctx context.Context, companyId string) ([]DepartmentRow, error)
	ActionTotals(ctx context.Context, companyId string) ([]ActionRow, error)
	MonthTotals(ctx context.Context, companyId string, month string) (MonthTotalsRow, error)
	TopAmountsByType(ctx context.Context, companyId string, t models.TransactionType, limit int) ([]models.Transaction, error)
}

// Engine computes the five analytics views for one tenant. Deterministic and
// side-effect free: no caching, no scheduling, no tenant validation — those
// belong to the façade.
type Engine struct {
	store TransactionStore
	now   func() time.Time
}

func NewEngine(store TransactionStore) *Engine {
	return &Engine{store: store, now: time.Now}
}

// pctOfIncome returns profit/income*100, or 0 when income is not positive.
func pctOfIncome(profit, income decimal.Decimal) float64 {
	if !income.IsPositive() {
		return 0
	}
	return profit.Div(income).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// pctChange returns (current-previous)/previous*100, or 0 when previous is
// not positive.
func pctChange(current, previous decimal.Decimal) float64 {
	if !previous.IsPositive() {
		return 0
	}
	return current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

func (e *Engine) Summary(ctx context.Context, companyId string) (*Summary, error) {
	income, err := e.store.SumAmountByType(ctx, companyId, models.TransactionTypeIncome)
	if err != nil {
		return nil, err
	}
	expenses, err := e.store.SumAmountByType(ctx, companyId, models.TransactionTypeExpense)
	if err != nil {
		return nil, err
	}
	count, err := e.store.CountByCompany(ctx, companyId)
	if err != nil {
		return nil, err
	}
	currentMonth, err := e.monthTotals(ctx, companyId, e.now().Format(monthLayout))
	if err != nil {
		return nil, err
	}

	netProfit := income.Sub(expenses)
	return &Summary{
		TotalIncome:      income,
		TotalExpenses:    expenses,
		NetProfit:        netProfit,
		ProfitMargin:     pctOfIncome(netProfit, income),
		TransactionCount: count,
		CurrentMonth:     currentMonth,
		CalculatedAt:     e.now(),
	}, nil
}

func (e *Engine) MonthlyData(ctx context.Context, companyId string) ([]MonthlyBucket, error) {
	rows, err := e.store.MonthlyTotals(ctx, companyId, monthlyWindow)
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Month > rows[j].Month })
	if len(rows) > monthlyWindow {
		rows = rows[:monthlyWindow]
	}

	buckets := make([]MonthlyBucket, 0, len(rows))
	for _, row := range rows {
		profit := row.Income.Sub(row.Expenses)
		buckets = append(buckets, MonthlyBucket{
			Month:            row.Month,
			Income:           row.Income,
			Expenses:         row.Expenses,
			Profit:           profit,
			TransactionCount: row.TransactionCount,
			ProfitMargin:     pctOfIncome(profit, row.Income),
		})
	}
	return buckets, nil
}

func (e *Engine) Trends(ctx context.Context, companyId string) ([]TrendPoint, error) {
	since := e.now().AddDate(0, -trendsWindow, 0)
	rows, err := e.store.MonthlyTypeTotals(ctx, companyId, since)
	if err != nil {
		return nil, err
	}

	byMonth := map[string]*TrendPoint{}
	for _, row := range rows {
		point := byMonth[row.Month]
		if point == nil {
			point = &TrendPoint{Month: row.Month}
			byMonth[row.Month] = point
		}
		switch row.Type {
		case models.TransactionTypeIncome:
			point.Income = row.Total
			point.IncomeCount = row.Count
		default:
			point.Expenses = point.Expenses.Add(row.Total)
			point.ExpenseCount += row.Count
		}
	}

	trends := make([]TrendPoint, 0, len(byMonth))
	for _, point := range byMonth {
		trends = append(trends, *point)
	}
	sort.Slice(trends, func(i, j int) bool { return trends[i].Month > trends[j].Month })

	// Growth is income change against the prior month in the descending
	// series; the oldest entry has no prior month and stays at 0.
	for i := 0; i < len(trends)-1; i++ {
		trends[i].GrowthRate = pctChange(trends[i].Income, trends[i+1].Income)
	}
	return trends, nil
}

func (e *Engine) Distribution(ctx context.Context, companyId string) (*Distribution, error) {
	deptRows, err := e.store.DepartmentTotals(ctx, companyId)
	if err != nil {
		return nil, err
	}
	actionRows, err := e.store.ActionTotals(ctx, companyId)
	if err != nil {
		return nil, err
	}
	comparison, err := e.monthlyComparison(ctx, companyId)
	if err != nil {
		return nil, err
	}

	byDepartment := make([]DepartmentSlice, 0, len(deptRows))
	for _, row := range deptRows {
		dept := row.Department
		if dept == "" {
			dept = unspecifiedBucket
		}
		byDepartment = append(byDepartment, DepartmentSlice{
			Department: dept,
			Income:     row.Income,
			Expenses:   row.Expenses,
			Count:      row.Count,
		})
	}

	return &Distribution{
		ByDepartment:      byDepartment,
		ByAction:          foldActions(actionRows),
		MonthlyComparison: comparison,
	}, nil
}

// foldActions merges the per-type rows of one action into a single slice,
// keeping first-seen order.
func foldActions(rows []ActionRow) []ActionSlice {
	index := map[string]int{}
	out := []ActionSlice{}
	for _, row := range rows {
		action := row.Action
		if action == "" {
			action = unspecifiedBucket
		}
		i, ok := index[action]
		if !ok {
			i = len(out)
			index[action] = i
			out = append(out, ActionSlice{Action: action})
		}
		if row.Type == models.TransactionTypeIncome {
			out[i].Income = out[i].Income.Add(row.Total)
		} else {
			out[i].Expenses = out[i].Expenses.Add(row.Total)
		}
		out[i].Count += row.Count
	}
	return out
}

func (e *Engine) monthlyComparison(ctx context.Context, companyId string) (MonthlyComparison, error) {
	now := e.now()
	currentMonth := now.Format(monthLayout)
	previousMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).
		AddDate(0, -1, 0).Format(monthLayout)

	current, err := e.monthTotals(ctx, companyId, currentMonth)
	if err != nil {
		return MonthlyComparison{}, err
	}
	previous, err := e.monthTotals(ctx, companyId, previousMonth)
	if err != nil {
		return MonthlyComparison{}, err
	}

	profitChange := float64(0)
	if !previous.Profit.IsZero() {
		profitChange = current.Profit.Sub(previous.Profit).
			Div(previous.Profit.Abs()).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	return MonthlyComparison{
		Current: ComparisonMonth{
			Month:    currentMonth,
			Income:   current.Income,
			Expenses: current.Expenses,
			Profit:   current.Profit,
		},
		Previous: ComparisonMonth{
			Month:    previousMonth,
			Income:   previous.Income,
			Expenses: previous.Expenses,
			Profit:   previous.Profit,
		},
		Changes: ComparisonChanges{
			Income:   pctChange(current.Income, previous.Income),
			Expenses: pctChange(current.Expenses, previous.Expenses),
			Profit:   profitChange,
		},
	}, nil
}

func (e *Engine) monthTotals(ctx context.Context, companyId string, month string) (MonthTotals, error) {
	row, err := e.store.MonthTotals(ctx, companyId, month)
	if err != nil {
		return MonthTotals{}, err
	}
	return MonthTotals{
		Income:   row.Income,
		Expenses: row.Expenses,
		Profit:   row.Income.Sub(row.Expenses),
	}, nil
}

func (e *Engine) HighestRecords(ctx context.Context, companyId string) (*HighestRecords, error) {
	incomeRecords, err := e.topRecords(ctx, companyId, models.TransactionTypeIncome)
	if err != nil {
		return nil, err
	}
	expenseRecords, err := e.topRecords(ctx, companyId, models.TransactionTypeExpense)
	if err != nil {
		return nil, err
	}
	return &HighestRecords{
		HighestIncome:  incomeRecords,
		HighestExpense: expenseRecords,
	}, nil
}

func (e *Engine) topRecords(ctx context.Context, companyId string, t models.TransactionType) ([]RecordEntry, error) {
	rows, err := e.store.TopAmountsByType(ctx, companyId, t, highestLimit)
	if err != nil {
		return nil, err
	}
	entries := make([]RecordEntry, 0, len(rows))
	for _, tx := range rows {
		entries = append(entries, RecordEntry{
			Id:         tx.ID,
			Name:       tx.Name,
			Amount:     tx.Amount,
			Date:       tx.TransactionDate,
			Department: stringOrUnspecified(tx.Department),
			Action:     stringOrUnspecified(tx.Action),
		})
	}
	return entries, nil
}

func stringOrUnspecified(s *string) string {
	if s == nil || *s == "" {
		return unspecifiedBucket
	}
	return *s
}
