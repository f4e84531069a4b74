package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// View payloads are JSON-serializable and cached as-is. Percentage fields
// (profit margin, growth and change rates) follow the "0 means N/A"
// convention: a zero denominator yields 0, never an error or an infinity.
// Callers cannot distinguish that from a true zero rate; the convention is
// part of the API contract.

type MonthTotals struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Profit   decimal.Decimal `json:"profit"`
}

type Summary struct {
	TotalIncome      decimal.Decimal `json:"totalIncome"`
	TotalExpenses    decimal.Decimal `json:"totalExpenses"`
	NetProfit        decimal.Decimal `json:"netProfit"`
	ProfitMargin     float64         `json:"profitMargin"`
	TransactionCount int64           `json:"transactionCount"`
	CurrentMonth     MonthTotals     `json:"currentMonth"`
	CalculatedAt     time.Time       `json:"calculatedAt"`
}

type MonthlyBucket struct {
	Month            string          `json:"month"`
	Income           decimal.Decimal `json:"income"`
	Expenses         decimal.Decimal `json:"expenses"`
	Profit           decimal.Decimal `json:"profit"`
	TransactionCount int64           `json:"transactionCount"`
	ProfitMargin     float64         `json:"profitMargin"`
}

type TrendPoint struct {
	Month        string          `json:"month"`
	Income       decimal.Decimal `json:"income"`
	Expenses     decimal.Decimal `json:"expenses"`
	IncomeCount  int64           `json:"incomeCount"`
	ExpenseCount int64           `json:"expenseCount"`
	GrowthRate   float64         `json:"growthRate"`
}

type DepartmentSlice struct {
	Department string          `json:"department"`
	Income     decimal.Decimal `json:"income"`
	Expenses   decimal.Decimal `json:"expenses"`
	Count      int64           `json:"count"`
}

type ActionSlice struct {
	Action   string          `json:"action"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Count    int64           `json:"count"`
}

type ComparisonMonth struct {
	Month    string          `json:"month"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Profit   decimal.Decimal `json:"profit"`
}

type ComparisonChanges struct {
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
	Profit   float64 `json:"profit"`
}

type MonthlyComparison struct {
	Current  ComparisonMonth   `json:"current"`
	Previous ComparisonMonth   `json:"previous"`
	Changes  ComparisonChanges `json:"changes"`
}

type Distribution struct {
	ByDepartment      []DepartmentSlice `json:"byDepartment"`
	ByAction          []ActionSlice     `json:"byAction"`
	MonthlyComparison MonthlyComparison `json:"monthlyComparison"`
}

type RecordEntry struct {
	Id         string          `json:"id"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	Date       time.Time       `json:"date"`
	Department string          `json:"department"`
	Action     string          `json:"action"`
}

type HighestRecords struct {
	HighestIncome  []RecordEntry `json:"highestIncome"`
	HighestExpense []RecordEntry `json:"highestExpense"`
}

// CacheEntry is the envelope written under every analytics cache key, on both
// the synchronous read-through path and the worker warm path, so cache-status
// introspection always finds a cachedAt.
type CacheEntry[T any] struct {
	Type     string    `json:"type"`
	Data     T         `json:"data"`
	CachedAt time.Time `json:"cachedAt"`
}
