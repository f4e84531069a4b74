package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

type TransactionType string

const (
	TransactionTypeIncome   TransactionType = "income"
	TransactionTypeExpense  TransactionType = "expense"
	TransactionTypeTransfer TransactionType = "transfer"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeIncome, TransactionTypeExpense, TransactionTypeTransfer:
		return true
	}
	return false
}

func (t TransactionType) Value() (driver.Value, error) {
	return string(t), nil
}

func (t *TransactionType) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*t = TransactionType(v)
	case []byte:
		*t = TransactionType(v)
	default:
		return fmt.Errorf("cannot scan %T into TransactionType", value)
	}
	return nil
}

// AnalyticsViewType names one of the five cached analytics views.
// Queue payloads additionally use the sentinels "all" and "recurring",
// which are job types, not views.
type AnalyticsViewType string

const (
	ViewSummary      AnalyticsViewType = "summary"
	ViewMonthly      AnalyticsViewType = "monthly"
	ViewTrends       AnalyticsViewType = "trends"
	ViewDistribution AnalyticsViewType = "distribution"
	ViewHighest      AnalyticsViewType = "highest"
)

func AnalyticsViewTypes() []AnalyticsViewType {
	return []AnalyticsViewType{ViewSummary, ViewMonthly, ViewTrends, ViewDistribution, ViewHighest}
}

func ParseAnalyticsViewType(s string) (AnalyticsViewType, error) {
	v := AnalyticsViewType(s)
	for _, known := range AnalyticsViewTypes() {
		if v == known {
			return v, nil
		}
	}
	return "", errors.New("invalid analytics view type: " + s)
}
