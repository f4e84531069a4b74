package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mmdatafocus/finrecords_backend/models"
)

// GormTransactionStore runs the engine's aggregate queries against MySQL.
// Month bucketing uses DATE_FORMAT so grouping happens in the database, not
// in Go.
type GormTransactionStore struct {
	DB *gorm.DB
}

func NewGormTransactionStore(db *gorm.DB) *GormTransactionStore {
	return &GormTransactionStore{DB: db}
}

func (s *GormTransactionStore) SumAmountByType(ctx context.Context, companyId string, t models.TransactionType) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := s.DB.WithContext(ctx).Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("company_id = ? AND type = ?", companyId, t).
		Scan(&row).Error
	return row.Total, err
}

func (s *GormTransactionStore) CountByCompany(ctx context.Context, companyId string) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.Transaction{}).
		Where("company_id = ?", companyId).
		Count(&count).Error
	return count, err
}

func (s *GormTransactionStore) MonthlyTotals(ctx context.Context, companyId string, limit int) ([]MonthlyRow, error) {
	var rows []MonthlyRow
	err := s.DB.WithContext(ctx).Raw(`
		SELECT
			DATE_FORMAT(transaction_date, '%Y-%m') AS month,
			COALESCE(SUM(CASE WHEN type = 'income' THEN amount ELSE 0 END), 0) AS income,
			COALESCE(SUM(CASE WHEN type = 'expense' THEN amount ELSE 0 END), 0) AS expenses,
			COUNT(*) AS transaction_count
		FROM transactions
		WHERE company_id = ?
		GROUP BY month
		ORDER BY month DESC
		LIMIT ?`, companyId, limit).Scan(&rows).Error
	return rows, err
}

func (s *GormTransactionStore) MonthlyTypeTotals(ctx context.Context, companyId string, since time.Time) ([]TypeMonthRow, error) {
	var rows []TypeMonthRow
	err := s.DB.WithContext(ctx).Raw(`
		SELECT
			DATE_FORMAT(transaction_date, '%Y-%m') AS month,
			type,
			COALESCE(SUM(amount), 0) AS total,
			COUNT(*) AS count
		FROM transactions
		WHERE company_id = ? AND transaction_date >= ?
		GROUP BY month, type
		ORDER BY month DESC`, companyId, since).Scan(&rows).Error
	return rows, err
}

func (s *GormTransactionStore) DepartmentTotals(ctx context.Context, companyId string) ([]DepartmentRow, error) {
	var rows []DepartmentRow
	err := s.DB.WithContext(ctx).Raw(`
		SELECT
			COALESCE(department, 'Unspecified') AS department,
			COALESCE(SUM(CASE WHEN type = 'income' THEN amount ELSE 0 END), 0) AS income,
			COALESCE(SUM(CASE WHEN type = 'expense' THEN amount ELSE 0 END), 0) AS expenses,
			COUNT(*) AS count
		FROM transactions
		WHERE company_id = ?
		GROUP BY department`, companyId).Scan(&rows).Error
	return rows, err
}

func (s *GormTransactionStore) ActionTotals(ctx context.Context, companyId string) ([]ActionRow, error) {
	var rows []ActionRow
	err := s.DB.WithContext(ctx).Raw(`
		SELECT
			COALESCE(action, 'Unspecified') AS action,
			type,
			COALESCE(SUM(amount), 0) AS total,
			COUNT(*) AS count
		FROM transactions
		WHERE company_id = ?
		GROUP BY action, type`, companyId).Scan(&rows).Error
	return rows, err
}

func (s *GormTransactionStore) MonthTotals(ctx context.Context, companyId string, month string) (MonthTotalsRow, error) {
	var row MonthTotalsRow
	err := s.DB.WithContext(ctx).Raw(`
		SELECT
			COALESCE(SUM(CASE WHEN type = 'income' THEN amount ELSE 0 END), 0) AS income,
			COALESCE(SUM(CASE WHEN type = 'expense' THEN amount ELSE 0 END), 0) AS expenses
		FROM transactions
		WHERE company_id = ? AND DATE_FORMAT(transaction_date, '%Y-%m') = ?`, companyId, month).Scan(&row).Error
	return row, err
}

func (s *GormTransactionStore) TopAmountsByType(ctx context.Context, companyId string, t models.TransactionType, limit int) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := s.DB.WithContext(ctx).
		Select("id", "name", "amount", "transaction_date", "department", "action").
		Where("company_id = ? AND type = ?", companyId, t).
		Order("amount DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// GormCompanyStore backs the façade's once-per-call tenant check.
type GormCompanyStore struct {
	DB *gorm.DB
}

func NewGormCompanyStore(db *gorm.DB) *GormCompanyStore {
	return &GormCompanyStore{DB: db}
}

func (s *GormCompanyStore) CompanyExists(ctx context.Context, companyId string) (bool, error) {
	var company models.Company
	err := s.DB.WithContext(ctx).Select("id").Where("id = ?", companyId).Take(&company).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
