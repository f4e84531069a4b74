package transactions

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mmdatafocus/finrecords_backend/models"
)

type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) ByID(ctx context.Context, companyId string, id string) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.DB.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyId, id).
		Take(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (s *GormStore) Create(ctx context.Context, tx *models.Transaction) error {
	return s.DB.WithContext(ctx).Create(tx).Error
}

func (s *GormStore) Save(ctx context.Context, tx *models.Transaction) error {
	return s.DB.WithContext(ctx).Save(tx).Error
}

func (s *GormStore) Delete(ctx context.Context, tx *models.Transaction) error {
	return s.DB.WithContext(ctx).
		Where("company_id = ? AND id = ?", tx.CompanyId, tx.ID).
		Delete(&models.Transaction{}).Error
}

func (s *GormStore) ListByCompany(ctx context.Context, companyId string, limit int, offset int) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := s.DB.WithContext(ctx).
		Where("company_id = ?", companyId).
		Order("transaction_date DESC, created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	return rows, err
}

// LockOlderThan flips is_locked on every unlocked transaction created at or
// before the cutoff and returns the distinct companies touched, so the
// caller can invalidate their analytics caches.
func (s *GormStore) LockOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	var companyIds []string
	err := s.DB.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if err := db.Model(&models.Transaction{}).
			Where("is_locked = ? AND created_at <= ?", false, cutoff).
			Distinct().
			Pluck("company_id", &companyIds).Error; err != nil {
			return err
		}
		if len(companyIds) == 0 {
			return nil
		}
		return db.Model(&models.Transaction{}).
			Where("is_locked = ? AND created_at <= ?", false, cutoff).
			Update("is_locked", true).Error
	})
	return companyIds, err
}

// GormDepartmentCatalog resolves department names against the JSON list on
// the company row. Matching is case-insensitive.
type GormDepartmentCatalog struct {
	DB *gorm.DB
}

func NewGormDepartmentCatalog(db *gorm.DB) *GormDepartmentCatalog {
	return &GormDepartmentCatalog{DB: db}
}

func (c *GormDepartmentCatalog) HasDepartment(ctx context.Context, companyId string, name string) (bool, error) {
	var company models.Company
	err := c.DB.WithContext(ctx).Select("id", "departments").
		Where("id = ?", companyId).Take(&company).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	for _, dept := range company.Departments {
		if strings.EqualFold(dept, name) {
			return true, nil
		}
	}
	return false, nil
}
