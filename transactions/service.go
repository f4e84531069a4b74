package transactions

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/finrecords_backend/config"
	"github.com/mmdatafocus/finrecords_backend/models"
	"github.com/mmdatafocus/finrecords_backend/utils"
)

// Store is the persistence surface the service needs. The production
// implementation is GORM/MySQL; tests substitute an in-memory fake.
type Store interface {
	ByID(ctx context.Context, companyId string, id string) (*models.Transaction, error)
	Create(ctx context.Context, tx *models.Transaction) error
	Save(ctx context.Context, tx *models.Transaction) error
	Delete(ctx context.Context, tx *models.Transaction) error
	ListByCompany(ctx context.Context, companyId string, limit int, offset int) ([]models.Transaction, error)
}

// DepartmentCatalog answers whether a department name exists for a tenant.
type DepartmentCatalog interface {
	HasDepartment(ctx context.Context, companyId string, name string) (bool, error)
}

// AnalyticsNotifier is called after every committed mutation so cached views
// never outlive the data they were computed from.
type AnalyticsNotifier interface {
	OnTransactionMutated(ctx context.Context, companyId string)
}

type Service struct {
	store    Store
	catalog  DepartmentCatalog
	notifier AnalyticsNotifier
	logger   *logrus.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewService(store Store, catalog DepartmentCatalog, notifier AnalyticsNotifier, logger *logrus.Logger) *Service {
	return &Service{
		store:    store,
		catalog:  catalog,
		notifier: notifier,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

type CreateTransactionInput struct {
	Name            string          `json:"name" validate:"required,max=255"`
	Amount          decimal.Decimal `json:"amount" validate:"required"`
	Type            string          `json:"type" validate:"required,oneof=income expense transfer"`
	Comment         string          `json:"comment"`
	Department      *string         `json:"department"`
	Action          *string         `json:"action"`
	TransactionDate time.Time       `json:"transactionDate" validate:"required"`
	CurrencyId      string          `json:"currencyId" validate:"required"`
}

type UpdateTransactionInput struct {
	Name            *string          `json:"name" validate:"omitempty,max=255"`
	Amount          *decimal.Decimal `json:"amount"`
	Comment         *string          `json:"comment"`
	Department      *string          `json:"department"`
	Action          *string          `json:"action"`
	TransactionDate *time.Time       `json:"transactionDate"`
}

func (s *Service) checkInput(ctx context.Context, companyId string, amount decimal.Decimal, txDate time.Time, department *string) error {
	if !amount.IsPositive() {
		return utils.NewValidationError("amount must be positive")
	}
	if txDate.After(s.now()) {
		return utils.NewValidationError("transaction date cannot be in the future")
	}
	if department != nil && *department != "" {
		ok, err := s.catalog.HasDepartment(ctx, companyId, *department)
		if err != nil {
			return err
		}
		if !ok {
			return utils.NewValidationError("unknown department: " + *department)
		}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, companyId string, userId string, input CreateTransactionInput) (*models.Transaction, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, utils.NewValidationError(err.Error())
	}
	if err := s.checkInput(ctx, companyId, input.Amount, input.TransactionDate, input.Department); err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(input.Name),
		Amount:          input.Amount,
		Type:            models.TransactionType(input.Type),
		Comment:         input.Comment,
		Department:      input.Department,
		Action:          input.Action,
		TransactionDate: input.TransactionDate,
		CompanyId:       companyId,
		CurrencyId:      input.CurrencyId,
		CreatedBy:       userId,
	}
	if err := s.store.Create(ctx, tx); err != nil {
		return nil, err
	}
	s.notifier.OnTransactionMutated(ctx, companyId)
	return tx, nil
}

func (s *Service) Update(ctx context.Context, companyId string, id string, input UpdateTransactionInput) (*models.Transaction, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, utils.NewValidationError(err.Error())
	}
	tx, err := s.store.ByID(ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, utils.NewNotFoundError("transaction not found")
	}
	if tx.IsLocked {
		return nil, utils.NewValidationError("transaction is locked and cannot be modified")
	}

	if input.Name != nil {
		tx.Name = strings.TrimSpace(*input.Name)
	}
	if input.Amount != nil {
		tx.Amount = *input.Amount
	}
	if input.Comment != nil {
		tx.Comment = *input.Comment
	}
	if input.Department != nil {
		tx.Department = input.Department
	}
	if input.Action != nil {
		tx.Action = input.Action
	}
	if input.TransactionDate != nil {
		tx.TransactionDate = *input.TransactionDate
	}
	if err := s.checkInput(ctx, companyId, tx.Amount, tx.TransactionDate, tx.Department); err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, tx); err != nil {
		return nil, err
	}
	s.notifier.OnTransactionMutated(ctx, companyId)
	return tx, nil
}

func (s *Service) Delete(ctx context.Context, companyId string, id string) error {
	tx, err := s.store.ByID(ctx, companyId, id)
	if err != nil {
		return err
	}
	if tx == nil {
		return utils.NewNotFoundError("transaction not found")
	}
	if tx.IsLocked {
		return utils.NewValidationError("transaction is locked and cannot be deleted")
	}
	if err := s.store.Delete(ctx, tx); err != nil {
		return err
	}
	s.notifier.OnTransactionMutated(ctx, companyId)
	return nil
}

func (s *Service) Get(ctx context.Context, companyId string, id string) (*models.Transaction, error) {
	tx, err := s.store.ByID(ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, utils.NewNotFoundError("transaction not found")
	}
	return tx, nil
}

func (s *Service) List(ctx context.Context, companyId string, limit int, offset int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.store.ListByCompany(ctx, companyId, limit, offset)
	if err != nil {
		config.LogError(s.logger, "transactions", "List", "list by company", companyId, err)
		return nil, err
	}
	return rows, nil
}
