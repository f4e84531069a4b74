package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the tenant-scoped ledger row every analytics view derives
// from. Once is_locked is set by the auto-lock pass, update and delete are
// rejected.
type Transaction struct {
	ID              string          `gorm:"primaryKey;size:36" json:"id"`
	Name            string          `gorm:"size:255;not null" json:"name"`
	Amount          decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Type            TransactionType `gorm:"type:enum('income','expense','transfer');not null;index:idx_tx_company_type,priority:2" json:"type"`
	Comment         string          `gorm:"type:text" json:"comment"`
	Department      *string         `gorm:"size:255" json:"department"`
	Action          *string         `gorm:"size:255" json:"action"`
	TransactionDate time.Time       `gorm:"type:date;not null;index:idx_tx_company_date,priority:2" json:"transaction_date"`
	IsLocked        bool            `gorm:"not null;default:false" json:"is_locked"`
	CompanyId       string          `gorm:"size:36;not null;index:idx_tx_company_type,priority:1;index:idx_tx_company_date,priority:1" json:"company_id"`
	CurrencyId      string          `gorm:"size:36;not null" json:"currency_id"`
	CreatedBy       string          `gorm:"size:36;not null" json:"created_by"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
