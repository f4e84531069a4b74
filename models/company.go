package models

import "time"

type Company struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Departments []string  `gorm:"serializer:json" json:"departments"`
	CurrencyId  string    `gorm:"size:36" json:"currency_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
