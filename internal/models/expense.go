package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is a supplier cost, optionally attached to a ship.
type Expense struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Reference   string          `gorm:"size:100;not null;index" json:"reference"`
	SupplierID  uint            `gorm:"index;not null" json:"supplier_id"`
	ShipID      *uint           `gorm:"index" json:"ship_id,omitempty"`
	Category    string          `gorm:"size:50;not null;index" json:"category"`
	Description string          `gorm:"size:500" json:"description,omitempty"`
	ExpenseDate time.Time       `gorm:"type:date;not null;index" json:"expense_date"`
	Amount      decimal.Decimal `gorm:"type:numeric(18,2);not null;index" json:"amount"`
	Currency    string          `gorm:"size:3;not null;default:'XOF'" json:"currency"`
	Active      bool            `gorm:"not null;default:true;index" json:"active"`

	Audit
}
