package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Company is a shipping company billed by the back-office.
type Company struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name    string `gorm:"size:255;not null" json:"name"`
	Email   string `gorm:"size:255" json:"email,omitempty"`
	Country string `gorm:"size:100" json:"country,omitempty"`
	Active  bool   `gorm:"not null;default:true;index" json:"active"`
}

// Ship belongs to a company. IMONumber is the 7-digit IMO identifier.
type Ship struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name      string `gorm:"size:255;not null" json:"name"`
	IMONumber string `gorm:"size:20;index" json:"imo_number,omitempty"`
	CompanyID uint   `gorm:"index;not null" json:"company_id"`
	Active    bool   `gorm:"not null;default:true;index" json:"active"`
}

// Operation is a billable port or maritime service (pilotage, towage...).
type Operation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Code             string          `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Label            string          `gorm:"size:255;not null" json:"label"`
	DefaultUnitPrice decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0" json:"default_unit_price"`
	Active           bool            `gorm:"not null;default:true;index" json:"active"`
}

// Supplier issues the expenses paid by the company.
type Supplier struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name   string `gorm:"size:255;not null" json:"name"`
	Active bool   `gorm:"not null;default:true;index" json:"active"`
}
