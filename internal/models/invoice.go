package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/diewo77/maritime-billing/internal/billing"
)

// Audit is embedded in every mutable record. Timestamps are set by GORM,
// actor ids by the service from the caller.
type Audit struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy uint      `gorm:"not null;default:0" json:"created_by"`
	UpdatedBy uint      `gorm:"not null;default:0" json:"updated_by"`
}

// Invoice is the persisted form of billing.Invoice. Amount columns are a
// projection of the lines kept for filtering and statistics; they are
// rewritten on every save and never read back into the aggregate.
type Invoice struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// NULL until the first transition out of BROUILLON
	Number *string `gorm:"size:50;uniqueIndex" json:"number,omitempty"`

	CompanyID uint `gorm:"index;not null" json:"company_id"`
	ShipID    uint `gorm:"index;not null" json:"ship_id"`

	IssueDate time.Time `gorm:"type:date;not null;index" json:"issue_date"`
	DueDate   time.Time `gorm:"type:date;not null;index" json:"due_date"`

	TaxRate        decimal.Decimal  `gorm:"type:numeric(5,2);not null" json:"tax_rate"`
	Subtotal       decimal.Decimal  `gorm:"type:numeric(18,2);not null" json:"subtotal"`
	TaxAmount      decimal.Decimal  `gorm:"type:numeric(18,2);not null" json:"tax_amount"`
	Total          decimal.Decimal  `gorm:"type:numeric(18,2);not null;index" json:"total"`
	TotalSecondary *decimal.Decimal `gorm:"type:numeric(18,2)" json:"total_secondary,omitempty"`

	Status string `gorm:"size:20;not null;index" json:"status"`
	Notes  string `gorm:"size:2000" json:"notes,omitempty"`
	Active bool   `gorm:"not null;default:true;index" json:"active"`

	Audit

	Lines []InvoiceLine `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"lines,omitempty"`
}

// InvoiceLine is one row of an invoice. Lines are replaced as a set.
type InvoiceLine struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	InvoiceID   uint   `gorm:"index;not null" json:"invoice_id"`
	Position    int    `gorm:"not null;default:0" json:"position"`
	OperationID uint   `gorm:"index;not null" json:"operation_id"`
	Description string `gorm:"size:500" json:"description,omitempty"`

	Quantity           decimal.Decimal  `gorm:"type:numeric(14,3);not null" json:"quantity"`
	UnitPrice          decimal.Decimal  `gorm:"type:numeric(18,4);not null" json:"unit_price"`
	UnitPriceSecondary *decimal.Decimal `gorm:"type:numeric(18,4)" json:"unit_price_secondary,omitempty"`
}

// ToDomain rebuilds the aggregate. Lines must be preloaded.
func (r *Invoice) ToDomain() *billing.Invoice {
	lines := make([]billing.LineItem, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = l.ToDomain()
	}
	var number string
	if r.Number != nil {
		number = *r.Number
	}
	return billing.Restore(billing.State{
		ID:        r.ID,
		Number:    number,
		CompanyID: r.CompanyID,
		ShipID:    r.ShipID,
		IssueDate: r.IssueDate,
		DueDate:   r.DueDate,
		TaxRate:   r.TaxRate,
		Lines:     lines,
		Status:    billing.Status(r.Status),
		Notes:     r.Notes,
		Active:    r.Active,
		Audit: billing.Audit{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
			CreatedBy: r.CreatedBy,
			UpdatedBy: r.UpdatedBy,
		},
	})
}

// InvoiceFromDomain flattens the aggregate into a record, amounts included.
func InvoiceFromDomain(inv *billing.Invoice) Invoice {
	s := inv.State()
	a := inv.Amounts()
	r := Invoice{
		ID:             s.ID,
		CompanyID:      s.CompanyID,
		ShipID:         s.ShipID,
		IssueDate:      s.IssueDate,
		DueDate:        s.DueDate,
		TaxRate:        s.TaxRate,
		Subtotal:       a.Subtotal,
		TaxAmount:      a.Tax,
		Total:          a.Total,
		TotalSecondary: a.TotalSecondary,
		Status:         string(s.Status),
		Notes:          s.Notes,
		Active:         s.Active,
		Audit: Audit{
			CreatedAt: s.Audit.CreatedAt,
			UpdatedAt: s.Audit.UpdatedAt,
			CreatedBy: s.Audit.CreatedBy,
			UpdatedBy: s.Audit.UpdatedBy,
		},
		Lines: LinesFromDomain(s.ID, s.Lines),
	}
	if s.Number != "" {
		n := s.Number
		r.Number = &n
	}
	return r
}

func (l InvoiceLine) ToDomain() billing.LineItem {
	return billing.LineItem{
		ID:                 l.ID,
		OperationID:        l.OperationID,
		Description:        l.Description,
		Quantity:           l.Quantity,
		UnitPrice:          l.UnitPrice,
		UnitPriceSecondary: l.UnitPriceSecondary,
	}
}

// LinesFromDomain numbers lines by position. Line ids are dropped: a saved
// set always replaces the previous one.
func LinesFromDomain(invoiceID uint, lines []billing.LineItem) []InvoiceLine {
	out := make([]InvoiceLine, len(lines))
	for i, l := range lines {
		out[i] = InvoiceLine{
			InvoiceID:          invoiceID,
			Position:           i,
			OperationID:        l.OperationID,
			Description:        l.Description,
			Quantity:           l.Quantity,
			UnitPrice:          l.UnitPrice,
			UnitPriceSecondary: l.UnitPriceSecondary,
		}
	}
	return out
}
