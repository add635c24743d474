package models

import "time"

// Audit logging
type AuditLog struct {
	ID uint `gorm:"primaryKey" json:"id"`
	// qui a fait la modification
	UserID uint `gorm:"index" json:"user_id"`
	// ex: "invoice", "expense"
	EntityType string `gorm:"size:50;not null;index:idx_audit_entity" json:"entity_type"`
	EntityID   uint   `gorm:"not null;index:idx_audit_entity" json:"entity_id"`
	// ex: "create", "status", "delete"
	Action    string    `gorm:"size:50;not null" json:"action"`
	Field     string    `gorm:"size:50" json:"field,omitempty"`
	OldValue  string    `gorm:"size:255" json:"old_value,omitempty"`
	NewValue  string    `gorm:"size:255" json:"new_value,omitempty"`
	Comment   string    `gorm:"size:1000" json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// InvoiceSequence is the per-year numbering counter.
type InvoiceSequence struct {
	Year      int   `gorm:"primaryKey;autoIncrement:false" json:"year"`
	LastValue int64 `gorm:"not null;default:0" json:"last_value"`
}

// All lists every record for AutoMigrate, parents first.
func All() []any {
	return []any{
		&Company{}, &Ship{}, &Operation{}, &Supplier{},
		&Invoice{}, &InvoiceLine{}, &InvoiceSequence{},
		&Expense{}, &AuditLog{},
	}
}
