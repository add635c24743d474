package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/diewo77/maritime-billing/internal/billing"
	"github.com/diewo77/maritime-billing/internal/models"
)

// ReferenceLookup resolves the reference data an invoice or expense points to.
// Only active rows count as existing.
type ReferenceLookup interface {
	CompanyExists(ctx context.Context, id uint) (bool, error)
	ShipExists(ctx context.Context, id uint) (bool, error)
	SupplierExists(ctx context.Context, id uint) (bool, error)
	// MissingOperations returns the ids among ids with no active operation.
	MissingOperations(ctx context.Context, ids []uint) ([]uint, error)
}

// GormLookup implements ReferenceLookup over the reference tables.
type GormLookup struct {
	db *gorm.DB
}

func NewGormLookup(db *gorm.DB) *GormLookup {
	return &GormLookup{db: db}
}

func (l *GormLookup) exists(ctx context.Context, model any, id uint) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(model).Where("id = ? AND active = ?", id, true).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("lookup %T %d: %w", model, id, err)
	}
	return count > 0, nil
}

func (l *GormLookup) CompanyExists(ctx context.Context, id uint) (bool, error) {
	return l.exists(ctx, &models.Company{}, id)
}

func (l *GormLookup) ShipExists(ctx context.Context, id uint) (bool, error) {
	return l.exists(ctx, &models.Ship{}, id)
}

func (l *GormLookup) SupplierExists(ctx context.Context, id uint) (bool, error) {
	return l.exists(ctx, &models.Supplier{}, id)
}

func (l *GormLookup) MissingOperations(ctx context.Context, ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []uint
	err := l.db.WithContext(ctx).Model(&models.Operation{}).
		Where("id IN ? AND active = ?", ids, true).
		Pluck("id", &found).Error
	if err != nil {
		return nil, fmt.Errorf("lookup operations: %w", err)
	}
	have := make(map[uint]bool, len(found))
	for _, id := range found {
		have[id] = true
	}
	var missing []uint
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		if !have[id] && !seen[id] {
			missing = append(missing, id)
			seen[id] = true
		}
	}
	return missing, nil
}

// refCheck collects every unresolved reference before failing, so callers
// see all of them at once.
type refCheck struct {
	ctx     context.Context
	lookup  ReferenceLookup
	missing []billing.Reference
	err     error
}

func newRefCheck(ctx context.Context, lookup ReferenceLookup) *refCheck {
	return &refCheck{ctx: ctx, lookup: lookup}
}

func (c *refCheck) one(kind, field string, id uint, exists func(context.Context, uint) (bool, error)) {
	if c.err != nil || id == 0 {
		return
	}
	ok, err := exists(c.ctx, id)
	if err != nil {
		c.err = err
		return
	}
	if !ok {
		c.missing = append(c.missing, billing.Reference{Kind: kind, Field: field, ID: id})
	}
}

func (c *refCheck) company(id uint) { c.one("company", "company_id", id, c.lookup.CompanyExists) }
func (c *refCheck) ship(id uint)    { c.one("ship", "ship_id", id, c.lookup.ShipExists) }
func (c *refCheck) supplier(id uint) {
	c.one("supplier", "supplier_id", id, c.lookup.SupplierExists)
}

func (c *refCheck) operations(lines []billing.LineItem) {
	if c.err != nil || len(lines) == 0 {
		return
	}
	ids := make([]uint, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.OperationID)
	}
	missing, err := c.lookup.MissingOperations(c.ctx, ids)
	if err != nil {
		c.err = err
		return
	}
	bad := make(map[uint]bool, len(missing))
	for _, id := range missing {
		bad[id] = true
	}
	for i, l := range lines {
		if bad[l.OperationID] {
			c.missing = append(c.missing, billing.Reference{
				Kind:  "operation",
				Field: fmt.Sprintf("lines[%d].operation_id", i),
				ID:    l.OperationID,
			})
		}
	}
}

func (c *refCheck) result() error {
	if c.err != nil {
		return c.err
	}
	if len(c.missing) > 0 {
		return &billing.ReferenceNotFoundError{Missing: c.missing}
	}
	return nil
}
