package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/diewo77/maritime-billing/internal/billing"
	"github.com/diewo77/maritime-billing/internal/logger"
	"github.com/diewo77/maritime-billing/internal/models"
	"github.com/diewo77/maritime-billing/internal/search"
	"github.com/diewo77/maritime-billing/validation"
)

const (
	// MaxCommentLength bounds the free-text comment of a status change.
	MaxCommentLength = 1000
	// MaxBatchSize bounds the id list of batch operations.
	MaxBatchSize = 500

	maxRaceRetries = 3
)

// errStaleStatus means a conditional write found the row in another status
// than the one read at the start of the transaction.
var errStaleStatus = errors.New("invoice status changed concurrently")

// Clock returns the current instant.
type Clock func() time.Time

// InvoiceService orchestrates the invoice aggregate over GORM. Every
// mutation takes the acting user id explicitly.
type InvoiceService struct {
	db      *gorm.DB
	refs    ReferenceLookup
	numbers *NumberGenerator
	now     Clock
	loc     *time.Location
	log     zerolog.Logger
}

type Option func(*InvoiceService)

// WithClock replaces time.Now, e.g. to pin "today" in tests.
func WithClock(c Clock) Option {
	return func(s *InvoiceService) { s.now = c }
}

// WithLocation sets the time zone in which "today" is evaluated.
func WithLocation(loc *time.Location) Option {
	return func(s *InvoiceService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewInvoiceService(db *gorm.DB, refs ReferenceLookup, numbers *NumberGenerator, opts ...Option) *InvoiceService {
	s := &InvoiceService{
		db:      db,
		refs:    refs,
		numbers: numbers,
		now:     time.Now,
		loc:     time.UTC,
		log:     logger.WithComponent("invoices"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Today is the current calendar date in the configured zone.
func (s *InvoiceService) Today() time.Time {
	return billing.Day(s.now().In(s.loc))
}

// Create validates d, resolves its references and stores a new draft.
func (s *InvoiceService) Create(ctx context.Context, actor uint, d billing.Draft) (*billing.Invoice, error) {
	inv, err := billing.NewInvoice(d)
	if err != nil {
		return nil, err
	}
	refs := newRefCheck(ctx, s.refs)
	refs.company(d.CompanyID)
	refs.ship(d.ShipID)
	refs.operations(d.Lines)
	if err := refs.result(); err != nil {
		return nil, err
	}

	rec := models.InvoiceFromDomain(inv)
	now := s.now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	rec.CreatedBy, rec.UpdatedBy = actor, actor
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		return s.audit(tx, models.AuditLog{UserID: actor, EntityID: rec.ID, Action: "create"})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint("invoice_id", rec.ID).Uint("actor", actor).Msg("invoice created")
	return s.Get(ctx, rec.ID, true)
}

// Get loads an invoice with its lines. Soft-deleted invoices are reported as
// not found unless includeInactive is set.
func (s *InvoiceService) Get(ctx context.Context, id uint, includeInactive bool) (*billing.Invoice, error) {
	rec, err := s.load(s.db.WithContext(ctx), id, includeInactive)
	if err != nil {
		return nil, err
	}
	return rec.ToDomain(), nil
}

// Update applies a partial update to a draft. A non-nil Lines replaces the
// whole set.
func (s *InvoiceService) Update(ctx context.Context, actor, id uint, p billing.Patch) (*billing.Invoice, error) {
	cur, err := s.Get(ctx, id, false)
	if err != nil {
		return nil, err
	}
	// state and field errors take precedence over reference errors
	if err := cur.Update(p); err != nil {
		return nil, err
	}
	refs := newRefCheck(ctx, s.refs)
	if p.CompanyID != nil {
		refs.company(*p.CompanyID)
	}
	if p.ShipID != nil {
		refs.ship(*p.ShipID)
	}
	if p.Lines != nil {
		refs.operations(*p.Lines)
	}
	if err := refs.result(); err != nil {
		return nil, err
	}

	_, err = s.mutate(ctx, id, false, "update", func(tx *gorm.DB, inv *billing.Invoice) (bool, error) {
		from := inv.Status()
		if err := inv.Update(p); err != nil {
			return false, err
		}
		if err := s.save(tx, actor, inv, from, p.Lines != nil); err != nil {
			return false, err
		}
		return true, s.audit(tx, models.AuditLog{UserID: actor, EntityID: id, Action: "update"})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id, false)
}

// ChangeStatus moves an invoice through the transition table, assigning its
// number on the first move out of BROUILLON. comment is kept in the history.
func (s *InvoiceService) ChangeStatus(ctx context.Context, actor, id uint, to billing.Status, comment string) (*billing.Invoice, error) {
	if _, err := s.changeStatus(ctx, actor, id, to, comment); err != nil {
		return nil, err
	}
	return s.Get(ctx, id, true)
}

func (s *InvoiceService) changeStatus(ctx context.Context, actor, id uint, to billing.Status, comment string) (bool, error) {
	v := make(validation.Violations)
	if !to.Valid() {
		v.Add("status", "invalid")
	}
	validation.MaxLen("comment", comment, MaxCommentLength, v)
	if err := billing.NewValidationError(v); err != nil {
		return false, err
	}
	return s.mutate(ctx, id, false, "change status", func(tx *gorm.DB, inv *billing.Invoice) (bool, error) {
		from := inv.Status()
		changed, err := inv.ChangeStatus(to, s.numbers.For(tx))
		if err != nil || !changed {
			return false, err
		}
		if err := s.save(tx, actor, inv, from, false); err != nil {
			return false, err
		}
		err = s.audit(tx, models.AuditLog{
			UserID:   actor,
			EntityID: id,
			Action:   "status",
			Field:    "status",
			OldValue: string(from),
			NewValue: string(to),
			Comment:  comment,
		})
		if err != nil {
			return false, err
		}
		s.log.Info().Uint("invoice_id", id).Str("from", string(from)).Str("to", string(to)).
			Str("number", inv.Number()).Uint("actor", actor).Msg("invoice status changed")
		return true, nil
	})
}

// Delete soft-deletes a draft or cancelled invoice.
func (s *InvoiceService) Delete(ctx context.Context, actor, id uint) error {
	_, err := s.delete(ctx, actor, id)
	return err
}

func (s *InvoiceService) delete(ctx context.Context, actor, id uint) (bool, error) {
	return s.mutate(ctx, id, false, "delete", func(tx *gorm.DB, inv *billing.Invoice) (bool, error) {
		from := inv.Status()
		if err := inv.SoftDelete(); err != nil {
			return false, err
		}
		if err := s.save(tx, actor, inv, from, false); err != nil {
			return false, err
		}
		return true, s.audit(tx, models.AuditLog{UserID: actor, EntityID: id, Action: "delete"})
	})
}

// Restore reactivates a soft-deleted invoice. Restoring an active invoice is
// a no-op.
func (s *InvoiceService) Restore(ctx context.Context, actor, id uint) (*billing.Invoice, error) {
	_, err := s.mutate(ctx, id, true, "restore", func(tx *gorm.DB, inv *billing.Invoice) (bool, error) {
		if inv.Active() {
			return false, nil
		}
		inv.Reactivate()
		if err := s.save(tx, actor, inv, inv.Status(), false); err != nil {
			return false, err
		}
		return true, s.audit(tx, models.AuditLog{UserID: actor, EntityID: id, Action: "restore"})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id, false)
}

// History lists the audit entries of an invoice, oldest first.
func (s *InvoiceService) History(ctx context.Context, id uint) ([]models.AuditLog, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.load(db, id, true); err != nil {
		return nil, err
	}
	var entries []models.AuditLog
	err := db.Where("entity_type = ? AND entity_id = ?", auditEntityInvoice, id).
		Order("id").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list invoice history: %w", err)
	}
	return entries, nil
}

// UpdateOverdueInvoices moves every active EMISE invoice whose due date has
// passed to EN_RETARD and records one system history entry (actor 0) per
// invoice, in a single transaction. Re-running it changes nothing.
func (s *InvoiceService) UpdateOverdueInvoices(ctx context.Context) (int64, error) {
	today := s.Today()
	now := s.now()
	var swept int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.Invoice{}).
			Where("status = ? AND due_date < ? AND active = ?", string(billing.StatusIssued), today, true)
		if tx.Dialector.Name() == "postgres" {
			// lock the selected rows so the update below hits exactly them
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var ids []uint
		if err := q.Order("id").Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("select overdue invoices: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		issued := string(billing.StatusIssued)
		res := search.New("invoices").
			Where(search.In("id", ids), search.Eq("status", &issued)).
			Apply(tx.Model(&models.Invoice{})).
			Updates(map[string]any{
				"status":     string(billing.StatusOverdue),
				"updated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("mark overdue: %w", res.Error)
		}
		if res.RowsAffected != int64(len(ids)) {
			return fmt.Errorf("mark overdue: %d of %d rows updated: %w", res.RowsAffected, len(ids), errStaleStatus)
		}
		entries := make([]models.AuditLog, len(ids))
		for i, id := range ids {
			entries[i] = models.AuditLog{
				EntityType: auditEntityInvoice,
				EntityID:   id,
				Action:     "status",
				Field:      "status",
				OldValue:   string(billing.StatusIssued),
				NewValue:   string(billing.StatusOverdue),
				Comment:    overdueComment,
				CreatedAt:  now,
			}
		}
		if err := tx.Create(&entries).Error; err != nil {
			return fmt.Errorf("write overdue history: %w", err)
		}
		swept = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("overdue sweep: %w", err)
	}
	s.log.Info().Int64("count", swept).Time("today", today).Msg("overdue sweep done")
	return swept, nil
}

// overdueComment marks history entries written by the sweep.
const overdueComment = "échéance dépassée"

// mutate loads one invoice inside a transaction and runs fn on it. fn writes
// through save, whose conditional update fails with errStaleStatus when a
// concurrent writer moved the invoice first; the whole step is then retried
// on fresh state.
func (s *InvoiceService) mutate(ctx context.Context, id uint, includeInactive bool, op string,
	fn func(tx *gorm.DB, inv *billing.Invoice) (bool, error)) (bool, error) {
	var (
		changed bool
		seen    billing.Status
	)
	for attempt := 1; ; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			rec, err := s.load(tx, id, includeInactive)
			if err != nil {
				return err
			}
			inv := rec.ToDomain()
			seen = inv.Status()
			changed, err = fn(tx, inv)
			return err
		})
		if !errors.Is(err, errStaleStatus) {
			return changed, err
		}
		if attempt >= maxRaceRetries {
			s.log.Warn().Uint("invoice_id", id).Str("op", op).Msg("gave up after concurrent updates")
			return false, &billing.StateError{Op: op, Status: seen}
		}
		s.log.Debug().Uint("invoice_id", id).Int("attempt", attempt).Msg("lost race, retrying")
	}
}

func (s *InvoiceService) load(db *gorm.DB, id uint, includeInactive bool) (*models.Invoice, error) {
	var rec models.Invoice
	q := db.Preload("Lines", orderLines)
	if !includeInactive {
		q = q.Where("active = ?", true)
	}
	err := q.First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &billing.NotFoundError{Entity: "invoice", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load invoice %d: %w", id, err)
	}
	return &rec, nil
}

func orderLines(db *gorm.DB) *gorm.DB { return db.Order("position") }

// save writes the aggregate back, conditioned on the status it was loaded
// with. Lines are rewritten only when replaceLines is set.
func (s *InvoiceService) save(tx *gorm.DB, actor uint, inv *billing.Invoice, expect billing.Status, replaceLines bool) error {
	rec := models.InvoiceFromDomain(inv)
	res := tx.Model(&models.Invoice{}).
		Where("id = ? AND status = ?", rec.ID, string(expect)).
		Updates(map[string]any{
			"number":          rec.Number,
			"company_id":      rec.CompanyID,
			"ship_id":         rec.ShipID,
			"issue_date":      rec.IssueDate,
			"due_date":        rec.DueDate,
			"tax_rate":        rec.TaxRate,
			"subtotal":        rec.Subtotal,
			"tax_amount":      rec.TaxAmount,
			"total":           rec.Total,
			"total_secondary": rec.TotalSecondary,
			"status":          rec.Status,
			"notes":           rec.Notes,
			"active":          rec.Active,
			"updated_by":      actor,
			"updated_at":      s.now(),
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) && rec.Number != nil {
			return &billing.UniquenessError{Number: *rec.Number, Attempts: 1}
		}
		return fmt.Errorf("save invoice %d: %w", rec.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return errStaleStatus
	}
	if !replaceLines {
		return nil
	}
	if err := tx.Where("invoice_id = ?", rec.ID).Delete(&models.InvoiceLine{}).Error; err != nil {
		return fmt.Errorf("delete invoice %d lines: %w", rec.ID, err)
	}
	if len(rec.Lines) == 0 {
		return nil
	}
	if err := tx.Create(&rec.Lines).Error; err != nil {
		return fmt.Errorf("create invoice %d lines: %w", rec.ID, err)
	}
	return nil
}

const auditEntityInvoice = "invoice"

func (s *InvoiceService) audit(tx *gorm.DB, e models.AuditLog) error {
	e.EntityType = auditEntityInvoice
	return writeAudit(tx, s.now(), e)
}

func writeAudit(tx *gorm.DB, at time.Time, e models.AuditLog) error {
	e.CreatedAt = at
	if err := tx.Create(&e).Error; err != nil {
		return fmt.Errorf("write audit %s %d: %w", e.EntityType, e.EntityID, err)
	}
	return nil
}
