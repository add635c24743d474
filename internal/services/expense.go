package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/maritime-billing/internal/billing"
	"github.com/diewo77/maritime-billing/internal/logger"
	"github.com/diewo77/maritime-billing/internal/models"
	"github.com/diewo77/maritime-billing/internal/search"
	"github.com/diewo77/maritime-billing/validation"
)

const DefaultCurrency = "XOF"

// ExpenseCategories lists the accepted expense categories.
var ExpenseCategories = []string{"CARBURANT", "ENTRETIEN", "FRAIS_PORTUAIRES", "EQUIPAGE", "FOURNITURES", "AUTRE"}

// ExpenseInput holds the fields of a new expense.
type ExpenseInput struct {
	Reference   string
	SupplierID  uint
	ShipID      *uint
	Category    string
	Description string
	ExpenseDate time.Time
	Amount      decimal.Decimal
	Currency    string
}

var maxExpenseAmount = validation.ColumnMax(18, billing.MoneyPlaces)

func (in ExpenseInput) Validate() validation.Violations {
	v := make(validation.Violations)
	validation.Required("reference", in.Reference, v)
	validation.MaxLen("reference", in.Reference, 100, v)
	validation.RequiredID("supplier_id", in.SupplierID, v)
	if in.ShipID != nil {
		validation.RequiredID("ship_id", *in.ShipID, v)
	}
	if !validCategory(in.Category) {
		v.Add("category", "invalid")
	}
	validation.MaxLen("description", in.Description, billing.MaxDescriptionLength, v)
	validation.RequiredDate("expense_date", in.ExpenseDate, v)
	validation.PositiveDecimal("amount", in.Amount, v)
	// le montant est arrondi à 2 décimales, seule la magnitude compte
	validation.MaxDecimal("amount", billing.RoundMoney(in.Amount), maxExpenseAmount, v)
	if in.Currency != "" && len(in.Currency) != 3 {
		v.Add("currency", "invalid")
	}
	return v
}

func validCategory(c string) bool {
	for _, k := range ExpenseCategories {
		if c == k {
			return true
		}
	}
	return false
}

// ExpenseFilter mirrors InvoiceFilter for expenses.
type ExpenseFilter struct {
	Query      *string
	SupplierID *uint
	ShipID     *uint
	Category   *string
	DateFrom   *time.Time
	DateTo     *time.Time
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
	Month      *int
	Year       *int
	Active     *bool
	Page       search.Page
	Sort       search.Sort
}

type ExpensePage struct {
	Items []models.Expense
	Total int64
	Page  search.Page
}

var expenseSorter = search.Sorter{
	Columns: map[string]string{
		"reference":    "expenses.reference",
		"expense_date": "expenses.expense_date",
		"amount":       "expenses.amount",
		"category":     "expenses.category",
		"supplier":     "suppliers.name",
	},
	Default:  search.Sort{Field: "expense_date", Desc: true},
	Tiebreak: "expenses.id",
}

func (f ExpenseFilter) Validate() validation.Violations {
	v := make(validation.Violations)
	if f.Category != nil && !validCategory(*f.Category) {
		v.Add("category", "invalid")
	}
	validatePeriod(f.Month, f.Year, v)
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		v.Add("date_to", "before_date_from")
	}
	if f.MinAmount != nil && f.MaxAmount != nil && f.MaxAmount.LessThan(*f.MinAmount) {
		v.Add("max_amount", "below_min_amount")
	}
	if !expenseSorter.Allowed(f.Sort) {
		v.Add("sort", "unsupported")
	}
	return v
}

func (f ExpenseFilter) builder() *search.Builder {
	return search.New("expenses").Where(
		search.Join("LEFT JOIN suppliers ON suppliers.id = expenses.supplier_id"),
		search.Active("expenses.active", f.Active),
		search.Text(f.Query, "expenses.reference", "expenses.description", "suppliers.name"),
		search.Eq("expenses.supplier_id", f.SupplierID),
		search.Eq("expenses.ship_id", f.ShipID),
		search.Eq("expenses.category", f.Category),
		search.Range("expenses.expense_date", dayPtr(f.DateFrom), dayPtr(f.DateTo)),
		search.Range("expenses.amount", f.MinAmount, f.MaxAmount),
		search.MonthYear("expenses.expense_date", f.Month, f.Year),
	)
}

// ExpenseService records supplier expenses.
type ExpenseService struct {
	db   *gorm.DB
	refs ReferenceLookup
	now  Clock
	log  zerolog.Logger
}

func NewExpenseService(db *gorm.DB, refs ReferenceLookup) *ExpenseService {
	return &ExpenseService{db: db, refs: refs, now: time.Now, log: logger.WithComponent("expenses")}
}

const auditEntityExpense = "expense"

func (s *ExpenseService) Create(ctx context.Context, actor uint, in ExpenseInput) (*models.Expense, error) {
	in.Reference = strings.TrimSpace(in.Reference)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if err := billing.NewValidationError(in.Validate()); err != nil {
		return nil, err
	}
	refs := newRefCheck(ctx, s.refs)
	refs.supplier(in.SupplierID)
	if in.ShipID != nil {
		refs.ship(*in.ShipID)
	}
	if err := refs.result(); err != nil {
		return nil, err
	}
	if in.Currency == "" {
		in.Currency = DefaultCurrency
	}
	now := s.now()
	rec := models.Expense{
		Reference:   in.Reference,
		SupplierID:  in.SupplierID,
		ShipID:      in.ShipID,
		Category:    in.Category,
		Description: in.Description,
		ExpenseDate: billing.Day(in.ExpenseDate),
		Amount:      billing.RoundMoney(in.Amount),
		Currency:    in.Currency,
		Active:      true,
		Audit:       models.Audit{CreatedAt: now, UpdatedAt: now, CreatedBy: actor, UpdatedBy: actor},
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("create expense: %w", err)
		}
		return writeAudit(tx, now, models.AuditLog{UserID: actor, EntityType: auditEntityExpense, EntityID: rec.ID, Action: "create"})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint("expense_id", rec.ID).Uint("actor", actor).Msg("expense created")
	return &rec, nil
}

func (s *ExpenseService) Get(ctx context.Context, id uint, includeInactive bool) (*models.Expense, error) {
	var rec models.Expense
	q := s.db.WithContext(ctx)
	if !includeInactive {
		q = q.Where("active = ?", true)
	}
	err := q.First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &billing.NotFoundError{Entity: "expense", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load expense %d: %w", id, err)
	}
	return &rec, nil
}

func (s *ExpenseService) Search(ctx context.Context, f ExpenseFilter) (ExpensePage, error) {
	if err := billing.NewValidationError(f.Validate()); err != nil {
		return ExpensePage{}, err
	}
	page := search.NewPage(f.Page.Number, f.Page.Size)
	var recs []models.Expense
	total, err := f.builder().Find(s.db.WithContext(ctx), &models.Expense{}, page, expenseSorter.Scope(f.Sort), &recs)
	if err != nil {
		return ExpensePage{}, fmt.Errorf("search expenses: %w", err)
	}
	return ExpensePage{Items: recs, Total: total, Page: page}, nil
}

// Delete soft-deletes an active expense.
func (s *ExpenseService) Delete(ctx context.Context, actor, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Expense{}).
			Where("id = ? AND active = ?", id, true).
			Updates(map[string]any{"active": false, "updated_by": actor, "updated_at": s.now()})
		if res.Error != nil {
			return fmt.Errorf("delete expense %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return &billing.NotFoundError{Entity: "expense", ID: id}
		}
		return writeAudit(tx, s.now(), models.AuditLog{UserID: actor, EntityType: auditEntityExpense, EntityID: id, Action: "delete"})
	})
}
