package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/maritime-billing/internal/billing"
	"github.com/diewo77/maritime-billing/internal/models"
	"github.com/diewo77/maritime-billing/internal/search"
	"github.com/diewo77/maritime-billing/validation"
)

// InvoiceFilter is a search descriptor. Nil fields do not constrain the
// result. Active defaults to true.
type InvoiceFilter struct {
	Query     *string
	CompanyID *uint
	ShipID    *uint
	Status    *billing.Status
	IssueFrom *time.Time
	IssueTo   *time.Time
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Month     *int
	Year      *int
	Active    *bool
	Page      search.Page
	Sort      search.Sort
}

// InvoicePage is one page of search results.
type InvoicePage struct {
	Items []*billing.Invoice
	Total int64
	Page  search.Page
}

var invoiceSorter = search.Sorter{
	Columns: map[string]string{
		"number":     "invoices.number",
		"issue_date": "invoices.issue_date",
		"due_date":   "invoices.due_date",
		"total":      "invoices.total",
		"status":     "invoices.status",
		"created_at": "invoices.created_at",
		"company":    "companies.name",
		"ship":       "ships.name",
	},
	Default:  search.Sort{Field: "issue_date", Desc: true},
	Tiebreak: "invoices.id",
}

// Validate reports malformed filter fields.
func (f InvoiceFilter) Validate() validation.Violations {
	v := make(validation.Violations)
	if f.Status != nil && !f.Status.Valid() {
		v.Add("status", "invalid")
	}
	validatePeriod(f.Month, f.Year, v)
	if f.IssueFrom != nil && f.IssueTo != nil && f.IssueTo.Before(*f.IssueFrom) {
		v.Add("issue_to", "before_issue_from")
	}
	if f.MinAmount != nil && f.MaxAmount != nil && f.MaxAmount.LessThan(*f.MinAmount) {
		v.Add("max_amount", "below_min_amount")
	}
	if !invoiceSorter.Allowed(f.Sort) {
		v.Add("sort", "unsupported")
	}
	return v
}

func validatePeriod(month, year *int, v validation.Violations) {
	if month != nil {
		if *month < 1 || *month > 12 {
			v.Add("month", "out_of_range")
		} else if year == nil {
			v.Add("month", "requires_year")
		}
	}
	if year != nil && (*year < 1900 || *year > 9999) {
		v.Add("year", "out_of_range")
	}
}

func (f InvoiceFilter) builder() *search.Builder {
	return search.New("invoices").Where(
		search.Join("LEFT JOIN companies ON companies.id = invoices.company_id"),
		search.Join("LEFT JOIN ships ON ships.id = invoices.ship_id"),
		search.Active("invoices.active", f.Active),
		search.Text(f.Query, "invoices.number", "invoices.notes", "companies.name", "ships.name"),
		search.Eq("invoices.company_id", f.CompanyID),
		search.Eq("invoices.ship_id", f.ShipID),
		search.Eq("invoices.status", statusString(f.Status)),
		search.Range("invoices.issue_date", dayPtr(f.IssueFrom), dayPtr(f.IssueTo)),
		search.Range("invoices.total", f.MinAmount, f.MaxAmount),
		search.MonthYear("invoices.issue_date", f.Month, f.Year),
	)
}

// Search runs f and returns one page of invoices in the same shape as Get.
func (s *InvoiceService) Search(ctx context.Context, f InvoiceFilter) (InvoicePage, error) {
	if err := billing.NewValidationError(f.Validate()); err != nil {
		return InvoicePage{}, err
	}
	page := search.NewPage(f.Page.Number, f.Page.Size)
	var recs []models.Invoice
	total, err := f.builder().Find(s.db.WithContext(ctx), &models.Invoice{}, page,
		invoiceSorter.Scope(f.Sort), &recs, preloadLines)
	if err != nil {
		return InvoicePage{}, fmt.Errorf("search invoices: %w", err)
	}
	items := make([]*billing.Invoice, len(recs))
	for i := range recs {
		items[i] = recs[i].ToDomain()
	}
	return InvoicePage{Items: items, Total: total, Page: page}, nil
}

func preloadLines(db *gorm.DB) *gorm.DB { return db.Preload("Lines", orderLines) }

func statusString(s *billing.Status) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := billing.Day(*t)
	return &d
}
