package billing

import (
	"time"

	"github.com/diewo77/maritime-billing/validation"
	"github.com/shopspring/decimal"
)

const (
	MaxNotesLength       = 2000
	MaxDescriptionLength = 500
)

// Storage scale of the numeric inputs. Finer values would be rounded by the
// database and no longer match the persisted totals.
const (
	taxRateScale  = 2
	quantityScale = 3
	priceScale    = 4
)

var (
	maxTaxRate  = decimal.NewFromInt(100)
	maxQuantity = validation.ColumnMax(14, quantityScale)
	// totals are numeric(18,2)
	maxAmount = validation.ColumnMax(18, MoneyPlaces)
)

// LineItem is one billable entry of an invoice, priced in the primary currency
// and optionally in the secondary one.
type LineItem struct {
	ID                 uint
	OperationID        uint
	Description        string
	Quantity           decimal.Decimal
	UnitPrice          decimal.Decimal
	UnitPriceSecondary *decimal.Decimal
}

// Total is quantity × unit price, unrounded.
func (l LineItem) Total() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// TotalSecondary is nil when the line has no secondary price.
func (l LineItem) TotalSecondary() *decimal.Decimal {
	if l.UnitPriceSecondary == nil {
		return nil
	}
	t := l.Quantity.Mul(*l.UnitPriceSecondary)
	return &t
}

func (l LineItem) calc() Line {
	return Line{Quantity: l.Quantity, UnitPrice: l.UnitPrice, UnitPriceSecondary: l.UnitPriceSecondary}
}

// Draft holds the inputs of a new invoice.
type Draft struct {
	CompanyID uint
	ShipID    uint
	IssueDate time.Time
	DueDate   time.Time
	TaxRate   decimal.Decimal
	Lines     []LineItem
	Notes     string
}

// Patch holds a partial update; nil fields are left unchanged. A non-nil
// Lines replaces the whole set.
type Patch struct {
	CompanyID *uint
	ShipID    *uint
	IssueDate *time.Time
	DueDate   *time.Time
	TaxRate   *decimal.Decimal
	Lines     *[]LineItem
	Notes     *string
}

// Empty reports a patch that changes nothing.
func (p Patch) Empty() bool {
	return p.CompanyID == nil && p.ShipID == nil && p.IssueDate == nil && p.DueDate == nil &&
		p.TaxRate == nil && p.Lines == nil && p.Notes == nil
}

// Audit is stamped by the persistence layer from an explicit actor id.
type Audit struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy uint
	UpdatedBy uint
}

// State is the flat snapshot exchanged with storage.
type State struct {
	ID        uint
	Number    string
	CompanyID uint
	ShipID    uint
	IssueDate time.Time
	DueDate   time.Time
	TaxRate   decimal.Decimal
	Lines     []LineItem
	Status    Status
	Notes     string
	Active    bool
	Audit     Audit
}

// Invoice is the aggregate root. Amounts are recomputed on every mutation and
// status moves only through ChangeStatus; the overdue sweep updates stored rows.
type Invoice struct {
	id        uint
	number    string
	companyID uint
	shipID    uint
	issueDate time.Time
	dueDate   time.Time
	taxRate   decimal.Decimal
	lines     []LineItem
	amounts   Amounts
	status    Status
	notes     string
	active    bool
	audit     Audit
}

// NewInvoice validates d and returns an active draft without a number.
func NewInvoice(d Draft) (*Invoice, error) {
	d.IssueDate = Day(d.IssueDate)
	d.DueDate = Day(d.DueDate)
	if err := NewValidationError(ValidateDraft(d)); err != nil {
		return nil, err
	}
	inv := &Invoice{
		companyID: d.CompanyID,
		shipID:    d.ShipID,
		issueDate: d.IssueDate,
		dueDate:   d.DueDate,
		taxRate:   d.TaxRate,
		lines:     cloneLines(d.Lines),
		status:    StatusDraft,
		notes:     d.Notes,
		active:    true,
	}
	inv.recalculate()
	return inv, nil
}

// Restore rebuilds an aggregate from storage. Amounts are derived from the
// lines, never read back.
func Restore(s State) *Invoice {
	inv := &Invoice{
		id:        s.ID,
		number:    s.Number,
		companyID: s.CompanyID,
		shipID:    s.ShipID,
		issueDate: Day(s.IssueDate),
		dueDate:   Day(s.DueDate),
		taxRate:   s.TaxRate,
		lines:     cloneLines(s.Lines),
		status:    s.Status,
		notes:     s.Notes,
		active:    s.Active,
		audit:     s.Audit,
	}
	inv.recalculate()
	return inv
}

// ValidateDraft runs every field check and returns all violations.
func ValidateDraft(d Draft) validation.Violations {
	v := make(validation.Violations)
	validation.RequiredID("company_id", d.CompanyID, v)
	validation.RequiredID("ship_id", d.ShipID, v)
	validation.RequiredDate("issue_date", d.IssueDate, v)
	validation.RequiredDate("due_date", d.DueDate, v)
	validation.NotBefore("due_date", "before_issue_date", d.DueDate, d.IssueDate, v)
	validation.RangeDecimal("tax_rate", d.TaxRate, decimal.Zero, maxTaxRate, v)
	validation.MaxScale("tax_rate", d.TaxRate, taxRateScale, v)
	validation.MaxLen("notes", d.Notes, MaxNotesLength, v)
	if len(d.Lines) == 0 {
		v.Add("lines", "required")
	}
	for i, l := range d.Lines {
		v.Merge(validation.Index("lines", i), ValidateLine(l))
	}
	if v.Empty() {
		a := Compute(lineCalcs(d.Lines), d.TaxRate)
		validation.MaxDecimal("lines", a.Total, maxAmount, v)
		if a.TotalSecondary != nil {
			validation.MaxDecimal("lines", *a.TotalSecondary, maxAmount, v)
		}
	}
	return v
}

// ValidateLine checks one line item.
func ValidateLine(l LineItem) validation.Violations {
	v := make(validation.Violations)
	validation.RequiredID("operation_id", l.OperationID, v)
	validation.PositiveDecimal("quantity", l.Quantity, v)
	validation.MaxScale("quantity", l.Quantity, quantityScale, v)
	validation.MaxDecimal("quantity", l.Quantity, maxQuantity, v)
	validation.NonNegativeDecimal("unit_price", l.UnitPrice, v)
	validation.Numeric("unit_price", l.UnitPrice, 18, priceScale, v)
	if l.UnitPriceSecondary != nil {
		validation.NonNegativeDecimal("unit_price_secondary", *l.UnitPriceSecondary, v)
		validation.Numeric("unit_price_secondary", *l.UnitPriceSecondary, 18, priceScale, v)
	}
	validation.MaxLen("description", l.Description, MaxDescriptionLength, v)
	return v
}

// Update applies p when the invoice is editable. Nothing is mutated when an
// error is returned.
func (inv *Invoice) Update(p Patch) error {
	if !inv.IsEditable() {
		return &StateError{Op: "update", Status: inv.status}
	}
	d := Draft{
		CompanyID: inv.companyID,
		ShipID:    inv.shipID,
		IssueDate: inv.issueDate,
		DueDate:   inv.dueDate,
		TaxRate:   inv.taxRate,
		Lines:     inv.lines,
		Notes:     inv.notes,
	}
	if p.CompanyID != nil {
		d.CompanyID = *p.CompanyID
	}
	if p.ShipID != nil {
		d.ShipID = *p.ShipID
	}
	if p.IssueDate != nil {
		d.IssueDate = Day(*p.IssueDate)
	}
	if p.DueDate != nil {
		d.DueDate = Day(*p.DueDate)
	}
	if p.TaxRate != nil {
		d.TaxRate = *p.TaxRate
	}
	if p.Lines != nil {
		d.Lines = *p.Lines
	}
	if p.Notes != nil {
		d.Notes = *p.Notes
	}
	if err := NewValidationError(ValidateDraft(d)); err != nil {
		return err
	}
	inv.companyID = d.CompanyID
	inv.shipID = d.ShipID
	inv.issueDate = d.IssueDate
	inv.dueDate = d.DueDate
	inv.taxRate = d.TaxRate
	inv.lines = cloneLines(d.Lines)
	inv.notes = d.Notes
	inv.recalculate()
	return nil
}

// ChangeStatus moves the invoice to `to` if the table allows it. Leaving
// BROUILLON for the first time draws a number from n, keyed on the issue year.
// It reports false for a self transition.
func (inv *Invoice) ChangeStatus(to Status, n Numberer) (bool, error) {
	if err := Transition(inv.status, to); err != nil {
		return false, err
	}
	if inv.status == to {
		return false, nil
	}
	if inv.status == StatusDraft && inv.number == "" {
		if n == nil {
			return false, &StateError{Op: "number", Status: inv.status}
		}
		num, err := n.Next(inv.issueDate.Year())
		if err != nil {
			return false, err
		}
		inv.number = num
	}
	inv.status = to
	return true, nil
}

// SoftDelete deactivates a draft or cancelled invoice.
func (inv *Invoice) SoftDelete() error {
	if !inv.IsDeletable() {
		return &StateError{Op: "delete", Status: inv.status}
	}
	inv.active = false
	return nil
}

// Reactivate undoes SoftDelete.
func (inv *Invoice) Reactivate() {
	inv.active = true
}

func lineCalcs(lines []LineItem) []Line {
	calc := make([]Line, len(lines))
	for i, l := range lines {
		calc[i] = l.calc()
	}
	return calc
}

func (inv *Invoice) recalculate() {
	inv.amounts = Compute(lineCalcs(inv.lines), inv.taxRate)
}

func (inv *Invoice) ID() uint             { return inv.id }
func (inv *Invoice) Number() string       { return inv.number }
func (inv *Invoice) CompanyID() uint      { return inv.companyID }
func (inv *Invoice) ShipID() uint         { return inv.shipID }
func (inv *Invoice) IssueDate() time.Time { return inv.issueDate }
func (inv *Invoice) DueDate() time.Time   { return inv.dueDate }
func (inv *Invoice) TaxRate() decimal.Decimal {
	return inv.taxRate
}
func (inv *Invoice) Lines() []LineItem { return cloneLines(inv.lines) }
func (inv *Invoice) Amounts() Amounts  { return inv.amounts }
func (inv *Invoice) Status() Status    { return inv.status }
func (inv *Invoice) Notes() string     { return inv.notes }
func (inv *Invoice) Active() bool      { return inv.active }
func (inv *Invoice) Audit() Audit      { return inv.audit }

func (inv *Invoice) IsEditable() bool  { return inv.status.Editable() }
func (inv *Invoice) IsDeletable() bool { return inv.status.Deletable() }

func (inv *Invoice) IsOverdue(today time.Time) bool {
	return Overdue(inv.status, inv.dueDate, today)
}

// State snapshots the aggregate for storage.
func (inv *Invoice) State() State {
	return State{
		ID:        inv.id,
		Number:    inv.number,
		CompanyID: inv.companyID,
		ShipID:    inv.shipID,
		IssueDate: inv.issueDate,
		DueDate:   inv.dueDate,
		TaxRate:   inv.taxRate,
		Lines:     cloneLines(inv.lines),
		Status:    inv.status,
		Notes:     inv.notes,
		Active:    inv.active,
		Audit:     inv.audit,
	}
}

func cloneLines(in []LineItem) []LineItem {
	if in == nil {
		return nil
	}
	out := make([]LineItem, len(in))
	for i, l := range in {
		if l.UnitPriceSecondary != nil {
			p := *l.UnitPriceSecondary
			l.UnitPriceSecondary = &p
		}
		out[i] = l
	}
	return out
}
