package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/diewo77/maritime-billing/internal/billing"
	"github.com/diewo77/maritime-billing/internal/models"
	"github.com/diewo77/maritime-billing/internal/optional"
	"github.com/diewo77/maritime-billing/internal/services"
	"github.com/diewo77/maritime-billing/validation"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

func money(d decimal.Decimal) string { return billing.RoundMoney(d).StringFixed(billing.MoneyPlaces) }

func moneyPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := money(*d)
	return &s
}

func formatDate(t time.Time) string { return t.Format(DateLayout) }

// parseDate records field=invalid_date on v when s is malformed.
func parseDate(field, s string, v validation.Violations) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		v.Add(field, "invalid_date")
		return time.Time{}
	}
	return t
}

type lineRequest struct {
	OperationID        uint             `json:"operation_id"`
	Description        string           `json:"description"`
	Quantity           decimal.Decimal  `json:"quantity"`
	UnitPrice          decimal.Decimal  `json:"unit_price"`
	UnitPriceSecondary *decimal.Decimal `json:"unit_price_secondary"`
}

func linesFromRequest(in []lineRequest) []billing.LineItem {
	out := make([]billing.LineItem, len(in))
	for i, l := range in {
		out[i] = billing.LineItem{
			OperationID:        l.OperationID,
			Description:        l.Description,
			Quantity:           l.Quantity,
			UnitPrice:          l.UnitPrice,
			UnitPriceSecondary: l.UnitPriceSecondary,
		}
	}
	return out
}

type createInvoiceRequest struct {
	CompanyID uint             `json:"company_id"`
	ShipID    uint             `json:"ship_id"`
	IssueDate string           `json:"issue_date"`
	DueDate   string           `json:"due_date"`
	TaxRate   *decimal.Decimal `json:"tax_rate"`
	Lines     []lineRequest    `json:"lines"`
	Notes     string           `json:"notes"`
}

func (req createInvoiceRequest) draft(defaultTax decimal.Decimal) (billing.Draft, validation.Violations) {
	v := make(validation.Violations)
	d := billing.Draft{
		CompanyID: req.CompanyID,
		ShipID:    req.ShipID,
		IssueDate: parseDate("issue_date", req.IssueDate, v),
		DueDate:   parseDate("due_date", req.DueDate, v),
		TaxRate:   defaultTax,
		Lines:     linesFromRequest(req.Lines),
		Notes:     req.Notes,
	}
	if req.TaxRate != nil {
		d.TaxRate = *req.TaxRate
	}
	return d, v
}

// patchInvoiceRequest keeps absent keys apart from explicit nulls. Only
// notes may be cleared with null.
type patchInvoiceRequest struct {
	CompanyID optional.Field[uint]            `json:"company_id"`
	ShipID    optional.Field[uint]            `json:"ship_id"`
	IssueDate optional.Field[string]          `json:"issue_date"`
	DueDate   optional.Field[string]          `json:"due_date"`
	TaxRate   optional.Field[decimal.Decimal] `json:"tax_rate"`
	Lines     optional.Field[[]lineRequest]   `json:"lines"`
	Notes     optional.Field[string]          `json:"notes"`
}

func notNull[T any](field string, f optional.Field[T], v validation.Violations) *T {
	if f.Set && f.Null {
		v.Add(field, "must_not_be_null")
		return nil
	}
	return f.Ptr()
}

func (req patchInvoiceRequest) patch() (billing.Patch, validation.Violations) {
	v := make(validation.Violations)
	p := billing.Patch{
		CompanyID: notNull("company_id", req.CompanyID, v),
		ShipID:    notNull("ship_id", req.ShipID, v),
		TaxRate:   notNull("tax_rate", req.TaxRate, v),
	}
	if s := notNull("issue_date", req.IssueDate, v); s != nil {
		t := parseDate("issue_date", *s, v)
		p.IssueDate = &t
	}
	if s := notNull("due_date", req.DueDate, v); s != nil {
		t := parseDate("due_date", *s, v)
		p.DueDate = &t
	}
	if ls := notNull("lines", req.Lines, v); ls != nil {
		lines := linesFromRequest(*ls)
		p.Lines = &lines
	}
	if req.Notes.Set {
		notes := req.Notes.Value
		p.Notes = &notes
	}
	if v.Empty() && p.Empty() {
		v.Add("body", "no_changes")
	}
	return p, v
}

// parseStatus reads a wire status; blank is "required", unknown is "invalid".
func parseStatus(field, s string, v validation.Violations) (billing.Status, bool) {
	if s == "" {
		v.Add(field, "required")
		return "", false
	}
	st, err := billing.ParseStatus(s)
	if err != nil {
		v.Add(field, "invalid")
		return "", false
	}
	return st, true
}

type statusRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

func (req statusRequest) target() (billing.Status, validation.Violations) {
	v := make(validation.Violations)
	st, _ := parseStatus("status", req.Status, v)
	return st, v
}

type batchRequest struct {
	IDs     []uint `json:"ids"`
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

func (req batchRequest) target() (billing.Status, validation.Violations) {
	return statusRequest{Status: req.Status}.target()
}

type lineResponse struct {
	ID                 uint    `json:"id"`
	OperationID        uint    `json:"operation_id"`
	Description        string  `json:"description"`
	Quantity           string  `json:"quantity"`
	UnitPrice          string  `json:"unit_price"`
	UnitPriceSecondary *string `json:"unit_price_secondary,omitempty"`
	Total              string  `json:"total"`
}

type invoiceResponse struct {
	ID                 uint             `json:"id"`
	Number             string           `json:"number,omitempty"`
	CompanyID          uint             `json:"company_id"`
	ShipID             uint             `json:"ship_id"`
	IssueDate          string           `json:"issue_date"`
	DueDate            string           `json:"due_date"`
	TaxRate            string           `json:"tax_rate"`
	Lines              []lineResponse   `json:"lines"`
	Subtotal           string           `json:"subtotal"`
	TaxAmount          string           `json:"tax_amount"`
	Total              string           `json:"total"`
	TotalSecondary     *string          `json:"total_secondary,omitempty"`
	Status             billing.Status   `json:"status"`
	AllowedTransitions []billing.Status `json:"allowed_transitions"`
	Editable           bool             `json:"editable"`
	Overdue            bool             `json:"overdue"`
	Notes              string           `json:"notes"`
	Active             bool             `json:"active"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
	CreatedBy          uint             `json:"created_by"`
	UpdatedBy          uint             `json:"updated_by"`
}

func toInvoiceResponse(inv *billing.Invoice, today time.Time) invoiceResponse {
	a := inv.Amounts()
	lines := inv.Lines()
	out := invoiceResponse{
		ID:                 inv.ID(),
		Number:             inv.Number(),
		CompanyID:          inv.CompanyID(),
		ShipID:             inv.ShipID(),
		IssueDate:          formatDate(inv.IssueDate()),
		DueDate:            formatDate(inv.DueDate()),
		TaxRate:            inv.TaxRate().StringFixed(2),
		Lines:              make([]lineResponse, len(lines)),
		Subtotal:           money(a.Subtotal),
		TaxAmount:          money(a.Tax),
		Total:              money(a.Total),
		TotalSecondary:     moneyPtr(a.TotalSecondary),
		Status:             inv.Status(),
		AllowedTransitions: inv.Status().AllowedTransitions(),
		Editable:           inv.IsEditable(),
		Overdue:            inv.IsOverdue(today),
		Notes:              inv.Notes(),
		Active:             inv.Active(),
		CreatedAt:          inv.Audit().CreatedAt,
		UpdatedAt:          inv.Audit().UpdatedAt,
		CreatedBy:          inv.Audit().CreatedBy,
		UpdatedBy:          inv.Audit().UpdatedBy,
	}
	for i, l := range lines {
		out.Lines[i] = lineResponse{
			ID:                 l.ID,
			OperationID:        l.OperationID,
			Description:        l.Description,
			Quantity:           l.Quantity.String(),
			UnitPrice:          l.UnitPrice.String(),
			UnitPriceSecondary: decimalString(l.UnitPriceSecondary),
			Total:              money(l.Total()),
		}
	}
	return out
}

func decimalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

type pageResponse[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

type historyResponse struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	Action    string    `json:"action"`
	Field     string    `json:"field,omitempty"`
	OldValue  string    `json:"old_value,omitempty"`
	NewValue  string    `json:"new_value,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toHistory(entries []models.AuditLog) []historyResponse {
	out := make([]historyResponse, len(entries))
	for i, e := range entries {
		out[i] = historyResponse{
			ID:        e.ID,
			UserID:    e.UserID,
			Action:    e.Action,
			Field:     e.Field,
			OldValue:  e.OldValue,
			NewValue:  e.NewValue,
			Comment:   e.Comment,
			CreatedAt: e.CreatedAt,
		}
	}
	return out
}

type batchFailureResponse struct {
	ID    uint   `json:"id"`
	Error string `json:"error"`
}

type batchResponse struct {
	Affected int                    `json:"affected"`
	Failures []batchFailureResponse `json:"failures"`
	Pending  []uint                 `json:"pending,omitempty"`
}

func toBatchResponse(res services.BatchResult) batchResponse {
	out := batchResponse{
		Affected: res.Affected,
		Failures: make([]batchFailureResponse, len(res.Failures)),
		Pending:  res.Pending,
	}
	for i, f := range res.Failures {
		out.Failures[i] = batchFailureResponse{ID: f.ID, Error: errorCode(f.Err)}
	}
	return out
}

type statsResponse struct {
	Count       int64           `json:"count"`
	Revenue     string          `json:"revenue"`
	Outstanding string          `json:"outstanding"`
	ByStatus    []statusBucket  `json:"by_status"`
	ByCompany   []companyBucket `json:"by_company"`
	ByMonth     []monthBucket   `json:"by_month"`
}

type statusBucket struct {
	Status billing.Status `json:"status"`
	Count  int64          `json:"count"`
	Total  string         `json:"total"`
}

type companyBucket struct {
	CompanyID   uint   `json:"company_id"`
	CompanyName string `json:"company_name"`
	Count       int64  `json:"count"`
	Total       string `json:"total"`
}

type monthBucket struct {
	Year  int    `json:"year"`
	Month int    `json:"month"`
	Count int64  `json:"count"`
	Total string `json:"total"`
}

func toStatsResponse(st services.Stats) statsResponse {
	out := statsResponse{
		Count:       st.Count,
		Revenue:     money(st.Revenue),
		Outstanding: money(st.Outstanding),
		ByStatus:    make([]statusBucket, len(st.ByStatus)),
		ByCompany:   make([]companyBucket, len(st.ByCompany)),
		ByMonth:     make([]monthBucket, len(st.ByMonth)),
	}
	for i, s := range st.ByStatus {
		out.ByStatus[i] = statusBucket{Status: s.Status, Count: s.Count, Total: money(s.Total)}
	}
	for i, c := range st.ByCompany {
		out.ByCompany[i] = companyBucket{CompanyID: c.CompanyID, CompanyName: c.CompanyName, Count: c.Count, Total: money(c.Total)}
	}
	for i, m := range st.ByMonth {
		out.ByMonth[i] = monthBucket{Year: m.Year, Month: int(m.Month), Count: m.Count, Total: money(m.Total)}
	}
	return out
}

type createExpenseRequest struct {
	Reference   string          `json:"reference"`
	SupplierID  uint            `json:"supplier_id"`
	ShipID      *uint           `json:"ship_id"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	ExpenseDate string          `json:"expense_date"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

func (req createExpenseRequest) input() (services.ExpenseInput, validation.Violations) {
	v := make(validation.Violations)
	return services.ExpenseInput{
		Reference:   req.Reference,
		SupplierID:  req.SupplierID,
		ShipID:      req.ShipID,
		Category:    req.Category,
		Description: req.Description,
		ExpenseDate: parseDate("expense_date", req.ExpenseDate, v),
		Amount:      req.Amount,
		Currency:    req.Currency,
	}, v
}

type expenseResponse struct {
	ID          uint      `json:"id"`
	Reference   string    `json:"reference"`
	SupplierID  uint      `json:"supplier_id"`
	ShipID      *uint     `json:"ship_id,omitempty"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	ExpenseDate string    `json:"expense_date"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   uint      `json:"created_by"`
}

func toExpenseResponse(e *models.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		Reference:   e.Reference,
		SupplierID:  e.SupplierID,
		ShipID:      e.ShipID,
		Category:    e.Category,
		Description: e.Description,
		ExpenseDate: formatDate(e.ExpenseDate),
		Amount:      money(e.Amount),
		Currency:    e.Currency,
		Active:      e.Active,
		CreatedAt:   e.CreatedAt,
		CreatedBy:   e.CreatedBy,
	}
}
