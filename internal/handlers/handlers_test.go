package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/diewo77/maritime-billing/internal/auth"
	"github.com/diewo77/maritime-billing/internal/models"
	"github.com/diewo77/maritime-billing/internal/services"
)

func setupTestServer(t *testing.T) http.Handler {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	fixtures := []any{
		&models.Company{ID: 1, Name: "Dakar Shipping", Active: true},
		&models.Ship{ID: 1, Name: "Aminata", CompanyID: 1, Active: true},
		&models.Operation{ID: 1, Code: "PIL", Label: "Pilotage", DefaultUnitPrice: decimal.NewFromInt(150000), Active: true},
		&models.Operation{ID: 2, Code: "REM", Label: "Remorquage", DefaultUnitPrice: decimal.NewFromInt(50000), Active: true},
		&models.Supplier{ID: 1, Name: "Total Energies Marine", Active: true},
	}
	for _, f := range fixtures {
		if err := db.Create(f).Error; err != nil {
			t.Fatalf("fixture %T: %v", f, err)
		}
	}

	lookup := services.NewGormLookup(db)
	clock := func() time.Time { return time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC) }
	invoices := services.NewInvoiceService(db, lookup, services.NewNumberGenerator(3), services.WithClock(clock))

	mux := http.NewServeMux()
	NewInvoiceHandler(invoices, decimal.NewFromInt(18)).Register(mux, auth.RequireActor)
	NewExpenseHandler(services.NewExpenseService(db, lookup)).Register(mux, auth.RequireActor)
	health := NewHealthHandler(db)
	mux.HandleFunc("GET /healthz", health.Ready)

	return auth.NewSessions("test", auth.TrustHeader(true)).Middleware(mux)
}

const scenarioBody = `{
	"company_id": 1, "ship_id": 1,
	"issue_date": "2024-01-01", "due_date": "2024-01-10",
	"tax_rate": "18",
	"lines": [
		{"operation_id": 1, "description": "Pilotage", "quantity": 2, "unit_price": "150000"},
		{"operation_id": 2, "description": "Remorquage", "quantity": "1", "unit_price": 50000}
	],
	"notes": "escale"
}`

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(auth.ActorHeader, "7")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return out
}

type errorBody struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details"`
}

func createScenario(t *testing.T, h http.Handler) invoiceResponse {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/invoices", scenarioBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201 got %d body=%s", w.Code, w.Body.String())
	}
	return decode[invoiceResponse](t, w)
}

func TestCreateInvoiceJSON(t *testing.T) {
	h := setupTestServer(t)
	inv := createScenario(t, h)

	if inv.Subtotal != "350000.00" || inv.TaxAmount != "63000.00" || inv.Total != "413000.00" {
		t.Errorf("amounts = %s / %s / %s", inv.Subtotal, inv.TaxAmount, inv.Total)
	}
	if inv.Status != "BROUILLON" || inv.Number != "" || !inv.Editable {
		t.Errorf("status = %s number = %q editable = %v", inv.Status, inv.Number, inv.Editable)
	}
	if inv.IssueDate != "2024-01-01" || inv.DueDate != "2024-01-10" {
		t.Errorf("dates = %s %s", inv.IssueDate, inv.DueDate)
	}
	if inv.CreatedBy != 7 {
		t.Errorf("created_by = %d, want 7", inv.CreatedBy)
	}
	if len(inv.Lines) != 2 || inv.Lines[0].Total != "300000.00" {
		t.Errorf("lines = %+v", inv.Lines)
	}
}

func TestCreateInvoiceErrors(t *testing.T) {
	h := setupTestServer(t)
	cases := []struct {
		name   string
		body   string
		status int
		code   string
		field  string
	}{
		{"malformed json", `{"company_id":`, http.StatusBadRequest, "invalid_json", ""},
		{"unknown field", `{"client_id":1}`, http.StatusBadRequest, "invalid_json", ""},
		{"bad date", strings.Replace(scenarioBody, "2024-01-10", "10/01/2024", 1), http.StatusBadRequest, "validation_failed", "due_date"},
		{"due before issue", strings.Replace(scenarioBody, "2024-01-10", "2023-12-01", 1), http.StatusBadRequest, "validation_failed", "due_date"},
		{"no lines", `{"company_id":1,"ship_id":1,"issue_date":"2024-01-01","due_date":"2024-01-10","lines":[]}`, http.StatusBadRequest, "validation_failed", "lines"},
		{"unknown ship", strings.Replace(scenarioBody, `"ship_id": 1`, `"ship_id": 9`, 1), http.StatusUnprocessableEntity, "reference_not_found", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/invoices", tc.body)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d body=%s", w.Code, tc.status, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), `"error":"`+tc.code+`"`) {
				t.Errorf("body = %s, want code %s", w.Body.String(), tc.code)
			}
			if tc.field != "" {
				if _, ok := decode[errorBody](t, w).Details[tc.field]; !ok {
					t.Errorf("details = %s, want field %s", w.Body.String(), tc.field)
				}
			}
		})
	}
}

func TestMutationsRequireActor(t *testing.T) {
	h := setupTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/invoices", strings.NewReader(scenarioBody))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", w.Code)
	}
	// reads stay open
	req = httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("list without actor: %d", w.Code)
	}
}

func TestPatchInvoice(t *testing.T) {
	h := setupTestServer(t)
	inv := createScenario(t, h)
	path := fmt.Sprintf("/api/invoices/%d", inv.ID)

	w := do(t, h, http.MethodPatch, path, `{"notes": null, "tax_rate": "0"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", w.Code, w.Body.String())
	}
	got := decode[invoiceResponse](t, w)
	if got.Notes != "" || got.Total != "350000.00" || len(got.Lines) != 2 {
		t.Errorf("patched = notes %q total %s lines %d", got.Notes, got.Total, len(got.Lines))
	}

	w = do(t, h, http.MethodPatch, path, `{"company_id": null}`)
	if w.Code != http.StatusBadRequest || decode[errorBody](t, w).Details["company_id"] != "must_not_be_null" {
		t.Errorf("null company: %d %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodPatch, path, `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty patch: %d %s", w.Code, w.Body.String())
	}
	if body := decode[errorBody](t, w); body.Error != "validation_failed" || body.Details["body"] != "no_changes" {
		t.Errorf("empty patch body = %s", w.Body.String())
	}

	// Scenario D
	if w := do(t, h, http.MethodPost, path+"/status", `{"status":"EMISE"}`); w.Code != http.StatusOK {
		t.Fatalf("emit: %d %s", w.Code, w.Body.String())
	}
	w = do(t, h, http.MethodPatch, path, `{"notes": "late"}`)
	if w.Code != http.StatusConflict || !strings.Contains(w.Body.String(), "invalid_state") {
		t.Errorf("patch issued: %d %s", w.Code, w.Body.String())
	}
}

func TestChangeStatusJSON(t *testing.T) {
	h := setupTestServer(t)
	inv := createScenario(t, h)
	path := fmt.Sprintf("/api/invoices/%d/status", inv.ID)

	w := do(t, h, http.MethodPost, path, `{"status":"EMISE","comment":"envoyée"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("emit: %d %s", w.Code, w.Body.String())
	}
	got := decode[invoiceResponse](t, w)
	if got.Number != "FAC-2024-000001" {
		t.Errorf("number = %q", got.Number)
	}
	if !got.Overdue {
		t.Error("due 2024-01-10 should be overdue on 2024-02-01")
	}

	do(t, h, http.MethodPost, path, `{"status":"PAYEE"}`)
	w = do(t, h, http.MethodPost, path, `{"status":"ANNULEE"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("cancel paid: %d %s", w.Code, w.Body.String())
	}
	body := decode[errorBody](t, w)
	if body.Error != "transition_not_allowed" || body.Details["from"] != "PAYEE" {
		t.Errorf("body = %s", w.Body.String())
	}

	w = do(t, h, http.MethodGet, fmt.Sprintf("/api/invoices/%d/history", inv.ID), "")
	hist := decode[struct {
		Items []historyResponse `json:"items"`
	}](t, w)
	if len(hist.Items) != 3 || hist.Items[1].Comment != "envoyée" || hist.Items[1].NewValue != "EMISE" {
		t.Errorf("history = %+v", hist.Items)
	}
}

func TestGetAndDeleteInvoice(t *testing.T) {
	h := setupTestServer(t)
	inv := createScenario(t, h)
	path := fmt.Sprintf("/api/invoices/%d", inv.ID)

	if w := do(t, h, http.MethodGet, "/api/invoices/abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/invoices/999", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown id: %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, path, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, h, http.MethodGet, path, ""); w.Code != http.StatusNotFound {
		t.Errorf("deleted get: %d", w.Code)
	}
	w := do(t, h, http.MethodGet, path+"?include_inactive=true", "")
	if w.Code != http.StatusOK || decode[invoiceResponse](t, w).Active {
		t.Errorf("include_inactive: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, h, http.MethodPost, path+"/restore", ""); w.Code != http.StatusOK {
		t.Errorf("restore: %d %s", w.Code, w.Body.String())
	}
}

func TestListInvoicesJSON(t *testing.T) {
	h := setupTestServer(t)
	first := createScenario(t, h)
	createScenario(t, h)
	do(t, h, http.MethodPost, fmt.Sprintf("/api/invoices/%d/status", first.ID), `{"status":"EMISE"}`)

	w := do(t, h, http.MethodGet, "/api/invoices?status=EMISE&min_amount=100000&max_amount=500000", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	page := decode[pageResponse[invoiceResponse]](t, w)
	if page.Total != 1 || len(page.Items) != 1 || page.Items[0].ID != first.ID {
		t.Errorf("page = %+v", page)
	}
	if page.PageSize != 20 || page.Page != 1 {
		t.Errorf("paging = %d/%d", page.Page, page.PageSize)
	}

	w = do(t, h, http.MethodGet, "/api/invoices?q=aminata&sort=-total&page_size=1", "")
	page = decode[pageResponse[invoiceResponse]](t, w)
	if page.Total != 2 || len(page.Items) != 1 {
		t.Errorf("text search page = total %d items %d", page.Total, len(page.Items))
	}

	cases := map[string]string{
		"/api/invoices?month=3":            "month",
		"/api/invoices?company_id=x":       "company_id",
		"/api/invoices?issue_from=2024-13": "issue_from",
		"/api/invoices?status=PAID":        "status",
		"/api/invoices?sort=secret":        "sort",
	}
	for path, field := range cases {
		w := do(t, h, http.MethodGet, path, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: %d", path, w.Code)
			continue
		}
		if _, ok := decode[errorBody](t, w).Details[field]; !ok {
			t.Errorf("%s: details = %s", path, w.Body.String())
		}
	}
}

func TestBatchStatsAndSweep(t *testing.T) {
	h := setupTestServer(t)
	a := createScenario(t, h)
	b := createScenario(t, h)

	w := do(t, h, http.MethodPost, "/api/invoices/batch/status",
		fmt.Sprintf(`{"ids":[%d,%d,404],"status":"EMISE"}`, a.ID, b.ID))
	if w.Code != http.StatusOK {
		t.Fatalf("batch: %d %s", w.Code, w.Body.String())
	}
	res := decode[batchResponse](t, w)
	if res.Affected != 2 || len(res.Failures) != 1 || res.Failures[0].Error != "not_found" {
		t.Errorf("batch = %+v", res)
	}

	w = do(t, h, http.MethodPost, "/api/invoices/overdue/sweep", "")
	if got := decode[map[string]int](t, w)["updated"]; got != 2 {
		t.Errorf("sweep updated = %d, want 2", got)
	}

	w = do(t, h, http.MethodGet, "/api/invoices/stats?year=2024", "")
	st := decode[statsResponse](t, w)
	if st.Count != 2 || st.Outstanding != "826000.00" || st.Revenue != "0.00" {
		t.Errorf("stats = %+v", st)
	}
	if len(st.ByMonth) != 1 || st.ByMonth[0].Month != 1 {
		t.Errorf("by month = %+v", st.ByMonth)
	}

	w = do(t, h, http.MethodPost, "/api/invoices/batch/delete", fmt.Sprintf(`{"ids":[%d]}`, a.ID))
	res = decode[batchResponse](t, w)
	if res.Affected != 0 || len(res.Failures) != 1 || res.Failures[0].Error != "invalid_state" {
		t.Errorf("batch delete = %+v", res)
	}
}

func TestExpensesJSON(t *testing.T) {
	h := setupTestServer(t)
	w := do(t, h, http.MethodPost, "/api/expenses",
		`{"reference":"BL-1","supplier_id":1,"ship_id":1,"category":"CARBURANT","expense_date":"2024-02-03","amount":"1250.5"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create expense: %d %s", w.Code, w.Body.String())
	}
	exp := decode[expenseResponse](t, w)
	if exp.Amount != "1250.50" || exp.Currency != "XOF" || exp.ExpenseDate != "2024-02-03" {
		t.Errorf("expense = %+v", exp)
	}

	w = do(t, h, http.MethodPost, "/api/expenses",
		`{"reference":"BL-2","supplier_id":4,"category":"CARBURANT","expense_date":"2024-02-03","amount":"10"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown supplier: %d %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodGet, "/api/expenses?q=total&category=CARBURANT", "")
	page := decode[pageResponse[expenseResponse]](t, w)
	if page.Total != 1 || page.Items[0].Reference != "BL-1" {
		t.Errorf("expenses = %+v", page)
	}

	path := fmt.Sprintf("/api/expenses/%d", exp.ID)
	if w := do(t, h, http.MethodDelete, path, ""); w.Code != http.StatusNoContent {
		t.Errorf("delete expense: %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, path, ""); w.Code != http.StatusNotFound {
		t.Errorf("get deleted expense: %d", w.Code)
	}
}

func TestHealthReady(t *testing.T) {
	h := setupTestServer(t)
	w := do(t, h, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"database":"ok"`) {
		t.Errorf("healthz: %d %s", w.Code, w.Body.String())
	}
}

func TestStatusDecoding(t *testing.T) {
	h := setupTestServer(t)
	inv := createScenario(t, h)
	single := fmt.Sprintf("/api/invoices/%d/status", inv.ID)
	batch := "/api/invoices/batch/status"

	tests := []struct {
		name, path, body, want string
	}{
		{"unknown status", single, `{"status":"PAID"}`, "invalid"},
		{"missing status", single, `{"comment":"x"}`, "required"},
		{"batch unknown status", batch, fmt.Sprintf(`{"ids":[%d],"status":"emise"}`, inv.ID), "invalid"},
		{"batch missing status", batch, fmt.Sprintf(`{"ids":[%d]}`, inv.ID), "required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
			}
			body := decode[errorBody](t, w)
			if body.Error != "validation_failed" || body.Details["status"] != tt.want {
				t.Errorf("body = %s, want status=%s", w.Body.String(), tt.want)
			}
		})
	}

	w := do(t, h, http.MethodGet, fmt.Sprintf("/api/invoices/%d", inv.ID), "")
	if got := decode[invoiceResponse](t, w); got.Status != "BROUILLON" {
		t.Errorf("rejected requests changed status to %s", got.Status)
	}
}

func TestBatchInterrupted(t *testing.T) {
	h := setupTestServer(t)
	inv := createScenario(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/invoices/batch/delete",
		strings.NewReader(fmt.Sprintf(`{"ids":[%d]}`, inv.ID))).WithContext(ctx)
	req.Header.Set(auth.ActorHeader, "7")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	body := decode[struct {
		Error   string        `json:"error"`
		Details batchResponse `json:"details"`
	}](t, w)
	if body.Error != "batch_interrupted" || body.Details.Affected != 0 ||
		len(body.Details.Pending) != 1 || body.Details.Pending[0] != inv.ID {
		t.Errorf("body = %s", w.Body.String())
	}
}
