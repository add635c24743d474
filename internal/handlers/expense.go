package handlers

import (
	"net/http"

	"github.com/diewo77/maritime-billing/httpx"
	"github.com/diewo77/maritime-billing/internal/auth"
	"github.com/diewo77/maritime-billing/internal/services"
)

type ExpenseHandler struct {
	svc *services.ExpenseService
}

func NewExpenseHandler(svc *services.ExpenseService) *ExpenseHandler {
	return &ExpenseHandler{svc: svc}
}

func (h *ExpenseHandler) Register(mux *http.ServeMux, mutating func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /api/expenses", h.List)
	mux.Handle("POST /api/expenses", mutating(http.HandlerFunc(h.Create)))
	mux.HandleFunc("GET /api/expenses/{id}", h.Get)
	mux.Handle("DELETE /api/expenses/{id}", mutating(http.HandlerFunc(h.Delete)))
}

// Create: POST /api/expenses
func (h *ExpenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	var req createExpenseRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	in, v := req.input()
	if !v.Empty() {
		writeViolations(w, v)
		return
	}
	exp, err := h.svc.Create(r.Context(), actor, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toExpenseResponse(exp))
}

// Get: GET /api/expenses/{id}
func (h *ExpenseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	exp, err := h.svc.Get(r.Context(), id, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toExpenseResponse(exp))
}

// List: GET /api/expenses
func (h *ExpenseHandler) List(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	f := services.ExpenseFilter{
		Query:      q.text("q"),
		SupplierID: q.id("supplier_id"),
		ShipID:     q.id("ship_id"),
		Category:   q.text("category"),
		DateFrom:   q.day("date_from"),
		DateTo:     q.day("date_to"),
		MinAmount:  q.amount("min_amount"),
		MaxAmount:  q.amount("max_amount"),
		Month:      q.number("month"),
		Year:       q.number("year"),
		Active:     q.flag("active"),
		Page:       q.page(),
		Sort:       q.sort(),
	}
	if !q.v.Empty() {
		writeViolations(w, q.v)
		return
	}
	page, err := h.svc.Search(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := pageResponse[expenseResponse]{
		Items:    make([]expenseResponse, len(page.Items)),
		Total:    page.Total,
		Page:     page.Page.Number,
		PageSize: page.Page.Size,
	}
	for i := range page.Items {
		out.Items[i] = toExpenseResponse(&page.Items[i])
	}
	httpx.JSON(w, http.StatusOK, out)
}

// Delete: DELETE /api/expenses/{id}
func (h *ExpenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	if err := h.svc.Delete(r.Context(), actor, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
