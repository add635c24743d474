package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/diewo77/maritime-billing/httpx"
	"github.com/diewo77/maritime-billing/internal/auth"
	"github.com/diewo77/maritime-billing/internal/billing"
	"github.com/diewo77/maritime-billing/internal/services"
)

// InvoiceHandler exposes the invoice service over JSON.
type InvoiceHandler struct {
	svc        *services.InvoiceService
	defaultTax decimal.Decimal
}

func NewInvoiceHandler(svc *services.InvoiceService, defaultTax decimal.Decimal) *InvoiceHandler {
	return &InvoiceHandler{svc: svc, defaultTax: defaultTax}
}

// Register mounts the invoice routes. Mutations go through mutating, which
// rejects requests without an actor.
func (h *InvoiceHandler) Register(mux *http.ServeMux, mutating func(http.Handler) http.Handler) {
	m := func(f http.HandlerFunc) http.Handler { return mutating(f) }

	mux.HandleFunc("GET /api/invoices", h.List)
	mux.Handle("POST /api/invoices", m(h.Create))
	mux.HandleFunc("GET /api/invoices/stats", h.Stats)
	mux.Handle("POST /api/invoices/batch/status", m(h.BatchStatus))
	mux.Handle("POST /api/invoices/batch/delete", m(h.BatchDelete))
	mux.Handle("POST /api/invoices/overdue/sweep", m(h.SweepOverdue))
	mux.HandleFunc("GET /api/invoices/{id}", h.Get)
	mux.Handle("PATCH /api/invoices/{id}", m(h.Update))
	mux.Handle("DELETE /api/invoices/{id}", m(h.Delete))
	mux.Handle("POST /api/invoices/{id}/restore", m(h.Restore))
	mux.Handle("POST /api/invoices/{id}/status", m(h.ChangeStatus))
	mux.HandleFunc("GET /api/invoices/{id}/history", h.History)
}

func (h *InvoiceHandler) respond(w http.ResponseWriter, status int, inv *billing.Invoice) {
	httpx.JSON(w, status, toInvoiceResponse(inv, h.svc.Today()))
}

// Create: POST /api/invoices
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	d, v := req.draft(h.defaultTax)
	if !v.Empty() {
		writeViolations(w, v)
		return
	}
	inv, err := h.svc.Create(r.Context(), actor, d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, inv)
}

// Get: GET /api/invoices/{id}?include_inactive=true
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	q := newQueryParams(r)
	inactive := q.flag("include_inactive")
	if !q.v.Empty() {
		writeViolations(w, q.v)
		return
	}
	inv, err := h.svc.Get(r.Context(), id, inactive != nil && *inactive)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, inv)
}

// List: GET /api/invoices
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	f := services.InvoiceFilter{
		Query:     q.text("q"),
		CompanyID: q.id("company_id"),
		ShipID:    q.id("ship_id"),
		IssueFrom: q.day("issue_from"),
		IssueTo:   q.day("issue_to"),
		MinAmount: q.amount("min_amount"),
		MaxAmount: q.amount("max_amount"),
		Month:     q.number("month"),
		Year:      q.number("year"),
		Active:    q.flag("active"),
		Page:      q.page(),
		Sort:      q.sort(),
		Status:    q.status("status"),
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
	today := h.svc.Today()
	out := pageResponse[invoiceResponse]{
		Items:    make([]invoiceResponse, len(page.Items)),
		Total:    page.Total,
		Page:     page.Page.Number,
		PageSize: page.Page.Size,
	}
	for i, inv := range page.Items {
		out.Items[i] = toInvoiceResponse(inv, today)
	}
	httpx.JSON(w, http.StatusOK, out)
}

// Update: PATCH /api/invoices/{id}
func (h *InvoiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	var req patchInvoiceRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	p, v := req.patch()
	if !v.Empty() {
		writeViolations(w, v)
		return
	}
	inv, err := h.svc.Update(r.Context(), actor, id, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, inv)
}

// ChangeStatus: POST /api/invoices/{id}/status
func (h *InvoiceHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	to, v := req.target()
	if !v.Empty() {
		writeViolations(w, v)
		return
	}
	inv, err := h.svc.ChangeStatus(r.Context(), actor, id, to, req.Comment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, inv)
}

// Delete: DELETE /api/invoices/{id}
func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

// Restore: POST /api/invoices/{id}/restore
func (h *InvoiceHandler) Restore(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	inv, err := h.svc.Restore(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, inv)
}

// History: GET /api/invoices/{id}/history
func (h *InvoiceHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	entries, err := h.svc.History(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": toHistory(entries)})
}

// BatchStatus: POST /api/invoices/batch/status
func (h *InvoiceHandler) BatchStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	var req batchRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	to, v := req.target()
	if !v.Empty() {
		writeViolations(w, v)
		return
	}
	res, err := h.svc.BatchChangeStatus(r.Context(), actor, req.IDs, to, req.Comment)
	writeBatch(w, r, res, err)
}

// BatchDelete: POST /api/invoices/batch/delete
func (h *InvoiceHandler) BatchDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())
	var req struct {
		IDs []uint `json:"ids"`
	}
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	res, err := h.svc.BatchDelete(r.Context(), actor, req.IDs)
	writeBatch(w, r, res, err)
}

// writeBatch reports an interrupted batch as 503 batch_interrupted carrying
// the partial result, so callers can retry the pending ids.
func writeBatch(w http.ResponseWriter, r *http.Request, res services.BatchResult, err error) {
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, toBatchResponse(res))
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		httpx.JSONError(w, http.StatusServiceUnavailable, "batch_interrupted", toBatchResponse(res))
	default:
		writeError(w, r, err)
	}
}

// Stats: GET /api/invoices/stats?year=&company_id=
func (h *InvoiceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	f := services.StatsFilter{Year: q.number("year"), CompanyID: q.id("company_id")}
	if !q.v.Empty() {
		writeViolations(w, q.v)
		return
	}
	st, err := h.svc.Stats(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStatsResponse(st))
}

// SweepOverdue: POST /api/invoices/overdue/sweep
func (h *InvoiceHandler) SweepOverdue(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.UpdateOverdueInvoices(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": n})
}
