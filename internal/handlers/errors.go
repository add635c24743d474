package handlers

import (
	"errors"
	"net/http"

	"github.com/diewo77/maritime-billing/httpx"
	"github.com/diewo77/maritime-billing/internal/billing"
	"github.com/diewo77/maritime-billing/internal/logger"
	"github.com/diewo77/maritime-billing/validation"
)

// errorCode is the snake_case code reported for err.
func errorCode(err error) string {
	switch {
	case errors.Is(err, billing.ErrValidation):
		return "validation_failed"
	case errors.Is(err, billing.ErrReferenceNotFound):
		return "reference_not_found"
	case errors.Is(err, billing.ErrState):
		return "invalid_state"
	case errors.Is(err, billing.ErrTransition):
		return "transition_not_allowed"
	case errors.Is(err, billing.ErrUniqueness):
		return "number_conflict"
	case errors.Is(err, billing.ErrNotFound):
		return "not_found"
	default:
		return "internal_error"
	}
}

// writeError maps the billing error taxonomy to a JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve  *billing.ValidationError
		rnf *billing.ReferenceNotFoundError
		se  *billing.StateError
		te  *billing.TransitionError
		ue  *billing.UniquenessError
		nf  *billing.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		httpx.JSONError(w, http.StatusBadRequest, errorCode(err), ve.Fields)
	case errors.As(err, &rnf):
		httpx.JSONError(w, http.StatusUnprocessableEntity, errorCode(err), rnf.Missing)
	case errors.As(err, &se):
		httpx.JSONError(w, http.StatusConflict, errorCode(err), map[string]any{"operation": se.Op, "status": se.Status})
	case errors.As(err, &te):
		httpx.JSONError(w, http.StatusConflict, errorCode(err), map[string]any{
			"from":    te.From,
			"to":      te.To,
			"allowed": te.From.AllowedTransitions(),
		})
	case errors.As(err, &ue):
		httpx.JSONError(w, http.StatusConflict, errorCode(err), map[string]any{"number": ue.Number, "attempts": ue.Attempts})
	case errors.As(err, &nf):
		httpx.JSONError(w, http.StatusNotFound, errorCode(err), map[string]any{"entity": nf.Entity, "id": nf.ID})
	default:
		logger.FromContext(r.Context()).Error().Err(err).
			Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}

func writeViolations(w http.ResponseWriter, v validation.Violations) {
	httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	httpx.JSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
}
