package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	core "taskmarket-backend/core/marketplace"
	"taskmarket-backend/models"
	storage "taskmarket-backend/storage/marketplace"
	"taskmarket-backend/token"
)

// BaseHandler provides common functionality for all handlers
type BaseHandler struct{}

// NewBaseHandler creates a new base handler
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// sendJSON sends a JSON response
func (h *BaseHandler) sendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// sendSuccess sends a success response
func (h *BaseHandler) sendSuccess(w http.ResponseWriter, data interface{}) {
	h.sendJSON(w, http.StatusOK, models.NewSuccessResponse(data))
}

// sendError maps a domain error onto the HTTP error envelope.
func (h *BaseHandler) sendError(w http.ResponseWriter, err error) {
	status, code := classifyError(err)
	h.sendJSON(w, status, models.NewErrorResponse(code, err.Error(), status))
}

// sendBadRequest reports a malformed request body or query.
func (h *BaseHandler) sendBadRequest(w http.ResponseWriter, message string) {
	h.sendJSON(w, http.StatusBadRequest,
		models.NewErrorResponse("bad_request", message, http.StatusBadRequest))
}

// sendMethodNotAllowed rejects unsupported HTTP methods.
func (h *BaseHandler) sendMethodNotAllowed(w http.ResponseWriter) {
	h.sendJSON(w, http.StatusMethodNotAllowed,
		models.NewErrorResponse("method_not_allowed", "Method not allowed", http.StatusMethodNotAllowed))
}

// parseJSON parses JSON from request
func (h *BaseHandler) parseJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// addressQuery reads a required address parameter from the query string.
func (h *BaseHandler) addressQuery(r *http.Request, name string) (core.Address, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return core.Address{}, errors.New(name + " query parameter is required")
	}
	return core.ParseAddress(raw)
}

// classifyError picks the HTTP status and stable error code for a
// domain error.
func classifyError(err error) (int, string) {
	var mpErr *core.Error
	if errors.As(err, &mpErr) {
		switch mpErr.Kind {
		case core.KindValidation:
			return http.StatusBadRequest, mpErr.Code
		case core.KindAuthorization:
			return http.StatusForbidden, mpErr.Code
		case core.KindState:
			return http.StatusConflict, mpErr.Code
		case core.KindArithmetic:
			return http.StatusUnprocessableEntity, mpErr.Code
		}
	}

	switch {
	case errors.Is(err, storage.ErrTaskNotFound),
		errors.Is(err, storage.ErrBidNotFound),
		errors.Is(err, storage.ErrEscrowNotFound),
		errors.Is(err, storage.ErrProfileNotFound),
		errors.Is(err, storage.ErrReviewNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, storage.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, token.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, token.ErrAccountNotFound),
		errors.Is(err, token.ErrMintMismatch),
		errors.Is(err, token.ErrInvalidAuthority):
		return http.StatusBadRequest, "token_account_error"
	}

	return http.StatusInternalServerError, "internal_error"
}

// HealthHandler handles health check requests
type HealthHandler struct {
	*BaseHandler
	healthService healthService
}

type healthService interface {
	GetHealthStatus() *models.HealthResponse
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(svc healthService) *HealthHandler {
	return &HealthHandler{BaseHandler: NewBaseHandler(), healthService: svc}
}

// HandleHealth handles health check requests
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendMethodNotAllowed(w)
		return
	}
	h.sendSuccess(w, h.healthService.GetHealthStatus())
}
