package handlers

import (
	"net/http"

	core "taskmarket-backend/core/marketplace"
	"taskmarket-backend/metrics"
	"taskmarket-backend/models"
)

// ReputationHandler handles agent profile and review requests
type ReputationHandler struct {
	*BaseHandler
	engine *core.Engine
}

// NewReputationHandler creates a new reputation handler
func NewReputationHandler(engine *core.Engine) *ReputationHandler {
	return &ReputationHandler{BaseHandler: NewBaseHandler(), engine: engine}
}

// HandleProfiles serves GET (read by owner) and POST (initialize).
func (h *ReputationHandler) HandleProfiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGetProfile(w, r)
	case http.MethodPost:
		h.handleInitializeProfile(w, r)
	default:
		h.sendMethodNotAllowed(w)
	}
}

func (h *ReputationHandler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	owner, err := h.addressQuery(r, "owner")
	if err != nil {
		h.sendBadRequest(w, err.Error())
		return
	}

	profile, err := h.engine.Profile(r.Context(), owner)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, models.NewProfileView(profile))
}

func (h *ReputationHandler) handleInitializeProfile(w http.ResponseWriter, r *http.Request) {
	var req models.InitializeProfileRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendBadRequest(w, "invalid JSON body")
		return
	}

	profile, err := h.engine.InitializeAgentProfile(r.Context(), req.Caller, req.Name)
	metrics.RecordOperation("initialize_agent_profile", err)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, profile)
}

// HandleReviews serves GET (read one review) and POST (submit).
func (h *ReputationHandler) HandleReviews(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGetReview(w, r)
	case http.MethodPost:
		h.handleSubmitReview(w, r)
	default:
		h.sendMethodNotAllowed(w)
	}
}

func (h *ReputationHandler) handleGetReview(w http.ResponseWriter, r *http.Request) {
	addr, err := h.addressQuery(r, "review")
	if err != nil {
		h.sendBadRequest(w, err.Error())
		return
	}

	review, err := h.engine.Review(r.Context(), addr)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, review)
}

func (h *ReputationHandler) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitReviewRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendBadRequest(w, "invalid JSON body")
		return
	}

	review, err := h.engine.SubmitReview(r.Context(), req.Caller, req.Task, core.SubmitReviewParams{
		Reviewee:   req.Reviewee,
		Rating:     req.Rating,
		ReviewText: req.ReviewText,
	})
	metrics.RecordOperation("submit_review", err)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, review)
}
