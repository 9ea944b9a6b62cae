package handlers

import (
	"net/http"

	core "taskmarket-backend/core/marketplace"
	"taskmarket-backend/metrics"
	"taskmarket-backend/models"
	"taskmarket-backend/services"
)

// EscrowHandler handles escrow custody requests
type EscrowHandler struct {
	*BaseHandler
	engine     *core.Engine
	fundingSvc *services.FundingService
}

// NewEscrowHandler creates a new escrow handler
func NewEscrowHandler(engine *core.Engine, fundingSvc *services.FundingService) *EscrowHandler {
	return &EscrowHandler{BaseHandler: NewBaseHandler(), engine: engine, fundingSvc: fundingSvc}
}

// HandleEscrow reads the escrow record for a task.
func (h *EscrowHandler) HandleEscrow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendMethodNotAllowed(w)
		return
	}

	taskAddr, err := h.addressQuery(r, "task")
	if err != nil {
		h.sendBadRequest(w, err.Error())
		return
	}

	escrow, err := h.engine.Escrow(r.Context(), taskAddr)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, escrow)
}

// HandleFundEscrow locks the accepted bid amount into escrow.
func (h *EscrowHandler) HandleFundEscrow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendMethodNotAllowed(w)
		return
	}

	var req models.FundEscrowRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendBadRequest(w, "invalid JSON body")
		return
	}

	escrow, err := h.engine.FundEscrow(r.Context(), req.Caller, req.Task, req.Bid, req.ClientHolding, req.Mint)
	metrics.RecordOperation("fund_escrow", err)
	if err != nil {
		h.sendError(w, err)
		return
	}
	metrics.RecordEscrowFunded(escrow.TotalAmount)
	h.sendSuccess(w, escrow)
}

// HandleCompleteMilestone marks a milestone as delivered.
func (h *EscrowHandler) HandleCompleteMilestone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendMethodNotAllowed(w)
		return
	}

	var req models.CompleteMilestoneRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendBadRequest(w, "invalid JSON body")
		return
	}

	task, err := h.engine.CompleteMilestone(r.Context(), req.Caller, req.Task, req.Milestone)
	metrics.RecordOperation("complete_milestone", err)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, task)
}

// HandleReleasePayment pays one completed milestone to the freelancer.
func (h *EscrowHandler) HandleReleasePayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendMethodNotAllowed(w)
		return
	}

	var req models.ReleasePaymentRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendBadRequest(w, "invalid JSON body")
		return
	}

	task, escrow, err := h.engine.ReleasePayment(r.Context(), req.Caller, req.Task, req.FreelancerHolding, req.Milestone)
	metrics.RecordOperation("release_payment", err)
	if err != nil {
		h.sendError(w, err)
		return
	}
	if req.Milestone >= 0 && req.Milestone < len(task.Milestones) {
		metrics.RecordEscrowReleased(task.Milestones[req.Milestone].Amount)
	}
	h.sendSuccess(w, map[string]interface{}{"task": task, "escrow": escrow})
}

// HandleRequestRefund returns unreleased funds to the client.
func (h *EscrowHandler) HandleRequestRefund(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendMethodNotAllowed(w)
		return
	}

	var req models.RequestRefundRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendBadRequest(w, "invalid JSON body")
		return
	}

	escrow, refunded, err := h.engine.RequestRefund(r.Context(), req.Caller, req.Task, req.ClientHolding)
	metrics.RecordOperation("request_refund", err)
	if err != nil {
		h.sendError(w, err)
		return
	}
	metrics.RecordEscrowRefunded(refunded)
	h.sendSuccess(w, map[string]interface{}{"escrow": escrow, "refunded": refunded})
}

// HandleFundingInfo reports how to fund the escrow for a task.
func (h *EscrowHandler) HandleFundingInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendMethodNotAllowed(w)
		return
	}

	taskAddr, err := h.addressQuery(r, "task")
	if err != nil {
		h.sendBadRequest(w, err.Error())
		return
	}

	info, err := h.fundingSvc.FundingInfo(r.Context(), taskAddr)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, info)
}

// HandleFundingQR renders the funding payment URI as a PNG QR code.
func (h *EscrowHandler) HandleFundingQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendMethodNotAllowed(w)
		return
	}

	taskAddr, err := h.addressQuery(r, "task")
	if err != nil {
		h.sendBadRequest(w, err.Error())
		return
	}

	pngData, err := h.fundingSvc.FundingQRCode(r.Context(), taskAddr)
	if err != nil {
		h.sendError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(pngData)
}
