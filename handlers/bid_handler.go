package handlers

import (
	"net/http"

	core "taskmarket-backend/core/marketplace"
	"taskmarket-backend/metrics"
	"taskmarket-backend/models"
)

// BidHandler handles bid lifecycle requests
type BidHandler struct {
	*BaseHandler
	engine *core.Engine
}

// NewBidHandler creates a new bid handler
func NewBidHandler(engine *core.Engine) *BidHandler {
	return &BidHandler{BaseHandler: NewBaseHandler(), engine: engine}
}

// HandleBids serves GET (read one bid) and POST (submit bid).
func (h *BidHandler) HandleBids(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGetBid(w, r)
	case http.MethodPost:
		h.handleSubmitBid(w, r)
	default:
		h.sendMethodNotAllowed(w)
	}
}

func (h *BidHandler) handleGetBid(w http.ResponseWriter, r *http.Request) {
	addr, err := h.addressQuery(r, "bid")
	if err != nil {
		h.sendBadRequest(w, err.Error())
		return
	}

	bid, err := h.engine.Bid(r.Context(), addr)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, bid)
}

func (h *BidHandler) handleSubmitBid(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitBidRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendBadRequest(w, "invalid JSON body")
		return
	}

	bid, err := h.engine.SubmitBid(r.Context(), req.Caller, req.Task, core.SubmitBidParams{
		Amount:   req.Amount,
		Timeline: req.Timeline,
		Proposal: req.Proposal,
	})
	metrics.RecordOperation("submit_bid", err)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, bid)
}

// HandleAcceptBid accepts a pending bid and moves the task in progress.
func (h *BidHandler) HandleAcceptBid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendMethodNotAllowed(w)
		return
	}

	var req models.BidActionRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendBadRequest(w, "invalid JSON body")
		return
	}

	task, bid, err := h.engine.AcceptBid(r.Context(), req.Caller, req.Task, req.Bid)
	metrics.RecordOperation("accept_bid", err)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, map[string]interface{}{"task": task, "bid": bid})
}

// HandleRejectBid rejects a pending bid.
func (h *BidHandler) HandleRejectBid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendMethodNotAllowed(w)
		return
	}

	var req models.BidActionRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendBadRequest(w, "invalid JSON body")
		return
	}

	bid, err := h.engine.RejectBid(r.Context(), req.Caller, req.Task, req.Bid)
	metrics.RecordOperation("reject_bid", err)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, bid)
}

// HandleWithdrawBid withdraws the caller's pending bid and reclaims the
// record.
func (h *BidHandler) HandleWithdrawBid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendMethodNotAllowed(w)
		return
	}

	var req models.WithdrawBidRequest
	if err := h.parseJSON(r, &req); err != nil {
		h.sendBadRequest(w, "invalid JSON body")
		return
	}

	err := h.engine.WithdrawBid(r.Context(), req.Caller, req.Bid)
	metrics.RecordOperation("withdraw_bid", err)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendSuccess(w, map[string]interface{}{"withdrawn": true})
}
