package models

import (
	core "taskmarket-backend/core/marketplace"
)

// SuccessResponse is the standard envelope for successful API calls.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorDetail carries the machine-readable error payload.
type ErrorDetail struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ErrorResponse is the standard envelope for failed API calls.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// NewSuccessResponse wraps data in the success envelope.
func NewSuccessResponse(data interface{}) SuccessResponse {
	return SuccessResponse{Success: true, Data: data}
}

// NewErrorResponse builds the error envelope.
func NewErrorResponse(errCode, message string, httpCode int) ErrorResponse {
	return ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Error:   errCode,
			Message: message,
			Code:    httpCode,
		},
	}
}

// MilestoneInput is one milestone in a task creation request.
type MilestoneInput struct {
	Description string `json:"description"`
	Amount      uint64 `json:"amount"`
}

// PostTaskRequest creates a new task listing.
type PostTaskRequest struct {
	Caller      core.Address     `json:"caller"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Budget      uint64           `json:"budget"`
	Milestones  []MilestoneInput `json:"milestones"`
	Deadline    int64            `json:"deadline"`
}

// UpdateTaskRequest patches an open task. Nil fields are left
// unchanged; the title is fixed at creation.
type UpdateTaskRequest struct {
	Caller      core.Address `json:"caller"`
	Task        core.Address `json:"task"`
	Description *string      `json:"description,omitempty"`
	Budget      *uint64      `json:"budget,omitempty"`
	Deadline    *int64       `json:"deadline,omitempty"`
}

// CancelTaskRequest cancels a task before any funds are escrowed.
type CancelTaskRequest struct {
	Caller core.Address `json:"caller"`
	Task   core.Address `json:"task"`
}

// SubmitBidRequest places a bid on an open task.
type SubmitBidRequest struct {
	Caller   core.Address `json:"caller"`
	Task     core.Address `json:"task"`
	Amount   uint64       `json:"amount"`
	Timeline int64        `json:"timeline"`
	Proposal string       `json:"proposal"`
}

// BidActionRequest accepts or rejects a bid on a task.
type BidActionRequest struct {
	Caller core.Address `json:"caller"`
	Task   core.Address `json:"task"`
	Bid    core.Address `json:"bid"`
}

// WithdrawBidRequest withdraws the caller's own pending bid.
type WithdrawBidRequest struct {
	Caller core.Address `json:"caller"`
	Bid    core.Address `json:"bid"`
}

// FundEscrowRequest moves the accepted bid amount into escrow.
type FundEscrowRequest struct {
	Caller        core.Address `json:"caller"`
	Task          core.Address `json:"task"`
	Bid           core.Address `json:"bid"`
	ClientHolding core.Address `json:"client_holding"`
	Mint          core.Address `json:"mint"`
}

// CompleteMilestoneRequest marks a milestone as delivered.
type CompleteMilestoneRequest struct {
	Caller    core.Address `json:"caller"`
	Task      core.Address `json:"task"`
	Milestone int          `json:"milestone_index"`
}

// ReleasePaymentRequest pays a completed milestone to the freelancer.
type ReleasePaymentRequest struct {
	Caller            core.Address `json:"caller"`
	Task              core.Address `json:"task"`
	FreelancerHolding core.Address `json:"freelancer_holding"`
	Milestone         int          `json:"milestone_index"`
}

// RequestRefundRequest returns unreleased escrow funds to the client.
type RequestRefundRequest struct {
	Caller        core.Address `json:"caller"`
	Task          core.Address `json:"task"`
	ClientHolding core.Address `json:"client_holding"`
}

// InitializeProfileRequest creates the caller's agent profile.
type InitializeProfileRequest struct {
	Caller core.Address `json:"caller"`
	Name   string       `json:"name"`
}

// SubmitReviewRequest records a rating for the other party of a
// completed task.
type SubmitReviewRequest struct {
	Caller     core.Address `json:"caller"`
	Task       core.Address `json:"task"`
	Reviewee   core.Address `json:"reviewee"`
	Rating     uint8        `json:"rating"`
	ReviewText string       `json:"review_text"`
}

// CreateHoldingRequest registers a token holding account for an owner.
// InitialBalance is only honored when the dev mint is enabled.
type CreateHoldingRequest struct {
	Owner          core.Address `json:"owner"`
	Mint           core.Address `json:"mint"`
	InitialBalance uint64       `json:"initial_balance,omitempty"`
}

// ProfileView augments a stored profile with its derived average rating.
type ProfileView struct {
	core.AgentProfile
	AverageRating float64 `json:"average_rating"`
}

// NewProfileView computes the average rating for a profile.
func NewProfileView(p core.AgentProfile) ProfileView {
	v := ProfileView{AgentProfile: p}
	if p.RatingCount > 0 {
		v.AverageRating = float64(p.RatingSum) / float64(p.RatingCount)
	}
	return v
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}
