package marketplace

// ErrorKind buckets operation failures. Every failure is raised before
// any mutation, so callers can treat all of these as clean rejections.
type ErrorKind string

const (
	// KindValidation covers input out of declared bounds.
	KindValidation ErrorKind = "validation"
	// KindAuthorization covers callers who are not the required party.
	KindAuthorization ErrorKind = "authorization"
	// KindState covers operations invalid for the current record status.
	KindState ErrorKind = "state"
	// KindArithmetic covers checked add/sub failures. These signal an
	// invariant violation rather than bad caller input.
	KindArithmetic ErrorKind = "arithmetic"
)

// Error is a typed operation failure.
type Error struct {
	Kind ErrorKind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Is matches two marketplace errors by code, so sentinel comparisons
// with errors.Is work across wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func validationErr(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Msg: msg}
}

func authErr(code, msg string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Msg: msg}
}

func stateErr(code, msg string) *Error {
	return &Error{Kind: KindState, Code: code, Msg: msg}
}

func arithmeticErr(code, msg string) *Error {
	return &Error{Kind: KindArithmetic, Code: code, Msg: msg}
}

// Validation failures.
var (
	ErrEmptyTitle              = validationErr("empty_title", "title cannot be empty")
	ErrTitleTooLong            = validationErr("title_too_long", "title too long")
	ErrDescriptionTooLong      = validationErr("description_too_long", "description too long")
	ErrNoMilestones            = validationErr("no_milestones", "task must have at least one milestone")
	ErrTooManyMilestones       = validationErr("too_many_milestones", "too many milestones (max 10)")
	ErrMilestoneDescTooLong    = validationErr("milestone_description_too_long", "milestone description too long")
	ErrMilestoneAmountMismatch = validationErr("milestone_amount_mismatch", "milestone amounts must sum to budget")
	ErrInvalidDeadline         = validationErr("invalid_deadline", "deadline must be in the future")
	ErrInvalidBudget           = validationErr("invalid_budget", "budget must be greater than 0")
	ErrInvalidAmount           = validationErr("invalid_amount", "amount must be greater than 0")
	ErrInvalidTimeline         = validationErr("invalid_timeline", "timeline must be greater than 0")
	ErrTimelineExceedsDeadline = validationErr("timeline_exceeds_deadline", "timeline exceeds task deadline")
	ErrProposalTooLong         = validationErr("proposal_too_long", "proposal too long")
	ErrInvalidMilestoneIndex   = validationErr("invalid_milestone_index", "invalid milestone index")
	ErrNameTooLong             = validationErr("name_too_long", "name too long")
	ErrInvalidRating           = validationErr("invalid_rating", "rating must be between 1 and 5")
	ErrReviewTooLong           = validationErr("review_too_long", "review too long")
)

// Authorization failures.
var (
	ErrNotTaskOwner   = authErr("not_task_owner", "caller is not the task owner")
	ErrNotBidder      = authErr("not_bidder", "caller is not the bidder")
	ErrNotFreelancer  = authErr("not_freelancer", "caller is not the accepted freelancer")
	ErrOwnBid         = authErr("own_bid", "task owner cannot bid on own task")
	ErrNotParticipant = authErr("not_participant", "caller is neither client nor freelancer for this task")
	ErrSelfReview     = authErr("self_review", "reviewer and reviewee must differ")
)

// State failures.
var (
	ErrTaskNotOpen               = stateErr("task_not_open", "task is not open")
	ErrTaskNotInProgress         = stateErr("task_not_in_progress", "task is not in progress")
	ErrTaskNotCompleted          = stateErr("task_not_completed", "task is not completed")
	ErrTaskNotCancellable        = stateErr("task_not_cancellable", "task can no longer be cancelled")
	ErrEscrowExists              = stateErr("escrow_exists", "task already has an escrow")
	ErrNoAcceptedBid             = stateErr("no_accepted_bid", "task has no accepted bid")
	ErrBidNotPending             = stateErr("bid_not_pending", "bid is not pending")
	ErrBidNotAccepted            = stateErr("bid_not_accepted", "bid is not the accepted bid")
	ErrBidTaskMismatch           = stateErr("bid_task_mismatch", "bid does not reference this task")
	ErrNoEscrow                  = stateErr("no_escrow", "task has no escrow")
	ErrMilestoneNotCompleted     = stateErr("milestone_not_completed", "milestone not completed")
	ErrMilestoneAlreadyPaid      = stateErr("milestone_already_paid", "milestone already paid")
	ErrMilestoneAlreadyCompleted = stateErr("milestone_already_completed", "milestone already completed")
	ErrRefundNotAllowed          = stateErr("refund_not_allowed", "refund not allowed for this task state")
)

// Arithmetic failures.
var (
	ErrNoFundsToRefund   = arithmeticErr("no_funds_to_refund", "no funds available for refund")
	ErrAmountOverflow    = arithmeticErr("amount_overflow", "checked addition overflowed")
	ErrAmountUnderflow   = arithmeticErr("amount_underflow", "checked subtraction underflowed")
	ErrTimelineOverflow  = arithmeticErr("timeline_overflow", "timeline arithmetic overflowed")
	ErrOverReleased      = arithmeticErr("over_released", "release would exceed escrow total")
	ErrRatingSumOverflow = arithmeticErr("rating_sum_overflow", "rating counters overflowed")
)
