package marketplace

import (
	"context"
	"log"
)

// SubmitBidParams are the inputs to SubmitBid.
type SubmitBidParams struct {
	Amount   uint64 `json:"amount"`
	Timeline int64  `json:"timeline"`
	Proposal string `json:"proposal"`
}

// SubmitBid creates a pending bid by the caller against an open task.
// The owner cannot bid on their own task, and the bid timeline must fit
// inside the task deadline without overflowing the time arithmetic.
func (e *Engine) SubmitBid(ctx context.Context, caller, taskAddr Address, p SubmitBidParams) (Bid, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now().Unix()

	task, err := e.loadTask(ctx, taskAddr)
	if err != nil {
		return Bid{}, err
	}
	if task.Status != TaskOpen {
		return Bid{}, ErrTaskNotOpen
	}
	if task.Owner == caller {
		return Bid{}, ErrOwnBid
	}
	if err := validateProposal(p.Proposal); err != nil {
		return Bid{}, err
	}
	if p.Amount == 0 {
		return Bid{}, ErrInvalidAmount
	}
	if err := validateBidTiming(now, p.Timeline, task.Deadline); err != nil {
		return Bid{}, err
	}

	bid := Bid{
		Addr:      NewAddress(),
		Task:      task.Addr,
		Bidder:    caller,
		Amount:    p.Amount,
		Timeline:  p.Timeline,
		Proposal:  p.Proposal,
		Status:    BidPending,
		CreatedAt: now,
	}

	if err := e.ledger.Commit(ctx, ChangeSet{{Op: OpCreate, Record: bid}}); err != nil {
		return Bid{}, err
	}

	log.Printf("Bid submitted for task %s: %s", task.Addr, bid.Addr)
	return bid, nil
}

// AcceptBid accepts a pending bid on the caller's open task. The task
// leaves Open here, which is what makes acceptance exclusive: a second
// AcceptBid finds the task in progress and fails. Other pending bids
// are not touched; rejecting them is the caller's cleanup.
func (e *Engine) AcceptBid(ctx context.Context, caller, taskAddr, bidAddr Address) (Task, Bid, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now().Unix()

	task, err := e.loadTask(ctx, taskAddr)
	if err != nil {
		return Task{}, Bid{}, err
	}
	if err := requireTaskOwner(task, caller); err != nil {
		return Task{}, Bid{}, err
	}
	if task.Status != TaskOpen {
		return Task{}, Bid{}, ErrTaskNotOpen
	}

	bid, err := e.loadBid(ctx, bidAddr)
	if err != nil {
		return Task{}, Bid{}, err
	}
	if err := requireBidOnTask(bid, task); err != nil {
		return Task{}, Bid{}, err
	}
	if bid.Status != BidPending {
		return Task{}, Bid{}, ErrBidNotPending
	}

	bid.Status = BidAccepted
	accepted := bid.Addr
	task.AcceptedBid = &accepted
	task.Status = TaskInProgress
	task.UpdatedAt = now

	cs := ChangeSet{
		{Op: OpUpdate, Record: task},
		{Op: OpUpdate, Record: bid},
	}
	if err := e.ledger.Commit(ctx, cs); err != nil {
		return Task{}, Bid{}, err
	}

	log.Printf("Bid accepted for task %s: %s", task.Addr, bid.Addr)
	return task, bid, nil
}

// RejectBid marks a pending bid on the caller's task as rejected. Task
// state is untouched.
func (e *Engine) RejectBid(ctx context.Context, caller, taskAddr, bidAddr Address) (Bid, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.loadTask(ctx, taskAddr)
	if err != nil {
		return Bid{}, err
	}
	if err := requireTaskOwner(task, caller); err != nil {
		return Bid{}, err
	}

	bid, err := e.loadBid(ctx, bidAddr)
	if err != nil {
		return Bid{}, err
	}
	if err := requireBidOnTask(bid, task); err != nil {
		return Bid{}, err
	}
	if bid.Status != BidPending {
		return Bid{}, ErrBidNotPending
	}

	bid.Status = BidRejected

	if err := e.ledger.Commit(ctx, ChangeSet{{Op: OpUpdate, Record: bid}}); err != nil {
		return Bid{}, err
	}

	log.Printf("Bid rejected for task %s: %s", task.Addr, bid.Addr)
	return bid, nil
}

// WithdrawBid lets the bidder pull a pending bid. The record is deleted
// and its storage reclaimed.
func (e *Engine) WithdrawBid(ctx context.Context, caller, bidAddr Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	bid, err := e.loadBid(ctx, bidAddr)
	if err != nil {
		return err
	}
	if bid.Bidder != caller {
		return ErrNotBidder
	}
	if bid.Status != BidPending {
		return ErrBidNotPending
	}

	bid.Status = BidWithdrawn

	if err := e.ledger.Commit(ctx, ChangeSet{{Op: OpDelete, Record: bid}}); err != nil {
		return err
	}

	log.Printf("Bid withdrawn: %s", bid.Addr)
	return nil
}
