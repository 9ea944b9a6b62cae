package marketplace

import (
	"context"
	"log"
)

// InitializeAgentProfile creates the caller's profile at its derived
// address with zeroed counters. One-time per address: the derived
// address can only be created once.
func (e *Engine) InitializeAgentProfile(ctx context.Context, caller Address, name string) (AgentProfile, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now().Unix()

	if err := validateName(name); err != nil {
		return AgentProfile{}, err
	}

	profile := AgentProfile{
		Addr:      ProfileAddress(caller),
		Owner:     caller,
		Name:      name,
		CreatedAt: now,
	}

	if err := e.ledger.Commit(ctx, ChangeSet{{Op: OpCreate, Record: profile}}); err != nil {
		return AgentProfile{}, err
	}

	log.Printf("Agent profile created: %s (%s)", profile.Name, profile.Addr)
	return profile, nil
}

// SubmitReviewParams are the inputs to SubmitReview.
type SubmitReviewParams struct {
	Reviewee   Address `json:"reviewee"`
	Rating     uint8   `json:"rating"`
	ReviewText string  `json:"review_text"`
}

// SubmitReview records an immutable review of the counterparty on a
// completed task and folds the rating into the reviewee's profile.
// Nothing prevents repeated reviews for the same task pair; that
// matches the original contract.
func (e *Engine) SubmitReview(ctx context.Context, caller, taskAddr Address, p SubmitReviewParams) (Review, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now().Unix()

	if err := validateRating(p.Rating); err != nil {
		return Review{}, err
	}
	if err := validateReviewText(p.ReviewText); err != nil {
		return Review{}, err
	}
	if p.Reviewee == caller {
		return Review{}, ErrSelfReview
	}

	task, err := e.loadTask(ctx, taskAddr)
	if err != nil {
		return Review{}, err
	}
	if task.Status != TaskCompleted {
		return Review{}, ErrTaskNotCompleted
	}

	// The reviewer must be one of the two parties: the owner or the
	// accepted bidder.
	if task.Owner != caller {
		if task.AcceptedBid == nil {
			return Review{}, ErrNotParticipant
		}
		bid, err := e.loadBid(ctx, *task.AcceptedBid)
		if err != nil {
			return Review{}, err
		}
		if bid.Bidder != caller {
			return Review{}, ErrNotParticipant
		}
	}

	profile, err := e.ledger.GetProfile(ctx, ProfileAddress(p.Reviewee))
	if err != nil {
		return Review{}, err
	}

	profile.RatingSum, err = checkedAddU32(profile.RatingSum, uint32(p.Rating))
	if err != nil {
		return Review{}, err
	}
	profile.RatingCount, err = checkedAddU32(profile.RatingCount, 1)
	if err != nil {
		return Review{}, err
	}

	review := Review{
		Addr:       NewAddress(),
		Reviewer:   caller,
		Reviewee:   p.Reviewee,
		Task:       task.Addr,
		Rating:     p.Rating,
		ReviewText: p.ReviewText,
		CreatedAt:  now,
	}

	cs := ChangeSet{
		{Op: OpCreate, Record: review},
		{Op: OpUpdate, Record: profile},
	}
	if err := e.ledger.Commit(ctx, cs); err != nil {
		return Review{}, err
	}

	log.Printf("Review submitted: %d stars for %s on task %s", p.Rating, p.Reviewee, task.Addr)
	return review, nil
}
