package marketplace

// Pure precondition checks over scalar inputs and record snapshots.
// None of these mutate anything; the engine calls them before staging
// any change so a failed operation has no observable effect.

func validateTitle(title string) error {
	if title == "" {
		return ErrEmptyTitle
	}
	if len(title) > MaxTitleLen {
		return ErrTitleTooLong
	}
	return nil
}

func validateDescription(desc string) error {
	if len(desc) > MaxDescriptionLen {
		return ErrDescriptionTooLong
	}
	return nil
}

// validateMilestones checks count, per-entry bounds, and that the
// amounts sum exactly to the budget. The sum is only enforced here, at
// creation; update_task deliberately does not re-check it.
func validateMilestones(milestones []Milestone, budget uint64) error {
	if len(milestones) == 0 {
		return ErrNoMilestones
	}
	if len(milestones) > MaxMilestones {
		return ErrTooManyMilestones
	}
	for _, m := range milestones {
		if len(m.Description) > MaxMilestoneDescLen {
			return ErrMilestoneDescTooLong
		}
	}
	total, err := sumMilestoneAmounts(milestones)
	if err != nil {
		return err
	}
	if total != budget {
		return ErrMilestoneAmountMismatch
	}
	return nil
}

func validateDeadline(deadline, now int64) error {
	if deadline <= now {
		return ErrInvalidDeadline
	}
	return nil
}

func validateProposal(proposal string) error {
	if len(proposal) > MaxProposalLen {
		return ErrProposalTooLong
	}
	return nil
}

// validateBidTiming rejects non-positive timelines and timelines whose
// end would overflow or land past the task deadline.
func validateBidTiming(now, timeline, deadline int64) error {
	if timeline <= 0 {
		return ErrInvalidTimeline
	}
	end, err := checkedAddI64(now, timeline)
	if err != nil {
		return err
	}
	if end > deadline {
		return ErrTimelineExceedsDeadline
	}
	return nil
}

func validateName(name string) error {
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	return nil
}

func validateRating(rating uint8) error {
	if rating < MinRating || rating > MaxRating {
		return ErrInvalidRating
	}
	return nil
}

func validateReviewText(text string) error {
	if len(text) > MaxReviewLen {
		return ErrReviewTooLong
	}
	return nil
}

// requireTaskOwner checks caller identity against the task owner.
func requireTaskOwner(task Task, caller Address) error {
	if task.Owner != caller {
		return ErrNotTaskOwner
	}
	return nil
}

// requireBidOnTask checks that the bid references the given task.
func requireBidOnTask(bid Bid, task Task) error {
	if bid.Task != task.Addr {
		return ErrBidTaskMismatch
	}
	return nil
}

func validateMilestoneIndex(task Task, index int) error {
	if index < 0 || index >= len(task.Milestones) {
		return ErrInvalidMilestoneIndex
	}
	return nil
}
