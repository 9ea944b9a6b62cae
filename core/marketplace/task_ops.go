package marketplace

import (
	"context"
	"log"
)

// MilestoneSpec is the caller-supplied shape of one milestone. Flags
// always start false; only complete_milestone and release_payment move
// them.
type MilestoneSpec struct {
	Description string `json:"description"`
	Amount      uint64 `json:"amount"`
}

// PostTaskParams are the inputs to PostTask.
type PostTaskParams struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Budget      uint64          `json:"budget"`
	Milestones  []MilestoneSpec `json:"milestones"`
	Deadline    int64           `json:"deadline"`
}

// UpdateTaskParams carry the optional fields of UpdateTask. Nil fields
// are left unchanged.
type UpdateTaskParams struct {
	Description *string `json:"description,omitempty"`
	Budget      *uint64 `json:"budget,omitempty"`
	Deadline    *int64  `json:"deadline,omitempty"`
}

// PostTask creates a new open task owned by the caller. Milestone
// amounts must sum exactly to the budget and the deadline must be in
// the future.
func (e *Engine) PostTask(ctx context.Context, caller Address, p PostTaskParams) (Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now().Unix()

	if err := validateTitle(p.Title); err != nil {
		return Task{}, err
	}
	if err := validateDescription(p.Description); err != nil {
		return Task{}, err
	}
	milestones := make([]Milestone, len(p.Milestones))
	for i, spec := range p.Milestones {
		milestones[i] = Milestone{Description: spec.Description, Amount: spec.Amount}
	}
	if err := validateMilestones(milestones, p.Budget); err != nil {
		return Task{}, err
	}
	if err := validateDeadline(p.Deadline, now); err != nil {
		return Task{}, err
	}

	task := Task{
		Addr:        NewAddress(),
		Owner:       caller,
		Title:       p.Title,
		Description: p.Description,
		Budget:      p.Budget,
		Milestones:  milestones,
		Deadline:    p.Deadline,
		Status:      TaskOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := e.ledger.Commit(ctx, ChangeSet{{Op: OpCreate, Record: task}}); err != nil {
		return Task{}, err
	}

	log.Printf("Task posted: %s (%s)", task.Title, task.Addr)
	return task, nil
}

// UpdateTask lets the owner change description, budget, or deadline
// while the task is still open. Each provided field is validated on its
// own; the budget is not re-checked against the milestone sum, matching
// the original contract behavior.
func (e *Engine) UpdateTask(ctx context.Context, caller, taskAddr Address, p UpdateTaskParams) (Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now().Unix()

	task, err := e.loadTask(ctx, taskAddr)
	if err != nil {
		return Task{}, err
	}
	if err := requireTaskOwner(task, caller); err != nil {
		return Task{}, err
	}
	if task.Status != TaskOpen {
		return Task{}, ErrTaskNotOpen
	}

	if p.Description != nil {
		if err := validateDescription(*p.Description); err != nil {
			return Task{}, err
		}
		task.Description = *p.Description
	}
	if p.Budget != nil {
		if *p.Budget == 0 {
			return Task{}, ErrInvalidBudget
		}
		task.Budget = *p.Budget
	}
	if p.Deadline != nil {
		if err := validateDeadline(*p.Deadline, now); err != nil {
			return Task{}, err
		}
		task.Deadline = *p.Deadline
	}
	task.UpdatedAt = now

	if err := e.ledger.Commit(ctx, ChangeSet{{Op: OpUpdate, Record: task}}); err != nil {
		return Task{}, err
	}

	log.Printf("Task updated: %s", task.Addr)
	return task, nil
}

// CancelTask moves an open or in-progress task to cancelled. Blocked as
// soon as an escrow exists; once funds are custodied the only way out is
// RequestRefund.
func (e *Engine) CancelTask(ctx context.Context, caller, taskAddr Address) (Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now().Unix()

	task, err := e.loadTask(ctx, taskAddr)
	if err != nil {
		return Task{}, err
	}
	if err := requireTaskOwner(task, caller); err != nil {
		return Task{}, err
	}
	if task.Status != TaskOpen && task.Status != TaskInProgress {
		return Task{}, ErrTaskNotCancellable
	}
	if task.Escrow != nil {
		return Task{}, ErrEscrowExists
	}

	task.Status = TaskCancelled
	task.UpdatedAt = now

	if err := e.ledger.Commit(ctx, ChangeSet{{Op: OpUpdate, Record: task}}); err != nil {
		return Task{}, err
	}

	log.Printf("Task cancelled: %s", task.Addr)
	return task, nil
}
