package marketplace

import (
	"context"
	"fmt"
	"log"
)

// escrowSalt derives the stored salt byte for an escrow address.
func escrowSalt(escrow Address) uint8 {
	d := DeriveAddress("escrow_salt", escrow[:])
	return d[len(d)-1]
}

// FundEscrow moves the accepted bid amount from the client's holding
// account into a freshly created escrow vault and writes the escrow
// record at its derived address. One-time by construction: the derived
// address can only be created once.
func (e *Engine) FundEscrow(ctx context.Context, caller, taskAddr, bidAddr, clientHolding, mint Address) (Escrow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now().Unix()

	task, err := e.loadTask(ctx, taskAddr)
	if err != nil {
		return Escrow{}, err
	}
	if err := requireTaskOwner(task, caller); err != nil {
		return Escrow{}, err
	}
	if task.Status != TaskInProgress {
		return Escrow{}, ErrTaskNotInProgress
	}
	if task.AcceptedBid == nil {
		return Escrow{}, ErrNoAcceptedBid
	}
	if bidAddr != *task.AcceptedBid {
		return Escrow{}, ErrBidNotAccepted
	}
	if task.Escrow != nil {
		return Escrow{}, ErrEscrowExists
	}

	bid, err := e.loadBid(ctx, bidAddr)
	if err != nil {
		return Escrow{}, err
	}
	if bid.Status != BidAccepted {
		return Escrow{}, ErrBidNotAccepted
	}

	escrowAddr := EscrowAddress(task.Addr)
	salt := escrowSalt(escrowAddr)
	vaultAddr := EscrowVaultAddress(escrowAddr)

	escrow := Escrow{
		Addr:           escrowAddr,
		Task:           task.Addr,
		Client:         caller,
		Freelancer:     bid.Bidder,
		TotalAmount:    bid.Amount,
		ReleasedAmount: 0,
		TokenMint:      mint,
		Salt:           salt,
	}

	// The vault account is owned by the escrow's derived identity and
	// controlled only by the engine-held authority.
	auth := escrowAuthority(escrowAddr, salt)
	if err := e.vault.CreateHolding(ctx, vaultAddr, escrowAddr, mint, auth); err != nil {
		return Escrow{}, fmt.Errorf("create escrow vault: %w", err)
	}
	if err := e.vault.Transfer(ctx, clientHolding, vaultAddr, SignerAuthority(caller), bid.Amount); err != nil {
		// Close the empty vault account so a later funding attempt can
		// recreate it.
		if cerr := e.vault.CloseHolding(ctx, vaultAddr, auth); cerr != nil {
			log.Printf("escrow %s: failed to close vault after funding error: %v", escrowAddr, cerr)
		}
		return Escrow{}, fmt.Errorf("fund escrow: %w", err)
	}

	task.Escrow = &escrowAddr
	task.UpdatedAt = now

	cs := ChangeSet{
		{Op: OpCreate, Record: escrow},
		{Op: OpUpdate, Record: task},
	}
	if err := e.ledger.Commit(ctx, cs); err != nil {
		// Undo the funding transfer so no value is stranded. The vault
		// is engine-exclusive, so this cannot race or fail.
		if rerr := e.vault.Transfer(ctx, vaultAddr, clientHolding, auth, bid.Amount); rerr != nil {
			log.Printf("escrow %s: failed to reverse funding after commit error: %v", escrowAddr, rerr)
		} else if cerr := e.vault.CloseHolding(ctx, vaultAddr, auth); cerr != nil {
			log.Printf("escrow %s: failed to close vault after commit error: %v", escrowAddr, cerr)
		}
		return Escrow{}, err
	}

	log.Printf("Escrow %s funded with %d tokens for task %s", escrowAddr, bid.Amount, task.Addr)
	return escrow, nil
}

// CompleteMilestone marks a milestone as delivered. Only the accepted
// bidder may call it, and it moves no funds; it just gates the matching
// ReleasePayment.
func (e *Engine) CompleteMilestone(ctx context.Context, caller, taskAddr Address, index int) (Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.loadTask(ctx, taskAddr)
	if err != nil {
		return Task{}, err
	}
	if task.AcceptedBid == nil {
		return Task{}, ErrNoAcceptedBid
	}
	bid, err := e.loadBid(ctx, *task.AcceptedBid)
	if err != nil {
		return Task{}, err
	}
	if bid.Bidder != caller {
		return Task{}, ErrNotFreelancer
	}
	if err := validateMilestoneIndex(task, index); err != nil {
		return Task{}, err
	}
	if task.Milestones[index].Completed {
		return Task{}, ErrMilestoneAlreadyCompleted
	}

	task.Milestones[index].Completed = true

	if err := e.ledger.Commit(ctx, ChangeSet{{Op: OpUpdate, Record: task}}); err != nil {
		return Task{}, err
	}

	log.Printf("Milestone %d marked as completed on task %s", index, task.Addr)
	return task, nil
}

// ReleasePayment pays one completed, unpaid milestone from the escrow
// vault to the freelancer's holding account. When the last milestone is
// paid the task moves to Completed in the same commit.
func (e *Engine) ReleasePayment(ctx context.Context, caller, taskAddr, freelancerHolding Address, index int) (Task, Escrow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.loadTask(ctx, taskAddr)
	if err != nil {
		return Task{}, Escrow{}, err
	}
	if err := requireTaskOwner(task, caller); err != nil {
		return Task{}, Escrow{}, err
	}
	if task.Escrow == nil {
		return Task{}, Escrow{}, ErrNoEscrow
	}
	escrow, err := e.loadEscrow(ctx, *task.Escrow)
	if err != nil {
		return Task{}, Escrow{}, err
	}
	if err := validateMilestoneIndex(task, index); err != nil {
		return Task{}, Escrow{}, err
	}
	milestone := task.Milestones[index]
	if !milestone.Completed {
		return Task{}, Escrow{}, ErrMilestoneNotCompleted
	}
	if milestone.Paid {
		return Task{}, Escrow{}, ErrMilestoneAlreadyPaid
	}

	amount := milestone.Amount

	// Milestone amounts are validated against the task budget, not the
	// accepted bid amount that actually funded the escrow. When the two
	// diverge this guard is what stops payouts beyond custodied funds.
	newReleased, err := checkedAddU64(escrow.ReleasedAmount, amount)
	if err != nil {
		return Task{}, Escrow{}, err
	}
	if newReleased > escrow.TotalAmount {
		return Task{}, Escrow{}, ErrOverReleased
	}

	task.Milestones[index].Paid = true
	if task.AllMilestonesPaid() {
		task.Status = TaskCompleted
	}

	vaultAddr := EscrowVaultAddress(escrow.Addr)
	auth := escrowAuthority(escrow.Addr, escrow.Salt)
	if err := e.vault.Transfer(ctx, vaultAddr, freelancerHolding, auth, amount); err != nil {
		return Task{}, Escrow{}, fmt.Errorf("release payment: %w", err)
	}

	escrow.ReleasedAmount = newReleased

	cs := ChangeSet{
		{Op: OpUpdate, Record: task},
		{Op: OpUpdate, Record: escrow},
	}
	if err := e.ledger.Commit(ctx, cs); err != nil {
		if rerr := e.vault.Transfer(ctx, freelancerHolding, vaultAddr, SignerAuthority(escrow.Freelancer), amount); rerr != nil {
			log.Printf("escrow %s: failed to reverse release after commit error: %v", escrow.Addr, rerr)
		}
		return Task{}, Escrow{}, err
	}

	log.Printf("Payment released for milestone %d on task %s: %d", index, task.Addr, amount)
	return task, escrow, nil
}

// RequestRefund returns whatever the escrow still holds to the client
// and reports the refunded amount. Allowed on a cancelled task, or
// after the deadline when nothing has been released yet. A partially
// paid, expired task stays locked.
func (e *Engine) RequestRefund(ctx context.Context, caller, taskAddr, clientHolding Address) (Escrow, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now().Unix()

	task, err := e.loadTask(ctx, taskAddr)
	if err != nil {
		return Escrow{}, 0, err
	}
	if err := requireTaskOwner(task, caller); err != nil {
		return Escrow{}, 0, err
	}
	if task.Status == TaskCompleted {
		return Escrow{}, 0, ErrTaskNotCancellable
	}
	if task.Escrow == nil {
		return Escrow{}, 0, ErrNoEscrow
	}
	escrow, err := e.loadEscrow(ctx, *task.Escrow)
	if err != nil {
		return Escrow{}, 0, err
	}

	if task.Status != TaskCancelled && !(now > task.Deadline && escrow.ReleasedAmount == 0) {
		return Escrow{}, 0, ErrRefundNotAllowed
	}

	refund, err := checkedSubU64(escrow.TotalAmount, escrow.ReleasedAmount)
	if err != nil {
		return Escrow{}, 0, err
	}
	if refund == 0 {
		return Escrow{}, 0, ErrNoFundsToRefund
	}

	// Count the refund against released_amount so the vault balance
	// keeps matching total-released and a second refund computes zero.
	newReleased, err := checkedAddU64(escrow.ReleasedAmount, refund)
	if err != nil {
		return Escrow{}, 0, err
	}

	vaultAddr := EscrowVaultAddress(escrow.Addr)
	auth := escrowAuthority(escrow.Addr, escrow.Salt)
	if err := e.vault.Transfer(ctx, vaultAddr, clientHolding, auth, refund); err != nil {
		return Escrow{}, 0, fmt.Errorf("refund: %w", err)
	}
	escrow.ReleasedAmount = newReleased

	if err := e.ledger.Commit(ctx, ChangeSet{{Op: OpUpdate, Record: escrow}}); err != nil {
		if rerr := e.vault.Transfer(ctx, clientHolding, vaultAddr, SignerAuthority(escrow.Client), refund); rerr != nil {
			log.Printf("escrow %s: failed to reverse refund after commit error: %v", escrow.Addr, rerr)
		}
		return Escrow{}, 0, err
	}

	log.Printf("Refund issued from escrow %s: %d", escrow.Addr, refund)
	return escrow, refund, nil
}
