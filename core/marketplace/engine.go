package marketplace

import (
	"context"
	"fmt"
	"sync"
)

// Record is any persistent marketplace entity.
type Record interface {
	Key() Address
}

// ChangeOp says how a record in a ChangeSet is applied.
type ChangeOp int

const (
	// OpCreate fails if a record already exists at the address.
	OpCreate ChangeOp = iota
	// OpUpdate overwrites an existing record.
	OpUpdate
	// OpDelete removes the record and reclaims its storage.
	OpDelete
)

// Change is one staged record mutation.
type Change struct {
	Op     ChangeOp
	Record Record
}

// ChangeSet is the full set of record mutations for one operation. The
// ledger applies it atomically: all changes land or none do.
type ChangeSet []Change

// Ledger is the record persistence substrate. Reads return snapshots;
// Commit must be all-or-nothing and must reject OpCreate at an occupied
// address, which is what makes derived-address records exclusive.
type Ledger interface {
	GetTask(ctx context.Context, addr Address) (Task, error)
	GetBid(ctx context.Context, addr Address) (Bid, error)
	GetEscrow(ctx context.Context, addr Address) (Escrow, error)
	GetProfile(ctx context.Context, addr Address) (AgentProfile, error)
	GetReview(ctx context.Context, addr Address) (Review, error)
	Commit(ctx context.Context, cs ChangeSet) error
}

// TokenVault is the fungible-token transfer collaborator. Transfer
// fails atomically when the source balance is short or the authority
// proof does not match the source account.
type TokenVault interface {
	CreateHolding(ctx context.Context, addr, owner, mint Address, auth Authority) error
	CloseHolding(ctx context.Context, addr Address, auth Authority) error
	Transfer(ctx context.Context, from, to Address, auth Authority, amount uint64) error
	Balance(ctx context.Context, addr Address) (uint64, error)
}

// Engine executes marketplace operations. Every operation is one
// serialized, all-or-nothing transition: snapshot reads, pure
// validation, staged mutations, then a single atomic commit. The mutex
// stands in for the host chain's per-transaction account locking.
type Engine struct {
	mu     sync.Mutex
	ledger Ledger
	vault  TokenVault
	clock  Clock
}

// NewEngine wires an engine over a ledger and token vault. A nil clock
// defaults to the system clock.
func NewEngine(ledger Ledger, vault TokenVault, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{ledger: ledger, vault: vault, clock: clock}
}

func (e *Engine) loadTask(ctx context.Context, addr Address) (Task, error) {
	task, err := e.ledger.GetTask(ctx, addr)
	if err != nil {
		return Task{}, fmt.Errorf("load task %s: %w", addr, err)
	}
	return task, nil
}

func (e *Engine) loadBid(ctx context.Context, addr Address) (Bid, error) {
	bid, err := e.ledger.GetBid(ctx, addr)
	if err != nil {
		return Bid{}, fmt.Errorf("load bid %s: %w", addr, err)
	}
	return bid, nil
}

func (e *Engine) loadEscrow(ctx context.Context, addr Address) (Escrow, error) {
	escrow, err := e.ledger.GetEscrow(ctx, addr)
	if err != nil {
		return Escrow{}, fmt.Errorf("load escrow %s: %w", addr, err)
	}
	return escrow, nil
}

// Task returns a read-only snapshot of a task record.
func (e *Engine) Task(ctx context.Context, addr Address) (Task, error) {
	return e.ledger.GetTask(ctx, addr)
}

// Bid returns a read-only snapshot of a bid record.
func (e *Engine) Bid(ctx context.Context, addr Address) (Bid, error) {
	return e.ledger.GetBid(ctx, addr)
}

// Escrow returns a read-only snapshot of the escrow record for a task.
func (e *Engine) Escrow(ctx context.Context, task Address) (Escrow, error) {
	return e.ledger.GetEscrow(ctx, EscrowAddress(task))
}

// Profile returns a read-only snapshot of an owner's agent profile.
func (e *Engine) Profile(ctx context.Context, owner Address) (AgentProfile, error) {
	return e.ledger.GetProfile(ctx, ProfileAddress(owner))
}

// Review returns a read-only snapshot of a review record.
func (e *Engine) Review(ctx context.Context, addr Address) (Review, error) {
	return e.ledger.GetReview(ctx, addr)
}
