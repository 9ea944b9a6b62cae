package marketplace

import "time"

// Hard validation limits. These double as the worst-case storage
// reservation for every variable-length field, so changing one changes
// the wire layout of the record that carries it.
const (
	MaxTitleLen         = 100
	MaxDescriptionLen   = 5000
	MaxMilestones       = 10
	MaxMilestoneDescLen = 200
	MaxProposalLen      = 2000
	MaxNameLen          = 50
	MaxReviewLen        = 1000

	MinRating = 1
	MaxRating = 5
)

// TaskStatus is the task lifecycle state.
type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
	// TaskDisputed is declared for forward compatibility. No operation
	// transitions into or out of it.
	TaskDisputed TaskStatus = "disputed"
)

// BidStatus is the bid lifecycle state.
type BidStatus string

const (
	BidPending   BidStatus = "pending"
	BidAccepted  BidStatus = "accepted"
	BidRejected  BidStatus = "rejected"
	BidWithdrawn BidStatus = "withdrawn"
)

// Milestone is a payable sub-deliverable embedded in a task. Both flags
// only ever move false -> true.
type Milestone struct {
	Description string `json:"description"`
	Amount      uint64 `json:"amount"`
	Completed   bool   `json:"completed"`
	Paid        bool   `json:"paid"`
}

// Task is a postable unit of work with milestone-split budget.
type Task struct {
	Addr        Address     `json:"address"`
	Owner       Address     `json:"owner"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Budget      uint64      `json:"budget"`
	Milestones  []Milestone `json:"milestones"`
	Deadline    int64       `json:"deadline"` // unix seconds
	Status      TaskStatus  `json:"status"`
	AcceptedBid *Address    `json:"accepted_bid,omitempty"`
	Escrow      *Address    `json:"escrow,omitempty"`
	CreatedAt   int64       `json:"created_at"`
	UpdatedAt   int64       `json:"updated_at"`
}

// Bid is a freelancer proposal against an open task.
type Bid struct {
	Addr      Address   `json:"address"`
	Task      Address   `json:"task"`
	Bidder    Address   `json:"bidder"`
	Amount    uint64    `json:"amount"`
	Timeline  int64     `json:"timeline"` // seconds from submission
	Proposal  string    `json:"proposal"`
	Status    BidStatus `json:"status"`
	CreatedAt int64     `json:"created_at"`
}

// Escrow custodies the accepted bid amount for one task. Its address is
// derived from the task address, so at most one can ever exist per task.
type Escrow struct {
	Addr           Address `json:"address"`
	Task           Address `json:"task"`
	Client         Address `json:"client"`
	Freelancer     Address `json:"freelancer"`
	TotalAmount    uint64  `json:"total_amount"`
	ReleasedAmount uint64  `json:"released_amount"`
	TokenMint      Address `json:"token_mint"`
	Salt           uint8   `json:"salt"`
}

// AgentProfile aggregates per-address reputation. The posted/completed/
// earned/spent counters are recorded but not maintained by any operation
// in this engine; only the rating fields move.
type AgentProfile struct {
	Addr           Address `json:"address"`
	Owner          Address `json:"owner"`
	Name           string  `json:"name"`
	TasksPosted    uint32  `json:"tasks_posted"`
	TasksCompleted uint32  `json:"tasks_completed"`
	TotalEarned    uint64  `json:"total_earned"`
	TotalSpent     uint64  `json:"total_spent"`
	RatingSum      uint32  `json:"rating_sum"`
	RatingCount    uint32  `json:"rating_count"`
	CreatedAt      int64   `json:"created_at"`
}

// Review is immutable once written.
type Review struct {
	Addr       Address `json:"address"`
	Reviewer   Address `json:"reviewer"`
	Reviewee   Address `json:"reviewee"`
	Task       Address `json:"task"`
	Rating     uint8   `json:"rating"`
	ReviewText string  `json:"review_text"`
	CreatedAt  int64   `json:"created_at"`
}

// Key returns the record's ledger address.
func (t Task) Key() Address         { return t.Addr }
func (b Bid) Key() Address          { return b.Addr }
func (e Escrow) Key() Address       { return e.Addr }
func (p AgentProfile) Key() Address { return p.Addr }
func (r Review) Key() Address       { return r.Addr }

// AllMilestonesPaid reports whether every milestone has been paid out.
func (t Task) AllMilestonesPaid() bool {
	for _, m := range t.Milestones {
		if !m.Paid {
			return false
		}
	}
	return true
}

// Clock supplies the trusted current time. Each operation reads it
// exactly once at invocation start.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
