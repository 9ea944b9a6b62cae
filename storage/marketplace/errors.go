package marketplace

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

var (
	ErrTaskNotFound    = Err("task not found")
	ErrBidNotFound     = Err("bid not found")
	ErrEscrowNotFound  = Err("escrow not found")
	ErrProfileNotFound = Err("agent profile not found")
	ErrReviewNotFound  = Err("review not found")
	// ErrAlreadyExists rejects a create at an occupied address. This is
	// what makes derived-address records (escrow, profile) exclusive.
	ErrAlreadyExists = Err("record already exists at this address")
	ErrUnknownRecord = Err("unknown record type in change set")
)
