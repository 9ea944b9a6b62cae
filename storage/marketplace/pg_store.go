package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	core "taskmarket-backend/core/marketplace"
)

// PGStore persists marketplace records in Postgres. One engine commit
// maps to one SQL transaction, which preserves the all-or-nothing
// contract of the ledger interface.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects and initializes the schema.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &PGStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGStore) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS mp_tasks (
  addr TEXT PRIMARY KEY,
  owner_addr TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT,
  budget BIGINT NOT NULL,
  milestones JSONB NOT NULL,
  deadline BIGINT NOT NULL,
  status TEXT NOT NULL,
  accepted_bid TEXT,
  escrow TEXT,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS mp_bids (
  addr TEXT PRIMARY KEY,
  task_addr TEXT NOT NULL,
  bidder TEXT NOT NULL,
  amount BIGINT NOT NULL,
  timeline BIGINT NOT NULL,
  proposal TEXT,
  status TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS mp_escrows (
  addr TEXT PRIMARY KEY,
  task_addr TEXT NOT NULL,
  client TEXT NOT NULL,
  freelancer TEXT NOT NULL,
  total_amount BIGINT NOT NULL,
  released_amount BIGINT NOT NULL,
  token_mint TEXT NOT NULL,
  salt SMALLINT NOT NULL
);
CREATE TABLE IF NOT EXISTS mp_profiles (
  addr TEXT PRIMARY KEY,
  owner_addr TEXT NOT NULL,
  name TEXT,
  tasks_posted INT NOT NULL DEFAULT 0,
  tasks_completed INT NOT NULL DEFAULT 0,
  total_earned BIGINT NOT NULL DEFAULT 0,
  total_spent BIGINT NOT NULL DEFAULT 0,
  rating_sum INT NOT NULL DEFAULT 0,
  rating_count INT NOT NULL DEFAULT 0,
  created_at BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS mp_reviews (
  addr TEXT PRIMARY KEY,
  reviewer TEXT NOT NULL,
  reviewee TEXT NOT NULL,
  task_addr TEXT NOT NULL,
  rating SMALLINT NOT NULL,
  review_text TEXT,
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mp_bids_task ON mp_bids(task_addr);
CREATE INDEX IF NOT EXISTS idx_mp_reviews_task ON mp_reviews(task_addr);
`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close shuts down the pool.
func (s *PGStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func optAddr(a *core.Address) *string {
	if a == nil {
		return nil
	}
	s := a.String()
	return &s
}

func parseOptAddr(s *string) (*core.Address, error) {
	if s == nil {
		return nil, nil
	}
	a, err := core.ParseAddress(*s)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetTask returns a snapshot of the task at addr.
func (s *PGStore) GetTask(ctx context.Context, addr core.Address) (core.Task, error) {
	var (
		t              core.Task
		owner          string
		milestonesJSON []byte
		acceptedBid    *string
		escrow         *string
	)
	err := s.pool.QueryRow(ctx, `
SELECT owner_addr, title, description, budget, milestones, deadline, status, accepted_bid, escrow, created_at, updated_at
FROM mp_tasks WHERE addr = $1
`, addr.String()).Scan(&owner, &t.Title, &t.Description, &t.Budget, &milestonesJSON, &t.Deadline, &t.Status, &acceptedBid, &escrow, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Task{}, ErrTaskNotFound
	}
	if err != nil {
		return core.Task{}, err
	}
	t.Addr = addr
	if t.Owner, err = core.ParseAddress(owner); err != nil {
		return core.Task{}, err
	}
	if err = json.Unmarshal(milestonesJSON, &t.Milestones); err != nil {
		return core.Task{}, err
	}
	if t.AcceptedBid, err = parseOptAddr(acceptedBid); err != nil {
		return core.Task{}, err
	}
	if t.Escrow, err = parseOptAddr(escrow); err != nil {
		return core.Task{}, err
	}
	return t, nil
}

// GetBid returns a snapshot of the bid at addr.
func (s *PGStore) GetBid(ctx context.Context, addr core.Address) (core.Bid, error) {
	var (
		b      core.Bid
		task   string
		bidder string
	)
	err := s.pool.QueryRow(ctx, `
SELECT task_addr, bidder, amount, timeline, proposal, status, created_at
FROM mp_bids WHERE addr = $1
`, addr.String()).Scan(&task, &bidder, &b.Amount, &b.Timeline, &b.Proposal, &b.Status, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Bid{}, ErrBidNotFound
	}
	if err != nil {
		return core.Bid{}, err
	}
	b.Addr = addr
	if b.Task, err = core.ParseAddress(task); err != nil {
		return core.Bid{}, err
	}
	if b.Bidder, err = core.ParseAddress(bidder); err != nil {
		return core.Bid{}, err
	}
	return b, nil
}

// GetEscrow returns a snapshot of the escrow at addr.
func (s *PGStore) GetEscrow(ctx context.Context, addr core.Address) (core.Escrow, error) {
	var (
		e          core.Escrow
		task       string
		client     string
		freelancer string
		mint       string
	)
	err := s.pool.QueryRow(ctx, `
SELECT task_addr, client, freelancer, total_amount, released_amount, token_mint, salt
FROM mp_escrows WHERE addr = $1
`, addr.String()).Scan(&task, &client, &freelancer, &e.TotalAmount, &e.ReleasedAmount, &mint, &e.Salt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Escrow{}, ErrEscrowNotFound
	}
	if err != nil {
		return core.Escrow{}, err
	}
	e.Addr = addr
	if e.Task, err = core.ParseAddress(task); err != nil {
		return core.Escrow{}, err
	}
	if e.Client, err = core.ParseAddress(client); err != nil {
		return core.Escrow{}, err
	}
	if e.Freelancer, err = core.ParseAddress(freelancer); err != nil {
		return core.Escrow{}, err
	}
	if e.TokenMint, err = core.ParseAddress(mint); err != nil {
		return core.Escrow{}, err
	}
	return e, nil
}

// GetProfile returns a snapshot of the agent profile at addr.
func (s *PGStore) GetProfile(ctx context.Context, addr core.Address) (core.AgentProfile, error) {
	var (
		p     core.AgentProfile
		owner string
	)
	err := s.pool.QueryRow(ctx, `
SELECT owner_addr, name, tasks_posted, tasks_completed, total_earned, total_spent, rating_sum, rating_count, created_at
FROM mp_profiles WHERE addr = $1
`, addr.String()).Scan(&owner, &p.Name, &p.TasksPosted, &p.TasksCompleted, &p.TotalEarned, &p.TotalSpent, &p.RatingSum, &p.RatingCount, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.AgentProfile{}, ErrProfileNotFound
	}
	if err != nil {
		return core.AgentProfile{}, err
	}
	p.Addr = addr
	if p.Owner, err = core.ParseAddress(owner); err != nil {
		return core.AgentProfile{}, err
	}
	return p, nil
}

// GetReview returns a snapshot of the review at addr.
func (s *PGStore) GetReview(ctx context.Context, addr core.Address) (core.Review, error) {
	var (
		r        core.Review
		reviewer string
		reviewee string
		task     string
	)
	err := s.pool.QueryRow(ctx, `
SELECT reviewer, reviewee, task_addr, rating, review_text, created_at
FROM mp_reviews WHERE addr = $1
`, addr.String()).Scan(&reviewer, &reviewee, &task, &r.Rating, &r.ReviewText, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Review{}, ErrReviewNotFound
	}
	if err != nil {
		return core.Review{}, err
	}
	r.Addr = addr
	if r.Reviewer, err = core.ParseAddress(reviewer); err != nil {
		return core.Review{}, err
	}
	if r.Reviewee, err = core.ParseAddress(reviewee); err != nil {
		return core.Review{}, err
	}
	if r.Task, err = core.ParseAddress(task); err != nil {
		return core.Review{}, err
	}
	return r, nil
}

// Commit applies the change set inside one SQL transaction.
func (s *PGStore) Commit(ctx context.Context, cs core.ChangeSet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, change := range cs {
		if err := applyChange(ctx, tx, change); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// isUniqueViolation reports a primary-key conflict, which Commit maps
// to the ledger's exclusive-create error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func applyChange(ctx context.Context, tx pgx.Tx, change core.Change) error {
	switch rec := change.Record.(type) {
	case core.Task:
		return applyTask(ctx, tx, change.Op, rec)
	case core.Bid:
		return applyBid(ctx, tx, change.Op, rec)
	case core.Escrow:
		return applyEscrow(ctx, tx, change.Op, rec)
	case core.AgentProfile:
		return applyProfile(ctx, tx, change.Op, rec)
	case core.Review:
		return applyReview(ctx, tx, change.Op, rec)
	default:
		return ErrUnknownRecord
	}
}

func applyTask(ctx context.Context, tx pgx.Tx, op core.ChangeOp, t core.Task) error {
	milestonesJSON, err := json.Marshal(t.Milestones)
	if err != nil {
		return err
	}
	switch op {
	case core.OpCreate:
		_, err := tx.Exec(ctx, `
INSERT INTO mp_tasks (addr, owner_addr, title, description, budget, milestones, deadline, status, accepted_bid, escrow, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`, t.Addr.String(), t.Owner.String(), t.Title, t.Description, t.Budget, milestonesJSON, t.Deadline, t.Status, optAddr(t.AcceptedBid), optAddr(t.Escrow), t.CreatedAt, t.UpdatedAt)
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	case core.OpUpdate:
		tag, err := tx.Exec(ctx, `
UPDATE mp_tasks SET description=$2, budget=$3, milestones=$4, deadline=$5, status=$6, accepted_bid=$7, escrow=$8, updated_at=$9
WHERE addr=$1
`, t.Addr.String(), t.Description, t.Budget, milestonesJSON, t.Deadline, t.Status, optAddr(t.AcceptedBid), optAddr(t.Escrow), t.UpdatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrTaskNotFound
		}
		return nil
	case core.OpDelete:
		_, err := tx.Exec(ctx, `DELETE FROM mp_tasks WHERE addr=$1`, t.Addr.String())
		return err
	}
	return nil
}

func applyBid(ctx context.Context, tx pgx.Tx, op core.ChangeOp, b core.Bid) error {
	switch op {
	case core.OpCreate:
		_, err := tx.Exec(ctx, `
INSERT INTO mp_bids (addr, task_addr, bidder, amount, timeline, proposal, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, b.Addr.String(), b.Task.String(), b.Bidder.String(), b.Amount, b.Timeline, b.Proposal, b.Status, b.CreatedAt)
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	case core.OpUpdate:
		tag, err := tx.Exec(ctx, `UPDATE mp_bids SET status=$2 WHERE addr=$1`, b.Addr.String(), b.Status)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrBidNotFound
		}
		return nil
	case core.OpDelete:
		_, err := tx.Exec(ctx, `DELETE FROM mp_bids WHERE addr=$1`, b.Addr.String())
		return err
	}
	return nil
}

func applyEscrow(ctx context.Context, tx pgx.Tx, op core.ChangeOp, e core.Escrow) error {
	switch op {
	case core.OpCreate:
		_, err := tx.Exec(ctx, `
INSERT INTO mp_escrows (addr, task_addr, client, freelancer, total_amount, released_amount, token_mint, salt)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, e.Addr.String(), e.Task.String(), e.Client.String(), e.Freelancer.String(), e.TotalAmount, e.ReleasedAmount, e.TokenMint.String(), e.Salt)
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	case core.OpUpdate:
		tag, err := tx.Exec(ctx, `UPDATE mp_escrows SET released_amount=$2 WHERE addr=$1`, e.Addr.String(), e.ReleasedAmount)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrEscrowNotFound
		}
		return nil
	case core.OpDelete:
		_, err := tx.Exec(ctx, `DELETE FROM mp_escrows WHERE addr=$1`, e.Addr.String())
		return err
	}
	return nil
}

func applyProfile(ctx context.Context, tx pgx.Tx, op core.ChangeOp, p core.AgentProfile) error {
	switch op {
	case core.OpCreate:
		_, err := tx.Exec(ctx, `
INSERT INTO mp_profiles (addr, owner_addr, name, tasks_posted, tasks_completed, total_earned, total_spent, rating_sum, rating_count, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, p.Addr.String(), p.Owner.String(), p.Name, p.TasksPosted, p.TasksCompleted, p.TotalEarned, p.TotalSpent, p.RatingSum, p.RatingCount, p.CreatedAt)
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	case core.OpUpdate:
		tag, err := tx.Exec(ctx, `
UPDATE mp_profiles SET name=$2, tasks_posted=$3, tasks_completed=$4, total_earned=$5, total_spent=$6, rating_sum=$7, rating_count=$8
WHERE addr=$1
`, p.Addr.String(), p.Name, p.TasksPosted, p.TasksCompleted, p.TotalEarned, p.TotalSpent, p.RatingSum, p.RatingCount)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrProfileNotFound
		}
		return nil
	case core.OpDelete:
		_, err := tx.Exec(ctx, `DELETE FROM mp_profiles WHERE addr=$1`, p.Addr.String())
		return err
	}
	return nil
}

func applyReview(ctx context.Context, tx pgx.Tx, op core.ChangeOp, r core.Review) error {
	switch op {
	case core.OpCreate:
		_, err := tx.Exec(ctx, `
INSERT INTO mp_reviews (addr, reviewer, reviewee, task_addr, rating, review_text, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, r.Addr.String(), r.Reviewer.String(), r.Reviewee.String(), r.Task.String(), r.Rating, r.ReviewText, r.CreatedAt)
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	case core.OpUpdate:
		// Reviews are immutable once created.
		return nil
	case core.OpDelete:
		_, err := tx.Exec(ctx, `DELETE FROM mp_reviews WHERE addr=$1`, r.Addr.String())
		return err
	}
	return nil
}
