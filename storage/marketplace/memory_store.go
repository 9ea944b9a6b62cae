package marketplace

import (
	"context"
	"sync"

	core "taskmarket-backend/core/marketplace"
)

// MemoryStore keeps records in memory as their serialized wire form.
// Storing bytes rather than structs gives natural snapshot semantics:
// every Get decodes a fresh copy, so callers can never mutate shared
// state behind the store's back. The single RWMutex makes Commit
// atomic across record types.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[core.Address][]byte
}

// NewMemoryStore returns an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[core.Address][]byte)}
}

// GetTask returns a snapshot of the task at addr.
func (s *MemoryStore) GetTask(_ context.Context, addr core.Address) (core.Task, error) {
	s.mu.RLock()
	data, ok := s.records[addr]
	s.mu.RUnlock()
	if !ok {
		return core.Task{}, ErrTaskNotFound
	}
	task, err := core.UnmarshalTask(data)
	if err != nil {
		return core.Task{}, err
	}
	task.Addr = addr
	return task, nil
}

// GetBid returns a snapshot of the bid at addr.
func (s *MemoryStore) GetBid(_ context.Context, addr core.Address) (core.Bid, error) {
	s.mu.RLock()
	data, ok := s.records[addr]
	s.mu.RUnlock()
	if !ok {
		return core.Bid{}, ErrBidNotFound
	}
	bid, err := core.UnmarshalBid(data)
	if err != nil {
		return core.Bid{}, err
	}
	bid.Addr = addr
	return bid, nil
}

// GetEscrow returns a snapshot of the escrow at addr.
func (s *MemoryStore) GetEscrow(_ context.Context, addr core.Address) (core.Escrow, error) {
	s.mu.RLock()
	data, ok := s.records[addr]
	s.mu.RUnlock()
	if !ok {
		return core.Escrow{}, ErrEscrowNotFound
	}
	escrow, err := core.UnmarshalEscrow(data)
	if err != nil {
		return core.Escrow{}, err
	}
	escrow.Addr = addr
	return escrow, nil
}

// GetProfile returns a snapshot of the agent profile at addr.
func (s *MemoryStore) GetProfile(_ context.Context, addr core.Address) (core.AgentProfile, error) {
	s.mu.RLock()
	data, ok := s.records[addr]
	s.mu.RUnlock()
	if !ok {
		return core.AgentProfile{}, ErrProfileNotFound
	}
	profile, err := core.UnmarshalProfile(data)
	if err != nil {
		return core.AgentProfile{}, err
	}
	profile.Addr = addr
	return profile, nil
}

// GetReview returns a snapshot of the review at addr.
func (s *MemoryStore) GetReview(_ context.Context, addr core.Address) (core.Review, error) {
	s.mu.RLock()
	data, ok := s.records[addr]
	s.mu.RUnlock()
	if !ok {
		return core.Review{}, ErrReviewNotFound
	}
	review, err := core.UnmarshalReview(data)
	if err != nil {
		return core.Review{}, err
	}
	review.Addr = addr
	return review, nil
}

func encode(rec core.Record) ([]byte, error) {
	switch r := rec.(type) {
	case core.Task:
		return core.MarshalTask(r), nil
	case core.Bid:
		return core.MarshalBid(r), nil
	case core.Escrow:
		return core.MarshalEscrow(r), nil
	case core.AgentProfile:
		return core.MarshalProfile(r), nil
	case core.Review:
		return core.MarshalReview(r), nil
	default:
		return nil, ErrUnknownRecord
	}
}

// Commit applies the change set atomically: every change is validated
// and encoded before the first byte of state moves, so a rejected
// change set leaves the store untouched.
func (s *MemoryStore) Commit(_ context.Context, cs core.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	type staged struct {
		addr   core.Address
		data   []byte // nil means delete
		create bool
	}
	plan := make([]staged, 0, len(cs))

	for _, change := range cs {
		addr := change.Record.Key()
		_, exists := s.records[addr]
		switch change.Op {
		case core.OpCreate:
			if exists {
				return ErrAlreadyExists
			}
			data, err := encode(change.Record)
			if err != nil {
				return err
			}
			plan = append(plan, staged{addr: addr, data: data, create: true})
		case core.OpUpdate:
			if !exists {
				return notFoundFor(change.Record)
			}
			data, err := encode(change.Record)
			if err != nil {
				return err
			}
			plan = append(plan, staged{addr: addr, data: data})
		case core.OpDelete:
			if !exists {
				return notFoundFor(change.Record)
			}
			plan = append(plan, staged{addr: addr})
		}
	}

	for _, st := range plan {
		if st.data == nil && !st.create {
			delete(s.records, st.addr)
			continue
		}
		s.records[st.addr] = st.data
	}
	return nil
}

func notFoundFor(rec core.Record) error {
	switch rec.(type) {
	case core.Task:
		return ErrTaskNotFound
	case core.Bid:
		return ErrBidNotFound
	case core.Escrow:
		return ErrEscrowNotFound
	case core.AgentProfile:
		return ErrProfileNotFound
	case core.Review:
		return ErrReviewNotFound
	default:
		return ErrUnknownRecord
	}
}
