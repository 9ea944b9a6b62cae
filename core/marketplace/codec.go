package marketplace

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Records serialize to a fixed worst-case layout: an 8-byte type tag,
// then fields in declaration order. Integers are little-endian. Strings
// reserve a 4-byte length prefix plus their maximum length; optional
// references reserve a presence byte plus 32 bytes. The record's own
// address is the storage key and is not part of the payload.

// TagLen is the size of the leading record type tag.
const TagLen = 8

// MilestoneSize is the reserved size of one embedded milestone.
const MilestoneSize = 4 + MaxMilestoneDescLen + 8 + 1 + 1

// recordTag returns the 8-byte type tag for a record type name.
func recordTag(name string) [TagLen]byte {
	sum := sha256.Sum256([]byte("record:" + name))
	var tag [TagLen]byte
	copy(tag[:], sum[:TagLen])
	return tag
}

var (
	taskTag    = recordTag("Task")
	bidTag     = recordTag("Bid")
	escrowTag  = recordTag("Escrow")
	profileTag = recordTag("AgentProfile")
	reviewTag  = recordTag("Review")
)

// TaskSpace is the serialized size of a task with the given milestone
// count. Mirrors the rent-sizing arithmetic of the original program.
func TaskSpace(milestoneCount int) int {
	return TagLen +
		32 + // owner
		4 + MaxTitleLen +
		4 + MaxDescriptionLen +
		8 + // budget
		4 + milestoneCount*MilestoneSize +
		8 + // deadline
		1 + // status
		1 + 32 + // accepted_bid option
		1 + 32 + // escrow option
		8 + // created_at
		8 // updated_at
}

// BidSpace is the serialized size of a bid record.
func BidSpace() int {
	return TagLen + 32 + 32 + 8 + 8 + 4 + MaxProposalLen + 1 + 8
}

// EscrowSpace is the serialized size of an escrow record.
func EscrowSpace() int {
	return TagLen + 32 + 32 + 32 + 8 + 8 + 32 + 1
}

// ProfileSpace is the serialized size of an agent profile record.
func ProfileSpace() int {
	return TagLen + 32 + 4 + MaxNameLen + 4 + 4 + 8 + 8 + 4 + 4 + 8
}

// ReviewSpace is the serialized size of a review record.
func ReviewSpace() int {
	return TagLen + 32 + 32 + 32 + 1 + 4 + MaxReviewLen + 8
}

var taskStatusCodes = map[TaskStatus]uint8{
	TaskOpen:       0,
	TaskInProgress: 1,
	TaskCompleted:  2,
	TaskCancelled:  3,
	TaskDisputed:   4,
}

var taskStatusNames = map[uint8]TaskStatus{
	0: TaskOpen,
	1: TaskInProgress,
	2: TaskCompleted,
	3: TaskCancelled,
	4: TaskDisputed,
}

var bidStatusCodes = map[BidStatus]uint8{
	BidPending:   0,
	BidAccepted:  1,
	BidRejected:  2,
	BidWithdrawn: 3,
}

var bidStatusNames = map[uint8]BidStatus{
	0: BidPending,
	1: BidAccepted,
	2: BidRejected,
	3: BidWithdrawn,
}

type fixedWriter struct {
	buf []byte
	off int
}

func newFixedWriter(size int) *fixedWriter {
	return &fixedWriter{buf: make([]byte, size)}
}

func (w *fixedWriter) putTag(tag [TagLen]byte) {
	copy(w.buf[w.off:], tag[:])
	w.off += TagLen
}

func (w *fixedWriter) putU8(v uint8) {
	w.buf[w.off] = v
	w.off++
}

func (w *fixedWriter) putBool(v bool) {
	if v {
		w.putU8(1)
	} else {
		w.putU8(0)
	}
}

func (w *fixedWriter) putU32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.off:], v)
	w.off += 4
}

func (w *fixedWriter) putU64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.off:], v)
	w.off += 8
}

func (w *fixedWriter) putI64(v int64) {
	w.putU64(uint64(v))
}

// putString writes a length prefix and the bytes, then skips over the
// remaining reservation so the field always occupies 4+max bytes.
func (w *fixedWriter) putString(s string, max int) {
	w.putU32(uint32(len(s)))
	copy(w.buf[w.off:], s)
	w.off += max
}

func (w *fixedWriter) putAddress(a Address) {
	copy(w.buf[w.off:], a[:])
	w.off += 32
}

func (w *fixedWriter) putOptAddress(a *Address) {
	if a == nil {
		w.putU8(0)
		w.off += 32
		return
	}
	w.putU8(1)
	w.putAddress(*a)
}

type fixedReader struct {
	buf []byte
	off int
}

func (r *fixedReader) remaining() int { return len(r.buf) - r.off }

func (r *fixedReader) tag() ([TagLen]byte, error) {
	var tag [TagLen]byte
	if r.remaining() < TagLen {
		return tag, fmt.Errorf("decode: short buffer")
	}
	copy(tag[:], r.buf[r.off:])
	r.off += TagLen
	return tag, nil
}

func (r *fixedReader) u8() (uint8, error) {
	if r.remaining() < 1 {
		return 0, fmt.Errorf("decode: short buffer")
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *fixedReader) boolean() (bool, error) {
	v, err := r.u8()
	return v != 0, err
}

func (r *fixedReader) u32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, fmt.Errorf("decode: short buffer")
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *fixedReader) u64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, fmt.Errorf("decode: short buffer")
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *fixedReader) i64() (int64, error) {
	v, err := r.u64()
	return int64(v), err
}

func (r *fixedReader) str(max int) (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if int(n) > max || r.remaining() < max {
		return "", fmt.Errorf("decode: string length %d exceeds reservation %d", n, max)
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += max
	return s, nil
}

func (r *fixedReader) address() (Address, error) {
	var a Address
	if r.remaining() < 32 {
		return a, fmt.Errorf("decode: short buffer")
	}
	copy(a[:], r.buf[r.off:])
	r.off += 32
	return a, nil
}

func (r *fixedReader) optAddress() (*Address, error) {
	present, err := r.u8()
	if err != nil {
		return nil, err
	}
	a, err := r.address()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	return &a, nil
}

// MarshalTask serializes a task to its fixed layout.
func MarshalTask(t Task) []byte {
	w := newFixedWriter(TaskSpace(len(t.Milestones)))
	w.putTag(taskTag)
	w.putAddress(t.Owner)
	w.putString(t.Title, MaxTitleLen)
	w.putString(t.Description, MaxDescriptionLen)
	w.putU64(t.Budget)
	w.putU32(uint32(len(t.Milestones)))
	for _, m := range t.Milestones {
		w.putString(m.Description, MaxMilestoneDescLen)
		w.putU64(m.Amount)
		w.putBool(m.Completed)
		w.putBool(m.Paid)
	}
	w.putI64(t.Deadline)
	w.putU8(taskStatusCodes[t.Status])
	w.putOptAddress(t.AcceptedBid)
	w.putOptAddress(t.Escrow)
	w.putI64(t.CreatedAt)
	w.putI64(t.UpdatedAt)
	return w.buf
}

// UnmarshalTask decodes a task payload. The record address is not part
// of the payload and must be set by the caller.
func UnmarshalTask(data []byte) (Task, error) {
	r := &fixedReader{buf: data}
	tag, err := r.tag()
	if err != nil {
		return Task{}, err
	}
	if tag != taskTag {
		return Task{}, fmt.Errorf("decode: not a task record")
	}
	var t Task
	if t.Owner, err = r.address(); err != nil {
		return Task{}, err
	}
	if t.Title, err = r.str(MaxTitleLen); err != nil {
		return Task{}, err
	}
	if t.Description, err = r.str(MaxDescriptionLen); err != nil {
		return Task{}, err
	}
	if t.Budget, err = r.u64(); err != nil {
		return Task{}, err
	}
	count, err := r.u32()
	if err != nil {
		return Task{}, err
	}
	if count > MaxMilestones {
		return Task{}, fmt.Errorf("decode: milestone count %d out of range", count)
	}
	t.Milestones = make([]Milestone, count)
	for i := range t.Milestones {
		m := &t.Milestones[i]
		if m.Description, err = r.str(MaxMilestoneDescLen); err != nil {
			return Task{}, err
		}
		if m.Amount, err = r.u64(); err != nil {
			return Task{}, err
		}
		if m.Completed, err = r.boolean(); err != nil {
			return Task{}, err
		}
		if m.Paid, err = r.boolean(); err != nil {
			return Task{}, err
		}
	}
	if t.Deadline, err = r.i64(); err != nil {
		return Task{}, err
	}
	statusCode, err := r.u8()
	if err != nil {
		return Task{}, err
	}
	status, ok := taskStatusNames[statusCode]
	if !ok {
		return Task{}, fmt.Errorf("decode: unknown task status %d", statusCode)
	}
	t.Status = status
	if t.AcceptedBid, err = r.optAddress(); err != nil {
		return Task{}, err
	}
	if t.Escrow, err = r.optAddress(); err != nil {
		return Task{}, err
	}
	if t.CreatedAt, err = r.i64(); err != nil {
		return Task{}, err
	}
	if t.UpdatedAt, err = r.i64(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// MarshalBid serializes a bid to its fixed layout.
func MarshalBid(b Bid) []byte {
	w := newFixedWriter(BidSpace())
	w.putTag(bidTag)
	w.putAddress(b.Task)
	w.putAddress(b.Bidder)
	w.putU64(b.Amount)
	w.putI64(b.Timeline)
	w.putString(b.Proposal, MaxProposalLen)
	w.putU8(bidStatusCodes[b.Status])
	w.putI64(b.CreatedAt)
	return w.buf
}

// UnmarshalBid decodes a bid payload.
func UnmarshalBid(data []byte) (Bid, error) {
	r := &fixedReader{buf: data}
	tag, err := r.tag()
	if err != nil {
		return Bid{}, err
	}
	if tag != bidTag {
		return Bid{}, fmt.Errorf("decode: not a bid record")
	}
	var b Bid
	if b.Task, err = r.address(); err != nil {
		return Bid{}, err
	}
	if b.Bidder, err = r.address(); err != nil {
		return Bid{}, err
	}
	if b.Amount, err = r.u64(); err != nil {
		return Bid{}, err
	}
	if b.Timeline, err = r.i64(); err != nil {
		return Bid{}, err
	}
	if b.Proposal, err = r.str(MaxProposalLen); err != nil {
		return Bid{}, err
	}
	statusCode, err := r.u8()
	if err != nil {
		return Bid{}, err
	}
	status, ok := bidStatusNames[statusCode]
	if !ok {
		return Bid{}, fmt.Errorf("decode: unknown bid status %d", statusCode)
	}
	b.Status = status
	if b.CreatedAt, err = r.i64(); err != nil {
		return Bid{}, err
	}
	return b, nil
}

// MarshalEscrow serializes an escrow to its fixed layout.
func MarshalEscrow(e Escrow) []byte {
	w := newFixedWriter(EscrowSpace())
	w.putTag(escrowTag)
	w.putAddress(e.Task)
	w.putAddress(e.Client)
	w.putAddress(e.Freelancer)
	w.putU64(e.TotalAmount)
	w.putU64(e.ReleasedAmount)
	w.putAddress(e.TokenMint)
	w.putU8(e.Salt)
	return w.buf
}

// UnmarshalEscrow decodes an escrow payload.
func UnmarshalEscrow(data []byte) (Escrow, error) {
	r := &fixedReader{buf: data}
	tag, err := r.tag()
	if err != nil {
		return Escrow{}, err
	}
	if tag != escrowTag {
		return Escrow{}, fmt.Errorf("decode: not an escrow record")
	}
	var e Escrow
	if e.Task, err = r.address(); err != nil {
		return Escrow{}, err
	}
	if e.Client, err = r.address(); err != nil {
		return Escrow{}, err
	}
	if e.Freelancer, err = r.address(); err != nil {
		return Escrow{}, err
	}
	if e.TotalAmount, err = r.u64(); err != nil {
		return Escrow{}, err
	}
	if e.ReleasedAmount, err = r.u64(); err != nil {
		return Escrow{}, err
	}
	if e.TokenMint, err = r.address(); err != nil {
		return Escrow{}, err
	}
	if e.Salt, err = r.u8(); err != nil {
		return Escrow{}, err
	}
	return e, nil
}

// MarshalProfile serializes an agent profile to its fixed layout.
func MarshalProfile(p AgentProfile) []byte {
	w := newFixedWriter(ProfileSpace())
	w.putTag(profileTag)
	w.putAddress(p.Owner)
	w.putString(p.Name, MaxNameLen)
	w.putU32(p.TasksPosted)
	w.putU32(p.TasksCompleted)
	w.putU64(p.TotalEarned)
	w.putU64(p.TotalSpent)
	w.putU32(p.RatingSum)
	w.putU32(p.RatingCount)
	w.putI64(p.CreatedAt)
	return w.buf
}

// UnmarshalProfile decodes an agent profile payload.
func UnmarshalProfile(data []byte) (AgentProfile, error) {
	r := &fixedReader{buf: data}
	tag, err := r.tag()
	if err != nil {
		return AgentProfile{}, err
	}
	if tag != profileTag {
		return AgentProfile{}, fmt.Errorf("decode: not a profile record")
	}
	var p AgentProfile
	if p.Owner, err = r.address(); err != nil {
		return AgentProfile{}, err
	}
	if p.Name, err = r.str(MaxNameLen); err != nil {
		return AgentProfile{}, err
	}
	if p.TasksPosted, err = r.u32(); err != nil {
		return AgentProfile{}, err
	}
	if p.TasksCompleted, err = r.u32(); err != nil {
		return AgentProfile{}, err
	}
	if p.TotalEarned, err = r.u64(); err != nil {
		return AgentProfile{}, err
	}
	if p.TotalSpent, err = r.u64(); err != nil {
		return AgentProfile{}, err
	}
	if p.RatingSum, err = r.u32(); err != nil {
		return AgentProfile{}, err
	}
	if p.RatingCount, err = r.u32(); err != nil {
		return AgentProfile{}, err
	}
	if p.CreatedAt, err = r.i64(); err != nil {
		return AgentProfile{}, err
	}
	return p, nil
}

// MarshalReview serializes a review to its fixed layout.
func MarshalReview(rv Review) []byte {
	w := newFixedWriter(ReviewSpace())
	w.putTag(reviewTag)
	w.putAddress(rv.Reviewer)
	w.putAddress(rv.Reviewee)
	w.putAddress(rv.Task)
	w.putU8(rv.Rating)
	w.putString(rv.ReviewText, MaxReviewLen)
	w.putI64(rv.CreatedAt)
	return w.buf
}

// UnmarshalReview decodes a review payload.
func UnmarshalReview(data []byte) (Review, error) {
	r := &fixedReader{buf: data}
	tag, err := r.tag()
	if err != nil {
		return Review{}, err
	}
	if tag != reviewTag {
		return Review{}, fmt.Errorf("decode: not a review record")
	}
	var rv Review
	if rv.Reviewer, err = r.address(); err != nil {
		return Review{}, err
	}
	if rv.Reviewee, err = r.address(); err != nil {
		return Review{}, err
	}
	if rv.Task, err = r.address(); err != nil {
		return Review{}, err
	}
	if rv.Rating, err = r.u8(); err != nil {
		return Review{}, err
	}
	if rv.ReviewText, err = r.str(MaxReviewLen); err != nil {
		return Review{}, err
	}
	if rv.CreatedAt, err = r.i64(); err != nil {
		return Review{}, err
	}
	return rv, nil
}
