package marketplace

import "math"

// checkedAddU64 adds two unsigned amounts, failing instead of wrapping.
func checkedAddU64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

// checkedSubU64 subtracts b from a, failing instead of wrapping.
func checkedSubU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrAmountUnderflow
	}
	return a - b, nil
}

// checkedAddU32 adds two 32-bit counters, failing instead of wrapping.
func checkedAddU32(a, b uint32) (uint32, error) {
	if a > math.MaxUint32-b {
		return 0, ErrRatingSumOverflow
	}
	return a + b, nil
}

// checkedAddI64 adds two signed timestamps, failing instead of wrapping.
// Used for deadline arithmetic where both operands are positive in
// practice but come from caller input.
func checkedAddI64(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrTimelineOverflow
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, ErrTimelineOverflow
	}
	return a + b, nil
}

// sumMilestoneAmounts totals milestone amounts with overflow checking.
func sumMilestoneAmounts(milestones []Milestone) (uint64, error) {
	var total uint64
	for _, m := range milestones {
		var err error
		total, err = checkedAddU64(total, m.Amount)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
