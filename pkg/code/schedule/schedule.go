package schedule

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// MaxTranches bounds the size of a vesting contract account
	MaxTranches = 64
)

var (
	ErrMalformedSchedule = errors.New("malformed schedule")
)

// Tranche is a single scheduled release of tokens
type Tranche struct {
	ReleaseTime uint64 // Unix seconds
	Amount      uint64 // Quarks
}

// Schedule is an immutable, validated list of tranches ordered by strictly
// increasing release time.
type Schedule struct {
	tranches []Tranche
	total    uint64
}

// New validates release times and amounts into a Schedule. The caller must
// supply tranches pre-sorted, since the order is never changed here.
func New(releaseTimes, amounts []uint64) (Schedule, error) {
	if len(releaseTimes) != len(amounts) {
		return Schedule{}, errors.Wrapf(ErrMalformedSchedule, "%d release times for %d amounts", len(releaseTimes), len(amounts))
	}

	tranches := make([]Tranche, len(releaseTimes))
	for i := range releaseTimes {
		tranches[i] = Tranche{
			ReleaseTime: releaseTimes[i],
			Amount:      amounts[i],
		}
	}
	return FromTranches(tranches)
}

// FromTranches validates an ordered set of tranches into a Schedule
func FromTranches(tranches []Tranche) (Schedule, error) {
	if len(tranches) == 0 {
		return Schedule{}, errors.Wrap(ErrMalformedSchedule, "at least one tranche is required")
	}

	if len(tranches) > MaxTranches {
		return Schedule{}, errors.Wrapf(ErrMalformedSchedule, "%d tranches exceeds max of %d", len(tranches), MaxTranches)
	}

	var total uint64
	for i, tranche := range tranches {
		if tranche.Amount == 0 {
			return Schedule{}, errors.Wrapf(ErrMalformedSchedule, "tranche %d has zero amount", i)
		}

		if i > 0 && tranche.ReleaseTime <= tranches[i-1].ReleaseTime {
			return Schedule{}, errors.Wrapf(ErrMalformedSchedule, "tranche %d release time is not after tranche %d", i, i-1)
		}

		if tranche.Amount > math.MaxUint64-total {
			return Schedule{}, errors.Wrap(ErrMalformedSchedule, "total amount overflows")
		}
		total += tranche.Amount
	}

	copied := make([]Tranche, len(tranches))
	copy(copied, tranches)

	return Schedule{
		tranches: copied,
		total:    total,
	}, nil
}

// Len returns the number of tranches
func (s Schedule) Len() int {
	return len(s.tranches)
}

// Total returns the sum of all tranche amounts
func (s Schedule) Total() uint64 {
	return s.total
}

// Tranches returns a copy of the ordered tranches
func (s Schedule) Tranches() []Tranche {
	res := make([]Tranche, len(s.tranches))
	copy(res, s.tranches)
	return res
}

// Tranche returns the tranche at index i
func (s Schedule) Tranche(i int) Tranche {
	return s.tranches[i]
}

// ReleaseTimes returns the ordered release times
func (s Schedule) ReleaseTimes() []uint64 {
	res := make([]uint64, len(s.tranches))
	for i, tranche := range s.tranches {
		res[i] = tranche.ReleaseTime
	}
	return res
}

// Amounts returns the ordered amounts
func (s Schedule) Amounts() []uint64 {
	res := make([]uint64, len(s.tranches))
	for i, tranche := range s.tranches {
		res[i] = tranche.Amount
	}
	return res
}

// Due computes the tranches that are releasable at now, given a cursor to the
// first unreleased tranche. It returns the new cursor position and the summed
// amount of every due tranche. When nothing is due, next equals cursor and the
// amount is zero.
func (s Schedule) Due(cursor int, now time.Time) (next int, amount uint64) {
	if cursor < 0 {
		cursor = 0
	}

	unixNow := now.Unix()
	next = cursor
	for next < len(s.tranches) {
		if unixNow < 0 || s.tranches[next].ReleaseTime > uint64(unixNow) {
			break
		}

		amount += s.tranches[next].Amount
		next++
	}
	return next, amount
}

// Remaining returns the amount not yet released at the provided cursor
func (s Schedule) Remaining(cursor int) uint64 {
	var res uint64
	for i := cursor; i < len(s.tranches); i++ {
		if i < 0 {
			continue
		}
		res += s.tranches[i].Amount
	}
	return res
}

// IsFullyVested returns whether every tranche is released at the provided cursor
func (s Schedule) IsFullyVested(cursor int) bool {
	return cursor >= len(s.tranches)
}

// NextReleaseTime returns the release time of the tranche at the cursor, if
// one exists.
func (s Schedule) NextReleaseTime(cursor int) (time.Time, bool) {
	if cursor < 0 || cursor >= len(s.tranches) {
		return time.Time{}, false
	}
	return time.Unix(int64(s.tranches[cursor].ReleaseTime), 0), true
}

func (s Schedule) String() string {
	parts := make([]string, len(s.tranches))
	for i, tranche := range s.tranches {
		parts[i] = fmt.Sprintf("(%d,%d)", tranche.ReleaseTime, tranche.Amount)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
