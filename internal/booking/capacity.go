package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hanamidental/booking-service/internal/schedule"
)

// CapacityCheck is the result of asking whether a slot can take one more
// appointment of a treatment.
type CapacityCheck struct {
	CanReserve   bool
	CurrentCount int
	MaxCapacity  int
}

// Evaluator answers the two confirm-time questions: does the slot have
// room for this treatment, and does this patient already sit in it. The
// same counting runs on the advisory availability path; only the
// repository's transactional confirm makes it authoritative.
type Evaluator struct {
	repo   Repository
	policy CapacityPolicy
}

func NewEvaluator(repo Repository, policy CapacityPolicy) *Evaluator {
	return &Evaluator{repo: repo, policy: policy}
}

func (e *Evaluator) Policy() CapacityPolicy {
	return e.policy
}

// CheckCapacity counts current occupants of (treatment, date, slot) against
// the policy limit. A data-layer failure fails closed: CanReserve is false
// and the error is returned.
func (e *Evaluator) CheckCapacity(ctx context.Context, treatmentName string, date time.Time, timeSlot string, exclude *uuid.UUID) (CapacityCheck, error) {
	max := e.policy.Capacity(treatmentName)

	occupants, err := e.repo.SlotOccupants(ctx, treatmentName, date, timeSlot, exclude)
	if err != nil {
		return CapacityCheck{CanReserve: false, MaxCapacity: max}, fmt.Errorf("count slot occupants: %w", err)
	}

	count := DistinctCount(occupants)
	return CapacityCheck{
		CanReserve:   count < max,
		CurrentCount: count,
		MaxCapacity:  max,
	}, nil
}

// CheckConflict reports whether the patient already holds a confirmed
// appointment overlapping (date, slot). Fails closed on lookup errors.
func (e *Evaluator) CheckConflict(ctx context.Context, email string, date time.Time, timeSlot string, exclude *uuid.UUID) (bool, error) {
	confirmed, err := e.repo.ConfirmedForPatient(ctx, email, date, exclude)
	if err != nil {
		return false, fmt.Errorf("load confirmed appointments: %w", err)
	}
	return !anySlotOverlap(confirmed, timeSlot), nil
}

// DistinctCount collapses duplicate appointment IDs. A pending appointment
// naming the same slot at two preference ranks occupies it once.
func DistinctCount(ids []uuid.UUID) int {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}

// anySlotOverlap checks a candidate slot label against the confirmed slots
// of appointments. Labels that fail to parse fall back to exact equality,
// so a malformed historical row still blocks its own label.
func anySlotOverlap(appts []Appointment, timeSlot string) bool {
	candidate, candErr := schedule.ParseTimeSlot(timeSlot)

	for _, a := range appts {
		if a.ConfirmedSlot == nil {
			continue
		}
		if *a.ConfirmedSlot == timeSlot {
			return true
		}
		if candErr != nil {
			continue
		}
		existing, err := schedule.ParseTimeSlot(*a.ConfirmedSlot)
		if err != nil {
			continue
		}
		if candidate.Overlaps(existing) {
			return true
		}
	}
	return false
}
