package schedule

import "sort"

// GenerateSlots slices the open intervals of a day into bookable slots.
//
// Each slot is incrementMinutes long unless durationMinutes is given, in
// which case slots are durationMinutes rounded up to the increment grid.
// Slots never straddle the gap between two intervals (the lunch break), so
// an interval shorter than the slot length yields nothing. The result is
// chronological and deduplicated.
func GenerateSlots(intervals []Interval, incrementMinutes, durationMinutes int) []TimeSlot {
	if incrementMinutes <= 0 {
		return nil
	}

	length := incrementMinutes
	if durationMinutes > 0 {
		length = durationMinutes
		if rem := length % incrementMinutes; rem != 0 {
			length += incrementMinutes - rem
		}
	}

	seen := make(map[TimeSlot]struct{})
	var slots []TimeSlot
	for _, iv := range intervals {
		for start := iv.Start; start+length <= iv.End; start += length {
			slot := TimeSlot{Start: start, End: start + length}
			if _, dup := seen[slot]; dup {
				continue
			}
			seen[slot] = struct{}{}
			slots = append(slots, slot)
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Start != slots[j].Start {
			return slots[i].Start < slots[j].Start
		}
		return slots[i].End < slots[j].End
	})

	return slots
}
