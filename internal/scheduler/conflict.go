package scheduler

import "sort"

// Slot is a booked (or candidate) time range on one environment.
type Slot struct {
	ID            string
	EnvironmentID string
	Date          Date
	Start         TimeOfDay
	End           TimeOfDay
	Cancelled     bool
	AffectedUsers []string
}

// Overlaps reports whether [s1,e1) and [s2,e2) intersect. Touching boundaries do not overlap.
func Overlaps(s1, e1, s2, e2 TimeOfDay) bool {
	return s1 < e2 && s2 < e1
}

// HardConflicts returns the existing slots that occupy the candidate's environment
// during an overlapping range.
func HardConflicts(existing []Slot, candidate Slot) []Slot {
	var out []Slot
	for _, slot := range existing {
		if slot.EnvironmentID != candidate.EnvironmentID || !competes(slot, candidate) {
			continue
		}
		out = append(out, slot)
	}
	return out
}

// SoftConflicts returns the overlapping slots on any environment that share an
// affected user with the candidate, together with the sorted set of shared users.
func SoftConflicts(existing []Slot, candidate Slot) ([]Slot, []string) {
	if len(candidate.AffectedUsers) == 0 {
		return nil, nil
	}

	candidateUsers := make(map[string]struct{}, len(candidate.AffectedUsers))
	for _, user := range candidate.AffectedUsers {
		candidateUsers[user] = struct{}{}
	}

	var slots []Slot
	exposed := make(map[string]struct{})
	for _, slot := range existing {
		if !competes(slot, candidate) {
			continue
		}
		shared := sharedUsers(slot.AffectedUsers, candidateUsers)
		if len(shared) == 0 {
			continue
		}
		slots = append(slots, slot)
		for _, user := range shared {
			exposed[user] = struct{}{}
		}
	}

	return slots, sortedKeys(exposed)
}

func competes(slot, candidate Slot) bool {
	if slot.Cancelled {
		return false
	}
	if candidate.ID != "" && slot.ID == candidate.ID {
		return false
	}
	if slot.Date != candidate.Date {
		return false
	}
	return Overlaps(slot.Start, slot.End, candidate.Start, candidate.End)
}

func sharedUsers(users []string, set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	for _, user := range users {
		if _, ok := set[user]; ok {
			seen[user] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
