package scheduler

import (
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Assignment pairs one message with its slot and send time.
type Assignment struct {
	MessageID    string
	SlotIdx      int
	FromEmail    string
	ScheduledFor time.Time
}

// Planner computes slot assignments. It is pure: given the same slot
// snapshot, message order, and clock, it produces the same plan. All
// randomness in the system lives in the staging-time jitter delay, never
// here.
type Planner struct {
	rules Rules
}

// NewPlanner builds a planner over the given rules.
func NewPlanner(rules Rules) Planner { return Planner{rules: rules} }

// Plan assigns every message the earliest permissible time across the
// rotation. For each message, each slot offers a candidate: the later of
// now and its last assignment plus the minimum spacing, adjusted into the
// send window. The earliest candidate wins; ties go to the lowest slot
// index. The chosen slot's last-assignment time advances so the next
// message sees the updated rotation.
//
// Slot last-assignment times are mutated in place; the caller persists
// them in the same transaction as the assignments.
func (p Planner) Plan(slots []*domain.DomainSlot, messages []*domain.Message, now time.Time) []Assignment {
	if len(slots) == 0 || len(messages) == 0 {
		return nil
	}

	out := make([]Assignment, 0, len(messages))
	for _, m := range messages {
		best := -1
		var bestAt time.Time
		for i, sl := range slots {
			cand := p.candidate(sl, now)
			if best == -1 || cand.Before(bestAt) {
				best = i
				bestAt = cand
			}
		}

		chosen := slots[best]
		at := bestAt
		chosen.LastAssignedAt = &at
		out = append(out, Assignment{
			MessageID:    m.ID,
			SlotIdx:      chosen.Idx,
			FromEmail:    chosen.FromAddress(),
			ScheduledFor: at,
		})
	}
	return out
}

// candidate is the earliest time this slot could carry another message.
func (p Planner) candidate(sl *domain.DomainSlot, now time.Time) time.Time {
	cand := now
	if sl.LastAssignedAt != nil {
		if next := sl.LastAssignedAt.Add(p.rules.MinSpacing); next.After(cand) {
			cand = next
		}
	}
	return p.rules.AdjustToWindow(cand)
}
