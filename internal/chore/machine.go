package chore

import "github.com/dukerupert/chorepoints/internal/model"

// transitions lists the only legal status moves.
var transitions = map[model.AssignmentStatus][]model.AssignmentStatus{
	model.StatusPending:   {model.StatusCompleted},
	model.StatusCompleted: {model.StatusApproved, model.StatusRejected},
}

// CanTransition reports whether an assignment may move from one status to
// another. Terminal statuses have no outgoing moves.
func CanTransition(from, to model.AssignmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Overdue reports whether a required assignment was completed after its due
// time. Bonus chores are never overdue.
func Overdue(c *model.Chore, a *model.ChoreAssignment) bool {
	return c.Type == model.ChoreRequired && a.CompletedAt != nil && a.CompletedAt.After(a.DueAt)
}
