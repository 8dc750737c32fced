package ledger

import (
	"time"

	"github.com/dukerupert/chorepoints/internal/model"
)

// Streak counts consecutive on-time approved completions of required chores,
// walking assignments from the most recent due time backwards. settled holds
// the assignment ids that have a settlement entry.
//
// An approved assignment counts only when it was completed by its due time.
// A late approval, a rejection, or a pending assignment whose due time has
// passed ends the walk. Assignments still open (pending and not yet due, or
// completed on time and awaiting moderation) are skipped.
func Streak(assignments []model.ChoreAssignment, settled map[int64]bool, now time.Time) int {
	streak := 0
	for i := range assignments {
		a := &assignments[i]
		switch a.Status {
		case model.StatusApproved:
			if !settled[a.ID] {
				continue
			}
			if !a.OnTime() {
				return streak
			}
			streak++
		case model.StatusRejected:
			return streak
		case model.StatusCompleted:
			if !a.OnTime() {
				return streak
			}
		case model.StatusPending:
			if a.DueAt.Before(now) {
				return streak
			}
		}
	}
	return streak
}
