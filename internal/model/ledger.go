package model

import "time"

type CauseKind string

const (
	CauseChoreAssignment  CauseKind = "chore_assignment"
	CauseRewardRedemption CauseKind = "reward_redemption"
	CauseAdjustment       CauseKind = "adjustment"
)

// LedgerEntry is an append-only points delta. Corrections are new entries.
type LedgerEntry struct {
	ID        int64     `json:"id"`
	FamilyID  int64     `json:"family_id"`
	UserID    int64     `json:"user_id"`
	Delta     int       `json:"delta"`
	CauseKind CauseKind `json:"cause_kind"`
	CauseID   int64     `json:"cause_id"`
	Note      string    `json:"note,omitempty"`
	CreatedBy *int64    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type PointBalance struct {
	UserID      int64 `json:"user_id"`
	FamilyID    int64 `json:"family_id"`
	TotalEarned int   `json:"total_earned"`
	TotalSpent  int   `json:"total_spent"`
	Balance     int   `json:"balance"`
}
