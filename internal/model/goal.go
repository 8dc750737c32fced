package model

import "time"

type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalAbandoned GoalStatus = "abandoned"
)

func (s GoalStatus) Terminal() bool {
	return s == GoalCompleted || s == GoalAbandoned
}

type Goal struct {
	ID        int64      `json:"id"`
	FamilyID  int64      `json:"family_id"`
	OwnerID   int64      `json:"owner_id"`
	Title     string     `json:"title"`
	Target    int        `json:"target"`
	Current   int        `json:"current"`
	Status    GoalStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}
