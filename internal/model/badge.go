package model

import "time"

// Badge is a threshold definition. Unlock state is derived, never stored.
type Badge struct {
	ID             int64     `json:"id"`
	FamilyID       int64     `json:"family_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	PointsRequired int       `json:"points_required"`
	StreakRequired int       `json:"streak_required"`
	CreatedAt      time.Time `json:"created_at"`
}
