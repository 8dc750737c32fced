package model

import "time"

type ChoreType string

const (
	ChoreRequired ChoreType = "required"
	ChoreBonus    ChoreType = "bonus"
)

func (t ChoreType) Valid() bool {
	return t == ChoreRequired || t == ChoreBonus
}

// Chore is a reusable template owned by a family.
type Chore struct {
	ID             int64      `json:"id"`
	FamilyID       int64      `json:"family_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Points         int        `json:"points"`
	Type           ChoreType  `json:"type"`
	RecurrenceRule string     `json:"recurrence_rule"`
	AssignedTo     *int64     `json:"assigned_to"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
}

func (c *Chore) Recurring() bool {
	return c.RecurrenceRule != ""
}

type AssignmentStatus string

const (
	StatusPending   AssignmentStatus = "pending"
	StatusCompleted AssignmentStatus = "completed"
	StatusApproved  AssignmentStatus = "approved"
	StatusRejected  AssignmentStatus = "rejected"
)

func (s AssignmentStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ChoreAssignment is one occurrence of a chore assigned to a member.
type ChoreAssignment struct {
	ID          int64            `json:"id"`
	ChoreID     int64            `json:"chore_id"`
	FamilyID    int64            `json:"family_id"`
	AssigneeID  int64            `json:"assignee_id"`
	DueAt       time.Time        `json:"due_at"`
	Status      AssignmentStatus `json:"status"`
	CompletedAt *time.Time       `json:"completed_at"`
	ApproverID  *int64           `json:"approver_id"`
	DecidedAt   *time.Time       `json:"decided_at"`
	Notes       *string          `json:"notes"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// OnTime reports whether the assignment was marked done by its due time.
func (a *ChoreAssignment) OnTime() bool {
	return a.CompletedAt != nil && !a.CompletedAt.After(a.DueAt)
}

// AssignmentFilter narrows ListAssignments. Zero values match everything.
type AssignmentFilter struct {
	AssigneeID *int64
	ChoreID    *int64
	Status     AssignmentStatus
	ChoreType  ChoreType
	DueBefore  *time.Time
}
