package model

import "time"

// Family roles. A user holds at most one per family.
const (
	RoleParent = "parent"
	RoleChild  = "child"
)

// Global user roles.
const (
	GlobalRoleStandard = "standard"
	GlobalRoleAdmin    = "admin"
)

type User struct {
	ID         int64      `json:"id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	GlobalRole string     `json:"global_role"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

func (u *User) IsAdmin() bool {
	return u.GlobalRole == GlobalRoleAdmin
}

type Family struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type FamilyMembership struct {
	ID        int64      `json:"id"`
	FamilyID  int64      `json:"family_id"`
	UserID    int64      `json:"user_id"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	RemovedAt *time.Time `json:"removed_at,omitempty"`
}

func (m *FamilyMembership) Active() bool {
	return m != nil && m.RemovedAt == nil
}

func ValidRole(role string) bool {
	return role == RoleParent || role == RoleChild
}
