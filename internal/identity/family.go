package identity

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukerupert/chorepoints/internal/apperr"
	"github.com/dukerupert/chorepoints/internal/auth"
	"github.com/dukerupert/chorepoints/internal/authz"
	"github.com/dukerupert/chorepoints/internal/model"
	"github.com/dukerupert/chorepoints/internal/store"
)

// Families manages families and their memberships.
type Families struct {
	store  *store.Store
	guard  *authz.Guard
	logger *slog.Logger
}

func NewFamilies(s *store.Store, guard *authz.Guard, logger *slog.Logger) *Families {
	return &Families{store: s, guard: guard, logger: logger}
}

// Create makes a family with the caller as its first parent.
func (f *Families) Create(ctx context.Context, caller auth.Caller, name string) (*model.Family, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("family name is required")
	}

	var family *model.Family
	err := f.store.Tx(ctx, func(tx *store.Store) error {
		var err error
		family, err = tx.Families.Create(ctx, name)
		if err != nil {
			return err
		}
		_, err = tx.Families.AddMember(ctx, family.ID, caller.UserID, model.RoleParent)
		return err
	})
	if err != nil {
		return nil, apperr.Unavailable("create family", err)
	}
	f.logger.Info("family created", "family_id", family.ID, "user_id", caller.UserID)
	return family, nil
}

func (f *Families) Get(ctx context.Context, caller auth.Caller, familyID int64) (*model.Family, error) {
	if err := f.guard.Require(ctx, caller, familyID, authz.ViewFamilyData, authz.Target{}); err != nil {
		return nil, err
	}
	family, err := f.store.Families.GetByID(ctx, familyID)
	if err != nil {
		return nil, apperr.Unavailable("get family", err)
	}
	if family == nil {
		return nil, apperr.NotFound("family %d not found", familyID)
	}
	return family, nil
}

func (f *Families) ListForCaller(ctx context.Context, caller auth.Caller) ([]model.Family, error) {
	families, err := f.store.Families.ListForUser(ctx, caller.UserID)
	if err != nil {
		return nil, apperr.Unavailable("list families", err)
	}
	return families, nil
}

func (f *Families) Members(ctx context.Context, caller auth.Caller, familyID int64) ([]model.FamilyMembership, error) {
	if _, err := f.Get(ctx, caller, familyID); err != nil {
		return nil, err
	}
	members, err := f.store.Families.ListMembers(ctx, familyID)
	if err != nil {
		return nil, apperr.Unavailable("list members", err)
	}
	return members, nil
}

// AddMember grants an existing user a role in the family. An active member
// keeps their role; use ChangeRole for that.
func (f *Families) AddMember(ctx context.Context, caller auth.Caller, familyID, userID int64, role string) (*model.FamilyMembership, error) {
	if err := f.guard.Require(ctx, caller, familyID, authz.EditFamilyMembership, authz.On(userID)); err != nil {
		return nil, err
	}
	if !model.ValidRole(role) {
		return nil, apperr.Invalid("unknown role %q", role)
	}

	var m *model.FamilyMembership
	err := f.store.Tx(ctx, func(tx *store.Store) error {
		u, err := tx.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil || u.DeletedAt != nil {
			return apperr.NotFound("user %d not found", userID)
		}
		existing, err := tx.Families.GetMember(ctx, familyID, userID)
		if err != nil {
			return err
		}
		if existing.Active() {
			return apperr.Invalid("user %d is already a member", userID)
		}
		m, err = tx.Families.AddMember(ctx, familyID, userID, role)
		return err
	})
	if err != nil {
		return nil, apperr.Unavailable("add member", err)
	}
	f.logger.Info("member added", "family_id", familyID, "user_id", userID, "role", role, "by", caller.UserID)
	return m, nil
}

func (f *Families) ChangeRole(ctx context.Context, caller auth.Caller, familyID, userID int64, role string) (*model.FamilyMembership, error) {
	if err := f.guard.Require(ctx, caller, familyID, authz.EditFamilyMembership, authz.On(userID)); err != nil {
		return nil, err
	}
	if !model.ValidRole(role) {
		return nil, apperr.Invalid("unknown role %q", role)
	}

	var m *model.FamilyMembership
	err := f.store.Tx(ctx, func(tx *store.Store) error {
		current, err := activeMember(ctx, tx, familyID, userID)
		if err != nil {
			return err
		}
		if current.Role == role {
			m = current
			return nil
		}
		if current.Role == model.RoleParent {
			if err := keepsAParent(ctx, tx, familyID); err != nil {
				return err
			}
		}
		m, err = tx.Families.UpdateMemberRole(ctx, familyID, userID, role)
		return err
	})
	if err != nil {
		return nil, apperr.Unavailable("change role", err)
	}
	f.logger.Info("member role changed", "family_id", familyID, "user_id", userID, "role", role, "by", caller.UserID)
	return m, nil
}

// RemoveMember soft-removes a member. Their ledger entries stay.
func (f *Families) RemoveMember(ctx context.Context, caller auth.Caller, familyID, userID int64) error {
	if err := f.guard.Require(ctx, caller, familyID, authz.EditFamilyMembership, authz.On(userID)); err != nil {
		return err
	}

	err := f.store.Tx(ctx, func(tx *store.Store) error {
		current, err := activeMember(ctx, tx, familyID, userID)
		if err != nil {
			return err
		}
		if current.Role == model.RoleParent {
			if err := keepsAParent(ctx, tx, familyID); err != nil {
				return err
			}
		}
		return tx.Families.RemoveMember(ctx, familyID, userID)
	})
	if err != nil {
		return apperr.Unavailable("remove member", err)
	}
	f.logger.Info("member removed", "family_id", familyID, "user_id", userID, "by", caller.UserID)
	return nil
}

func activeMember(ctx context.Context, tx *store.Store, familyID, userID int64) (*model.FamilyMembership, error) {
	m, err := tx.Families.GetMember(ctx, familyID, userID)
	if err != nil {
		return nil, err
	}
	if !m.Active() {
		return nil, apperr.NotFound("user %d is not a member of family %d", userID, familyID)
	}
	return m, nil
}

func keepsAParent(ctx context.Context, tx *store.Store, familyID int64) error {
	n, err := tx.Families.CountParents(ctx, familyID)
	if err != nil {
		return err
	}
	if n <= 1 {
		return apperr.Invalid("a family must keep at least one parent")
	}
	return nil
}
