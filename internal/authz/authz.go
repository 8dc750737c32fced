// Package authz decides whether a caller may perform an action within a
// family. Decide is a pure function over the caller and their membership;
// Guard looks the membership up and reports the decision.
package authz

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukerupert/chorepoints/internal/apperr"
	"github.com/dukerupert/chorepoints/internal/auth"
	"github.com/dukerupert/chorepoints/internal/metrics"
	"github.com/dukerupert/chorepoints/internal/model"
)

type Action string

const (
	CreateChore          Action = "create_chore"
	AssignChore          Action = "assign_chore"
	CompleteChore        Action = "complete_chore"
	ApproveChore         Action = "approve_chore"
	RejectChore          Action = "reject_chore"
	EditFamilyMembership Action = "edit_family_membership"
	RedeemReward         Action = "redeem_reward"
	ViewFamilyData       Action = "view_family_data"
	ManageCatalog        Action = "manage_catalog"
	AdjustPoints         Action = "adjust_points"
	ArchiveChore         Action = "archive_chore"
	TrackGoal            Action = "track_goal"
)

var actions = map[Action]bool{
	CreateChore: true, AssignChore: true, CompleteChore: true, ApproveChore: true,
	RejectChore: true, EditFamilyMembership: true, RedeemReward: true, ViewFamilyData: true,
	ManageCatalog: true, AdjustPoints: true, ArchiveChore: true, TrackGoal: true,
}

// Actions returns the closed action set.
func Actions() []Action {
	return []Action{
		CreateChore, AssignChore, CompleteChore, ApproveChore, RejectChore,
		EditFamilyMembership, RedeemReward, ViewFamilyData,
		ManageCatalog, AdjustPoints, ArchiveChore, TrackGoal,
	}
}

func (a Action) Valid() bool { return actions[a] }

// adminBypass lists the actions a global admin may take without a family
// role. Moderation is never among them.
var adminBypass = map[Action]bool{
	ViewFamilyData: true,
	ArchiveChore:   true,
}

// selfTargeted lists the parent actions that may never target the caller.
var selfTargeted = map[Action]bool{
	ApproveChore: true,
	RejectChore:  true,
	AdjustPoints: true,
}

// Target names the member an action is aimed at: the assignee of a chore
// assignment or the owner of a goal. Zero means none.
type Target struct {
	MemberID int64
}

// On targets the given member.
func On(memberID int64) Target { return Target{MemberID: memberID} }

type Decision struct {
	Allowed bool
	Reason  string
}

func Allow() Decision { return Decision{Allowed: true} }

func Deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Err converts a denial into a Forbidden error, nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperr.Forbidden("%s", d.Reason)
}

// Decide applies the role table. m is the caller's membership in the target
// family and may be nil.
func Decide(caller auth.Caller, m *model.FamilyMembership, action Action, target Target) Decision {
	if !action.Valid() {
		return Deny("unknown action %q", action)
	}
	if caller.IsAdmin() && adminBypass[action] {
		return Allow()
	}
	if !m.Active() || m.UserID != caller.UserID {
		return Deny("not a member of this family")
	}

	switch m.Role {
	case model.RoleParent:
		if selfTargeted[action] && target.MemberID == caller.UserID {
			return Deny("cannot %s for yourself", action)
		}
		return Allow()

	case model.RoleChild:
		switch action {
		case RedeemReward, ViewFamilyData:
			return Allow()
		case CompleteChore:
			if target.MemberID == caller.UserID {
				return Allow()
			}
			return Deny("children may only complete their own assignments")
		case TrackGoal:
			if target.MemberID == caller.UserID {
				return Allow()
			}
			return Deny("children may only track their own goals")
		}
		return Deny("%s requires the parent role", action)
	}
	return Deny("unknown role %q", m.Role)
}

// Directory resolves a caller's membership in a family. It returns nil
// when there is none.
type Directory interface {
	Membership(ctx context.Context, userID, familyID int64) (*model.FamilyMembership, error)
}

type Guard struct {
	dir     Directory
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewGuard(dir Directory, m *metrics.Metrics, logger *slog.Logger) *Guard {
	return &Guard{dir: dir, metrics: m, logger: logger}
}

// Authorize looks up the caller's membership and decides. The error is
// non-nil only when the lookup itself failed.
func (g *Guard) Authorize(ctx context.Context, caller auth.Caller, familyID int64, action Action, target Target) (Decision, error) {
	m, err := g.dir.Membership(ctx, caller.UserID, familyID)
	if err != nil {
		return Decision{}, apperr.Unavailable("lookup membership", err)
	}
	d := Decide(caller, m, action, target)
	if !d.Allowed {
		g.metrics.AuthzDenied(string(action))
		g.logger.Debug("authorization denied",
			"user_id", caller.UserID, "family_id", familyID,
			"action", action, "reason", d.Reason)
	}
	return d, nil
}

// Require is Authorize folded into a single error: Forbidden on denial,
// Unavailable when the lookup failed.
func (g *Guard) Require(ctx context.Context, caller auth.Caller, familyID int64, action Action, target Target) error {
	d, err := g.Authorize(ctx, caller, familyID, action, target)
	if err != nil {
		return err
	}
	return d.Err()
}
