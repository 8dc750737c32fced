package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dukerupert/chorepoints/internal/apperr"
	"github.com/dukerupert/chorepoints/internal/auth"
	"github.com/dukerupert/chorepoints/internal/logging"
	"github.com/dukerupert/chorepoints/internal/model"
)

const familyID = 1

func member(userID int64, role string) *model.FamilyMembership {
	return &model.FamilyMembership{FamilyID: familyID, UserID: userID, Role: role}
}

func TestDecideRoleTable(t *testing.T) {
	parent := auth.Caller{UserID: 1}
	child := auth.Caller{UserID: 2}

	tests := []struct {
		name   string
		caller auth.Caller
		m      *model.FamilyMembership
		action Action
		target Target
		allow  bool
	}{
		{"parent creates chore", parent, member(1, model.RoleParent), CreateChore, Target{}, true},
		{"parent approves child", parent, member(1, model.RoleParent), ApproveChore, On(2), true},
		{"parent rejects child", parent, member(1, model.RoleParent), RejectChore, On(2), true},
		{"parent self-approve", parent, member(1, model.RoleParent), ApproveChore, On(1), false},
		{"parent self-reject", parent, member(1, model.RoleParent), RejectChore, On(1), false},
		{"parent completes for child", parent, member(1, model.RoleParent), CompleteChore, On(2), true},
		{"parent adjusts child", parent, member(1, model.RoleParent), AdjustPoints, On(2), true},
		{"parent adjusts self", parent, member(1, model.RoleParent), AdjustPoints, On(1), false},
		{"parent edits membership", parent, member(1, model.RoleParent), EditFamilyMembership, Target{}, true},
		{"child completes own", child, member(2, model.RoleChild), CompleteChore, On(2), true},
		{"child completes other", child, member(2, model.RoleChild), CompleteChore, On(3), false},
		{"child redeems", child, member(2, model.RoleChild), RedeemReward, Target{}, true},
		{"child views", child, member(2, model.RoleChild), ViewFamilyData, Target{}, true},
		{"child approves", child, member(2, model.RoleChild), ApproveChore, On(3), false},
		{"child creates chore", child, member(2, model.RoleChild), CreateChore, Target{}, false},
		{"child assigns chore", child, member(2, model.RoleChild), AssignChore, Target{}, false},
		{"child edits membership", child, member(2, model.RoleChild), EditFamilyMembership, Target{}, false},
		{"child adjusts points", child, member(2, model.RoleChild), AdjustPoints, Target{}, false},
		{"child tracks own goal", child, member(2, model.RoleChild), TrackGoal, On(2), true},
		{"child tracks other goal", child, member(2, model.RoleChild), TrackGoal, On(1), false},
		{"non-member views", child, nil, ViewFamilyData, Target{}, false},
		{"unknown action", parent, member(1, model.RoleParent), Action("wipe_tables"), Target{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.caller, tt.m, tt.action, tt.target)
			assert.Equal(t, tt.allow, d.Allowed, d.Reason)
			if !tt.allow {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestDecideRemovedMembership(t *testing.T) {
	removed := time.Now()
	m := member(1, model.RoleParent)
	m.RemovedAt = &removed

	d := Decide(auth.Caller{UserID: 1}, m, ViewFamilyData, Target{})
	assert.False(t, d.Allowed)
}

func TestDecideAdminBypass(t *testing.T) {
	admin := auth.Caller{UserID: 9, GlobalRole: model.GlobalRoleAdmin}

	assert.True(t, Decide(admin, nil, ViewFamilyData, Target{}).Allowed)
	assert.True(t, Decide(admin, nil, ArchiveChore, Target{}).Allowed)

	for _, a := range []Action{ApproveChore, RejectChore, CreateChore, RedeemReward, EditFamilyMembership, AdjustPoints} {
		assert.False(t, Decide(admin, nil, a, On(2)).Allowed, "admin without membership must not %s", a)
	}
}

func TestDecisionErr(t *testing.T) {
	require.NoError(t, Allow().Err())

	err := Deny("nope").Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
}

// Self-moderation is denied for every role and global role combination.
func TestSelfModerationAlwaysDenied(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		userID := rapid.Int64Range(1, 1000).Draw(t, "user")
		role := rapid.SampledFrom([]string{model.RoleParent, model.RoleChild}).Draw(t, "role")
		global := rapid.SampledFrom([]string{model.GlobalRoleStandard, model.GlobalRoleAdmin}).Draw(t, "global")
		action := rapid.SampledFrom([]Action{ApproveChore, RejectChore}).Draw(t, "action")
		hasMembership := rapid.Bool().Draw(t, "member")

		var m *model.FamilyMembership
		if hasMembership {
			m = member(userID, role)
		}
		d := Decide(auth.Caller{UserID: userID, GlobalRole: global}, m, action, On(userID))
		if d.Allowed {
			t.Fatalf("self-moderation allowed: role=%s global=%s action=%s", role, global, action)
		}
	})
}

// A child's permissions never exceed a parent's for the same request.
func TestChildNeverExceedsParent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		userID := rapid.Int64Range(1, 50).Draw(t, "user")
		target := rapid.Int64Range(0, 50).Draw(t, "target")
		action := rapid.SampledFrom(Actions()).Draw(t, "action")
		caller := auth.Caller{UserID: userID}

		child := Decide(caller, member(userID, model.RoleChild), action, On(target))
		parent := Decide(caller, member(userID, model.RoleParent), action, On(target))
		if child.Allowed && !parent.Allowed {
			t.Fatalf("child allowed %s on %d but parent denied: %s", action, target, parent.Reason)
		}
	})
}

type fakeDirectory struct {
	members map[int64]*model.FamilyMembership
	err     error
}

func (f fakeDirectory) Membership(_ context.Context, userID, _ int64) (*model.FamilyMembership, error) {
	return f.members[userID], f.err
}

func TestGuardRequire(t *testing.T) {
	dir := fakeDirectory{members: map[int64]*model.FamilyMembership{
		1: member(1, model.RoleParent),
		2: member(2, model.RoleChild),
	}}
	g := NewGuard(dir, nil, logging.Discard())
	ctx := context.Background()

	require.NoError(t, g.Require(ctx, auth.Caller{UserID: 1}, familyID, ApproveChore, On(2)))

	err := g.Require(ctx, auth.Caller{UserID: 2}, familyID, ApproveChore, On(1))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	err = g.Require(ctx, auth.Caller{UserID: 3}, familyID, ViewFamilyData, Target{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestGuardLookupFailure(t *testing.T) {
	g := NewGuard(fakeDirectory{err: errors.New("disk I/O error")}, nil, logging.Discard())

	_, err := g.Authorize(context.Background(), auth.Caller{UserID: 1}, familyID, ViewFamilyData, Target{})
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
}
