package goal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/chorepoints/internal/apperr"
	"github.com/dukerupert/chorepoints/internal/auth"
	"github.com/dukerupert/chorepoints/internal/authz"
	"github.com/dukerupert/chorepoints/internal/database"
	"github.com/dukerupert/chorepoints/internal/identity"
	"github.com/dukerupert/chorepoints/internal/logging"
	"github.com/dukerupert/chorepoints/internal/model"
	"github.com/dukerupert/chorepoints/internal/store"
)

type harness struct {
	store    *store.Store
	goals    *Service
	familyID int64
	parent   auth.Caller
	child    auth.Caller
	sibling  auth.Caller
}

func setup(t *testing.T) *harness {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	logger := logging.Discard()
	guard := authz.NewGuard(identity.NewDirectory(s, time.Hour, logger), nil, logger)
	h := &harness{store: s, goals: NewService(s, guard, logger)}

	ctx := context.Background()
	fam, err := s.Families.Create(ctx, "Nguyen")
	require.NoError(t, err)
	h.familyID = fam.ID
	for _, m := range []struct {
		dst   *auth.Caller
		email string
		role  string
	}{
		{&h.parent, "parent@example.com", model.RoleParent},
		{&h.child, "kid@example.com", model.RoleChild},
		{&h.sibling, "sib@example.com", model.RoleChild},
	} {
		u, err := s.Users.Create(ctx, m.email, m.email, "x", model.GlobalRoleStandard)
		require.NoError(t, err)
		_, err = s.Families.AddMember(ctx, fam.ID, u.ID, m.role)
		require.NoError(t, err)
		*m.dst = auth.Caller{UserID: u.ID, GlobalRole: model.GlobalRoleStandard}
	}
	return h
}

func TestGoalCompletesAtTarget(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	g, err := h.goals.Create(ctx, h.child, h.familyID, h.child.UserID, "Save for a bike", 50)
	require.NoError(t, err)
	assert.Equal(t, model.GoalActive, g.Status)

	g, err = h.goals.AddProgress(ctx, h.child, g.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, 30, g.Current)
	assert.Equal(t, model.GoalActive, g.Status)
	assert.Nil(t, g.ClosedAt)

	g, err = h.goals.AddProgress(ctx, h.parent, g.ID, 25)
	require.NoError(t, err)
	assert.Equal(t, model.GoalCompleted, g.Status)
	assert.NotNil(t, g.ClosedAt)

	_, err = h.goals.AddProgress(ctx, h.child, g.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = h.goals.Abandon(ctx, h.child, g.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestGoalAbandon(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	g, err := h.goals.Create(ctx, h.parent, h.familyID, h.child.UserID, "Read 10 books", 10)
	require.NoError(t, err)

	g, err = h.goals.Abandon(ctx, h.child, g.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GoalAbandoned, g.Status)

	_, err = h.goals.AddProgress(ctx, h.child, g.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestGoalPermissions(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	_, err := h.goals.Create(ctx, h.sibling, h.familyID, h.child.UserID, "Not mine", 5)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	g, err := h.goals.Create(ctx, h.child, h.familyID, h.child.UserID, "Mine", 5)
	require.NoError(t, err)
	_, err = h.goals.AddProgress(ctx, h.sibling, g.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	list, err := h.goals.List(ctx, h.sibling, h.familyID, h.child.UserID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGoalValidation(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	_, err := h.goals.Create(ctx, h.parent, h.familyID, h.child.UserID, " ", 5)
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = h.goals.Create(ctx, h.parent, h.familyID, h.child.UserID, "Zero", 0)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	g, err := h.goals.Create(ctx, h.parent, h.familyID, h.child.UserID, "Walk dog", 3)
	require.NoError(t, err)
	_, err = h.goals.AddProgress(ctx, h.parent, g.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	g, err = h.goals.AddProgress(ctx, h.parent, g.ID, -5)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Current)

	_, err = h.goals.Abandon(ctx, h.parent, 4242)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
