package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/chorepoints/internal/apperr"
	"github.com/dukerupert/chorepoints/internal/auth"
	"github.com/dukerupert/chorepoints/internal/authz"
	"github.com/dukerupert/chorepoints/internal/database"
	"github.com/dukerupert/chorepoints/internal/logging"
	"github.com/dukerupert/chorepoints/internal/model"
	"github.com/dukerupert/chorepoints/internal/store"
)

type harness struct {
	store    *store.Store
	dir      *Directory
	families *Families
}

func setup(t *testing.T) harness {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	logger := logging.Discard()
	dir := NewDirectory(s, time.Hour, logger)
	dir.bcryptCost = bcrypt.MinCost
	guard := authz.NewGuard(dir, nil, logger)
	return harness{store: s, dir: dir, families: NewFamilies(s, guard, logger)}
}

func (h harness) register(t *testing.T, email string) (*model.User, auth.Caller) {
	t.Helper()
	ctx := context.Background()
	u, err := h.dir.Register(ctx, email, "User "+email, "correct horse")
	require.NoError(t, err)
	sess, err := h.dir.Login(ctx, email, "correct horse")
	require.NoError(t, err)
	caller, err := h.dir.Resolve(ctx, sess.Token)
	require.NoError(t, err)
	return u, caller
}

func TestRegisterValidation(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	tests := []struct {
		name, email, display, password string
	}{
		{"bad email", "not-an-email", "Alice", "long enough"},
		{"empty name", "a@example.com", "  ", "long enough"},
		{"short password", "a@example.com", "Alice", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.dir.Register(ctx, tt.email, tt.display, tt.password)
			assert.ErrorIs(t, err, apperr.ErrInvalid)
		})
	}

	_, err := h.dir.Register(ctx, "Alice@Example.com", "Alice", "long enough")
	require.NoError(t, err)
	_, err = h.dir.Register(ctx, "alice@example.com", "Alice again", "long enough")
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestLoginAndResolve(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	u, caller := h.register(t, "alice@example.com")

	assert.Equal(t, u.ID, caller.UserID)
	assert.Equal(t, model.GlobalRoleStandard, caller.GlobalRole)

	_, err := h.dir.Login(ctx, "alice@example.com", "wrong password")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	_, err = h.dir.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = h.dir.Resolve(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	_, err = h.dir.Resolve(ctx, "deadbeef")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestLogoutInvalidatesSession(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	_, err := h.dir.Register(ctx, "alice@example.com", "Alice", "correct horse")
	require.NoError(t, err)
	sess, err := h.dir.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	caller, err := h.dir.Resolve(ctx, sess.Token)
	require.NoError(t, err)

	require.NoError(t, h.dir.Logout(ctx, caller))
	_, err = h.dir.Resolve(ctx, sess.Token)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestDeletedUserCannotResolve(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	_, err := h.dir.Register(ctx, "alice@example.com", "Alice", "correct horse")
	require.NoError(t, err)
	sess, err := h.dir.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	caller, err := h.dir.Resolve(ctx, sess.Token)
	require.NoError(t, err)

	require.NoError(t, h.dir.DeleteAccount(ctx, caller))

	_, err = h.dir.Resolve(ctx, sess.Token)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	_, err = h.dir.Login(ctx, "alice@example.com", "correct horse")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestCreateFamilyMakesCallerParent(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	_, mom := h.register(t, "mom@example.com")

	f, err := h.families.Create(ctx, mom, "Smiths")
	require.NoError(t, err)

	m, err := h.dir.Membership(ctx, mom.UserID, f.ID)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, model.RoleParent, m.Role)

	list, err := h.families.ListForCaller(ctx, mom)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMembershipEdits(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	_, mom := h.register(t, "mom@example.com")
	kidUser, kid := h.register(t, "kid@example.com")
	_, stranger := h.register(t, "stranger@example.com")

	f, err := h.families.Create(ctx, mom, "Smiths")
	require.NoError(t, err)

	_, err = h.families.AddMember(ctx, mom, f.ID, kidUser.ID, model.RoleChild)
	require.NoError(t, err)

	// Re-adding never escalates silently.
	_, err = h.families.AddMember(ctx, mom, f.ID, kidUser.ID, model.RoleParent)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	// A child cannot edit memberships; a stranger cannot see the family.
	_, err = h.families.ChangeRole(ctx, kid, f.ID, kidUser.ID, model.RoleParent)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = h.families.Members(ctx, stranger, f.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = h.families.AddMember(ctx, mom, f.ID, 9999, model.RoleChild)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	members, err := h.families.Members(ctx, kid, f.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, h.families.RemoveMember(ctx, mom, f.ID, kidUser.ID))
	_, err = h.families.Members(ctx, kid, f.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestLastParentIsKept(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	momUser, mom := h.register(t, "mom@example.com")
	dadUser, _ := h.register(t, "dad@example.com")

	f, err := h.families.Create(ctx, mom, "Smiths")
	require.NoError(t, err)

	_, err = h.families.ChangeRole(ctx, mom, f.ID, momUser.ID, model.RoleChild)
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	err = h.families.RemoveMember(ctx, mom, f.ID, momUser.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = h.families.AddMember(ctx, mom, f.ID, dadUser.ID, model.RoleParent)
	require.NoError(t, err)

	m, err := h.families.ChangeRole(ctx, mom, f.ID, momUser.ID, model.RoleChild)
	require.NoError(t, err)
	assert.Equal(t, model.RoleChild, m.Role)
}

func TestAdminCanViewWithoutMembership(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	_, mom := h.register(t, "mom@example.com")
	f, err := h.families.Create(ctx, mom, "Smiths")
	require.NoError(t, err)

	admin := auth.Caller{UserID: 999, GlobalRole: model.GlobalRoleAdmin}
	got, err := h.families.Get(ctx, admin, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Smiths", got.Name)

	_, err = h.families.Get(ctx, admin, 4242)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.families.AddMember(ctx, admin, f.ID, 1, model.RoleChild)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
