package reward

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/chorepoints/internal/apperr"
	"github.com/dukerupert/chorepoints/internal/auth"
	"github.com/dukerupert/chorepoints/internal/authz"
	"github.com/dukerupert/chorepoints/internal/database"
	"github.com/dukerupert/chorepoints/internal/event"
	"github.com/dukerupert/chorepoints/internal/identity"
	"github.com/dukerupert/chorepoints/internal/keylock"
	"github.com/dukerupert/chorepoints/internal/ledger"
	"github.com/dukerupert/chorepoints/internal/logging"
	"github.com/dukerupert/chorepoints/internal/metrics"
	"github.com/dukerupert/chorepoints/internal/model"
	"github.com/dukerupert/chorepoints/internal/store"
)

type harness struct {
	store   *store.Store
	ledger  *ledger.Ledger
	rewards *Service
	events  *event.Recorder

	familyID int64
	parent   auth.Caller
	child    auth.Caller
}

func setup(t *testing.T) *harness {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	logger := logging.Discard()
	m := metrics.New()
	guard := authz.NewGuard(identity.NewDirectory(s, time.Hour, logger), m, logger)
	locks := keylock.New()
	rec := &event.Recorder{}
	l := ledger.New(s, guard, locks, rec, m, logger)

	h := &harness{
		store:   s,
		ledger:  l,
		rewards: NewService(s, guard, l, rec, m, logger),
		events:  rec,
	}
	fam, err := s.Families.Create(context.Background(), "Okafor")
	require.NoError(t, err)
	h.familyID = fam.ID
	h.parent = h.member(t, h.familyID, "parent@example.com", model.RoleParent)
	h.child = h.member(t, h.familyID, "kid@example.com", model.RoleChild)
	return h
}

func (h *harness) member(t *testing.T, familyID int64, email, role string) auth.Caller {
	t.Helper()
	ctx := context.Background()
	u, err := h.store.Users.Create(ctx, email, email, "x", model.GlobalRoleStandard)
	require.NoError(t, err)
	_, err = h.store.Families.AddMember(ctx, familyID, u.ID, role)
	require.NoError(t, err)
	return auth.Caller{UserID: u.ID, GlobalRole: model.GlobalRoleStandard}
}

func (h *harness) fund(t *testing.T, c auth.Caller, points int) {
	t.Helper()
	_, err := h.ledger.Adjust(context.Background(), h.parent, h.familyID, c.UserID, points, "allowance")
	require.NoError(t, err)
}

func (h *harness) reward(t *testing.T, cost int, active bool) *model.Reward {
	t.Helper()
	r, err := h.rewards.Create(context.Background(), h.parent, h.familyID, Input{
		Title: "Movie night", PointCost: cost, Active: active,
	})
	require.NoError(t, err)
	return r
}

func (h *harness) balance(t *testing.T, c auth.Caller) int {
	t.Helper()
	b, err := h.ledger.Balance(context.Background(), c.UserID, h.familyID)
	require.NoError(t, err)
	return b
}

func TestRedeem(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	h.fund(t, h.child, 30)
	r := h.reward(t, 20, true)

	receipt, err := h.rewards.Redeem(ctx, h.child, h.familyID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, receipt.Balance)
	assert.Equal(t, -20, receipt.Entry.Delta)
	assert.Equal(t, model.CauseRewardRedemption, receipt.Entry.CauseKind)
	assert.Equal(t, receipt.Redemption.ID, receipt.Entry.CauseID)
	assert.Equal(t, 20, receipt.Redemption.PointsSpent)
	assert.Equal(t, 10, h.balance(t, h.child))

	evs := h.events.OfType(event.RewardRedeemed)
	require.Len(t, evs, 1)
	assert.Equal(t, h.child.UserID, evs[0].MemberID)
	assert.Equal(t, -20, evs[0].Points)

	list, err := h.rewards.Redemptions(ctx, h.parent, h.familyID, h.child.UserID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRedeemInsufficientBalance(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	h.fund(t, h.child, 15)
	r := h.reward(t, 20, true)

	_, err := h.rewards.Redeem(ctx, h.child, h.familyID, r.ID)
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)
	assert.Equal(t, 15, h.balance(t, h.child))

	list, err := h.rewards.Redemptions(ctx, h.parent, h.familyID, h.child.UserID)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, h.events.OfType(event.RewardRedeemed))
}

func TestRedeemRejections(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	h.fund(t, h.child, 100)
	inactive := h.reward(t, 5, false)

	other, err := h.store.Families.Create(ctx, "Neighbors")
	require.NoError(t, err)
	neighbor := h.member(t, other.ID, "neighbor@example.com", model.RoleParent)
	foreign, err := h.store.Rewards.Create(ctx, other.ID, "Pizza", "", 5, true)
	require.NoError(t, err)
	active := h.reward(t, 5, true)

	_, err = h.rewards.Redeem(ctx, h.child, h.familyID, inactive.ID)
	assert.ErrorIs(t, err, apperr.ErrRewardInactive)

	_, err = h.rewards.Redeem(ctx, h.child, h.familyID, foreign.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.rewards.Redeem(ctx, h.child, h.familyID, 4242)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.rewards.Redeem(ctx, neighbor, h.familyID, active.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	assert.Equal(t, 100, h.balance(t, h.child))
}

func TestConcurrentRedeemNeverOverdraws(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	h.fund(t, h.child, 50)
	r := h.reward(t, 20, true)

	const attempts = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		poor int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.rewards.Redeem(ctx, h.child, h.familyID, r.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.KindOf(err) == apperr.KindInsufficientBalance:
				poor++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, ok)
	assert.Equal(t, attempts-2, poor)
	assert.Equal(t, 10, h.balance(t, h.child))
}

func TestCatalog(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	_, err := h.rewards.Create(ctx, h.child, h.familyID, Input{Title: "Candy", PointCost: 5, Active: true})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = h.rewards.Create(ctx, h.parent, h.familyID, Input{Title: " ", PointCost: 5})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = h.rewards.Create(ctx, h.parent, h.familyID, Input{Title: "Candy", PointCost: 0})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	r := h.reward(t, 5, true)
	updated, err := h.rewards.Update(ctx, h.parent, r.ID, Input{Title: "Candy bar", PointCost: 8, Active: false})
	require.NoError(t, err)
	assert.Equal(t, "Candy bar", updated.Title)
	assert.Equal(t, 8, updated.PointCost)
	assert.False(t, updated.Active)

	_, err = h.rewards.Update(ctx, h.parent, 4242, Input{Title: "x", PointCost: 1})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	list, err := h.rewards.List(ctx, h.child, h.familyID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, r.ID, list[0].ID)
}
