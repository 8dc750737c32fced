package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dukerupert/chorepoints/internal/apperr"
	"github.com/dukerupert/chorepoints/internal/auth"
	"github.com/dukerupert/chorepoints/internal/authz"
	"github.com/dukerupert/chorepoints/internal/database"
	"github.com/dukerupert/chorepoints/internal/event"
	"github.com/dukerupert/chorepoints/internal/identity"
	"github.com/dukerupert/chorepoints/internal/keylock"
	"github.com/dukerupert/chorepoints/internal/logging"
	"github.com/dukerupert/chorepoints/internal/model"
	"github.com/dukerupert/chorepoints/internal/store"
)

type harness struct {
	store    *store.Store
	ledger   *Ledger
	events   *event.Recorder
	familyID int64
	parent   auth.Caller
	child    auth.Caller
}

func setup(t *testing.T) *harness {
	t.Helper()
	h, closeDB := newHarness(t)
	t.Cleanup(closeDB)
	return h
}

func newHarness(t require.TestingT) (*harness, func()) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)

	s := store.New(db)
	logger := logging.Discard()
	guard := authz.NewGuard(identity.NewDirectory(s, time.Hour, logger), nil, logger)
	rec := &event.Recorder{}

	h := &harness{store: s, ledger: New(s, guard, keylock.New(), rec, nil, logger), events: rec}
	ctx := context.Background()
	fam, err := s.Families.Create(ctx, "Haddad")
	require.NoError(t, err)
	h.familyID = fam.ID
	h.parent = h.member(t, "parent@example.com", model.RoleParent)
	h.child = h.member(t, "child@example.com", model.RoleChild)
	return h, func() { db.Close() }
}

func (h *harness) member(t require.TestingT, email, role string) auth.Caller {
	ctx := context.Background()
	u, err := h.store.Users.Create(ctx, email, email, "x", model.GlobalRoleStandard)
	require.NoError(t, err)
	_, err = h.store.Families.AddMember(ctx, h.familyID, u.ID, role)
	require.NoError(t, err)
	return auth.Caller{UserID: u.ID, GlobalRole: model.GlobalRoleStandard}
}

func TestAdjust(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	entry, err := h.ledger.Adjust(ctx, h.parent, h.familyID, h.child.UserID, 25, "birthday bonus")
	require.NoError(t, err)
	assert.Equal(t, model.CauseAdjustment, entry.CauseKind)
	assert.Equal(t, 25, entry.Delta)

	_, err = h.ledger.Adjust(ctx, h.parent, h.familyID, h.child.UserID, -5, "broke a lamp")
	require.NoError(t, err)

	bal, err := h.ledger.Balance(ctx, h.child.UserID, h.familyID)
	require.NoError(t, err)
	assert.Equal(t, 20, bal)

	require.Len(t, h.events.OfType(event.PointsAdjusted), 2)

	history, err := h.ledger.History(ctx, h.child, h.familyID, h.child.UserID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, -5, history[0].Delta, "newest first")
}

func TestAdjustRejections(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	_, err := h.ledger.Adjust(ctx, h.parent, h.familyID, h.child.UserID, 10, "seed")
	require.NoError(t, err)

	tests := []struct {
		name   string
		caller auth.Caller
		target int64
		delta  int
		note   string
		want   error
	}{
		{"overdraw", h.parent, h.child.UserID, -11, "too much", apperr.ErrInsufficientBalance},
		{"zero", h.parent, h.child.UserID, 0, "nothing", apperr.ErrInvalid},
		{"no note", h.parent, h.child.UserID, 3, "  ", apperr.ErrInvalid},
		{"child", h.child, h.child.UserID, 3, "self service", apperr.ErrForbidden},
		{"own account", h.parent, h.parent.UserID, 3, "raise", apperr.ErrForbidden},
		{"not a member", h.parent, 9999, 3, "ghost", apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.ledger.Adjust(ctx, tt.caller, h.familyID, tt.target, tt.delta, tt.note)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	bal, err := h.ledger.Balance(ctx, h.child.UserID, h.familyID)
	require.NoError(t, err)
	assert.Equal(t, 10, bal)
}

func TestAccountViewPermissions(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	sibling := h.member(t, "sibling@example.com", model.RoleChild)

	_, err := h.ledger.Account(ctx, h.child, h.familyID, h.child.UserID)
	assert.NoError(t, err)
	_, err = h.ledger.Account(ctx, h.parent, h.familyID, h.child.UserID)
	assert.NoError(t, err)

	outsider := auth.Caller{UserID: sibling.UserID + 100, GlobalRole: model.GlobalRoleStandard}
	_, err = h.ledger.Account(ctx, outsider, h.familyID, h.child.UserID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

// Random credits and debits never leave a negative balance, and the balance
// always equals the sum of accepted deltas.
func TestBalanceNeverNegative(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h, closeDB := newHarness(rt)
		defer closeDB()
		ctx := context.Background()
		want := 0

		deltas := rapid.SliceOfN(rapid.IntRange(-30, 30).Filter(func(n int) bool { return n != 0 }), 1, 20).Draw(rt, "deltas")
		for _, d := range deltas {
			_, err := h.ledger.Adjust(ctx, h.parent, h.familyID, h.child.UserID, d, "step")
			switch {
			case err == nil:
				want += d
			case errors.Is(err, apperr.ErrInsufficientBalance):
				if want+d >= 0 {
					rt.Fatalf("debit %d rejected with balance %d", d, want)
				}
			default:
				rt.Fatalf("adjust %d: %v", d, err)
			}

			bal, err := h.ledger.Balance(ctx, h.child.UserID, h.familyID)
			if err != nil {
				rt.Fatal(err)
			}
			if bal < 0 || bal != want {
				rt.Fatalf("balance = %d, want %d", bal, want)
			}
		}
	})
}

func TestStreak(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	at := func(h int) time.Time { return now.Add(time.Duration(h) * time.Hour) }
	ptr := func(t time.Time) *time.Time { return &t }

	approved := func(id int64, due, done int) model.ChoreAssignment {
		return model.ChoreAssignment{ID: id, Status: model.StatusApproved, DueAt: at(due), CompletedAt: ptr(at(done))}
	}
	settled := map[int64]bool{1: true, 2: true, 3: true, 4: true, 5: true}

	tests := []struct {
		name string
		in   []model.ChoreAssignment
		want int
	}{
		{"empty", nil, 0},
		{"three on time", []model.ChoreAssignment{approved(1, -1, -2), approved(2, -25, -26), approved(3, -49, -50)}, 3},
		{"late breaks", []model.ChoreAssignment{approved(1, -1, -2), approved(2, -25, -20), approved(3, -49, -50)}, 1},
		{"latest late", []model.ChoreAssignment{approved(1, -1, 0)}, 0},
		{"rejected breaks", []model.ChoreAssignment{
			approved(1, -1, -2),
			{ID: 9, Status: model.StatusRejected, DueAt: at(-25)},
			approved(3, -49, -50),
		}, 1},
		{"open assignments skipped", []model.ChoreAssignment{
			{ID: 10, Status: model.StatusPending, DueAt: at(5)},
			{ID: 11, Status: model.StatusCompleted, DueAt: at(2), CompletedAt: ptr(at(-1))},
			approved(1, -1, -2),
		}, 1},
		{"missed pending breaks", []model.ChoreAssignment{
			{ID: 10, Status: model.StatusPending, DueAt: at(-1)},
			approved(1, -25, -26),
		}, 0},
		{"unsettled approval skipped", []model.ChoreAssignment{
			approved(42, -1, -2),
			approved(1, -25, -26),
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Streak(tt.in, settled, now))
		})
	}
}

// Prepending an on-time settled approval always extends the streak by one.
func TestStreakExtends(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	statuses := []model.AssignmentStatus{model.StatusPending, model.StatusCompleted, model.StatusApproved, model.StatusRejected}

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 10).Draw(rt, "n")
		settled := map[int64]bool{}
		var history []model.ChoreAssignment
		for i := 0; i < n; i++ {
			due := now.Add(-time.Duration(i+1) * 24 * time.Hour)
			done := due.Add(time.Duration(rapid.IntRange(-5, 5).Draw(rt, "offset")) * time.Hour)
			a := model.ChoreAssignment{
				ID:          int64(i + 1),
				Status:      rapid.SampledFrom(statuses).Draw(rt, "status"),
				DueAt:       due,
				CompletedAt: &done,
			}
			settled[a.ID] = a.Status == model.StatusApproved
			history = append(history, a)
		}

		before := Streak(history, settled, now)
		done := now.Add(-time.Hour)
		head := model.ChoreAssignment{ID: 100, Status: model.StatusApproved, DueAt: now, CompletedAt: &done}
		settled[head.ID] = true
		after := Streak(append([]model.ChoreAssignment{head}, history...), settled, now)

		if after != before+1 {
			rt.Fatalf("streak after prepend = %d, want %d", after, before+1)
		}
	})
}

type memberDirectory struct{}

func (memberDirectory) Membership(_ context.Context, userID, familyID int64) (*model.FamilyMembership, error) {
	role := model.RoleChild
	if userID == 1 {
		role = model.RoleParent
	}
	return &model.FamilyMembership{UserID: userID, FamilyID: familyID, Role: role}, nil
}

func TestStoreFailuresAreUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger := logging.Discard()
	locks := keylock.New()
	l := New(store.New(db), authz.NewGuard(memberDirectory{}, nil, logger), locks, &event.Recorder{}, nil, logger)
	ctx := context.Background()

	mock.ExpectQuery("SELECT COALESCE").WillReturnError(errors.New("disk I/O error"))
	_, err = l.Balance(ctx, 2, 7)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)

	mock.ExpectBegin().WillReturnError(context.DeadlineExceeded)
	_, err = l.Adjust(ctx, auth.Caller{UserID: 1}, 7, 2, 5, "bonus")
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	assert.Equal(t, 0, locks.Len(), "account lock released")

	require.NoError(t, mock.ExpectationsWereMet())
}
