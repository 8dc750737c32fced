// Package ledger keeps the append-only points ledger. Balances and streaks
// are always recomputed from entries and assignments, never stored.
package ledger

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukerupert/chorepoints/internal/apperr"
	"github.com/dukerupert/chorepoints/internal/auth"
	"github.com/dukerupert/chorepoints/internal/authz"
	"github.com/dukerupert/chorepoints/internal/event"
	"github.com/dukerupert/chorepoints/internal/keylock"
	"github.com/dukerupert/chorepoints/internal/metrics"
	"github.com/dukerupert/chorepoints/internal/model"
	"github.com/dukerupert/chorepoints/internal/store"
)

// Snapshot is a member's standing derived from the ledger at one moment.
type Snapshot struct {
	UserID   int64 `json:"user_id"`
	FamilyID int64 `json:"family_id"`
	Earned   int   `json:"total_earned"`
	Spent    int   `json:"total_spent"`
	Balance  int   `json:"balance"`
	Streak   int   `json:"streak"`
}

type Ledger struct {
	store   *store.Store
	guard   *authz.Guard
	locks   *keylock.Map
	events  event.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

func New(s *store.Store, guard *authz.Guard, locks *keylock.Map, events event.Publisher, m *metrics.Metrics, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:   s,
		guard:   guard,
		locks:   locks,
		events:  events,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("chorepoints/ledger"),
		now:     time.Now,
	}
}

// LockAccount serializes writes to one member's ledger in one family.
func (l *Ledger) LockAccount(ctx context.Context, userID, familyID int64) (func(), error) {
	unlock, err := l.locks.Lock(ctx, keylock.AccountKey(userID, familyID))
	if err != nil {
		return nil, apperr.Unavailable("lock account", err)
	}
	return unlock, nil
}

// SnapshotOf computes a member's snapshot through q, which may be a
// transaction-bound store.
func (l *Ledger) SnapshotOf(ctx context.Context, q *store.Store, userID, familyID int64) (Snapshot, error) {
	totals, err := q.Ledger.Totals(ctx, userID, familyID)
	if err != nil {
		return Snapshot{}, err
	}
	streak, err := l.streakOf(ctx, q, userID, familyID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		UserID:   userID,
		FamilyID: familyID,
		Earned:   totals.TotalEarned,
		Spent:    totals.TotalSpent,
		Balance:  totals.Balance,
		Streak:   streak,
	}, nil
}

func (l *Ledger) streakOf(ctx context.Context, q *store.Store, userID, familyID int64) (int, error) {
	assignments, err := q.Chores.ListAssignments(ctx, familyID, model.AssignmentFilter{
		AssigneeID: &userID,
		ChoreType:  model.ChoreRequired,
	})
	if err != nil {
		return 0, err
	}
	settled, err := q.Ledger.SettledCauses(ctx, userID, familyID)
	if err != nil {
		return 0, err
	}
	return Streak(assignments, settled, l.now()), nil
}

// Balance is the sum of the member's entries in the family.
func (l *Ledger) Balance(ctx context.Context, userID, familyID int64) (int, error) {
	totals, err := l.store.Ledger.Totals(ctx, userID, familyID)
	if err != nil {
		return 0, apperr.Unavailable("sum ledger", err)
	}
	return totals.Balance, nil
}

func (l *Ledger) Streak(ctx context.Context, userID, familyID int64) (int, error) {
	n, err := l.streakOf(ctx, l.store, userID, familyID)
	if err != nil {
		return 0, apperr.Unavailable("compute streak", err)
	}
	return n, nil
}

// RecordSettlement credits an approved assignment. It runs inside the
// caller's transaction; the ledger's unique cause index rejects a second
// settlement of the same assignment.
func (l *Ledger) RecordSettlement(ctx context.Context, tx *store.Store, a *model.ChoreAssignment, points int, approverID int64) (*model.LedgerEntry, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.record_settlement", trace.WithAttributes(
		attribute.Int64("assignment.id", a.ID),
		attribute.Int("points", points),
	))
	defer span.End()

	return tx.Ledger.Append(ctx, model.LedgerEntry{
		FamilyID:  a.FamilyID,
		UserID:    a.AssigneeID,
		Delta:     points,
		CauseKind: model.CauseChoreAssignment,
		CauseID:   a.ID,
		CreatedBy: &approverID,
		CreatedAt: l.now(),
	})
}

// RecordRedemption debits cost for a redemption inside the caller's
// transaction. The balance check and the write share that transaction, and
// the caller holds the account lock.
func (l *Ledger) RecordRedemption(ctx context.Context, tx *store.Store, userID, familyID int64, cost int, redemptionID int64) (*model.LedgerEntry, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.record_redemption", trace.WithAttributes(
		attribute.Int64("redemption.id", redemptionID),
		attribute.Int("cost", cost),
	))
	defer span.End()

	if err := l.ensureFunds(ctx, tx, userID, familyID, cost); err != nil {
		span.SetAttributes(attribute.Bool("insufficient", true))
		return nil, err
	}
	return tx.Ledger.Append(ctx, model.LedgerEntry{
		FamilyID:  familyID,
		UserID:    userID,
		Delta:     -cost,
		CauseKind: model.CauseRewardRedemption,
		CauseID:   redemptionID,
		CreatedBy: &userID,
		CreatedAt: l.now(),
	})
}

func (l *Ledger) ensureFunds(ctx context.Context, tx *store.Store, userID, familyID int64, amount int) error {
	totals, err := tx.Ledger.Totals(ctx, userID, familyID)
	if err != nil {
		return err
	}
	if totals.Balance < amount {
		return apperr.InsufficientBalance("balance %d is less than %d", totals.Balance, amount)
	}
	return nil
}

// Account returns a member's snapshot.
func (l *Ledger) Account(ctx context.Context, caller auth.Caller, familyID, userID int64) (Snapshot, error) {
	if err := l.guard.Require(ctx, caller, familyID, authz.ViewFamilyData, authz.On(userID)); err != nil {
		return Snapshot{}, err
	}
	if err := l.requireMember(ctx, l.store, familyID, userID, true); err != nil {
		return Snapshot{}, err
	}
	snap, err := l.SnapshotOf(ctx, l.store, userID, familyID)
	if err != nil {
		return Snapshot{}, apperr.Unavailable("load account", err)
	}
	return snap, nil
}

// History lists a member's entries, newest first.
func (l *Ledger) History(ctx context.Context, caller auth.Caller, familyID, userID int64) ([]model.LedgerEntry, error) {
	if err := l.guard.Require(ctx, caller, familyID, authz.ViewFamilyData, authz.On(userID)); err != nil {
		return nil, err
	}
	if err := l.requireMember(ctx, l.store, familyID, userID, true); err != nil {
		return nil, err
	}
	entries, err := l.store.Ledger.List(ctx, userID, familyID)
	if err != nil {
		return nil, apperr.Unavailable("list ledger", err)
	}
	return entries, nil
}

// Adjust appends a correcting entry. A debit may not take the balance below
// zero.
func (l *Ledger) Adjust(ctx context.Context, caller auth.Caller, familyID, userID int64, delta int, note string) (*model.LedgerEntry, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.adjust", trace.WithAttributes(
		attribute.Int64("family.id", familyID),
		attribute.Int64("user.id", userID),
		attribute.Int("delta", delta),
	))
	defer span.End()

	if err := l.guard.Require(ctx, caller, familyID, authz.AdjustPoints, authz.On(userID)); err != nil {
		return nil, err
	}
	note = strings.TrimSpace(note)
	if delta == 0 {
		return nil, apperr.Invalid("adjustment must be non-zero")
	}
	if note == "" {
		return nil, apperr.Invalid("adjustment requires a note")
	}

	unlock, err := l.LockAccount(ctx, userID, familyID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var entry *model.LedgerEntry
	err = l.store.Tx(ctx, func(tx *store.Store) error {
		if err := l.requireMember(ctx, tx, familyID, userID, false); err != nil {
			return err
		}
		if delta < 0 {
			if err := l.ensureFunds(ctx, tx, userID, familyID, -delta); err != nil {
				return err
			}
		}
		var err error
		entry, err = tx.Ledger.Append(ctx, model.LedgerEntry{
			FamilyID:  familyID,
			UserID:    userID,
			Delta:     delta,
			CauseKind: model.CauseAdjustment,
			Note:      note,
			CreatedBy: &caller.UserID,
			CreatedAt: l.now(),
		})
		return err
	})
	if err != nil {
		return nil, apperr.Unavailable("adjust points", err)
	}

	l.logger.Info("points adjusted", "family_id", familyID, "user_id", userID, "delta", delta, "by", caller.UserID)
	e := event.New(event.PointsAdjusted, familyID, userID, caller.UserID, entry.ID)
	e.Points = delta
	l.events.Publish(ctx, e)
	return entry, nil
}

// requireMember reports NotFound unless userID belongs to the family.
// Removed members still have readable history when includeRemoved is set.
func (l *Ledger) requireMember(ctx context.Context, q *store.Store, familyID, userID int64, includeRemoved bool) error {
	m, err := q.Families.GetMember(ctx, familyID, userID)
	if err != nil {
		return apperr.Unavailable("get member", err)
	}
	if m == nil || (!includeRemoved && !m.Active()) {
		return apperr.NotFound("user %d is not a member of family %d", userID, familyID)
	}
	return nil
}
