// Package chore implements the chore assignment lifecycle:
//
//	pending -> completed -> approved | rejected
//
// Every transition is authorized, serialized per assignment, and applied
// with a compare-and-set inside a transaction. Approval settles points in
// the same transaction.
package chore

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
	"github.com/dukerupert/chorepoints/internal/badge"
	"github.com/dukerupert/chorepoints/internal/event"
	"github.com/dukerupert/chorepoints/internal/keylock"
	"github.com/dukerupert/chorepoints/internal/ledger"
	"github.com/dukerupert/chorepoints/internal/metrics"
	"github.com/dukerupert/chorepoints/internal/model"
	"github.com/dukerupert/chorepoints/internal/recurrence"
	"github.com/dukerupert/chorepoints/internal/store"
)

type Engine struct {
	store   *store.Store
	guard   *authz.Guard
	ledger  *ledger.Ledger
	locks   *keylock.Map
	events  event.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

func NewEngine(
	s *store.Store,
	guard *authz.Guard,
	l *ledger.Ledger,
	locks *keylock.Map,
	events event.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		store:   s,
		guard:   guard,
		ledger:  l,
		locks:   locks,
		events:  events,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("chorepoints/chore"),
		now:     time.Now,
	}
}

// Input describes a chore template.
type Input struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Points         int             `json:"points"`
	Type           model.ChoreType `json:"type"`
	RecurrenceRule string          `json:"recurrence_rule"`
	AssignedTo     *int64          `json:"assigned_to"`
}

// Completion is the result of Complete. Overdue is informational: a late
// required chore is still completed but will not extend the streak.
type Completion struct {
	Assignment *model.ChoreAssignment `json:"assignment"`
	Overdue    bool                   `json:"overdue"`
}

// Rejection is the result of Reject. Next is the spawned next-period
// instance of a recurring required chore, if any.
type Rejection struct {
	Assignment *model.ChoreAssignment `json:"assignment"`
	Next       *model.ChoreAssignment `json:"next,omitempty"`
}

// --- Templates ---

func (e *Engine) CreateChore(ctx context.Context, caller auth.Caller, familyID int64, in Input) (*model.Chore, error) {
	if err := e.guard.Require(ctx, caller, familyID, authz.CreateChore, authz.Target{}); err != nil {
		return nil, err
	}
	p, err := e.validate(ctx, familyID, in)
	if err != nil {
		return nil, err
	}
	c, err := e.store.Chores.Create(ctx, familyID, p)
	if err != nil {
		return nil, apperr.Unavailable("create chore", err)
	}
	e.logger.Info("chore created", "chore_id", c.ID, "family_id", familyID, "type", c.Type)
	return c, nil
}

// UpdateChore is the administrative edit of a template. Existing
// assignments keep their own due times and status.
func (e *Engine) UpdateChore(ctx context.Context, caller auth.Caller, choreID int64, in Input) (*model.Chore, error) {
	c, err := e.chore(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if err := e.guard.Require(ctx, caller, c.FamilyID, authz.CreateChore, authz.Target{}); err != nil {
		return nil, err
	}
	if c.ArchivedAt != nil {
		return nil, apperr.Invalid("chore %d is archived", choreID)
	}
	p, err := e.validate(ctx, c.FamilyID, in)
	if err != nil {
		return nil, err
	}
	updated, err := e.store.Chores.Update(ctx, choreID, p)
	if err != nil {
		return nil, apperr.Unavailable("update chore", err)
	}
	return updated, nil
}

// ArchiveChore stops future spawns. Assignments already made are untouched.
func (e *Engine) ArchiveChore(ctx context.Context, caller auth.Caller, choreID int64) (*model.Chore, error) {
	c, err := e.chore(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if err := e.guard.Require(ctx, caller, c.FamilyID, authz.ArchiveChore, authz.Target{}); err != nil {
		return nil, err
	}
	if err := e.store.Chores.Archive(ctx, choreID); err != nil {
		return nil, apperr.Unavailable("archive chore", err)
	}
	e.logger.Info("chore archived", "chore_id", choreID, "by", caller.UserID)
	return e.chore(ctx, choreID)
}

func (e *Engine) Chore(ctx context.Context, caller auth.Caller, choreID int64) (*model.Chore, error) {
	c, err := e.chore(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if err := e.guard.Require(ctx, caller, c.FamilyID, authz.ViewFamilyData, authz.Target{}); err != nil {
		return nil, err
	}
	return c, nil
}

func (e *Engine) Chores(ctx context.Context, caller auth.Caller, familyID int64) ([]model.Chore, error) {
	if err := e.guard.Require(ctx, caller, familyID, authz.ViewFamilyData, authz.Target{}); err != nil {
		return nil, err
	}
	chores, err := e.store.Chores.List(ctx, familyID)
	if err != nil {
		return nil, apperr.Unavailable("list chores", err)
	}
	return chores, nil
}

func (e *Engine) validate(ctx context.Context, familyID int64, in Input) (store.ChoreParams, error) {
	p := store.ChoreParams{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Points:      in.Points,
		Type:        in.Type,
		AssignedTo:  in.AssignedTo,
	}
	if p.Name == "" {
		return p, apperr.Invalid("chore name is required")
	}
	if p.Points < 0 {
		return p, apperr.Invalid("points must not be negative")
	}
	if !p.Type.Valid() {
		return p, apperr.Invalid("chore type must be %q or %q", model.ChoreRequired, model.ChoreBonus)
	}
	if rule := strings.TrimSpace(in.RecurrenceRule); rule != "" {
		r, err := recurrence.Parse(rule)
		if err != nil {
			return p, apperr.Invalid("invalid recurrence rule: %v", err)
		}
		p.RecurrenceRule = r.String()
	}
	if p.AssignedTo != nil {
		if err := e.requireMember(ctx, e.store, familyID, *p.AssignedTo); err != nil {
			return p, err
		}
	}
	return p, nil
}

// --- Assignments ---

// Assign creates a pending assignment of a chore to a member.
func (e *Engine) Assign(ctx context.Context, caller auth.Caller, choreID, assigneeID int64, dueAt time.Time, notes *string) (*model.ChoreAssignment, error) {
	c, err := e.chore(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if err := e.guard.Require(ctx, caller, c.FamilyID, authz.AssignChore, authz.On(assigneeID)); err != nil {
		return nil, err
	}
	if c.ArchivedAt != nil {
		return nil, apperr.Invalid("chore %d is archived", choreID)
	}
	if dueAt.IsZero() {
		return nil, apperr.Invalid("due time is required")
	}
	if err := e.requireMember(ctx, e.store, c.FamilyID, assigneeID); err != nil {
		return nil, err
	}

	a, err := e.store.Chores.CreateAssignment(ctx, c, assigneeID, dueAt.UTC(), notes)
	if err != nil {
		return nil, apperr.Unavailable("create assignment", err)
	}
	e.logger.Info("chore assigned", "assignment_id", a.ID, "chore_id", c.ID, "assignee_id", assigneeID, "due_at", a.DueAt)
	return a, nil
}

func (e *Engine) Assignment(ctx context.Context, caller auth.Caller, id int64) (*model.ChoreAssignment, error) {
	a, err := e.assignment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.guard.Require(ctx, caller, a.FamilyID, authz.ViewFamilyData, authz.Target{}); err != nil {
		return nil, err
	}
	return a, nil
}

func (e *Engine) Assignments(ctx context.Context, caller auth.Caller, familyID int64, f model.AssignmentFilter) ([]model.ChoreAssignment, error) {
	if err := e.guard.Require(ctx, caller, familyID, authz.ViewFamilyData, authz.Target{}); err != nil {
		return nil, err
	}
	list, err := e.store.Chores.ListAssignments(ctx, familyID, f)
	if err != nil {
		return nil, apperr.Unavailable("list assignments", err)
	}
	return list, nil
}

// Complete moves a pending assignment to completed.
func (e *Engine) Complete(ctx context.Context, caller auth.Caller, id int64, notes *string) (*Completion, error) {
	ctx, span := e.tracer.Start(ctx, "chore.complete", trace.WithAttributes(attribute.Int64("assignment.id", id)))
	defer span.End()

	unlock, err := e.lockAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := e.assignment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.guard.Require(ctx, caller, a.FamilyID, authz.CompleteChore, authz.On(a.AssigneeID)); err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, model.StatusCompleted) {
		return nil, invalidTransition(a, model.StatusCompleted)
	}

	var c *model.Chore
	now := e.now().UTC()
	err = e.store.Tx(ctx, func(tx *store.Store) error {
		ok, err := tx.Chores.MarkCompleted(ctx, id, now, notes)
		if err != nil {
			return err
		}
		if a, err = tx.Chores.GetAssignment(ctx, id); err != nil {
			return err
		}
		if !ok {
			return invalidTransition(a, model.StatusCompleted)
		}
		c, err = tx.Chores.GetByID(ctx, a.ChoreID)
		return err
	})
	if err != nil {
		return nil, apperr.Unavailable("complete assignment", err)
	}

	overdue := Overdue(c, a)
	span.SetAttributes(attribute.Bool("overdue", overdue))
	e.metrics.Transition(string(model.StatusPending), string(model.StatusCompleted))
	e.logger.Info("assignment transition",
		"assignment_id", id, "from", model.StatusPending, "to", model.StatusCompleted,
		"by", caller.UserID, "overdue", overdue)

	ev := event.New(event.ChoreCompleted, a.FamilyID, a.AssigneeID, caller.UserID, a.ID)
	ev.Data = map[string]any{"chore_id": c.ID, "overdue": overdue}
	e.events.Publish(ctx, ev)

	return &Completion{Assignment: a, Overdue: overdue}, nil
}

// Approve moves a completed assignment to approved and settles its points.
// Approving an assignment that is already approved succeeds without a
// second settlement.
func (e *Engine) Approve(ctx context.Context, caller auth.Caller, id int64, notes *string) (*model.ChoreAssignment, error) {
	ctx, span := e.tracer.Start(ctx, "chore.approve", trace.WithAttributes(attribute.Int64("assignment.id", id)))
	defer span.End()

	unlock, err := e.lockAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := e.assignment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.guard.Require(ctx, caller, a.FamilyID, authz.ApproveChore, authz.On(a.AssigneeID)); err != nil {
		return nil, err
	}
	if a.Status == model.StatusApproved {
		span.SetAttributes(attribute.Bool("noop", true))
		e.logger.Debug("assignment already approved", "assignment_id", id)
		return a, nil
	}
	if !CanTransition(a.Status, model.StatusApproved) {
		return nil, invalidTransition(a, model.StatusApproved)
	}

	unlockAccount, err := e.ledger.LockAccount(ctx, a.AssigneeID, a.FamilyID)
	if err != nil {
		return nil, err
	}
	defer unlockAccount()

	var (
		c        *model.Chore
		settled  bool
		unlocked []model.Badge
	)
	now := e.now().UTC()
	err = e.store.Tx(ctx, func(tx *store.Store) error {
		var err error
		if c, err = tx.Chores.GetByID(ctx, a.ChoreID); err != nil {
			return err
		}
		catalog, err := tx.Badges.List(ctx, a.FamilyID)
		if err != nil {
			return err
		}
		before, err := e.ledger.SnapshotOf(ctx, tx, a.AssigneeID, a.FamilyID)
		if err != nil {
			return err
		}

		ok, err := tx.Chores.MarkDecided(ctx, id, model.StatusApproved, caller.UserID, now, notes)
		if err != nil {
			return err
		}
		if a, err = tx.Chores.GetAssignment(ctx, id); err != nil {
			return err
		}
		if !ok {
			if a.Status == model.StatusApproved {
				return nil
			}
			return invalidTransition(a, model.StatusApproved)
		}

		if _, err := e.ledger.RecordSettlement(ctx, tx, a, c.Points, caller.UserID); err != nil {
			return err
		}
		settled = true

		after, err := e.ledger.SnapshotOf(ctx, tx, a.AssigneeID, a.FamilyID)
		if err != nil {
			return err
		}
		unlocked = badge.Newly(badge.ForSnapshot(catalog, before), badge.ForSnapshot(catalog, after))
		return nil
	})
	if err != nil {
		return nil, apperr.Unavailable("approve assignment", err)
	}
	if !settled {
		return a, nil
	}

	e.metrics.Transition(string(model.StatusCompleted), string(model.StatusApproved))
	e.metrics.PointsSettled(c.Points)
	e.metrics.BadgesUnlocked(len(unlocked))
	e.logger.Info("assignment transition",
		"assignment_id", id, "from", model.StatusCompleted, "to", model.StatusApproved,
		"by", caller.UserID, "points", c.Points)

	events := make([]event.Event, 0, 1+len(unlocked))
	ev := event.New(event.ChoreApproved, a.FamilyID, a.AssigneeID, caller.UserID, a.ID)
	ev.Points = c.Points
	ev.Data = map[string]any{"chore_id": c.ID}
	events = append(events, ev)
	for _, b := range unlocked {
		bev := event.New(event.BadgeUnlocked, a.FamilyID, a.AssigneeID, caller.UserID, b.ID)
		bev.Data = map[string]any{"name": b.Name}
		events = append(events, bev)
	}
	event.PublishAll(ctx, e.events, events)

	return a, nil
}

// Reject moves a completed assignment to rejected. No points settle. For a
// recurring required chore the next period's assignment is created in the
// same transaction; the rejected row is kept.
func (e *Engine) Reject(ctx context.Context, caller auth.Caller, id int64, notes *string) (*Rejection, error) {
	ctx, span := e.tracer.Start(ctx, "chore.reject", trace.WithAttributes(attribute.Int64("assignment.id", id)))
	defer span.End()

	unlock, err := e.lockAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := e.assignment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.guard.Require(ctx, caller, a.FamilyID, authz.RejectChore, authz.On(a.AssigneeID)); err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, model.StatusRejected) {
		return nil, invalidTransition(a, model.StatusRejected)
	}

	var next *model.ChoreAssignment
	now := e.now().UTC()
	err = e.store.Tx(ctx, func(tx *store.Store) error {
		ok, err := tx.Chores.MarkDecided(ctx, id, model.StatusRejected, caller.UserID, now, notes)
		if err != nil {
			return err
		}
		if a, err = tx.Chores.GetAssignment(ctx, id); err != nil {
			return err
		}
		if !ok {
			return invalidTransition(a, model.StatusRejected)
		}

		c, err := tx.Chores.GetByID(ctx, a.ChoreID)
		if err != nil {
			return err
		}
		if c.Type != model.ChoreRequired || !c.Recurring() || c.ArchivedAt != nil {
			return nil
		}
		due, ok := e.nextDue(c, a.DueAt)
		if !ok {
			return nil
		}
		next, err = tx.Chores.CreateAssignment(ctx, c, a.AssigneeID, due, nil)
		return err
	})
	if err != nil {
		return nil, apperr.Unavailable("reject assignment", err)
	}

	e.metrics.Transition(string(model.StatusCompleted), string(model.StatusRejected))
	e.logger.Info("assignment transition",
		"assignment_id", id, "from", model.StatusCompleted, "to", model.StatusRejected,
		"by", caller.UserID, "respawned", next != nil)

	ev := event.New(event.ChoreRejected, a.FamilyID, a.AssigneeID, caller.UserID, a.ID)
	if next != nil {
		ev.Data = map[string]any{"next_assignment_id": next.ID}
	}
	e.events.Publish(ctx, ev)

	return &Rejection{Assignment: a, Next: next}, nil
}

// --- helpers ---

func (e *Engine) lockAssignment(ctx context.Context, id int64) (func(), error) {
	unlock, err := e.locks.Lock(ctx, keylock.AssignmentKey(id))
	if err != nil {
		return nil, apperr.Unavailable("lock assignment", err)
	}
	return unlock, nil
}

func (e *Engine) chore(ctx context.Context, id int64) (*model.Chore, error) {
	c, err := e.store.Chores.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Unavailable("get chore", err)
	}
	if c == nil {
		return nil, apperr.NotFound("chore %d not found", id)
	}
	return c, nil
}

func (e *Engine) assignment(ctx context.Context, id int64) (*model.ChoreAssignment, error) {
	a, err := e.store.Chores.GetAssignment(ctx, id)
	if err != nil {
		return nil, apperr.Unavailable("get assignment", err)
	}
	if a == nil {
		return nil, apperr.NotFound("assignment %d not found", id)
	}
	return a, nil
}

func (e *Engine) requireMember(ctx context.Context, q *store.Store, familyID, userID int64) error {
	m, err := q.Families.GetMember(ctx, familyID, userID)
	if err != nil {
		return apperr.Unavailable("get member", err)
	}
	if !m.Active() {
		return apperr.Invalid("user %d is not a member of family %d", userID, familyID)
	}
	return nil
}

// nextDue returns the chore's first occurrence after the given time.
func (e *Engine) nextDue(c *model.Chore, after time.Time) (time.Time, bool) {
	series, err := seriesFor(c)
	if err != nil {
		e.logger.Error("invalid recurrence rule", "chore_id", c.ID, "rule", c.RecurrenceRule, "error", err)
		return time.Time{}, false
	}
	return series.Next(after)
}

// seriesFor anchors a chore's rule at its creation time.
func seriesFor(c *model.Chore) (recurrence.Series, error) {
	r, err := recurrence.Parse(c.RecurrenceRule)
	if err != nil {
		return recurrence.Series{}, err
	}
	return recurrence.NewSeries(r, c.CreatedAt.UTC()), nil
}

func invalidTransition(a *model.ChoreAssignment, to model.AssignmentStatus) error {
	return apperr.InvalidTransition("assignment %d cannot move from %s to %s", a.ID, a.Status, to)
}
