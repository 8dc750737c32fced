package chore

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/chorepoints/internal/metrics"
	"github.com/dukerupert/chorepoints/internal/model"
	"github.com/dukerupert/chorepoints/internal/store"
)

// Spawner creates the next pending assignment for recurring chores that
// have a default assignee. It is safe to run repeatedly: an assignment is
// only created once the latest one is decided or past due, and the unique
// (chore, assignee, due) index absorbs races with Reject. After downtime it
// jumps to the first period due at or after now.
type Spawner struct {
	store   *store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewSpawner(s *store.Store, m *metrics.Metrics, logger *slog.Logger) *Spawner {
	return &Spawner{store: s, metrics: m, logger: logger}
}

// Run makes one pass over all recurring chores as of now and returns how
// many assignments it created. A failure on one chore is logged and skipped.
func (sp *Spawner) Run(ctx context.Context, now time.Time) (int, error) {
	chores, err := sp.store.Chores.ListRecurring(ctx)
	if err != nil {
		return 0, err
	}

	now = now.UTC()
	created := 0
	for i := range chores {
		c := &chores[i]
		ok, err := sp.spawn(ctx, c, now)
		if err != nil {
			if ctx.Err() != nil {
				return created, ctx.Err()
			}
			sp.logger.Error("spawn assignment", "chore_id", c.ID, "error", err)
			continue
		}
		if ok {
			created++
		}
	}

	sp.metrics.Spawned(created)
	if created > 0 {
		sp.logger.Info("spawned assignments", "count", created)
	}
	return created, nil
}

func (sp *Spawner) spawn(ctx context.Context, c *model.Chore, now time.Time) (bool, error) {
	assignee := *c.AssignedTo
	m, err := sp.store.Families.GetMember(ctx, c.FamilyID, assignee)
	if err != nil {
		return false, err
	}
	if !m.Active() {
		return false, nil
	}

	series, err := seriesFor(c)
	if err != nil {
		return false, err
	}

	latest, err := sp.store.Chores.LatestAssignment(ctx, c.ID, assignee)
	if err != nil {
		return false, err
	}

	var due time.Time
	var ok bool
	switch {
	case latest == nil:
		due, ok = series.NextOnOrAfter(now)
	case latest.Status.Terminal() || !latest.DueAt.After(now):
		due, ok = series.Next(latest.DueAt)
	default:
		return false, nil
	}
	if !ok {
		return false, nil
	}
	// Periods that ended while nothing ran are skipped, not backfilled.
	if due.Before(now) {
		missed := len(series.Between(due, now))
		if due, ok = series.NextOnOrAfter(now); !ok {
			return false, nil
		}
		sp.logger.Info("skipped missed periods", "chore_id", c.ID, "assignee_id", assignee, "periods", missed)
	}

	a, err := sp.store.Chores.CreateAssignment(ctx, c, assignee, due, nil)
	if err != nil {
		return false, err
	}
	sp.logger.Debug("assignment spawned", "assignment_id", a.ID, "chore_id", c.ID, "due_at", a.DueAt)
	return true, nil
}
