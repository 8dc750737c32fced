// Package goal tracks member goals. A goal is active until it reaches its
// target or is abandoned; both end states are final.
package goal

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

type Service struct {
	store  *store.Store
	guard  *authz.Guard
	logger *slog.Logger
}

func NewService(s *store.Store, guard *authz.Guard, logger *slog.Logger) *Service {
	return &Service{store: s, guard: guard, logger: logger}
}

func (s *Service) Create(ctx context.Context, caller auth.Caller, familyID, ownerID int64, title string, target int) (*model.Goal, error) {
	if err := s.guard.Require(ctx, caller, familyID, authz.TrackGoal, authz.On(ownerID)); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Invalid("goal title is required")
	}
	if target <= 0 {
		return nil, apperr.Invalid("goal target must be positive")
	}
	m, err := s.store.Families.GetMember(ctx, familyID, ownerID)
	if err != nil {
		return nil, apperr.Unavailable("get member", err)
	}
	if !m.Active() {
		return nil, apperr.Invalid("user %d is not a member of family %d", ownerID, familyID)
	}

	g, err := s.store.Goals.Create(ctx, familyID, ownerID, title, target)
	if err != nil {
		return nil, apperr.Unavailable("create goal", err)
	}
	s.logger.Info("goal created", "goal_id", g.ID, "owner_id", ownerID, "target", target)
	return g, nil
}

func (s *Service) List(ctx context.Context, caller auth.Caller, familyID, ownerID int64) ([]model.Goal, error) {
	if err := s.guard.Require(ctx, caller, familyID, authz.ViewFamilyData, authz.On(ownerID)); err != nil {
		return nil, err
	}
	goals, err := s.store.Goals.ListByOwner(ctx, familyID, ownerID)
	if err != nil {
		return nil, apperr.Unavailable("list goals", err)
	}
	return goals, nil
}

// AddProgress adds delta to an active goal, completing it once current
// reaches target. Progress never goes below zero.
func (s *Service) AddProgress(ctx context.Context, caller auth.Caller, goalID int64, delta int) (*model.Goal, error) {
	if delta == 0 {
		return nil, apperr.Invalid("progress must be non-zero")
	}
	return s.transition(ctx, caller, goalID, func(g *model.Goal) {
		g.Current += delta
		if g.Current < 0 {
			g.Current = 0
		}
		if g.Current >= g.Target {
			g.Status = model.GoalCompleted
		}
	})
}

func (s *Service) Abandon(ctx context.Context, caller auth.Caller, goalID int64) (*model.Goal, error) {
	return s.transition(ctx, caller, goalID, func(g *model.Goal) {
		g.Status = model.GoalAbandoned
	})
}

func (s *Service) transition(ctx context.Context, caller auth.Caller, goalID int64, apply func(*model.Goal)) (*model.Goal, error) {
	g, err := s.store.Goals.GetByID(ctx, goalID)
	if err != nil {
		return nil, apperr.Unavailable("get goal", err)
	}
	if g == nil {
		return nil, apperr.NotFound("goal %d not found", goalID)
	}
	if err := s.guard.Require(ctx, caller, g.FamilyID, authz.TrackGoal, authz.On(g.OwnerID)); err != nil {
		return nil, err
	}
	if g.Status.Terminal() {
		return nil, apperr.InvalidTransition("goal %d is %s", g.ID, g.Status)
	}

	from := g.Status
	apply(g)
	ok, err := s.store.Goals.Save(ctx, g)
	if err != nil {
		return nil, apperr.Unavailable("save goal", err)
	}
	if !ok {
		return nil, apperr.InvalidTransition("goal %d was closed concurrently", g.ID)
	}
	if g.Status != from {
		s.logger.Info("goal transition", "goal_id", g.ID, "from", from, "to", g.Status)
	}

	saved, err := s.store.Goals.GetByID(ctx, goalID)
	if err != nil {
		return nil, apperr.Unavailable("get goal", err)
	}
	return saved, nil
}
