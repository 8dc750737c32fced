// Package badge derives unlocked badges from a member's points and streak.
package badge

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukerupert/chorepoints/internal/apperr"
	"github.com/dukerupert/chorepoints/internal/auth"
	"github.com/dukerupert/chorepoints/internal/authz"
	"github.com/dukerupert/chorepoints/internal/ledger"
	"github.com/dukerupert/chorepoints/internal/model"
	"github.com/dukerupert/chorepoints/internal/store"
)

// Unlocked returns the badges whose thresholds are met, in catalog order.
func Unlocked(catalog []model.Badge, points, streak int) []model.Badge {
	var out []model.Badge
	for _, b := range catalog {
		if points >= b.PointsRequired && streak >= b.StreakRequired {
			out = append(out, b)
		}
	}
	return out
}

// Newly returns badges in after that are not in before.
func Newly(before, after []model.Badge) []model.Badge {
	had := make(map[int64]bool, len(before))
	for _, b := range before {
		had[b.ID] = true
	}
	var out []model.Badge
	for _, b := range after {
		if !had[b.ID] {
			out = append(out, b)
		}
	}
	return out
}

// ForSnapshot evaluates a snapshot. Badges count cumulative earned points, so
// spending never revokes one.
func ForSnapshot(catalog []model.Badge, snap ledger.Snapshot) []model.Badge {
	return Unlocked(catalog, snap.Earned, snap.Streak)
}

type Service struct {
	store  *store.Store
	guard  *authz.Guard
	ledger *ledger.Ledger
	logger *slog.Logger
}

func NewService(s *store.Store, guard *authz.Guard, l *ledger.Ledger, logger *slog.Logger) *Service {
	return &Service{store: s, guard: guard, ledger: l, logger: logger}
}

func (s *Service) Create(ctx context.Context, caller auth.Caller, familyID int64, name, description string, pointsRequired, streakRequired int) (*model.Badge, error) {
	if err := s.guard.Require(ctx, caller, familyID, authz.ManageCatalog, authz.Target{}); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("badge name is required")
	}
	if pointsRequired < 0 || streakRequired < 0 {
		return nil, apperr.Invalid("badge thresholds must not be negative")
	}

	b, err := s.store.Badges.Create(ctx, familyID, name, strings.TrimSpace(description), pointsRequired, streakRequired)
	if err != nil {
		return nil, apperr.Unavailable("create badge", err)
	}
	s.logger.Info("badge created", "family_id", familyID, "badge_id", b.ID)
	return b, nil
}

func (s *Service) List(ctx context.Context, caller auth.Caller, familyID int64) ([]model.Badge, error) {
	if err := s.guard.Require(ctx, caller, familyID, authz.ViewFamilyData, authz.Target{}); err != nil {
		return nil, err
	}
	badges, err := s.store.Badges.List(ctx, familyID)
	if err != nil {
		return nil, apperr.Unavailable("list badges", err)
	}
	return badges, nil
}

// Earned evaluates a member's badges against the current ledger.
func (s *Service) Earned(ctx context.Context, caller auth.Caller, familyID, userID int64) ([]model.Badge, error) {
	snap, err := s.ledger.Account(ctx, caller, familyID, userID)
	if err != nil {
		return nil, err
	}
	catalog, err := s.store.Badges.List(ctx, familyID)
	if err != nil {
		return nil, apperr.Unavailable("list badges", err)
	}
	return ForSnapshot(catalog, snap), nil
}
