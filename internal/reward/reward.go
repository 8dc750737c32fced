// Package reward implements the reward catalog and redemption.
package reward

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukerupert/chorepoints/internal/apperr"
	"github.com/dukerupert/chorepoints/internal/auth"
	"github.com/dukerupert/chorepoints/internal/authz"
	"github.com/dukerupert/chorepoints/internal/event"
	"github.com/dukerupert/chorepoints/internal/ledger"
	"github.com/dukerupert/chorepoints/internal/metrics"
	"github.com/dukerupert/chorepoints/internal/model"
	"github.com/dukerupert/chorepoints/internal/store"
)

// Redemption results recorded in metrics.
const (
	resultOK           = "ok"
	resultInsufficient = "insufficient_balance"
	resultInactive     = "inactive"
	resultDenied       = "denied"
	resultError        = "error"
)

type Service struct {
	store   *store.Store
	guard   *authz.Guard
	ledger  *ledger.Ledger
	events  event.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

func NewService(s *store.Store, guard *authz.Guard, l *ledger.Ledger, events event.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:   s,
		guard:   guard,
		ledger:  l,
		events:  events,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("chorepoints/reward"),
	}
}

type Input struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PointCost   int    `json:"point_cost"`
	Active      bool   `json:"active"`
}

func (in Input) validate() (Input, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" {
		return in, apperr.Invalid("reward title is required")
	}
	if in.PointCost <= 0 {
		return in, apperr.Invalid("point cost must be positive")
	}
	return in, nil
}

func (s *Service) Create(ctx context.Context, caller auth.Caller, familyID int64, in Input) (*model.Reward, error) {
	if err := s.guard.Require(ctx, caller, familyID, authz.ManageCatalog, authz.Target{}); err != nil {
		return nil, err
	}
	in, err := in.validate()
	if err != nil {
		return nil, err
	}
	r, err := s.store.Rewards.Create(ctx, familyID, in.Title, in.Description, in.PointCost, in.Active)
	if err != nil {
		return nil, apperr.Unavailable("create reward", err)
	}
	s.logger.Info("reward created", "reward_id", r.ID, "family_id", familyID, "cost", r.PointCost)
	return r, nil
}

// Update edits a reward. Past redemptions keep the cost they were charged.
func (s *Service) Update(ctx context.Context, caller auth.Caller, rewardID int64, in Input) (*model.Reward, error) {
	r, err := s.reward(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Require(ctx, caller, r.FamilyID, authz.ManageCatalog, authz.Target{}); err != nil {
		return nil, err
	}
	in, err = in.validate()
	if err != nil {
		return nil, err
	}
	updated, err := s.store.Rewards.Update(ctx, rewardID, in.Title, in.Description, in.PointCost, in.Active)
	if err != nil {
		return nil, apperr.Unavailable("update reward", err)
	}
	return updated, nil
}

func (s *Service) List(ctx context.Context, caller auth.Caller, familyID int64) ([]model.Reward, error) {
	if err := s.guard.Require(ctx, caller, familyID, authz.ViewFamilyData, authz.Target{}); err != nil {
		return nil, err
	}
	rewards, err := s.store.Rewards.List(ctx, familyID)
	if err != nil {
		return nil, apperr.Unavailable("list rewards", err)
	}
	return rewards, nil
}

func (s *Service) Redemptions(ctx context.Context, caller auth.Caller, familyID, memberID int64) ([]model.RewardRedemption, error) {
	if err := s.guard.Require(ctx, caller, familyID, authz.ViewFamilyData, authz.On(memberID)); err != nil {
		return nil, err
	}
	list, err := s.store.Rewards.ListRedemptions(ctx, familyID, memberID)
	if err != nil {
		return nil, apperr.Unavailable("list redemptions", err)
	}
	return list, nil
}

// Receipt is the result of a successful redemption.
type Receipt struct {
	Redemption *model.RewardRedemption `json:"redemption"`
	Entry      *model.LedgerEntry      `json:"entry"`
	Balance    int                     `json:"balance"`
}

// Redeem spends the caller's points on a reward in the given family. The
// balance check, the redemption row and the debit commit together under the
// caller's account lock, so concurrent redemptions can never overdraw.
func (s *Service) Redeem(ctx context.Context, caller auth.Caller, familyID, rewardID int64) (*Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "reward.redeem", trace.WithAttributes(
		attribute.Int64("family.id", familyID),
		attribute.Int64("reward.id", rewardID),
	))
	defer span.End()

	receipt, err := s.redeem(ctx, caller, familyID, rewardID)
	result := redeemResult(err)
	span.SetAttributes(attribute.String("result", result))
	s.metrics.Redemption(result)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (s *Service) redeem(ctx context.Context, caller auth.Caller, familyID, rewardID int64) (*Receipt, error) {
	if err := s.guard.Require(ctx, caller, familyID, authz.RedeemReward, authz.On(caller.UserID)); err != nil {
		return nil, err
	}

	unlock, err := s.ledger.LockAccount(ctx, caller.UserID, familyID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var receipt Receipt
	var reward *model.Reward
	err = s.store.Tx(ctx, func(tx *store.Store) error {
		var err error
		reward, err = tx.Rewards.GetByID(ctx, rewardID)
		if err != nil {
			return err
		}
		if reward == nil || reward.FamilyID != familyID {
			return apperr.NotFound("reward %d not found", rewardID)
		}
		if !reward.Active {
			return apperr.RewardInactive("reward %q is not active", reward.Title)
		}

		if receipt.Redemption, err = tx.Rewards.CreateRedemption(ctx, reward, caller.UserID); err != nil {
			return err
		}
		if receipt.Entry, err = s.ledger.RecordRedemption(ctx, tx, caller.UserID, familyID, reward.PointCost, receipt.Redemption.ID); err != nil {
			return err
		}
		totals, err := tx.Ledger.Totals(ctx, caller.UserID, familyID)
		if err != nil {
			return err
		}
		receipt.Balance = totals.Balance
		return nil
	})
	if err != nil {
		return nil, apperr.Unavailable("redeem reward", err)
	}

	s.logger.Info("reward redeemed",
		"reward_id", reward.ID, "family_id", familyID, "user_id", caller.UserID,
		"cost", reward.PointCost, "balance", receipt.Balance)

	ev := event.New(event.RewardRedeemed, familyID, caller.UserID, caller.UserID, receipt.Redemption.ID)
	ev.Points = -reward.PointCost
	ev.Data = map[string]any{"reward_id": reward.ID, "title": reward.Title}
	s.events.Publish(ctx, ev)

	return &receipt, nil
}

func (s *Service) reward(ctx context.Context, id int64) (*model.Reward, error) {
	r, err := s.store.Rewards.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Unavailable("get reward", err)
	}
	if r == nil {
		return nil, apperr.NotFound("reward %d not found", id)
	}
	return r, nil
}

func redeemResult(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, apperr.ErrInsufficientBalance):
		return resultInsufficient
	case errors.Is(err, apperr.ErrRewardInactive):
		return resultInactive
	case errors.Is(err, apperr.ErrForbidden):
		return resultDenied
	}
	return resultError
}
