package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorepoints/internal/model"
)

type RewardStore struct {
	db DBTX
}

func NewRewardStore(db DBTX) *RewardStore {
	return &RewardStore{db: db}
}

// --- Reward methods ---

func scanReward(row scanner) (*model.Reward, error) {
	var r model.Reward
	var active int

	err := row.Scan(&r.ID, &r.FamilyID, &r.Title, &r.Description, &r.PointCost, &active, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	r.Active = active != 0
	return &r, nil
}

const rewardCols = `id, family_id, title, description, point_cost, active, created_at, updated_at`

func (s *RewardStore) Create(ctx context.Context, familyID int64, title, description string, pointCost int, active bool) (*model.Reward, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO rewards (family_id, title, description, point_cost, active) VALUES (?, ?, ?, ?, ?)`,
		familyID, title, description, pointCost, boolInt(active),
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RewardStore) GetByID(ctx context.Context, id int64) (*model.Reward, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

// List returns a family's rewards, active first, then by title.
func (s *RewardStore) List(ctx context.Context, familyID int64) ([]model.Reward, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rewardCols+` FROM rewards WHERE family_id = ? ORDER BY active DESC, title ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Update(ctx context.Context, id int64, title, description string, pointCost int, active bool) (*model.Reward, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rewards SET title = ?, description = ?, point_cost = ?, active = ?, updated_at = ? WHERE id = ?`,
		title, description, pointCost, boolInt(active), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return s.GetByID(ctx, id)
}

// --- Redemption methods ---

func scanRedemption(row scanner) (*model.RewardRedemption, error) {
	var r model.RewardRedemption
	err := row.Scan(&r.ID, &r.RewardID, &r.FamilyID, &r.RedeemedBy, &r.PointsSpent, &r.RedeemedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const redemptionCols = `id, reward_id, family_id, redeemed_by, points_spent, redeemed_at`

func (s *RewardStore) CreateRedemption(ctx context.Context, reward *model.Reward, redeemedBy int64) (*model.RewardRedemption, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO reward_redemptions (reward_id, family_id, redeemed_by, points_spent, redeemed_at) VALUES (?, ?, ?, ?, ?)`,
		reward.ID, reward.FamilyID, redeemedBy, reward.PointCost, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert redemption: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+redemptionCols+` FROM reward_redemptions WHERE id = ?`, id)
	return scanRedemption(row)
}

func (s *RewardStore) ListRedemptions(ctx context.Context, familyID, memberID int64) ([]model.RewardRedemption, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+redemptionCols+` FROM reward_redemptions WHERE family_id = ? AND redeemed_by = ? ORDER BY redeemed_at DESC, id DESC`,
		familyID, memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()

	var redemptions []model.RewardRedemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		redemptions = append(redemptions, *r)
	}
	return redemptions, rows.Err()
}
