package store

import (
	"context"
	"fmt"

	"github.com/dukerupert/chorepoints/internal/model"
)

type BadgeStore struct {
	db DBTX
}

func NewBadgeStore(db DBTX) *BadgeStore {
	return &BadgeStore{db: db}
}

const badgeCols = `id, family_id, name, description, points_required, streak_required, created_at`

func scanBadge(row scanner) (*model.Badge, error) {
	var b model.Badge
	err := row.Scan(&b.ID, &b.FamilyID, &b.Name, &b.Description, &b.PointsRequired, &b.StreakRequired, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *BadgeStore) Create(ctx context.Context, familyID int64, name, description string, pointsRequired, streakRequired int) (*model.Badge, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO badges (family_id, name, description, points_required, streak_required) VALUES (?, ?, ?, ?, ?)`,
		familyID, name, description, pointsRequired, streakRequired,
	)
	if err != nil {
		return nil, fmt.Errorf("insert badge: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+badgeCols+` FROM badges WHERE id = ?`, id)
	return scanBadge(row)
}

func (s *BadgeStore) List(ctx context.Context, familyID int64) ([]model.Badge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+badgeCols+` FROM badges WHERE family_id = ? ORDER BY points_required ASC, streak_required ASC, id ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	var badges []model.Badge
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		badges = append(badges, *b)
	}
	return badges, rows.Err()
}
