package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorepoints/internal/model"
)

type GoalStore struct {
	db DBTX
}

func NewGoalStore(db DBTX) *GoalStore {
	return &GoalStore{db: db}
}

const goalCols = `id, family_id, owner_id, title, target, current, status, created_at, updated_at, closed_at`

func scanGoal(row scanner) (*model.Goal, error) {
	var g model.Goal
	var closedAt sql.NullTime
	err := row.Scan(&g.ID, &g.FamilyID, &g.OwnerID, &g.Title, &g.Target, &g.Current, &g.Status, &g.CreatedAt, &g.UpdatedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	g.ClosedAt = ptrTime(closedAt)
	return &g, nil
}

func (s *GoalStore) Create(ctx context.Context, familyID, ownerID int64, title string, target int) (*model.Goal, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO goals (family_id, owner_id, title, target) VALUES (?, ?, ?, ?)`,
		familyID, ownerID, title, target,
	)
	if err != nil {
		return nil, fmt.Errorf("insert goal: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *GoalStore) GetByID(ctx context.Context, id int64) (*model.Goal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+goalCols+` FROM goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

func (s *GoalStore) ListByOwner(ctx context.Context, familyID, ownerID int64) ([]model.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+goalCols+` FROM goals WHERE family_id = ? AND owner_id = ? ORDER BY created_at DESC, id DESC`,
		familyID, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []model.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

// Save writes progress and status for an active goal. It reports false when
// the goal was already closed.
func (s *GoalStore) Save(ctx context.Context, g *model.Goal) (bool, error) {
	now := time.Now().UTC()
	var closedAt sql.NullTime
	if g.Status.Terminal() {
		closedAt = sql.NullTime{Time: now, Valid: true}
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE goals SET current = ?, status = ?, updated_at = ?, closed_at = ? WHERE id = ? AND status = 'active'`,
		g.Current, string(g.Status), now, closedAt, g.ID,
	)
	if err != nil {
		return false, fmt.Errorf("save goal: %w", err)
	}
	return affectedOne(result)
}
