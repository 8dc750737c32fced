package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorepoints/internal/model"
)

type FamilyStore struct {
	db DBTX
}

func NewFamilyStore(db DBTX) *FamilyStore {
	return &FamilyStore{db: db}
}

func scanFamily(row scanner) (*model.Family, error) {
	var f model.Family
	if err := row.Scan(&f.ID, &f.Name, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func scanMembership(row scanner) (*model.FamilyMembership, error) {
	var m model.FamilyMembership
	var removedAt sql.NullTime
	err := row.Scan(&m.ID, &m.FamilyID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt, &removedAt)
	if err != nil {
		return nil, err
	}
	m.RemovedAt = ptrTime(removedAt)
	return &m, nil
}

const familyCols = `id, name, created_at, updated_at`
const membershipCols = `id, family_id, user_id, role, created_at, updated_at, removed_at`

func (s *FamilyStore) Create(ctx context.Context, name string) (*model.Family, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO families (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert family: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *FamilyStore) GetByID(ctx context.Context, id int64) (*model.Family, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+familyCols+` FROM families WHERE id = ?`, id)
	f, err := scanFamily(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}
	return f, nil
}

func (s *FamilyStore) ListForUser(ctx context.Context, userID int64) ([]model.Family, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id, f.name, f.created_at, f.updated_at
		 FROM families f
		 JOIN family_memberships m ON f.id = m.family_id
		 WHERE m.user_id = ? AND m.removed_at IS NULL
		 ORDER BY f.name ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list families for user: %w", err)
	}
	defer rows.Close()

	var families []model.Family
	for rows.Next() {
		f, err := scanFamily(rows)
		if err != nil {
			return nil, fmt.Errorf("scan family: %w", err)
		}
		families = append(families, *f)
	}
	return families, rows.Err()
}

// AddMember inserts a membership, or reactivates a removed one with the new
// role. An active membership is never overwritten.
func (s *FamilyStore) AddMember(ctx context.Context, familyID, userID int64, role string) (*model.FamilyMembership, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO family_memberships (family_id, user_id, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (family_id, user_id) DO UPDATE
		 SET role = excluded.role, removed_at = NULL, updated_at = excluded.updated_at
		 WHERE family_memberships.removed_at IS NOT NULL`,
		familyID, userID, role, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	return s.GetMember(ctx, familyID, userID)
}

// GetMember returns the membership row, including removed ones.
func (s *FamilyStore) GetMember(ctx context.Context, familyID, userID int64) (*model.FamilyMembership, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+membershipCols+` FROM family_memberships WHERE family_id = ? AND user_id = ?`,
		familyID, userID,
	)
	m, err := scanMembership(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// ListMembers returns active memberships in join order.
func (s *FamilyStore) ListMembers(ctx context.Context, familyID int64) ([]model.FamilyMembership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+membershipCols+` FROM family_memberships
		 WHERE family_id = ? AND removed_at IS NULL
		 ORDER BY created_at ASC, id ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.FamilyMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *FamilyStore) CountParents(ctx context.Context, familyID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM family_memberships WHERE family_id = ? AND role = 'parent' AND removed_at IS NULL`,
		familyID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count parents: %w", err)
	}
	return n, nil
}

func (s *FamilyStore) UpdateMemberRole(ctx context.Context, familyID, userID int64, role string) (*model.FamilyMembership, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE family_memberships SET role = ?, updated_at = ? WHERE family_id = ? AND user_id = ? AND removed_at IS NULL`,
		role, time.Now().UTC(), familyID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update member role: %w", err)
	}
	return s.GetMember(ctx, familyID, userID)
}

// RemoveMember soft-removes a membership; the member's ledger stays intact.
func (s *FamilyStore) RemoveMember(ctx context.Context, familyID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE family_memberships SET removed_at = ? WHERE family_id = ? AND user_id = ? AND removed_at IS NULL`,
		time.Now().UTC(), familyID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}
