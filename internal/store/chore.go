package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/chorepoints/internal/model"
)

type ChoreStore struct {
	db DBTX
}

func NewChoreStore(db DBTX) *ChoreStore {
	return &ChoreStore{db: db}
}

// --- Chore methods ---

func scanChore(row scanner) (*model.Chore, error) {
	var c model.Chore
	var assignedTo sql.NullInt64
	var archivedAt sql.NullTime

	err := row.Scan(
		&c.ID, &c.FamilyID, &c.Name, &c.Description, &c.Points, &c.Type,
		&c.RecurrenceRule, &assignedTo, &c.CreatedAt, &c.UpdatedAt, &archivedAt,
	)
	if err != nil {
		return nil, err
	}
	c.AssignedTo = ptrInt64(assignedTo)
	c.ArchivedAt = ptrTime(archivedAt)
	return &c, nil
}

const choreCols = `id, family_id, name, description, points, type, recurrence_rule, assigned_to, created_at, updated_at, archived_at`

type ChoreParams struct {
	Name           string
	Description    string
	Points         int
	Type           model.ChoreType
	RecurrenceRule string
	AssignedTo     *int64
}

func (s *ChoreStore) Create(ctx context.Context, familyID int64, p ChoreParams) (*model.Chore, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO chores (family_id, name, description, points, type, recurrence_rule, assigned_to, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		familyID, p.Name, p.Description, p.Points, string(p.Type), p.RecurrenceRule, nullInt64(p.AssignedTo), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert chore: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ChoreStore) GetByID(ctx context.Context, id int64) (*model.Chore, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+choreCols+` FROM chores WHERE id = ?`, id)
	c, err := scanChore(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chore: %w", err)
	}
	return c, nil
}

func (s *ChoreStore) List(ctx context.Context, familyID int64) ([]model.Chore, error) {
	return s.listChores(ctx,
		`SELECT `+choreCols+` FROM chores WHERE family_id = ? AND archived_at IS NULL ORDER BY name ASC`,
		familyID,
	)
}

// ListRecurring returns every non-archived recurring chore with a default
// assignee, across all families.
func (s *ChoreStore) ListRecurring(ctx context.Context) ([]model.Chore, error) {
	return s.listChores(ctx,
		`SELECT `+choreCols+` FROM chores
		 WHERE archived_at IS NULL AND recurrence_rule != '' AND assigned_to IS NOT NULL
		 ORDER BY id ASC`,
	)
}

func (s *ChoreStore) listChores(ctx context.Context, query string, args ...any) ([]model.Chore, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chores: %w", err)
	}
	defer rows.Close()

	var chores []model.Chore
	for rows.Next() {
		c, err := scanChore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chore: %w", err)
		}
		chores = append(chores, *c)
	}
	return chores, rows.Err()
}

func (s *ChoreStore) Update(ctx context.Context, id int64, p ChoreParams) (*model.Chore, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chores SET name = ?, description = ?, points = ?, type = ?, recurrence_rule = ?, assigned_to = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.Description, p.Points, string(p.Type), p.RecurrenceRule, nullInt64(p.AssignedTo), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update chore: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Archive stops future spawns. Existing assignments keep their reference.
func (s *ChoreStore) Archive(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chores SET archived_at = ? WHERE id = ? AND archived_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("archive chore: %w", err)
	}
	return nil
}

// --- Assignment methods ---

func scanAssignment(row scanner) (*model.ChoreAssignment, error) {
	var a model.ChoreAssignment
	var completedAt, decidedAt sql.NullTime
	var approverID sql.NullInt64
	var notes sql.NullString

	err := row.Scan(
		&a.ID, &a.ChoreID, &a.FamilyID, &a.AssigneeID, &a.DueAt, &a.Status,
		&completedAt, &approverID, &decidedAt, &notes, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.CompletedAt = ptrTime(completedAt)
	a.ApproverID = ptrInt64(approverID)
	a.DecidedAt = ptrTime(decidedAt)
	if notes.Valid {
		a.Notes = &notes.String
	}
	return &a, nil
}

const assignmentCols = `id, chore_id, family_id, assignee_id, due_at, status, completed_at, approver_id, decided_at, notes, created_at, updated_at`

// CreateAssignment inserts a pending assignment. When an assignment for the
// same chore, assignee and due time already exists, that row is returned.
func (s *ChoreStore) CreateAssignment(ctx context.Context, chore *model.Chore, assigneeID int64, dueAt time.Time, notes *string) (*model.ChoreAssignment, error) {
	now := time.Now().UTC()
	var n sql.NullString
	if notes != nil {
		n = sql.NullString{String: *notes, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chore_assignments (chore_id, family_id, assignee_id, due_at, status, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'pending', ?, ?, ?)
		 ON CONFLICT (chore_id, assignee_id, due_at) DO NOTHING`,
		chore.ID, chore.FamilyID, assigneeID, dueAt.UTC(), n, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert assignment: %w", err)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assignmentCols+` FROM chore_assignments WHERE chore_id = ? AND assignee_id = ? AND due_at = ?`,
		chore.ID, assigneeID, dueAt.UTC(),
	)
	a, err := scanAssignment(row)
	if err != nil {
		return nil, fmt.Errorf("get created assignment: %w", err)
	}
	return a, nil
}

func (s *ChoreStore) GetAssignment(ctx context.Context, id int64) (*model.ChoreAssignment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM chore_assignments WHERE id = ?`, id)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

// LatestAssignment returns the assignment with the greatest due time for a
// chore and assignee.
func (s *ChoreStore) LatestAssignment(ctx context.Context, choreID, assigneeID int64) (*model.ChoreAssignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assignmentCols+` FROM chore_assignments
		 WHERE chore_id = ? AND assignee_id = ?
		 ORDER BY due_at DESC, id DESC LIMIT 1`,
		choreID, assigneeID,
	)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest assignment: %w", err)
	}
	return a, nil
}

func (s *ChoreStore) ListAssignments(ctx context.Context, familyID int64, f model.AssignmentFilter) ([]model.ChoreAssignment, error) {
	where := []string{"a.family_id = ?"}
	args := []any{familyID}
	if f.AssigneeID != nil {
		where = append(where, "a.assignee_id = ?")
		args = append(args, *f.AssigneeID)
	}
	if f.ChoreID != nil {
		where = append(where, "a.chore_id = ?")
		args = append(args, *f.ChoreID)
	}
	if f.Status != "" {
		where = append(where, "a.status = ?")
		args = append(args, string(f.Status))
	}
	if f.ChoreType != "" {
		where = append(where, "c.type = ?")
		args = append(args, string(f.ChoreType))
	}

	query := `SELECT a.id, a.chore_id, a.family_id, a.assignee_id, a.due_at, a.status, a.completed_at,
		a.approver_id, a.decided_at, a.notes, a.created_at, a.updated_at
		FROM chore_assignments a JOIN chores c ON c.id = a.chore_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY a.due_at DESC, a.id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []model.ChoreAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		if f.DueBefore != nil && !a.DueAt.Before(*f.DueBefore) {
			continue
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// MarkCompleted moves a pending assignment to completed. It reports false
// when the row was not pending.
func (s *ChoreStore) MarkCompleted(ctx context.Context, id int64, at time.Time, notes *string) (bool, error) {
	var n sql.NullString
	if notes != nil {
		n = sql.NullString{String: *notes, Valid: true}
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE chore_assignments
		 SET status = 'completed', completed_at = ?, notes = COALESCE(?, notes), updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		at.UTC(), n, at.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark completed: %w", err)
	}
	return affectedOne(result)
}

// MarkDecided moves a completed assignment to approved or rejected. It
// reports false when the row was not completed.
func (s *ChoreStore) MarkDecided(ctx context.Context, id int64, status model.AssignmentStatus, approverID int64, at time.Time, notes *string) (bool, error) {
	var n sql.NullString
	if notes != nil {
		n = sql.NullString{String: *notes, Valid: true}
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE chore_assignments
		 SET status = ?, approver_id = ?, decided_at = ?, notes = COALESCE(?, notes), updated_at = ?
		 WHERE id = ? AND status = 'completed'`,
		string(status), approverID, at.UTC(), n, at.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark decided: %w", err)
	}
	return affectedOne(result)
}

func affectedOne(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
