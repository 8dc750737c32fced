package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorepoints/internal/model"
)

// LedgerStore is append-only: there is no update or delete, and the schema
// rejects both with triggers.
type LedgerStore struct {
	db DBTX
}

func NewLedgerStore(db DBTX) *LedgerStore {
	return &LedgerStore{db: db}
}

const ledgerCols = `id, family_id, user_id, delta, cause_kind, cause_id, note, created_by, created_at`

func scanLedgerEntry(row scanner) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	var createdBy sql.NullInt64
	err := row.Scan(&e.ID, &e.FamilyID, &e.UserID, &e.Delta, &e.CauseKind, &e.CauseID, &e.Note, &createdBy, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.CreatedBy = ptrInt64(createdBy)
	return &e, nil
}

func (s *LedgerStore) Append(ctx context.Context, e model.LedgerEntry) (*model.LedgerEntry, error) {
	at := e.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (family_id, user_id, delta, cause_kind, cause_id, note, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.FamilyID, e.UserID, e.Delta, string(e.CauseKind), e.CauseID, e.Note, nullInt64(e.CreatedBy), at.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+ledgerCols+` FROM ledger_entries WHERE id = ?`, id)
	return scanLedgerEntry(row)
}

// List returns a member's entries in a family, newest first.
func (s *LedgerStore) List(ctx context.Context, userID, familyID int64) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ledgerCols+` FROM ledger_entries WHERE user_id = ? AND family_id = ? ORDER BY created_at DESC, id DESC`,
		userID, familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Totals sums a member's entries. Balance is always recomputed from rows.
func (s *LedgerStore) Totals(ctx context.Context, userID, familyID int64) (*model.PointBalance, error) {
	var earned, spent int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN delta > 0 THEN delta ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN delta < 0 THEN -delta ELSE 0 END), 0)
		 FROM ledger_entries WHERE user_id = ? AND family_id = ?`,
		userID, familyID,
	).Scan(&earned, &spent)
	if err != nil {
		return nil, fmt.Errorf("sum ledger entries: %w", err)
	}
	return &model.PointBalance{
		UserID:      userID,
		FamilyID:    familyID,
		TotalEarned: earned,
		TotalSpent:  spent,
		Balance:     earned - spent,
	}, nil
}

// SettledCauses returns the ids of chore assignments with a settlement entry
// for the member.
func (s *LedgerStore) SettledCauses(ctx context.Context, userID, familyID int64) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cause_id FROM ledger_entries WHERE user_id = ? AND family_id = ? AND cause_kind = ?`,
		userID, familyID, string(model.CauseChoreAssignment),
	)
	if err != nil {
		return nil, fmt.Errorf("list settled causes: %w", err)
	}
	defer rows.Close()

	settled := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cause: %w", err)
		}
		settled[id] = true
	}
	return settled, rows.Err()
}
