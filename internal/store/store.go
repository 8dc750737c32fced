package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, so every table store can run
// standalone or inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface{ Scan(...any) error }

// Store groups the table stores over one connection pool or one transaction.
type Store struct {
	db *sql.DB

	Users    *UserStore
	Sessions *SessionStore
	Families *FamilyStore
	Chores   *ChoreStore
	Ledger   *LedgerStore
	Rewards  *RewardStore
	Badges   *BadgeStore
	Goals    *GoalStore
}

func New(db *sql.DB) *Store {
	s := bind(db)
	s.db = db
	return s
}

func bind(q DBTX) *Store {
	return &Store{
		Users:    NewUserStore(q),
		Sessions: NewSessionStore(q),
		Families: NewFamilyStore(q),
		Chores:   NewChoreStore(q),
		Ledger:   NewLedgerStore(q),
		Rewards:  NewRewardStore(q),
		Badges:   NewBadgeStore(q),
		Goals:    NewGoalStore(q),
	}
}

// DB returns the underlying pool, nil for a transaction-bound Store.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Tx runs fn inside a transaction. fn's error (or a context cancellation
// before commit) rolls everything back.
func (s *Store) Tx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return errors.New("nested transaction")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(bind(tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func ptrInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func ptrTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
