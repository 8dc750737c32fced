// Package leaderboard ranks family members from ledger snapshots.
package leaderboard

import (
	"context"
	"sort"
	"time"

	"github.com/dukerupert/chorepoints/internal/apperr"
	"github.com/dukerupert/chorepoints/internal/auth"
	"github.com/dukerupert/chorepoints/internal/authz"
	"github.com/dukerupert/chorepoints/internal/ledger"
	"github.com/dukerupert/chorepoints/internal/store"
)

type Standing struct {
	Rank     int       `json:"rank"`
	UserID   int64     `json:"user_id"`
	Name     string    `json:"name"`
	Points   int       `json:"total_points"`
	Streak   int       `json:"streak"`
	JoinedAt time.Time `json:"joined_at"`
}

// Rank orders standings by points descending, then streak descending, then
// earlier membership. Equal keys fall back to user id so the order is total.
// Ranks are 1-based positions. The input slice is not modified.
func Rank(in []Standing) []Standing {
	out := append([]Standing(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.Streak != b.Streak {
			return a.Streak > b.Streak
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.UserID < b.UserID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

type Board struct {
	store  *store.Store
	guard  *authz.Guard
	ledger *ledger.Ledger
}

func NewBoard(s *store.Store, guard *authz.Guard, l *ledger.Ledger) *Board {
	return &Board{store: s, guard: guard, ledger: l}
}

// Rank computes the family's current leaderboard from the ledger. Points
// are current balances.
func (b *Board) Rank(ctx context.Context, caller auth.Caller, familyID int64) ([]Standing, error) {
	if err := b.guard.Require(ctx, caller, familyID, authz.ViewFamilyData, authz.Target{}); err != nil {
		return nil, err
	}
	members, err := b.store.Families.ListMembers(ctx, familyID)
	if err != nil {
		return nil, apperr.Unavailable("list members", err)
	}

	standings := make([]Standing, 0, len(members))
	for _, m := range members {
		snap, err := b.ledger.SnapshotOf(ctx, b.store, m.UserID, familyID)
		if err != nil {
			return nil, apperr.Unavailable("load snapshot", err)
		}
		u, err := b.store.Users.GetByID(ctx, m.UserID)
		if err != nil {
			return nil, apperr.Unavailable("get user", err)
		}
		var name string
		if u != nil {
			name = u.Name
		}
		standings = append(standings, Standing{
			UserID:   m.UserID,
			Name:     name,
			Points:   snap.Balance,
			Streak:   snap.Streak,
			JoinedAt: m.CreatedAt,
		})
	}
	return Rank(standings), nil
}
