package leaderboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestRankOrdering(t *testing.T) {
	in := []Standing{
		{UserID: 1, Points: 50, Streak: 1, JoinedAt: t0},
		{UserID: 2, Points: 80, Streak: 0, JoinedAt: t0.Add(time.Hour)},
		{UserID: 3, Points: 50, Streak: 4, JoinedAt: t0.Add(2 * time.Hour)},
		{UserID: 4, Points: 50, Streak: 1, JoinedAt: t0.Add(-time.Hour)},
	}

	got := Rank(in)
	require.Len(t, got, 4)

	var order []int64
	for i, s := range got {
		order = append(order, s.UserID)
		assert.Equal(t, i+1, s.Rank)
	}
	assert.Equal(t, []int64{2, 3, 4, 1}, order)
	assert.Equal(t, int64(1), in[0].UserID, "input must not be reordered")
}

func drawStandings(t *rapid.T) []Standing {
	n := rapid.IntRange(0, 12).Draw(t, "members")
	out := make([]Standing, n)
	for i := range out {
		out[i] = Standing{
			UserID:   int64(i + 1),
			Points:   rapid.IntRange(0, 5).Draw(t, "points"),
			Streak:   rapid.IntRange(0, 3).Draw(t, "streak"),
			JoinedAt: t0.Add(time.Duration(rapid.IntRange(0, 3).Draw(t, "joined")) * time.Hour),
		}
	}
	return out
}

func before(a, b Standing) bool {
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
}

func TestRankIsTotalOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		got := Rank(drawStandings(t))
		for i := 1; i < len(got); i++ {
			if !before(got[i-1], got[i]) {
				t.Fatalf("position %d (%+v) does not precede %d (%+v)", i-1, got[i-1], i, got[i])
			}
		}
	})
}

func TestRankIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := drawStandings(t)
		shuffled := rapid.Permutation(in).Draw(t, "shuffled")

		a, b := Rank(in), Rank(shuffled)
		if len(a) != len(b) {
			t.Fatalf("length mismatch")
		}
		for i := range a {
			if a[i].UserID != b[i].UserID || a[i].Rank != b[i].Rank {
				t.Fatalf("rank differs at %d: %+v vs %+v", i, a[i], b[i])
			}
		}
	})
}
