// Package event defines the notifications the core emits after a state
// change commits. Delivery is up to the Publisher.
package event

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	ChoreCompleted Type = "chore_completed"
	ChoreApproved  Type = "chore_approved"
	ChoreRejected  Type = "chore_rejected"
	BadgeUnlocked  Type = "badge_unlocked"
	RewardRedeemed Type = "reward_redeemed"
	PointsAdjusted Type = "points_adjusted"
)

type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	FamilyID   int64          `json:"family_id"`
	MemberID   int64          `json:"member_id"` // whose points, badge or chore
	ActorID    int64          `json:"actor_id"`
	SubjectID  int64          `json:"subject_id"` // assignment, badge or redemption id
	Points     int            `json:"points,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func New(typ Type, familyID, memberID, actorID, subjectID int64) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		FamilyID:   familyID,
		MemberID:   memberID,
		ActorID:    actorID,
		SubjectID:  subjectID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher receives committed events. Implementations must not block the
// caller for long; the core never waits on delivery.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Fanout publishes to each publisher in order.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) {
	for _, p := range f {
		p.Publish(ctx, e)
	}
}

// PublishAll publishes events in order.
func PublishAll(ctx context.Context, p Publisher, events []Event) {
	for _, e := range events {
		p.Publish(ctx, e)
	}
}

type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (l *LogPublisher) Publish(_ context.Context, e Event) {
	l.logger.Info("event",
		"id", e.ID, "type", e.Type, "family_id", e.FamilyID,
		"member_id", e.MemberID, "subject_id", e.SubjectID, "points", e.Points)
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns recorded events of the given type.
func (r *Recorder) OfType(typ Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
