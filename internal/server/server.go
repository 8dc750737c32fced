package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/chorepoints/internal/authz"
	"github.com/dukerupert/chorepoints/internal/badge"
	"github.com/dukerupert/chorepoints/internal/chore"
	"github.com/dukerupert/chorepoints/internal/goal"
	"github.com/dukerupert/chorepoints/internal/handler"
	"github.com/dukerupert/chorepoints/internal/identity"
	"github.com/dukerupert/chorepoints/internal/leaderboard"
	"github.com/dukerupert/chorepoints/internal/ledger"
	"github.com/dukerupert/chorepoints/internal/metrics"
	"github.com/dukerupert/chorepoints/internal/middleware"
	"github.com/dukerupert/chorepoints/internal/reward"
	ws "github.com/dukerupert/chorepoints/internal/websocket"
)

// Deps are the constructed services the HTTP surface exposes.
type Deps struct {
	DB        *sql.DB
	Directory *identity.Directory
	Families  *identity.Families
	Guard     *authz.Guard
	Chores    *chore.Engine
	Ledger    *ledger.Ledger
	Badges    *badge.Service
	Board     *leaderboard.Board
	Rewards   *reward.Service
	Goals     *goal.Service
	Hub       *ws.Hub
	Metrics   *metrics.Metrics // nil disables /metrics

	OpTimeout          time.Duration
	LoginRatePerMinute float64
	LoginBurst         int
	TrustProxyHeaders  bool
}

type Server struct {
	db          *sql.DB
	directory   *identity.Directory
	guard       *authz.Guard
	hub         *ws.Hub
	metrics     *metrics.Metrics
	authH       *handler.AuthHandler
	familyH     *handler.FamilyHandler
	choreH      *handler.ChoreHandler
	pointsH     *handler.PointsHandler
	rewardH     *handler.RewardHandler
	goalH       *handler.GoalHandler
	rateLimiter *middleware.RateLimiter
	opTimeout   time.Duration
	trustProxy  bool
	logger      *slog.Logger
}

func New(d Deps, logger *slog.Logger) *Server {
	return &Server{
		db:          d.DB,
		directory:   d.Directory,
		guard:       d.Guard,
		hub:         d.Hub,
		metrics:     d.Metrics,
		authH:       handler.NewAuthHandler(d.Directory, logger.With("component", "auth")),
		familyH:     handler.NewFamilyHandler(d.Families, logger.With("component", "family")),
		choreH:      handler.NewChoreHandler(d.Chores, logger.With("component", "chore")),
		pointsH:     handler.NewPointsHandler(d.Ledger, d.Badges, d.Board, logger.With("component", "points")),
		rewardH:     handler.NewRewardHandler(d.Rewards, logger.With("component", "reward")),
		goalH:       handler.NewGoalHandler(d.Goals, logger.With("component", "goal")),
		rateLimiter: middleware.NewRateLimiter(d.LoginRatePerMinute, d.LoginBurst),
		opTimeout:   d.OpTimeout,
		trustProxy:  d.TrustProxyHeaders,
		logger:      logger,
	}
}

// RateLimiter returns the login rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes (no auth required)
	mux.HandleFunc("POST /api/register", s.rateLimited(s.authH.Register))
	mux.HandleFunc("POST /api/login", s.rateLimited(s.authH.Login))
	mux.HandleFunc("GET /health", s.healthHandler)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// The event stream is long-lived, so it gets auth but no op timeout.
	mux.Handle("GET /ws", middleware.RequireAuth(s.directory)(ws.HandleWebSocket(s.hub, s.guard)))

	s.registerProtectedRoutes(mux)

	return middleware.RequestLogger(s.logger.With("component", "http"), s.metrics)(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("health check", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.ClientIP(s.trustProxy))
	return rl(h).ServeHTTP
}

// protected wraps h with session auth and the per-request op timeout.
func (s *Server) protected(h http.HandlerFunc) http.Handler {
	return middleware.RequireAuth(s.directory)(middleware.Timeout(s.opTimeout)(h))
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.protected(h))
	}

	// Account
	handle("POST /api/logout", s.authH.Logout)
	handle("GET /api/me", s.authH.Me)
	handle("PATCH /api/me", s.authH.UpdateProfile)
	handle("DELETE /api/me", s.authH.DeleteAccount)

	// Families and membership
	handle("GET /api/families", s.familyH.List)
	handle("POST /api/families", s.familyH.Create)
	handle("GET /api/families/{id}", s.familyH.Get)
	handle("GET /api/families/{id}/members", s.familyH.Members)
	handle("POST /api/families/{id}/members", s.familyH.AddMember)
	handle("PATCH /api/families/{id}/members/{userID}", s.familyH.ChangeRole)
	handle("DELETE /api/families/{id}/members/{userID}", s.familyH.RemoveMember)

	// Chore templates
	handle("GET /api/families/{id}/chores", s.choreH.List)
	handle("POST /api/families/{id}/chores", s.choreH.Create)
	handle("GET /api/chores/{id}", s.choreH.Get)
	handle("PUT /api/chores/{id}", s.choreH.Update)
	handle("POST /api/chores/{id}/archive", s.choreH.Archive)

	// Assignments
	handle("POST /api/chores/{id}/assignments", s.choreH.Assign)
	handle("GET /api/families/{id}/assignments", s.choreH.Assignments)
	handle("GET /api/assignments/{id}", s.choreH.Assignment)
	handle("POST /api/assignments/{id}/complete", s.choreH.Complete)
	handle("POST /api/assignments/{id}/approve", s.choreH.Approve)
	handle("POST /api/assignments/{id}/reject", s.choreH.Reject)

	// Ledger, badges, leaderboard
	handle("GET /api/families/{id}/members/{userID}/account", s.pointsH.Account)
	handle("GET /api/families/{id}/members/{userID}/ledger", s.pointsH.History)
	handle("POST /api/families/{id}/members/{userID}/adjustments", s.pointsH.Adjust)
	handle("GET /api/families/{id}/members/{userID}/badges", s.pointsH.EarnedBadges)
	handle("GET /api/families/{id}/badges", s.pointsH.Badges)
	handle("POST /api/families/{id}/badges", s.pointsH.CreateBadge)
	handle("GET /api/families/{id}/leaderboard", s.pointsH.Leaderboard)

	// Rewards
	handle("GET /api/families/{id}/rewards", s.rewardH.List)
	handle("POST /api/families/{id}/rewards", s.rewardH.Create)
	handle("PUT /api/rewards/{id}", s.rewardH.Update)
	handle("POST /api/families/{id}/rewards/{rewardID}/redeem", s.rewardH.Redeem)
	handle("GET /api/families/{id}/members/{userID}/redemptions", s.rewardH.Redemptions)

	// Goals
	handle("GET /api/families/{id}/members/{userID}/goals", s.goalH.List)
	handle("POST /api/families/{id}/members/{userID}/goals", s.goalH.Create)
	handle("POST /api/goals/{id}/progress", s.goalH.AddProgress)
	handle("POST /api/goals/{id}/abandon", s.goalH.Abandon)
}
