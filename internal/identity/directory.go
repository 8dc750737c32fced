// Package identity resolves credentials to callers and owns users, sessions,
// families and memberships.
package identity

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/chorepoints/internal/apperr"
	"github.com/dukerupert/chorepoints/internal/auth"
	"github.com/dukerupert/chorepoints/internal/model"
	"github.com/dukerupert/chorepoints/internal/store"
)

const minPasswordLen = 8

type Directory struct {
	store      *store.Store
	sessionTTL time.Duration
	bcryptCost int
	logger     *slog.Logger
}

func NewDirectory(s *store.Store, sessionTTL time.Duration, logger *slog.Logger) *Directory {
	return &Directory{
		store:      s,
		sessionTTL: sessionTTL,
		bcryptCost: bcrypt.DefaultCost,
		logger:     logger,
	}
}

// Register creates a standard user with a bcrypt-hashed password.
func (d *Directory) Register(ctx context.Context, email, name, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Invalid("invalid email address")
	}
	if name == "" {
		return nil, apperr.Invalid("name is required")
	}
	if len(password) < minPasswordLen {
		return nil, apperr.Invalid("password must be at least %d characters", minPasswordLen)
	}

	taken, err := d.store.Users.EmailTaken(ctx, email)
	if err != nil {
		return nil, apperr.Unavailable("check email", err)
	}
	if taken {
		return nil, apperr.Invalid("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.bcryptCost)
	if err != nil {
		return nil, apperr.Unavailable("hash password", err)
	}
	u, err := d.store.Users.Create(ctx, email, name, string(hash), model.GlobalRoleStandard)
	if err != nil {
		return nil, apperr.Unavailable("create user", err)
	}
	d.logger.Info("user registered", "user_id", u.ID)
	return u, nil
}

// Login verifies credentials and opens a session. Unknown email and wrong
// password fail the same way.
func (d *Directory) Login(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, hash, err := d.store.Users.GetCredentials(ctx, email)
	if err != nil {
		return nil, apperr.Unavailable("get credentials", err)
	}
	if u == nil {
		return nil, apperr.Unauthenticated("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, apperr.Unauthenticated("invalid email or password")
	}

	sess, err := d.store.Sessions.Create(ctx, u.ID, d.sessionTTL)
	if err != nil {
		return nil, apperr.Unavailable("create session", err)
	}
	return sess, nil
}

func (d *Directory) Logout(ctx context.Context, caller auth.Caller) error {
	if err := d.store.Sessions.Delete(ctx, caller.SessionID); err != nil {
		return apperr.Unavailable("delete session", err)
	}
	return nil
}

// Resolve maps a session token to its caller.
func (d *Directory) Resolve(ctx context.Context, token string) (auth.Caller, error) {
	if token == "" {
		return auth.Caller{}, apperr.Unauthenticated("missing credentials")
	}
	sess, err := d.store.Sessions.GetByToken(ctx, token)
	if err != nil {
		return auth.Caller{}, apperr.Unavailable("get session", err)
	}
	if sess == nil {
		return auth.Caller{}, apperr.Unauthenticated("session expired or unknown")
	}
	u, err := d.store.Users.GetByID(ctx, sess.UserID)
	if err != nil {
		return auth.Caller{}, apperr.Unavailable("get user", err)
	}
	if u == nil || u.DeletedAt != nil {
		return auth.Caller{}, apperr.Unauthenticated("user no longer exists")
	}
	return auth.Caller{UserID: u.ID, GlobalRole: u.GlobalRole, SessionID: sess.ID}, nil
}

func (d *Directory) User(ctx context.Context, id int64) (*model.User, error) {
	u, err := d.store.Users.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Unavailable("get user", err)
	}
	if u == nil {
		return nil, apperr.NotFound("user %d not found", id)
	}
	return u, nil
}

func (d *Directory) UpdateProfile(ctx context.Context, caller auth.Caller, name string) (*model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("name is required")
	}
	u, err := d.store.Users.UpdateProfile(ctx, caller.UserID, name)
	if err != nil {
		return nil, apperr.Unavailable("update profile", err)
	}
	return u, nil
}

// DeleteAccount soft-deletes the caller. Ledger history keeps referencing
// the row.
func (d *Directory) DeleteAccount(ctx context.Context, caller auth.Caller) error {
	if err := d.store.Users.SoftDelete(ctx, caller.UserID); err != nil {
		return apperr.Unavailable("delete user", err)
	}
	d.logger.Info("user deleted", "user_id", caller.UserID)
	return nil
}

// Membership returns the caller's active membership in a family, nil when
// there is none.
func (d *Directory) Membership(ctx context.Context, userID, familyID int64) (*model.FamilyMembership, error) {
	m, err := d.store.Families.GetMember(ctx, familyID, userID)
	if err != nil {
		return nil, err
	}
	if !m.Active() {
		return nil, nil
	}
	return m, nil
}

// CleanupSessions removes expired sessions.
func (d *Directory) CleanupSessions(ctx context.Context) (int64, error) {
	n, err := d.store.Sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, apperr.Unavailable("delete expired sessions", err)
	}
	return n, nil
}
