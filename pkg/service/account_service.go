package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/audit"
	"github.com/complia/complia/pkg/auth"
	"github.com/complia/complia/pkg/model"
	"github.com/complia/complia/pkg/store"
)

// Token and invite lifetimes.
const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
	inviteTTL       = 7 * 24 * time.Hour
	minPasswordLen  = 12
)

// AccountService handles tenancy bootstrap, authentication and user
// administration.
type AccountService struct {
	deps *Deps
}

// BootstrapInput creates a new organization with its first admin.
type BootstrapInput struct {
	OrgName       string `json:"org_name"`
	AdminEmail    string `json:"admin_email"`
	AdminPassword string `json:"admin_password"`
}

// Bootstrapped is the bootstrap result.
type Bootstrapped struct {
	Org   *model.Organization `json:"organization"`
	Admin *model.User         `json:"admin"`
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\n")
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen {
		return apperr.Validation("password too short", map[string]string{
			"password": "must be at least 12 characters",
		})
	}
	return nil
}

// Bootstrap creates an organization and its first admin user. This is the
// only unauthenticated write besides login and ingestion.
func (s *AccountService) Bootstrap(ctx context.Context, in BootstrapInput) (*Bootstrapped, error) {
	details := map[string]string{}
	orgName := strings.TrimSpace(in.OrgName)
	email := strings.ToLower(strings.TrimSpace(in.AdminEmail))
	if orgName == "" {
		details["org_name"] = "must not be empty"
	}
	if !validEmail(email) {
		details["admin_email"] = "must be a valid email address"
	}
	if len(details) > 0 {
		return nil, apperr.Validation("invalid bootstrap request", details)
	}
	if err := validatePassword(in.AdminPassword); err != nil {
		return nil, err
	}

	hash, err := s.deps.Hasher.Hash(in.AdminPassword)
	if err != nil {
		return nil, err
	}

	now := s.deps.now()
	org := &model.Organization{ID: uuid.New().String(), Name: orgName, CreatedAt: now}
	admin := &model.User{
		ID:           uuid.New().String(),
		OrgID:        org.ID,
		Email:        email,
		Role:         model.RoleAdmin,
		Active:       true,
		PasswordHash: hash,
		CreatedAt:    now,
	}

	err = store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		if err := store.NewOrgStore(q).Create(ctx, org); err != nil {
			return err
		}
		if err := store.NewUserStore(q).Create(ctx, admin); err != nil {
			return err
		}
		return s.deps.Recorder.Record(ctx, q, org.ID, audit.Entry{
			Action:     audit.ActionCreate,
			EntityType: "organization",
			EntityID:   org.ID,
			Diff:       map[string]any{"name": org.Name, "admin_email": admin.Email},
		})
	})
	if err != nil {
		return nil, err
	}
	return &Bootstrapped{Org: org, Admin: admin}, nil
}

// TokenPair is the login result.
type TokenPair struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in_seconds"`
	User         *model.User `json:"user"`
}

// Login authenticates by email and password. Five consecutive failures lock
// the account for fifteen minutes; lockout state is reported as locked, not
// as bad credentials.
func (s *AccountService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := store.NewUserStore(s.deps.DB).GetByEmail(ctx, email)
	if apperr.IsKind(err, apperr.KindNotFound) {
		// Burn a hash comparison so the miss is not timing-observable.
		s.deps.Hasher.Compare("$2a$10$0000000000000000000000uGZwLkWvyOyFZq1F1yO6z9me1fS22C6", password)
		return nil, apperr.Unauthenticated("invalid email or password")
	}
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, apperr.Unauthenticated("invalid email or password")
	}

	now := s.deps.now()
	if u.LockedUntil != nil && u.LockedUntil.After(now) {
		return nil, apperr.New(apperr.KindLocked, "account locked until %s",
			u.LockedUntil.UTC().Format(time.RFC3339))
	}

	if !s.deps.Hasher.Compare(u.PasswordHash, password) {
		// The counter must commit even though the login fails; a rolled-back
		// write here would make the lockout unreachable.
		u.FailedLoginAttempts++
		if u.FailedLoginAttempts >= auth.MaxFailedLogins {
			until := now.Add(auth.LockoutMinutes * time.Minute)
			u.LockedUntil = &until
			u.FailedLoginAttempts = 0
		}
		err := store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
			return store.NewUserStore(q).UpdateCredentials(ctx, u)
		})
		if err != nil {
			return nil, err
		}
		return nil, apperr.Unauthenticated("invalid email or password")
	}

	var pair *TokenPair
	err = store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		if err := store.NewUserStore(q).UpdateCredentials(ctx, u); err != nil {
			return err
		}

		access, err := s.deps.Tokens.IssueAccess(u, accessTokenTTL)
		if err != nil {
			return err
		}
		refresh, err := s.deps.Tokens.IssueRefresh(u, refreshTokenTTL)
		if err != nil {
			return err
		}
		pair = &TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresIn:    int64(accessTokenTTL.Seconds()),
			User:         u,
		}
		return s.deps.Recorder.Record(ctx, q, u.OrgID, audit.Entry{
			Action:     audit.ActionLogin,
			EntityType: "user",
			EntityID:   u.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.deps.Tokens.Validate(refreshToken)
	if err != nil || claims.Kind != "refresh" {
		return nil, apperr.Unauthenticated("invalid refresh token")
	}
	u, err := store.NewUserStore(s.deps.DB).Get(ctx, claims.OrgID, claims.Subject)
	if err != nil || !u.Active {
		return nil, apperr.Unauthenticated("invalid refresh token")
	}
	access, err := s.deps.Tokens.IssueAccess(u, accessTokenTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken: access,
		ExpiresIn:   int64(accessTokenTTL.Seconds()),
		User:        u,
	}, nil
}

// Logout records the end of a session. Tokens are stateless, so the client
// discards them; the audit trail still shows when the session ended.
func (s *AccountService) Logout(ctx context.Context, p *auth.Principal) error {
	return store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionLogout,
			EntityType: "user",
			EntityID:   p.UserID,
		})
	})
}

// InviteCreated carries the one-time plaintext invite token.
type InviteCreated struct {
	Invite    *model.UserInvite `json:"invite"`
	Plaintext string            `json:"plaintext"`
}

// Invite creates a pending invitation. The token is shown once.
func (s *AccountService) Invite(ctx context.Context, p *auth.Principal, email string, role model.Role) (*InviteCreated, error) {
	if !p.IsAdmin() {
		return nil, apperr.Forbidden("admin role required")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if !validEmail(email) {
		return nil, apperr.Validation("invalid email address", map[string]string{"email": "must be a valid email address"})
	}
	if !role.Valid() {
		return nil, apperr.Validation("invalid role", map[string]string{"role": "must be one of viewer, reviewer, editor, admin"})
	}

	plaintext, hash, err := auth.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	now := s.deps.now()
	inv := &model.UserInvite{
		ID:        uuid.New().String(),
		OrgID:     p.OrgID,
		Email:     email,
		Role:      role,
		TokenHash: hash,
		InvitedBy: &p.UserID,
		CreatedAt: now,
		ExpiresAt: now.Add(inviteTTL),
	}
	err = store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		if err := store.NewInviteStore(q).Create(ctx, inv); err != nil {
			return err
		}
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionInvite,
			EntityType: "user_invite",
			EntityID:   inv.ID,
			Diff:       map[string]any{"email": email, "role": role},
		})
	})
	if err != nil {
		return nil, err
	}
	return &InviteCreated{Invite: inv, Plaintext: plaintext}, nil
}

// AcceptInvite consumes an invite token and creates the user account.
func (s *AccountService) AcceptInvite(ctx context.Context, token, password string) (*model.User, error) {
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	hash, err := s.deps.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	var user *model.User
	err = store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		invites := store.NewInviteStore(q)
		inv, err := invites.FindPendingByHash(ctx, auth.HashToken(token))
		if apperr.IsKind(err, apperr.KindNotFound) {
			return apperr.Unauthenticated("invalid or used invite token")
		}
		if err != nil {
			return err
		}
		now := s.deps.now()
		if inv.ExpiresAt.Before(now) {
			return apperr.Unauthenticated("invite token expired")
		}

		user = &model.User{
			ID:           uuid.New().String(),
			OrgID:        inv.OrgID,
			Email:        inv.Email,
			Role:         inv.Role,
			Active:       true,
			PasswordHash: hash,
			CreatedAt:    now,
		}
		if err := store.NewUserStore(q).Create(ctx, user); err != nil {
			return err
		}
		if err := invites.MarkAccepted(ctx, inv.ID, now); err != nil {
			return err
		}
		return s.deps.Recorder.Record(ctx, q, inv.OrgID, audit.Entry{
			Action:     audit.ActionCreate,
			EntityType: "user",
			EntityID:   user.ID,
			Diff:       map[string]any{"email": user.Email, "role": user.Role, "invite_id": inv.ID},
		})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AccountService) ListUsers(ctx context.Context, p *auth.Principal) ([]*model.User, error) {
	return store.NewUserStore(s.deps.DB).List(ctx, p.OrgID)
}

// UpdateUserRole changes a user's role. The last active admin cannot be
// demoted.
func (s *AccountService) UpdateUserRole(ctx context.Context, p *auth.Principal, userID string, role model.Role) (*model.User, error) {
	if !p.IsAdmin() {
		return nil, apperr.Forbidden("admin role required")
	}
	if !role.Valid() {
		return nil, apperr.Validation("invalid role", map[string]string{"role": "must be one of viewer, reviewer, editor, admin"})
	}

	var updated *model.User
	err := store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		users := store.NewUserStore(q)
		u, err := users.Get(ctx, p.OrgID, userID)
		if err != nil {
			return err
		}
		if u.Role == model.RoleAdmin && role != model.RoleAdmin {
			if err := s.requireAnotherAdmin(ctx, q, p.OrgID); err != nil {
				return err
			}
		}
		oldRole := u.Role
		u.Role = role
		if err := users.Update(ctx, u); err != nil {
			return err
		}
		updated = u
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionUpdate,
			EntityType: "user",
			EntityID:   userID,
			Diff:       map[string]any{"role": map[string]any{"old": oldRole, "new": role}},
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeactivateUser disables login for a user. The last active admin cannot be
// deactivated.
func (s *AccountService) DeactivateUser(ctx context.Context, p *auth.Principal, userID string) error {
	if !p.IsAdmin() {
		return apperr.Forbidden("admin role required")
	}
	return store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		users := store.NewUserStore(q)
		u, err := users.Get(ctx, p.OrgID, userID)
		if err != nil {
			return err
		}
		if u.Role == model.RoleAdmin && u.Active {
			if err := s.requireAnotherAdmin(ctx, q, p.OrgID); err != nil {
				return err
			}
		}
		u.Active = false
		if err := users.Update(ctx, u); err != nil {
			return err
		}
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionUpdate,
			EntityType: "user",
			EntityID:   userID,
			Diff:       map[string]any{"active": map[string]any{"old": true, "new": false}},
		})
	})
}

// DeleteUser removes a user account. Audit rows survive with a nulled actor.
func (s *AccountService) DeleteUser(ctx context.Context, p *auth.Principal, userID string) error {
	if !p.IsAdmin() {
		return apperr.Forbidden("admin role required")
	}
	return store.WithTx(ctx, s.deps.DB, func(q store.Querier) error {
		users := store.NewUserStore(q)
		u, err := users.Get(ctx, p.OrgID, userID)
		if err != nil {
			return err
		}
		if u.Role == model.RoleAdmin && u.Active {
			if err := s.requireAnotherAdmin(ctx, q, p.OrgID); err != nil {
				return err
			}
		}
		if err := users.Delete(ctx, p.OrgID, userID); err != nil {
			return err
		}
		return s.deps.Recorder.Record(ctx, q, p.OrgID, audit.Entry{
			Action:     audit.ActionDelete,
			EntityType: "user",
			EntityID:   userID,
			Diff:       map[string]any{"email": u.Email},
		})
	})
}

// requireAnotherAdmin guards the last-admin invariant: demoting, deactivating
// or deleting the only active admin would strand the organization.
func (s *AccountService) requireAnotherAdmin(ctx context.Context, q store.Querier, orgID string) error {
	n, err := store.NewUserStore(q).CountActiveAdmins(ctx, orgID)
	if err != nil {
		return err
	}
	if n <= 1 {
		return apperr.Conflict("organization must keep at least one active admin")
	}
	return nil
}
