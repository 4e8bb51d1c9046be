package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/model"
)

// UserStore persists user accounts.
type UserStore struct {
	q Querier
}

func NewUserStore(q Querier) *UserStore {
	return &UserStore{q: q}
}

const userCols = `id, org_id, email, role, active, password_hash,
	failed_login_attempts, locked_until, created_at`

func (s *UserStore) Create(ctx context.Context, u *model.User) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO users (`+userCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.OrgID, u.Email, string(u.Role), boolInt(u.Active), u.PasswordHash,
		u.FailedLoginAttempts, fmtTimePtr(u.LockedUntil), fmtTime(u.CreatedAt))
	if IsUniqueViolation(err) {
		return apperr.Conflict("user %q already exists in this organization", u.Email)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *UserStore) Get(ctx context.Context, orgID, id string) (*model.User, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM users WHERE id = ? AND org_id = ?`, id, orgID)
	return scanUser(row)
}

// GetByEmail resolves the login identity. Emails are unique per organization,
// so the oldest matching account wins when the same address exists in more
// than one organization.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM users WHERE email = ? ORDER BY created_at ASC, id ASC LIMIT 1`,
		email)
	return scanUser(row)
}

func (s *UserStore) List(ctx context.Context, orgID string) ([]*model.User, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+userCols+` FROM users WHERE org_id = ? ORDER BY created_at ASC, id ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u, err := scanUserRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Update persists role and active flags.
func (s *UserStore) Update(ctx context.Context, u *model.User) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE users SET role = ?, active = ? WHERE id = ? AND org_id = ?`,
		string(u.Role), boolInt(u.Active), u.ID, u.OrgID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireRow(res, "user not found")
}

// UpdateCredentials persists the password hash and login counters after an
// authentication attempt or password change.
func (s *UserStore) UpdateCredentials(ctx context.Context, u *model.User) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, failed_login_attempts = ?, locked_until = ?
		 WHERE id = ?`,
		u.PasswordHash, u.FailedLoginAttempts, fmtTimePtr(u.LockedUntil), u.ID)
	if err != nil {
		return fmt.Errorf("failed to update credentials: %w", err)
	}
	return requireRow(res, "user not found")
}

func (s *UserStore) Delete(ctx context.Context, orgID, id string) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM users WHERE id = ? AND org_id = ?`, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireRow(res, "user not found")
}

// CountActiveAdmins backs the last-admin guard.
func (s *UserStore) CountActiveAdmins(ctx context.Context, orgID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE org_id = ? AND role = ? AND active = 1`,
		orgID, string(model.RoleAdmin)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserFrom(sc rowScanner) (*model.User, error) {
	var u model.User
	var role string
	var active int
	var lockedUntil sql.NullString
	var createdAt string
	err := sc.Scan(&u.ID, &u.OrgID, &u.Email, &role, &active, &u.PasswordHash,
		&u.FailedLoginAttempts, &lockedUntil, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	u.Role = model.Role(role)
	u.Active = active != 0
	u.LockedUntil = parseTimePtr(lockedUntil)
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func scanUser(row *sql.Row) (*model.User, error)       { return scanUserFrom(row) }
func scanUserRows(rows *sql.Rows) (*model.User, error) { return scanUserFrom(rows) }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read result: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("%s", msg)
	}
	return nil
}
