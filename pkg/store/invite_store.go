package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/model"
)

// InviteStore persists pending user invitations. Only the SHA-256 of the
// invite token is stored.
type InviteStore struct {
	q Querier
}

func NewInviteStore(q Querier) *InviteStore {
	return &InviteStore{q: q}
}

const inviteCols = `id, org_id, email, role, token_hash, invited_by,
	created_at, expires_at, accepted_at`

func (s *InviteStore) Create(ctx context.Context, inv *model.UserInvite) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO user_invites (`+inviteCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.OrgID, inv.Email, string(inv.Role), inv.TokenHash,
		ptrArg(inv.InvitedBy), fmtTime(inv.CreatedAt), fmtTime(inv.ExpiresAt),
		fmtTimePtr(inv.AcceptedAt))
	if IsUniqueViolation(err) {
		return apperr.Conflict("token hash collision, retry invite generation")
	}
	if err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

// FindPendingByHash resolves an accept request's token. Accepted invites do
// not match.
func (s *InviteStore) FindPendingByHash(ctx context.Context, tokenHash string) (*model.UserInvite, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+inviteCols+` FROM user_invites
		 WHERE token_hash = ? AND accepted_at IS NULL`, tokenHash)
	return scanInviteFrom(row)
}

func (s *InviteStore) ListByOrg(ctx context.Context, orgID string) ([]*model.UserInvite, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+inviteCols+` FROM user_invites WHERE org_id = ?
		 ORDER BY created_at DESC, id DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	var out []*model.UserInvite
	for rows.Next() {
		inv, err := scanInviteFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// MarkAccepted consumes an invite. A replayed accept sees zero rows.
func (s *InviteStore) MarkAccepted(ctx context.Context, id string, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE user_invites SET accepted_at = ?
		 WHERE id = ? AND accepted_at IS NULL`, fmtTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to accept invite: %w", err)
	}
	return requireRow(res, "invite not found or already accepted")
}

func scanInviteFrom(sc rowScanner) (*model.UserInvite, error) {
	var inv model.UserInvite
	var role string
	var invitedBy sql.NullString
	var createdAt, expiresAt string
	var acceptedAt sql.NullString
	err := sc.Scan(&inv.ID, &inv.OrgID, &inv.Email, &role, &inv.TokenHash,
		&invitedBy, &createdAt, &expiresAt, &acceptedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("invite not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read invite: %w", err)
	}
	inv.Role = model.Role(role)
	inv.InvitedBy = strPtr(invitedBy)
	inv.CreatedAt = parseTime(createdAt)
	inv.ExpiresAt = parseTime(expiresAt)
	inv.AcceptedAt = parseTimePtr(acceptedAt)
	return &inv, nil
}
