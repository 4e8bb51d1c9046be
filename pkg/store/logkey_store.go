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

// LogKeyStore persists decision-log ingestion API keys. Only the SHA-256 of
// the plaintext key is stored.
type LogKeyStore struct {
	q Querier
}

func NewLogKeyStore(q Querier) *LogKeyStore {
	return &LogKeyStore{q: q}
}

const logKeyCols = `id, version_id, name, key_hash, allow_raw_pii,
	created_at, revoked_at, last_used_at`

func (s *LogKeyStore) Create(ctx context.Context, k *model.LogAPIKey) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO log_api_keys (`+logKeyCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.VersionID, k.Name, k.KeyHash, boolInt(k.AllowRawPII),
		fmtTime(k.CreatedAt), fmtTimePtr(k.RevokedAt), fmtTimePtr(k.LastUsedAt))
	if IsUniqueViolation(err) {
		return apperr.Conflict("key hash collision, retry key generation")
	}
	if err != nil {
		return fmt.Errorf("failed to create log key: %w", err)
	}
	return nil
}

// FindActiveByHash resolves an ingestion request's key. Revoked keys do not
// match.
func (s *LogKeyStore) FindActiveByHash(ctx context.Context, keyHash string) (*model.LogAPIKey, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+logKeyCols+` FROM log_api_keys
		 WHERE key_hash = ? AND revoked_at IS NULL`, keyHash)
	return scanLogKeyFrom(row)
}

func (s *LogKeyStore) ListByVersion(ctx context.Context, versionID string) ([]*model.LogAPIKey, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+logKeyCols+` FROM log_api_keys WHERE version_id = ?
		 ORDER BY created_at DESC, id DESC`, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list log keys: %w", err)
	}
	defer rows.Close()

	var out []*model.LogAPIKey
	for rows.Next() {
		k, err := scanLogKeyFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// Revoke marks a key revoked. Revocation is permanent.
func (s *LogKeyStore) Revoke(ctx context.Context, versionID, id string, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE log_api_keys SET revoked_at = ?
		 WHERE id = ? AND version_id = ? AND revoked_at IS NULL`,
		fmtTime(at), id, versionID)
	if err != nil {
		return fmt.Errorf("failed to revoke log key: %w", err)
	}
	return requireRow(res, "log key not found or already revoked")
}

// TouchLastUsed records a successful use of the key. Best effort; ingestion
// does not fail if this write fails.
func (s *LogKeyStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE log_api_keys SET last_used_at = ? WHERE id = ?`, fmtTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to touch log key: %w", err)
	}
	return nil
}

func scanLogKeyFrom(sc rowScanner) (*model.LogAPIKey, error) {
	var k model.LogAPIKey
	var allowRaw int
	var createdAt string
	var revokedAt, lastUsedAt sql.NullString
	err := sc.Scan(&k.ID, &k.VersionID, &k.Name, &k.KeyHash, &allowRaw,
		&createdAt, &revokedAt, &lastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("log key not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read log key: %w", err)
	}
	k.AllowRawPII = allowRaw != 0
	k.CreatedAt = parseTime(createdAt)
	k.RevokedAt = parseTimePtr(revokedAt)
	k.LastUsedAt = parseTimePtr(lastUsedAt)
	return &k, nil
}
