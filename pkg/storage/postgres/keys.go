package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/sodav-monitor/sodav/pkg/auth"
)

const keyColumns = `id, name, owner_user_id, key_hash, key_prefix, permissions, active, expires_at, last_used_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*auth.APIKey, error) {
	var (
		key         auth.APIKey
		permissions []string
		expiresAt   sql.NullTime
		lastUsedAt  sql.NullTime
	)
	if err := row.Scan(&key.ID, &key.Name, &key.OwnerUserID, &key.KeyHash, &key.KeyPrefix,
		pq.Array(&permissions), &key.Active, &expiresAt, &lastUsedAt, &key.CreatedAt); err != nil {
		return nil, err
	}
	key.Permissions = make([]auth.Permission, len(permissions))
	for i, p := range permissions {
		key.Permissions[i] = auth.Permission(p)
	}
	key.ExpiresAt = timePtr(expiresAt)
	key.LastUsedAt = timePtr(lastUsedAt)
	return &key, nil
}

func permissionStrings(perms []auth.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// CreateKey stores a new key. The hash and prefix must already be set.
func (s *Store) CreateKey(ctx context.Context, key *auth.APIKey) (err error) {
	ctx, done := s.begin(ctx, "Store.CreateKey", "insert", "api_keys")
	defer func() { done(err) }()

	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	key.CreatedAt = s.now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, name, owner_user_id, key_hash, key_prefix, permissions, active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		key.ID, key.Name, key.OwnerUserID, key.KeyHash, key.KeyPrefix,
		pq.Array(permissionStrings(key.Permissions)), key.Active, nullTime(key.ExpiresAt), key.CreatedAt,
	)
	return wrap("create api key", err)
}

// GetKeyByHash loads a key by the SHA-256 hex of its raw value.
func (s *Store) GetKeyByHash(ctx context.Context, hash string) (key *auth.APIKey, err error) {
	ctx, done := s.begin(ctx, "Store.GetKeyByHash", "select", "api_keys")
	defer func() { done(err) }()

	key, err = scanKey(s.db.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE key_hash = $1`, hash))
	if err != nil {
		return nil, wrap("get api key by hash", err)
	}
	return key, nil
}

// ListKeys returns keys newest first, restricted to one owner when ownerID
// is non-empty.
func (s *Store) ListKeys(ctx context.Context, ownerID string) (keys []*auth.APIKey, err error) {
	ctx, done := s.begin(ctx, "Store.ListKeys", "select", "api_keys")
	defer func() { done(err) }()

	rows, err := s.reader().QueryContext(ctx, `
		SELECT `+keyColumns+` FROM api_keys
		WHERE ($1 = '' OR owner_user_id = $1)
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, wrap("list api keys", err)
	}
	defer rows.Close()

	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, wrap("scan api key", err)
		}
		keys = append(keys, key)
	}
	return keys, wrap("list api keys", rows.Err())
}

// DisableKey marks a key inactive. The row is kept for the audit trail.
func (s *Store) DisableKey(ctx context.Context, id string) (err error) {
	ctx, done := s.begin(ctx, "Store.DisableKey", "update", "api_keys")
	defer func() { done(err) }()

	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return wrap("disable api key "+id, err)
	}
	return requireRow("disable api key "+id, res)
}

// TouchKey records the last use of a key. Concurrent touches are
// last-write-wins.
func (s *Store) TouchKey(ctx context.Context, id string, at time.Time) (err error) {
	ctx, done := s.begin(ctx, "Store.TouchKey", "update", "api_keys")
	defer func() { done(err) }()

	_, err = s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	return wrap("touch api key "+id, err)
}
