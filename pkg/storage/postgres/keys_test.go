package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodav-monitor/sodav/pkg/auth"
	"github.com/sodav-monitor/sodav/pkg/storage"
)

var keyCols = []string{"id", "name", "owner_user_id", "key_hash", "key_prefix", "permissions", "active", "expires_at", "last_used_at", "created_at"}

func TestGetKeyByHash(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM api_keys WHERE key_hash = \$1`).
		WithArgs("abc123").
		WillReturnRows(sqlmock.NewRows(keyCols).AddRow(
			"k1", "probe dakar", "u1", "abc123", "sodav_AbCdEfGh",
			"{detections:write,songs:read}", true, fixedNow.AddDate(0, 1, 0), nil, fixedNow,
		))

	key, err := store.GetKeyByHash(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, []auth.Permission{auth.PermissionDetectionsWrite, auth.PermissionSongsRead}, key.Permissions)
	require.NotNil(t, key.ExpiresAt)
	assert.Nil(t, key.LastUsedAt)
	assert.True(t, key.Active)
}

func TestGetKeyByHash_Errors(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM api_keys`).WithArgs("missing").WillReturnError(sql.ErrNoRows)
	_, err := store.GetKeyByHash(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	mock.ExpectQuery(`FROM api_keys`).WithArgs("down").WillReturnError(&pq.Error{Code: "08001"})
	_, err = store.GetKeyByHash(context.Background(), "down")
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateKey(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO api_keys`).
		WithArgs(sqlmock.AnyArg(), "probe", "u1", "hash", "sodav_12345678",
			pq.Array([]string{"detections:write"}), true, nil, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	key := &auth.APIKey{
		Name:        "probe",
		OwnerUserID: "u1",
		KeyHash:     "hash",
		KeyPrefix:   "sodav_12345678",
		Permissions: []auth.Permission{auth.PermissionDetectionsWrite},
		Active:      true,
	}
	require.NoError(t, store.CreateKey(context.Background(), key))
	assert.NotEmpty(t, key.ID)
	assert.Equal(t, fixedNow, key.CreatedAt)
}

func TestCreateKey_DuplicateHash(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO api_keys`).WillReturnError(&pq.Error{Code: "23505"})

	err := store.CreateKey(context.Background(), &auth.APIKey{Name: "dup"})
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestListKeys(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM api_keys\s+WHERE \(\$1 = '' OR owner_user_id = \$1\)`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(keyCols).
			AddRow("k2", "b", "u1", "h2", "sodav_bbbbbbbb", "{}", true, nil, fixedNow, fixedNow).
			AddRow("k1", "a", "u1", "h1", "sodav_aaaaaaaa", "{*}", false, nil, nil, fixedNow))

	keys, err := store.ListKeys(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Empty(t, keys[0].Permissions)
	assert.NotNil(t, keys[0].LastUsedAt)
	assert.Equal(t, []auth.Permission{auth.PermissionAll}, keys[1].Permissions)
	assert.False(t, keys[1].Active)
}

func TestDisableKey(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE api_keys SET active = FALSE WHERE id = \$1`).
		WithArgs("k1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.DisableKey(context.Background(), "k1"))

	mock.ExpectExec(`UPDATE api_keys SET active = FALSE`).
		WithArgs("nope").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.DisableKey(context.Background(), "nope"), storage.ErrNotFound)
}

func TestTouchKey(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE api_keys SET last_used_at = \$2 WHERE id = \$1`).
		WithArgs("k1", fixedNow).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.TouchKey(context.Background(), "k1", fixedNow))
}
