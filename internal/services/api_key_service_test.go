package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parakeet-ai/parakeet/internal/database/testutil"
)

func TestAPIKeyCreateAndValidate(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAPIKeyService(db)
	require.NoError(t, err)

	ctx := context.Background()
	created, err := svc.Create(ctx, "user-1", "ci pipeline")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(created.Secret, "pk-"))
	require.Len(t, created.Secret, 3+64)
	require.Equal(t, created.Secret[:11], created.Key.Prefix)
	require.Equal(t, "ci pipeline", created.Key.Name)
	require.NotContains(t, created.Key.KeyHash, created.Secret)

	key, err := svc.Validate(ctx, created.Secret)
	require.NoError(t, err)
	require.Equal(t, created.Key.ID, key.ID)
	require.Equal(t, "user-1", key.UserID)
	require.NotNil(t, key.LastUsedAt)
}

func TestAPIKeyCreateDefaultsName(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAPIKeyService(db)
	require.NoError(t, err)

	created, err := svc.Create(context.Background(), "user-1", "   ")
	require.NoError(t, err)
	require.Equal(t, "default", created.Key.Name)
}

func TestAPIKeyValidateRejectsBadSecrets(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAPIKeyService(db)
	require.NoError(t, err)

	ctx := context.Background()
	created, err := svc.Create(ctx, "user-1", "key")
	require.NoError(t, err)

	_, err = svc.Validate(ctx, "not-a-key")
	require.ErrorIs(t, err, ErrAPIKeyInvalid)

	_, err = svc.Validate(ctx, "pk-"+strings.Repeat("0", 64))
	require.ErrorIs(t, err, ErrAPIKeyInvalid)

	// Truncating the secret must not validate.
	_, err = svc.Validate(ctx, created.Secret[:20])
	require.ErrorIs(t, err, ErrAPIKeyInvalid)
}

func TestAPIKeyRevokeDisablesKey(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAPIKeyService(db)
	require.NoError(t, err)

	ctx := context.Background()
	created, err := svc.Create(ctx, "user-1", "key")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, "user-1", created.Key.ID))

	_, err = svc.Validate(ctx, created.Secret)
	require.ErrorIs(t, err, ErrAPIKeyInvalid)

	// Revoked keys stay listed for audit.
	keys, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.NotNil(t, keys[0].RevokedAt)

	// A second revoke and a foreign-user revoke both miss.
	require.ErrorIs(t, svc.Revoke(ctx, "user-1", created.Key.ID), ErrAPIKeyNotFound)
	require.ErrorIs(t, svc.Revoke(ctx, "user-2", created.Key.ID), ErrAPIKeyNotFound)
}
