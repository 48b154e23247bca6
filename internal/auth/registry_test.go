package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_IssueAndAuthenticate(t *testing.T) {
	reg := NewRegistry(NewInMemoryKeyStore(nil))
	ctx := context.Background()

	key, secret, err := reg.Issue(ctx, "test key", 10)
	require.NoError(t, err)
	require.NotNil(t, key)
	assert.NotEqual(t, uuid.Nil, key.ID)
	assert.Equal(t, "test key", key.Name)
	assert.NotEmpty(t, secret)
	assert.NotContains(t, key.KeyHash, secret, "raw secret must not appear in stored state")

	got, err := reg.Authenticate(ctx, secret)
	require.NoError(t, err)
	assert.Equal(t, key.ID, got.ID)
}

func TestRegistry_AuthenticateUnknownSecret(t *testing.T) {
	reg := NewRegistry(NewInMemoryKeyStore(nil))

	_, err := reg.Authenticate(context.Background(), "dk_never-issued")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRegistry_RevokedKeyIndistinguishableFromUnknown(t *testing.T) {
	reg := NewRegistry(NewInMemoryKeyStore(nil))
	ctx := context.Background()

	key, secret, err := reg.Issue(ctx, "doomed", 5)
	require.NoError(t, err)

	require.NoError(t, reg.Revoke(ctx, key.ID))

	// Correct secret for a revoked key fails...
	_, revokedErr := reg.Authenticate(ctx, secret)
	require.Error(t, revokedErr)

	// ...with exactly the same error a never-issued secret gets.
	_, unknownErr := reg.Authenticate(ctx, "dk_never-issued")
	require.Error(t, unknownErr)

	assert.True(t, errors.Is(revokedErr, ErrUnauthenticated))
	assert.True(t, errors.Is(unknownErr, ErrUnauthenticated))
	assert.Equal(t, revokedErr.Error(), unknownErr.Error())
}

func TestRegistry_SecretShownOnlyOnce(t *testing.T) {
	store := NewInMemoryKeyStore(nil)
	reg := NewRegistry(store)
	ctx := context.Background()

	_, secret, err := reg.Issue(ctx, "once", 1)
	require.NoError(t, err)

	keys, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, HashSecret(secret), keys[0].KeyHash)
	assert.NotEqual(t, secret, keys[0].KeyHash)
}

func TestRegistry_RevokeUnknownKey(t *testing.T) {
	reg := NewRegistry(NewInMemoryKeyStore(nil))

	err := reg.Revoke(context.Background(), uuid.New())
	assert.Error(t, err)
}
