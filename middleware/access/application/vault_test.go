package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"access-gateway/middleware/access/domain"
)

func TestVault_WithoutBackendReturnsPlaceholder(t *testing.T) {
	v := Vault{AppID: "app"}

	s, err := v.Get(context.Background(), "db.password")
	require.NoError(t, err)
	assert.Equal(t, NotImplementedLocally, s)

	s, err = v.GetByEnvironment(context.Background(), "db.password")
	require.NoError(t, err)
	assert.Equal(t, NotImplementedLocally, s)
}

func TestVault_UsesAppID(t *testing.T) {
	v := Vault{
		AppID: "orders",
		Backend: fakeSecrets{
			byApp: map[string]map[string]string{"orders": {"token": "s3cr3t"}},
			env:   map[string]string{"token": "env-s3cr3t"},
		},
	}

	s, err := v.Get(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", s)

	s, err = v.GetByEnvironment(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, "env-s3cr3t", s)
}

func TestVault_BackendErrorIsPassedThrough(t *testing.T) {
	cause := errors.New("vault sealed")
	v := Vault{Backend: fakeSecrets{err: cause}}

	_, err := v.Get(context.Background(), "token")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, domain.CodeBackend, domain.CodeOf(err))
}

func TestVault_RejectsEmptyKey(t *testing.T) {
	v := Vault{Backend: fakeSecrets{}}

	_, err := v.Get(context.Background(), "")
	assert.True(t, domain.IsInvalidArgument(err))
	_, err = v.GetByEnvironment(context.Background(), "")
	assert.True(t, domain.IsInvalidArgument(err))
}

func TestVault_WithoutBackendIgnoresKey(t *testing.T) {
	s, err := Vault{}.Get(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, NotImplementedLocally, s)
}
