package infra

import (
	"context"
	"os"
	"testing"

	"access-gateway/middleware/access/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Precisa de um Postgres real: ACCESS_TEST_POSTGRES_DSN=postgres://...
func TestPostgresMapStore(t *testing.T) {
	dsn := os.Getenv("ACCESS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ACCESS_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := NewPostgresMapStore(pool)
	require.NoError(t, s.EnsureSchema(ctx))

	ref := domain.MapRef{AppID: "test-" + uuid.NewString(), Name: "users", Scope: "exclusive"}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM access_kvm WHERE app_id=$1`, ref.AppID)
	})

	_, ok, err := s.Get(ctx, ref, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, ref, "k2", "b"))
	require.NoError(t, s.Put(ctx, ref, "k1", "a"))
	require.NoError(t, s.Put(ctx, ref, "k1", "a2"))

	v, ok, err := s.Get(ctx, ref, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a2", v)

	keys, err := s.GetKeys(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, keys)

	require.NoError(t, s.Remove(ctx, ref, "k1"))
	_, ok, _ = s.Get(ctx, ref, "k1")
	assert.False(t, ok)
}
