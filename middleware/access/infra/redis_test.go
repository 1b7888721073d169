package infra

import (
	"context"
	"strconv"
	"testing"
	"time"

	"access-gateway/middleware/access/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisMapStore_RoundTrip(t *testing.T) {
	mr, rdb := newRedis(t)
	s := NewRedisMapStore(rdb)
	ctx := context.Background()
	ref := domain.MapRef{AppID: "app", Name: "users", Scope: "exclusive"}

	_, ok, err := s.Get(ctx, ref, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, ref, "k2", "b"))
	require.NoError(t, s.Put(ctx, ref, "k1", "a"))

	v, ok, err := s.Get(ctx, ref, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	keys, err := s.GetKeys(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, keys)

	require.NoError(t, s.Remove(ctx, ref, "k1"))
	require.NoError(t, s.Remove(ctx, ref, "k1"))
	_, ok, _ = s.Get(ctx, ref, "k1")
	assert.False(t, ok)

	assert.True(t, mr.Exists("access:kvm:app:exclusive:::users"))
}

func TestRedisMapStore_RefsAreIsolated(t *testing.T) {
	_, rdb := newRedis(t)
	s := NewRedisMapStore(rdb, WithMapPrefix("kvm:"))
	ctx := context.Background()

	a := domain.MapRef{AppID: "app", Name: "m", Scope: "exclusive"}
	b := domain.MapRef{AppID: "app", Name: "m", Scope: "api", API: "orders"}

	require.NoError(t, s.Put(ctx, a, "k", "from-a"))
	_, ok, _ := s.Get(ctx, b, "k")
	assert.False(t, ok)
	assert.Equal(t, "kvm:app:api:orders::m", s.HashKey(b))
}

func TestRedisSecretStore(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.HSet("access:vault:app", "db", "s3cret")
	mr.HSet("access:vault:app:env:prod", "db", "prod-s3cret")

	s := NewRedisSecretStore(rdb, WithEnvironment("prod"))
	ctx := context.Background()

	v, err := s.Get(ctx, "app", "db")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)

	v, err = s.GetByEnvironment(ctx, "app", "db")
	require.NoError(t, err)
	assert.Equal(t, "prod-s3cret", v)

	v, err = s.Get(ctx, "app", "missing")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestRedisQuotaStore_SharedAcrossInstances(t *testing.T) {
	_, rdb := newRedis(t)
	clk := newClock()
	a := NewRedisQuotaStore(rdb, WithRedisQuotaClock(clk.Now))
	b := NewRedisQuotaStore(rdb, WithRedisQuotaClock(clk.Now))
	ctx := context.Background()
	p := domain.QuotaPolicy{Identifier: "id", TimeUnit: "minute", Allow: 3, Interval: 1, Weight: 1}

	for i := 0; i < 2; i++ {
		res, err := a.Apply(ctx, "app", p)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := b.Apply(ctx, "app", p)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(3), res.Used)

	res, err = a.Apply(ctx, "app", p)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(3), res.Used)
	assert.Equal(t, int64(0), res.Available)
}

func TestRedisQuotaStore_BuffersBetweenSyncs(t *testing.T) {
	mr, rdb := newRedis(t)
	clk := newClock()
	s := NewRedisQuotaStore(rdb, WithRedisQuotaClock(clk.Now))
	ctx := context.Background()
	p := domain.QuotaPolicy{Identifier: "id", TimeUnit: "minute", Allow: 10, Interval: 1, Weight: 1, SyncInterval: 10 * time.Second}

	start, end := domain.UnitMinute.Window(clk.Now(), 1)
	key := s.WindowKey("app", p, start)

	_, err := s.Apply(ctx, "app", p)
	require.NoError(t, err)
	got, _ := mr.Get(key)
	assert.Equal(t, "1", got)

	_, _ = s.Apply(ctx, "app", p)
	res, _ := s.Apply(ctx, "app", p)
	assert.Equal(t, int64(3), res.Used)
	got, _ = mr.Get(key)
	assert.Equal(t, "1", got, "local admissions stay buffered until the next sync")

	clk.Advance(10 * time.Second)
	res, err = s.Apply(ctx, "app", p)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Used)
	got, _ = mr.Get(key)
	assert.Equal(t, "4", got)

	ttl := mr.TTL(key)
	assert.True(t, ttl > 0 && ttl <= end.Sub(clk.Now()), "ttl %v", ttl)
}

func TestRedisQuotaStore_NewWindowStartsFresh(t *testing.T) {
	_, rdb := newRedis(t)
	clk := newClock()
	s := NewRedisQuotaStore(rdb, WithRedisQuotaClock(clk.Now))
	ctx := context.Background()
	p := domain.QuotaPolicy{Identifier: "id", TimeUnit: "minute", Allow: 2, Interval: 1, Weight: 1, SyncInterval: 10 * time.Second}

	for i := 0; i < 3; i++ {
		_, err := s.Apply(ctx, "app", p)
		require.NoError(t, err)
	}

	clk.Advance(time.Minute)
	for i := 1; i <= 2; i++ {
		res, err := s.Apply(ctx, "app", p)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "call %d", i)
		assert.Equal(t, int64(i), res.Used)
	}
	res, err := s.Apply(ctx, "app", p)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestRedisQuotaStore_SyncAlways(t *testing.T) {
	mr, rdb := newRedis(t)
	clk := newClock()
	s := NewRedisQuotaStore(rdb, WithRedisQuotaClock(clk.Now))
	ctx := context.Background()
	p := domain.QuotaPolicy{Identifier: "id", TimeUnit: "minute", Allow: 10, Interval: 1, Weight: 1, SyncInterval: domain.SyncAlways}
	start, _ := domain.UnitMinute.Window(clk.Now(), 1)
	key := s.WindowKey("app", p, start)

	for i := 1; i <= 3; i++ {
		_, err := s.Apply(ctx, "app", p)
		require.NoError(t, err)
		got, _ := mr.Get(key)
		assert.Equal(t, strconv.Itoa(i), got)
	}
}

func TestRedisQuotaStore_Reset(t *testing.T) {
	mr, rdb := newRedis(t)
	clk := newClock()
	s := NewRedisQuotaStore(rdb, WithRedisQuotaClock(clk.Now), WithQuotaPrefix("q"))
	ctx := context.Background()
	p := domain.QuotaPolicy{Identifier: "id", TimeUnit: "minute", Allow: 1, Interval: 1, Weight: 1}

	res, _ := s.Apply(ctx, "app", p)
	assert.True(t, res.Allowed)
	res, _ = s.Apply(ctx, "app", p)
	assert.False(t, res.Allowed)

	require.NoError(t, s.Reset(ctx, "app", p))
	start, _ := domain.UnitMinute.Window(clk.Now(), 1)
	assert.False(t, mr.Exists(s.WindowKey("app", p, start)))

	res, _ = s.Apply(ctx, "app", p)
	assert.True(t, res.Allowed)
}

func TestRedisQuotaStore_ResetDropsOtherInstancesPending(t *testing.T) {
	mr, rdb := newRedis(t)
	clk := newClock()
	a := NewRedisQuotaStore(rdb, WithRedisQuotaClock(clk.Now))
	b := NewRedisQuotaStore(rdb, WithRedisQuotaClock(clk.Now))
	ctx := context.Background()
	p := domain.QuotaPolicy{Identifier: "id", TimeUnit: "minute", Allow: 10, Interval: 1, Weight: 1, SyncInterval: 10 * time.Second}
	start, _ := domain.UnitMinute.Window(clk.Now(), 1)
	key := b.WindowKey("app", p, start)

	// b sincroniza uma vez e acumula dois pendentes locais
	for i := 0; i < 3; i++ {
		_, err := b.Apply(ctx, "app", p)
		require.NoError(t, err)
	}
	got, _ := mr.Get(key)
	assert.Equal(t, "1", got)

	require.NoError(t, a.Reset(ctx, "app", p))
	assert.False(t, mr.Exists(key))

	clk.Advance(10 * time.Second)
	res, err := b.Apply(ctx, "app", p)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.Used, "pending admitted before the reset must not come back")
	got, _ = mr.Get(key)
	assert.Equal(t, "1", got)

	// depois do sync b já está na época nova e volta a despejar normalmente
	_, _ = b.Apply(ctx, "app", p)
	clk.Advance(10 * time.Second)
	res, err = b.Apply(ctx, "app", p)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Used)
}

func TestRedisSpikeArrestStore(t *testing.T) {
	_, rdb := newRedis(t)
	clk := newClock()
	s := NewRedisSpikeArrestStore(rdb, WithRedisSpikeArrestClock(clk.Now))
	ctx := context.Background()
	p := domain.SpikeArrestPolicy{Identifier: "k", Allow: 10, TimeUnit: "second", Weight: 1}

	res, err := s.Apply(ctx, "app", p)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = s.Apply(ctx, "app", p)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 100*time.Millisecond, res.RetryAfter)

	clk.Advance(100 * time.Millisecond)
	res, err = s.Apply(ctx, "app", p)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	other, err := s.Apply(ctx, "other-app", p)
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestRedisStatsStore_Record(t *testing.T) {
	mr, rdb := newRedis(t)
	s := NewRedisStatsStore(rdb, WithStatsTrackKeys(true))
	ctx := context.Background()
	at := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, domain.StatsEvent{Policy: "quota", Key: "1.2.3.4", Allowed: true, Weight: 2, Method: "GET", Path: "/x", At: at}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Policy: "quota", Key: "1.2.3.4", Allowed: false, Method: "GET", Path: "/x", At: at}))

	assert.Equal(t, "1", mr.HGet("access:stats:total", "allowed"))
	assert.Equal(t, "1", mr.HGet("access:stats:total", "denied"))
	assert.Equal(t, "2", mr.HGet("access:stats:total", "weight"))
	assert.Equal(t, "1", mr.HGet("access:stats:policy", "quota:denied"))
	assert.Equal(t, "1", mr.HGet("access:stats:minute:202610180930", "allowed"))
	assert.Equal(t, "1", mr.HGet("access:stats:route", "GET /x:allowed"))
	assert.Equal(t, "1", mr.HGet("access:stats:key:1.2.3.4", "denied"))
}

func TestRedisStatsStore_SnapshotAcrossInstances(t *testing.T) {
	_, rdb := newRedis(t)
	a := NewRedisStatsStore(rdb, WithStatsPrefix("gw:stats:"), WithStatsPerMinute(false))
	b := NewRedisStatsStore(rdb, WithStatsPrefix("gw:stats"))
	ctx := context.Background()

	require.NoError(t, a.Record(ctx, domain.StatsEvent{Policy: "quota", Allowed: true, Weight: 3, Method: "GET", Path: "/v1:orders"}))
	require.NoError(t, b.Record(ctx, domain.StatsEvent{Policy: "quota", Allowed: false, Method: "GET", Path: "/v1:orders"}))
	require.NoError(t, b.Record(ctx, domain.StatsEvent{Policy: "spikearrest", Allowed: true, Weight: 1}))

	snap, err := a.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counters{Allowed: 2, Denied: 1, Weight: 4}, snap.Total)
	assert.Equal(t, Counters{Allowed: 1, Denied: 1, Weight: 3}, snap.ByPolicy["quota"])
	assert.Equal(t, Counters{Allowed: 1, Weight: 1}, snap.ByPolicy["spikearrest"])
	assert.Equal(t, Counters{Allowed: 1, Denied: 1, Weight: 3}, snap.ByRoute["GET /v1:orders"])
	assert.Len(t, snap.ByRoute, 1)
}

func TestRedisStatsStore_SnapshotEmpty(t *testing.T) {
	_, rdb := newRedis(t)
	snap, err := NewRedisStatsStore(rdb).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Counters{}, snap.Total)
	assert.Empty(t, snap.ByPolicy)
	assert.Empty(t, snap.ByRoute)
}
