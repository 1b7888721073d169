package infra

import (
	"context"
	"strconv"
	"strings"
	"time"

	"access-gateway/middleware/access/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore agrega as decisões de quota e spike arrest em hashes do
// Redis, compartilhados por todas as instâncias do gateway:
//
//	<prefix>:total                 allowed | denied | weight
//	<prefix>:policy                <policy>:allowed | <policy>:denied | <policy>:weight
//	<prefix>:route                 "<METHOD> <path>":allowed | ...
//	<prefix>:minute:<yyyymmddhhmm> allowed | denied   (expira em ttl)
//	<prefix>:key:<client key>      allowed | denied   (só com trackKeys; expira em ttl)
//
// total, policy e route são cumulativos. Snapshot lê os três.
type RedisStatsStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration

	perMinute bool
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithStatsTTL define a expiração das séries por minuto e por chave de cliente.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsPerMinute liga ou desliga a série por minuto (ligada por padrão).
func WithStatsPerMinute(on bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.perMinute = on }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:       rdb,
		prefix:    "access:stats",
		ttl:       24 * time.Hour,
		perMinute: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implementa domain.StatsStore com um único pipeline por decisão.
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	outcome := outcomeField(ev.Allowed)
	weight := int64(0)
	if ev.Allowed && ev.Weight > 0 {
		weight = ev.Weight
	}

	pipe := s.rdb.Pipeline()
	incr := func(key, scope string) {
		pipe.HIncrBy(ctx, key, scope+outcome, 1)
		if weight > 0 {
			pipe.HIncrBy(ctx, key, scope+"weight", weight)
		}
	}

	incr(s.prefix+":total", "")
	if ev.Policy != "" {
		incr(s.prefix+":policy", ev.Policy+":")
	}
	if route := routeOf(ev); route != "" {
		incr(s.prefix+":route", route+":")
	}
	if s.perMinute {
		s.expiring(ctx, pipe, s.prefix+":minute:"+at.UTC().Format("200601021504"), outcome)
	}
	if k := strings.TrimSpace(string(ev.Key)); s.trackKeys && k != "" {
		s.expiring(ctx, pipe, s.prefix+":key:"+k, outcome)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatsStore) expiring(ctx context.Context, pipe redis.Pipeliner, key, outcome string) {
	pipe.HIncrBy(ctx, key, outcome, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

// Snapshot lê os agregados cumulativos de todas as instâncias.
func (s *RedisStatsStore) Snapshot(ctx context.Context) (StatsSnapshot, error) {
	pipe := s.rdb.Pipeline()
	total := pipe.HGetAll(ctx, s.prefix+":total")
	byPolicy := pipe.HGetAll(ctx, s.prefix+":policy")
	byRoute := pipe.HGetAll(ctx, s.prefix+":route")
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return StatsSnapshot{}, err
	}

	snap := StatsSnapshot{
		ByRoute:  scopedCounters(byRoute.Val()),
		ByPolicy: scopedCounters(byPolicy.Val()),
	}
	for field, raw := range total.Val() {
		addCounter(&snap.Total, field, raw)
	}
	return snap, nil
}

func outcomeField(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

func routeOf(ev domain.StatsEvent) string {
	return strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path))
}

// scopedCounters desfaz "<escopo>:<campo>"; o escopo pode conter ':' (paths).
func scopedCounters(fields map[string]string) map[string]Counters {
	out := make(map[string]Counters)
	for field, raw := range fields {
		i := strings.LastIndexByte(field, ':')
		if i < 0 {
			continue
		}
		c := out[field[:i]]
		addCounter(&c, field[i+1:], raw)
		out[field[:i]] = c
	}
	return out
}

func addCounter(c *Counters, field, raw string) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return
	}
	switch field {
	case "allowed":
		c.Allowed += n
	case "denied":
		c.Denied += n
	case "weight":
		c.Weight += n
	}
}
