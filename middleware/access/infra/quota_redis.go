package infra

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"access-gateway/middleware/access/domain"

	"github.com/redis/go-redis/v9"
)

// quotaSyncScript despeja o peso admitido localmente desde o último sync e
// tenta admitir o peso da chamada atual, tudo de forma atômica.
//
// KEYS[1] contador da janela, KEYS[2] época de reset da janela
// ARGV[1] pendente, ARGV[2] peso, ARGV[3] allow, ARGV[4] ttl em ms,
// ARGV[5] época vista pelo buffer no último sync
// Retorna {admitido (0/1), contador, época}. Pendente de uma época anterior
// é descartado: a janela foi resetada depois que ele foi admitido.
var quotaSyncScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local epoch = tonumber(redis.call('GET', KEYS[2]) or '0')
local pending = tonumber(ARGV[1])
local weight = tonumber(ARGV[2])
local allow = tonumber(ARGV[3])
if epoch ~= tonumber(ARGV[5]) then
  pending = 0
end
cur = cur + pending
local ok = 0
if cur + weight <= allow then
  cur = cur + weight
  ok = 1
end
redis.call('SET', KEYS[1], string.format('%d', cur), 'PX', ARGV[4])
return {ok, cur, epoch}
`)

// RedisQuotaStore compartilha os contadores de quota entre instâncias.
//
// Cada instância decide localmente e só reconcilia com o Redis a cada
// policy.SyncInterval (a primeira chamada de cada janela sempre sincroniza).
// Entre syncs a visão do contador pode ficar atrás das outras instâncias;
// SyncInterval <= 0 (domain.SyncAlways depois da normalização) sincroniza em
// toda chamada.
type RedisQuotaStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time

	mu      sync.Mutex
	buffers map[string]*quotaBuffer
}

type quotaBuffer struct {
	mu       sync.Mutex
	start    time.Time
	shared   int64
	pending  int64
	epoch    int64
	lastSync time.Time
}

// reset troca de janela campo a campo; mu continua travado por quem chamou.
func (b *quotaBuffer) reset(start time.Time) {
	b.start = start
	b.shared = 0
	b.pending = 0
	b.epoch = 0
	b.lastSync = time.Time{}
}

type RedisQuotaOption func(*RedisQuotaStore)

func WithQuotaPrefix(prefix string) RedisQuotaOption {
	return func(s *RedisQuotaStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithRedisQuotaClock(now func() time.Time) RedisQuotaOption {
	return func(s *RedisQuotaStore) { s.now = now }
}

func NewRedisQuotaStore(rdb *redis.Client, opts ...RedisQuotaOption) *RedisQuotaStore {
	s := &RedisQuotaStore{
		rdb:     rdb,
		prefix:  "access:quota",
		now:     time.Now,
		buffers: make(map[string]*quotaBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WindowKey é a chave Redis do contador da janela que começa em start.
func (s *RedisQuotaStore) WindowKey(appID string, p domain.QuotaPolicy, start time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%d", s.prefix, appID, p.CounterKey(), start.Unix())
}

// Apply implementa domain.QuotaBackend.
func (s *RedisQuotaStore) Apply(ctx context.Context, appID string, p domain.QuotaPolicy) (domain.QuotaResult, error) {
	now := s.now()
	start, end := domain.TimeUnit(p.TimeUnit).Window(now, p.Interval)
	buf := s.buffer(appID + ":" + p.CounterKey())

	buf.mu.Lock()
	defer buf.mu.Unlock()

	if !buf.start.Equal(start) {
		buf.reset(start)
	}

	if !buf.lastSync.IsZero() && now.Sub(buf.lastSync) < p.SyncInterval {
		used := buf.shared + buf.pending
		allowed := used+p.Weight <= p.Allow
		if allowed {
			buf.pending += p.Weight
			used += p.Weight
		}
		return quotaResult(allowed, used, p.Allow, end, now), nil
	}

	ttl := end.Sub(now).Milliseconds()
	if ttl < 1 {
		ttl = 1
	}
	key := s.WindowKey(appID, p, start)
	res, err := quotaSyncScript.Run(ctx, s.rdb,
		[]string{key, key + ":epoch"},
		buf.pending, p.Weight, p.Allow, ttl, buf.epoch,
	).Int64Slice()
	if err != nil {
		return domain.QuotaResult{}, err
	}
	if len(res) != 3 {
		return domain.QuotaResult{}, fmt.Errorf("quota script: unexpected reply %v", res)
	}

	buf.shared = res[1]
	buf.pending = 0
	buf.epoch = res[2]
	buf.lastSync = now
	return quotaResult(res[0] == 1, buf.shared, p.Allow, end, now), nil
}

// Reset apaga o contador da janela corrente e o buffer local, e avança a
// época da janela. As outras instâncias descartam o pendente da época antiga
// no próximo sync em vez de devolvê-lo ao contador; até lá cada uma ainda
// decide com a visão local que tinha antes do reset.
func (s *RedisQuotaStore) Reset(ctx context.Context, appID string, p domain.QuotaPolicy) error {
	now := s.now()
	start, end := domain.TimeUnit(p.TimeUnit).Window(now, p.Interval)

	s.mu.Lock()
	delete(s.buffers, appID+":"+p.CounterKey())
	s.mu.Unlock()

	ttl := end.Sub(now)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	key := s.WindowKey(appID, p, start)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.Incr(ctx, key+":epoch")
	pipe.PExpire(ctx, key+":epoch", ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisQuotaStore) buffer(key string) *quotaBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[key]
	if !ok {
		b = &quotaBuffer{}
		s.buffers[key] = b
	}
	return b
}
