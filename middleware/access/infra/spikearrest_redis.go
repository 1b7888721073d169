package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"access-gateway/middleware/access/domain"

	"github.com/redis/go-redis/v9"
)

// spikeArrestScript é um GCRA: guarda o "theoretical arrival time" (TAT) em
// microssegundos. A chamada passa quando o TAT já foi alcançado; o peso
// empurra o TAT peso*intervalo para frente.
//
// KEYS[1] TAT
// ARGV[1] agora (µs), ARGV[2] intervalo (µs), ARGV[3] peso
// Retorna {admitido (0/1), espera em µs}.
var spikeArrestScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local weight = tonumber(ARGV[3])
local tat = tonumber(redis.call('GET', KEYS[1]) or ARGV[1])
if tat < now then
  tat = now
end
if tat > now then
  return {0, tat - now}
end
local nextTat = tat + interval * weight
local ttl = math.ceil((nextTat - now) / 1000) + 1
redis.call('SET', KEYS[1], string.format('%d', nextTat), 'PX', string.format('%d', ttl))
return {1, 0}
`)

// RedisSpikeArrestStore compartilha o spike arrest entre instâncias.
// O relógio é o do processo (passado ao script), então as instâncias
// precisam estar com NTP em dia.
type RedisSpikeArrestStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

type RedisSpikeArrestOption func(*RedisSpikeArrestStore)

func WithSpikeArrestPrefix(prefix string) RedisSpikeArrestOption {
	return func(s *RedisSpikeArrestStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithRedisSpikeArrestClock(now func() time.Time) RedisSpikeArrestOption {
	return func(s *RedisSpikeArrestStore) { s.now = now }
}

func NewRedisSpikeArrestStore(rdb *redis.Client, opts ...RedisSpikeArrestOption) *RedisSpikeArrestStore {
	s := &RedisSpikeArrestStore{
		rdb:    rdb,
		prefix: "access:spike",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply implementa domain.SpikeArrestBackend.
func (s *RedisSpikeArrestStore) Apply(ctx context.Context, appID string, p domain.SpikeArrestPolicy) (domain.SpikeArrestResult, error) {
	key := fmt.Sprintf("%s:%s:%s", s.prefix, appID, p.Identifier)
	interval := p.Interval().Microseconds()
	if interval < 1 {
		interval = 1
	}

	res, err := spikeArrestScript.Run(ctx, s.rdb, []string{key},
		s.now().UnixMicro(), interval, p.Weight,
	).Int64Slice()
	if err != nil {
		return domain.SpikeArrestResult{}, err
	}
	if len(res) != 2 {
		return domain.SpikeArrestResult{}, fmt.Errorf("spike arrest script: unexpected reply %v", res)
	}
	if res[0] == 1 {
		return domain.SpikeArrestResult{Allowed: true}, nil
	}
	return domain.SpikeArrestResult{RetryAfter: time.Duration(res[1]) * time.Microsecond}, nil
}
