package infra

import (
	"context"
	"errors"
	"sort"
	"strings"

	"access-gateway/middleware/access/domain"

	"github.com/redis/go-redis/v9"
)

// RedisMapStore guarda cada mapa durável num hash Redis.
type RedisMapStore struct {
	rdb    *redis.Client
	prefix string
}

type RedisMapOption func(*RedisMapStore)

func WithMapPrefix(prefix string) RedisMapOption {
	return func(s *RedisMapStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisMapStore(rdb *redis.Client, opts ...RedisMapOption) *RedisMapStore {
	s := &RedisMapStore{rdb: rdb, prefix: "access:kvm"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HashKey é a chave do hash: prefixo:app:escopo:api:revisão:nome.
func (s *RedisMapStore) HashKey(ref domain.MapRef) string {
	return strings.Join([]string{s.prefix, ref.AppID, ref.Scope, ref.API, ref.Revision, ref.Name}, ":")
}

func (s *RedisMapStore) Get(ctx context.Context, ref domain.MapRef, key string) (string, bool, error) {
	v, err := s.rdb.HGet(ctx, s.HashKey(ref), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisMapStore) Put(ctx context.Context, ref domain.MapRef, key, value string) error {
	return s.rdb.HSet(ctx, s.HashKey(ref), key, value).Err()
}

func (s *RedisMapStore) Remove(ctx context.Context, ref domain.MapRef, key string) error {
	return s.rdb.HDel(ctx, s.HashKey(ref), key).Err()
}

func (s *RedisMapStore) GetKeys(ctx context.Context, ref domain.MapRef) ([]string, error) {
	keys, err := s.rdb.HKeys(ctx, s.HashKey(ref)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// RedisSecretStore lê segredos de hashes Redis:
// prefixo:app (geral) e prefixo:app:env:ambiente (por ambiente).
type RedisSecretStore struct {
	rdb         *redis.Client
	prefix      string
	environment string
}

type RedisSecretOption func(*RedisSecretStore)

func WithSecretPrefix(prefix string) RedisSecretOption {
	return func(s *RedisSecretStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithEnvironment(env string) RedisSecretOption {
	return func(s *RedisSecretStore) { s.environment = env }
}

func NewRedisSecretStore(rdb *redis.Client, opts ...RedisSecretOption) *RedisSecretStore {
	s := &RedisSecretStore{rdb: rdb, prefix: "access:vault", environment: "default"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get devolve "" para segredo ausente.
func (s *RedisSecretStore) Get(ctx context.Context, appID, key string) (string, error) {
	return s.hget(ctx, s.prefix+":"+appID, key)
}

func (s *RedisSecretStore) GetByEnvironment(ctx context.Context, appID, key string) (string, error) {
	return s.hget(ctx, s.prefix+":"+appID+":env:"+s.environment, key)
}

func (s *RedisSecretStore) hget(ctx context.Context, hash, key string) (string, error) {
	v, err := s.rdb.HGet(ctx, hash, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}
