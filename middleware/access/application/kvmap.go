package application

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"access-gateway/middleware/access/domain"
)

// Map é um mapa chave-valor com cache local na frente do Storage.
//
// Leitura é cache-aside: cache primeiro, Storage no miss, sem preencher o
// cache no miss (só escritas populam o cache). Escrita é write-through:
// Storage primeiro, cache depois, então o cache nunca fica à frente do
// Storage. Remoção tira do cache imediatamente e só depois do Storage.
//
// Se o Storage falhar no Put, o cache já foi escrito e o erro é devolvido;
// não há rollback. Trate o cache como best-effort.
type Map struct {
	name    string
	cache   domain.Cache
	storage Storage
	log     *slog.Logger

	// leituras frias concorrentes da mesma chave viram uma chamada só
	flight singleflight.Group
}

func NewMap(name string, cache domain.Cache, storage Storage, logger *slog.Logger) *Map {
	if logger == nil {
		logger = slog.Default()
	}
	if storage == nil {
		storage = LocalStorage()
	}
	return &Map{
		name:    name,
		cache:   cache,
		storage: storage,
		log:     logger.With("map", name, "storage", storage.kind()),
	}
}

func (m *Map) Name() string { return m.name }

type lookup struct {
	value string
	ok    bool
}

// Get devolve ok=false quando a chave não existe em lugar nenhum.
func (m *Map) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, domain.InvalidArgument("key must be specified")
	}

	if b, ok, err := m.cache.Get(key); err == nil && ok {
		return string(b), true, nil
	}

	// a leitura compartilhada não herda o cancelamento de quem chegou primeiro;
	// o limite de tempo vem do BackendCaller do Storage
	shared := context.WithoutCancel(ctx)
	ch := m.flight.DoChan(key, func() (any, error) {
		v, ok, err := m.storage.get(shared, key)
		return lookup{value: v, ok: ok}, err
	})

	select {
	case <-ctx.Done():
		return "", false, domain.BackendError(ctx.Err(), "map.get")
	case res := <-ch:
		if res.Err != nil {
			m.log.Debug("map get failed", "key", key, "error", res.Err)
			return "", false, res.Err
		}
		l := res.Val.(lookup)
		return l.value, l.ok, nil
	}
}

func (m *Map) Put(ctx context.Context, key, value string) error {
	if key == "" {
		return domain.InvalidArgument("key must be specified")
	}

	err := m.storage.put(ctx, key, value)
	// leituras frias iniciadas antes da escrita não servem para quem chega depois
	m.flight.Forget(key)
	if cerr := m.cache.Put(key, value, domain.PutOptions{}); cerr != nil {
		m.log.Warn("map cache put failed", "key", key, "error", cerr)
	}
	if err != nil {
		m.log.Debug("map put failed", "key", key, "error", err)
	}
	return err
}

func (m *Map) Remove(ctx context.Context, key string) error {
	if key == "" {
		return domain.InvalidArgument("key must be specified")
	}

	if err := m.cache.Remove(key); err != nil {
		m.log.Warn("map cache remove failed", "key", key, "error", err)
	}
	// esquece antes e depois: uma leitura fria que começou no meio da remoção
	// ainda pode ter visto o valor antigo
	m.flight.Forget(key)
	err := m.storage.remove(ctx, key)
	m.flight.Forget(key)
	return err
}

// Keys lista as chaves do Storage (o cache não participa).
func (m *Map) Keys(ctx context.Context) ([]string, error) {
	return m.storage.keys(ctx)
}

// KeyValueMap é a visão somente leitura de um mapa durável, endereçado por
// escopo, API e revisão. Não passa pelo cache.
type KeyValueMap struct {
	storage *remoteTable
}

func NewKeyValueMap(backend domain.DurableMapBackend, ref domain.MapRef, caller BackendCaller) *KeyValueMap {
	return &KeyValueMap{storage: RemoteStorage(backend, ref, caller).(*remoteTable)}
}

func (k *KeyValueMap) Ref() domain.MapRef { return k.storage.ref }

func (k *KeyValueMap) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, domain.InvalidArgument("key must be specified")
	}
	return k.storage.get(ctx, key)
}

func (k *KeyValueMap) Keys(ctx context.Context) ([]string, error) {
	return k.storage.keys(ctx)
}
