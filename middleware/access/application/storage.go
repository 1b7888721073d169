package application

import (
	"context"
	"sort"
	"sync"

	"access-gateway/middleware/access/domain"
)

// Storage é o armazenamento atrás do cache de um Map.
//
// É escolhido na construção e tem exatamente duas variantes: LocalStorage
// (tabela em memória, sem backend) e RemoteStorage (backend durável).
// As duas nunca convivem no mesmo Map.
type Storage interface {
	get(ctx context.Context, key string) (string, bool, error)
	put(ctx context.Context, key, value string) error
	remove(ctx context.Context, key string) error
	keys(ctx context.Context) ([]string, error)
	kind() string
}

// LocalStorage cria a tabela de fallback usada quando não há backend.
func LocalStorage() Storage {
	return &localTable{objects: make(map[string]string)}
}

// RemoteStorage liga o Map a um backend durável identificado por ref.
func RemoteStorage(backend domain.DurableMapBackend, ref domain.MapRef, caller BackendCaller) Storage {
	if ref.Scope == "" {
		ref.Scope = domain.DefaultScope
	}
	return &remoteTable{backend: backend, ref: ref, caller: caller}
}

type localTable struct {
	mu      sync.RWMutex
	objects map[string]string
}

func (t *localTable) kind() string { return "local" }

func (t *localTable) get(_ context.Context, key string) (string, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.objects[key]
	return v, ok, nil
}

func (t *localTable) put(_ context.Context, key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.objects[key] = value
	return nil
}

func (t *localTable) remove(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.objects, key)
	return nil
}

func (t *localTable) keys(context.Context) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.objects))
	for k := range t.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

type remoteTable struct {
	backend domain.DurableMapBackend
	ref     domain.MapRef
	caller  BackendCaller
}

func (t *remoteTable) kind() string { return "remote" }

func (t *remoteTable) get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = t.caller.Call(ctx, "map.get", func(ctx context.Context) error {
		var e error
		value, ok, e = t.backend.Get(ctx, t.ref, key)
		return e
	})
	return value, ok, err
}

func (t *remoteTable) put(ctx context.Context, key, value string) error {
	return t.caller.Call(ctx, "map.put", func(ctx context.Context) error {
		return t.backend.Put(ctx, t.ref, key, value)
	})
}

func (t *remoteTable) remove(ctx context.Context, key string) error {
	return t.caller.Call(ctx, "map.remove", func(ctx context.Context) error {
		return t.backend.Remove(ctx, t.ref, key)
	})
}

func (t *remoteTable) keys(ctx context.Context) (keys []string, err error) {
	err = t.caller.Call(ctx, "map.keys", func(ctx context.Context) error {
		var e error
		keys, e = t.backend.GetKeys(ctx, t.ref)
		return e
	})
	return keys, err
}
