package infra

import (
	"context"
	"sync"

	"access-gateway/middleware/access/domain"
)

// Counters agrega decisões de política; Weight soma o peso das admitidas.
type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
	Weight  int64 `json:"weight,omitempty"`
}

// StatsSnapshot é a visão agregada servida pelo admin em GET /stats.
type StatsSnapshot struct {
	Total    Counters            `json:"total"`
	ByRoute  map[string]Counters `json:"byRoute"`
	ByPolicy map[string]Counters `json:"byPolicy"`
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento (e para o endpoint /stats do admin).
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byRoute  map[string]Counters
	byKey    map[string]Counters
	byPolicy map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute:  make(map[string]Counters),
		byKey:    make(map[string]Counters),
		byPolicy: make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	key := string(ev.Key)
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	bump(&s.total, ev)
	bumpIn(s.byRoute, route, ev)
	if ev.Policy != "" {
		bumpIn(s.byPolicy, ev.Policy, ev)
	}
	if s.trackKeys {
		bumpIn(s.byKey, key, ev)
	}
	return nil
}

func bump(c *Counters, ev domain.StatsEvent) {
	if !ev.Allowed {
		c.Denied++
		return
	}
	c.Allowed++
	if ev.Weight > 0 {
		c.Weight += ev.Weight
	}
}

func bumpIn(m map[string]Counters, k string, ev domain.StatsEvent) {
	c := m[k]
	bump(&c, ev)
	m[k] = c
}

func (s *MemoryStatsStore) Snapshot(context.Context) (StatsSnapshot, error) {
	return StatsSnapshot{Total: s.Total(), ByRoute: s.ByRoute(), ByPolicy: s.ByPolicy()}, nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByPolicy() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byPolicy))
	for k, v := range s.byPolicy {
		out[k] = v
	}
	return out
}
