package infra

import (
	"context"
	"sync"
	"time"

	"access-gateway/middleware/access/domain"

	"golang.org/x/time/rate"
)

// MemorySpikeArrestStore é o backend local de spike arrest: um token bucket
// (x/time/rate) por appID+identifier, com limpeza periódica das chaves inativas.
//
// A taxa é Allow por TimeUnit e o burst é o peso da chamada, então a admissão
// fica suavizada (uma unidade a cada TimeUnit/Allow).
type MemorySpikeArrestStore struct {
	mu           sync.Mutex
	entries      map[string]*spikeEntry
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type spikeEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type SpikeArrestOption func(*MemorySpikeArrestStore)

func WithIdleTTL(d time.Duration) SpikeArrestOption {
	return func(s *MemorySpikeArrestStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) SpikeArrestOption {
	return func(s *MemorySpikeArrestStore) { s.cleanupEvery = d }
}

func WithSpikeArrestClock(now func() time.Time) SpikeArrestOption {
	return func(s *MemorySpikeArrestStore) { s.now = now }
}

func NewMemorySpikeArrestStore(opts ...SpikeArrestOption) *MemorySpikeArrestStore {
	s := &MemorySpikeArrestStore{
		entries:      make(map[string]*spikeEntry),
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemorySpikeArrestStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// Apply implementa domain.SpikeArrestBackend.
func (s *MemorySpikeArrestStore) Apply(_ context.Context, appID string, p domain.SpikeArrestPolicy) (domain.SpikeArrestResult, error) {
	now := s.now()
	lim := s.limiter(appID+":"+p.Identifier, p, now)

	r := lim.ReserveN(now, int(p.Weight))
	if !r.OK() {
		return domain.SpikeArrestResult{RetryAfter: p.Interval() * time.Duration(p.Weight)}, nil
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return domain.SpikeArrestResult{RetryAfter: d}, nil
	}
	return domain.SpikeArrestResult{Allowed: true}, nil
}

func (s *MemorySpikeArrestStore) limiter(key string, p domain.SpikeArrestPolicy, now time.Time) *rate.Limiter {
	limit := rate.Every(p.Interval())
	burst := int(p.Weight)

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		// a política pode mudar entre chamadas (recarga de config, peso diferente)
		if ent.lim.Limit() != limit {
			ent.lim.SetLimitAt(now, limit)
		}
		if ent.lim.Burst() < burst {
			ent.lim.SetBurstAt(now, burst)
		}
		return ent.lim
	}

	lim := rate.NewLimiter(limit, burst)
	s.entries[key] = &spikeEntry{lim: lim, lastSeen: now}
	return lim
}

func (s *MemorySpikeArrestStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemorySpikeArrestStore) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *MemorySpikeArrestStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
