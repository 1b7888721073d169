package infra

import (
	"context"
	"sync"
	"time"

	"access-gateway/middleware/access/domain"
)

// MemoryQuotaStore conta quota em janelas fixas dentro do processo.
// Útil para desenvolvimento e instâncias únicas; não há reconciliação.
type MemoryQuotaStore struct {
	mu           sync.Mutex
	windows      map[string]*quotaWindow
	cleanupEvery time.Duration
	now          func() time.Time
}

type quotaWindow struct {
	start time.Time
	end   time.Time
	used  int64
}

type MemoryQuotaOption func(*MemoryQuotaStore)

func WithQuotaClock(now func() time.Time) MemoryQuotaOption {
	return func(s *MemoryQuotaStore) { s.now = now }
}

func WithQuotaCleanupEvery(d time.Duration) MemoryQuotaOption {
	return func(s *MemoryQuotaStore) { s.cleanupEvery = d }
}

func NewMemoryQuotaStore(opts ...MemoryQuotaOption) *MemoryQuotaStore {
	s := &MemoryQuotaStore{
		windows:      make(map[string]*quotaWindow),
		cleanupEvery: 5 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply implementa domain.QuotaBackend. Chamadas negadas não consomem.
func (s *MemoryQuotaStore) Apply(_ context.Context, appID string, p domain.QuotaPolicy) (domain.QuotaResult, error) {
	now := s.now()
	start, end := domain.TimeUnit(p.TimeUnit).Window(now, p.Interval)
	key := appID + ":" + p.CounterKey()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !w.start.Equal(start) {
		w = &quotaWindow{start: start, end: end}
		s.windows[key] = w
	}

	allowed := w.used+p.Weight <= p.Allow
	if allowed {
		w.used += p.Weight
	}
	return quotaResult(allowed, w.used, p.Allow, end, now), nil
}

func (s *MemoryQuotaStore) Reset(_ context.Context, appID string, p domain.QuotaPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, appID+":"+p.CounterKey())
	return nil
}

// Cleanup descarta janelas já encerradas.
func (s *MemoryQuotaStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, w := range s.windows {
		if !now.Before(w.end) {
			delete(s.windows, k)
		}
	}
}

func (s *MemoryQuotaStore) StartJanitor(ctx DoneContext) {
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

func quotaResult(allowed bool, used, limit int64, end, now time.Time) domain.QuotaResult {
	available := limit - used
	if available < 0 {
		available = 0
	}
	return domain.QuotaResult{
		Allowed:   allowed,
		Used:      used,
		Limit:     limit,
		Available: available,
		ExpiresAt: end,
		Timestamp: now,
	}
}
