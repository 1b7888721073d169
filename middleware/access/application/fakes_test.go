package application

import (
	"context"
	"sync"

	"access-gateway/middleware/access/domain"
)

type fakeCache struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{objects: map[string][]byte{}} }

func (c *fakeCache) Get(key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.objects[key]
	return v, ok, nil
}

func (c *fakeCache) Put(key string, data any, _ domain.PutOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch d := data.(type) {
	case string:
		c.objects[key] = []byte(d)
	case []byte:
		c.objects[key] = d
	default:
		return domain.InvalidArgument("unsupported")
	}
	return nil
}

func (c *fakeCache) Remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, key)
	return nil
}

// fakeMapBackend conta chamadas e pode falhar sob demanda.
type fakeMapBackend struct {
	mu      sync.Mutex
	objects map[string]string
	refs    []domain.MapRef
	gets    int
	putErr  error
	rmErr   error
	// block, se não nil, segura o Get até ser fechado
	block chan struct{}
}

func newFakeMapBackend() *fakeMapBackend {
	return &fakeMapBackend{objects: map[string]string{}}
}

func (b *fakeMapBackend) Get(ctx context.Context, ref domain.MapRef, key string) (string, bool, error) {
	if b.block != nil {
		select {
		case <-b.block:
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gets++
	b.refs = append(b.refs, ref)
	v, ok := b.objects[key]
	return v, ok, nil
}

func (b *fakeMapBackend) Put(_ context.Context, ref domain.MapRef, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refs = append(b.refs, ref)
	if b.putErr != nil {
		return b.putErr
	}
	b.objects[key] = value
	return nil
}

func (b *fakeMapBackend) Remove(_ context.Context, _ domain.MapRef, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rmErr != nil {
		return b.rmErr
	}
	delete(b.objects, key)
	return nil
}

func (b *fakeMapBackend) GetKeys(context.Context, domain.MapRef) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.objects))
	for k := range b.objects {
		out = append(out, k)
	}
	return out, nil
}

func (b *fakeMapBackend) getCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gets
}

// fakeQuotaBackend é um contador simples sem janela, suficiente para os casos de uso.
type fakeQuotaBackend struct {
	mu       sync.Mutex
	used     map[string]int64
	policies []domain.QuotaPolicy
	appIDs   []string
}

func newFakeQuotaBackend() *fakeQuotaBackend {
	return &fakeQuotaBackend{used: map[string]int64{}}
}

func (b *fakeQuotaBackend) Apply(_ context.Context, appID string, p domain.QuotaPolicy) (domain.QuotaResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.policies = append(b.policies, p)
	b.appIDs = append(b.appIDs, appID)
	k := p.CounterKey()
	res := domain.QuotaResult{Limit: p.Allow}
	if b.used[k]+p.Weight <= p.Allow {
		b.used[k] += p.Weight
		res.Allowed = true
	}
	res.Used = b.used[k]
	res.Available = p.Allow - res.Used
	return res, nil
}

func (b *fakeQuotaBackend) Reset(_ context.Context, _ string, p domain.QuotaPolicy) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.policies = append(b.policies, p)
	delete(b.used, p.CounterKey())
	return nil
}

type fakeSpikeBackend struct {
	policies []domain.SpikeArrestPolicy
	allow    bool
}

func (b *fakeSpikeBackend) Apply(_ context.Context, _ string, p domain.SpikeArrestPolicy) (domain.SpikeArrestResult, error) {
	b.policies = append(b.policies, p)
	return domain.SpikeArrestResult{Allowed: b.allow}, nil
}

type fakeSecrets struct {
	byApp map[string]map[string]string
	env   map[string]string
	err   error
}

func (s fakeSecrets) Get(_ context.Context, appID, key string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.byApp[appID][key], nil
}

func (s fakeSecrets) GetByEnvironment(_ context.Context, _ string, key string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.env[key], nil
}
