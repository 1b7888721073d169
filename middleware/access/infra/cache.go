package infra

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"access-gateway/middleware/access/domain"
)

// Cache é o store local (um processo) de chave -> bytes.
//
// Os valores são sempre guardados como bytes, qualquer que seja a forma de
// entrada. O TTL é verificado de forma preguiçosa no Get; Cleanup e
// StartJanitor fazem a varredura ativa para não acumular entradas expiradas.
type Cache struct {
	name string

	mu       sync.RWMutex
	entries  map[string]*cacheEntry
	encoding string

	defaultTTL   time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type cacheEntry struct {
	value      []byte
	insertedAt time.Time
	ttl        time.Duration
}

func (e *cacheEntry) expired(now time.Time) bool {
	return e.ttl > 0 && !now.Before(e.insertedAt.Add(e.ttl))
}

type CacheOption func(*Cache)

// WithDefaultTTL vale para Puts sem TTL explícito.
func WithDefaultTTL(d time.Duration) CacheOption {
	return func(c *Cache) { c.defaultTTL = d }
}

func WithCacheCleanupEvery(d time.Duration) CacheOption {
	return func(c *Cache) { c.cleanupEvery = d }
}

// WithCacheClock troca o relógio (útil em testes).
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func NewCache(name string, opts ...CacheOption) *Cache {
	c := &Cache{
		name:         name,
		entries:      make(map[string]*cacheEntry),
		cleanupEvery: time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) Name() string { return c.name }

// SetEncoding define como GetString decodifica os bytes (vazio volta a utf8).
func (c *Cache) SetEncoding(encoding string) error {
	if _, err := lookupCodec(encoding); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encoding = encoding
	return nil
}

func (c *Cache) Encoding() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.encoding
}

// Get devolve os bytes crus; ok=false quando ausente ou expirado.
func (c *Cache) Get(key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, domain.InvalidArgument("key must be specified")
	}
	now := c.now()

	c.mu.RLock()
	ent, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if ent.expired(now) {
		c.mu.Lock()
		// confere de novo: um Put pode ter substituído a entrada
		if cur, ok := c.entries[key]; ok && cur.expired(now) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return bytes.Clone(ent.value), true, nil
}

// GetString decodifica com o encoding configurado.
func (c *Cache) GetString(key string) (string, bool, error) {
	b, ok, err := c.Get(key)
	if err != nil || !ok {
		return "", ok, err
	}
	cd, err := lookupCodec(c.Encoding())
	if err != nil {
		return "", false, err
	}
	s, err := cd.decode(b)
	if err != nil {
		return "", false, domain.InvalidArgument("cannot decode %q as %s: %v", key, c.Encoding(), err)
	}
	return s, true, nil
}

// Put aceita []byte, string (convertida com opts.Encoding) ou um valor
// estruturado (struct, map, slice, array ou ponteiro), serializado em JSON.
// Sobrescreve a entrada inteira, TTL incluso.
func (c *Cache) Put(key string, data any, opts domain.PutOptions) error {
	if key == "" {
		return domain.InvalidArgument("key must be specified")
	}
	buf, err := toBytes(data, opts.Encoding)
	if err != nil {
		return err
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{value: buf, insertedAt: c.now(), ttl: ttl}
	return nil
}

// Remove não falha se a chave não existir.
func (c *Cache) Remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cleanup remove as entradas expiradas e devolve quantas saíram.
func (c *Cache) Cleanup() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, ent := range c.entries {
		if ent.expired(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// StartJanitor inicia uma goroutine que limpa entradas expiradas periodicamente.
// Pare cancelando o contexto.
func (c *Cache) StartJanitor(ctx DoneContext) {
	if c.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(c.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.Cleanup()
			}
		}
	}()
}

func toBytes(data any, encoding string) ([]byte, error) {
	switch d := data.(type) {
	case nil:
		return nil, domain.InvalidArgument("data must be specified")
	case []byte:
		return bytes.Clone(d), nil
	case string:
		cd, err := lookupCodec(encoding)
		if err != nil {
			return nil, err
		}
		b, err := cd.encode(d)
		if err != nil {
			return nil, domain.InvalidArgument("cannot encode data as %s: %v", encoding, err)
		}
		return b, nil
	}

	if !structured(reflect.TypeOf(data)) {
		return nil, domain.InvalidArgument("data must be a string, []byte, or structured value, got %T", data)
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, domain.InvalidArgument("cannot serialize data: %v", err)
	}
	return b, nil
}

func structured(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		return true
	}
	return false
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}
