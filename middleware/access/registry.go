package access

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"access-gateway/middleware/access/application"
	"access-gateway/middleware/access/domain"
	"access-gateway/middleware/access/infra"
)

// EnvAppID é a variável de ambiente com a identidade da aplicação.
const EnvAppID = "ACCESS_APP_ID"

// mapCacheSuffix separa o cache de um Map dos caches nomeados pelo usuário.
const mapCacheSuffix = "__kvmap"

// AppIDFromEnv lê ACCESS_APP_ID uma vez por processo.
var AppIDFromEnv = sync.OnceValue(func() string {
	return os.Getenv(EnvAppID)
})

// Backends agrupa os backends opcionais. Campo nil = componente sem backend.
type Backends struct {
	Maps        domain.DurableMapBackend
	Quota       domain.QuotaBackend
	SpikeArrest domain.SpikeArrestBackend
	Secrets     domain.SecretBackend
}

type Config struct {
	// AppID vazio usa AppIDFromEnv.
	AppID    string
	Backends Backends

	// BackendTimeout zero usa application.DefaultBackendTimeout.
	BackendTimeout time.Duration
	// MaxInFlight limita chamadas simultâneas aos backends (0 = sem limite).
	MaxInFlight       int
	QuotaSyncInterval time.Duration
	// CacheTTL é o TTL padrão dos caches criados pelo Registry (0 = sem expiração).
	CacheTTL time.Duration
}

// MapConfig endereça o mapa durável. Local força a tabela em memória
// mesmo havendo backend.
type MapConfig struct {
	Scope    string `yaml:"scope"`
	API      string `yaml:"api"`
	Revision string `yaml:"revision"`
	Local    bool   `yaml:"local"`
}

type Option func(*Registry)

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithCacheOptions repassa opções a todo cache criado pelo Registry.
func WithCacheOptions(opts ...infra.CacheOption) Option {
	return func(r *Registry) { r.cacheOpts = append(r.cacheOpts, opts...) }
}

// Registry é o localizador dos componentes de uma aplicação.
//
// Caches e Maps são memoizados por nome: o primeiro acesso cria e os
// seguintes (inclusive concorrentes) recebem a mesma instância. A config de
// um Map vale só na criação.
type Registry struct {
	cfg       Config
	caller    application.BackendCaller
	log       *slog.Logger
	cacheOpts []infra.CacheOption

	mu     sync.Mutex
	caches map[string]*infra.Cache
	maps   map[string]*application.Map
}

func NewRegistry(cfg Config, opts ...Option) *Registry {
	if cfg.AppID == "" {
		cfg.AppID = AppIDFromEnv()
	}
	r := &Registry{
		cfg:    cfg,
		log:    slog.Default(),
		caches: make(map[string]*infra.Cache),
		maps:   make(map[string]*application.Map),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.caller = application.BackendCaller{Timeout: cfg.BackendTimeout}
	if cfg.MaxInFlight > 0 {
		r.caller.Pool = infra.NewChanPool(cfg.MaxInFlight)
	}
	if cfg.CacheTTL > 0 {
		r.cacheOpts = append([]infra.CacheOption{infra.WithDefaultTTL(cfg.CacheTTL)}, r.cacheOpts...)
	}
	return r
}

func (r *Registry) AppID() string { return r.cfg.AppID }

func (r *Registry) Logger() *slog.Logger { return r.log }

// Cache devolve o cache local com esse nome, criando na primeira vez.
func (r *Registry) Cache(name string) *infra.Cache {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cacheLocked(name)
}

func (r *Registry) cacheLocked(name string) *infra.Cache {
	if c, ok := r.caches[name]; ok {
		return c
	}
	c := infra.NewCache(name, r.cacheOpts...)
	r.caches[name] = c
	return c
}

// Map devolve o mapa com esse nome. Sem backend de mapas (ou com cfg.Local)
// o Storage é a tabela em memória; a escolha é fixa a partir daqui.
func (r *Registry) Map(name string, cfg MapConfig) *application.Map {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.maps[name]; ok {
		return m
	}

	storage := application.LocalStorage()
	if r.cfg.Backends.Maps != nil && !cfg.Local {
		storage = application.RemoteStorage(r.cfg.Backends.Maps, r.mapRef(name, cfg), r.caller)
	}
	m := application.NewMap(name, r.cacheLocked(name+mapCacheSuffix), storage, r.log)
	r.maps[name] = m
	return m
}

// KeyValueMap é a visão somente leitura (sem cache) de um mapa durável.
func (r *Registry) KeyValueMap(name string, cfg MapConfig) (*application.KeyValueMap, error) {
	if name == "" {
		return nil, domain.InvalidArgument("map name must be specified")
	}
	if r.cfg.Backends.Maps == nil {
		return nil, domain.BackendUnavailable("keyvaluemap")
	}
	return application.NewKeyValueMap(r.cfg.Backends.Maps, r.mapRef(name, cfg), r.caller), nil
}

func (r *Registry) mapRef(name string, cfg MapConfig) domain.MapRef {
	return domain.MapRef{
		AppID:    r.cfg.AppID,
		Name:     name,
		Scope:    cfg.Scope,
		API:      cfg.API,
		Revision: cfg.Revision,
	}
}

func (r *Registry) Quota() application.Quota {
	return application.Quota{
		AppID:        r.cfg.AppID,
		Backend:      r.cfg.Backends.Quota,
		Caller:       r.caller,
		SyncInterval: r.cfg.QuotaSyncInterval,
	}
}

func (r *Registry) SpikeArrest() application.SpikeArrest {
	return application.SpikeArrest{
		AppID:   r.cfg.AppID,
		Backend: r.cfg.Backends.SpikeArrest,
		Caller:  r.caller,
	}
}

func (r *Registry) Vault() application.Vault {
	return application.Vault{
		AppID:   r.cfg.AppID,
		Backend: r.cfg.Backends.Secrets,
		Caller:  r.caller,
	}
}

// Cleanup varre todos os caches registrados e devolve quantas entradas saíram.
func (r *Registry) Cleanup() int {
	r.mu.Lock()
	caches := make([]*infra.Cache, 0, len(r.caches))
	for _, c := range r.caches {
		caches = append(caches, c)
	}
	r.mu.Unlock()

	n := 0
	for _, c := range caches {
		n += c.Cleanup()
	}
	return n
}

// StartJanitor limpa periodicamente todos os caches, inclusive os criados
// depois da chamada. Pare cancelando o contexto.
func (r *Registry) StartJanitor(ctx infra.DoneContext, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := r.Cleanup(); n > 0 {
					r.log.Debug("cache janitor", "expired", n)
				}
			}
		}
	}()
}
