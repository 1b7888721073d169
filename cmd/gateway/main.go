package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"access-gateway/middleware/access"
	"access-gateway/middleware/access/domain"
	"access-gateway/middleware/access/infra"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.logFormat, cfg.logLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(cfg config, logger *slog.Logger) error {
	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	policies, err := loadPolicies(cfg.policyFile)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	be, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	reg := access.NewRegistry(access.Config{
		AppID:             cfg.appID,
		Backends:          be.backends,
		BackendTimeout:    cfg.backendTimeout,
		MaxInFlight:       cfg.maxInFlight,
		QuotaSyncInterval: cfg.quotaSyncInterval,
		CacheTTL:          cfg.cacheTTL,
	}, access.WithLogger(logger))
	reg.StartJanitor(ctx, cfg.janitorEvery)
	for _, j := range be.janitors {
		j.StartJanitor(ctx)
	}
	for name, mc := range policies.Maps {
		reg.Map(name, mc)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", "path", r.URL.Path, "err", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	common := access.Options{
		Stats:               be.stats,
		KeyHeader:           cfg.keyHeader,
		TrustXForwardedFor:  cfg.trustXFF,
		AddRateLimitHeaders: cfg.addHeaders,
		FailOpen:            cfg.failOpen,
		Logger:              logger,
	}

	router := chi.NewRouter()
	router.Use(access.VariablesMiddleware(access.VariablesOptions{MessageID: true, MessageIDHeader: "X-Message-Id"}))

	rootOverridden := false
	for _, rp := range policies.Routes {
		h := guard(proxy, reg, common, rp.Quota, rp.SpikeArrest)
		p := normalizePath(rp.Path)
		if p == "/" {
			rootOverridden = true
			router.Handle("/*", h)
			continue
		}
		router.Handle(p, h)
		router.Handle(p+"/*", h)
		logger.Info("route policy", "path", p, "quota", rp.Quota != nil, "spike_arrest", rp.SpikeArrest != nil)
	}
	if !rootOverridden {
		router.Handle("/*", guard(proxy, reg, common, cfg.defaultQuota(), cfg.defaultSpikeArrest()))
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	servers := []*http.Server{srv}

	if cfg.adminAddr != "" {
		servers = append(servers, &http.Server{
			Addr:              cfg.adminAddr,
			Handler:           access.AdminHandler(reg, access.AdminOptions{Stats: be.statsReader}),
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	logger.Info("gateway listening",
		"addr", cfg.listenAddr,
		"upstream", target.String(),
		"app_id", reg.AppID(),
		"backend", cfg.backend,
		"maps", cfg.mapsBackend,
		"stats", cfg.statsBackend,
		"admin", cfg.adminAddr,
	)
	logger.Info("default policies",
		"spike_enabled", cfg.spikeEnabled, "spike_rate", cfg.spikeRate, "spike_unit", cfg.spikeUnit,
		"quota_enabled", cfg.quotaEnabled, "quota_allow", cfg.quotaAllow, "quota_unit", cfg.quotaUnit,
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		g.Go(func() error {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", s.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, s := range servers {
			_ = s.Shutdown(shutdownCtx)
		}
		return nil
	})
	return g.Wait()
}

// guard envolve h com spike arrest (primeiro) e quota. Política nil = desligada.
func guard(h http.Handler, reg *access.Registry, common access.Options, quota *domain.QuotaPolicy, spike *domain.SpikeArrestPolicy) http.Handler {
	if quota != nil {
		h = access.QuotaMiddleware(access.QuotaOptions{
			Options: common,
			Quota:   reg.Quota(),
			Policy:  *quota,
		})(h)
	}
	if spike != nil {
		h = access.SpikeArrestMiddleware(access.SpikeArrestOptions{
			Options:     common,
			SpikeArrest: reg.SpikeArrest(),
			Policy:      *spike,
		})(h)
	}
	return h
}

func (c config) defaultQuota() *domain.QuotaPolicy {
	if !c.quotaEnabled {
		return nil
	}
	return &domain.QuotaPolicy{
		Identifier: c.quotaIdentifier,
		TimeUnit:   c.quotaUnit,
		Allow:      c.quotaAllow,
		Interval:   c.quotaInterval,
	}
}

func (c config) defaultSpikeArrest() *domain.SpikeArrestPolicy {
	if !c.spikeEnabled {
		return nil
	}
	return &domain.SpikeArrestPolicy{Allow: c.spikeRate, TimeUnit: c.spikeUnit}
}

type janitor interface {
	StartJanitor(ctx infra.DoneContext)
}

type openedBackends struct {
	backends    access.Backends
	stats       domain.StatsStore
	statsReader access.StatsReader
	janitors    []janitor
	closers     []func()
}

func (b *openedBackends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg config, logger *slog.Logger) (*openedBackends, error) {
	be := &openedBackends{}

	var rdb *redis.Client
	if cfg.needsRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		be.closers = append(be.closers, func() { _ = rdb.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			be.close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	switch cfg.backend {
	case "redis":
		be.backends.Quota = infra.NewRedisQuotaStore(rdb, infra.WithQuotaPrefix(cfg.redisPrefix+":quota"))
		be.backends.SpikeArrest = infra.NewRedisSpikeArrestStore(rdb, infra.WithSpikeArrestPrefix(cfg.redisPrefix+":spike"))
		be.backends.Secrets = infra.NewRedisSecretStore(rdb,
			infra.WithSecretPrefix(cfg.redisPrefix+":vault"),
			infra.WithEnvironment(cfg.vaultEnv),
		)
	default:
		quota := infra.NewMemoryQuotaStore()
		spike := infra.NewMemorySpikeArrestStore()
		be.backends.Quota = quota
		be.backends.SpikeArrest = spike
		be.janitors = append(be.janitors, quota, spike)
	}

	switch cfg.mapsBackend {
	case "redis":
		be.backends.Maps = infra.NewRedisMapStore(rdb, infra.WithMapPrefix(cfg.redisPrefix+":kvm"))
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.postgresDSN)
		if err != nil {
			be.close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		be.closers = append(be.closers, pool.Close)

		store := infra.NewPostgresMapStore(pool)
		schemaCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = store.EnsureSchema(schemaCtx)
		cancel()
		if err != nil {
			be.close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		be.backends.Maps = store
	}

	switch cfg.statsBackend {
	case "redis":
		store := infra.NewRedisStatsStore(rdb,
			infra.WithStatsPrefix(cfg.redisPrefix+":stats"),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsTrackKeys(cfg.statsTrackKeys),
		)
		be.stats, be.statsReader = store, store
	case "memory":
		store := infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.statsTrackKeys))
		be.stats, be.statsReader = store, store
	}

	logger.Debug("backends ready",
		"quota", fmt.Sprintf("%T", be.backends.Quota),
		"spike_arrest", fmt.Sprintf("%T", be.backends.SpikeArrest),
		"maps", fmt.Sprintf("%T", be.backends.Maps),
	)
	return be, nil
}
