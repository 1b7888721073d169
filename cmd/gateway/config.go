package main

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type config struct {
	listenAddr  string
	adminAddr   string
	upstreamURL string
	appID       string
	policyFile  string

	logFormat string
	logLevel  string

	backend     string // memory | redis
	mapsBackend string // local | redis | postgres

	redisAddr     string
	redisPassword string
	redisDB       int
	redisPrefix   string
	postgresDSN   string
	vaultEnv      string

	backendTimeout    time.Duration
	maxInFlight       int
	quotaSyncInterval time.Duration
	cacheTTL          time.Duration
	janitorEvery      time.Duration

	keyHeader  string
	trustXFF   bool
	addHeaders bool
	failOpen   bool

	spikeEnabled bool
	spikeRate    int64
	spikeUnit    string

	quotaEnabled    bool
	quotaIdentifier string
	quotaAllow      int64
	quotaUnit       string
	quotaInterval   int64

	statsBackend   string // none | memory | redis
	statsTTL       time.Duration
	statsTrackKeys bool
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.adminAddr = os.Getenv("ADMIN_ADDR")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")
	cfg.appID = getenvDefault("ACCESS_APP_ID", "gateway")
	cfg.policyFile = os.Getenv("ACCESS_POLICY_FILE")

	cfg.logFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "text"))
	cfg.logLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))

	cfg.backend = strings.ToLower(getenvDefault("ACCESS_BACKEND", "memory"))
	// mapas seguem o backend principal, a não ser que MAPS_BACKEND diga outra coisa
	defMaps := "local"
	if cfg.backend == "redis" {
		defMaps = "redis"
	}
	cfg.mapsBackend = strings.ToLower(getenvDefault("MAPS_BACKEND", defMaps))

	cfg.redisAddr = os.Getenv("REDIS_ADDR")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)
	cfg.redisPrefix = getenvDefault("REDIS_PREFIX", "access")
	cfg.postgresDSN = os.Getenv("POSTGRES_DSN")
	cfg.vaultEnv = getenvDefault("VAULT_ENVIRONMENT", "default")

	cfg.backendTimeout = getenvDurationDefault("BACKEND_TIMEOUT", 5*time.Second)
	cfg.maxInFlight = getenvIntDefault("BACKEND_MAX_INFLIGHT", 100)
	cfg.quotaSyncInterval = getenvDurationDefault("QUOTA_SYNC_INTERVAL", 10*time.Second)
	cfg.cacheTTL = getenvDurationDefault("CACHE_TTL", 0)
	cfg.janitorEvery = getenvDurationDefault("JANITOR_EVERY", time.Minute)

	cfg.keyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", false)
	cfg.failOpen = getenvBoolDefault("FAIL_OPEN", false)

	cfg.spikeEnabled = getenvBoolDefault("SPIKE_ARREST_ENABLED", true)
	cfg.spikeRate = int64(getenvIntDefault("SPIKE_ARREST_RATE", 10))
	cfg.spikeUnit = getenvDefault("SPIKE_ARREST_UNIT", "second")

	cfg.quotaEnabled = getenvBoolDefault("QUOTA_ENABLED", false)
	cfg.quotaIdentifier = getenvDefault("QUOTA_IDENTIFIER", "default")
	cfg.quotaAllow = int64(getenvIntDefault("QUOTA_ALLOW", 1000))
	cfg.quotaUnit = getenvDefault("QUOTA_UNIT", "hour")
	cfg.quotaInterval = int64(getenvIntDefault("QUOTA_INTERVAL", 1))

	cfg.statsBackend = strings.ToLower(getenvDefault("STATS_BACKEND", "none"))
	cfg.statsTTL = getenvDurationDefault("STATS_TTL", 24*time.Hour)
	cfg.statsTrackKeys = getenvBoolDefault("STATS_TRACK_KEYS", false)

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	switch cfg.backend {
	case "memory", "redis":
	default:
		return config{}, errors.New("ACCESS_BACKEND must be memory or redis")
	}
	switch cfg.mapsBackend {
	case "local", "redis", "postgres":
	default:
		return config{}, errors.New("MAPS_BACKEND must be local, redis or postgres")
	}
	switch cfg.statsBackend {
	case "none", "memory", "redis":
	default:
		return config{}, errors.New("STATS_BACKEND must be none, memory or redis")
	}
	if cfg.needsRedis() && strings.TrimSpace(cfg.redisAddr) == "" {
		return config{}, errors.New("REDIS_ADDR is required when a redis backend is selected")
	}
	if cfg.mapsBackend == "postgres" && strings.TrimSpace(cfg.postgresDSN) == "" {
		return config{}, errors.New("POSTGRES_DSN is required when MAPS_BACKEND=postgres")
	}
	if cfg.spikeEnabled && cfg.spikeRate <= 0 {
		return config{}, errors.New("SPIKE_ARREST_RATE must be > 0")
	}
	if cfg.quotaEnabled && cfg.quotaAllow <= 0 {
		return config{}, errors.New("QUOTA_ALLOW must be > 0")
	}
	if cfg.maxInFlight < 0 {
		return config{}, errors.New("BACKEND_MAX_INFLIGHT must be >= 0")
	}
	return cfg, nil
}

func (c config) needsRedis() bool {
	return c.backend == "redis" || c.mapsBackend == "redis" || c.statsBackend == "redis"
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
