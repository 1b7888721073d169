package access

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"access-gateway/middleware/access/application"
	"access-gateway/middleware/access/domain"
)

// Variáveis gravadas pelos middlewares no contexto da requisição.
const (
	VarQuotaAllowed       = "ratelimit.quota.allowed"
	VarQuotaUsed          = "quota.used"
	VarQuotaAvailable     = "quota.available"
	VarQuotaLimit         = "quota.limit"
	VarSpikeArrestAllowed = "ratelimit.spikearrest.allowed"
)

type KeyFunc func(r *http.Request) string

// Options é o que QuotaMiddleware e SpikeArrestMiddleware têm em comum.
type Options struct {
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	AddRateLimitHeaders bool
	// FailOpen deixa passar quando o backend falha; o padrão é 503.
	FailOpen bool
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.RejectStatus == 0 {
		o.RejectStatus = http.StatusTooManyRequests
	}
	if o.KeyFn == nil {
		o.KeyFn = DefaultKeyFunc(o.KeyHeader, o.TrustXForwardedFor)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if len(parts) > 0 {
					ip := strings.TrimSpace(parts[0])
					if ip != "" {
						return ip
					}
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// identifierFor junta o identificador da política com a chave do cliente.
func identifierFor(base, key string) string {
	if base == "" {
		return key
	}
	return base + ":" + key
}

type QuotaOptions struct {
	Options
	Quota application.Quota
	// Policy.Identifier vira prefixo; o contador é por cliente.
	Policy domain.QuotaPolicy
}

// QuotaMiddleware aplica a quota por cliente e responde 429 quando esgotada.
func QuotaMiddleware(opts QuotaOptions) func(next http.Handler) http.Handler {
	opts.defaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			p := opts.Policy
			p.Identifier = identifierFor(opts.Policy.Identifier, key)

			res, err := opts.Quota.Apply(r.Context(), p)
			if err != nil {
				opts.backendFailed(w, r, next, "quota", err)
				return
			}

			_ = SetVariable(r, VarQuotaAllowed, res.Allowed)
			_ = SetVariable(r, VarQuotaUsed, res.Used)
			_ = SetVariable(r, VarQuotaAvailable, res.Available)
			_ = SetVariable(r, VarQuotaLimit, res.Limit)

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				w.Header().Set("X-RateLimit-Limit", formatInt(res.Limit))
				w.Header().Set("X-RateLimit-Remaining", formatInt(res.Available))
				w.Header().Set("X-RateLimit-Reset", formatInt(res.ExpiresAt.Unix()))
			}

			opts.record(r, "quota", key, res.Allowed, p.Weight)
			if !res.Allowed {
				opts.reject(w, res.ExpiresAt.Sub(res.Timestamp))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type SpikeArrestOptions struct {
	Options
	SpikeArrest application.SpikeArrest
	Policy      domain.SpikeArrestPolicy
}

// SpikeArrestMiddleware barra rajadas por cliente e responde 429 com Retry-After.
func SpikeArrestMiddleware(opts SpikeArrestOptions) func(next http.Handler) http.Handler {
	opts.defaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			p := opts.Policy
			p.Identifier = identifierFor(opts.Policy.Identifier, key)

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				if interval := p.Interval(); interval > 0 {
					w.Header().Set("X-RateLimit-RPS", formatFloat(float64(time.Second)/float64(interval)))
				}
				burst := p.Weight
				if burst < 1 {
					burst = 1
				}
				w.Header().Set("X-RateLimit-Burst", formatInt(burst))
			}

			res, err := opts.SpikeArrest.Apply(r.Context(), p)
			if err != nil {
				opts.backendFailed(w, r, next, "spikearrest", err)
				return
			}
			_ = SetVariable(r, VarSpikeArrestAllowed, res.Allowed)

			opts.record(r, "spikearrest", key, res.Allowed, p.Weight)
			if !res.Allowed {
				opts.reject(w, res.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (o *Options) record(r *http.Request, policy, key string, allowed bool, weight int64) {
	if o.Stats == nil {
		return
	}
	if weight < 1 {
		weight = 1
	}
	err := o.Stats.Record(r.Context(), domain.StatsEvent{
		Policy:  policy,
		Key:     domain.Key(key),
		Allowed: allowed,
		Weight:  weight,
		Method:  r.Method,
		Path:    r.URL.Path,
		At:      time.Now(),
	})
	if err != nil {
		o.Logger.Warn("stats record failed", "policy", policy, "err", err)
	}
}

func (o *Options) reject(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", formatInt(retrySeconds(retryAfter)))
	http.Error(w, http.StatusText(o.RejectStatus), o.RejectStatus)
}

func (o *Options) backendFailed(w http.ResponseWriter, r *http.Request, next http.Handler, policy string, err error) {
	o.Logger.Error("policy evaluation failed",
		"policy", policy,
		"code", domain.CodeOf(err),
		"fail_open", o.FailOpen,
		"err", err,
	)
	if o.FailOpen {
		next.ServeHTTP(w, r)
		return
	}
	http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
}
