package application

import (
	"context"
	"strings"
	"time"

	"access-gateway/middleware/access/domain"
)

const (
	DefaultQuotaInterval = 1
	DefaultQuotaWeight   = 1
	DefaultSyncInterval  = 10 * time.Second
)

// Quota aplica políticas de quota contra o contador do backend.
//
// Sem backend o componente não funciona: Apply e Reset devolvem
// domain.CodeBackendUnavailable. Quota é política de implantação
// distribuída, não um rate limiter genérico.
type Quota struct {
	AppID   string
	Backend domain.QuotaBackend
	Caller  BackendCaller
	// SyncInterval é o default da sincronização com o contador compartilhado;
	// domain.SyncAlways reconcilia em toda chamada.
	SyncInterval time.Duration
}

func (q Quota) Apply(ctx context.Context, p domain.QuotaPolicy) (domain.QuotaResult, error) {
	p, err := q.normalize(p, true)
	if err != nil {
		return domain.QuotaResult{}, err
	}
	if q.Backend == nil {
		return domain.QuotaResult{}, domain.BackendUnavailable("quota")
	}

	var res domain.QuotaResult
	err = q.Caller.Call(ctx, "quota.apply", func(ctx context.Context) error {
		var e error
		res, e = q.Backend.Apply(ctx, q.AppID, p)
		return e
	})
	return res, err
}

// Reset zera o contador de identifier+timeUnit+interval.
func (q Quota) Reset(ctx context.Context, p domain.QuotaPolicy) error {
	p, err := q.normalize(p, false)
	if err != nil {
		return err
	}
	if q.Backend == nil {
		return domain.BackendUnavailable("quota")
	}
	return q.Caller.Call(ctx, "quota.reset", func(ctx context.Context) error {
		return q.Backend.Reset(ctx, q.AppID, p)
	})
}

// normalize valida os campos obrigatórios e aplica os defaults.
// withAllow=false é a validação do Reset (sem allow/weight).
func (q Quota) normalize(p domain.QuotaPolicy, withAllow bool) (domain.QuotaPolicy, error) {
	if strings.TrimSpace(p.Identifier) == "" {
		return p, domain.InvalidArgument("quota identifier must be supplied")
	}
	if strings.TrimSpace(p.TimeUnit) == "" {
		return p, domain.InvalidArgument("quota time unit must be supplied")
	}
	unit, err := domain.ParseTimeUnit(p.TimeUnit)
	if err != nil {
		return p, err
	}
	p.TimeUnit = string(unit)

	switch {
	case p.Interval < 0:
		return p, domain.InvalidArgument("quota interval must be >= 1, got %d", p.Interval)
	case p.Interval == 0:
		p.Interval = DefaultQuotaInterval
	}

	if p.SyncInterval < 0 && p.SyncInterval != domain.SyncAlways {
		return p, domain.InvalidArgument("quota sync interval must not be negative")
	}
	if p.SyncInterval == 0 {
		p.SyncInterval = q.SyncInterval
		if p.SyncInterval == 0 || (p.SyncInterval < 0 && p.SyncInterval != domain.SyncAlways) {
			p.SyncInterval = DefaultSyncInterval
		}
	}

	if !withAllow {
		return p, nil
	}
	if p.Allow <= 0 {
		return p, domain.InvalidArgument("allowed value must be supplied and positive")
	}
	switch {
	case p.Weight < 0:
		return p, domain.InvalidArgument("quota weight must be >= 1, got %d", p.Weight)
	case p.Weight == 0:
		p.Weight = DefaultQuotaWeight
	}
	return p, nil
}
