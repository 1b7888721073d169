package application

import (
	"context"
	"strings"

	"access-gateway/middleware/access/domain"
)

const DefaultSpikeArrestIdentifier = "default"

// SpikeArrest aplica admissão de janela curta (suavizada) via backend.
// Diferente da Quota, não tem Reset.
type SpikeArrest struct {
	AppID   string
	Backend domain.SpikeArrestBackend
	Caller  BackendCaller
}

func (s SpikeArrest) Apply(ctx context.Context, p domain.SpikeArrestPolicy) (domain.SpikeArrestResult, error) {
	if p.Allow <= 0 {
		return domain.SpikeArrestResult{}, domain.InvalidArgument("allowed value must be supplied and positive")
	}
	switch {
	case p.Weight < 0:
		return domain.SpikeArrestResult{}, domain.InvalidArgument("spike arrest weight must be >= 1, got %d", p.Weight)
	case p.Weight == 0:
		p.Weight = DefaultQuotaWeight
	}
	if strings.TrimSpace(p.Identifier) == "" {
		p.Identifier = DefaultSpikeArrestIdentifier
	}
	switch domain.TimeUnit(strings.ToLower(strings.TrimSpace(p.TimeUnit))) {
	case "", domain.UnitSecond:
		p.TimeUnit = string(domain.UnitSecond)
	case domain.UnitMinute:
		p.TimeUnit = string(domain.UnitMinute)
	default:
		return domain.SpikeArrestResult{}, domain.InvalidArgument("spike arrest time unit must be second or minute, got %q", p.TimeUnit)
	}

	if s.Backend == nil {
		return domain.SpikeArrestResult{}, domain.BackendUnavailable("spike arrest")
	}

	var res domain.SpikeArrestResult
	err := s.Caller.Call(ctx, "spikearrest.apply", func(ctx context.Context) error {
		var e error
		res, e = s.Backend.Apply(ctx, s.AppID, p)
		return e
	})
	return res, err
}
