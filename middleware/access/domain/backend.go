package domain

import "context"

// DefaultScope é o escopo aplicado a mapas sem escopo explícito.
const DefaultScope = "exclusive"

// MapRef identifica um mapa durável dentro do backend.
//
// AppID vem da identidade da aplicação (configuração do processo);
// Scope, API e Revision vêm da configuração por mapa.
type MapRef struct {
	AppID    string
	Name     string
	Scope    string
	API      string
	Revision string
}

// DurableMapBackend é o armazenamento autoritativo (e mais lento) que o Map
// coloca atrás do cache local.
//
// Get devolve ok=false para chave ausente; ausência não é erro.
type DurableMapBackend interface {
	Get(ctx context.Context, ref MapRef, key string) (value string, ok bool, err error)
	Put(ctx context.Context, ref MapRef, key, value string) error
	Remove(ctx context.Context, ref MapRef, key string) error
	GetKeys(ctx context.Context, ref MapRef) ([]string, error)
}

// QuotaBackend é dono do estado dos contadores de quota.
//
// O backend decide a contabilidade da janela e a reconciliação do contador
// local com o compartilhado, respeitando policy.SyncInterval.
// A policy chega validada e com defaults aplicados.
type QuotaBackend interface {
	Apply(ctx context.Context, appID string, policy QuotaPolicy) (QuotaResult, error)
	Reset(ctx context.Context, appID string, policy QuotaPolicy) error
}

// SpikeArrestBackend é dono do estado das janelas de spike arrest.
type SpikeArrestBackend interface {
	Apply(ctx context.Context, appID string, policy SpikeArrestPolicy) (SpikeArrestResult, error)
}

// SecretBackend é o cofre de segredos por aplicação.
type SecretBackend interface {
	Get(ctx context.Context, appID, key string) (string, error)
	GetByEnvironment(ctx context.Context, appID, key string) (string, error)
}
