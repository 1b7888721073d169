package application

import (
	"context"

	"access-gateway/middleware/access/domain"
)

// NotImplementedLocally é o que o Vault devolve quando não há backend.
// É um substituto não funcional para execução local, não um segredo.
const NotImplementedLocally = "Not implemented locally"

// Vault busca segredos da aplicação AppID no SecretBackend.
type Vault struct {
	AppID   string
	Backend domain.SecretBackend
	Caller  BackendCaller
}

func (v Vault) Get(ctx context.Context, key string) (string, error) {
	return v.lookup(ctx, "vault.get", key, func(ctx context.Context) (string, error) {
		return v.Backend.Get(ctx, v.AppID, key)
	})
}

func (v Vault) GetByEnvironment(ctx context.Context, key string) (string, error) {
	return v.lookup(ctx, "vault.get_by_environment", key, func(ctx context.Context) (string, error) {
		return v.Backend.GetByEnvironment(ctx, v.AppID, key)
	})
}

func (v Vault) lookup(ctx context.Context, op, key string, fn func(context.Context) (string, error)) (string, error) {
	if v.Backend == nil {
		return NotImplementedLocally, nil
	}
	if key == "" {
		return "", domain.InvalidArgument("key must be specified")
	}

	var secret string
	err := v.Caller.Call(ctx, op, func(ctx context.Context) error {
		var e error
		secret, e = fn(ctx)
		return e
	})
	return secret, err
}
