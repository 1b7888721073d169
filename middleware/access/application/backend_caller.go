package application

import (
	"context"
	"time"

	"access-gateway/middleware/access/domain"
)

// DefaultBackendTimeout limita cada chamada a backend quando nada é configurado.
const DefaultBackendTimeout = 5 * time.Second

// BackendCaller concentra a regra de chamada a backends: timeout por chamada
// e, opcionalmente, um pool de vagas para limitar chamadas simultâneas.
// Timeout zero usa DefaultBackendTimeout; negativo desliga o limite.
//
// A aquisição da vaga usa o mesmo deadline da chamada. Estourar o deadline
// vira erro domain.CodeTimeout; nunca é sucesso silencioso.
type BackendCaller struct {
	Pool    domain.SlotPool
	Timeout time.Duration
}

// Call executa fn com o contexto limitado e classifica o erro devolvido.
func (c BackendCaller) Call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultBackendTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if c.Pool != nil {
		release, ok := c.Pool.Acquire(ctx)
		if !ok {
			err := ctx.Err()
			if err == nil {
				err = context.DeadlineExceeded
			}
			return domain.BackendError(err, op)
		}
		defer release()
	}

	return domain.BackendError(fn(ctx), op)
}
