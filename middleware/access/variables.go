package access

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"access-gateway/middleware/access/application"
)

// VarMessageID guarda o id gerado para a requisição.
const VarMessageID = "messageid"

type variablesKey struct{}

// GetContext devolve o contexto de variáveis da requisição, criando e
// anexando à própria requisição no primeiro acesso. Chamadas seguintes
// (com o mesmo *http.Request) devolvem a mesma instância.
//
// O primeiro acesso troca o contexto de r; anexe cedo (VariablesMiddleware)
// se a requisição for compartilhada entre goroutines.
func GetContext(r *http.Request) *application.Context {
	if vc, ok := r.Context().Value(variablesKey{}).(*application.Context); ok {
		return vc
	}
	vc := application.NewContext(time.Now())
	*r = *r.WithContext(context.WithValue(r.Context(), variablesKey{}, vc))
	return vc
}

// GetVariable devolve ok=false quando a variável não existe.
func GetVariable(r *http.Request, name string) (any, bool) {
	return GetContext(r).Get(name)
}

func SetVariable(r *http.Request, name string, value any) error {
	return GetContext(r).Set(name, value)
}

func DeleteVariable(r *http.Request, name string) error {
	return GetContext(r).Delete(name)
}

type VariablesOptions struct {
	// MessageID gera um uuid em "messageid" para cada requisição.
	MessageID bool
	// MessageIDHeader, se setado, reaproveita o id vindo nesse header
	// e devolve o id na resposta com o mesmo nome.
	MessageIDHeader string
}

// VariablesMiddleware anexa o contexto de variáveis assim que a requisição
// entra no gateway, antes de qualquer política.
func VariablesMiddleware(opts VariablesOptions) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			vc := GetContext(r)

			if opts.MessageID {
				id := ""
				if opts.MessageIDHeader != "" {
					id = r.Header.Get(opts.MessageIDHeader)
				}
				if id == "" {
					id = uuid.NewString()
				}
				_ = vc.Set(VarMessageID, id)
				if opts.MessageIDHeader != "" {
					w.Header().Set(opts.MessageIDHeader, id)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
