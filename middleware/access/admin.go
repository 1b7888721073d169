package access

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"access-gateway/middleware/access/domain"
	"access-gateway/middleware/access/infra"
)

// maxAdminBody limita o corpo aceito nas rotas de escrita.
const maxAdminBody = 1 << 20

// StatsReader é satisfeito por infra.MemoryStatsStore e infra.RedisStatsStore.
type StatsReader interface {
	Snapshot(ctx context.Context) (infra.StatsSnapshot, error)
}

type AdminOptions struct {
	// Stats, se setado, expõe GET /stats.
	Stats StatsReader
}

// AdminHandler expõe operações de manutenção sobre o Registry:
//
//	GET    /maps/{name}/keys
//	GET    /maps/{name}/entries/{key}
//	PUT    /maps/{name}/entries/{key}   (corpo = valor)
//	DELETE /maps/{name}/entries/{key}
//	POST   /quota/reset                 (corpo = QuotaPolicy em JSON)
//	GET    /stats
func AdminHandler(reg *Registry, opts AdminOptions) http.Handler {
	r := chi.NewRouter()

	r.Route("/maps/{name}", func(r chi.Router) {
		r.Get("/keys", func(w http.ResponseWriter, req *http.Request) {
			m := reg.Map(chi.URLParam(req, "name"), MapConfig{})
			keys, err := m.Keys(req.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			if keys == nil {
				keys = []string{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"map": m.Name(), "keys": keys})
		})

		r.Get("/entries/{key}", func(w http.ResponseWriter, req *http.Request) {
			m := reg.Map(chi.URLParam(req, "name"), MapConfig{})
			key := chi.URLParam(req, "key")
			v, ok, err := m.Get(req.Context(), key)
			if err != nil {
				writeError(w, err)
				return
			}
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "key not found", "key": key})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": v})
		})

		r.Put("/entries/{key}", func(w http.ResponseWriter, req *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxAdminBody))
			if err != nil {
				writeBodyError(w, err, "cannot read body")
				return
			}
			m := reg.Map(chi.URLParam(req, "name"), MapConfig{})
			if err := m.Put(req.Context(), chi.URLParam(req, "key"), string(body)); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Delete("/entries/{key}", func(w http.ResponseWriter, req *http.Request) {
			m := reg.Map(chi.URLParam(req, "name"), MapConfig{})
			if err := m.Remove(req.Context(), chi.URLParam(req, "key")); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	r.Post("/quota/reset", func(w http.ResponseWriter, req *http.Request) {
		var p domain.QuotaPolicy
		if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxAdminBody)).Decode(&p); err != nil {
			writeBodyError(w, err, "invalid quota policy")
			return
		}
		if err := reg.Quota().Reset(req.Context(), p); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if opts.Stats != nil {
		r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
			snap, err := opts.Stats.Snapshot(req.Context())
			if err != nil {
				writeError(w, domain.BackendError(err, "stats.snapshot"))
				return
			}
			writeJSON(w, http.StatusOK, snap)
		})
	}

	return r
}

// StatusFor traduz o código do erro em status HTTP.
func StatusFor(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodeReadOnlyVariable:
		return http.StatusConflict
	case domain.CodeBackendUnavailable:
		return http.StatusNotImplemented
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeBackend:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), map[string]string{
		"error": err.Error(),
		"code":  string(domain.CodeOf(err)),
	})
}

// writeBodyError responde 413 quando o corpo passou de maxAdminBody e 400 nos
// demais erros de leitura.
func writeBodyError(w http.ResponseWriter, err error, msg string) {
	invalid := domain.InvalidArgument("%s: %v", msg, err)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error": invalid.Error(),
			"code":  string(domain.CodeOf(invalid)),
		})
		return
	}
	writeError(w, invalid)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
