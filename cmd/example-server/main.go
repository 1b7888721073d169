package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"access-gateway/middleware/access"
	"access-gateway/middleware/access/domain"
	"access-gateway/middleware/access/infra"
)

func main() {
	// Exemplo: injetando as políticas direto no seu webserver (sem proxy),
	// com backends em memória e um mapa local.
	quota := infra.NewMemoryQuotaStore()
	spike := infra.NewMemorySpikeArrestStore()

	reg := access.NewRegistry(access.Config{
		AppID: "example",
		Backends: access.Backends{
			Quota:       quota,
			SpikeArrest: spike,
		},
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	quota.StartJanitor(ctx)
	spike.StartJanitor(ctx)
	reg.StartJanitor(ctx, time.Minute)

	greetings := reg.Map("greetings", access.MapConfig{})
	_ = greetings.Put(ctx, "default", "ok")

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		msg, _, err := greetings.Get(r.Context(), "default")
		if err != nil {
			http.Error(w, err.Error(), access.StatusFor(err))
			return
		}
		id, _ := access.GetVariable(r, access.VarMessageID)
		w.Header().Set("X-Message-Id", id.(string))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(msg + "\n"))
	})
	mux.Handle("/admin/", http.StripPrefix("/admin", access.AdminHandler(reg, access.AdminOptions{})))

	h := http.Handler(mux)
	h = access.QuotaMiddleware(access.QuotaOptions{
		Options: access.Options{KeyHeader: "X-Api-Key", AddRateLimitHeaders: true},
		Quota:   reg.Quota(),
		Policy:  domain.QuotaPolicy{Identifier: "example", TimeUnit: "minute", Allow: 100},
	})(h)
	h = access.SpikeArrestMiddleware(access.SpikeArrestOptions{
		Options:     access.Options{KeyHeader: "X-Api-Key", TrustXForwardedFor: true},
		SpikeArrest: reg.SpikeArrest(),
		Policy:      domain.SpikeArrestPolicy{Allow: 5, TimeUnit: "second"},
	})(h)
	h = access.VariablesMiddleware(access.VariablesOptions{MessageID: true})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("example server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
