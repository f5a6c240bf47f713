package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/FareBox/config"
	"github.com/BearBump/FareBox/internal/services/watcher"
	"github.com/go-chi/chi/v5"
)

type opsHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	watcher *watcher.Service
	cfg     *config.Config
}

func runOpsHTTPServer(ctx context.Context, opts opsHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.watcher == nil {
			_, _ = w.Write([]byte(`{"error":"watcher not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(opts.watcher.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// Секреты наружу не отдаём, только операционные настройки.
		out := map[string]any{
			"pollIntervalSeconds":  opts.cfg.FareBox.PollIntervalSeconds,
			"offerCacheTTLSeconds": opts.cfg.FareBox.OfferCacheTTLSeconds,
			"currency":             opts.cfg.FareBox.Currency,
			"commandsPerMinute":    opts.cfg.Telegram.CommandsPerMinute,
			"maxActiveTrackers":    watcher.MaxActiveTrackers,
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}
