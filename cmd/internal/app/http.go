package app

import (
	"net/http"
	"time"

	"huddle/cmd/internal/metrics"
	"huddle/cmd/internal/realtime"

	"github.com/jackc/pgx/v5/pgxpool"
)

type routes struct {
	log     Logger
	cfg     Config
	dbPool  *pgxpool.Pool
	ws      *realtime.WSGateway
	metrics *metrics.Metrics
	photos  http.Handler
}

func registerHTTP(mux *http.ServeMux, rt routes) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if rt.cfg.ReadinessRequireDB && rt.dbPool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if rt.dbPool != nil {
			if err := PingDB(r.Context(), rt.dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				rt.log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	if rt.photos != nil {
		path := rt.cfg.WS.PhotoPath
		if path == "" {
			path = realtime.DefaultConfig().PhotoPath
		}
		mux.Handle(path, rt.photos)
	}

	if rt.ws != nil {
		mux.HandleFunc("/ws", rt.ws.HandleWS)
	}
}
