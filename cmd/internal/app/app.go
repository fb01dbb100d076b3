// Package app wires the huddle server runtime: config, logging, HTTP routes and the realtime gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"huddle/cmd/internal/audit"
	"huddle/cmd/internal/capacity"
	"huddle/cmd/internal/matching"
	"huddle/cmd/internal/metrics"
	"huddle/cmd/internal/queue"
	"huddle/cmd/internal/ratelimit"
	"huddle/cmd/internal/realtime"
	"huddle/cmd/internal/session"
	"huddle/cmd/security/token"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App owns the HTTP server and every in-memory component behind the gateway.
type App struct {
	cfg Config
	log Logger

	dbPool  *pgxpool.Pool
	audit   *audit.Logger
	metrics *metrics.Metrics

	store    *session.Store
	capacity *capacity.Manager
	ws       *realtime.WSGateway
	photos   *DirFetcher
	tokens   *token.Manager
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	a := &App{cfg: cfg, log: log, metrics: metrics.New()}

	var auditOpts []audit.Option
	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("db: %w", err)
		}
		sink := audit.NewPostgresSink(pool)
		if err := sink.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("audit schema: %w", err)
		}
		a.dbPool = pool
		auditOpts = append(auditOpts, audit.WithSink(sink, cfg.AuditBuffer))
		log.Info("db.enabled.audit_sink")
	} else {
		log.Info("db.disabled.audit_log_only")
	}
	a.audit = audit.New(log, auditOpts...)

	tokens, err := token.NewManager(cfg.Token)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("tokens: %w", err)
	}
	a.tokens = tokens
	if cfg.Token.SecretKeyHex == "" {
		log.Warn("token.keys.ephemeral", "public_key", tokens.PublicKeyHex(),
			"hint", "tokens do not survive a restart; set "+EnvPrefix+"TOKEN_SECRET_KEY_HEX")
	} else {
		log.Info("token.keys.configured", "public_key", tokens.PublicKeyHex())
	}

	limiter := ratelimit.New(cfg.RateLimit)
	a.store = session.NewStore(log, cfg.Session, tokens)
	a.capacity = capacity.New(log, a.store, cfg.Capacity,
		capacity.WithAudit(a.audit),
		capacity.WithMetrics(a.metrics),
		capacity.WithPruner(limiter),
	)

	var source queue.CandidateSource
	if cfg.CatalogPath != "" {
		catalog, err := queue.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			a.closeResources()
			return nil, fmt.Errorf("catalog: %w", err)
		}
		static := queue.NewStaticSource(catalog.Candidates)
		log.Info("catalog.loaded", "path", cfg.CatalogPath, "candidates", static.Len())
		source = static
	} else {
		log.Warn("catalog.missing", "hint", "set "+EnvPrefix+"CATALOG_PATH; sessions cannot fetch candidates")
	}

	a.ws, err = realtime.NewWSGateway(log, cfg.WS, realtime.Deps{
		Store:    a.store,
		Capacity: a.capacity,
		Engine:   matching.New(log),
		Queue:    queue.New(log, a.store, source, cfg.Queue),
		Tokens:   tokens,
		Limiter:  limiter,
		Audit:    a.audit,
		Metrics:  a.metrics,
	})
	if err != nil {
		a.closeResources()
		return nil, err
	}

	if cfg.PhotoDir != "" {
		a.photos, err = NewDirFetcher(cfg.PhotoDir)
		if err != nil {
			a.closeResources()
			return nil, err
		}
	}

	return a, nil
}

// Handler returns the full middleware-wrapped route tree.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	var fetcher ResourceFetcher
	if a.photos != nil {
		fetcher = a.photos
	}
	registerHTTP(mux, routes{
		log:     a.log,
		cfg:     a.cfg,
		dbPool:  a.dbPool,
		ws:      a.ws,
		metrics: a.metrics,
		photos:  photoHandler(a.log, a.tokens, fetcher),
	})

	return WithSecurityHeaders(WithCORS(WithRequestLogging(mux, a.log), a.cfg, a.log))
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.capacity.Run(sweepCtx)

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"ws_url", wsBaseURL(runtimeBaseURL(a.cfg.HTTPAddr))+"/ws",
		"db_enabled", a.dbPool != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.shutdownSessions()
		a.closeResources()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown does not wait for hijacked websocket connections; ending every
	// session below broadcasts session_ended and closes them.
	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
	}

	a.shutdownSessions()
	a.closeResources()

	a.log.Info("server.stopped")
	return err
}

func (a *App) shutdownSessions() {
	if a.store == nil {
		return
	}
	removed := a.store.Close()
	if a.capacity != nil {
		a.capacity.Report(removed...)
	}
}

func (a *App) closeResources() {
	if a.photos != nil {
		_ = a.photos.Close()
	}
	if a.audit != nil {
		a.audit.Close()
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
