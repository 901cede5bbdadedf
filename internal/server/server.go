// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/matthewbaird/eventform/internal/activity"
	"github.com/matthewbaird/eventform/internal/dataset"
	"github.com/matthewbaird/eventform/internal/handler"
	"github.com/matthewbaird/eventform/internal/loader"
	"github.com/matthewbaird/eventform/internal/session"
	"github.com/matthewbaird/eventform/internal/wire"
)

// Config holds server configuration.
type Config struct {
	Port     int
	Sessions *session.Manager
	Journal  activity.Store
	Catalog  *dataset.Catalog
	Loader   *loader.Loader
	Metrics  *loader.Metrics // optional; enables /metrics
	Logger   zerolog.Logger

	// CleanupInterval is how often expired sessions are dropped.
	// Zero uses one minute.
	CleanupInterval time.Duration
}

// NewRouter builds the HTTP handler with every route registered.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(cfg.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.Metrics != nil {
		reg := cfg.Metrics.Registry()
		sessions := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "eventform_sessions_live",
			Help: "Number of live form sessions.",
		}, func() float64 { return float64(cfg.Sessions.Len()) })
		if err := reg.Register(sessions); err != nil {
			cfg.Logger.Warn().Err(err).Msg("session gauge not registered")
		}
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	// --- FormService ---
	fh := handler.NewFormHandler(cfg.Sessions)
	ah := handler.NewActivityHandler(cfg.Journal, cfg.Sessions)
	ws := wire.NewHandler(cfg.Sessions, cfg.Logger)
	r.Route("/v1/forms", func(r chi.Router) {
		r.Post("/", fh.CreateForm)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", fh.GetForm)
			r.Delete("/", fh.DeleteForm)
			r.Put("/fields/{key}", fh.UpdateField)
			r.Post("/fields/{key}/touch", fh.TouchField)
			r.Get("/fields/{key}/options", fh.GetOptions)
			r.Post("/validate", fh.ValidateForm)
			r.Post("/submit", fh.SubmitForm)
			r.Post("/reset", fh.ResetForm)
			if cfg.Journal != nil {
				r.Get("/activity", ah.GetFormActivity)
				r.Get("/activity/summary", ah.GetFormSummary)
			}
			r.Get("/ws", ws.ServeHTTP)
		})
	})

	// --- DatasetService ---
	dh := handler.NewDatasetHandler(cfg.Catalog, cfg.Loader)
	r.Delete("/v1/datasets/cache", dh.ClearCache)
	r.Get("/v1/datasets/{resource}", dh.GetOptions)
	r.Get("/v1/datasets/{resource}/sources", dh.GetSources)

	return r
}

// Run starts the HTTP server and the session cleanup loop, and shuts both
// down when ctx is done.
func Run(ctx context.Context, cfg Config) error {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go cfg.Sessions.Run(ctx, interval)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			cfg.Logger.Warn().Err(err).Msg("shutdown")
		}
	}()

	cfg.Logger.Info().Str("addr", addr).Msg("starting server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
