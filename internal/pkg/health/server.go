package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Vodeneev/oddsapi/internal/deviation"
	"github.com/Vodeneev/oddsapi/internal/pkg/config"
	"github.com/Vodeneev/oddsapi/internal/pkg/health/handlers"
)

type Deps struct {
	DB         handlers.Pinger
	Finder     handlers.FixtureFinder
	Bookmakers handlers.BookmakerCounter
	Gatherer   prometheus.Gatherer
	Defaults   deviation.Params
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	// Health endpoints
	r.Get("/ping", handlers.HandlePing)
	r.Get("/health", handlers.Health(deps.DB))

	// Metrics endpoint
	r.Method(http.MethodGet, "/metrics", handlers.Metrics(deps.Gatherer))

	if deps.Finder != nil {
		r.Get("/fixtures", handlers.Fixtures(deps.Finder, deps.Defaults))
	}
	if deps.Bookmakers != nil {
		r.Get("/bookmakers", handlers.Bookmakers(deps.Bookmakers))
	}
	return r
}

// Run serves until ctx is cancelled.
func Run(ctx context.Context, cfg config.HTTPConfig, service string, deps Deps) error {
	if cfg.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("read_header_timeout must be specified in config")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Health server listening", "service", service, "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
