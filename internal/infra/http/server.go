package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Pinger проверяет доступность зависимости для /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StartServer поднимает HTTP-сервер с /healthz, /metrics и, если задан,
// API управления правилами на /api/v1; гасит его по отмене контекста.
func StartServer(ctx context.Context, logger zerolog.Logger, port int, db Pinger, api http.Handler) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	if api != nil {
		r.Mount("/api/v1", api)
	}
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		pingCtx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if db != nil {
			if err := db.Ping(pingCtx); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http: ошибка при остановке сервера")
		}
	}()

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http: сервер запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http: сервер остановлен с ошибкой")
		}
	}()
}
