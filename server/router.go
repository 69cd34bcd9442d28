// Package server exposes the jobgate administration API over HTTP.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggo/swag"
	"go.uber.org/zap"

	"github.com/ebogdum/jobgate/auth"
	"github.com/ebogdum/jobgate/config"
	"github.com/ebogdum/jobgate/core"
	"github.com/ebogdum/jobgate/docs"
	"github.com/ebogdum/jobgate/metrics"
	"github.com/ebogdum/jobgate/server/handlers"
	authMiddleware "github.com/ebogdum/jobgate/server/middleware"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	engine *core.Engine,
	authenticator auth.Authenticator,
	serverConfig *config.ServerConfig,
	logger *zap.Logger,
) chi.Router {
	metrics.RegisterMetrics()

	r := chi.NewRouter()

	r.Use(authMiddleware.V1RequestIDMiddleware())
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(authMiddleware.V1SecurityHeaders())

	// Custom logging and metrics middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)

			// label by route pattern so ids don't explode cardinality
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			metrics.HTTPRequestsTotal.WithLabelValues(
				r.Method,
				route,
				strconv.Itoa(ww.Status()),
			).Inc()

			metrics.HTTPRequestDuration.WithLabelValues(
				r.Method,
				route,
			).Observe(duration.Seconds())

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", duration),
				zap.String("request_id", authMiddleware.GetRequestID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr))
		})
	})

	// Health check endpoint (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			logger.Error("Failed to write health check response", zap.Error(err))
		}
	})

	// Metrics endpoint (no auth required)
	r.Handle("/metrics", promhttp.Handler())

	// API description (no auth required)
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
		if err != nil {
			logger.Error("Failed to render API description", zap.Error(err))
			http.Error(w, "API description unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(doc)); err != nil {
			logger.Error("Failed to write API description", zap.Error(err))
		}
	})

	timeout := serverConfig.LockOpTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	mutationLimiter := authMiddleware.NewClientRateLimiter(serverConfig.RateLimitRPS, serverConfig.RateLimitBurst)
	limited := authMiddleware.V1RateLimitMiddleware(mutationLimiter, logger)

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.V1AuthMiddleware(authenticator, logger))

		r.Route("/locks", func(r chi.Router) {
			r.Get("/", handlers.V1ListLocks(engine, timeout, logger))
			r.Get("/jobs", handlers.V1ListLockedJobs(engine, timeout, logger))
			r.Get("/{projectID}", handlers.V1GetLock(engine, timeout, logger))
			r.With(limited).Post("/{projectID}/clear", handlers.V1ClearLock(engine, timeout, logger))
			r.With(limited).Delete("/{projectID}", handlers.V1DeleteLock(engine, timeout, logger))
		})

		r.Route("/jobs/{jobID}/lock", func(r chi.Router) {
			r.With(limited).Post("/", handlers.V1LockJob(engine, timeout, logger))
			r.With(limited).Delete("/", handlers.V1UnlockJob(engine, timeout, logger))
		})

		r.Get("/queue", handlers.V1PendingQueue(engine, timeout, logger))
	})

	logger.Info("HTTP router configured successfully")

	return r
}
