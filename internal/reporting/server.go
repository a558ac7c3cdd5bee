// Package reporting отдает KPI, статистику алертов и историю станков по HTTP.
package reporting

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/pdm-core/internal/infra/auth"
)

const healthTimeout = 2 * time.Second

type Server struct {
	router *chi.Mux
	logger *zap.Logger

	// nil — API открыт (локальный стенд без ключа)
	validator auth.TokenValidator

	reports  *ReportHandler
	ops      *OperationsHandler
	alertsWS http.Handler
	checks   map[string]HealthCheck
}

// HealthCheck — проверка зависимости для /health (Postgres, Redis).
type HealthCheck func(ctx context.Context) error

type Option func(*Server)

// WithHealthCheck добавляет зависимость, без которой сервис считается нездоровым.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// NewServer собирает роутер. ops и alertsWS могут быть nil.
func NewServer(logger *zap.Logger, validator auth.TokenValidator, reports *ReportHandler, ops *OperationsHandler, alertsWS http.Handler, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.Named("reporting-api"),
		validator: validator,
		reports:   reports,
		ops:       ops,
		alertsWS:  alertsWS,
		checks:    make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// --- 2. Публичные роуты ---
	r.Get("/health", s.health)

	// --- 3. Поток алертов: те же права, что у чтения отчетов ---
	if s.alertsWS != nil {
		r.With(s.require(auth.ScopeReportsRead)...).Handle("/ws/alerts", s.alertsWS)
	}

	// --- 4. Защищенный периметр ---
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.require(auth.ScopeReportsRead)...)

			r.Get("/kpis", s.reports.KPIs)
			r.Get("/alerts/stats", s.reports.AlertStats)
			r.Get("/optimization/summary", s.reports.OptimizationSummary)
			r.Get("/inference/stats", s.reports.InferenceStats)
			r.Get("/machines/{id}/anomalies", s.reports.Anomalies)
			r.Get("/machines/{id}/failures", s.reports.Failures)
		})

		if s.ops == nil {
			return
		}
		// Операции меняют состояние или тратят инференс: отдельный scope
		r.Group(func(r chi.Router) {
			r.Use(s.require(auth.ScopeOperationsWrite)...)

			r.Post("/machines/{id}/failure-prediction", s.ops.PredictFailure)
			r.Post("/machines/{id}/vibration", s.ops.AnalyzeVibration)
			r.Post("/machines/{id}/control", s.ops.Control)
			r.Post("/actions", s.ops.RecordAction)
		})
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	result := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			result[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		result[name] = "ok"
	}
	writeJSON(w, status, result)
}

// require возвращает проверку токена со scope; без валидатора API открыт.
func (s *Server) require(scope string) []func(http.Handler) http.Handler {
	if s.validator == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{auth.NewMiddleware(s.validator, scope, s.logger)}
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
