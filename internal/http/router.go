// Package http собирает HTTP-поверхность сервиса: chi-роутер, сквозные
// мидлвары и admission-политики маршрутов, разрешаемые при регистрации.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mt-platform/admission-service/internal/http/handlers"
	"github.com/mt-platform/admission-service/internal/http/middleware"
	"github.com/mt-platform/admission-service/internal/ratelimit"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration
	// Ready — readiness-проба для /healthz; nil означает «всегда готов».
	Ready func() bool
}

// route — один маршрут с его admission-политикой.
// Политики фиксируются здесь, при регистрации; никакой динамической
// диспетчеризации по метаданным в обработке запроса нет.
type route struct {
	method  string
	path    string
	handler http.HandlerFunc
	policy  middleware.Policy
}

// NewRouter собирает http.Handler с подключёнными middleware и маршрутами.
// Rate-limit каждого маршрута регистрируется в таблице политик лимитера,
// чтобы route_key решался одинаково и в лимитере, и в admission-пайплайне.
func NewRouter(h *handlers.Handlers, adm *middleware.Admission, table *ratelimit.PolicyTable, opts Options) http.Handler {
	root := chi.NewRouter()

	// Сквозные мидлвары (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	for _, rt := range authRoutes(h) {
		pattern := rt.method + " " + rt.path

		if rt.policy.RateLimit != nil {
			table.Set(pattern, *rt.policy.RateLimit)
		}

		root.Method(rt.method, rt.path, middleware.Chain(rt.handler, adm.Admit(pattern, rt.policy)))
	}

	registerOps(root, opts.Ready)

	return root
}

// authRoutes — единая точка регистрации эндпойнтов admission-слоя.
func authRoutes(h *handlers.Handlers) []route {
	return []route{
		{
			method:  http.MethodPost,
			path:    "/auth/register",
			handler: h.Register,
			policy: middleware.Policy{
				RateLimit: &ratelimit.Policy{MaxRequests: 5, Window: time.Hour},
				Csrf:      true,
			},
		},
		{
			method:  http.MethodPost,
			path:    "/auth/login",
			handler: h.Login,
			policy: middleware.Policy{
				RateLimit: &ratelimit.Policy{MaxRequests: 5, Window: time.Minute},
				Csrf:      true,
			},
		},
		{
			method:  http.MethodPost,
			path:    "/auth/refresh",
			handler: h.Refresh,
			policy: middleware.Policy{
				RateLimit: &ratelimit.Policy{MaxRequests: 10, Window: time.Minute},
				Csrf:      true,
			},
		},
		{
			method:  http.MethodPost,
			path:    "/auth/logout",
			handler: h.Logout,
			policy: middleware.Policy{
				RequireAuth: true,
				Csrf:        true,
			},
		},
		{
			method:  http.MethodPost,
			path:    "/auth/password",
			handler: h.ChangePassword,
			policy: middleware.Policy{
				RateLimit:   &ratelimit.Policy{MaxRequests: 5, Window: time.Hour},
				RequireAuth: true,
				Csrf:        true,
			},
		},
	}
}

// registerOps — liveness/readiness/metrics; admission-пайплайн их не касается.
func registerOps(r chi.Router, ready func() bool) {
	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if ready == nil || ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	r.Handle("/metrics", promhttp.Handler())
}
