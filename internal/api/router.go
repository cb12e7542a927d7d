package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xtrntr/tradeproof/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RouterOptions configures the middleware stack
type RouterOptions struct {
	AllowedOrigins []string
	// RateLimit is requests per second across /proof routes; zero disables it
	RateLimit float64
	RateBurst int
	// Events serves /api/v1/ws when set
	Events http.Handler
}

// NewRouter mounts every route under /api/v1 plus /metrics
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/health/ready", h.Ready)
		if opts.Events != nil {
			r.Handle("/ws", opts.Events)
		}

		r.Route("/proof", func(r chi.Router) {
			if opts.RateLimit > 0 {
				r.Use(limit(opts.RateLimit, opts.RateBurst))
			}
			r.Post("/generate", h.GenerateProof)
			r.Post("/submit", h.SubmitProof)
			r.Get("/report/{id}", h.GetReport)
			r.Get("/trader/{address}/stats", h.GetTraderStats)
			r.Get("/trader/{address}/registered", h.GetTraderRegistered)
			r.Post("/trader/register", h.RegisterTrader)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/confirm", h.ConfirmPayment)
			r.Post("/verify-token", h.VerifyToken)
			r.Get("/{id}", h.GetPayment)
		})
	})
	return r
}

// limit applies one shared token bucket to every request
func limit(rps float64, burst int) func(http.Handler) http.Handler {
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs each request and records its duration under the matched
// route pattern
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.RequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).Observe(elapsed.Seconds())

		h.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
