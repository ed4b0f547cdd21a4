// Package server exposes the webhook, health and metrics endpoints.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewRouter returns the HTTP handler. Telegram updates posted to
// /webhook/{token} are passed to webhook when token matches; a nil webhook
// leaves the route unregistered.
func NewRouter(token string, webhook http.Handler, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(log), middleware.Recoverer)

	r.Get("/healthz", health)
	r.Handle("/metrics", promhttp.Handler())
	if webhook == nil {
		return r
	}
	r.Post("/webhook/{token}", func(w http.ResponseWriter, req *http.Request) {
		got := chi.URLParam(req, "token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.NotFound(w, req)
			return
		}
		webhook.ServeHTTP(w, req)
	})
	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLogger logs the route pattern, never the raw path: webhook URLs
// carry the bot token.
func requestLogger(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			ev := l.Debug()
			if rw.status >= http.StatusInternalServerError {
				ev = l.Error()
			}
			ev.Str("event", "http_request").Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).Str("route", route).Int("status", rw.status).
				Dur("elapsed", time.Since(start)).Msg("http request")
		})
	}
}
