/*
Package handler provides the HTTP handlers and routing setup for the chat relay.

This file defines the main Router, applying middleware like logging, CORS and IP-based rate
limiting before delegating requests to the health and WebSocket handlers.
*/
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"chatrelay/internal/pkg/limiter"
	"chatrelay/internal/pkg/logx"
)

const (
	JoinRate  = 0.5
	JoinBurst = 10
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// ctx bounds the lifetime of the rate limiter's background sweep.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	joinLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(JoinRate), JoinBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if deps.Config.IsDevelopment() || origin == "" {
				return true
			}

			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/", HandleRoot())
	r.Get("/api/health", HandleHealth(deps))

	r.With(joinLimiter.Middleware).Get("/ws", HandleWebSocket(wsUpgrader, deps))

	return r
}
