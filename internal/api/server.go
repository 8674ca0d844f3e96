package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkaplon/foresight-backend/internal/analytics"
	"github.com/mkaplon/foresight-backend/internal/repository"
	"github.com/mkaplon/foresight-backend/internal/ws"
)

const maxQueryLimit = 1000

// Deps are the services the HTTP layer exposes. Pool may be nil, in which
// case comment routes respond 503 and the health check reports the
// database as disabled.
type Deps struct {
	Pool        *pgxpool.Pool
	Markets     *analytics.MarketService
	Portfolios  *analytics.PortfolioService
	Broadcaster *ws.Broadcaster
}

type Server struct {
	pool        *pgxpool.Pool
	markets     *analytics.MarketService
	portfolios  *analytics.PortfolioService
	comments    *repository.CommentRepo
	broadcaster *ws.Broadcaster
	httpServer  *http.Server
	apiKey      string
}

func NewServer(deps Deps, port int, apiKey, corsOrigin string) *Server {
	s := &Server{
		pool:        deps.Pool,
		markets:     deps.Markets,
		portfolios:  deps.Portfolios,
		broadcaster: deps.Broadcaster,
		apiKey:      apiKey,
	}
	if deps.Pool != nil {
		s.comments = repository.NewCommentRepo(deps.Pool)
	}

	mux := http.NewServeMux()

	// Market analytics routes
	mux.HandleFunc("GET /v1/markets/{id}/analytics", s.handleMarketAnalytics)
	mux.HandleFunc("POST /v1/markets/{id}/analytics/refresh", s.handleAnalyticsRefresh)

	// Portfolio routes
	mux.HandleFunc("GET /v1/users/{address}/portfolio", s.handleUserPortfolio)
	mux.HandleFunc("GET /v1/users/{address}/trades", s.handleUserTrades)
	mux.HandleFunc("GET /v1/users/{address}/positions", s.handleUserPositions)

	// Comment routes
	mux.HandleFunc("GET /v1/markets/{id}/comments", s.handleListComments)
	mux.HandleFunc("POST /v1/markets/{id}/comments", s.handleCreateComment)
	mux.HandleFunc("DELETE /v1/comments/{id}", s.handleDeleteComment)

	// Health check and websocket feed (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)
	if deps.Broadcaster != nil {
		mux.HandleFunc("GET /ws", deps.Broadcaster.Handler())
	}

	handler := s.authMiddleware(corsMiddleware(mux, corsOrigin))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	fmt.Printf("[API] REST API server started on http://localhost%s\n", s.httpServer.Addr)
	fmt.Printf("[API] Health check: http://localhost%s/health\n", s.httpServer.Addr)
	if s.apiKey != "" {
		fmt.Println("[API] Authentication: enabled (Bearer token)")
	} else {
		fmt.Println("[API] Authentication: disabled (no API_KEY configured)")
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Browsers cannot attach headers on websocket upgrades, so /ws is
		// exempt alongside /health.
		if s.apiKey == "" || r.URL.Path == "/health" || r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- validation helpers ---

func parseLimit(r *http.Request, defaultLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

func parseSkip(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("skip"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
