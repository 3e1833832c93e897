// Package server provides the HTTP REST API for the product factory.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonathan/product-factory/internal/agents"
	"github.com/jonathan/product-factory/internal/config"
	"github.com/jonathan/product-factory/internal/db"
	"github.com/jonathan/product-factory/internal/fetch"
	"github.com/jonathan/product-factory/internal/llm"
	"github.com/jonathan/product-factory/internal/orchestrator"
	"github.com/jonathan/product-factory/internal/progress"
	"github.com/jonathan/product-factory/internal/server/middleware"
	"github.com/jonathan/product-factory/internal/server/ratelimit"
)

// Server represents the HTTP server
type Server struct {
	httpServer   *http.Server
	db           *db.DB
	llmClient    llm.Client
	orchestrator *orchestrator.Orchestrator
	gates        *orchestrator.Gates
	progress     *progress.Log
	rateLimiter  *ratelimit.Limiter
	jwtService   *JWTService
	userService  *UserService
	authHandler  *AuthHandler
}

// New creates a new server instance and wires the pipeline behind it.
func New(cfg *config.Config) (*Server, error) {
	ctx := context.Background()

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	llmClient, err := llm.NewClient(ctx, llm.DefaultConfig(), cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	var searcher agents.Searcher
	if cfg.SearchEnabled() {
		gs, err := agents.NewGoogleSearcher(ctx, cfg.SearchKey, cfg.SearchCX)
		if err != nil {
			return nil, fmt.Errorf("failed to create searcher: %w", err)
		}
		searcher = gs
	}

	progressLog := progress.NewLog()
	executors := agents.Registry(llmClient, fetch.New(), searcher)

	s := &Server{
		db:           database,
		llmClient:    llmClient,
		orchestrator: orchestrator.New(database, progressLog, executors),
		gates:        orchestrator.NewGates(database, progressLog),
		progress:     progressLog,
	}

	s.rateLimiter = ratelimit.NewLimiter(ratelimit.LoadConfig())

	passwordConfig, err := config.NewPasswordConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create password config: %w", err)
	}
	s.userService = NewUserService(database, passwordConfig)

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}
	s.jwtService = NewJWTService(jwtConfig)
	s.authHandler = NewAuthHandler(s.userService, s.jwtService)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(s.routes()))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Long timeout for SSE streams
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// routes builds the router. Everything except auth and health requires a
// valid bearer token.
func (s *Server) routes() http.Handler {
	private := http.NewServeMux()
	private.HandleFunc("PUT /auth/password", s.handleUpdatePassword)

	private.HandleFunc("POST /projects", s.handleCreateProject)
	private.HandleFunc("GET /projects", s.handleListProjects)
	private.HandleFunc("GET /projects/{id}", s.handleGetProject)
	private.HandleFunc("PUT /projects/{id}", s.handleUpdateProject)
	private.HandleFunc("DELETE /projects/{id}", s.handleDeleteProject)

	private.HandleFunc("POST /projects/{id}/runs", s.handleCreateRun)
	private.HandleFunc("GET /projects/{id}/runs", s.handleListRuns)
	private.HandleFunc("GET /runs/{id}", s.handleGetRun)
	private.HandleFunc("DELETE /runs/{id}", s.handleDeleteRun)
	private.HandleFunc("POST /runs/{id}/start", s.handleStartRun)
	private.HandleFunc("POST /runs/{id}/resume/{stage}", s.handleResumeRun)
	private.HandleFunc("POST /runs/{id}/pause", s.handlePauseRun)
	private.HandleFunc("GET /runs/{id}/artifacts", s.handleListArtifacts)
	private.HandleFunc("GET /runs/{id}/artifacts/{type}", s.handleGetArtifact)
	private.HandleFunc("GET /runs/{id}/export", s.handleExportRun)
	private.HandleFunc("GET /runs/{id}/stream", s.handleStreamRun)

	private.HandleFunc("GET /runs/{id}/approvals", s.handleListApprovals)
	private.HandleFunc("GET /runs/{id}/approvals/{stage}", s.handleGetApproval)
	private.HandleFunc("POST /runs/{id}/approvals/{stage}", s.handleSubmitApproval)

	authed := middleware.AuthMiddleware(s.jwtService.AsTokenValidator())(private)

	// Specific public patterns take precedence over the authenticated catch-all.
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", s.authHandler.Register)
	mux.HandleFunc("POST /auth/login", s.authHandler.Login)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("/", authed)
	return mux
}

// Start begins listening for requests and blocks until shutdown.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.llmClient != nil {
		s.llmClient.Close() //nolint:errcheck
	}
	s.db.Close()
	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpdatePassword handles password update requests for the
// authenticated user.
func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	s.authHandler.UpdatePasswordWithUserID(w, r, userID)
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// extractClientID extracts the client identifier from the request.
// For MVP, this uses the IP address from RemoteAddr.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]interface{}{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	log.Printf("[rate-limit] Rate limit exceeded: Limit=%d Remaining=%d Reset=%s",
		info.Limit, info.Remaining, info.ResetTime.Format(time.RFC3339))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
