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
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/teamgr/internal/chat"
	"github.com/jonathan/teamgr/internal/config"
	"github.com/jonathan/teamgr/internal/dimension"
	"github.com/jonathan/teamgr/internal/extraction"
	"github.com/jonathan/teamgr/internal/server/middleware"
	"github.com/jonathan/teamgr/internal/store"
)

// Server represents the HTTP server.
type Server struct {
	httpServer   *http.Server
	store        store.Store
	registry     *dimension.Registry
	worker       *extraction.Worker
	tracker      *extraction.Tracker
	orchestrator *chat.Orchestrator
	jwtService   *JWTService
	authHandler  *AuthHandler
	corsOrigins  []string
	validate     *validator.Validate
}

// Config holds server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Deps carries the wired application services.
type Deps struct {
	Store          store.Store
	Registry       *dimension.Registry
	Worker         *extraction.Worker
	Tracker        *extraction.Tracker
	Orchestrator   *chat.Orchestrator
	JWTConfig      *config.JWTConfig
	PasswordConfig *config.PasswordConfig
	PasswordHash   string
}

// New creates a new server instance.
func New(cfg Config, deps Deps) *Server {
	s := &Server{
		store:        deps.Store,
		registry:     deps.Registry,
		worker:       deps.Worker,
		tracker:      deps.Tracker,
		orchestrator: deps.Orchestrator,
		corsOrigins:  cfg.CORSOrigins,
		validate:     validator.New(),
	}

	s.jwtService = NewJWTService(deps.JWTConfig)
	s.authHandler = NewAuthHandler(deps.PasswordConfig, deps.PasswordHash, s.jwtService)

	mux := http.NewServeMux()

	// Open routes
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/auth/login", s.authHandler.Login)
	mux.HandleFunc("GET /api/auth/status", s.authHandler.Status)

	// Entry pipeline
	mux.HandleFunc("POST /api/entry/text", s.auth(s.handleSubmitText))
	mux.HandleFunc("POST /api/entry/pdf", s.auth(s.handleSubmitPDF))
	mux.HandleFunc("GET /api/entry/status/{id}", s.auth(s.handleEntryStatus))
	mux.HandleFunc("GET /api/entry/logs/{talent_id}", s.auth(s.handleListEntryLogs))
	mux.HandleFunc("DELETE /api/entry/logs/{id}", s.auth(s.handleDeleteEntryLog))

	// Chat query pipeline
	mux.HandleFunc("POST /api/chat/analyze", s.auth(s.handleChatAnalyze))
	mux.HandleFunc("POST /api/chat/answer", s.auth(s.handleChatAnswer))
	mux.HandleFunc("POST /api/chat/ask", s.auth(s.handleChatAsk))

	// Talents
	mux.HandleFunc("GET /api/talents", s.auth(s.handleListTalents))
	mux.HandleFunc("POST /api/talents", s.auth(s.handleCreateTalent))
	mux.HandleFunc("GET /api/talents/{id}", s.auth(s.handleGetTalent))
	mux.HandleFunc("PUT /api/talents/{id}", s.auth(s.handleUpdateTalent))
	mux.HandleFunc("DELETE /api/talents/{id}", s.auth(s.handleDeleteTalent))

	// Dimensions and stats
	mux.HandleFunc("GET /api/dimensions", s.auth(s.handleListDimensions))
	mux.HandleFunc("GET /api/stats/llm", s.auth(s.handleLLMStats))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withLogging(s.withCORS(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // chat answers can take a while
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the composed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
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

	// Let in-flight extraction jobs record their outcome.
	s.worker.Wait()
	s.store.Close()
	log.Println("Server stopped")
	return nil
}

// auth wraps a handler with bearer token validation. When no access password
// is configured the server runs open and the wrap is a no-op.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	if !s.authHandler.PasswordConfigured() {
		return next
	}
	wrapped := middleware.Auth(s.jwtService)(next)
	return wrapped.ServeHTTP
}

// withCORS adds CORS headers.
func (s *Server) withCORS(next http.Handler) http.Handler {
	origin := "*"
	if len(s.corsOrigins) > 0 {
		origin = strings.Join(s.corsOrigins, ", ")
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response with the status derived from
// the error type.
func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	writeJSON(w, HTTPStatus(err), map[string]string{"error": err.Error()})
}

// badRequest writes a 400 with the given message.
func (s *Server) badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": message})
}

// clientIP extracts the client address, respecting X-Forwarded-For behind a
// trusted proxy.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
