package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/jonathan/teamgr/internal/config"
	"github.com/jonathan/teamgr/internal/server/middleware"
	"github.com/jonathan/teamgr/internal/server/ratelimit"
)

// AuthHandler implements the shared-password login flow.
type AuthHandler struct {
	passwordConfig *config.PasswordConfig
	passwordHash   string
	jwtService     *JWTService
	limiter        *ratelimit.Limiter
	bans           *ratelimit.BanManager
}

// NewAuthHandler creates an AuthHandler. An empty passwordHash puts the
// server in open mode: login is rejected and all routes skip auth.
func NewAuthHandler(passwordConfig *config.PasswordConfig, passwordHash string, jwtService *JWTService) *AuthHandler {
	return &AuthHandler{
		passwordConfig: passwordConfig,
		passwordHash:   passwordHash,
		jwtService:     jwtService,
		limiter:        ratelimit.NewLimiter(5, 0),
		bans:           ratelimit.NewBanManager(nil),
	}
}

// PasswordConfigured reports whether a shared access password is set.
func (h *AuthHandler) PasswordConfigured() bool {
	return h.passwordHash != ""
}

// LoginRequest is the request body for /api/auth/login.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse is the response for a successful login.
type LoginResponse struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

// StatusResponse reports whether auth is configured and whether the caller
// holds a valid token.
type StatusResponse struct {
	PasswordConfigured bool `json:"password_configured"`
	Authenticated      bool `json:"authenticated"`
}

// Login checks the shared password, subject to rate limiting and
// progressive banning, and issues a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	clientID := clientIP(r)

	if h.bans.IsBanned(clientID) {
		remaining := h.bans.BanRemaining(clientID)
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error": fmt.Sprintf("temporarily banned, retry in %d minutes", int(remaining.Minutes())+1),
		})
		return
	}
	if !h.limiter.Allow(clientID) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests, slow down"})
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if !h.PasswordConfigured() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no access password configured"})
		return
	}

	if !h.passwordConfig.VerifyPassword(req.Password, h.passwordHash) {
		h.bans.RecordFailure(clientID)
		writeJSON(w, HTTPStatus(&ErrInvalidCredentials{}), map[string]string{"error": "invalid access password"})
		return
	}

	h.bans.RecordSuccess(clientID)
	token, err := h.jwtService.GenerateToken()
	if err != nil {
		log.Printf("[auth] failed to issue token: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to issue token"})
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Message: "login ok"})
}

// Status reports auth configuration and the caller's token validity. An
// unconfigured password means the instance is open and always authenticated.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	authenticated := false
	if token, ok := middleware.BearerToken(r); ok {
		authenticated = h.jwtService.ValidateToken(token) == nil
	}
	if !h.PasswordConfigured() {
		log.Printf("[auth] no access password configured, server is running open")
		authenticated = true
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		PasswordConfigured: h.PasswordConfigured(),
		Authenticated:      authenticated,
	})
}
