package http

import (
	"encoding/json"
	"log"
	"net/http"

	"fclink/internal/domain/customer"
	"fclink/internal/shared/auth"
)

type AuthHandler struct {
	store        customer.Store
	issuer       *auth.TokenIssuer
	passwordHash string
}

func NewAuthHandler(store customer.Store, issuer *auth.TokenIssuer, passwordHash string) *AuthHandler {
	return &AuthHandler{store: store, issuer: issuer, passwordHash: passwordHash}
}

type LoginRequest struct {
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// HandleLogin verifies the admin password and issues a session token, set as
// an HttpOnly cookie and returned in the body for non-browser clients.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := auth.VerifyPassword(h.passwordHash, req.Password); err != nil {
		http.Error(w, "Invalid password", http.StatusUnauthorized)
		return
	}

	token, err := h.issuer.Generate()
	if err != nil {
		log.Printf("Error generating session token: %v", err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	// Cache the credential so a restarted UI can resume without a prompt.
	// Best-effort: login succeeds even when the store is unavailable.
	if err := h.store.SetCachedCredential(r.Context(), token); err != nil {
		log.Printf("Error caching credential: %v", err)
	}

	setAuthCookie(w, r, token)
	writeJSON(w, http.StatusOK, LoginResponse{Token: token})
}

// HandleLogout clears the session cookie and the cached credential.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.store.SetCachedCredential(r.Context(), ""); err != nil {
		log.Printf("Error clearing cached credential: %v", err)
	}

	clearAuthCookie(w, r)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// HandleSession reports whether a cached credential is still valid, letting
// the UI skip the password prompt after a restart.
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token, err := h.store.GetCachedCredential(r.Context())
	if err != nil {
		log.Printf("Error reading cached credential: %v", err)
	}
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]bool{"authenticated": false})
		return
	}
	if _, err := h.issuer.Validate(token); err != nil {
		writeJSON(w, http.StatusOK, map[string]bool{"authenticated": false})
		return
	}

	setAuthCookie(w, r, token)
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

// setAuthCookie sets the session token as an HttpOnly cookie
func setAuthCookie(w http.ResponseWriter, r *http.Request, token string) {
	// Only set Secure flag when actually using HTTPS
	secure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearAuthCookie(w http.ResponseWriter, r *http.Request) {
	secure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"

	// Clear the cookie by setting MaxAge to -1
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
