package main

import (
	"log"
	"net/http"

	httphandlers "fclink/internal/interfaces/http"
	"fclink/internal/shared/config"
	"fclink/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Static pages (dev only)
	mux.HandleFunc("/", httphandlers.HandleIndex)

	// Health check
	mux.HandleFunc("/health", httphandlers.HandleHealth)

	// Public auth routes
	mux.HandleFunc("/api/auth/login", deps.AuthHandler.HandleLogin)
	mux.HandleFunc("/api/auth/logout", deps.AuthHandler.HandleLogout)
	mux.HandleFunc("/api/auth/session", deps.AuthHandler.HandleSession)

	// Redirect callback: the provider's hosted page sends the user's browser
	// here, so it must stay outside the auth gate.
	mux.HandleFunc("/linking/redirect", deps.LinkingHandler.HandleRedirect)

	// Protected routes
	authMiddleware := middleware.Auth(deps.Issuer)

	mux.Handle("/api/customers", authMiddleware(http.HandlerFunc(deps.CustomerHandler.HandleCustomers)))
	mux.Handle("/api/customers/active", authMiddleware(http.HandlerFunc(deps.CustomerHandler.HandleActiveCustomer)))
	mux.Handle("/api/customers/{id}", authMiddleware(http.HandlerFunc(deps.CustomerHandler.HandleCustomerByID)))
	mux.Handle("/api/customers/{id}/payment-methods", authMiddleware(http.HandlerFunc(deps.CustomerHandler.HandlePaymentMethods)))
	mux.Handle("/api/linking/flows", authMiddleware(http.HandlerFunc(deps.LinkingHandler.HandleFlows)))
	mux.Handle("/api/linking/flows/consent", authMiddleware(http.HandlerFunc(deps.LinkingHandler.HandleConsent)))
	mux.Handle("/api/linking/flows/select", authMiddleware(http.HandlerFunc(deps.LinkingHandler.HandleSelect)))
	mux.Handle("/api/linking/flows/abandon", authMiddleware(http.HandlerFunc(deps.LinkingHandler.HandleAbandon)))
	mux.Handle("/api/linking/flows/status", authMiddleware(http.HandlerFunc(deps.LinkingHandler.HandleStatus)))
	mux.Handle("/api/linking/institutions", authMiddleware(http.HandlerFunc(deps.LinkingHandler.HandleInstitutions)))

	// Apply global middleware
	handler := middleware.Logging(middleware.CORS(cfg.Server.AllowedHosts)(mux))
	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(middleware.Tracing(handler))
	}

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(middleware.SecureCookies(handler))
		log.Println("TLS security middleware enabled (HSTS + SecureCookies)")
	}

	return handler
}
