package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRouter configures all API routes.
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	r.Use(h.RecoveryMiddleware)
	r.Use(h.CORSMiddleware)
	r.Use(h.LoggingMiddleware)

	// Public routes
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/", h.ServerInfo).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(h.AuthMiddleware)

	protected.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)
	protected.HandleFunc("/auth/session", h.GetSession).Methods(http.MethodGet)

	protected.HandleFunc("/wallet/balance", h.GetBalance).Methods(http.MethodGet)

	protected.HandleFunc("/games", h.GetGames).Methods(http.MethodGet)
	protected.HandleFunc("/games/{id:[0-9]+}", h.GetGame).Methods(http.MethodGet)

	protected.HandleFunc("/rounds/spin", h.Spin).Methods(http.MethodPost)
	protected.HandleFunc("/rounds/history", h.GetRoundHistory).Methods(http.MethodGet)

	// Operator control surface
	protected.HandleFunc("/control/status", h.GetSystemStatus).Methods(http.MethodGet)
	protected.HandleFunc("/control/gaming/disable", h.DisableGaming).Methods(http.MethodPost)
	protected.HandleFunc("/control/gaming/enable", h.EnableGaming).Methods(http.MethodPost)
	protected.HandleFunc("/control/games/{id:[0-9]+}/disable", h.DisableGame).Methods(http.MethodPost)
	protected.HandleFunc("/control/games/{id:[0-9]+}/enable", h.EnableGame).Methods(http.MethodPost)
	protected.HandleFunc("/control/players/{id:[0-9]+}/disable", h.DisablePlayer).Methods(http.MethodPost)
	protected.HandleFunc("/control/players/{id:[0-9]+}/enable", h.EnablePlayer).Methods(http.MethodPost)

	// WebSocket endpoint for interactive rounds
	protected.HandleFunc("/ws/games/{game_id:[0-9]+}", h.HandleWebSocket).Methods(http.MethodGet)

	return r
}
