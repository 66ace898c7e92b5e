// Package api exposes the settlement core over HTTP: authentication,
// the spin endpoint, wallet and catalogue reads and the operator
// control surface.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/avolkov/slotcore/internal/audit"
	"github.com/avolkov/slotcore/internal/auth"
	"github.com/avolkov/slotcore/internal/config"
	"github.com/avolkov/slotcore/internal/control"
	"github.com/avolkov/slotcore/internal/database"
	"github.com/avolkov/slotcore/internal/ledger"
	"github.com/avolkov/slotcore/internal/limits"
	"github.com/avolkov/slotcore/internal/rng"
	"github.com/avolkov/slotcore/internal/settlement"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handler contains all HTTP handlers and their backing services.
type Handler struct {
	auth       *auth.Service
	settlement *settlement.Service
	store      *database.Store
	control    *control.Service
	audit      *audit.Service
	rng        *rng.Service
	cfg        *config.Config
	log        *zap.Logger
}

// New creates a new API handler.
func New(authSvc *auth.Service, settleSvc *settlement.Service, store *database.Store,
	controlSvc *control.Service, auditSvc *audit.Service, rngSvc *rng.Service,
	cfg *config.Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		auth:       authSvc,
		settlement: settleSvc,
		store:      store,
		control:    controlSvc,
		audit:      auditSvc,
		rng:        rngSvc,
		cfg:        cfg,
		log:        logger,
	}
}

// Response helpers

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	})
}

// getClientIP extracts client IP from request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// === Health & Info ===

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	rngHealth, _ := h.rng.HealthCheck()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"rng_status": rngHealth,
	})
}

// ServerInfo handles GET /
func (h *Handler) ServerInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":        "slotcore",
		"version":     "1.0.0",
		"description": "Slot round settlement core",
		"currency":    h.cfg.Game.DefaultCurrency,
	})
}

// === Authentication ===

// Register handles POST /api/v1/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	account, err := h.auth.Register(r.Context(), &req, getClientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			respondError(w, http.StatusConflict, "USER_EXISTS", "Username already exists")
		default:
			respondError(w, http.StatusBadRequest, "REGISTRATION_FAILED", err.Error())
		}
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"player_id": account.ID,
		"username":  account.Username,
		"shop_id":   account.ShopID,
	})
}

// Login handles POST /api/v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	result, err := h.auth.Login(r.Context(), &req, getClientIP(r), r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password")
		case errors.Is(err, auth.ErrAccountLocked):
			respondError(w, http.StatusForbidden, "ACCOUNT_LOCKED", "Account is temporarily locked")
		case errors.Is(err, auth.ErrAccountNotActive):
			respondError(w, http.StatusForbidden, "ACCOUNT_INACTIVE", "Account is not active")
		default:
			respondError(w, http.StatusInternalServerError, "LOGIN_FAILED", "Login failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":      result.Token,
		"session_id": result.Session.ID,
		"player": map[string]interface{}{
			"id":       result.Account.ID,
			"username": result.Account.Username,
			"shop_id":  result.Account.ShopID,
		},
		"expires_at": result.Session.ExpiresAt,
	})
}

// Logout handles POST /api/v1/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	if err := h.auth.Logout(r.Context(), session.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "LOGOUT_FAILED", "Logout failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Logged out successfully",
	})
}

// GetSession handles GET /api/v1/auth/session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())
	account := accountFrom(r.Context())

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": session.ID,
		"player": map[string]interface{}{
			"id":       account.ID,
			"username": account.Username,
			"shop_id":  account.ShopID,
			"status":   account.Status,
		},
		"created_at":       session.CreatedAt,
		"last_activity_at": session.LastActivityAt,
		"expires_at":       session.ExpiresAt,
	})
}

// === Wallet ===

// GetBalance handles GET /api/v1/wallet/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())

	balance, err := h.store.PlayerBalance(r.Context(), account.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "BALANCE_ERROR", "Failed to get balance")
		return
	}

	respondJSON(w, http.StatusOK, balance)
}

// === Games ===

// GetGames handles GET /api/v1/games
func (h *Handler) GetGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.store.ListGames(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "GAMES_ERROR", "Failed to list games")
		return
	}

	respondJSON(w, http.StatusOK, games)
}

// GetGame handles GET /api/v1/games/{id}
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	gameID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_GAME_ID", "Game id must be numeric")
		return
	}

	game, err := h.store.GetGame(r.Context(), gameID)
	if err != nil {
		respondError(w, http.StatusNotFound, "GAME_NOT_FOUND", "Game not found")
		return
	}

	respondJSON(w, http.StatusOK, game)
}

// === Rounds ===

// SpinRequest is the body of a spin call. BonusSubtype narrows the
// bonus strip set when a game carries more than one.
type SpinRequest struct {
	GameID       int64   `json:"game_id"`
	BetLevel     float64 `json:"bet_level"`
	Lines        int     `json:"lines"`
	Denomination float64 `json:"denomination"`
	SlotEvent    string  `json:"slot_event"`
	WinType      string  `json:"win_type"`
	BonusSubtype string  `json:"bonus_subtype,omitempty"`
	BonusRound   bool    `json:"bonus_round,omitempty"`
}

// Spin handles POST /api/v1/rounds/spin. The round runs inside one
// database transaction; any settlement error rolls back untouched.
func (h *Handler) Spin(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())

	var req SpinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if req.SlotEvent == "" {
		req.SlotEvent = "bet"
	}
	if req.WinType == "" {
		req.WinType = "normal"
	}

	if err := h.control.CheckAccess(r.Context(), account.ID, req.GameID); err != nil {
		h.respondControlError(w, err)
		return
	}

	result, err := h.store.RoundTx(r.Context(), account.ID, req.GameID,
		func(snap *settlement.Snapshot) (*settlement.Result, error) {
			snap.BetLevel = req.BetLevel
			snap.Lines = req.Lines
			snap.Denomination = req.Denomination
			snap.SlotEvent = req.SlotEvent
			snap.WinType = req.WinType
			snap.BonusSubtype = req.BonusSubtype
			snap.BonusRound = req.BonusRound
			return h.settlement.Settle(snap)
		})
	if err != nil {
		h.respondSpinError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// respondSpinError maps settlement failures onto API error codes.
func (h *Handler) respondSpinError(w http.ResponseWriter, err error) {
	var iv *ledger.InvariantViolation
	switch {
	case errors.Is(err, database.ErrPlayerNotFound):
		respondError(w, http.StatusNotFound, "PLAYER_NOT_FOUND", "Player not found")
	case errors.Is(err, database.ErrGameNotFound):
		respondError(w, http.StatusNotFound, "GAME_NOT_FOUND", "Game not found")
	case errors.Is(err, settlement.ErrRoundInactive):
		respondError(w, http.StatusForbidden, "ROUND_INACTIVE", "Game, shop or player is not active")
	case errors.Is(err, limits.ErrInvalidBet),
		errors.Is(err, limits.ErrInvalidLines),
		errors.Is(err, limits.ErrDenominationUnknown):
		respondError(w, http.StatusBadRequest, "INVALID_BET", err.Error())
	case errors.As(err, &iv):
		if iv.Kind == "balance" {
			respondError(w, http.StatusBadRequest, "INSUFFICIENT_BALANCE", "Insufficient balance")
			return
		}
		respondError(w, http.StatusConflict, "BANK_UNDERFUNDED", "Round cannot settle against the bank pool")
	default:
		h.log.Error("spin failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "ROUND_ERROR", "Round settlement failed")
	}
}

func (h *Handler) respondControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, control.ErrGamingDisabled):
		respondError(w, http.StatusServiceUnavailable, "GAMING_DISABLED", "Gaming is currently disabled")
	case errors.Is(err, control.ErrGameDisabled):
		respondError(w, http.StatusServiceUnavailable, "GAME_DISABLED", "Game is currently disabled")
	case errors.Is(err, control.ErrPlayerDisabled):
		respondError(w, http.StatusForbidden, "PLAYER_DISABLED", "Player account is disabled")
	default:
		respondError(w, http.StatusInternalServerError, "ACCESS_CHECK_FAILED", "Access check failed")
	}
}

// GetRoundHistory handles GET /api/v1/rounds/history
func (h *Handler) GetRoundHistory(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())

	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	history, err := h.store.RoundHistory(r.Context(), account.ID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "HISTORY_ERROR", "Failed to get round history")
		return
	}

	historyList := make([]map[string]interface{}, len(history))
	for i, entry := range history {
		historyList[i] = map[string]interface{}{
			"allbet":     entry.AllBet,
			"lines":      entry.Lines,
			"report_win": entry.ReportWin,
			"slot_event": entry.SlotEvent,
			"response":   jsoniter.RawMessage(entry.Response),
		}
	}

	respondJSON(w, http.StatusOK, historyList)
}

// === Operator control ===

// GetSystemStatus handles GET /api/v1/control/status
func (h *Handler) GetSystemStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.control.GetSystemStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STATUS_ERROR", "Failed to get system status")
		return
	}

	respondJSON(w, http.StatusOK, status)
}

type controlRequest struct {
	Reason string `json:"reason"`
}

// DisableGaming handles POST /api/v1/control/gaming/disable
func (h *Handler) DisableGaming(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())

	var req controlRequest
	json.NewDecoder(r.Body).Decode(&req)

	if err := h.control.DisableAllGaming(r.Context(), req.Reason, account.Username); err != nil {
		respondError(w, http.StatusInternalServerError, "CONTROL_ERROR", "Failed to disable gaming")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Gaming disabled"})
}

// EnableGaming handles POST /api/v1/control/gaming/enable
func (h *Handler) EnableGaming(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())

	if err := h.control.EnableAllGaming(r.Context(), account.Username); err != nil {
		respondError(w, http.StatusInternalServerError, "CONTROL_ERROR", "Failed to enable gaming")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Gaming enabled"})
}

// DisableGame handles POST /api/v1/control/games/{id}/disable
func (h *Handler) DisableGame(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())

	gameID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_GAME_ID", "Game id must be numeric")
		return
	}

	var req controlRequest
	json.NewDecoder(r.Body).Decode(&req)

	if err := h.control.DisableGame(r.Context(), gameID, req.Reason, account.Username); err != nil {
		respondError(w, http.StatusInternalServerError, "CONTROL_ERROR", "Failed to disable game")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Game disabled"})
}

// EnableGame handles POST /api/v1/control/games/{id}/enable
func (h *Handler) EnableGame(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())

	gameID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_GAME_ID", "Game id must be numeric")
		return
	}

	if err := h.control.EnableGame(r.Context(), gameID, account.Username); err != nil {
		respondError(w, http.StatusInternalServerError, "CONTROL_ERROR", "Failed to enable game")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Game enabled"})
}

// DisablePlayer handles POST /api/v1/control/players/{id}/disable
func (h *Handler) DisablePlayer(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())

	playerID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PLAYER_ID", "Player id must be numeric")
		return
	}

	var req controlRequest
	json.NewDecoder(r.Body).Decode(&req)

	if err := h.control.DisablePlayer(r.Context(), playerID, req.Reason, account.Username); err != nil {
		respondError(w, http.StatusInternalServerError, "CONTROL_ERROR", "Failed to disable player")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Player disabled"})
}

// EnablePlayer handles POST /api/v1/control/players/{id}/enable
func (h *Handler) EnablePlayer(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r.Context())

	playerID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PLAYER_ID", "Player id must be numeric")
		return
	}

	if err := h.control.EnablePlayer(r.Context(), playerID, account.Username); err != nil {
		respondError(w, http.StatusInternalServerError, "CONTROL_ERROR", "Failed to enable player")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Player enabled"})
}
