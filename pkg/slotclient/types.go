package slotclient

import (
	"encoding/json"
	"time"
)

// Error codes returned by the settlement API
const (
	ErrInvalidRequest      = "INVALID_REQUEST"
	ErrInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrAccountLocked       = "ACCOUNT_LOCKED"
	ErrAccountInactive     = "ACCOUNT_INACTIVE"
	ErrUserExists          = "USER_EXISTS"
	ErrSessionExpired      = "SESSION_EXPIRED"
	ErrInvalidBet          = "INVALID_BET"
	ErrInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrBankUnderfunded     = "BANK_UNDERFUNDED"
	ErrRoundInactive       = "ROUND_INACTIVE"
	ErrGamingDisabled      = "GAMING_DISABLED"
	ErrGameDisabled        = "GAME_DISABLED"
	ErrPlayerDisabled      = "PLAYER_DISABLED"
	ErrGameNotFound        = "GAME_NOT_FOUND"
)

// APIError represents an error response from the API
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Message
}

// envelope wraps every API response with either data or error.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
}

// RegisterRequest is the request body for /api/v1/auth/register
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	ShopID   int64  `json:"shop_id"`
}

// RegisterResult is the result of a successful registration
type RegisterResult struct {
	PlayerID int64  `json:"player_id"`
	Username string `json:"username"`
	ShopID   int64  `json:"shop_id"`
}

// PlayerInfo identifies the authenticated player
type PlayerInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	ShopID   int64  `json:"shop_id"`
	Status   string `json:"status,omitempty"`
}

// LoginResult is the result of a successful login
type LoginResult struct {
	Token     string     `json:"token"`
	SessionID string     `json:"session_id"`
	Player    PlayerInfo `json:"player"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// BalanceResult is the result of a balance query
type BalanceResult struct {
	Balance      float64 `json:"balance"`
	BonusCredit  float64 `json:"count_balance"`
	BonusReserve float64 `json:"address"`
	Currency     string  `json:"currency"`
}

// GameInfo is one entry of the game catalogue
type GameInfo struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	View          bool      `json:"view"`
	Denominations []float64 `json:"denominations"`
}

// SpinRequest is the request body for /api/v1/rounds/spin
type SpinRequest struct {
	GameID       int64   `json:"game_id"`
	BetLevel     float64 `json:"bet_level"`
	Lines        int     `json:"lines"`
	Denomination float64 `json:"denomination,omitempty"`
	SlotEvent    string  `json:"slot_event,omitempty"`
	WinType      string  `json:"win_type,omitempty"`
	BonusSubtype string  `json:"bonus_subtype,omitempty"`
	BonusRound   bool    `json:"bonus_round,omitempty"`
}

// SpinResult is the settled round returned by the spin endpoint. The
// reel outcome and state diff are passed through unparsed; their shape
// is game-specific.
type SpinResult struct {
	RoundID      string  `json:"round_id"`
	Balance      float64 `json:"balance"`
	BonusCredit  float64 `json:"count_balance"`
	BonusReserve float64 `json:"address"`
	MainBank     float64 `json:"main_bank"`
	BonusBank    float64 `json:"bonus_bank"`
	JackPay      string  `json:"jack_pay,omitempty"`
	AllBet       float64 `json:"allbet"`
	Win          float64 `json:"win"`

	Outcome json.RawMessage `json:"outcome,omitempty"`
	State   json.RawMessage `json:"state,omitempty"`
}

// RoundLogEntry is one entry of the player's round history
type RoundLogEntry struct {
	AllBet    float64         `json:"allbet"`
	Lines     int             `json:"lines"`
	ReportWin float64         `json:"report_win"`
	SlotEvent string          `json:"slot_event"`
	Response  json.RawMessage `json:"response,omitempty"`
}

// RNGHealth mirrors the server's RNG monitoring snapshot.
type RNGHealth struct {
	Healthy         bool    `json:"healthy"`
	ChiSquare       float64 `json:"chi_square"`
	ChiSquarePassed bool    `json:"chi_square_passed"`
}

// HealthResult is the result of the health endpoint
type HealthResult struct {
	Status string    `json:"status"`
	RNG    RNGHealth `json:"rng_status"`
}

// ClientConfig holds the configuration for the slotcore client
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// DefaultConfig returns a default client configuration
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:    30 * time.Second,
		RetryCount: 3,
	}
}
