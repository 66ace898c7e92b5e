// Package auth provides player authentication and session management
// for the settlement API: bcrypt credential checks, JWT-backed sessions
// and failed-login lockout.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avolkov/slotcore/internal/audit"
	"github.com/avolkov/slotcore/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrAccountNotActive   = errors.New("account is not active")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionNotFound    = errors.New("session not found")
	ErrUserExists         = errors.New("username already exists")
)

// Session statuses.
const (
	SessionStatusActive       = "active"
	SessionStatusExpired      = "expired"
	SessionStatusLoggedOut    = "logged_out"
	SessionStatusRequiresAuth = "requires_auth"
)

// Session is one authenticated API session.
type Session struct {
	ID             string    `json:"id"`
	PlayerID       int64     `json:"player_id"`
	Token          string    `json:"-"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Status         string    `json:"status"`
}

// Account is the identity view of a player row, without the financial
// columns the settlement core owns.
type Account struct {
	ID          int64      `json:"id"`
	ShopID      int64      `json:"shop_id"`
	Username    string     `json:"username"`
	Status      string     `json:"status"`
	IsBlocked   bool       `json:"is_blocked"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Service provides authentication functionality.
type Service struct {
	db     *sql.DB
	config *config.AuthConfig
	audit  *audit.Service
}

// New creates a new auth service.
func New(db *sql.DB, cfg *config.AuthConfig, auditSvc *audit.Service) *Service {
	return &Service{
		db:     db,
		config: cfg,
		audit:  auditSvc,
	}
}

// RegisterRequest contains registration data.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	ShopID   int64  `json:"shop_id"`
}

// Register creates a new player account under a shop.
func (s *Service) Register(ctx context.Context, req *RegisterRequest, ip string) (*Account, error) {
	if req.Username == "" || req.Password == "" {
		return nil, errors.New("username and password are required")
	}
	if len(req.Password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}
	if req.ShopID == 0 {
		return nil, errors.New("shop is required")
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM players WHERE username = $1",
		req.Username).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if exists > 0 {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &Account{
		ShopID:   req.ShopID,
		Username: req.Username,
		Status:   "active",
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO players (shop_id, username, password_hash, status)
		VALUES ($1, $2, $3, $4) RETURNING id
	`, req.ShopID, req.Username, string(hash), account.Status).Scan(&account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	s.audit.Log(ctx, audit.EventPlayerLogin, audit.SeverityInfo,
		fmt.Sprintf("Player registered: %s", account.Username),
		map[string]interface{}{"shop_id": req.ShopID},
		audit.WithPlayer(account.ID), audit.WithIP(ip))

	return account, nil
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse contains login result.
type LoginResponse struct {
	Account *Account `json:"account"`
	Session *Session `json:"session"`
	Token   string   `json:"token"`
}

// Login authenticates a player and opens a session.
func (s *Service) Login(ctx context.Context, req *LoginRequest, ip, userAgent string) (*LoginResponse, error) {
	var account Account
	var passwordHash string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shop_id, username, password_hash, status, is_blocked, last_login_at
		FROM players WHERE username = $1
	`, req.Username).Scan(
		&account.ID, &account.ShopID, &account.Username, &passwordHash,
		&account.Status, &account.IsBlocked, &account.LastLoginAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.recordFailedLogin(ctx, req.Username, ip)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if s.isLockedOut(ctx, req.Username) {
		return nil, ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
		s.recordFailedLogin(ctx, req.Username, ip)
		s.audit.Log(ctx, audit.EventLoginFailed, audit.SeverityWarning,
			fmt.Sprintf("Failed login for %s", req.Username), nil,
			audit.WithPlayer(account.ID), audit.WithIP(ip))
		return nil, ErrInvalidCredentials
	}

	if account.Status != "active" || account.IsBlocked {
		return nil, ErrAccountNotActive
	}

	session, token, err := s.createSession(ctx, &account, ip, userAgent)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	s.db.ExecContext(ctx, "UPDATE players SET last_login_at = $1, updated_at = $2 WHERE id = $3",
		now, now, account.ID)
	account.LastLoginAt = &now

	s.db.ExecContext(ctx, "DELETE FROM failed_logins WHERE username = $1", req.Username)

	s.audit.Log(ctx, audit.EventPlayerLogin, audit.SeverityInfo,
		fmt.Sprintf("Player logged in: %s", account.Username),
		map[string]interface{}{"session_id": session.ID},
		audit.WithPlayer(account.ID), audit.WithSession(session.ID), audit.WithIP(ip))

	return &LoginResponse{
		Account: &account,
		Session: session,
		Token:   token,
	}, nil
}

// createSession creates a new session with a signed JWT token.
func (s *Service) createSession(ctx context.Context, account *Account, ip, userAgent string) (*Session, string, error) {
	now := time.Now().UTC()
	session := &Session{
		ID:             uuid.New().String(),
		PlayerID:       account.ID,
		IPAddress:      ip,
		UserAgent:      userAgent,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.config.TokenExpiry),
		Status:         SessionStatusActive,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"session_id": session.ID,
		"player_id":  account.ID,
		"username":   account.Username,
		"exp":        session.ExpiresAt.Unix(),
		"iat":        now.Unix(),
	})

	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign token: %w", err)
	}

	session.Token = tokenString

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, player_id, token, ip_address, user_agent, created_at, last_activity_at, expires_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, session.ID, session.PlayerID, session.Token, session.IPAddress, session.UserAgent,
		session.CreatedAt, session.LastActivityAt, session.ExpiresAt, session.Status)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	return session, tokenString, nil
}

// ValidateToken validates a JWT token and returns the live session and
// its account.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*Session, *Account, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil {
		return nil, nil, ErrSessionExpired
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, nil, ErrSessionExpired
	}

	sessionID, ok := claims["session_id"].(string)
	if !ok {
		return nil, nil, ErrSessionExpired
	}

	var session Session
	err = s.db.QueryRowContext(ctx, `
		SELECT id, player_id, token, ip_address, user_agent, created_at, last_activity_at, expires_at, status
		FROM sessions WHERE id = $1
	`, sessionID).Scan(
		&session.ID, &session.PlayerID, &session.Token, &session.IPAddress, &session.UserAgent,
		&session.CreatedAt, &session.LastActivityAt, &session.ExpiresAt, &session.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, err
	}

	if session.Status != SessionStatusActive {
		return nil, nil, ErrSessionExpired
	}

	if time.Now().After(session.ExpiresAt) {
		s.db.ExecContext(ctx, "UPDATE sessions SET status = $1 WHERE id = $2",
			SessionStatusExpired, session.ID)
		return nil, nil, ErrSessionExpired
	}

	if time.Since(session.LastActivityAt) > s.config.SessionTimeout {
		s.db.ExecContext(ctx, "UPDATE sessions SET status = $1 WHERE id = $2",
			SessionStatusRequiresAuth, session.ID)
		return nil, nil, ErrSessionExpired
	}

	account, err := s.GetAccount(ctx, session.PlayerID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	s.db.ExecContext(ctx, "UPDATE sessions SET last_activity_at = $1 WHERE id = $2", now, session.ID)
	session.LastActivityAt = now

	return &session, account, nil
}

// Logout terminates a session.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE sessions SET status = $1 WHERE id = $2",
		SessionStatusLoggedOut, sessionID)
	if err != nil {
		return err
	}

	s.audit.Log(ctx, audit.EventPlayerLogout, audit.SeverityInfo,
		"Player logged out",
		map[string]interface{}{"session_id": sessionID},
		audit.WithSession(sessionID))

	return nil
}

// GetAccount retrieves the identity view of a player by ID.
func (s *Service) GetAccount(ctx context.Context, playerID int64) (*Account, error) {
	var account Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shop_id, username, status, is_blocked, last_login_at
		FROM players WHERE id = $1
	`, playerID).Scan(
		&account.ID, &account.ShopID, &account.Username, &account.Status,
		&account.IsBlocked, &account.LastLoginAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("player not found")
		}
		return nil, err
	}
	return &account, nil
}

// isLockedOut checks recent failed attempts against the lockout policy.
func (s *Service) isLockedOut(ctx context.Context, username string) bool {
	cutoff := time.Now().UTC().Add(-s.config.LockoutDuration)
	var count int
	s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM failed_logins WHERE username = $1 AND attempted_at > $2",
		username, cutoff).Scan(&count)
	return count >= s.config.MaxFailedAttempts
}

// recordFailedLogin records a failed login attempt.
func (s *Service) recordFailedLogin(ctx context.Context, username, ip string) {
	s.db.ExecContext(ctx, `
		INSERT INTO failed_logins (id, username, ip_address, attempted_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.New().String(), username, ip, time.Now().UTC())
}
