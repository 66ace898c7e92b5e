// Package control provides the operator kill-switch over settlement:
// all gaming, a single game, or a single player can be disabled on
// demand, with every state change persisted and audited.
package control

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avolkov/slotcore/internal/audit"
)

var (
	ErrGamingDisabled = errors.New("gaming is currently disabled")
	ErrGameDisabled   = errors.New("game is currently disabled")
	ErrPlayerDisabled = errors.New("player account is disabled")
)

// SystemStatus is the current gaming system state.
type SystemStatus struct {
	GamingEnabled  bool       `json:"gaming_enabled"`
	DisabledAt     *time.Time `json:"disabled_at,omitempty"`
	DisabledBy     string     `json:"disabled_by,omitempty"`
	DisabledReason string     `json:"disabled_reason,omitempty"`
	ActiveSessions int64      `json:"active_sessions"`
}

// Service holds the in-memory kill-switch state, mirrored to the
// database so it survives restarts.
type Service struct {
	db    *sql.DB
	audit *audit.Service

	mu             sync.RWMutex
	gamingEnabled  bool
	disabledGames  map[int64]bool
	disabledAt     *time.Time
	disabledBy     string
	disabledReason string
}

// New creates a new control service.
func New(db *sql.DB, auditSvc *audit.Service) *Service {
	return &Service{
		db:            db,
		audit:         auditSvc,
		gamingEnabled: true,
		disabledGames: make(map[int64]bool),
	}
}

// DisableAllGaming stops all settlement activity.
func (s *Service) DisableAllGaming(ctx context.Context, reason, authorizedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.gamingEnabled = false
	s.disabledAt = &now
	s.disabledBy = authorizedBy
	s.disabledReason = reason

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_state (key, value, updated_at, updated_by)
		VALUES ('gaming_enabled', 'false', $1, $2)
		ON CONFLICT (key) DO UPDATE SET value = 'false', updated_at = $1, updated_by = $2
	`, now, authorizedBy)
	if err != nil {
		return fmt.Errorf("failed to persist gaming state: %w", err)
	}

	s.audit.Log(ctx, "gaming_disabled", audit.SeverityCritical,
		fmt.Sprintf("All gaming disabled: %s", reason),
		map[string]interface{}{
			"authorized_by": authorizedBy,
			"reason":        reason,
		},
		audit.WithComponent("control"))

	return nil
}

// EnableAllGaming resumes settlement.
func (s *Service) EnableAllGaming(ctx context.Context, authorizedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.gamingEnabled = true
	s.disabledAt = nil
	s.disabledBy = ""
	s.disabledReason = ""

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_state (key, value, updated_at, updated_by)
		VALUES ('gaming_enabled', 'true', $1, $2)
		ON CONFLICT (key) DO UPDATE SET value = 'true', updated_at = $1, updated_by = $2
	`, now, authorizedBy)
	if err != nil {
		return fmt.Errorf("failed to persist gaming state: %w", err)
	}

	s.audit.Log(ctx, "gaming_enabled", audit.SeverityInfo,
		"All gaming enabled",
		map[string]interface{}{"authorized_by": authorizedBy},
		audit.WithComponent("control"))

	return nil
}

// DisableGame disables a single game.
func (s *Service) DisableGame(ctx context.Context, gameID int64, reason, authorizedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disabledGames[gameID] = true

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO disabled_games (game_id, reason, disabled_at, disabled_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (game_id) DO UPDATE SET reason = $2, disabled_at = $3, disabled_by = $4
	`, gameID, reason, now, authorizedBy)
	if err != nil {
		return fmt.Errorf("failed to persist game state: %w", err)
	}

	s.audit.Log(ctx, "game_disabled", audit.SeverityWarning,
		fmt.Sprintf("Game disabled: %d - %s", gameID, reason),
		map[string]interface{}{
			"game_id":       gameID,
			"reason":        reason,
			"authorized_by": authorizedBy,
		},
		audit.WithComponent("control"))

	return nil
}

// EnableGame enables a single game.
func (s *Service) EnableGame(ctx context.Context, gameID int64, authorizedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.disabledGames, gameID)

	_, err := s.db.ExecContext(ctx, `DELETE FROM disabled_games WHERE game_id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("failed to persist game state: %w", err)
	}

	s.audit.Log(ctx, "game_enabled", audit.SeverityInfo,
		fmt.Sprintf("Game enabled: %d", gameID),
		map[string]interface{}{
			"game_id":       gameID,
			"authorized_by": authorizedBy,
		},
		audit.WithComponent("control"))

	return nil
}

// DisablePlayer blocks a player's account and terminates their live
// sessions.
func (s *Service) DisablePlayer(ctx context.Context, playerID int64, reason, authorizedBy string) error {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		UPDATE players SET is_blocked = TRUE, updated_at = $1 WHERE id = $2
	`, now, playerID)
	if err != nil {
		return fmt.Errorf("failed to disable player: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE sessions SET status = 'expired' WHERE player_id = $1 AND status = 'active'
	`, playerID)
	if err != nil {
		return fmt.Errorf("failed to terminate sessions: %w", err)
	}

	s.audit.Log(ctx, audit.EventBalanceAdjustment, audit.SeverityWarning,
		fmt.Sprintf("Player account disabled: %s", reason),
		map[string]interface{}{
			"reason":        reason,
			"authorized_by": authorizedBy,
		},
		audit.WithPlayer(playerID), audit.WithComponent("control"))

	return nil
}

// EnablePlayer unblocks a player's account.
func (s *Service) EnablePlayer(ctx context.Context, playerID int64, authorizedBy string) error {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		UPDATE players SET is_blocked = FALSE, updated_at = $1 WHERE id = $2
	`, now, playerID)
	if err != nil {
		return fmt.Errorf("failed to enable player: %w", err)
	}

	s.audit.Log(ctx, audit.EventBalanceAdjustment, audit.SeverityInfo,
		"Player account enabled",
		map[string]interface{}{"authorized_by": authorizedBy},
		audit.WithPlayer(playerID), audit.WithComponent("control"))

	return nil
}

// IsGamingEnabled checks if gaming is currently enabled.
func (s *Service) IsGamingEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gamingEnabled
}

// IsGameEnabled checks if a specific game is enabled.
func (s *Service) IsGameEnabled(gameID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.disabledGames[gameID]
}

// GetSystemStatus returns current gaming system status.
func (s *Service) GetSystemStatus(ctx context.Context) (*SystemStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var activeSessions int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions WHERE status = 'active'
	`).Scan(&activeSessions)
	if err != nil {
		return nil, err
	}

	return &SystemStatus{
		GamingEnabled:  s.gamingEnabled,
		DisabledAt:     s.disabledAt,
		DisabledBy:     s.disabledBy,
		DisabledReason: s.disabledReason,
		ActiveSessions: activeSessions,
	}, nil
}

// CheckAccess verifies a player may settle rounds on a game right now.
func (s *Service) CheckAccess(ctx context.Context, playerID, gameID int64) error {
	if !s.IsGamingEnabled() {
		return ErrGamingDisabled
	}

	if !s.IsGameEnabled(gameID) {
		return ErrGameDisabled
	}

	var status string
	var isBlocked bool
	err := s.db.QueryRowContext(ctx,
		`SELECT status, is_blocked FROM players WHERE id = $1`, playerID).
		Scan(&status, &isBlocked)
	if err != nil {
		return err
	}

	if status != "active" || isBlocked {
		return ErrPlayerDisabled
	}

	return nil
}

// LoadState loads persisted state from the database on startup.
func (s *Service) LoadState(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_state WHERE key = 'gaming_enabled'`).Scan(&value)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	s.gamingEnabled = value != "false"

	rows, err := s.db.QueryContext(ctx, `SELECT game_id FROM disabled_games`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var gameID int64
		if err := rows.Scan(&gameID); err != nil {
			return err
		}
		s.disabledGames[gameID] = true
	}

	return rows.Err()
}
