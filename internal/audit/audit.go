// Package audit records the significant events of the settlement core:
// round outcomes, jackpot payouts, invariant violations and account
// activity, in an append-only table.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event types recorded by the settlement core.
const (
	EventPlayerLogin        = "player_login"
	EventPlayerLogout       = "player_logout"
	EventLoginFailed        = "login_failed"
	EventSessionExpired     = "session_expired"
	EventRoundSettled       = "round_settled"
	EventJackpotPayout      = "jackpot_payout"
	EventLargeWin           = "large_win"
	EventInvariantViolation = "invariant_violation"
	EventBalanceAdjustment  = "balance_adjustment"
	EventSystemError        = "system_error"
	EventRNGHealthCheck     = "rng_health_check"
)

// Severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Event is one audit trail entry.
type Event struct {
	ID          string              `json:"id"`
	Type        string              `json:"type"`
	Severity    string              `json:"severity"`
	Timestamp   time.Time           `json:"timestamp"`
	PlayerID    *int64              `json:"player_id,omitempty"`
	SessionID   *string             `json:"session_id,omitempty"`
	Description string              `json:"description"`
	Data        jsoniter.RawMessage `json:"data,omitempty"`
	IPAddress   string              `json:"ip_address,omitempty"`
	Component   string              `json:"component"`
}

// Service provides audit logging functionality.
type Service struct {
	db  *sql.DB
	log *zap.Logger
}

// New creates a new audit service.
func New(db *sql.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, log: logger}
}

// LogEvent records a significant event.
func (s *Service) LogEvent(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Component == "" {
		event.Component = "slotcore"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, type, severity, timestamp, player_id, session_id, description, data, ip_address, component)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, event.ID, event.Type, event.Severity, event.Timestamp, event.PlayerID, event.SessionID,
		event.Description, string(event.Data), event.IPAddress, event.Component)

	return err
}

// Log is a convenience method for logging events.
func (s *Service) Log(ctx context.Context, eventType, severity, description string, data interface{}, opts ...EventOption) error {
	event := &Event{
		ID:          uuid.New().String(),
		Type:        eventType,
		Severity:    severity,
		Timestamp:   time.Now().UTC(),
		Description: description,
		Component:   "slotcore",
	}

	if data != nil {
		jsonData, err := json.Marshal(data)
		if err == nil {
			event.Data = jsonData
		}
	}

	for _, opt := range opts {
		opt(event)
	}

	return s.LogEvent(ctx, event)
}

// RoundEvent records a settlement round event. It satisfies the
// settlement service's Recorder and never fails the round: a write
// error is logged and swallowed.
func (s *Service) RoundEvent(eventType, severity, description string, playerID int64, data map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Log(ctx, eventType, severity, description, data, WithPlayer(playerID)); err != nil {
		s.log.Error("audit write failed",
			zap.String("event_type", eventType),
			zap.Int64("player_id", playerID),
			zap.Error(err))
	}
}

// EventOption is a functional option for configuring audit events.
type EventOption func(*Event)

// WithPlayer sets the player ID for the event.
func WithPlayer(playerID int64) EventOption {
	return func(e *Event) {
		e.PlayerID = &playerID
	}
}

// WithSession sets the session ID for the event.
func WithSession(sessionID string) EventOption {
	return func(e *Event) {
		e.SessionID = &sessionID
	}
}

// WithIP sets the IP address for the event.
func WithIP(ip string) EventOption {
	return func(e *Event) {
		e.IPAddress = ip
	}
}

// WithComponent sets the component for the event.
func WithComponent(component string) EventOption {
	return func(e *Event) {
		e.Component = component
	}
}

// GetEvents retrieves audit events with optional filtering.
func (s *Service) GetEvents(ctx context.Context, filter *EventFilter) ([]*Event, error) {
	query := `SELECT id, type, severity, timestamp, player_id, session_id, description, data, ip_address, component
			  FROM audit_events WHERE 1=1`
	args := []interface{}{}
	paramIdx := 1

	if filter != nil {
		if filter.PlayerID != 0 {
			query += fmt.Sprintf(" AND player_id = $%d", paramIdx)
			args = append(args, filter.PlayerID)
			paramIdx++
		}
		if filter.Type != "" {
			query += fmt.Sprintf(" AND type = $%d", paramIdx)
			args = append(args, filter.Type)
			paramIdx++
		}
		if !filter.From.IsZero() {
			query += fmt.Sprintf(" AND timestamp >= $%d", paramIdx)
			args = append(args, filter.From)
			paramIdx++
		}
		if !filter.To.IsZero() {
			query += fmt.Sprintf(" AND timestamp <= $%d", paramIdx)
			args = append(args, filter.To)
			paramIdx++
		}
	}

	query += " ORDER BY timestamp DESC"

	if filter != nil && filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", paramIdx)
		args = append(args, filter.Limit)
	} else {
		query += " LIMIT 100"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var event Event
		var playerID sql.NullInt64
		var sessionID sql.NullString
		var data string

		err := rows.Scan(&event.ID, &event.Type, &event.Severity, &event.Timestamp,
			&playerID, &sessionID, &event.Description, &data, &event.IPAddress, &event.Component)
		if err != nil {
			return nil, err
		}

		if playerID.Valid {
			event.PlayerID = &playerID.Int64
		}
		if sessionID.Valid {
			event.SessionID = &sessionID.String
		}
		if data != "" {
			event.Data = jsoniter.RawMessage(data)
		}

		events = append(events, &event)
	}

	return events, rows.Err()
}

// EventFilter defines criteria for filtering audit events.
type EventFilter struct {
	PlayerID int64
	Type     string
	From     time.Time
	To       time.Time
	Limit    int
}
