// Package database provides PostgreSQL access for the settlement core:
// the schema, and a transactional round store that loads entity rows
// under row locks and writes the settled diff back before commit.
package database

import (
	"database/sql"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/lib/pq" // PostgreSQL driver
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DB wraps the SQL database connection.
type DB struct {
	*sql.DB
}

// New creates a new database connection.
func New(driver, dsn string) (*DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Migrate creates all required tables.
func (db *DB) Migrate() error {
	schema := `
	-- Shops: one row per operator house configuration
	CREATE TABLE IF NOT EXISTS shops (
		id BIGSERIAL PRIMARY KEY,
		percent DOUBLE PRECISION NOT NULL DEFAULT 90,
		max_win DOUBLE PRECISION NOT NULL DEFAULT 0,
		currency VARCHAR(3) NOT NULL DEFAULT 'USD',
		is_blocked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	-- Players: balances in ledger units, promotional pools alongside
	CREATE TABLE IF NOT EXISTS players (
		id BIGSERIAL PRIMARY KEY,
		shop_id BIGINT NOT NULL REFERENCES shops(id),
		username VARCHAR(255) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		status VARCHAR(50) NOT NULL DEFAULT 'active',
		balance DOUBLE PRECISION NOT NULL DEFAULT 0,
		count_balance DOUBLE PRECISION NOT NULL DEFAULT 0,
		address DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_blocked BOOLEAN NOT NULL DEFAULT FALSE,
		last_login_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	-- Games: bank pools, turnover counters and strip/paytable data
	CREATE TABLE IF NOT EXISTS games (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) UNIQUE NOT NULL,
		view BOOLEAN NOT NULL DEFAULT TRUE,
		main_bank DOUBLE PRECISION NOT NULL DEFAULT 0,
		bonus_bank DOUBLE PRECISION NOT NULL DEFAULT 0,
		denominations JSONB NOT NULL DEFAULT '[1.0]',
		line_percents JSONB,
		reel_strips JSONB,
		paytable JSONB,
		rezerv DOUBLE PRECISION NOT NULL DEFAULT 0,
		stat_in DOUBLE PRECISION NOT NULL DEFAULT 0,
		stat_out DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	-- Jackpots: progressive pools, ordered per shop
	CREATE TABLE IF NOT EXISTS jackpots (
		id BIGSERIAL PRIMARY KEY,
		shop_id BIGINT NOT NULL REFERENCES shops(id),
		balance DOUBLE PRECISION NOT NULL DEFAULT 0,
		percent DOUBLE PRECISION NOT NULL DEFAULT 0,
		pay_sum DOUBLE PRECISION NOT NULL DEFAULT 0,
		start_balance DOUBLE PRECISION NOT NULL DEFAULT 0,
		user_id BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	-- Per-player and per-game key-value stores (player_id 0 is static)
	CREATE TABLE IF NOT EXISTS game_data (
		game_id BIGINT NOT NULL REFERENCES games(id),
		player_id BIGINT NOT NULL DEFAULT 0,
		key VARCHAR(255) NOT NULL,
		timelife BIGINT NOT NULL,
		payload JSONB,
		PRIMARY KEY (game_id, player_id, key)
	);

	-- Round logs: one row per settled round
	CREATE TABLE IF NOT EXISTS round_logs (
		id UUID PRIMARY KEY,
		player_id BIGINT NOT NULL REFERENCES players(id),
		game_id BIGINT NOT NULL REFERENCES games(id),
		response JSONB,
		allbet DOUBLE PRECISION NOT NULL,
		lines INTEGER NOT NULL,
		report_win DOUBLE PRECISION NOT NULL,
		slot_event VARCHAR(50) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	-- Sessions
	CREATE TABLE IF NOT EXISTS sessions (
		id UUID PRIMARY KEY,
		player_id BIGINT NOT NULL REFERENCES players(id),
		token TEXT NOT NULL,
		ip_address VARCHAR(45) NOT NULL,
		user_agent TEXT,
		created_at TIMESTAMP NOT NULL,
		last_activity_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		status VARCHAR(50) NOT NULL DEFAULT 'active'
	);

	-- Audit events
	CREATE TABLE IF NOT EXISTS audit_events (
		id UUID PRIMARY KEY,
		type VARCHAR(100) NOT NULL,
		severity VARCHAR(20) NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		player_id BIGINT,
		session_id UUID,
		description TEXT NOT NULL,
		data JSONB,
		ip_address VARCHAR(45),
		component VARCHAR(100) NOT NULL
	);

	-- Failed login attempts
	CREATE TABLE IF NOT EXISTS failed_logins (
		id UUID PRIMARY KEY,
		username VARCHAR(255) NOT NULL,
		ip_address VARCHAR(45) NOT NULL,
		attempted_at TIMESTAMP NOT NULL
	);

	-- Operator kill-switch state, persisted across restarts
	CREATE TABLE IF NOT EXISTS system_state (
		key VARCHAR(100) PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		updated_by VARCHAR(255) NOT NULL
	);

	CREATE TABLE IF NOT EXISTS disabled_games (
		game_id BIGINT PRIMARY KEY REFERENCES games(id),
		reason TEXT NOT NULL,
		disabled_at TIMESTAMP NOT NULL,
		disabled_by VARCHAR(255) NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_players_shop ON players(shop_id);
	CREATE INDEX IF NOT EXISTS idx_jackpots_shop ON jackpots(shop_id);
	CREATE INDEX IF NOT EXISTS idx_round_logs_player ON round_logs(player_id);
	CREATE INDEX IF NOT EXISTS idx_round_logs_created ON round_logs(created_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_player ON sessions(player_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_token ON sessions(token);
	CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_events_player ON audit_events(player_id);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Reset drops all tables (for testing).
func (db *DB) Reset() error {
	_, err := db.Exec(`
		DROP TABLE IF EXISTS disabled_games CASCADE;
		DROP TABLE IF EXISTS system_state CASCADE;
		DROP TABLE IF EXISTS failed_logins CASCADE;
		DROP TABLE IF EXISTS audit_events CASCADE;
		DROP TABLE IF EXISTS sessions CASCADE;
		DROP TABLE IF EXISTS round_logs CASCADE;
		DROP TABLE IF EXISTS game_data CASCADE;
		DROP TABLE IF EXISTS jackpots CASCADE;
		DROP TABLE IF EXISTS games CASCADE;
		DROP TABLE IF EXISTS players CASCADE;
		DROP TABLE IF EXISTS shops CASCADE;
	`)
	return err
}

// CleanData truncates all tables without dropping them (for testing).
func (db *DB) CleanData() error {
	_, err := db.Exec(`
		TRUNCATE TABLE disabled_games, system_state, failed_logins, audit_events,
		               sessions, round_logs, game_data, jackpots, games, players, shops CASCADE;
	`)
	return err
}

// scanJSON unmarshals a nullable JSONB column into dst, leaving dst
// untouched for NULL.
func scanJSON(raw []byte, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
