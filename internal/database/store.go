package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avolkov/slotcore/internal/domain"
	"github.com/avolkov/slotcore/internal/settlement"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrPlayerNotFound = errors.New("database: player not found")
	ErrGameNotFound   = errors.New("database: game not found")
)

// Store loads round snapshots and persists settled diffs. Every round
// runs in one transaction with the player, shop, game and jackpot rows
// locked for its duration.
type Store struct {
	db  *DB
	log *zap.Logger
}

// NewStore creates a round store.
func NewStore(db *DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, log: logger}
}

// RoundTx runs one settlement round transactionally: the snapshot is
// loaded under FOR UPDATE row locks, fn settles over it, and the
// resulting diff is written back before commit. fn returning an error
// rolls everything back.
func (s *Store) RoundTx(ctx context.Context, playerID, gameID int64, fn func(*settlement.Snapshot) (*settlement.Result, error)) (*settlement.Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin round transaction: %w", err)
	}
	defer tx.Rollback()

	snap, err := s.loadSnapshot(ctx, tx, playerID, gameID)
	if err != nil {
		return nil, err
	}

	result, err := fn(snap)
	if err != nil {
		return nil, err
	}

	if err := s.saveResult(ctx, tx, playerID, gameID, result); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit round: %w", err)
	}
	return result, nil
}

func (s *Store) loadSnapshot(ctx context.Context, tx *sql.Tx, playerID, gameID int64) (*settlement.Snapshot, error) {
	snap := &settlement.Snapshot{}

	err := tx.QueryRowContext(ctx, `
		SELECT id, shop_id, status, balance, count_balance, address, is_blocked
		FROM players WHERE id = $1 FOR UPDATE
	`, playerID).Scan(&snap.Player.ID, &snap.Player.ShopID, &snap.Player.Status,
		&snap.Player.Balance, &snap.Player.BonusCredit, &snap.Player.BonusReserve,
		&snap.Player.IsBlocked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load player %d: %w", playerID, err)
	}

	err = tx.QueryRowContext(ctx, `
		SELECT id, percent, max_win, currency, is_blocked
		FROM shops WHERE id = $1 FOR UPDATE
	`, snap.Player.ShopID).Scan(&snap.Shop.ID, &snap.Shop.Percent,
		&snap.Shop.MaxWin, &snap.Shop.Currency, &snap.Shop.IsBlocked)
	if err != nil {
		return nil, fmt.Errorf("failed to load shop %d: %w", snap.Player.ShopID, err)
	}

	var view bool
	var denominations, linePercents, reelStrips, paytable []byte
	err = tx.QueryRowContext(ctx, `
		SELECT id, name, view, main_bank, bonus_bank, denominations,
		       line_percents, reel_strips, paytable, rezerv, stat_in, stat_out
		FROM games WHERE id = $1 FOR UPDATE
	`, gameID).Scan(&snap.Game.ID, &snap.Game.Name, &view,
		&snap.Game.MainBank, &snap.Game.BonusBank, &denominations,
		&linePercents, &reelStrips, &paytable,
		&snap.Game.Reserve, &snap.Game.StatIn, &snap.Game.StatOut)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load game %d: %w", gameID, err)
	}
	snap.Game.View = &view
	if err := scanJSON(denominations, &snap.Game.Denominations); err != nil {
		return nil, fmt.Errorf("failed to decode denominations: %w", err)
	}
	if err := scanJSON(linePercents, &snap.Game.LinePercents); err != nil {
		return nil, fmt.Errorf("failed to decode line percents: %w", err)
	}
	if err := scanJSON(reelStrips, &snap.ReelStrips); err != nil {
		return nil, fmt.Errorf("failed to decode reel strips: %w", err)
	}
	if err := scanJSON(paytable, &snap.Paytable); err != nil {
		return nil, fmt.Errorf("failed to decode paytable: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, shop_id, balance, percent, pay_sum, start_balance, user_id
		FROM jackpots WHERE shop_id = $1 ORDER BY id FOR UPDATE
	`, snap.Player.ShopID)
	if err != nil {
		return nil, fmt.Errorf("failed to load jackpots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var jp domain.JackpotSnapshot
		if err := rows.Scan(&jp.ID, &jp.ShopID, &jp.Balance, &jp.Percent,
			&jp.PaySum, &jp.StartBalance, &jp.OwnerUserID); err != nil {
			return nil, fmt.Errorf("failed to scan jackpot: %w", err)
		}
		snap.Jackpots = append(snap.Jackpots, jp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load jackpots: %w", err)
	}

	snap.GameData, err = s.loadGameData(ctx, tx, gameID, playerID)
	if err != nil {
		return nil, err
	}
	snap.GameDataStatic, err = s.loadGameData(ctx, tx, gameID, 0)
	if err != nil {
		return nil, err
	}

	return snap, nil
}

func (s *Store) loadGameData(ctx context.Context, tx *sql.Tx, gameID, playerID int64) (map[string]settlement.StoredValue, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT key, timelife, payload FROM game_data
		WHERE game_id = $1 AND player_id = $2 AND timelife > $3
	`, gameID, playerID, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to load game data: %w", err)
	}
	defer rows.Close()

	data := make(map[string]settlement.StoredValue)
	for rows.Next() {
		var key string
		var sv settlement.StoredValue
		var payload []byte
		if err := rows.Scan(&key, &sv.ExpiresAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan game data: %w", err)
		}
		if err := scanJSON(payload, &sv.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode game data payload: %w", err)
		}
		data[key] = sv
	}
	return data, rows.Err()
}

func (s *Store) saveResult(ctx context.Context, tx *sql.Tx, playerID, gameID int64, res *settlement.Result) error {
	// The player row holds ledger units; res.Balance is the display
	// rendition and must never reach storage.
	_, err := tx.ExecContext(ctx, `
		UPDATE players SET balance = $1, count_balance = $2, address = $3, updated_at = NOW()
		WHERE id = $4
	`, res.StoredBalance, res.BonusCredit, res.BonusReserve, playerID)
	if err != nil {
		return fmt.Errorf("failed to update player %d: %w", playerID, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE games SET main_bank = $1, bonus_bank = $2, stat_in = $3, stat_out = $4, updated_at = NOW()
		WHERE id = $5
	`, res.MainBank, res.BonusBank, res.StatIn, res.StatOut, gameID)
	if err != nil {
		return fmt.Errorf("failed to update game %d: %w", gameID, err)
	}

	for _, jp := range res.Jackpots {
		_, err = tx.ExecContext(ctx, `
			UPDATE jackpots SET balance = $1, updated_at = NOW() WHERE id = $2
		`, jp.Balance, jp.ID)
		if err != nil {
			return fmt.Errorf("failed to update jackpot %d: %w", jp.ID, err)
		}
	}

	for _, entry := range res.LogReport {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO round_logs (id, player_id, game_id, response, allbet, lines, report_win, slot_event, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		`, uuid.New().String(), playerID, gameID, entry.Response,
			entry.AllBet, entry.Lines, entry.ReportWin, entry.SlotEvent)
		if err != nil {
			return fmt.Errorf("failed to insert round log: %w", err)
		}
	}

	if err := s.saveGameData(ctx, tx, gameID, playerID, res.GameData); err != nil {
		return err
	}
	return s.saveGameData(ctx, tx, gameID, 0, res.GameDataStatic)
}

// saveGameData upserts the round's key-value entries. A player id of
// zero addresses the static store shared across players.
func (s *Store) saveGameData(ctx context.Context, tx *sql.Tx, gameID, playerID int64, data map[string]settlement.StoredValue) error {
	for key, sv := range data {
		payload, err := json.Marshal(sv.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode game data %q: %w", key, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO game_data (game_id, player_id, key, timelife, payload)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (game_id, player_id, key)
			DO UPDATE SET timelife = EXCLUDED.timelife, payload = EXCLUDED.payload
		`, gameID, playerID, key, sv.ExpiresAt, payload)
		if err != nil {
			return fmt.Errorf("failed to save game data %q: %w", key, err)
		}
	}
	return nil
}

// PurgeExpiredGameData deletes key-value entries past their lifetime.
func (s *Store) PurgeExpiredGameData(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM game_data WHERE timelife <= $1
	`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge game data: %w", err)
	}
	return res.RowsAffected()
}

// BalanceView is the wallet-facing read of a player's money columns.
type BalanceView struct {
	Balance      float64 `json:"balance"`
	BonusCredit  float64 `json:"count_balance"`
	BonusReserve float64 `json:"address"`
	Currency     string  `json:"currency"`
}

// PlayerBalance reads a player's balance and promotional pools together
// with the shop currency.
func (s *Store) PlayerBalance(ctx context.Context, playerID int64) (*BalanceView, error) {
	var bv BalanceView
	err := s.db.QueryRowContext(ctx, `
		SELECT p.balance, p.count_balance, p.address, sh.currency
		FROM players p JOIN shops sh ON sh.id = p.shop_id
		WHERE p.id = $1
	`, playerID).Scan(&bv.Balance, &bv.BonusCredit, &bv.BonusReserve, &bv.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load balance for player %d: %w", playerID, err)
	}
	return &bv, nil
}

// GameInfo is the catalogue view of one game row.
type GameInfo struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	View          bool      `json:"view"`
	Denominations []float64 `json:"denominations"`
}

// ListGames returns the visible games catalogue, ordered by name.
func (s *Store) ListGames(ctx context.Context) ([]GameInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, view, denominations FROM games ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []GameInfo
	for rows.Next() {
		var g GameInfo
		var denominations []byte
		if err := rows.Scan(&g.ID, &g.Name, &g.View, &denominations); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		if err := scanJSON(denominations, &g.Denominations); err != nil {
			return nil, fmt.Errorf("failed to decode denominations: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// GetGame returns one catalogue row by id.
func (s *Store) GetGame(ctx context.Context, gameID int64) (*GameInfo, error) {
	var g GameInfo
	var denominations []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, view, denominations FROM games WHERE id = $1
	`, gameID).Scan(&g.ID, &g.Name, &g.View, &denominations)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load game %d: %w", gameID, err)
	}
	if err := scanJSON(denominations, &g.Denominations); err != nil {
		return nil, fmt.Errorf("failed to decode denominations: %w", err)
	}
	return &g, nil
}

// RoundHistory returns the most recent round logs for a player, newest
// first.
func (s *Store) RoundHistory(ctx context.Context, playerID int64, limit int) ([]settlement.RoundLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT response, allbet, lines, report_win, slot_event
		FROM round_logs WHERE player_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load round history: %w", err)
	}
	defer rows.Close()

	var logs []settlement.RoundLog
	for rows.Next() {
		var entry settlement.RoundLog
		if err := rows.Scan(&entry.Response, &entry.AllBet, &entry.Lines,
			&entry.ReportWin, &entry.SlotEvent); err != nil {
			return nil, fmt.Errorf("failed to scan round log: %w", err)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
