// Package settlement assembles one round's player, shop, game and
// jackpot snapshots into a settlement context and runs the round
// lifecycle over the bank ledger and reel engine.
//
// The context is built from a fully materialized snapshot and produces a
// fully materialized diff; it performs no I/O of its own, so a round is
// reentrant and safe as a pure function of its inputs.
package settlement

import (
	"errors"
	"time"

	"github.com/avolkov/slotcore/internal/domain"
	"github.com/avolkov/slotcore/internal/ledger"
	"github.com/avolkov/slotcore/internal/reels"
	"github.com/avolkov/slotcore/internal/rng"
	"go.uber.org/zap"
)

// gameDataTTL is how long ephemeral and static values live before the
// caller's eviction policy may drop them.
const gameDataTTL = 86400 * time.Second

var (
	ErrRoundInactive = errors.New("settlement: game, shop or player is not active")
	ErrNoPaytable    = errors.New("settlement: no paytable rates configured")
)

// StoredValue is one entry of the ephemeral/static key-value stores.
// The expiry is stored for the caller; reads do not check it.
type StoredValue struct {
	ExpiresAt int64       `json:"timelife"`
	Payload   interface{} `json:"payload"`
}

// RoundLog is the structured log entry recorded once per round.
type RoundLog struct {
	Response  string  `json:"response"`
	AllBet    float64 `json:"allbet"`
	Lines     int     `json:"lines"`
	ReportWin float64 `json:"reportWin"`
	SlotEvent string  `json:"slotEvent"`
}

// Snapshot is the raw per-round input a caller submits: entity rows,
// key-value stores, reel strip data and spin parameters.
type Snapshot struct {
	Player   domain.PlayerSnapshot    `json:"user"`
	Shop     domain.ShopSnapshot      `json:"shop"`
	Game     domain.GameSnapshot      `json:"game"`
	Jackpots []domain.JackpotSnapshot `json:"jpgs"`

	GameData       map[string]StoredValue `json:"game_data"`
	GameDataStatic map[string]StoredValue `json:"game_data_static"`

	// ReelStrips maps strip names ("reelStrip1", "reelStripBonus2_expanding")
	// to symbol sequences for the base and bonus sets.
	ReelStrips map[string][]string `json:"reel_strips"`

	// Paytable holds the per-symbol rate rows used by the gamble/RTP
	// bookkeeping helpers.
	Paytable map[string][]float64 `json:"paytable"`

	Denomination float64 `json:"denomination"`
	BetLevel     float64 `json:"bet_level"`
	Lines        int     `json:"lines"`

	SlotEvent    string `json:"slot_event"`
	WinType      string `json:"win_type"`
	BonusSubtype string `json:"bonus_subtype,omitempty"`
	BonusRound   bool   `json:"bonus_round,omitempty"`
}

// Context is the per-round aggregate handed to game-specific win logic:
// the normalized entities, the ledger, the reel engine and the two
// key-value stores.
type Context struct {
	Player   *domain.Player
	Shop     *domain.Shop
	Game     *domain.GameConfig
	Jackpots []*domain.Jackpot

	Ledger *ledger.Ledger
	Reels  *reels.Engine

	// AllBet is the total wager of the current round in display units.
	AllBet float64

	paytable       map[string][]float64
	gameData       map[string]StoredValue
	gameDataStatic map[string]StoredValue
	logReport      []RoundLog

	rnd *rng.Service
	log *zap.Logger
	now func() time.Time
}

// NewContext normalizes a snapshot and wires the ledger and reel engine
// over it. The reel config may be nil to let strip introspection derive
// it.
func NewContext(snap *Snapshot, reelCfg *reels.Config, rnd *rng.Service, logger *zap.Logger) (*Context, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rnd == nil {
		rnd = rng.New()
	}

	player := domain.NewPlayer(snap.Player)
	shop := domain.NewShop(snap.Shop)
	game := domain.NewGameConfig(snap.Game)

	jackpots := make([]*domain.Jackpot, 0, len(snap.Jackpots))
	for _, js := range snap.Jackpots {
		jackpots = append(jackpots, domain.NewJackpot(js))
	}

	led, err := ledger.New(ledger.Config{
		Player:       player,
		Shop:         shop,
		Game:         game,
		Jackpots:     jackpots,
		Denomination: snap.Denomination,
		BonusRound:   snap.BonusRound,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	ctx := &Context{
		Player:         player,
		Shop:           shop,
		Game:           game,
		Jackpots:       jackpots,
		Ledger:         led,
		Reels:          reels.New(snap.ReelStrips, reelCfg, rnd, logger),
		paytable:       snap.Paytable,
		gameData:       make(map[string]StoredValue),
		gameDataStatic: make(map[string]StoredValue),
		rnd:            rnd,
		log:            logger,
		now:            time.Now,
	}
	for k, v := range snap.GameData {
		ctx.gameData[k] = v
	}
	for k, v := range snap.GameDataStatic {
		ctx.gameDataStatic[k] = v
	}
	return ctx, nil
}

// IsActive reports whether this round may settle at all: the game must
// be visible and neither shop nor player blocked or banned.
func (c *Context) IsActive() bool {
	if !c.Game.View || c.Shop.IsBlocked || c.Player.IsBlocked {
		return false
	}
	return c.Player.Status != domain.PlayerStatusBanned
}

// SetGameData stores an ephemeral per-player value with a day of life.
func (c *Context) SetGameData(key string, value interface{}) {
	c.gameData[key] = StoredValue{
		ExpiresAt: c.now().Add(gameDataTTL).Unix(),
		Payload:   value,
	}
}

// GetGameData returns the stored payload, or nil when absent. Expiry is
// not checked here; the stored timestamp serves the caller's eviction.
func (c *Context) GetGameData(key string) interface{} {
	if v, ok := c.gameData[key]; ok {
		return v.Payload
	}
	return nil
}

// HasGameData checks presence only.
func (c *Context) HasGameData(key string) bool {
	_, ok := c.gameData[key]
	return ok
}

// SetGameDataStatic stores a per-game value shared across players.
func (c *Context) SetGameDataStatic(key string, value interface{}) {
	c.gameDataStatic[key] = StoredValue{
		ExpiresAt: c.now().Add(gameDataTTL).Unix(),
		Payload:   value,
	}
}

// GetGameDataStatic returns the stored payload, or nil when absent.
func (c *Context) GetGameDataStatic(key string) interface{} {
	if v, ok := c.gameDataStatic[key]; ok {
		return v.Payload
	}
	return nil
}

// HasGameDataStatic checks presence only.
func (c *Context) HasGameDataStatic(key string) bool {
	_, ok := c.gameDataStatic[key]
	return ok
}

// GameData returns the mutated ephemeral store for write-back.
func (c *Context) GameData() map[string]StoredValue { return c.gameData }

// GameDataStatic returns the mutated static store for write-back.
func (c *Context) GameDataStatic() map[string]StoredValue { return c.gameDataStatic }

// SaveLogReport appends the structured per-round log entry.
func (c *Context) SaveLogReport(response string, allBet float64, lines int, reportWin float64, slotEvent string) {
	c.logReport = append(c.logReport, RoundLog{
		Response:  response,
		AllBet:    allBet,
		Lines:     lines,
		ReportWin: reportWin,
		SlotEvent: slotEvent,
	})
}

// LogReport returns the accumulated round log entries.
func (c *Context) LogReport() []RoundLog { return c.logReport }

// CheckBonusWin returns the mean of each paytable row's first positive
// rate, the baseline used when sizing bonus awards.
func (c *Context) CheckBonusWin() float64 {
	var total float64
	var rows int
	for _, rates := range c.paytable {
		for _, rate := range rates {
			if rate > 0 {
				rows++
				total += rate
				break
			}
		}
	}
	if rows == 0 {
		return 0
	}
	return total / float64(rows)
}

// GetRandomPay picks a uniformly random positive paytable rate, zeroed
// when paying it would push lifetime payout past lifetime turnover.
func (c *Context) GetRandomPay() (float64, error) {
	var rates []float64
	for _, row := range c.paytable {
		for _, rate := range row {
			if rate > 0 {
				rates = append(rates, rate)
			}
		}
	}
	if len(rates) == 0 {
		return 0, ErrNoPaytable
	}
	if err := c.rnd.Shuffle(rates); err != nil {
		return 0, err
	}
	pay := rates[0]
	if c.Game.StatIn < c.Game.StatOut+pay*c.AllBet {
		pay = 0
	}
	return pay, nil
}

// GetGambleSettings draws the gamble feature's win multiplier from the
// game's reserve pool: uniform over [1, reserve].
func (c *Context) GetGambleSettings() (int64, error) {
	reserve := int64(c.Game.Reserve)
	if reserve < 1 {
		return 0, errors.New("settlement: gamble reserve is not configured")
	}
	return c.rnd.GenerateIntRange(1, reserve)
}

// State returns the mutated snapshot diff for serialization back to the
// caller.
func (c *Context) State() map[string]interface{} {
	jackpots := make([]map[string]interface{}, 0, len(c.Jackpots))
	for _, jp := range c.Jackpots {
		jackpots = append(jackpots, map[string]interface{}{
			"id":      jp.ID,
			"balance": jp.Balance,
		})
	}
	return map[string]interface{}{
		"player_id":     c.Player.ID,
		"balance":       c.Ledger.GetBalance(),
		"count_balance": c.Player.BonusCredit,
		"address":       c.Player.BonusReserve,
		"main_bank":     c.Game.MainBank,
		"bonus_bank":    c.Game.BonusBank,
		"jackpots":      jackpots,
		"jack_pay":      c.Ledger.JackPayFormatted,
		"stat_in":       c.Game.StatIn,
		"stat_out":      c.Game.StatOut,
	}
}
