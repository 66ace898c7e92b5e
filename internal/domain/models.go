// Package domain contains the core entity types shared by the settlement
// engine: player and shop snapshots, per-game bank and jackpot
// configuration, and the monetary formatting rule applied after every
// ledger mutation.
//
// Every entity has exactly one constructor that normalizes raw snapshot
// input into the typed form; nothing downstream branches on representation.
package domain

import (
	"github.com/shopspring/decimal"
)

// PlayerStatus represents the status of a player account.
type PlayerStatus string

const (
	PlayerStatusActive    PlayerStatus = "active"
	PlayerStatusBanned    PlayerStatus = "banned"
	PlayerStatusSuspended PlayerStatus = "suspended"
)

// Player is the per-round financial snapshot of one player. Balance,
// BonusCredit and BonusReserve are held in ledger units (display units
// multiplied by the game denomination). Only the ledger mutates it.
type Player struct {
	ID     int64        `json:"id" db:"id"`
	ShopID int64        `json:"shop_id" db:"shop_id"`
	Status PlayerStatus `json:"status" db:"status"`

	// Balance is real money and must never go negative.
	Balance float64 `json:"balance" db:"balance"`
	// BonusCredit ("count_balance") is promotional money consumed before
	// real balance on bets.
	BonusCredit float64 `json:"count_balance" db:"count_balance"`
	// BonusReserve ("address") is a secondary promotional pool consumed
	// after BonusCredit is exhausted.
	BonusReserve float64 `json:"address" db:"address"`

	IsBlocked bool `json:"is_blocked" db:"is_blocked"`
}

// PlayerSnapshot is the raw key-value form a caller submits for one round.
type PlayerSnapshot struct {
	ID           int64   `json:"id"`
	ShopID       int64   `json:"shop_id"`
	Status       string  `json:"status"`
	Balance      float64 `json:"balance"`
	BonusCredit  float64 `json:"count_balance"`
	BonusReserve float64 `json:"address"`
	IsBlocked    bool    `json:"is_blocked"`
}

// NewPlayer normalizes a raw snapshot into a Player. Unknown statuses
// default to active; promotional pools never start negative.
func NewPlayer(s PlayerSnapshot) *Player {
	status := PlayerStatus(s.Status)
	switch status {
	case PlayerStatusActive, PlayerStatusBanned, PlayerStatusSuspended:
	default:
		status = PlayerStatusActive
	}
	p := &Player{
		ID:           s.ID,
		ShopID:       s.ShopID,
		Status:       status,
		Balance:      s.Balance,
		BonusCredit:  s.BonusCredit,
		BonusReserve: s.BonusReserve,
		IsBlocked:    s.IsBlocked,
	}
	if p.BonusCredit < 0 {
		p.BonusCredit = 0
	}
	if p.BonusReserve < 0 {
		p.BonusReserve = 0
	}
	return p
}

// Shop holds the house-side configuration a round settles against.
type Shop struct {
	ID int64 `json:"id" db:"id"`
	// Percent is the fraction of each bet retained by the house.
	// Values of 10 or less carry no bonus-wallet contribution.
	Percent   float64 `json:"percent" db:"percent"`
	MaxWin    float64 `json:"max_win" db:"max_win"`
	Currency  string  `json:"currency" db:"currency"`
	IsBlocked bool    `json:"is_blocked" db:"is_blocked"`
}

// ShopSnapshot is the raw key-value form of a shop row.
type ShopSnapshot struct {
	ID        int64   `json:"id"`
	Percent   float64 `json:"percent"`
	MaxWin    float64 `json:"max_win"`
	Currency  string  `json:"currency"`
	IsBlocked bool    `json:"is_blocked"`
}

// NewShop normalizes a raw snapshot into a Shop. A missing percent
// defaults to 90, a missing currency to USD.
func NewShop(s ShopSnapshot) *Shop {
	shop := &Shop{
		ID:        s.ID,
		Percent:   s.Percent,
		MaxWin:    s.MaxWin,
		Currency:  s.Currency,
		IsBlocked: s.IsBlocked,
	}
	if shop.Percent <= 0 {
		shop.Percent = 90
	}
	if shop.Currency == "" {
		shop.Currency = "USD"
	}
	return shop
}

// BankState selects which house pool a bank operation targets.
// The empty state is normal play; bonus covers bonus, freespin and
// respin rounds.
const (
	BankStateNormal = ""
	BankStateBonus  = "bonus"
)

// GameConfig holds the per-game bank pools, jackpot contribution setup,
// RTP line-percent tables and turnover counters.
type GameConfig struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
	View bool   `json:"view" db:"view"`

	// MainBank and BonusBank are independent pools in ledger units.
	MainBank  float64 `json:"main_bank" db:"main_bank"`
	BonusBank float64 `json:"bonus_bank" db:"bonus_bank"`

	// Denominations converts display units to ledger units; the first
	// entry is the active denomination unless the round overrides it.
	Denominations []float64 `json:"denominations" db:"-"`

	// LinePercents is the RTP line-percent table, stored for the caller;
	// the ledger itself only carries it through.
	LinePercents map[string][]float64 `json:"line_percents" db:"-"`

	// Reserve funds the gamble feature payouts.
	Reserve float64 `json:"rezerv" db:"rezerv"`

	// StatIn / StatOut are lifetime turnover counters.
	StatIn  float64 `json:"stat_in" db:"stat_in"`
	StatOut float64 `json:"stat_out" db:"stat_out"`
}

// GameSnapshot is the raw key-value form of a game row.
type GameSnapshot struct {
	ID            int64                `json:"id"`
	Name          string               `json:"name"`
	View          *bool                `json:"view"`
	MainBank      float64              `json:"main_bank"`
	BonusBank     float64              `json:"bonus_bank"`
	Denominations []float64            `json:"denominations"`
	LinePercents  map[string][]float64 `json:"line_percents"`
	Reserve       float64              `json:"rezerv"`
	StatIn        float64              `json:"stat_in"`
	StatOut       float64              `json:"stat_out"`
}

// NewGameConfig normalizes a raw snapshot into a GameConfig. Games are
// visible by default and always carry at least denomination 1.
func NewGameConfig(s GameSnapshot) *GameConfig {
	g := &GameConfig{
		ID:            s.ID,
		Name:          s.Name,
		View:          true,
		MainBank:      s.MainBank,
		BonusBank:     s.BonusBank,
		Denominations: s.Denominations,
		LinePercents:  s.LinePercents,
		Reserve:       s.Reserve,
		StatIn:        s.StatIn,
		StatOut:       s.StatOut,
	}
	if s.View != nil {
		g.View = *s.View
	}
	if len(g.Denominations) == 0 {
		g.Denominations = []float64{1.0}
	}
	return g
}

// Bank returns the pool balance for a normalized bank state.
func (g *GameConfig) Bank(state string) float64 {
	if state == BankStateBonus {
		return g.BonusBank
	}
	return g.MainBank
}

// AddToBank credits (or debits, for negative sums) the pool for a
// normalized bank state.
func (g *GameConfig) AddToBank(state string, sum float64) {
	if state == BankStateBonus {
		g.BonusBank = FormatAmount(g.BonusBank + sum)
		return
	}
	g.MainBank = FormatAmount(g.MainBank + sum)
}

// Jackpot is one progressive pool. Pools are an explicit ordered list
// indexed by slot; nothing parses jp_<n> style field names.
type Jackpot struct {
	ID     int64 `json:"id" db:"id"`
	ShopID int64 `json:"shop_id" db:"shop_id"`

	// Balance is the accrued pool in ledger units.
	Balance float64 `json:"balance" db:"balance"`
	// Percent of each bet contributed to this pool.
	Percent float64 `json:"percent" db:"percent"`
	// PaySum is the configured payout amount; zero disables payouts.
	PaySum float64 `json:"pay_sum" db:"pay_sum"`
	// StartBalance is the refill floor target; the refill trigger is
	// half of it.
	StartBalance float64 `json:"start_balance" db:"start_balance"`
	// OwnerUserID restricts payouts to one player when non-zero.
	OwnerUserID int64 `json:"user_id" db:"user_id"`
}

// JackpotSnapshot is the raw key-value form of one jackpot row.
type JackpotSnapshot struct {
	ID           int64   `json:"id"`
	ShopID       int64   `json:"shop_id"`
	Balance      float64 `json:"balance"`
	Percent      float64 `json:"percent"`
	PaySum       float64 `json:"pay_sum"`
	StartBalance float64 `json:"start_balance"`
	OwnerUserID  int64   `json:"user_id"`
}

// NewJackpot normalizes a raw snapshot into a Jackpot.
func NewJackpot(s JackpotSnapshot) *Jackpot {
	return &Jackpot{
		ID:           s.ID,
		ShopID:       s.ShopID,
		Balance:      s.Balance,
		Percent:      s.Percent,
		PaySum:       s.PaySum,
		StartBalance: s.StartBalance,
		OwnerUserID:  s.OwnerUserID,
	}
}

// MinBalance is the refill trigger threshold.
func (j *Jackpot) MinBalance() float64 {
	return j.StartBalance * 0.5
}

// SpinRequest carries the per-spin parameters handed to the core.
type SpinRequest struct {
	// WinType is "normal" or "bonus".
	WinType string `json:"win_type"`
	// SlotEvent is "bet", "freespin", "respin", "init", ...
	SlotEvent string `json:"slot_event"`
	// BonusSubtype selects a named bonus strip set, when present.
	BonusSubtype string `json:"bonus_subtype,omitempty"`
}

// Slot events the ledger cares about.
const (
	EventBet      = "bet"
	EventFreespin = "freespin"
	EventRespin   = "respin"
	EventInit     = "init"
)

// Win types.
const (
	WinTypeNormal = "normal"
	WinTypeBonus  = "bonus"
)

// BetRemainder carries the uncovered part of a bet that straddles
// promotional and real funds between the balance debit and the bank
// credit of the same round. It is scoped to one settlement and never
// persisted.
type BetRemainder struct {
	// Remains is the shortfall left after the reserve-only path.
	Remains float64
	// Remains0 is the shortfall left after partial bonus-credit cover.
	Remains0 float64
	// HasRemains / HasRemains0 distinguish "zero" from "unset".
	HasRemains  bool
	HasRemains0 bool
}

// FormatAmount applies the monetary formatting rule used after every
// ledger mutation: more than 4 fractional digits rounds to 2, 3 or 4
// fractional digits floors to 2, anything shorter passes unchanged.
// Keeps float drift out of stored amounts without touching legitimately
// short values.
func FormatAmount(num float64) float64 {
	d := decimal.NewFromFloat(num)
	digits := int32(0)
	if d.Exponent() < 0 {
		digits = -d.Exponent()
	}
	switch {
	case digits > 4:
		f, _ := d.Round(2).Float64()
		return f
	case digits > 2:
		f, _ := d.RoundFloor(2).Float64()
		return f
	default:
		return num
	}
}
