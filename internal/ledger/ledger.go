// Package ledger implements all money movement for one settlement round:
// player balance debits and credits, house bank pools with revenue-split
// accounting, and progressive jackpot accrual, payout and refill.
//
// The ledger mutates the snapshot it was constructed over and nothing
// else. It performs no I/O and holds no cross-round state, so a Ledger is
// a pure function of its inputs; exclusive access to the snapshot is the
// caller's obligation. Every mutation that could leave a balance or pool
// negative returns an InvariantViolation instead of applying.
package ledger

import (
	"errors"
	"fmt"

	"github.com/avolkov/slotcore/internal/domain"
	"go.uber.org/zap"
)

// ErrNoGame is returned when a ledger is constructed without a game config.
var ErrNoGame = errors.New("ledger: game config is required")

// bonusWalletSlice is the fixed slice, in percentage points, of each bet
// that funds the bonus wallet when the shop percent exceeds it.
const bonusWalletSlice = 10.0

// InvariantViolation is the fatal error for any operation that would
// leave the player balance or a bank pool negative. The round must be
// treated as not-committed; no partial state is applied past the check.
type InvariantViolation struct {
	Kind    string  // "balance" or "bank"
	Delta   float64 // requested change, display units
	Current float64 // value before the operation, display units
	State   string  // normalized bank state, empty for balance
}

func (e *InvariantViolation) Error() string {
	if e.Kind == "bank" {
		return fmt.Sprintf("ledger: bank %.4f current %.4f state %q trigger %.4f",
			e.Delta, e.Current, e.State, e.Current+e.Delta)
	}
	return fmt.Sprintf("ledger: balance %.4f current %.4f trigger %.4f",
		e.Delta, e.Current, e.Current+e.Delta)
}

// Config assembles one round's financial snapshot.
type Config struct {
	Player   *domain.Player
	Shop     *domain.Shop
	Game     *domain.GameConfig
	Jackpots []*domain.Jackpot

	// Denomination converts display units to ledger units; zero selects
	// the game's first configured denomination.
	Denomination float64

	// BonusRound marks the whole round as a bonus context, forcing bank
	// operations onto the bonus pool regardless of the passed state.
	BonusRound bool

	// JackpotPercentZero disables jackpot contribution for this round.
	JackpotPercentZero bool

	Logger *zap.Logger
}

// Ledger settles the money side of one round.
type Ledger struct {
	player   *domain.Player
	shop     *domain.Shop
	game     *domain.GameConfig
	jackpots []*domain.Jackpot

	denom              float64
	bonusRound         bool
	jackpotPercentZero bool
	log                *zap.Logger

	// bonusCredit is the promotional credit captured at round start; the
	// bank split and jackpot accrual read this snapshot, not the live
	// (already debited) player field.
	bonusCredit float64

	remainder domain.BetRemainder

	// Split bookkeeping for the current bet, display-independent
	// (ledger units), reset by each bet-credit to the bank. ToGameBank
	// also records the intake of any other positive bank credit.
	ToGameBank float64
	ToJackpots float64
	BetProfit  float64

	// JackPay is the jackpot payout recorded this round, display units.
	JackPay float64
	// JackPayFormatted is JackPay rendered with two decimals for the
	// round response, empty when nothing was paid.
	JackPayFormatted string
}

// New builds a ledger over a fully materialized snapshot.
func New(cfg Config) (*Ledger, error) {
	if cfg.Game == nil {
		return nil, ErrNoGame
	}
	if cfg.Player == nil || cfg.Shop == nil {
		return nil, errors.New("ledger: player and shop snapshots are required")
	}
	denom := cfg.Denomination
	if denom <= 0 {
		denom = cfg.Game.Denominations[0]
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		player:             cfg.Player,
		shop:               cfg.Shop,
		game:               cfg.Game,
		jackpots:           cfg.Jackpots,
		denom:              denom,
		bonusRound:         cfg.BonusRound,
		jackpotPercentZero: cfg.JackpotPercentZero,
		log:                logger,
		bonusCredit:        cfg.Player.BonusCredit,
	}, nil
}

// Denomination returns the active display-to-ledger multiplier.
func (l *Ledger) Denomination() float64 { return l.denom }

// Remainder exposes the transient bet remainder for inspection; it is
// reset when a new ledger is built for the next round.
func (l *Ledger) Remainder() domain.BetRemainder { return l.remainder }

// GetBalance returns the player balance in display units.
func (l *Ledger) GetBalance() float64 {
	return l.player.Balance / l.denom
}

// GetPercent returns the shop revenue-share percent.
func (l *Ledger) GetPercent() float64 {
	return l.shop.Percent
}

// GetCountBalanceUser returns the player's current promotional credit.
func (l *Ledger) GetCountBalanceUser() float64 {
	return l.player.BonusCredit
}

// normalizeState folds the bonus-like round states onto the bonus pool.
func (l *Ledger) normalizeState(state string) string {
	if l.bonusRound || state == domain.BankStateBonus ||
		state == domain.EventFreespin || state == domain.EventRespin {
		return domain.BankStateBonus
	}
	return domain.BankStateNormal
}

// GetBank returns the pool balance for the given state in display units.
func (l *Ledger) GetBank(state string) float64 {
	return l.game.Bank(l.normalizeState(state)) / l.denom
}

// SetBalance applies delta (display units) to the player balance.
//
// For bet debits the promotional pools are consumed first: the reserve
// alone when no bonus credit exists, otherwise the credit and then the
// reserve for the shortfall. Whatever the promotional pools could not
// cover is kept in the round's BetRemainder for the bank-credit step.
// The real balance always moves by the full delta; the promotional
// pools are a secondary ledger layered on top of it.
func (l *Ledger) SetBalance(delta float64, event string) error {
	if l.GetBalance()+delta < 0 {
		return &InvariantViolation{
			Kind:    "balance",
			Delta:   delta,
			Current: l.GetBalance(),
		}
	}

	sum := delta * l.denom
	if sum < 0 && event == domain.EventBet {
		debit := -sum

		if l.player.BonusCredit == 0 {
			l.remainder.Remains = 0
			l.remainder.HasRemains = true
			if l.player.BonusReserve > 0 && l.player.BonusReserve < debit {
				l.remainder.Remains = debit - l.player.BonusReserve
			}
			l.consumeReserve(debit)
		} else if l.player.BonusCredit < debit {
			shortfall := debit - l.player.BonusCredit
			l.remainder.Remains0 = shortfall
			l.remainder.HasRemains0 = true
			if l.player.BonusReserve > 0 {
				l.remainder.Remains0 = 0
				if l.player.BonusReserve < shortfall {
					l.remainder.Remains0 = shortfall - l.player.BonusReserve
				}
			}
			l.consumeReserve(shortfall)
		}

		// Promotional credit is consumed up to the debit, never refilled
		// and never driven negative.
		credit := l.player.BonusCredit - debit
		if credit < 0 {
			credit = 0
		}
		l.player.BonusCredit = domain.FormatAmount(credit)
	}

	l.player.Balance = domain.FormatAmount(l.player.Balance + sum)
	return nil
}

// consumeReserve draws up to amount from the bonus reserve, capped at
// zero.
func (l *Ledger) consumeReserve(amount float64) {
	if l.player.BonusReserve <= 0 {
		return
	}
	if l.player.BonusReserve < amount {
		l.player.BonusReserve = 0
		return
	}
	l.player.BonusReserve = domain.FormatAmount(l.player.BonusReserve - amount)
}

// SetBank applies sum (display units) to the bank pool for state.
//
// A positive bet credit is the house share of a pre-split wager: the
// gross bet is backed out from the shop percent, split between the
// portion covered by promotional credit and the uncovered remainder,
// and the fixed bonus-wallet slice plus per-jackpot contributions are
// carved out of the applicable portion. The bonus-wallet slice is moved
// to the bonus pool before the rest lands on the requested pool.
func (l *Ledger) SetBank(state string, sum float64, event string) error {
	state = l.normalizeState(state)
	if l.GetBank(state)+sum < 0 {
		return &InvariantViolation{
			Kind:    "bank",
			Delta:   sum,
			Current: l.GetBank(state),
			State:   state,
		}
	}

	sumL := sum * l.denom
	bankBonusSum := 0.0

	if sumL > 0 && event == domain.EventBet {
		l.ToGameBank = 0
		l.ToJackpots = 0
		l.BetProfit = 0

		prc := l.GetPercent()
		prcB := bonusWalletSlice
		if prc <= bonusWalletSlice {
			prcB = 0
		}

		count := l.bonusCredit
		grossBet := sumL / prc * 100

		if count > 0 && count < grossBet {
			firstBid := count
			secondBid := grossBet - firstBid
			if l.remainder.HasRemains0 {
				secondBid = l.remainder.Remains0
			}
			sumL = firstBid/100*prc + secondBid
			bankBonusSum = firstBid / 100 * prcB
		} else {
			bankBonusSum = grossBet / 100 * prcB
		}

		if !l.jackpotPercentZero && count > 0 {
			base := grossBet
			if count < grossBet {
				base = count
			}
			for _, jp := range l.jackpots {
				l.ToJackpots += base / 100 * jp.Percent
			}
		}

		l.ToGameBank = sumL
		l.BetProfit = grossBet - l.ToGameBank - l.ToJackpots
	}

	// Any other positive credit counts as bank intake too.
	if sumL > 0 && event != domain.EventBet {
		l.ToGameBank = sumL
	}

	if bankBonusSum > 0 {
		sumL -= bankBonusSum
		l.game.AddToBank(domain.BankStateBonus, bankBonusSum)
	}

	// A bet that left an unresolved real-money shortfall settles it here
	// when the round itself contributed nothing.
	if sumL == 0 && event == domain.EventBet && l.remainder.HasRemains {
		sumL = l.remainder.Remains
	}

	l.game.AddToBank(state, sumL)
	return nil
}

// UpdateJackpots accrues each pool from this round's bet (display
// units), pays out triggered pools and refills depleted ones, in slot
// order. With no pools configured it is a no-op.
func (l *Ledger) UpdateJackpots(bet float64) error {
	if len(l.jackpots) == 0 {
		return nil
	}

	betL := bet * l.denom
	count := l.bonusCredit
	payJack := 0.0

	for _, jp := range l.jackpots {
		var proposed float64
		switch {
		case count == 0 || l.jackpotPercentZero:
			proposed = jp.Balance
		case count < betL:
			proposed = count/100*jp.Percent + jp.Balance
		default:
			proposed = betL/100*jp.Percent + jp.Balance
		}

		if jp.PaySum > 0 && jp.PaySum < proposed {
			if jp.OwnerUserID != 0 && jp.OwnerUserID != l.player.ID {
				l.log.Warn("jackpot trigger skipped: pool owned by another player",
					zap.Int64("jackpot_id", jp.ID),
					zap.Int64("owner_id", jp.OwnerUserID),
					zap.Int64("player_id", l.player.ID))
			} else {
				payJack = jp.PaySum / l.denom
				proposed -= jp.PaySum
				if err := l.SetBalance(jp.PaySum/l.denom, ""); err != nil {
					return err
				}
			}
		}

		jp.Balance = proposed
		if jp.Balance < jp.MinBalance() && jp.StartBalance > 0 {
			jp.Balance += jp.StartBalance
		}
	}

	if payJack > 0 {
		l.JackPay = payJack
		l.JackPayFormatted = fmt.Sprintf("%01.2f", payJack)
	}
	return nil
}
