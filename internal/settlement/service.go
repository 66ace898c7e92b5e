package settlement

import (
	"errors"
	"fmt"

	"github.com/avolkov/slotcore/internal/domain"
	"github.com/avolkov/slotcore/internal/ledger"
	"github.com/avolkov/slotcore/internal/limits"
	"github.com/avolkov/slotcore/internal/reels"
	"github.com/avolkov/slotcore/internal/rng"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// defaultLargeWinMultiple flags payouts worth auditing: anything at or
// above this multiple of the round's total bet.
const defaultLargeWinMultiple = 100.0

// Evaluator computes the game-specific win for a reel outcome. Win-line
// and paytable rules live with each title, not in the core; a nil
// evaluator settles the round with zero win.
type Evaluator interface {
	Evaluate(ctx *Context, out *reels.Outcome, snap *Snapshot) (float64, error)
}

// Recorder receives significant round events for the audit trail.
type Recorder interface {
	RoundEvent(eventType, severity, description string, playerID int64, data map[string]interface{})
}

// Result is the fully materialized diff of one settled round.
type Result struct {
	RoundID string `json:"round_id"`

	Balance      float64 `json:"balance"`
	BonusCredit  float64 `json:"count_balance"`
	BonusReserve float64 `json:"address"`
	MainBank     float64 `json:"main_bank"`
	BonusBank    float64 `json:"bonus_bank"`
	JackPay      string  `json:"jack_pay,omitempty"`

	// StoredBalance is the post-round balance in ledger units, the
	// value the persistence layer writes back to the player row.
	// Balance is the same amount in display units (ledger over the
	// round denomination) for the round response.
	StoredBalance float64 `json:"-"`

	AllBet float64 `json:"allbet"`
	Win    float64 `json:"win"`

	StatIn  float64 `json:"stat_in"`
	StatOut float64 `json:"stat_out"`

	Jackpots []JackpotState `json:"jackpots"`

	Outcome *reels.Outcome         `json:"outcome"`
	State   map[string]interface{} `json:"state"`

	LogReport []RoundLog `json:"log_report"`

	// GameData and GameDataStatic are the round's key-value stores
	// after settlement, carried for write-back only.
	GameData       map[string]StoredValue `json:"-"`
	GameDataStatic map[string]StoredValue `json:"-"`
}

// JackpotState is the post-round balance of one progressive pool.
type JackpotState struct {
	ID      int64   `json:"id"`
	Balance float64 `json:"balance"`
}

// Service settles rounds. It owns the shared RNG and the optional audit
// recorder and evaluator; everything per-round lives in the Context.
type Service struct {
	rnd       *rng.Service
	limits    *limits.Service
	audit     Recorder
	evaluator Evaluator
	largeWin  float64
	log       *zap.Logger
}

// New creates a settlement service. audit and evaluator may be nil.
func New(rnd *rng.Service, limitsSvc *limits.Service, auditRec Recorder, evaluator Evaluator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rnd == nil {
		rnd = rng.New()
	}
	if limitsSvc == nil {
		limitsSvc = limits.New(logger)
	}
	return &Service{
		rnd:       rnd,
		limits:    limitsSvc,
		audit:     auditRec,
		evaluator: evaluator,
		largeWin:  defaultLargeWinMultiple,
		log:       logger,
	}
}

// SetLargeWinMultiple overrides the audit threshold for large wins.
// Non-positive values are ignored.
func (s *Service) SetLargeWinMultiple(m float64) {
	if m > 0 {
		s.largeWin = m
	}
}

// Settle runs one complete round over a snapshot: activity and limit
// checks, bet debit, bank split, jackpot accrual, reel outcome, win
// credit, stat counters and the round log. A fatal ledger error aborts
// the round; nothing partial is returned.
func (s *Service) Settle(snap *Snapshot) (*Result, error) {
	ctx, err := NewContext(snap, nil, s.rnd, s.log)
	if err != nil {
		return nil, err
	}

	if !ctx.IsActive() {
		return nil, ErrRoundInactive
	}

	isBet := snap.SlotEvent == domain.EventBet
	allBet := 0.0
	if isBet {
		if err := s.limits.ValidateBet(snap.BetLevel, snap.Lines, snap.Denomination, ctx.Game.Denominations); err != nil {
			return nil, err
		}
		allBet = snap.BetLevel * float64(snap.Lines)
	}
	ctx.AllBet = allBet

	bankState := bankStateFor(snap.SlotEvent)

	if isBet {
		if err := ctx.Ledger.SetBalance(-allBet, domain.EventBet); err != nil {
			return nil, s.fatal(ctx, err)
		}
		houseShare := allBet / 100 * ctx.Shop.Percent
		if err := ctx.Ledger.SetBank(bankState, houseShare, domain.EventBet); err != nil {
			return nil, s.fatal(ctx, err)
		}
		if err := ctx.Ledger.UpdateJackpots(allBet); err != nil {
			return nil, s.fatal(ctx, err)
		}
		ctx.Game.StatIn += allBet
	}

	outcome := ctx.Reels.GetReelStrips(snap.WinType, snap.SlotEvent, snap.BonusSubtype)

	win := 0.0
	if s.evaluator != nil {
		win, err = s.evaluator.Evaluate(ctx, outcome, snap)
		if err != nil {
			return nil, fmt.Errorf("settlement: win evaluation failed: %w", err)
		}
	}
	win = s.limits.CapWin(win, ctx.Shop.MaxWin)

	if win > 0 {
		// Winnings are paid out of the bank pool; an underfunded pool is
		// an invariant violation, not a partial payout.
		if err := ctx.Ledger.SetBank(bankState, -win, snap.SlotEvent); err != nil {
			return nil, s.fatal(ctx, err)
		}
		if err := ctx.Ledger.SetBalance(win, ""); err != nil {
			return nil, s.fatal(ctx, err)
		}
		ctx.Game.StatOut += win
	}

	if ctx.Ledger.JackPay > 0 && s.audit != nil {
		s.audit.RoundEvent("jackpot_payout", "info",
			fmt.Sprintf("Jackpot payout of %s", ctx.Ledger.JackPayFormatted),
			ctx.Player.ID,
			map[string]interface{}{"jack_pay": ctx.Ledger.JackPay})
	}
	if allBet > 0 && win >= allBet*s.largeWin && s.audit != nil {
		s.audit.RoundEvent("large_win", "info",
			fmt.Sprintf("Large win: %.2f (bet %.2f)", win, allBet),
			ctx.Player.ID,
			map[string]interface{}{"win": win, "allbet": allBet})
	}

	result := &Result{
		RoundID:       uuid.New().String(),
		Balance:       ctx.Ledger.GetBalance(),
		StoredBalance: ctx.Player.Balance,
		BonusCredit:   ctx.Player.BonusCredit,
		BonusReserve:  ctx.Player.BonusReserve,
		MainBank:      ctx.Game.MainBank,
		BonusBank:     ctx.Game.BonusBank,
		JackPay:       ctx.Ledger.JackPayFormatted,
		AllBet:        allBet,
		Win:           win,
		StatIn:        ctx.Game.StatIn,
		StatOut:       ctx.Game.StatOut,
		Outcome:       outcome,
	}
	for _, jp := range ctx.Jackpots {
		result.Jackpots = append(result.Jackpots, JackpotState{ID: jp.ID, Balance: jp.Balance})
	}

	response, merr := json.Marshal(result)
	if merr != nil {
		response = []byte("{}")
	}
	ctx.SaveLogReport(string(response), allBet, snap.Lines, win, snap.SlotEvent)

	result.State = ctx.State()
	result.LogReport = ctx.LogReport()
	result.GameData = ctx.GameData()
	result.GameDataStatic = ctx.GameDataStatic()

	s.log.Info("round settled",
		zap.String("round_id", result.RoundID),
		zap.Int64("player_id", ctx.Player.ID),
		zap.String("slot_event", snap.SlotEvent),
		zap.Float64("allbet", allBet),
		zap.Float64("win", win),
		zap.Float64("balance", result.Balance))

	return result, nil
}

// fatal records an invariant violation and passes the error through
// unchanged. The round produces no state change past the failed check.
func (s *Service) fatal(ctx *Context, err error) error {
	var iv *ledger.InvariantViolation
	if errors.As(err, &iv) {
		s.log.Error("round aborted on ledger invariant",
			zap.Int64("player_id", ctx.Player.ID),
			zap.Error(err))
		if s.audit != nil {
			s.audit.RoundEvent("invariant_violation", "critical", err.Error(),
				ctx.Player.ID,
				map[string]interface{}{
					"kind":    iv.Kind,
					"delta":   iv.Delta,
					"current": iv.Current,
					"state":   iv.State,
				})
		}
	}
	return err
}

// bankStateFor maps a slot event onto the bank pool it settles against.
func bankStateFor(slotEvent string) string {
	switch slotEvent {
	case domain.EventFreespin, domain.EventRespin, domain.BankStateBonus:
		return domain.BankStateBonus
	default:
		return domain.BankStateNormal
	}
}
