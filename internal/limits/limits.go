// Package limits enforces the wagering boundaries a round must respect
// before and after settlement: bet parameters against the game's
// denomination table, and the shop's maximum-win cap on payouts.
package limits

import (
	"errors"

	"go.uber.org/zap"
)

var (
	ErrInvalidBet          = errors.New("limits: bet level must be positive")
	ErrInvalidLines        = errors.New("limits: line count must be positive")
	ErrDenominationUnknown = errors.New("limits: denomination not offered by game")
)

// Service validates wagers and caps wins. It is stateless; every check
// runs against the snapshot values passed in.
type Service struct {
	log *zap.Logger
}

// New creates a limits service.
func New(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{log: logger}
}

// ValidateBet checks the spin parameters before any ledger movement.
// The chosen denomination must be one the game offers; zero skips the
// check (the game's first denomination is then in effect).
func (s *Service) ValidateBet(betLevel float64, lines int, denom float64, offered []float64) error {
	if betLevel <= 0 {
		return ErrInvalidBet
	}
	if lines <= 0 {
		return ErrInvalidLines
	}
	if denom <= 0 {
		return nil
	}
	for _, d := range offered {
		if d == denom {
			return nil
		}
	}
	return ErrDenominationUnknown
}

// CapWin bounds a round payout by the shop maximum. A non-positive
// maximum leaves the win uncapped. Capping is observable in the logs
// but never an error.
func (s *Service) CapWin(win, maxWin float64) float64 {
	if maxWin <= 0 || win <= maxWin {
		return win
	}
	s.log.Warn("round win capped by shop maximum",
		zap.Float64("win", win),
		zap.Float64("max_win", maxWin))
	return maxWin
}
