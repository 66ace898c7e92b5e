package limits

import (
	"errors"
	"testing"
)

func TestValidateBet(t *testing.T) {
	s := New(nil)
	offered := []float64{0.01, 0.1, 1.0}

	cases := []struct {
		name     string
		betLevel float64
		lines    int
		denom    float64
		want     error
	}{
		{"Valid", 1.0, 10, 0.1, nil},
		{"ZeroBet", 0, 10, 0.1, ErrInvalidBet},
		{"NegativeBet", -1, 10, 0.1, ErrInvalidBet},
		{"ZeroLines", 1.0, 0, 0.1, ErrInvalidLines},
		{"UnknownDenomination", 1.0, 10, 0.5, ErrDenominationUnknown},
		{"ZeroDenominationSkipsCheck", 1.0, 10, 0, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.ValidateBet(tc.betLevel, tc.lines, tc.denom, offered)
			if !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCapWin(t *testing.T) {
	s := New(nil)

	t.Run("UnderCapUnchanged", func(t *testing.T) {
		if got := s.CapWin(50, 100); got != 50 {
			t.Errorf("Expected 50, got %v", got)
		}
	})

	t.Run("OverCapClamped", func(t *testing.T) {
		if got := s.CapWin(500, 100); got != 100 {
			t.Errorf("Expected 100, got %v", got)
		}
	})

	t.Run("ZeroMaxUncapped", func(t *testing.T) {
		if got := s.CapWin(500, 0); got != 500 {
			t.Errorf("Expected 500, got %v", got)
		}
	})
}
