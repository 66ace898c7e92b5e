package domain

import (
	"math"
	"testing"
)

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		name string
		in   float64
		want float64
	}{
		{"Integer", 100, 100},
		{"OneDecimal", 0.5, 0.5},
		{"TwoDecimals", 10.25, 10.25},
		{"ThreeDecimalsFloored", 10.259, 10.25},
		{"FourDecimalsFloored", 10.2599, 10.25},
		{"FiveDecimalsRounded", 10.25999, 10.26},
		{"LongTailRoundedDown", 0.300000000004, 0.3},
		{"LongTailRoundedUp", 99.999999, 100},
		{"Zero", 0, 0},
		{"NegativeThreeDecimalsFloored", -1.239, -1.24},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FormatAmount(tc.in)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("FormatAmount(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestNewPlayer(t *testing.T) {
	t.Run("UnknownStatusDefaultsToActive", func(t *testing.T) {
		p := NewPlayer(PlayerSnapshot{ID: 1, Status: "vip"})
		if p.Status != PlayerStatusActive {
			t.Errorf("Expected active, got %q", p.Status)
		}
	})

	t.Run("KnownStatusKept", func(t *testing.T) {
		p := NewPlayer(PlayerSnapshot{ID: 1, Status: "banned"})
		if p.Status != PlayerStatusBanned {
			t.Errorf("Expected banned, got %q", p.Status)
		}
	})

	t.Run("NegativePromotionalPoolsClamped", func(t *testing.T) {
		p := NewPlayer(PlayerSnapshot{ID: 1, BonusCredit: -5, BonusReserve: -3})
		if p.BonusCredit != 0 || p.BonusReserve != 0 {
			t.Errorf("Expected clamped pools, got credit %v reserve %v",
				p.BonusCredit, p.BonusReserve)
		}
	})
}

func TestNewShop(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		s := NewShop(ShopSnapshot{ID: 1})
		if s.Percent != 90 {
			t.Errorf("Expected default percent 90, got %v", s.Percent)
		}
		if s.Currency != "USD" {
			t.Errorf("Expected default currency USD, got %q", s.Currency)
		}
	})

	t.Run("ExplicitValuesKept", func(t *testing.T) {
		s := NewShop(ShopSnapshot{ID: 1, Percent: 85, Currency: "EUR"})
		if s.Percent != 85 || s.Currency != "EUR" {
			t.Errorf("Snapshot values overridden: %v %q", s.Percent, s.Currency)
		}
	})
}

func TestNewGameConfig(t *testing.T) {
	t.Run("VisibleByDefault", func(t *testing.T) {
		g := NewGameConfig(GameSnapshot{ID: 1})
		if !g.View {
			t.Error("Expected game visible by default")
		}
	})

	t.Run("ExplicitHiddenKept", func(t *testing.T) {
		hidden := false
		g := NewGameConfig(GameSnapshot{ID: 1, View: &hidden})
		if g.View {
			t.Error("Expected hidden game to stay hidden")
		}
	})

	t.Run("DenominationFallback", func(t *testing.T) {
		g := NewGameConfig(GameSnapshot{ID: 1})
		if len(g.Denominations) != 1 || g.Denominations[0] != 1.0 {
			t.Errorf("Expected default denominations [1], got %v", g.Denominations)
		}
	})
}

func TestGameConfigBanks(t *testing.T) {
	g := NewGameConfig(GameSnapshot{ID: 1, MainBank: 100, BonusBank: 20})

	t.Run("BankSelection", func(t *testing.T) {
		if g.Bank(BankStateNormal) != 100 {
			t.Errorf("Expected main bank 100, got %v", g.Bank(BankStateNormal))
		}
		if g.Bank(BankStateBonus) != 20 {
			t.Errorf("Expected bonus bank 20, got %v", g.Bank(BankStateBonus))
		}
	})

	t.Run("AddToBankFormats", func(t *testing.T) {
		g.AddToBank(BankStateNormal, 0.259)
		// 100.259 floors to two decimals.
		if g.MainBank != 100.25 {
			t.Errorf("Expected main bank 100.25, got %v", g.MainBank)
		}
		g.AddToBank(BankStateBonus, -5)
		if g.BonusBank != 15 {
			t.Errorf("Expected bonus bank 15, got %v", g.BonusBank)
		}
	})
}

func TestJackpotMinBalance(t *testing.T) {
	j := NewJackpot(JackpotSnapshot{ID: 1, StartBalance: 200})
	if j.MinBalance() != 100 {
		t.Errorf("Expected refill trigger 100, got %v", j.MinBalance())
	}
}
