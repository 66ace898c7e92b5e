package reels

import (
	"reflect"
	"testing"

	"github.com/avolkov/slotcore/internal/domain"
	"go.uber.org/zap"
)

// stubSource replays a fixed sequence of draws, each reduced mod n.
type stubSource struct {
	vals []int
	i    int
}

func (s *stubSource) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	if len(s.vals) == 0 {
		return 0
	}
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v % n
}

func newTestEngine(strips map[string][]string, cfg *Config, vals ...int) *Engine {
	return New(strips, cfg, &stubSource{vals: vals}, zap.NewNop())
}

func TestReadWindow(t *testing.T) {
	e := newTestEngine(map[string][]string{
		"reelStrip1": {"a", "b", "c", "d"},
	}, nil)

	t.Run("Circular", func(t *testing.T) {
		got := e.readWindow([]string{"a", "b", "c", "d"}, 3)
		want := []string{"d", "a", "b"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Expected window %v, got %v", want, got)
		}
	})

	t.Run("InteriorStop", func(t *testing.T) {
		got := e.readWindow([]string{"a", "b", "c", "d", "e"}, 1)
		want := []string{"b", "c", "d"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Expected window %v, got %v", want, got)
		}
	})

	t.Run("CustomWindowSize", func(t *testing.T) {
		e4 := newTestEngine(map[string][]string{
			"reelStrip1": {"a", "b", "c", "d", "e"},
		}, &Config{Strategy: StrategyRandom, OutputWindow: 4})
		got := e4.readWindow([]string{"a", "b", "c", "d", "e"}, 3)
		want := []string{"d", "e", "a", "b"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Expected window %v, got %v", want, got)
		}
	})
}

func TestScatterStop(t *testing.T) {
	strip := []string{"0", "1", "0", "1", "1"}
	cfg := &Config{
		Strategy:           StrategyScatterBased,
		ScatterSymbol:      "0",
		ScatterPositioning: true,
	}

	t.Run("CandidatesRestrictedToValidRange", func(t *testing.T) {
		// Valid stops are [0, len-3]; only indices 0 and 2 hold the
		// scatter there.
		for draw, want := range map[int]int{0: 0, 1: 2} {
			e := newTestEngine(map[string][]string{"reelStrip1": strip}, cfg, draw)
			got := e.scatterStop(domain.WinTypeBonus, strip, 1)
			if got != want {
				t.Errorf("Draw %d: expected stop %d, got %d", draw, want, got)
			}
		}
	})

	t.Run("NormalWinFallsBackToRandom", func(t *testing.T) {
		e := newTestEngine(map[string][]string{"reelStrip1": strip}, cfg, 1)
		got := e.scatterStop(domain.WinTypeNormal, strip, 1)
		// Uniform draw over [0, len-3], stub yields 1.
		if got != 1 {
			t.Errorf("Expected random stop 1, got %d", got)
		}
	})

	t.Run("NoScatterOnStripFallsBackToRandom", func(t *testing.T) {
		plain := []string{"5", "6", "7", "8", "9"}
		e := newTestEngine(map[string][]string{"reelStrip1": plain}, cfg, 2)
		got := e.scatterStop(domain.WinTypeBonus, plain, 1)
		if got != 2 {
			t.Errorf("Expected random fallback stop 2, got %d", got)
		}
	})

	t.Run("PlacementRuleExcludesReel", func(t *testing.T) {
		ruled := &Config{
			Strategy:           StrategyScatterBased,
			ScatterSymbol:      "0",
			ScatterPositioning: true,
			PlacementRules:     []PlacementRule{{Reel: 1, Place: false}},
		}
		e := newTestEngine(map[string][]string{"reelStrip1": strip}, ruled, 1)
		got := e.scatterStop(domain.WinTypeBonus, strip, 1)
		if got != 1 {
			t.Errorf("Excluded reel steered to scatter: stop %d", got)
		}
	})
}

func TestResolveStrategy(t *testing.T) {
	strips := map[string][]string{
		"reelStrip1": {"a", "b", "c", "d", "e"},
	}

	cases := []struct {
		name string
		cfg  *Config
		want Strategy
	}{
		{"ExplicitStrategyWins", &Config{Strategy: StrategyRandom, FixedReels: []int{1}}, StrategyRandom},
		{"SpecialBonusTypesFirst", &Config{Strategy: StrategyAutoDetect, SpecialBonusTypes: []string{"expanding"}, FixedReels: []int{1}}, StrategyScatterBased},
		{"ThenFixedReels", &Config{Strategy: StrategyAutoDetect, FixedReels: []int{1}, Rules: []Rule{{}}}, StrategyFixedReels},
		{"ThenConditionalRules", &Config{Strategy: StrategyAutoDetect, Rules: []Rule{{}}}, StrategyConditional},
		{"DefaultRandom", &Config{Strategy: StrategyAutoDetect}, StrategyRandom},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(strips, tc.cfg)
			if got := e.resolveStrategy(); got != tc.want {
				t.Errorf("Expected strategy %q, got %q", tc.want, got)
			}
		})
	}
}

func TestGetReelStrips(t *testing.T) {
	t.Run("ReelsComeOutInIndexOrder", func(t *testing.T) {
		strips := map[string][]string{
			"reelStrip3": {"g", "h", "i", "j", "k"},
			"reelStrip1": {"a", "b", "c", "d", "e"},
			"reelStrip2": {"l", "m", "n", "o", "p"},
		}
		e := newTestEngine(strips, &Config{Strategy: StrategyRandom}, 0, 1, 2)

		out := e.GetReelStrips(domain.WinTypeNormal, domain.EventBet, "")
		if len(out.Positions) != 3 {
			t.Fatalf("Expected 3 positions, got %d", len(out.Positions))
		}
		if !reflect.DeepEqual(out.Positions, []int{0, 1, 2}) {
			t.Errorf("Expected positions [0 1 2], got %v", out.Positions)
		}
		if !reflect.DeepEqual(out.Windows[1], []string{"a", "b", "c"}) {
			t.Errorf("Reel 1 window wrong: %v", out.Windows[1])
		}
		if !reflect.DeepEqual(out.Windows[2], []string{"m", "n", "o"}) {
			t.Errorf("Reel 2 window wrong: %v", out.Windows[2])
		}
	})

	t.Run("ShortStripSkipped", func(t *testing.T) {
		strips := map[string][]string{
			"reelStrip1": {"a", "b"},
			"reelStrip2": {"c", "d", "e", "f", "g"},
		}
		e := newTestEngine(strips, &Config{Strategy: StrategyRandom}, 0)

		out := e.GetReelStrips(domain.WinTypeNormal, domain.EventBet, "")
		if _, ok := out.Windows[1]; ok {
			t.Error("Short strip produced a window")
		}
		if _, ok := out.Windows[2]; !ok {
			t.Error("Healthy strip missing from outcome")
		}
	})

	t.Run("FixedReelFormula", func(t *testing.T) {
		strip := make([]string, 13)
		for i := range strip {
			strip[i] = "x"
		}
		strips := map[string][]string{"reelStrip2": strip}
		e := newTestEngine(strips, &Config{Strategy: StrategyFixedReels, FixedReels: []int{2}})

		out := e.GetReelStrips(domain.WinTypeNormal, domain.EventBet, "")
		// (2*10) % (13-2)
		if out.Positions[0] != 9 {
			t.Errorf("Expected fixed stop 9, got %d", out.Positions[0])
		}
	})

	t.Run("ConditionalRuleDrivesStop", func(t *testing.T) {
		strips := map[string][]string{
			"reelStrip1": {"a", "b", "c", "d", "e", "f"},
		}
		cfg := &Config{
			Strategy: StrategyConditional,
			Rules: []Rule{{
				Condition: func(reel, stripLen int) bool { return reel == 1 },
				Action:    func(strip []string, reel int) int { return 3 },
			}},
		}
		e := newTestEngine(strips, cfg)

		out := e.GetReelStrips(domain.WinTypeNormal, domain.EventBet, "")
		if out.Positions[0] != 3 {
			t.Errorf("Expected rule-driven stop 3, got %d", out.Positions[0])
		}
		if !reflect.DeepEqual(out.Windows[1], []string{"d", "e", "f"}) {
			t.Errorf("Window wrong: %v", out.Windows[1])
		}
	})
}

func TestSelectActive(t *testing.T) {
	strips := map[string][]string{
		"reelStrip1":                {"a", "b", "c", "d"},
		"reelStripBonus1":           {"e", "f", "g", "h"},
		"reelStripBonus1_expanding": {"i", "j", "k", "l"},
	}
	e := newTestEngine(strips, &Config{Strategy: StrategyRandom})

	t.Run("BaseForNormalSpin", func(t *testing.T) {
		active := e.selectActive(domain.EventBet, "")
		if len(active) != 1 {
			t.Fatalf("Expected 1 base strip, got %d", len(active))
		}
		if _, ok := active["reelStrip1"]; !ok {
			t.Error("Base strip missing")
		}
	})

	t.Run("BonusSetForFreespin", func(t *testing.T) {
		active := e.selectActive(domain.EventFreespin, "")
		if len(active) != 2 {
			t.Fatalf("Expected 2 bonus strips, got %d", len(active))
		}
	})

	t.Run("SubtypeNarrowsBonusSet", func(t *testing.T) {
		active := e.selectActive(domain.EventFreespin, "expanding")
		if len(active) != 1 {
			t.Fatalf("Expected 1 typed strip, got %d", len(active))
		}
		if _, ok := active["reelStripBonus1_expanding"]; !ok {
			t.Error("Typed bonus strip missing")
		}
	})

	t.Run("UnknownSubtypeFallsBackToFullBonusSet", func(t *testing.T) {
		active := e.selectActive(domain.EventFreespin, "cascading")
		if len(active) != 2 {
			t.Fatalf("Expected full bonus set, got %d strips", len(active))
		}
	})
}

func TestStripIntrospection(t *testing.T) {
	t.Run("ScatterSymbolLowIntegerPreferred", func(t *testing.T) {
		strip := make([]string, 0, 40)
		for i := 0; i < 11; i++ {
			strip = append(strip, "1")
		}
		for i := 0; i < 29; i++ {
			strip = append(strip, "7")
		}
		e := newTestEngine(map[string][]string{"reelStrip1": strip}, nil)
		if got := e.Config().ScatterSymbol; got != "1" {
			t.Errorf("Expected scatter symbol 1, got %q", got)
		}
	})

	t.Run("ScatterSymbolRarestInBand", func(t *testing.T) {
		strip := make([]string, 0, 70)
		for i := 0; i < 60; i++ {
			strip = append(strip, "9") // too common
		}
		for i := 0; i < 7; i++ {
			strip = append(strip, "8")
		}
		for i := 0; i < 12; i++ {
			strip = append(strip, "6")
		}
		e := newTestEngine(map[string][]string{"reelStrip1": strip}, nil)
		if got := e.Config().ScatterSymbol; got != "8" {
			t.Errorf("Expected scatter symbol 8, got %q", got)
		}
	})

	t.Run("BonusSubtypesFromStripNames", func(t *testing.T) {
		strips := map[string][]string{
			"reelStrip1":                {"a", "b", "c"},
			"reelStripBonus1_expanding": {"a", "b", "c"},
			"reelStripBonus2_expanding": {"a", "b", "c"},
			"reelStripBonus1_sticky":    {"a", "b", "c"},
			"reelStripBonus1":           {"a", "b", "c"},
		}
		e := newTestEngine(strips, nil)
		want := []string{"expanding", "sticky"}
		if got := e.Config().SpecialBonusTypes; !reflect.DeepEqual(got, want) {
			t.Errorf("Expected subtypes %v, got %v", want, got)
		}
	})

	t.Run("ReelIndexFromName", func(t *testing.T) {
		cases := map[string]int{
			"reelStrip1":                1,
			"reelStrip12":               12,
			"reelStripBonus3_expanding": 3,
		}
		for name, want := range cases {
			if got := reelIndex(name); got != want {
				t.Errorf("reelIndex(%q) = %d, want %d", name, got, want)
			}
		}
	})
}
