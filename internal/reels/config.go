// Package reels turns raw reel-strip sequences into concrete stop
// windows for one spin, under a configurable positioning strategy, with
// no per-game code. One engine serves every title whose only difference
// is how a scatter or bonus symbol is steered onto the visible window.
package reels

// Strategy selects how stop positions are generated.
type Strategy string

const (
	// StrategyAutoDetect resolves to a concrete strategy from the
	// configuration at spin time.
	StrategyAutoDetect Strategy = "auto_detect"
	// StrategyRandom draws every stop uniformly.
	StrategyRandom Strategy = "random"
	// StrategyScatterBased steers the scatter symbol into the window on
	// bonus spins.
	StrategyScatterBased Strategy = "scatter_based"
	// StrategyFixedReels pins a configured set of reels to deterministic
	// stops.
	StrategyFixedReels Strategy = "fixed_reels"
	// StrategyConditional evaluates ordered predicate/action rules.
	StrategyConditional Strategy = "conditional"
)

// defaultOutputWindow is the visible rows per reel.
const defaultOutputWindow = 3

// Rule is one conditional positioning rule. The first rule whose
// Condition matches a reel supplies its stop index through Action.
type Rule struct {
	Condition func(reel, stripLen int) bool
	Action    func(strip []string, reel int) int
}

// PlacementRule overrides scatter placement eligibility for one reel.
type PlacementRule struct {
	Reel  int
	Place bool
}

// Config is the declarative strategy descriptor for one game's reels.
type Config struct {
	Strategy      Strategy
	ScatterSymbol string
	// OutputWindow is the number of consecutive symbols read per reel;
	// zero means the default of 3.
	OutputWindow int

	// FixedReels lists reel indices pinned by the fixed_reels strategy.
	FixedReels []int
	// Rules drive the conditional strategy, evaluated in order.
	Rules []Rule

	// ScatterPositioning gates scatter steering entirely.
	ScatterPositioning bool
	// PlacementRules restrict which reels are scatter-eligible; empty
	// means every reel.
	PlacementRules []PlacementRule

	// SpecialBonusTypes are the bonus strip subtypes found in the strip
	// names (the text after the second underscore).
	SpecialBonusTypes []string
}

// DefaultConfig returns the baseline descriptor an engine starts from
// before strip analysis fills in the derived fields.
func DefaultConfig() *Config {
	return &Config{
		Strategy:           StrategyAutoDetect,
		OutputWindow:       defaultOutputWindow,
		ScatterPositioning: true,
	}
}

// HasSpecialBonusTypes reports whether any typed bonus strips exist.
func (c *Config) HasSpecialBonusTypes() bool {
	return len(c.SpecialBonusTypes) > 0
}

func (c *Config) outputWindow() int {
	if c.OutputWindow <= 0 {
		return defaultOutputWindow
	}
	return c.OutputWindow
}

func (c *Config) isFixedReel(reel int) bool {
	for _, r := range c.FixedReels {
		if r == reel {
			return true
		}
	}
	return false
}

// shouldPlaceScatter decides whether scatter steering applies to a reel.
// With no explicit placement rules every reel is eligible under the
// scatter strategy; under fixed_reels only the pinned reels are.
func (c *Config) shouldPlaceScatter(reel int, strategy Strategy) bool {
	if !c.ScatterPositioning {
		return false
	}
	if len(c.PlacementRules) > 0 {
		for _, rule := range c.PlacementRules {
			if rule.Reel == reel {
				return rule.Place
			}
		}
		return false
	}
	switch strategy {
	case StrategyScatterBased:
		return true
	case StrategyFixedReels:
		return c.isFixedReel(reel)
	default:
		return false
	}
}
