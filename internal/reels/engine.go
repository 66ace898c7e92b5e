package reels

import (
	"sort"
	"strings"

	"github.com/avolkov/slotcore/internal/domain"
	"github.com/avolkov/slotcore/internal/rng"
	"go.uber.org/zap"
)

const (
	basePrefix  = "reelStrip"
	bonusPrefix = "reelStripBonus"
)

// Outcome is the reel result of one spin: the visible symbol window per
// reel index plus the reported stop positions, in reel order.
type Outcome struct {
	Windows   map[int][]string `json:"reels"`
	Positions []int            `json:"rp"`
}

// Engine generates stop positions and output windows over a named set
// of reel strips. Strips are immutable for the engine's lifetime; the
// randomness source is injected so tests can drive it deterministically.
type Engine struct {
	base  map[string][]string
	bonus map[string][]string
	cfg   *Config
	rnd   rng.Source
	log   *zap.Logger
}

// New partitions the named strips into base and bonus sets and derives
// any config fields the caller left to introspection. A nil cfg gets the
// full derived default.
func New(strips map[string][]string, cfg *Config, rnd rng.Source, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		base:  make(map[string][]string),
		bonus: make(map[string][]string),
		rnd:   rnd,
		log:   logger,
	}
	for name, strip := range strips {
		if len(strip) == 0 {
			continue
		}
		if strings.HasPrefix(name, bonusPrefix) {
			e.bonus[name] = strip
		} else if strings.HasPrefix(name, basePrefix) {
			e.base[name] = strip
		}
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ScatterSymbol == "" {
		cfg.ScatterSymbol = detectScatterSymbol(e.base)
	}
	if len(cfg.SpecialBonusTypes) == 0 {
		cfg.SpecialBonusTypes = detectSpecialBonusTypes(e.bonus)
	}
	e.cfg = cfg
	return e
}

// Config exposes the resolved descriptor, derived fields included.
func (e *Engine) Config() *Config { return e.cfg }

// detectScatterSymbol scans base strip symbol frequencies. Low-integer
// ids seen more than 10 times win; otherwise the rarest symbol with a
// frequency strictly between 5 and 50; otherwise "0".
func detectScatterSymbol(base map[string][]string) string {
	counts := make(map[string]int)
	for _, strip := range base {
		for _, sym := range strip {
			counts[sym]++
		}
	}

	for _, candidate := range []string{"0", "1", "2", "3", "4"} {
		if counts[candidate] > 10 {
			return candidate
		}
	}

	bestSym := ""
	bestCount := 0
	for sym, n := range counts {
		if n > 5 && n < 50 {
			if bestSym == "" || n < bestCount || (n == bestCount && sym < bestSym) {
				bestSym, bestCount = sym, n
			}
		}
	}
	if bestSym != "" {
		return bestSym
	}
	return "0"
}

// detectSpecialBonusTypes collects the distinct suffixes after the
// second underscore of bonus strip names, e.g. "expanding" from
// "reelStripBonus2_expanding".
func detectSpecialBonusTypes(bonus map[string][]string) []string {
	seen := make(map[string]bool)
	var types []string
	for name := range bonus {
		idx := strings.Index(name, "_")
		if idx < 0 || idx == len(name)-1 {
			continue
		}
		subtype := name[idx+1:]
		if !seen[subtype] {
			seen[subtype] = true
			types = append(types, subtype)
		}
	}
	sort.Strings(types)
	return types
}

// reelIndex extracts the numeric reel index from a strip name.
func reelIndex(name string) int {
	n := 0
	found := false
	for _, r := range name {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
			found = true
		} else if found {
			break
		}
	}
	return n
}

// GetReelStrips produces the spin outcome for one round: the active
// strip set is selected from the event and bonus subtype, each reel gets
// a stop index under the resolved strategy, and the circular window is
// read from each stop.
func (e *Engine) GetReelStrips(winType, slotEvent, bonusSubtype string) *Outcome {
	active := e.selectActive(slotEvent, bonusSubtype)
	strategy := e.resolveStrategy()

	names := make([]string, 0, len(active))
	for name := range active {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return reelIndex(names[i]) < reelIndex(names[j])
	})

	out := &Outcome{Windows: make(map[int][]string)}
	for _, name := range names {
		strip := active[name]
		reel := reelIndex(name)
		if len(strip) < 3 {
			// ConfigurationDefect: observable, never fatal.
			e.log.Warn("reel strip missing or too short, skipping reel",
				zap.String("strip", name),
				zap.Int("length", len(strip)))
			continue
		}

		stop := e.stopIndex(strategy, winType, strip, reel)
		window := e.readWindow(strip, stop)

		out.Windows[reel] = window
		out.Positions = append(out.Positions, stop)
	}
	return out
}

// selectActive picks the strip set for this spin. Freespins prefer a
// bonus set matching the requested subtype, then the full bonus set;
// everything else spins the base set.
func (e *Engine) selectActive(slotEvent, bonusSubtype string) map[string][]string {
	if slotEvent == domain.EventFreespin && len(e.bonus) > 0 {
		if bonusSubtype != "" {
			typed := make(map[string][]string)
			for name, strip := range e.bonus {
				if strings.HasSuffix(name, "_"+bonusSubtype) {
					typed[name] = strip
				}
			}
			if len(typed) > 0 {
				return typed
			}
		}
		return e.bonus
	}
	return e.base
}

// resolveStrategy collapses auto_detect onto a concrete strategy.
func (e *Engine) resolveStrategy() Strategy {
	strategy := e.cfg.Strategy
	if strategy != StrategyAutoDetect && strategy != "" {
		return strategy
	}
	switch {
	case e.cfg.HasSpecialBonusTypes():
		return StrategyScatterBased
	case len(e.cfg.FixedReels) > 0:
		return StrategyFixedReels
	case len(e.cfg.Rules) > 0:
		return StrategyConditional
	default:
		return StrategyRandom
	}
}

// randomStop draws uniformly over [0, len-3].
func (e *Engine) randomStop(stripLen int) int {
	return e.rnd.Intn(stripLen - 2)
}

func (e *Engine) stopIndex(strategy Strategy, winType string, strip []string, reel int) int {
	switch strategy {
	case StrategyScatterBased:
		return e.scatterStop(winType, strip, reel)
	case StrategyFixedReels:
		if e.cfg.isFixedReel(reel) {
			return (reel * 10) % (len(strip) - 2)
		}
		return e.randomStop(len(strip))
	case StrategyConditional:
		for _, rule := range e.cfg.Rules {
			if rule.Condition != nil && rule.Condition(reel, len(strip)) {
				if rule.Action != nil {
					return rule.Action(strip, reel)
				}
			}
		}
		return e.randomStop(len(strip))
	default:
		return e.randomStop(len(strip))
	}
}

// scatterStop steers the scatter symbol into the window on bonus spins:
// among the stops in the valid range that land on the scatter, one is
// chosen uniformly; with none present it degrades to a uniform draw.
func (e *Engine) scatterStop(winType string, strip []string, reel int) int {
	if winType != domain.WinTypeBonus {
		return e.randomStop(len(strip))
	}
	if !e.cfg.shouldPlaceScatter(reel, StrategyScatterBased) {
		return e.randomStop(len(strip))
	}

	var candidates []int
	for i := 0; i < len(strip)-2; i++ {
		if strip[i] == e.cfg.ScatterSymbol {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return e.randomStop(len(strip))
	}
	return candidates[e.rnd.Intn(len(candidates))]
}

// readWindow reads the output window starting at stop, treating the
// strip as circular.
func (e *Engine) readWindow(strip []string, stop int) []string {
	size := e.cfg.outputWindow()
	window := make([]string, size)
	for i := 0; i < size; i++ {
		window[i] = strip[(stop+i)%len(strip)]
	}
	return window
}
