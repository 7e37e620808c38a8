package deviation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Vodeneev/oddsapi/internal/pkg/config"
)

// ErrNoReference is returned when no reference bookmaker is configured.
var ErrNoReference = errors.New("reference bookmaker is required")

type Strategy string

const (
	StrategyPercent  Strategy = "percent"
	StrategyAbsolute Strategy = "absolute"
)

type Direction string

const (
	DirectionLower  Direction = "lower"  // compared quote below the reference
	DirectionHigher Direction = "higher" // compared quote above the reference
	DirectionBoth   Direction = "both"
)

// Params configures one analysis run.
type Params struct {
	PercentDeviationThreshold  float64 // percent units, 20 means 20%
	AbsoluteDeviationThreshold float64
	MaxOdds                    float64
	ReferenceBookmaker         string
	Strategy                   Strategy
	Direction                  Direction
	AllBetsMustMatch           bool

	LeagueIDs         []int64
	BetTypes          []string // keep only triggers containing one of these
	TrackedBookmakers []string // compared bookmakers; empty means all
}

// DefaultParams mirrors the configuration defaults.
func DefaultParams() Params {
	return ParamsFromConfig(config.Defaults().Deviation)
}

func ParamsFromConfig(cfg config.DeviationConfig) Params {
	return Params{
		PercentDeviationThreshold:  cfg.PercentDeviationThreshold,
		AbsoluteDeviationThreshold: cfg.AbsoluteDeviationThreshold,
		MaxOdds:                    cfg.MaxOdds,
		ReferenceBookmaker:         cfg.ReferenceBookmaker,
		Strategy:                   Strategy(strings.ToLower(cfg.DeviationStrategy)),
		Direction:                  Direction(strings.ToLower(cfg.DeviationDirection)),
		AllBetsMustMatch:           cfg.AllBetsMustMatch,
		TrackedBookmakers:          cfg.TrackedBookmakers,
	}
}

func (p Params) Validate() error {
	if strings.TrimSpace(p.ReferenceBookmaker) == "" {
		return ErrNoReference
	}
	switch p.Strategy {
	case StrategyPercent, StrategyAbsolute:
	default:
		return fmt.Errorf("unknown deviation strategy %q", p.Strategy)
	}
	switch p.Direction {
	case DirectionLower, DirectionHigher, DirectionBoth:
	default:
		return fmt.Errorf("unknown deviation direction %q", p.Direction)
	}
	if !finite(p.PercentDeviationThreshold) || p.PercentDeviationThreshold < 0 {
		return fmt.Errorf("percent deviation threshold must be a non-negative number, got %v", p.PercentDeviationThreshold)
	}
	if !finite(p.AbsoluteDeviationThreshold) || p.AbsoluteDeviationThreshold < 0 {
		return fmt.Errorf("absolute deviation threshold must be a non-negative number, got %v", p.AbsoluteDeviationThreshold)
	}
	if !finite(p.MaxOdds) || p.MaxOdds <= 0 {
		return fmt.Errorf("max odds must be a positive number, got %v", p.MaxOdds)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Deviates reports whether compared differs from reference by more than the
// configured threshold in the configured direction. Arithmetic is decimal so
// that boundary cases are exact.
func (p Params) Deviates(reference, compared float64) bool {
	ref := decimal.NewFromFloat(reference)
	cmp := decimal.NewFromFloat(compared)

	var threshold decimal.Decimal
	if p.Strategy == StrategyAbsolute {
		threshold = decimal.NewFromFloat(p.AbsoluteDeviationThreshold)
	} else {
		threshold = ref.Div(decimal.NewFromInt(100)).Mul(decimal.NewFromFloat(p.PercentDeviationThreshold))
	}

	switch p.Direction {
	case DirectionHigher:
		return cmp.Sub(ref).GreaterThan(threshold)
	case DirectionLower:
		return ref.Sub(cmp).GreaterThan(threshold)
	default:
		return cmp.Sub(ref).Abs().GreaterThan(threshold)
	}
}

// underCeiling is the max-odds gate.
func (p Params) underCeiling(v float64) bool {
	return decimal.NewFromFloat(v).LessThan(decimal.NewFromFloat(p.MaxOdds))
}

func (p Params) tracks(bookmaker string) bool {
	if len(p.TrackedBookmakers) == 0 {
		return true
	}
	for _, b := range p.TrackedBookmakers {
		if strings.EqualFold(b, bookmaker) {
			return true
		}
	}
	return false
}

func (p Params) wantsTrigger(label string) bool {
	if len(p.BetTypes) == 0 {
		return true
	}
	label = strings.ToLower(label)
	for _, t := range p.BetTypes {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" && strings.Contains(label, t) {
			return true
		}
	}
	return false
}
