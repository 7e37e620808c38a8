package deviation

import (
	"github.com/Vodeneev/oddsapi/internal/pkg/models"
)

// Market is a family of quotes compared as one unit.
type Market string

const (
	MarketOutcomes           Market = "outcomes"
	MarketFirstHalfOutcomes  Market = "first_half_outcomes"
	MarketSecondHalfOutcomes Market = "second_half_outcomes"
	MarketTotals             Market = "totals"
	MarketFirstHalfTotals    Market = "first_half_totals"
	MarketHandicaps          Market = "handicaps"
	MarketFirstHalfHandicaps Market = "first_half_handicaps"
)

// Markets lists every family in trigger order.
var Markets = []Market{
	MarketOutcomes,
	MarketFirstHalfOutcomes,
	MarketSecondHalfOutcomes,
	MarketTotals,
	MarketFirstHalfTotals,
	MarketHandicaps,
	MarketFirstHalfHandicaps,
}

// lineBased markets are compared line by line and gated on the reference
// quote only.
func (m Market) lineBased() bool {
	switch m {
	case MarketTotals, MarketFirstHalfTotals, MarketHandicaps, MarketFirstHalfHandicaps:
		return true
	}
	return false
}

const (
	legHome = "home_team"
	legDraw = "draw"
	legAway = "away_team"
)

// leg is one priced selection. Legs sharing a group form one sub-market for
// the all-must-match rule: the three outcome legs, or over and under of a
// single totals line.
type leg struct {
	group string
	label string
	value float64
}

func legs(b *models.Bet, m Market) []leg {
	switch m {
	case MarketOutcomes:
		return outcomeLegs(b.Outcomes)
	case MarketFirstHalfOutcomes:
		return outcomeLegs(b.FirstHalfOutcomes)
	case MarketSecondHalfOutcomes:
		return outcomeLegs(b.SecondHalfOutcomes)
	case MarketTotals:
		return totalLegs(b.Totals)
	case MarketFirstHalfTotals:
		return totalLegs(b.FirstHalfTotals)
	case MarketHandicaps:
		return handicapLegs(b.Handicaps)
	case MarketFirstHalfHandicaps:
		return handicapLegs(b.FirstHalfHandicaps)
	}
	return nil
}

func outcomeLegs(o *models.Outcome) []leg {
	if o == nil {
		return nil
	}
	var out []leg
	for _, l := range []leg{
		{label: legHome, value: o.HomeWin},
		{label: legDraw, value: o.Draw},
		{label: legAway, value: o.AwayWin},
	} {
		if l.value > 0 {
			out = append(out, l)
		}
	}
	return out
}

func totalLegs(totals models.Totals) []leg {
	var out []leg
	for _, t := range totals {
		line := t.Line.String()
		if t.Over > 0 {
			out = append(out, leg{group: line, label: "over " + line, value: t.Over})
		}
		if t.Under > 0 {
			out = append(out, leg{group: line, label: "under " + line, value: t.Under})
		}
	}
	return out
}

func handicapLegs(handicaps models.Handicaps) []leg {
	var out []leg
	for _, h := range handicaps {
		if h.Coefficient <= 0 {
			continue
		}
		label := h.Line.String()
		if h.Side != "" {
			label = h.Side + " " + label
		}
		out = append(out, leg{group: label, label: label, value: h.Coefficient})
	}
	return out
}
