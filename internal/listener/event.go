package listener

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Vodeneev/oddsapi/internal/pkg/models"
)

// ErrDecode marks a queue item that is not a valid event.
var ErrDecode = errors.New("malformed event")

// Event is a decoded queue item in source-independent form.
type Event struct {
	URL      string
	Datetime string // free text, parsed later
	Home     string
	Away     string
	Update   models.OddsUpdate
}

// rawEvent is the wire shape shared by all scrapers. Market blocks are kept
// raw where sources disagree on the encoding.
type rawEvent struct {
	EventURL     string `json:"event_url"`
	EventListURL string `json:"event_list_url"`
	Name         string `json:"name"`
	Datetime     string `json:"datetime"`
	HomeTeamName string `json:"home_team_name"`
	AwayTeamName string `json:"away_team_name"`

	// flat 1X2 prices sent by older scrapers
	HomeTeam *flexFloat `json:"home_team"`
	Draw     *flexFloat `json:"draw"`
	AwayTeam *flexFloat `json:"away_team"`

	OutcomeOdds           *rawOutcome     `json:"outcome_odds"`
	FirstHalfOutcomeOdds  *rawOutcome     `json:"first_half_outcome_odds"`
	SecondHalfOutcomeOdds *rawOutcome     `json:"second_half_outcome_odds"`
	TotalOdds             json.RawMessage `json:"total_odds"`
	FirstHalfTotalOdds    json.RawMessage `json:"first_half_total_odds"`
	HandicapOdds          []rawHandicap   `json:"handicap_odds"`
	FirstHalfHandicapOdds []rawHandicap   `json:"first_half_handicap_odds"`
}

type rawOutcome struct {
	HomeWin flexFloat `json:"home_win"`
	Draw    flexFloat `json:"draw"`
	AwayWin flexFloat `json:"away_win"`
}

type rawTotal struct {
	Total      flexString `json:"total"`
	TotalOver  flexFloat  `json:"total_over"`
	TotalUnder flexFloat  `json:"total_under"`
	Over       flexFloat  `json:"over"`
	Under      flexFloat  `json:"under"`
}

type rawHandicap struct {
	Handicap            flexString `json:"handicap"`
	HandicapCoefficient flexFloat  `json:"handicap_coefficient"`
	Coefficient         flexFloat  `json:"coefficient"`
	Type                string     `json:"type"`
	Side                string     `json:"side"`
}

// decodeEvent parses one queue item and applies the source's market
// normalisation before converting it to an Event.
func decodeEvent(data []byte, normalize Normalizer) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if normalize != nil {
		if err := normalize(&raw); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}

	ev := Event{
		URL:      strings.TrimSpace(raw.EventURL),
		Datetime: strings.TrimSpace(raw.Datetime),
		Home:     strings.TrimSpace(raw.HomeTeamName),
		Away:     strings.TrimSpace(raw.AwayTeamName),
	}
	switch {
	case ev.URL == "":
		return Event{}, fmt.Errorf("%w: missing event_url", ErrDecode)
	case ev.Datetime == "":
		return Event{}, fmt.Errorf("%w: missing datetime", ErrDecode)
	case ev.Home == "" || ev.Away == "":
		return Event{}, fmt.Errorf("%w: missing team names", ErrDecode)
	}

	upd := models.OddsUpdate{EventURL: ev.URL}
	upd.Outcomes = raw.OutcomeOdds.outcome()
	if upd.Outcomes == nil && raw.HomeTeam != nil && raw.Draw != nil && raw.AwayTeam != nil {
		upd.Outcomes = (&rawOutcome{HomeWin: *raw.HomeTeam, Draw: *raw.Draw, AwayWin: *raw.AwayTeam}).outcome()
	}
	upd.FirstHalfOutcomes = raw.FirstHalfOutcomeOdds.outcome()
	upd.SecondHalfOutcomes = raw.SecondHalfOutcomeOdds.outcome()

	var err error
	if upd.Totals, err = decodeTotals(raw.TotalOdds); err != nil {
		return Event{}, fmt.Errorf("%w: total_odds: %v", ErrDecode, err)
	}
	if upd.FirstHalfTotals, err = decodeTotals(raw.FirstHalfTotalOdds); err != nil {
		return Event{}, fmt.Errorf("%w: first_half_total_odds: %v", ErrDecode, err)
	}
	if upd.Handicaps, err = convertHandicaps(raw.HandicapOdds); err != nil {
		return Event{}, fmt.Errorf("%w: handicap_odds: %v", ErrDecode, err)
	}
	if upd.FirstHalfHandicaps, err = convertHandicaps(raw.FirstHalfHandicapOdds); err != nil {
		return Event{}, fmt.Errorf("%w: first_half_handicap_odds: %v", ErrDecode, err)
	}

	if upd.Empty() {
		return Event{}, fmt.Errorf("%w: no market blocks", ErrDecode)
	}
	ev.Update = upd
	return ev, nil
}

func (o *rawOutcome) outcome() *models.Outcome {
	// {} or all-null legs carry no quote
	if o == nil || (o.HomeWin == 0 && o.Draw == 0 && o.AwayWin == 0) {
		return nil
	}
	return &models.Outcome{HomeWin: float64(o.HomeWin), Draw: float64(o.Draw), AwayWin: float64(o.AwayWin)}
}

// decodeTotals reads an array of total records. Object encodings must have
// been rewritten by the source normaliser first.
func decodeTotals(data json.RawMessage) (models.Totals, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] != '[' {
		return nil, errors.New("expected an array of totals")
	}

	var records []rawTotal
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}

	out := make(models.Totals, 0, len(records))
	for _, r := range records {
		line, err := models.ParseLine(string(r.Total))
		if err != nil {
			return nil, err
		}
		over, under := r.TotalOver, r.TotalUnder
		if over == 0 {
			over = r.Over
		}
		if under == 0 {
			under = r.Under
		}
		out = append(out, models.Total{Line: line, Over: float64(over), Under: float64(under)})
	}
	return out, nil
}

func convertHandicaps(in []rawHandicap) (models.Handicaps, error) {
	if in == nil {
		return nil, nil
	}
	out := make(models.Handicaps, 0, len(in))
	for _, r := range in {
		line, err := models.ParseLine(string(r.Handicap))
		if err != nil {
			return nil, err
		}
		coef := r.HandicapCoefficient
		if coef == 0 {
			coef = r.Coefficient
		}
		side := r.Side
		if side == "" {
			side = r.Type
		}
		out = append(out, models.Handicap{Line: line, Coefficient: float64(coef), Side: normalizeSide(side)})
	}
	return out, nil
}

func normalizeSide(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "home", "home_team", "h":
		return "home"
	case "2", "away", "away_team", "a":
		return "away"
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// flexFloat accepts 1.85, "1.85" and null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("invalid odds value %q", s)
	}
	*f = flexFloat(v)
	return nil
}

// flexString accepts "2.5" and 2.5.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*s = flexString(d.String())
	return nil
}
