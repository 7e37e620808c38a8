package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome holds 1X2 decimal odds.
type Outcome struct {
	HomeWin float64 `json:"home_win"`
	Draw    float64 `json:"draw"`
	AwayWin float64 `json:"away_win"`
}

// Total is one over/under line.
type Total struct {
	Line  decimal.Decimal `json:"total"`
	Over  float64         `json:"over"`
	Under float64         `json:"under"`
}

// Handicap is one handicap line quoted for a side ("home" or "away").
type Handicap struct {
	Line        decimal.Decimal `json:"handicap"`
	Coefficient float64         `json:"coefficient"`
	Side        string          `json:"side"`
}

// Totals is stored as a JSONB array.
type Totals []Total

// Handicaps is stored as a JSONB array.
type Handicaps []Handicap

// Bet is the latest odds snapshot of one bookmaker for one fixture.
// A nil block means the bookmaker never quoted that market.
type Bet struct {
	ID        int64     `db:"id" json:"id"`
	FixtureID int64     `db:"fixture_id" json:"fixture_id"`
	Bookmaker string    `db:"bookmaker" json:"bookmaker"`
	Source    string    `db:"source" json:"source"` // "api" or the queue name
	EventURL  string    `db:"event_url" json:"event_url"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Outcomes           *Outcome  `db:"outcomes" json:"outcomes,omitempty"`
	FirstHalfOutcomes  *Outcome  `db:"first_half_outcomes" json:"first_half_outcomes,omitempty"`
	SecondHalfOutcomes *Outcome  `db:"second_half_outcomes" json:"second_half_outcomes,omitempty"`
	Totals             Totals    `db:"totals" json:"totals,omitempty"`
	FirstHalfTotals    Totals    `db:"first_half_totals" json:"first_half_totals,omitempty"`
	Handicaps          Handicaps `db:"handicaps" json:"handicaps,omitempty"`
	FirstHalfHandicaps Handicaps `db:"first_half_handicaps" json:"first_half_handicaps,omitempty"`
}

// OddsUpdate is the source-independent odds record produced from a queue event.
// Absent blocks leave the stored snapshot untouched.
type OddsUpdate struct {
	EventURL           string
	Outcomes           *Outcome
	FirstHalfOutcomes  *Outcome
	SecondHalfOutcomes *Outcome
	Totals             Totals
	FirstHalfTotals    Totals
	Handicaps          Handicaps
	FirstHalfHandicaps Handicaps
}

// Empty reports whether the update carries no market block at all.
func (u OddsUpdate) Empty() bool {
	return u.Outcomes == nil && u.FirstHalfOutcomes == nil && u.SecondHalfOutcomes == nil &&
		len(u.Totals) == 0 && len(u.FirstHalfTotals) == 0 &&
		len(u.Handicaps) == 0 && len(u.FirstHalfHandicaps) == 0
}

// minusGlyphs are dash characters some sources use instead of '-'.
var minusGlyphs = strings.NewReplacer(
	"‐", "-", // hyphen
	"‑", "-", // non-breaking hyphen
	"‒", "-", // figure dash
	"–", "-", // en dash
	"−", "-", // minus sign
)

// ParseLine parses a totals or handicap line such as "2.5", "+1" or "‑1.5".
func ParseLine(s string) (decimal.Decimal, error) {
	s = minusGlyphs.Replace(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "+")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid line %q: %w", s, err)
	}
	return d, nil
}

func (o Outcome) Value() (driver.Value, error) {
	return json.Marshal(o)
}

func (o *Outcome) Scan(src any) error {
	return scanJSON(src, o)
}

func (t Totals) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal([]Total(t))
}

func (t *Totals) Scan(src any) error {
	if src == nil {
		*t = nil
		return nil
	}
	return scanJSON(src, (*[]Total)(t))
}

func (h Handicaps) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal([]Handicap(h))
}

func (h *Handicaps) Scan(src any) error {
	if src == nil {
		*h = nil
		return nil
	}
	return scanJSON(src, (*[]Handicap)(h))
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	case nil:
		return nil
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dst)
	}
}
