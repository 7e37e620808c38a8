package listener

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSource(t *testing.T, name string) Source {
	t.Helper()
	s, ok := SourceByName(name)
	require.True(t, ok, "source %s not registered", name)
	return s
}

func TestRegisteredSources(t *testing.T) {
	assert.Equal(t, []string{"betcity", "fonbet", "marathon", "pinnacle"}, AvailableNames())

	_, err := Resolve([]string{"betcity", "nope"})
	require.Error(t, err)

	all, err := Resolve(nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestDecodePinnacleKeyedTotals(t *testing.T) {
	payload := `{
		"event_url": "https://pinnacle.example/e/1",
		"datetime": "2024-05-10 21:00",
		"home_team_name": "Metz",
		"away_team_name": "Lens",
		"outcome_odds": {"home_win": 2.1, "draw": "3.4", "away_win": 3.9},
		"total_odds": {
			"3.5": {"total_over": 3.1, "total_under": 1.35},
			"2.5": {"total_over": 1.9, "total_under": 1.95}
		},
		"first_half_total_odds": {"1.0": {"total_over": 2.2, "total_under": 1.6}}
	}`

	ev, err := mustSource(t, "pinnacle").Decode([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, "Metz", ev.Home)
	require.NotNil(t, ev.Update.Outcomes)
	assert.Equal(t, 3.4, ev.Update.Outcomes.Draw)

	require.Len(t, ev.Update.Totals, 2)
	assert.True(t, ev.Update.Totals[0].Line.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, 1.9, ev.Update.Totals[0].Over)
	assert.True(t, ev.Update.Totals[1].Line.Equal(decimal.RequireFromString("3.5")))

	require.Len(t, ev.Update.FirstHalfTotals, 1)
	assert.True(t, ev.Update.FirstHalfTotals[0].Line.Equal(decimal.NewFromInt(1)))
}

func TestDecodeBetcityKeysOnlyFirstHalfTotals(t *testing.T) {
	payload := `{
		"event_url": "https://betcity.example/e/2",
		"datetime": "10.05.2024 21:00",
		"home_team_name": "Arsenal (W)",
		"away_team_name": "Chelsea (W)",
		"total_odds": [{"total": "2.5", "total_over": 1.8, "total_under": 2.0}],
		"first_half_total_odds": {"0.5": {"total_over": 1.4, "total_under": 2.7}}
	}`

	ev, err := mustSource(t, "betcity").Decode([]byte(payload))
	require.NoError(t, err)
	require.Len(t, ev.Update.Totals, 1)
	require.Len(t, ev.Update.FirstHalfTotals, 1)
	assert.Nil(t, ev.Update.Outcomes)

	keyedFullTime := `{
		"event_url": "https://betcity.example/e/2",
		"datetime": "10.05.2024 21:00",
		"home_team_name": "A",
		"away_team_name": "B",
		"total_odds": {"2.5": {"total_over": 1.8, "total_under": 2.0}}
	}`
	_, err = mustSource(t, "betcity").Decode([]byte(keyedFullTime))
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestDecodeFonbetHandicapsAndFlatOutcomes(t *testing.T) {
	payload := `{
		"event_url": "https://fonbet.example/e/3",
		"name": "Metz - Lens",
		"datetime": "today 21:00",
		"home_team_name": "Metz",
		"away_team_name": "Lens",
		"home_team": 2.05,
		"draw": 3.3,
		"away_team": 3.8,
		"handicap_odds": [
			{"handicap": "‑1.5", "handicap_coefficient": "3.2", "type": "1"},
			{"handicap": "+1.5", "handicap_coefficient": 1.3, "type": "2"}
		]
	}`

	ev, err := mustSource(t, "fonbet").Decode([]byte(payload))
	require.NoError(t, err)
	require.NotNil(t, ev.Update.Outcomes)
	assert.Equal(t, 2.05, ev.Update.Outcomes.HomeWin)

	require.Len(t, ev.Update.Handicaps, 2)
	assert.True(t, ev.Update.Handicaps[0].Line.Equal(decimal.RequireFromString("-1.5")))
	assert.Equal(t, "home", ev.Update.Handicaps[0].Side)
	assert.Equal(t, 3.2, ev.Update.Handicaps[0].Coefficient)
	assert.True(t, ev.Update.Handicaps[1].Line.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, "away", ev.Update.Handicaps[1].Side)
}

func TestDecodeRejectsMalformedEvents(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{"event_url": `},
		{"missing url", `{"datetime": "today", "home_team_name": "A", "away_team_name": "B", "outcome_odds": {"home_win": 2}}`},
		{"missing date", `{"event_url": "u", "home_team_name": "A", "away_team_name": "B", "outcome_odds": {"home_win": 2}}`},
		{"missing team", `{"event_url": "u", "datetime": "today", "home_team_name": "A", "outcome_odds": {"home_win": 2}}`},
		{"no markets", `{"event_url": "u", "datetime": "today", "home_team_name": "A", "away_team_name": "B"}`},
		{"bad odds", `{"event_url": "u", "datetime": "today", "home_team_name": "A", "away_team_name": "B", "outcome_odds": {"home_win": "abc"}}`},
		{"nan odds", `{"event_url": "u", "datetime": "today", "home_team_name": "A", "away_team_name": "B", "outcome_odds": {"home_win": "NaN", "draw": 3.3, "away_win": 3.6}}`},
		{"infinite odds", `{"event_url": "u", "datetime": "today", "home_team_name": "A", "away_team_name": "B", "outcome_odds": {"home_win": 2, "draw": "Infinity", "away_win": 3.6}}`},
		{"infinite total", `{"event_url": "u", "datetime": "today", "home_team_name": "A", "away_team_name": "B", "total_odds": [{"total": "2.5", "over": "-Inf", "under": 1.9}]}`},
		{"empty outcomes only", `{"event_url": "u", "datetime": "today", "home_team_name": "A", "away_team_name": "B", "outcome_odds": {}}`},
		{"bad line", `{"event_url": "u", "datetime": "today", "home_team_name": "A", "away_team_name": "B", "total_odds": [{"total": "x"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mustSource(t, "fonbet").Decode([]byte(tt.payload))
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestDecodeTreatsEmptyOutcomesAsAbsent(t *testing.T) {
	payload := `{
		"event_url": "u", "datetime": "today", "home_team_name": "A", "away_team_name": "B",
		"outcome_odds": {"home_win": null, "draw": null, "away_win": null},
		"first_half_outcome_odds": {},
		"home_team": null, "draw": null, "away_team": null,
		"total_odds": [{"total": "2.5", "over": 1.9, "under": 1.95}]
	}`

	ev, err := mustSource(t, "fonbet").Decode([]byte(payload))
	require.NoError(t, err)
	assert.Nil(t, ev.Update.Outcomes)
	assert.Nil(t, ev.Update.FirstHalfOutcomes)
	assert.Len(t, ev.Update.Totals, 1)
}
