package models

import (
	"database/sql"
	"time"
)

// Fixture is a scheduled match as delivered by the reference-data feed.
type Fixture struct {
	ID           int64         `db:"id" json:"id"`
	SourceID     int64         `db:"source_id" json:"source_id"` // id assigned by the reference-data source
	Date         time.Time     `db:"date" json:"date"`           // kickoff
	Timezone     string        `db:"timezone" json:"timezone"`
	LeagueID     sql.NullInt64 `db:"league_id" json:"-"`
	LeagueSeason int           `db:"league_season" json:"league_season"`

	HomeTeamName     string `db:"home_team_name" json:"home_team_name"`
	HomeTeamSourceID int64  `db:"home_team_source_id" json:"home_team_source_id"`
	AwayTeamName     string `db:"away_team_name" json:"away_team_name"`
	AwayTeamSourceID int64  `db:"away_team_source_id" json:"away_team_source_id"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Name returns "home vs away".
func (f Fixture) Name() string {
	return f.HomeTeamName + " vs " + f.AwayTeamName
}

// Started reports whether kickoff is not in the future relative to now.
func (f Fixture) Started(now time.Time) bool {
	return !f.Date.After(now)
}

// Notification records that a fixture has been reported on some platform.
// A fixture with at least one notification is never reported again.
type Notification struct {
	ID        int64     `db:"id" json:"id"`
	FixtureID int64     `db:"fixture_id" json:"fixture_id"`
	Platform  string    `db:"platform" json:"platform"`
	Message   string    `db:"message" json:"message"`
	SentAt    time.Time `db:"sent_at" json:"sent_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
