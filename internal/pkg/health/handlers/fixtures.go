package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Vodeneev/oddsapi/internal/deviation"
	"github.com/Vodeneev/oddsapi/internal/pkg/storage"
)

// FixtureFinder is implemented by deviation.Analyzer.
type FixtureFinder interface {
	Find(ctx context.Context, params deviation.Params) ([]deviation.Flagged, error)
	FindUnnotified(ctx context.Context, params deviation.Params) ([]deviation.Flagged, error)
}

// BookmakerCounter is implemented by storage.BetRepository.
type BookmakerCounter interface {
	BookmakerCounts(ctx context.Context) ([]storage.BookmakerCount, error)
}

type fixturesResponse struct {
	Count    int                 `json:"count"`
	Fixtures []deviation.Flagged `json:"fixtures"`
}

// Fixtures handles /fixtures. Query parameters override defaults:
// reference, strategy, direction, percent, absolute, max_odds, all, league
// (repeatable), bet_type (repeatable), bookmaker (repeatable), unnotified.
func Fixtures(finder FixtureFinder, defaults deviation.Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		params, err := ParseParams(q, defaults)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := params.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		find := finder.Find
		if unnotified, _ := strconv.ParseBool(q.Get("unnotified")); unnotified {
			find = finder.FindUnnotified
		}
		flagged, err := find(r.Context(), params)
		if err != nil {
			slog.Error("Failed to find fixtures", "error", err)
			http.Error(w, "failed to find fixtures", http.StatusInternalServerError)
			return
		}
		if flagged == nil {
			flagged = []deviation.Flagged{}
		}
		writeJSON(w, fixturesResponse{Count: len(flagged), Fixtures: flagged})
	}
}

// ParseParams applies query overrides on top of defaults.
func ParseParams(q url.Values, defaults deviation.Params) (deviation.Params, error) {
	p := defaults
	if v := q.Get("reference"); v != "" {
		p.ReferenceBookmaker = v
	}
	if v := q.Get("strategy"); v != "" {
		p.Strategy = deviation.Strategy(strings.ToLower(v))
	}
	if v := q.Get("direction"); v != "" {
		p.Direction = deviation.Direction(strings.ToLower(v))
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"percent", &p.PercentDeviationThreshold},
		{"absolute", &p.AbsoluteDeviationThreshold},
		{"max_odds", &p.MaxOdds},
	}
	for _, f := range floats {
		if v := q.Get(f.key); v != "" {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return p, fmt.Errorf("invalid %s: %q", f.key, v)
			}
			*f.dst = n
		}
	}

	if v := q.Get("all"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, fmt.Errorf("invalid all: %q", v)
		}
		p.AllBetsMustMatch = b
	}

	if leagues := q["league"]; len(leagues) > 0 {
		p.LeagueIDs = nil
		for _, v := range leagues {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return p, fmt.Errorf("invalid league: %q", v)
			}
			p.LeagueIDs = append(p.LeagueIDs, id)
		}
	}
	if types := q["bet_type"]; len(types) > 0 {
		p.BetTypes = types
	}
	if books := q["bookmaker"]; len(books) > 0 {
		p.TrackedBookmakers = books
	}
	return p, nil
}

// Bookmakers handles /bookmakers: stored snapshots per bookmaker.
func Bookmakers(counter BookmakerCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := counter.BookmakerCounts(r.Context())
		if err != nil {
			slog.Error("Failed to count bookmakers", "error", err)
			http.Error(w, "failed to count bookmakers", http.StatusInternalServerError)
			return
		}
		if counts == nil {
			counts = []storage.BookmakerCount{}
		}
		writeJSON(w, counts)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
	}
}
