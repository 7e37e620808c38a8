package listener

import (
	"errors"
	"fmt"
	"time"

	"github.com/markusmobius/go-dateparser"
)

// ErrDateParse marks an event whose datetime text could not be understood.
var ErrDateParse = errors.New("unparsable event date")

// DateParser turns the free-text datetime of an event into a time.
type DateParser func(s string) (time.Time, error)

// NaturalDateParser understands absolute dates in common formats as well as
// relative ones such as "today 21:45" or "завтра в 19:00". Dates without an
// explicit zone are taken in loc.
func NaturalDateParser(loc *time.Location, now func() time.Time) DateParser {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return func(s string) (time.Time, error) {
		cfg := &dateparser.Configuration{
			DefaultTimezone: loc,
			CurrentTime:     now().In(loc),
			Languages:       []string{"en", "ru"},
		}
		dt, err := dateparser.Parse(cfg, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q: %v", ErrDateParse, s, err)
		}
		if dt.Time.IsZero() {
			return time.Time{}, fmt.Errorf("%w: %q", ErrDateParse, s)
		}
		return dt.Time, nil
	}
}
