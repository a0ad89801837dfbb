package timeseries

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crowdcount/internal/model"
)

// DateLayout is the calendar-date layout used by requests and the CLI.
const DateLayout = "2006-01-02"

// Window is a half-open [Start, End) range of naive wall-clock instants. The
// same window bounds the record store query and the final series trim.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow returns the observation window for a calendar day. The day begins
// at midnight shifted by dayOffset (a venue's operating day). With a cutoff the
// window ends after the cutoff minute instead of 24 hours after Start.
func NewWindow(date time.Time, cutoff *time.Duration, dayOffset time.Duration) Window {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	w := Window{Start: day.Add(dayOffset), End: day.Add(dayOffset + 24*time.Hour)}
	if cutoff != nil {
		end := day.Add(dayOffset + *cutoff).Truncate(time.Minute).Add(time.Minute)
		if end.Before(w.End) {
			w.End = end
		}
	}
	return w
}

// IsZero reports whether the window is unbounded.
func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Contains reports whether t falls inside the window. A zero window contains
// every instant.
func (w Window) Contains(t time.Time) bool {
	if w.IsZero() {
		return true
	}
	return !t.Before(w.Start) && t.Before(w.End)
}

// Filter returns the observations inside the window.
func (w Window) Filter(obs []model.Observation) []model.Observation {
	if w.IsZero() {
		return obs
	}
	out := make([]model.Observation, 0, len(obs))
	for _, o := range obs {
		if w.Contains(o.Timestamp) {
			out = append(out, o)
		}
	}
	return out
}

// Trim drops the rows of s that fall outside the window.
func (w Window) Trim(s *model.AreaSeries) {
	if w.IsZero() || s == nil {
		return
	}
	kept := s.Rows[:0]
	for _, r := range s.Rows {
		if w.Contains(r.Timestamp) {
			kept = append(kept, r)
		}
	}
	s.Rows = kept
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "timeseries: invalid date %q", s)
	}
	return t, nil
}

// ParseClock parses an HH:MM or HH:MM:SS time of day into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, eris.Errorf("timeseries: invalid time of day %q", s)
}
