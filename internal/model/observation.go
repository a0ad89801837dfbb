package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// TimestampLayout is the naive wall-clock layout detectors write. Values are
// parsed into time.UTC only as a neutral location and never converted.
const TimestampLayout = "2006-01-02T15:04:05"

// timestampLayouts lists the accepted naive layouts, most specific first.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	TimestampLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// ParseTimestamp parses a naive detector timestamp. A trailing zone designator
// is accepted but its offset is discarded so wall-clock values stay as written.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("model: invalid timestamp %q", s)
}

// GroupBy selects which part of a reading identifies its source.
type GroupBy string

const (
	// GroupByCamera treats every camera as one source regardless of mounting position.
	GroupByCamera GroupBy = "camera"
	// GroupByPosition treats each camera × position pair as its own source.
	GroupByPosition GroupBy = "position"
)

// Observation is one detector reading.
type Observation struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Camera    string    `json:"camera"`
	Position  string    `json:"position,omitempty"`

	// Count is a single reading attributed to the source's assigned area.
	Count *float64 `json:"count,omitempty"`
	// Counts maps area name to count when the source reports several areas.
	Counts map[string]float64 `json:"counts,omitempty"`
}

// SourceKey returns the identifier used to group readings by source.
func (o Observation) SourceKey(by GroupBy) string {
	if by == GroupByPosition && o.Position != "" {
		return o.Camera + "/" + o.Position
	}
	return o.Camera
}

// observationJSON mirrors Observation with a naive string timestamp.
type observationJSON struct {
	ID        string             `json:"id"`
	ProjectID string             `json:"project_id,omitempty"`
	Timestamp string             `json:"timestamp"`
	Camera    string             `json:"camera"`
	Position  string             `json:"position,omitempty"`
	Count     *float64           `json:"count,omitempty"`
	Counts    map[string]float64 `json:"counts,omitempty"`
}

// MarshalJSON writes the timestamp in the naive detector layout.
func (o Observation) MarshalJSON() ([]byte, error) {
	return json.Marshal(observationJSON{
		ID:        o.ID,
		ProjectID: o.ProjectID,
		Timestamp: o.Timestamp.Format(TimestampLayout),
		Camera:    o.Camera,
		Position:  o.Position,
		Count:     o.Count,
		Counts:    o.Counts,
	})
}

// UnmarshalJSON accepts naive timestamps without reinterpreting them.
func (o *Observation) UnmarshalJSON(data []byte) error {
	var raw observationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "model: decode observation")
	}
	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return err
	}
	*o = Observation{
		ID:        raw.ID,
		ProjectID: raw.ProjectID,
		Timestamp: ts,
		Camera:    raw.Camera,
		Position:  raw.Position,
		Count:     raw.Count,
		Counts:    raw.Counts,
	}
	return nil
}
