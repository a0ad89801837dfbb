package model

import (
	"encoding/json"
	"time"
)

// AreaSeries is the per-minute smoothed occupancy for a set of areas.
type AreaSeries struct {
	Areas []string    `json:"areas"`
	Rows  []SeriesRow `json:"rows"`
}

// SeriesRow holds one minute of smoothed per-area counts and their total.
type SeriesRow struct {
	Timestamp time.Time        `json:"-"`
	Values    map[string]int64 `json:"values"`
	Total     int64            `json:"total"`
}

// MarshalJSON writes the timestamp in the naive detector layout.
func (r SeriesRow) MarshalJSON() ([]byte, error) {
	type plain SeriesRow
	return json.Marshal(struct {
		Timestamp string `json:"timestamp"`
		plain
	}{
		Timestamp: r.Timestamp.Format(TimestampLayout),
		plain:     plain(r),
	})
}

// Len returns the number of rows.
func (s *AreaSeries) Len() int { return len(s.Rows) }

// Last returns the most recent row, or false for an empty series.
func (s *AreaSeries) Last() (SeriesRow, bool) {
	if len(s.Rows) == 0 {
		return SeriesRow{}, false
	}
	return s.Rows[len(s.Rows)-1], true
}

// Column returns one area's values in row order.
func (s *AreaSeries) Column(area string) []int64 {
	out := make([]int64, len(s.Rows))
	for i, r := range s.Rows {
		out[i] = r.Values[area]
	}
	return out
}

// Totals returns the total column in row order.
func (s *AreaSeries) Totals() []int64 {
	out := make([]int64, len(s.Rows))
	for i, r := range s.Rows {
		out[i] = r.Total
	}
	return out
}
