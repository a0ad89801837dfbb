package density

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/crowdcount/internal/model"
)

// ErrNoEntry is returned when no record matches the requested source.
var ErrNoEntry = eris.New("density: no matching entry")

// LatestEntry returns the id of the most recent record from camera at
// position. Equal timestamps resolve to the greater id.
func LatestEntry(records []model.Observation, camera, position string) (string, error) {
	var best *model.Observation
	for i := range records {
		r := &records[i]
		if r.Camera != camera || r.Position != position {
			continue
		}
		if best == nil || r.Timestamp.After(best.Timestamp) ||
			(r.Timestamp.Equal(best.Timestamp) && r.ID > best.ID) {
			best = r
		}
	}
	if best == nil {
		return "", eris.Wrapf(ErrNoEntry, "camera %s position %s", camera, position)
	}
	return best.ID, nil
}
