package dashboard

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crowdcount/internal/timeseries"
)

var (
	// ErrUnauthorized covers both an unknown project and a wrong key.
	ErrUnauthorized = eris.New("dashboard: invalid project or key")
	// ErrNoData means the project is valid but the window holds no readings.
	ErrNoData = timeseries.ErrNoData
	// ErrMalformedInput means the request names areas or values the project
	// does not define.
	ErrMalformedInput = eris.New("dashboard: malformed input")
)

// MissingAssetError records a camera position left out of a density map.
type MissingAssetError struct {
	Area     string `json:"area"`
	Camera   string `json:"camera"`
	Position string `json:"position"`
	RecordID string `json:"record_id,omitempty"`
	Reason   string `json:"reason"`
	Err      error  `json:"-"`
}

func (e *MissingAssetError) Error() string {
	msg := fmt.Sprintf("dashboard: skipped %s/%s for area %s: %s", e.Camera, e.Position, e.Area, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MissingAssetError) Unwrap() error {
	return e.Err
}
