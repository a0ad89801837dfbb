package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crowdcount/internal/dashboard"
	"github.com/sells-group/crowdcount/internal/model"
	"github.com/sells-group/crowdcount/internal/perspective"
	"github.com/sells-group/crowdcount/internal/timeseries"
)

// parseRequest reads the project id from the path and key, date, until and
// areas from the query string.
func parseRequest(r *http.Request) (dashboard.Request, error) {
	q := r.URL.Query()
	req := dashboard.Request{
		ProjectID: chi.URLParam(r, "id"),
		Key:       q.Get("key"),
	}

	if v := q.Get("date"); v != "" {
		d, err := timeseries.ParseDate(v)
		if err != nil {
			return req, eris.Wrap(dashboard.ErrMalformedInput, err.Error())
		}
		req.Date = d
	}
	if v := q.Get("until"); v != "" {
		c, err := timeseries.ParseClock(v)
		if err != nil {
			return req, eris.Wrap(dashboard.ErrMalformedInput, err.Error())
		}
		req.Until = &c
	}
	if v := q.Get("areas"); v != "" {
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				req.Areas = append(req.Areas, a)
			}
		}
	}
	return req, nil
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) string {
	req, err := parseRequest(r)
	if err != nil {
		return writeServiceError(w, r, err)
	}
	series, err := s.svc.Series(r.Context(), req)
	if err != nil {
		return writeServiceError(w, r, err)
	}
	writeJSON(w, http.StatusOK, series)
	return outcomeOK
}

func (s *Server) handleDensity(w http.ResponseWriter, r *http.Request) string {
	req, err := parseRequest(r)
	if err != nil {
		return writeServiceError(w, r, err)
	}
	res, err := s.svc.Density(r.Context(), req)
	if err != nil {
		return writeServiceError(w, r, err)
	}
	writeJSON(w, http.StatusOK, res)
	return outcomeOK
}

type summaryResponse struct {
	At string `json:"at"`
	*dashboard.Summary
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) string {
	req, err := parseRequest(r)
	if err != nil {
		return writeServiceError(w, r, err)
	}
	sum, err := s.svc.Summary(r.Context(), req)
	if err != nil {
		return writeServiceError(w, r, err)
	}
	writeJSON(w, http.StatusOK, summaryResponse{At: sum.At.Format(model.TimestampLayout), Summary: sum})
	return outcomeOK
}

func (s *Server) handleMarkers(w http.ResponseWriter, r *http.Request) string {
	req, err := parseRequest(r)
	if err != nil {
		return writeServiceError(w, r, err)
	}
	fc, err := s.svc.Markers(r.Context(), req)
	if err != nil {
		return writeServiceError(w, r, err)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return writeServiceError(w, r, eris.Wrap(err, "api: encode markers"))
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	return outcomeOK
}

var cornerParams = [4][2]string{
	{"tl_x", "tl_y"},
	{"tr_x", "tr_y"},
	{"br_x", "br_y"},
	{"bl_x", "bl_y"},
}

func handleHomography(w http.ResponseWriter, r *http.Request) string {
	q := r.URL.Query()
	var src [4]perspective.Point
	for i, names := range cornerParams {
		var xy [2]float64
		for j, name := range names {
			v, err := strconv.ParseFloat(q.Get(name), 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "missing or invalid "+name)
				return outcomeBadRequest
			}
			xy[j] = v
		}
		src[i] = perspective.Point{X: xy[0], Y: xy[1]}
	}

	h, err := perspective.ComputeHomography(src, perspective.DefaultSquareSize, perspective.DefaultPxPerMeter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return outcomeBadRequest
	}
	writeJSON(w, http.StatusOK, map[string][][]float64{"homography": h.Rounded(4).Rows()})
	return outcomeOK
}
