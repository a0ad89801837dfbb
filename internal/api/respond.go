package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/crowdcount/internal/dashboard"
)

// Outcome labels recorded per request.
const (
	outcomeOK           = "ok"
	outcomeEmpty        = "empty"
	outcomeUnauthorized = "unauthorized"
	outcomeBadRequest   = "bad_request"
	outcomeError        = "error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps a dashboard error onto a response. Authorization
// failures never say whether the project exists.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) string {
	switch {
	case errors.Is(err, dashboard.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "invalid project and/or key")
		return outcomeUnauthorized
	case errors.Is(err, dashboard.ErrNoData):
		writeJSON(w, http.StatusOK, map[string]string{"status": "empty"})
		return outcomeEmpty
	case errors.Is(err, dashboard.ErrMalformedInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return outcomeBadRequest
	default:
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", w.Header().Get(RequestIDHeader)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return outcomeError
	}
}
