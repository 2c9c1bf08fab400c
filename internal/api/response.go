package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pickflow/separation/internal/apperr"
	"github.com/pickflow/separation/pkg/observability"
)

// response is the envelope every REST endpoint replies with.
type response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response{
		Success:   status < 400,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// writeError translates a taxonomy error (or any other error) into the
// matching REST response per §7's propagation policy.
func writeError(ctx context.Context, w http.ResponseWriter, logger *observability.Logger, err error) {
	if appErr, ok := apperr.As(err); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(appErr.HTTPStatus())
		_ = json.NewEncoder(w).Encode(response{
			Success:   false,
			Error:     appErr.Message,
			Code:      string(appErr.Code),
			Timestamp: time.Now().UTC(),
		})
		return
	}

	logger.Error(ctx, "unhandled request error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(response{
		Success:   false,
		Error:     "internal server error",
		Timestamp: time.Now().UTC(),
	})
}
