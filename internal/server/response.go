package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/spiffcs/ghsearch/internal/ghclient"
	"github.com/spiffcs/ghsearch/internal/model"
)

// ErrorResponse is the body of every error the server produces itself.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// UpstreamErrorResponse is the body for a failed GitHub request. The HTTP
// status is the upstream status.
type UpstreamErrorResponse struct {
	Error             string             `json:"error"`
	Message           string             `json:"message"`
	Data              any                `json:"data"`
	RateLimit         *model.RateLimit   `json:"rateLimit"`
	Kind              ghclient.ErrorKind `json:"kind"`
	RetryAfterSeconds int                `json:"retryAfterSeconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a search error to a response:
// a missing query is 400, an APIError keeps the upstream status, and
// anything else is an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ghclient.ErrQueryRequired) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ghclient.QueryRequiredMessage})
		return
	}

	if apiErr, ok := ghclient.AsAPIError(err); ok {
		if apiErr.RetryAfterSeconds > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfterSeconds))
		}
		writeJSON(w, apiErr.Status, UpstreamErrorResponse{
			Error:             "GITHUB_API_ERROR",
			Message:           apiErr.Message,
			Data:              apiErr.Data,
			RateLimit:         apiErr.RateLimit,
			Kind:              apiErr.Kind,
			RetryAfterSeconds: apiErr.RetryAfterSeconds,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "INTERNAL_SERVER_ERROR"})
}
