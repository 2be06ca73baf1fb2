package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/xid"

	"github.com/spiffcs/ghsearch/internal/ghclient"
	"github.com/spiffcs/ghsearch/internal/model"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSearchUsers serves GET /api/github/search/users.
// Query parameters: q (required), page, per_page, sort, order.
func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	params := model.SearchParams{
		Q:     query.Get("q"),
		Sort:  query.Get("sort"),
		Order: query.Get("order"),
	}
	if params.Q == "" {
		writeError(w, ghclient.ErrQueryRequired)
		return
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &params.Page}, {"per_page", &params.PerPage}} {
		n, ok := intParam(query.Get(p.name))
		if !ok {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: fmt.Sprintf("Query parameter '%s' must be an integer", p.name),
			})
			return
		}
		*p.dst = n
	}

	searchID := xid.New().String()
	logger := s.logger.With(slog.String("search_id", searchID))
	start := time.Now()

	logger.Debug("search started",
		slog.String("q", params.Q),
		slog.Int("page", params.Page),
		slog.Int("per_page", params.PerPage),
	)

	resp, err := s.searcher.Search(r.Context(), params)
	if err != nil {
		attrs := []any{slog.String("error", err.Error()), slog.Duration("duration", time.Since(start))}
		if apiErr, ok := ghclient.AsAPIError(err); ok {
			attrs = append(attrs, slog.Int("status", apiErr.Status), slog.String("kind", string(apiErr.Kind)))
		}
		logger.Warn("search failed", attrs...)
		writeError(w, err)
		return
	}

	attrs := []any{
		slog.Int("users", len(resp.Users)),
		slog.Int("total_count", resp.TotalCount),
		slog.Duration("duration", time.Since(start)),
	}
	if resp.RateLimit != nil {
		attrs = append(attrs, slog.Int("remaining", resp.RateLimit.Remaining))
	}
	logger.Info("search completed", attrs...)

	writeJSON(w, http.StatusOK, resp)
}

// intParam parses an optional integer parameter. Empty means zero, which
// the searcher replaces with its default.
func intParam(raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}
