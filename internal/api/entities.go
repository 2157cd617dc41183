package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nerrad567/gray-logic-hub/internal/cache"
	"github.com/nerrad567/gray-logic-hub/internal/registry"
	"github.com/nerrad567/gray-logic-hub/internal/resource"
)

// entitiesResponse is cache.Result plus the count, for clients that only
// want to know how many records matched.
type entitiesResponse struct {
	cache.Result
	Count int `json:"count"`
}

// handleListEntities serves GET /entities?room=..&type=.. from the
// snapshot. It never triggers a fetch, and an empty cache is a 200 with
// has_data=false.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := s.cache.GetEnhancedEntities(cache.Filters{
		RoomNames:   splitParams(q["room"]),
		DeviceTypes: splitParams(q["type"]),
	})
	writeJSON(w, http.StatusOK, entitiesResponse{Result: res, Count: len(res.Entities)})
}

// splitParams flattens repeated and comma-separated query values.
func splitParams(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

type refreshResponse struct {
	Status string       `json:"status"`
	Cache  cache.Status `json:"cache"`
}

// Refresh response statuses.
const (
	refreshCompleted  = "refreshed"
	refreshInProgress = "refresh_in_progress"
)

// handleRefresh serves POST /entities/refresh. It waits for the forced
// refresh and maps its failure onto an HTTP status.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ran, err := s.cache.Refresh(r.Context())
	if err != nil {
		s.writeRefreshError(w, r, err)
		return
	}
	if !ran {
		writeJSON(w, http.StatusAccepted, refreshResponse{Status: refreshInProgress, Cache: s.cache.Status()})
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Status: refreshCompleted, Cache: s.cache.Status()})
}

func (s *Server) writeRefreshError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("forced refresh failed",
		"error", err,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)

	var exhausted *resource.ExhaustedError
	var transport *registry.TransportError
	switch {
	case errors.As(err, &exhausted):
		retry := exhausted.RetryAfter
		if retry <= 0 {
			retry = s.retryAfter
		}
		writeUnavailable(w, ErrCodeResourceExhausted, "host memory too high to refresh", retry)
	case errors.Is(err, cache.ErrProviderUnavailable):
		writeUnavailable(w, ErrCodeProviderUnavailable, "entity registry unavailable", s.retryAfter)
	case errors.Is(err, cache.ErrRefreshTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeRefreshTimeout, "refresh timed out")
	case errors.As(err, &transport):
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "entity registry request failed")
	default:
		writeInternalError(w, "refresh failed")
	}
}

// handleCacheStatus serves GET /cache/status.
func (s *Server) handleCacheStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Status())
}
