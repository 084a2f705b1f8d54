package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/bnstats/internal/domain/scoring"
)

// LeaderboardDependencies defines the interface for leaderboard operations
type LeaderboardDependencies interface {
	TopN(ctx context.Context, calculator string, n int) ([]Entry, error)
}

// LeaderboardHandler handles leaderboard requests
type LeaderboardHandler struct {
	deps              LeaderboardDependencies
	maxLimit          int
	defaultCalculator string
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int, defaultCalculator string) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:              deps,
		maxLimit:          maxLimit,
		defaultCalculator: defaultCalculator,
	}
}

// HandleGetLeaderboard handles GET /leaderboard?calculator=NAME&limit=N requests
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n := defaultLimit
	if raw := q.Get("limit"); raw != "" {
		var err error
		n, err = strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest))
			return
		}
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", fmt.Errorf("%w: limit above %d", ErrBadRequest, h.maxLimit))
		return
	}

	entries, err := h.deps.TopN(r.Context(), calculatorParam(r, h.defaultCalculator), n)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func calculatorParam(r *http.Request, fallback string) string {
	if name := r.URL.Query().Get("calculator"); name != "" {
		return name
	}
	return fallback
}

// writeLookupError maps read-path errors to statuses.
func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, scoring.ErrUnknownCalculator) {
		writeError(w, http.StatusBadRequest, "unknown_calculator", err)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err)
}
