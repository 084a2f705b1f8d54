package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/bnstats/internal/domain/model"
	"github.com/okian/bnstats/internal/domain/types"
)

// ScoreDependencies defines the interface for activity score reads.
type ScoreDependencies interface {
	UserScore(ctx context.Context, calculator string, userID int64, days int, mode *model.Mode) (types.ScoreView, error)
}

// ScoreHandler computes a moderator's activity score on demand.
type ScoreHandler struct {
	deps              ScoreDependencies
	defaultCalculator string
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps ScoreDependencies, defaultCalculator string) *ScoreHandler {
	return &ScoreHandler{deps: deps, defaultCalculator: defaultCalculator}
}

// HandleGetScore handles GET /users/{id}/score?calculator=NAME&days=N&mode=M requests.
// days defaults to the configured window; mode limits the score to
// nominations attributed to that mode.
func (h *ScoreHandler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	q := r.URL.Query()
	days := 0
	if raw := q.Get("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: days must be a positive integer", ErrBadRequest))
			return
		}
	}

	var mode *model.Mode
	if raw := q.Get("mode"); raw != "" {
		m, ok := model.ParseMode(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: unknown mode %q", ErrBadRequest, raw))
			return
		}
		mode = &m
	}

	view, err := h.deps.UserScore(r.Context(), calculatorParam(r, h.defaultCalculator), id, days, mode)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
