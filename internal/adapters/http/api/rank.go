package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/okian/bnstats/internal/adapters/repository"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	Rank(ctx context.Context, calculator string, userID int64) (Entry, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps              RankDependencies
	defaultCalculator string
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies, defaultCalculator string) *RankHandler {
	return &RankHandler{deps: deps, defaultCalculator: defaultCalculator}
}

// HandleGetRank handles GET /users/{id}/rank?calculator=NAME requests.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	entry, err := h.deps.Rank(r.Context(), calculatorParam(r, h.defaultCalculator), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func userIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid user id %q", ErrBadRequest, raw)
	}
	return id, nil
}
