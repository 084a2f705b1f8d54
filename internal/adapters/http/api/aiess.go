package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/okian/bnstats/internal/adapters/aiess"
	"github.com/okian/bnstats/internal/domain/reconcile"
	"github.com/okian/bnstats/pkg/logger"
)

// missingModeratorMessage is what aiess expects when it pushed an event for
// a moderator the roster has not caught up with yet.
const missingModeratorMessage = "Cannot find user in database, maybe pishi site is falling behind?"

// AiessDependencies defines the interface for pushed events.
type AiessDependencies interface {
	Ingest(ctx context.Context, events []reconcile.Event) error
}

// AiessHandler accepts event pushes from aiess.
type AiessHandler struct {
	deps   AiessDependencies
	key    []byte
	logger logger.Logger
}

// NewAiessHandler creates a webhook handler guarded by key.
func NewAiessHandler(deps AiessDependencies, key string, l logger.Logger) *AiessHandler {
	return &AiessHandler{deps: deps, key: []byte(key), logger: l}
}

type aiessError struct {
	Error string `json:"error"`
}

type aiessStatus struct {
	Status   int      `json:"status"`
	Message  string   `json:"message,omitempty"`
	Messages []string `json:"messages,omitempty"`
}

// HandlePush handles POST /qat/aiess requests.
func (h *AiessHandler) HandlePush(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r.Header.Get("Authorization")) {
		writeJSON(w, http.StatusUnauthorized, aiessError{Error: "Unauthorized."})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, aiessError{Error: "Invalid body."})
		return
	}
	events, err := aiess.Decode(body)
	switch {
	case errors.Is(err, aiess.ErrUnknownType):
		writeJSON(w, http.StatusBadRequest, aiessError{Error: "Invalid type."})
		return
	case err != nil:
		writeJSON(w, http.StatusBadRequest, aiessError{Error: "Invalid body."})
		return
	}

	if err := h.deps.Ingest(r.Context(), events); err != nil {
		h.logger.Error(r.Context(), "aiess push failed",
			logger.Int("events", len(events)), logger.Error(err))
		if errors.Is(err, reconcile.ErrModeratorNotFound) {
			writeJSON(w, http.StatusInternalServerError, aiessStatus{
				Status:   http.StatusInternalServerError,
				Messages: []string{missingModeratorMessage},
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, aiessStatus{
			Status:   http.StatusInternalServerError,
			Messages: []string{http.StatusText(http.StatusInternalServerError)},
		})
		return
	}
	writeJSON(w, http.StatusOK, aiessStatus{Status: http.StatusOK, Message: "OK"})
}

func (h *AiessHandler) authorized(presented string) bool {
	if len(h.key) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), h.key) == 1
}
