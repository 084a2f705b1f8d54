// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/okian/bnstats/internal/domain/model"
	"github.com/okian/bnstats/internal/domain/reconcile"
	"github.com/okian/bnstats/internal/domain/types"
	"github.com/okian/bnstats/pkg/logger"
)

// Default server configuration constants.
const (
	defaultMaxLimit     = 100
	defaultLimit        = 10
	defaultCalculator   = "naxess"
	requestTimeout      = 30 * time.Second
	maxWebhookBodyBytes = 1 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Ingest reconciles events pushed by the aiess webhook.
	Ingest(ctx context.Context, events []reconcile.Event) error

	TopN(ctx context.Context, calculator string, n int) ([]Entry, error)
	Rank(ctx context.Context, calculator string, userID int64) (Entry, error)
	UserScore(ctx context.Context, calculator string, userID int64, days int, mode *model.Mode) (types.ScoreView, error)

	StatsProvider
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	aiessHandler       *AiessHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	scoreHandler       *ScoreHandler

	logger logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*serverConfig)

type serverConfig struct {
	aiessKey          string
	maxLimit          int
	defaultCalculator string
	logger            logger.Logger
}

// WithAiessKey sets the key the aiess webhook must present. An empty key
// rejects every push.
func WithAiessKey(key string) Option {
	return func(c *serverConfig) {
		c.aiessKey = key
	}
}

// WithMaxLimit caps the leaderboard page size.
func WithMaxLimit(n int) Option {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxLimit = n
		}
	}
}

// WithDefaultCalculator sets the calculator used when a request names none.
func WithDefaultCalculator(name string) Option {
	return func(c *serverConfig) {
		if name != "" {
			c.defaultCalculator = name
		}
	}
}

// WithLogger sets a custom logger for the handlers.
func WithLogger(l logger.Logger) Option {
	return func(c *serverConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	cfg := serverConfig{
		maxLimit:          defaultMaxLimit,
		defaultCalculator: defaultCalculator,
		logger:            logger.Get().Named("api"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Server{
		healthHandler:      NewHealthHandler(deps),
		aiessHandler:       NewAiessHandler(deps, cfg.aiessKey, cfg.logger),
		leaderboardHandler: NewLeaderboardHandler(deps, cfg.maxLimit, cfg.defaultCalculator),
		rankHandler:        NewRankHandler(deps, cfg.defaultCalculator),
		scoreHandler:       NewScoreHandler(deps, cfg.defaultCalculator),
		logger:             cfg.logger,
	}
}

// Routes builds the router with every endpoint mounted.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Handle("/metrics", s.healthHandler.MetricsHandler())
	r.Get("/stats", s.healthHandler.HandleStats)

	r.Post("/qat/aiess", s.aiessHandler.HandlePush)

	r.Get("/leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
	r.Route("/users/{id}", func(r chi.Router) {
		r.Get("/score", s.scoreHandler.HandleGetScore)
		r.Get("/rank", s.rankHandler.HandleGetRank)
	})
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
