// Package osuapi fetches beatmap metadata from the osu! API (v1).
package osuapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/bnstats/internal/adapters/upstream"
	"github.com/okian/bnstats/internal/domain/model"
	"github.com/okian/bnstats/pkg/logger"
)

// DefaultURL is the v1 API base.
const DefaultURL = "https://osu.ppy.sh/api"

const lastUpdateLayout = "2006-01-02 15:04:05"

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithUpstreamOptions passes options to the underlying HTTP client.
func WithUpstreamOptions(opts ...upstream.Option) Option {
	return func(c *Client) {
		c.upstreamOpts = append(c.upstreamOpts, opts...)
	}
}

// Client reads beatmapsets from the osu! API.
type Client struct {
	baseURL      string
	key          string
	upstreamOpts []upstream.Option
	http         *upstream.Client
}

// New creates an API client authenticated with key.
func New(key string, opts ...Option) *Client {
	c := &Client{baseURL: DefaultURL, key: key}
	for _, opt := range opts {
		opt(c)
	}
	base := []upstream.Option{
		upstream.WithName("osuapi"),
		upstream.WithLogger(logger.Get().Named("osuapi")),
	}
	c.http = upstream.New(append(base, c.upstreamOpts...)...)
	return c
}

// beatmap mirrors the get_beatmaps payload, where numbers arrive as strings.
type beatmap struct {
	BeatmapsetID     int64   `json:"beatmapset_id,string"`
	BeatmapID        int64   `json:"beatmap_id,string"`
	Approved         int     `json:"approved,string"`
	TotalLength      int     `json:"total_length,string"`
	HitLength        int     `json:"hit_length,string"`
	Mode             int     `json:"mode,string"`
	Version          string  `json:"version"`
	Artist           string  `json:"artist"`
	Title            string  `json:"title"`
	Creator          string  `json:"creator"`
	CreatorID        int64   `json:"creator_id,string"`
	GenreID          int     `json:"genre_id,string"`
	LanguageID       int     `json:"language_id,string"`
	DifficultyRating float64 `json:"difficultyrating,string"`
	LastUpdate       string  `json:"last_update"`
}

func (b beatmap) model() model.Beatmap {
	m := model.Beatmap{
		BeatmapsetID:     b.BeatmapsetID,
		BeatmapID:        b.BeatmapID,
		Status:           model.MapStatus(b.Approved),
		TotalLength:      b.TotalLength,
		HitLength:        b.HitLength,
		Mode:             model.Mode(b.Mode),
		Version:          b.Version,
		Artist:           b.Artist,
		Title:            b.Title,
		Creator:          b.Creator,
		CreatorID:        b.CreatorID,
		Genre:            model.Genre(b.GenreID),
		Language:         model.Language(b.LanguageID),
		DifficultyRating: b.DifficultyRating,
	}
	if t, err := time.Parse(lastUpdateLayout, b.LastUpdate); err == nil {
		m.LastUpdate = t
	}
	return m
}

// Beatmaps returns every difficulty of the set. A deleted set yields an
// empty slice.
func (c *Client) Beatmaps(ctx context.Context, beatmapsetID int64) ([]model.Beatmap, error) {
	q := url.Values{}
	q.Set("k", c.key)
	q.Set("s", strconv.FormatInt(beatmapsetID, 10))

	var raw []beatmap
	if err := c.http.GetJSON(ctx, c.baseURL+"/get_beatmaps?"+q.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("beatmapset %d: %w", beatmapsetID, err)
	}
	out := make([]model.Beatmap, 0, len(raw))
	for _, b := range raw {
		out = append(out, b.model())
	}
	return out, nil
}
