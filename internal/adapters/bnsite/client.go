// Package bnsite reads the moderator roster and per-moderator activity from
// the BN site, either through its logged-in web endpoints or its interop API.
package bnsite

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/bnstats/internal/adapters/upstream"
	"github.com/okian/bnstats/internal/domain/model"
	"github.com/okian/bnstats/internal/domain/reconcile"
	"github.com/okian/bnstats/pkg/logger"
)

// Default endpoints.
const (
	DefaultSiteURL    = "https://bn.mappersguild.com"
	DefaultInteropURL = "https://bn.mappersguild.com/interOp"
	sessionCookie     = "connect.sid"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithSiteURL overrides the site base URL.
func WithSiteURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.siteURL = strings.TrimRight(u, "/")
		}
	}
}

// WithSession authenticates site requests with a session cookie.
func WithSession(session string) Option {
	return func(c *Client) {
		c.session = session
	}
}

// WithInterop switches to the interop API, authenticated with username and secret.
func WithInterop(baseURL, username, secret string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.interopURL = strings.TrimRight(baseURL, "/")
		}
		c.interopUser = username
		c.interopSecret = secret
		c.useInterop = username != "" && secret != ""
	}
}

// WithUpstreamOptions passes options to the underlying HTTP client.
func WithUpstreamOptions(opts ...upstream.Option) Option {
	return func(c *Client) {
		c.upstreamOpts = append(c.upstreamOpts, opts...)
	}
}

// WithClock overrides the time source used for activity deadlines.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client talks to the BN site.
type Client struct {
	siteURL       string
	interopURL    string
	session       string
	interopUser   string
	interopSecret string
	useInterop    bool
	upstreamOpts  []upstream.Option
	now           func() time.Time

	http *upstream.Client
}

// New creates a BN site client.
func New(opts ...Option) *Client {
	c := &Client{
		siteURL:    DefaultSiteURL,
		interopURL: DefaultInteropURL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	base := []upstream.Option{
		upstream.WithName("bnsite"),
		upstream.WithLogger(logger.Get().Named("bnsite")),
	}
	if c.useInterop {
		base = append(base,
			upstream.WithHeader("username", c.interopUser),
			upstream.WithHeader("secret", c.interopSecret))
	} else {
		base = append(base, upstream.WithCookie(sessionCookie, c.session))
	}
	c.http = upstream.New(append(base, c.upstreamOpts...)...)
	return c
}

type siteUser struct {
	SiteID   string   `json:"_id"`
	OsuID    int64    `json:"osuId"`
	Username string   `json:"username"`
	Modes    []string `json:"modes"`
	IsNAT    bool     `json:"isNat"`
	IsBN     bool     `json:"isBn"`
	Groups   []string `json:"groups"`
}

func (u siteUser) member() reconcile.Member {
	m := reconcile.Member{
		ID:       u.OsuID,
		SiteID:   u.SiteID,
		Username: u.Username,
		Modes:    u.Modes,
		IsBN:     u.IsBN,
		IsNAT:    u.IsNAT,
	}
	for _, g := range u.Groups {
		switch g {
		case "bn":
			m.IsBN = true
		case "nat":
			m.IsNAT = true
		}
	}
	return m
}

// Members returns the current roster.
func (c *Client) Members(ctx context.Context) ([]reconcile.Member, error) {
	var users []siteUser
	if c.useInterop {
		if err := c.http.GetJSON(ctx, c.interopURL+"/users/all", &users); err != nil {
			return nil, err
		}
	} else {
		var resp struct {
			Users []siteUser `json:"users"`
		}
		if err := c.http.GetJSON(ctx, c.siteURL+"/users/relevantInfo", &resp); err != nil {
			return nil, err
		}
		users = resp.Users
	}

	out := make([]reconcile.Member, 0, len(users))
	for _, u := range users {
		out = append(out, u.member())
	}
	return out, nil
}

type nominationEvent struct {
	BeatmapsetID int64     `json:"beatmapsetId"`
	UserID       int64     `json:"userId"`
	ArtistTitle  string    `json:"artistTitle"`
	CreatorID    int64     `json:"creatorId"`
	CreatorName  string    `json:"creatorName"`
	Timestamp    time.Time `json:"timestamp"`
	Modes        []string  `json:"modes"`
}

type resetEvent struct {
	ID           string    `json:"_id"`
	BeatmapsetID int64     `json:"beatmapsetId"`
	UserID       int64     `json:"userId"`
	ArtistTitle  string    `json:"artistTitle"`
	CreatorID    int64     `json:"creatorId"`
	CreatorName  string    `json:"creatorName"`
	Timestamp    time.Time `json:"timestamp"`
	Content      string    `json:"content"`
	DiscussionID int64     `json:"discussionId"`
	Obviousness  *int      `json:"obviousness"`
	Severity     *int      `json:"severity"`
	Type         string    `json:"type"`
	Modes        []string  `json:"modes"`
}

type activity struct {
	UniqueNominations       []nominationEvent `json:"uniqueNominations"`
	NominationsDisqualified []resetEvent      `json:"nominationsDisqualified"`
	NominationsPopped       []resetEvent      `json:"nominationsPopped"`
	Disqualifications       []resetEvent      `json:"disqualifications"`
	Pops                    []resetEvent      `json:"pops"`
}

// Activity returns the moderator's activity over the last days as
// reconciliation events: their nominations, resets of their nominations and
// resets they performed.
func (c *Client) Activity(ctx context.Context, user model.User, days int) ([]reconcile.Event, error) {
	var a activity
	if err := c.http.GetJSON(ctx, c.activityURL(user, days), &a); err != nil {
		return nil, fmt.Errorf("activity of %d: %w", user.ID, err)
	}
	return a.events(user.ID), nil
}

func (c *Client) activityURL(user model.User, days int) string {
	if c.useInterop {
		return fmt.Sprintf("%s/nominationResets/%d/%d/", c.interopURL, user.ID, days)
	}
	modes := make([]string, 0, len(user.Modes))
	for _, m := range user.Modes {
		modes = append(modes, m.String())
	}
	q := url.Values{}
	q.Set("osuId", strconv.FormatInt(user.ID, 10))
	q.Set("modes", strings.Join(modes, ","))
	q.Set("deadline", strconv.FormatInt(c.now().UnixMilli(), 10))
	q.Set("mongoId", user.SiteID)
	q.Set("days", strconv.Itoa(days))
	return c.siteURL + "/users/activity?" + q.Encode()
}

func (a activity) events(moderatorID int64) []reconcile.Event {
	out := make([]reconcile.Event, 0, len(a.UniqueNominations)+len(a.NominationsDisqualified)+
		len(a.NominationsPopped)+len(a.Disqualifications)+len(a.Pops))
	for _, n := range a.UniqueNominations {
		out = append(out, reconcile.Event{
			Kind:         reconcile.KindNomination,
			ModeratorID:  moderatorID,
			BeatmapsetID: n.BeatmapsetID,
			UserID:       n.UserID,
			ArtistTitle:  n.ArtistTitle,
			CreatorID:    n.CreatorID,
			CreatorName:  n.CreatorName,
			Timestamp:    n.Timestamp,
			Modes:        n.Modes,
		})
	}
	out = appendResets(out, a.NominationsDisqualified, reconcile.KindResetReceived, model.ResetDisqualify, moderatorID)
	out = appendResets(out, a.NominationsPopped, reconcile.KindResetReceived, model.ResetPop, moderatorID)
	out = appendResets(out, a.Disqualifications, reconcile.KindResetPerformed, model.ResetDisqualify, moderatorID)
	out = appendResets(out, a.Pops, reconcile.KindResetPerformed, model.ResetPop, moderatorID)
	return out
}

func appendResets(out []reconcile.Event, resets []resetEvent, kind reconcile.Kind, fallback model.ResetType, moderatorID int64) []reconcile.Event {
	for _, r := range resets {
		typ, ok := model.ParseResetType(r.Type)
		if !ok {
			typ = fallback
		}
		out = append(out, reconcile.Event{
			Kind:         kind,
			ModeratorID:  moderatorID,
			ID:           r.ID,
			BeatmapsetID: r.BeatmapsetID,
			UserID:       r.UserID,
			ArtistTitle:  r.ArtistTitle,
			CreatorID:    r.CreatorID,
			CreatorName:  r.CreatorName,
			Timestamp:    r.Timestamp,
			Modes:        r.Modes,
			Obviousness:  r.Obviousness,
			Severity:     r.Severity,
			ResetType:    typ,
			Content:      r.Content,
			DiscussionID: r.DiscussionID,
		})
	}
	return out
}
