package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/bnstats/internal/domain/model"
	"github.com/okian/bnstats/pkg/logger"
	"github.com/okian/bnstats/pkg/metrics"
)

const noneMode = "none"

// RosterSource lists the current moderator roster.
type RosterSource interface {
	Members(ctx context.Context) ([]Member, error)
}

// UserStore is the persistence RosterSync writes to.
type UserStore interface {
	UpsertUser(ctx context.Context, u model.User) error
}

// RosterSync mirrors the roster source into the store.
type RosterSync struct {
	source RosterSource
	store  UserStore
	now    func() time.Time
	logger logger.Logger
}

// NewRosterSync creates a roster synchroniser.
func NewRosterSync(source RosterSource, store UserStore) *RosterSync {
	return &RosterSync{
		source: source,
		store:  store,
		now:    time.Now,
		logger: logger.Get().Named("roster"),
	}
}

// Sync upserts every roster member and returns the stored users. Members
// listing the "none" mode are given all modes.
func (s *RosterSync) Sync(ctx context.Context) ([]model.User, error) {
	members, err := s.source.Members(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	now := s.now()
	users := make([]model.User, 0, len(members))
	for _, m := range members {
		if m.ID == 0 {
			continue
		}
		u := model.User{
			ID:          m.ID,
			Username:    m.Username,
			SiteID:      m.SiteID,
			Modes:       model.ParseModes(m.Modes),
			IsBN:        m.IsBN,
			IsNAT:       m.IsNAT,
			LastUpdated: now,
		}
		if containsName(m.Modes, noneMode) {
			u.Modes = append([]model.Mode(nil), model.AllModes...)
		}
		if err := s.store.UpsertUser(ctx, u); err != nil {
			return nil, fmt.Errorf("upsert user %d: %w", m.ID, err)
		}
		users = append(users, u)
	}
	metrics.RecordRosterRefresh()
	s.logger.Info(ctx, "roster synced", logger.Int("users", len(users)))
	return users, nil
}

// Refresh implements RosterRefresher.
func (s *RosterSync) Refresh(ctx context.Context) error {
	_, err := s.Sync(ctx)
	return err
}

func containsName(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

// BeatmapSource fetches the difficulties of a beatmapset. A deleted set is
// returned as an empty slice.
type BeatmapSource interface {
	Beatmaps(ctx context.Context, beatmapsetID int64) ([]model.Beatmap, error)
}

// MapStore is the persistence MapSync reads from and writes to.
type MapStore interface {
	Beatmaps(ctx context.Context, beatmapsetID int64) ([]model.Beatmap, error)
	ReplaceBeatmaps(ctx context.Context, beatmapsetID int64, maps []model.Beatmap) error
}

// MapSyncOption applies a configuration option to MapSync.
type MapSyncOption func(*MapSync)

// WithRefreshTTL sets how long a refetched, non-final set is served
// without asking the source again. Zero refetches every time.
func WithRefreshTTL(d time.Duration) MapSyncOption {
	return func(m *MapSync) {
		if d >= 0 {
			m.ttl = d
		}
	}
}

// WithMapClock overrides the time source.
func WithMapClock(now func() time.Time) MapSyncOption {
	return func(m *MapSync) {
		if now != nil {
			m.now = now
		}
	}
}

// MapSync serves beatmapsets from the store and refreshes sets whose status
// can still change.
type MapSync struct {
	source BeatmapSource
	store  MapStore
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	fetched map[int64]time.Time
}

// NewMapSync creates a map synchroniser.
func NewMapSync(source BeatmapSource, store MapStore, opts ...MapSyncOption) *MapSync {
	m := &MapSync{
		source:  source,
		store:   store,
		ttl:     10 * time.Minute,
		now:     time.Now,
		fetched: make(map[int64]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BeatmapSet returns the current difficulties of a set. Ranked and Approved
// sets are served from the store; anything else is refetched and stored.
func (m *MapSync) BeatmapSet(ctx context.Context, beatmapsetID int64) (model.BeatmapSet, error) {
	stored, err := m.store.Beatmaps(ctx, beatmapsetID)
	if err != nil {
		return model.BeatmapSet{}, fmt.Errorf("load beatmaps of %d: %w", beatmapsetID, err)
	}
	set := model.NewBeatmapSet(stored)
	if !set.Empty() && (set.Status().Validated() || m.fresh(beatmapsetID)) {
		return set, nil
	}

	maps, err := m.source.Beatmaps(ctx, beatmapsetID)
	if err != nil {
		return model.BeatmapSet{}, fmt.Errorf("fetch beatmaps of %d: %w", beatmapsetID, err)
	}
	if err := m.store.ReplaceBeatmaps(ctx, beatmapsetID, maps); err != nil {
		return model.BeatmapSet{}, fmt.Errorf("store beatmaps of %d: %w", beatmapsetID, err)
	}
	m.mark(beatmapsetID)
	return model.NewBeatmapSet(maps), nil
}

func (m *MapSync) fresh(id int64) bool {
	if m.ttl == 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.fetched[id]
	return ok && m.now().Sub(at) < m.ttl
}

func (m *MapSync) mark(id int64) {
	m.mu.Lock()
	m.fetched[id] = m.now()
	m.mu.Unlock()
}
