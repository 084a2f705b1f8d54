package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/bnstats/internal/domain/model"
)

// MemoryStore is an in-process Store. It backs tests and single-run tooling.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[int64]model.User
	beatmaps    map[int64][]model.Beatmap
	nominations map[int64]model.Nomination
	nomByKey    map[nominationKey]int64
	resets      map[string]model.Reset
	resetByKey  map[resetKey]string
	nextNomID   int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[int64]model.User),
		beatmaps:    make(map[int64][]model.Beatmap),
		nominations: make(map[int64]model.Nomination),
		nomByKey:    make(map[nominationKey]int64),
		resets:      make(map[string]model.Reset),
		resetByKey:  make(map[resetKey]string),
	}
}

// User returns the roster member with the given id.
func (s *MemoryStore) User(_ context.Context, id int64) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return cloneUser(u), nil
}

// Users returns every roster member ordered by id.
func (s *MemoryStore) Users(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertUser keeps the cached favor of an existing user.
func (s *MemoryStore) UpsertUser(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.users[u.ID]; ok {
		u.Favor = old.Favor
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

// UpdateFavor replaces the cached favor profile of a user.
func (s *MemoryStore) UpdateFavor(_ context.Context, userID int64, f model.Favor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	u.Favor = f
	s.users[userID] = u
	return nil
}

// Beatmaps returns the stored difficulties of a beatmapset.
func (s *MemoryStore) Beatmaps(_ context.Context, beatmapsetID int64) ([]model.Beatmap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Beatmap(nil), s.beatmaps[beatmapsetID]...), nil
}

// ReplaceBeatmaps swaps the stored difficulties of a beatmapset for maps.
func (s *MemoryStore) ReplaceBeatmaps(_ context.Context, beatmapsetID int64, maps []model.Beatmap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(maps) == 0 {
		delete(s.beatmaps, beatmapsetID)
		return nil
	}
	s.beatmaps[beatmapsetID] = append([]model.Beatmap(nil), maps...)
	return nil
}

// UpsertNomination inserts n or updates the nomination with the same (set, user).
func (s *MemoryStore) UpsertNomination(_ context.Context, n model.Nomination) (model.Nomination, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := nominationKey{set: n.BeatmapsetID, user: n.UserID}
	if id, ok := s.nomByKey[key]; ok {
		cur := s.nominations[id]
		applyNominationUpdate(&cur, n)
		s.nominations[id] = cur
		return cloneNomination(cur), false, nil
	}
	s.nextNomID++
	n.ID = s.nextNomID
	n.Scores = cloneScores(n.Scores)
	n.AsModes = append([]model.Mode(nil), n.AsModes...)
	s.nominations[n.ID] = n
	s.nomByKey[key] = n.ID
	return cloneNomination(n), true, nil
}

// Nomination returns the nomination of a set by a user.
func (s *MemoryStore) Nomination(_ context.Context, beatmapsetID, userID int64) (model.Nomination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.nomByKey[nominationKey{set: beatmapsetID, user: userID}]
	if !ok {
		return model.Nomination{}, fmt.Errorf("nomination (%d, %d): %w", beatmapsetID, userID, ErrNotFound)
	}
	return cloneNomination(s.nominations[id]), nil
}

// NominationsBefore returns nominations of a set strictly before ts, newest first.
func (s *MemoryStore) NominationsBefore(_ context.Context, beatmapsetID int64, ts time.Time) ([]model.Nomination, error) {
	out := s.filterNominations(func(n model.Nomination) bool {
		return n.BeatmapsetID == beatmapsetID && n.Timestamp.Before(ts)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// UserNominations returns a user's nominations since the given time, oldest first.
func (s *MemoryStore) UserNominations(_ context.Context, userID int64, since time.Time) ([]model.Nomination, error) {
	out := s.filterNominations(func(n model.Nomination) bool {
		return n.UserID == userID && !n.Timestamp.Before(since)
	})
	sortOldestFirst(out)
	return out, nil
}

// CreatorNominations returns nominations of a creator's sets in [from, to).
func (s *MemoryStore) CreatorNominations(_ context.Context, creatorID int64, from, to time.Time) ([]model.Nomination, error) {
	out := s.filterNominations(func(n model.Nomination) bool {
		return n.CreatorID == creatorID && !n.Timestamp.Before(from) && n.Timestamp.Before(to)
	})
	sortOldestFirst(out)
	return out, nil
}

// SaveNominationScore records one calculator's components on a nomination.
func (s *MemoryStore) SaveNominationScore(_ context.Context, nominationID int64, name model.CalculatorName, c model.ScoreComponents) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nominations[nominationID]
	if !ok {
		return fmt.Errorf("nomination %d: %w", nominationID, ErrNotFound)
	}
	n.Scores = cloneScores(n.Scores)
	n.Scores[name] = c
	s.nominations[nominationID] = n
	return nil
}

// FlagAmbiguous marks a nomination whose mode could not be attributed.
func (s *MemoryStore) FlagAmbiguous(_ context.Context, nominationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nominations[nominationID]
	if !ok {
		return fmt.Errorf("nomination %d: %w", nominationID, ErrNotFound)
	}
	n.AmbiguousMode = true
	s.nominations[nominationID] = n
	return nil
}

// UpsertReset follows the Store contract: natural key first, then id.
func (s *MemoryStore) UpsertReset(_ context.Context, r model.Reset) (model.Reset, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := keyOf(r)
	id, ok := s.resetByKey[key]
	if !ok && r.ID != "" {
		_, ok = s.resets[r.ID]
		id = r.ID
	}
	if ok {
		cur := s.resets[id]
		applyResetUpdate(&cur, r)
		s.resets[id] = cur
		return cloneReset(cur), false, nil
	}
	if r.ID == "" {
		return model.Reset{}, false, fmt.Errorf("reset without id")
	}
	r.Affected = append([]int64(nil), r.Affected...)
	s.resets[r.ID] = r
	s.resetByKey[key] = r.ID
	return cloneReset(r), true, nil
}

// AddAffected appends userID to a reset's affected list unless present.
func (s *MemoryStore) AddAffected(_ context.Context, resetID string, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resets[resetID]
	if !ok {
		return false, fmt.Errorf("reset %s: %w", resetID, ErrNotFound)
	}
	if r.Affects(userID) {
		return false, nil
	}
	r.Affected = append(append([]int64(nil), r.Affected...), userID)
	s.resets[resetID] = r
	return true, nil
}

// ResetsAffecting returns the resets on a set that penalise userID.
func (s *MemoryStore) ResetsAffecting(_ context.Context, userID, beatmapsetID int64) ([]model.Reset, error) {
	return s.filterResets(func(r model.Reset) bool {
		return r.BeatmapsetID == beatmapsetID && r.Affects(userID)
	}), nil
}

// Resets returns every reset on a set.
func (s *MemoryStore) Resets(_ context.Context, beatmapsetID int64) ([]model.Reset, error) {
	return s.filterResets(func(r model.Reset) bool { return r.BeatmapsetID == beatmapsetID }), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) filterNominations(keep func(model.Nomination) bool) []model.Nomination {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Nomination
	for _, n := range s.nominations {
		if keep(n) {
			out = append(out, cloneNomination(n))
		}
	}
	return out
}

func (s *MemoryStore) filterResets(keep func(model.Reset) bool) []model.Reset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Reset
	for _, r := range s.resets {
		if keep(r) {
			out = append(out, cloneReset(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// applyNominationUpdate copies the mutable fields of in onto cur.
func applyNominationUpdate(cur *model.Nomination, in model.Nomination) {
	cur.AsModes = append([]model.Mode(nil), in.AsModes...)
	if len(cur.AsModes) > 0 {
		cur.AmbiguousMode = false
	}
	if in.ArtistTitle != "" {
		cur.ArtistTitle = in.ArtistTitle
	}
	if in.CreatorName != "" {
		cur.CreatorName = in.CreatorName
	}
	if in.CreatorID != 0 {
		cur.CreatorID = in.CreatorID
	}
}

// applyResetUpdate copies the mutable fields of in onto cur.
func applyResetUpdate(cur *model.Reset, in model.Reset) {
	cur.Obviousness = in.Obviousness
	cur.Severity = in.Severity
	if in.ArtistTitle != "" {
		cur.ArtistTitle = in.ArtistTitle
	}
	if in.CreatorName != "" {
		cur.CreatorName = in.CreatorName
	}
	if in.CreatorID != 0 {
		cur.CreatorID = in.CreatorID
	}
	if in.Content != "" {
		cur.Content = in.Content
	}
	if in.DiscussionID != 0 {
		cur.DiscussionID = in.DiscussionID
	}
	if in.Type != "" {
		cur.Type = in.Type
	}
}

func sortOldestFirst(noms []model.Nomination) {
	sort.SliceStable(noms, func(i, j int) bool {
		if noms[i].Timestamp.Equal(noms[j].Timestamp) {
			return noms[i].ID < noms[j].ID
		}
		return noms[i].Timestamp.Before(noms[j].Timestamp)
	})
}

func cloneScores(in map[model.CalculatorName]model.ScoreComponents) map[model.CalculatorName]model.ScoreComponents {
	out := make(map[model.CalculatorName]model.ScoreComponents, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneNomination(n model.Nomination) model.Nomination {
	n.AsModes = append([]model.Mode(nil), n.AsModes...)
	n.Scores = cloneScores(n.Scores)
	return n
}

func cloneReset(r model.Reset) model.Reset {
	r.Affected = append([]int64(nil), r.Affected...)
	return r
}

func cloneUser(u model.User) model.User {
	u.Modes = append([]model.Mode(nil), u.Modes...)
	u.Favor.GenreFavor = append([]string(nil), u.Favor.GenreFavor...)
	u.Favor.LangFavor = append([]string(nil), u.Favor.LangFavor...)
	u.Favor.TopDiffFavor = append([]string(nil), u.Favor.TopDiffFavor...)
	return u
}
