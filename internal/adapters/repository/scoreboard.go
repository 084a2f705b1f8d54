package repository

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/okian/bnstats/internal/domain/types"
	"github.com/okian/bnstats/pkg/metrics"
)

// Scoreboard ranks moderators by activity score. It is a treap ordered by
// score desc then user id asc; in-order traversal yields the board.
// Unlike a best-score board, Set replaces a score in either direction.
type Scoreboard struct {
	mu    sync.RWMutex
	root  *node
	byID  map[int64]scoreFP
	name  string
	scale float64
}

type scoreFP int64

type node struct {
	id    int64
	score scoreFP
	prio  uint64
	left  *node
	right *node
	size  int
}

// NewScoreboard creates an empty board.
func NewScoreboard(opts ...Option) *Scoreboard {
	s := &Scoreboard{
		byID:  make(map[int64]scoreFP),
		name:  "default",
		scale: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the board label.
func (s *Scoreboard) Name() string { return s.name }

func (s *Scoreboard) toFixed(x float64) scoreFP {
	if math.IsNaN(x) {
		return 0
	}
	scaled := math.Round(x * s.scale)
	if scaled >= math.MaxInt64 {
		return scoreFP(math.MaxInt64)
	}
	if scaled <= math.MinInt64 {
		return scoreFP(math.MinInt64)
	}
	return scoreFP(scaled)
}

func (s *Scoreboard) toFloat(x scoreFP) float64 { return float64(x) / s.scale }

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aScore, aID) ranks before (bScore, bID).
func less(aScore scoreFP, aID int64, bScore scoreFP, bID int64) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

// priority mixes the id (splitmix64) so the treap stays balanced even when
// many moderators share a score.
func priority(id int64) uint64 {
	z := uint64(id) + 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id int64, score scoreFP) *node {
	if n == nil {
		return &node{id: id, score: score, prio: priority(id), size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id int64, score scoreFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// countAbove returns how many nodes rank strictly above score (ignoring ids).
func countAbove(n *node, score scoreFP) int {
	count := 0
	for n != nil {
		if n.score > score {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

func collectTopN(n *node, limit int, out *[]types.Entry, toFloat func(scoreFP) float64) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out, toFloat)
	if len(*out) < limit {
		*out = append(*out, types.Entry{UserID: n.id, Score: toFloat(n.score)})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out, toFloat)
	}
}

// Set records the current score of a moderator, replacing any previous one.
func (s *Scoreboard) Set(_ context.Context, userID int64, score float64) {
	fp := s.toFixed(score)
	s.mu.Lock()
	if old, ok := s.byID[userID]; ok {
		s.root = deleteNode(s.root, userID, old)
	}
	s.byID[userID] = fp
	s.root = insert(s.root, userID, fp)
	size := len(s.byID)
	s.mu.Unlock()
	metrics.UpdateScoreboardSize(s.name, size)
}

// Remove drops a moderator from the board; it reports whether one was present.
func (s *Scoreboard) Remove(_ context.Context, userID int64) bool {
	s.mu.Lock()
	old, ok := s.byID[userID]
	if ok {
		s.root = deleteNode(s.root, userID, old)
		delete(s.byID, userID)
	}
	size := len(s.byID)
	s.mu.Unlock()
	metrics.UpdateScoreboardSize(s.name, size)
	return ok
}

// Rank returns the moderator's entry. Equal scores share a rank
// (competition ranking: 1, 1, 3).
func (s *Scoreboard) Rank(_ context.Context, userID int64) (types.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fp, ok := s.byID[userID]
	if !ok {
		return types.Entry{}, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return types.Entry{Rank: countAbove(s.root, fp) + 1, UserID: userID, Score: s.toFloat(fp)}, nil
}

// TopN returns up to n entries, best first.
func (s *Scoreboard) TopN(_ context.Context, n int) ([]types.Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Entry, 0, min(n, len(s.byID)))
	collectTopN(s.root, n, &out, s.toFloat)
	assignRanksWithTies(out)
	return out, nil
}

// Count returns the number of moderators on the board.
func (s *Scoreboard) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// assignRanksWithTies gives equal scores the same rank; the next distinct
// score takes its 1-based position.
func assignRanksWithTies(entries []types.Entry) {
	for i := range entries {
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}
