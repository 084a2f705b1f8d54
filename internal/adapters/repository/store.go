// Package repository persists moderators, beatmaps, nominations and resets,
// and keeps the in-memory activity scoreboards.
package repository

import (
	"context"
	"time"

	"github.com/okian/bnstats/internal/domain/model"
)

// Store provides read/write access to the reconciled state. Writes are
// idempotent upserts on natural keys.
type Store interface {
	// User returns ErrNotFound for ids not on the roster.
	User(ctx context.Context, id int64) (model.User, error)
	Users(ctx context.Context) ([]model.User, error)
	UpsertUser(ctx context.Context, u model.User) error
	UpdateFavor(ctx context.Context, userID int64, f model.Favor) error

	// Beatmaps returns the stored difficulties of a set; empty when unknown.
	Beatmaps(ctx context.Context, beatmapsetID int64) ([]model.Beatmap, error)
	// ReplaceBeatmaps swaps the stored difficulties of a set for maps.
	ReplaceBeatmaps(ctx context.Context, beatmapsetID int64, maps []model.Beatmap) error

	// UpsertNomination inserts n, or updates mode attribution and display
	// fields of the nomination with the same (set, user). created reports an insert.
	UpsertNomination(ctx context.Context, n model.Nomination) (stored model.Nomination, created bool, err error)
	Nomination(ctx context.Context, beatmapsetID, userID int64) (model.Nomination, error)
	// NominationsBefore returns nominations of the set strictly before ts, newest first.
	NominationsBefore(ctx context.Context, beatmapsetID int64, ts time.Time) ([]model.Nomination, error)
	UserNominations(ctx context.Context, userID int64, since time.Time) ([]model.Nomination, error)
	CreatorNominations(ctx context.Context, creatorID int64, from, to time.Time) ([]model.Nomination, error)
	SaveNominationScore(ctx context.Context, nominationID int64, name model.CalculatorName, c model.ScoreComponents) error
	FlagAmbiguous(ctx context.Context, nominationID int64) error

	// UpsertReset inserts r, or updates the ratings and display fields of the
	// reset with the same (set, user, timestamp), or failing that the reset
	// with the same id. The stored id, natural key and affected list are kept
	// on update.
	UpsertReset(ctx context.Context, r model.Reset) (stored model.Reset, created bool, err error)
	// AddAffected links userID to the reset; added is false when already linked.
	AddAffected(ctx context.Context, resetID string, userID int64) (added bool, err error)
	ResetsAffecting(ctx context.Context, userID, beatmapsetID int64) ([]model.Reset, error)
	Resets(ctx context.Context, beatmapsetID int64) ([]model.Reset, error)

	Close() error
}

type resetKey struct {
	set  int64
	user int64
	ts   int64
}

func keyOf(r model.Reset) resetKey {
	return resetKey{set: r.BeatmapsetID, user: r.UserID, ts: r.Timestamp.UnixMilli()}
}

type nominationKey struct {
	set  int64
	user int64
}
