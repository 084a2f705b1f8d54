package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/bnstats/internal/domain/model"
	"github.com/okian/bnstats/pkg/logger"
	"github.com/okian/bnstats/pkg/metrics"
)

// DefaultSystemUserID is the account that performs automatic resets (BanchoBot).
const DefaultSystemUserID int64 = 3

// Store is the persistence the reconciler writes to.
type Store interface {
	User(ctx context.Context, id int64) (model.User, error)
	UpsertNomination(ctx context.Context, n model.Nomination) (model.Nomination, bool, error)
	NominationsBefore(ctx context.Context, beatmapsetID int64, ts time.Time) ([]model.Nomination, error)
	UpsertReset(ctx context.Context, r model.Reset) (model.Reset, bool, error)
	AddAffected(ctx context.Context, resetID string, userID int64) (bool, error)
}

// RosterRefresher reloads the moderator roster.
type RosterRefresher interface {
	Refresh(ctx context.Context) error
}

// Option applies a configuration option to the Reconciler.
type Option func(*Reconciler)

// WithSystemUserID sets the account whose resets are ignored.
func WithSystemUserID(id int64) Option {
	return func(r *Reconciler) {
		r.systemUserID = id
	}
}

// WithIDGenerator overrides how new reset ids are generated.
func WithIDGenerator(gen func() string) Option {
	return func(r *Reconciler) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// Reconciler applies batches of upstream events to the store.
type Reconciler struct {
	store        Store
	roster       RosterRefresher
	systemUserID int64
	newID        func() string
	logger       logger.Logger
}

// New creates a reconciler. roster may be nil, in which case unknown
// moderators fail without a refresh.
func New(store Store, roster RosterRefresher, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:        store,
		roster:       roster,
		systemUserID: DefaultSystemUserID,
		newID:        uuid.NewString,
		logger:       logger.Get().Named("reconcile"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// batch carries per-call lookup state.
type batch struct {
	users     map[int64]model.User
	refreshed bool
}

// Ingest applies events in order. Every write is an upsert on a natural
// key, so replaying a batch changes nothing. A failing event does not stop
// the rest of the batch; all failures are returned joined.
func (r *Reconciler) Ingest(ctx context.Context, events []Event) error {
	b := &batch{users: make(map[int64]model.User)}
	var errs []error
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := r.apply(ctx, b, ev); err != nil {
			metrics.RecordEventReconciled(ev.Kind.String(), "failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Reconciler) apply(ctx context.Context, b *batch, ev Event) error {
	if err := ev.validate(); err != nil {
		return err
	}
	switch ev.Kind {
	case KindNomination:
		return r.applyNomination(ctx, b, ev)
	case KindResetReceived, KindResetPerformed:
		if ev.UserID == r.systemUserID {
			metrics.RecordSystemResetSkipped()
			metrics.RecordEventReconciled(ev.Kind.String(), "skipped")
			return nil
		}
		return r.applyReset(ctx, b, ev)
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidEvent, int(ev.Kind))
	}
}

// moderator resolves a roster member, refreshing the roster at most once per batch.
func (r *Reconciler) moderator(ctx context.Context, b *batch, id int64) (model.User, error) {
	if u, ok := b.users[id]; ok {
		return u, nil
	}
	u, err := r.store.User(ctx, id)
	if err == nil {
		b.users[id] = u
		return u, nil
	}
	if r.roster == nil || b.refreshed {
		return model.User{}, fmt.Errorf("%w: %d", ErrModeratorNotFound, id)
	}

	r.logger.Info(ctx, "unknown moderator, refreshing roster", logger.Int64("user_id", id))
	b.refreshed = true
	if err := r.roster.Refresh(ctx); err != nil {
		return model.User{}, fmt.Errorf("refresh roster: %w", err)
	}
	u, err = r.store.User(ctx, id)
	if err != nil {
		return model.User{}, fmt.Errorf("%w: %d", ErrModeratorNotFound, id)
	}
	b.users[id] = u
	return u, nil
}

func (r *Reconciler) applyNomination(ctx context.Context, b *batch, ev Event) error {
	mod, err := r.moderator(ctx, b, ev.moderator())
	if err != nil {
		return err
	}
	n := model.Nomination{
		BeatmapsetID: ev.BeatmapsetID,
		UserID:       ev.UserID,
		ArtistTitle:  ev.ArtistTitle,
		CreatorID:    ev.CreatorID,
		CreatorName:  ev.CreatorName,
		Timestamp:    ev.Timestamp,
		AsModes:      model.IntersectModes(mod.Modes, model.ParseModes(ev.Modes)),
	}
	_, created, err := r.store.UpsertNomination(ctx, n)
	if err != nil {
		return fmt.Errorf("upsert nomination (%d, %d): %w", ev.BeatmapsetID, ev.UserID, err)
	}
	r.logger.Debug(ctx, "nomination reconciled",
		logger.Int64("beatmapset_id", ev.BeatmapsetID),
		logger.Int64("user_id", ev.UserID),
		logger.Bool("created", created))
	metrics.RecordEventReconciled(ev.Kind.String(), outcome(created))
	return nil
}

func (r *Reconciler) applyReset(ctx context.Context, b *batch, ev Event) error {
	var affected model.User
	if ev.Kind == KindResetReceived {
		var err error
		if affected, err = r.moderator(ctx, b, ev.moderator()); err != nil {
			return err
		}
	}

	id := ev.ID
	if id == "" {
		id = r.newID()
	}
	typ := ev.ResetType
	if typ == "" {
		typ = model.ResetPop
	}
	stored, created, err := r.store.UpsertReset(ctx, model.Reset{
		ID:           id,
		BeatmapsetID: ev.BeatmapsetID,
		UserID:       ev.UserID,
		ArtistTitle:  ev.ArtistTitle,
		CreatorID:    ev.CreatorID,
		CreatorName:  ev.CreatorName,
		Timestamp:    ev.Timestamp,
		Content:      ev.Content,
		DiscussionID: ev.DiscussionID,
		Obviousness:  rating(ev.Obviousness),
		Severity:     rating(ev.Severity),
		Type:         typ,
	})
	if err != nil {
		return fmt.Errorf("upsert reset (%d, %d, %s): %w", ev.BeatmapsetID, ev.UserID, ev.Timestamp, err)
	}
	metrics.RecordEventReconciled(ev.Kind.String(), outcome(created))

	if ev.Kind == KindResetReceived {
		return r.link(ctx, stored, affected.ID)
	}

	// The reset hit the latest nominations before it: the last nominator
	// for a pop, the last two for a disqualification.
	noms, err := r.store.NominationsBefore(ctx, ev.BeatmapsetID, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("load nominations before reset: %w", err)
	}
	limit := stored.Type.LinkCount()
	for i := 0; i < len(noms) && i < limit; i++ {
		if err := r.link(ctx, stored, noms[i].UserID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) link(ctx context.Context, reset model.Reset, userID int64) error {
	if userID == 0 || userID == r.systemUserID {
		return nil
	}
	added, err := r.store.AddAffected(ctx, reset.ID, userID)
	if err != nil {
		return fmt.Errorf("link reset %s to %d: %w", reset.ID, userID, err)
	}
	if added {
		metrics.RecordResetLinked()
		r.logger.Debug(ctx, "reset linked",
			logger.String("reset_id", reset.ID),
			logger.Int64("user_id", userID))
	}
	return nil
}

func outcome(created bool) string {
	if created {
		return "created"
	}
	return "updated"
}
