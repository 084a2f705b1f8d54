package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/bnstats/internal/domain/model"
	"github.com/okian/bnstats/pkg/logger"
	"github.com/okian/bnstats/pkg/metrics"
)

// Default engine configuration constants.
const (
	defaultMapperWindow = 180 * 24 * time.Hour
	defaultScoreDays    = 90
)

// Store is the persistence the engine reads from and writes to.
type Store interface {
	User(ctx context.Context, id int64) (model.User, error)
	// UserNominations returns the moderator's nominations at or after since, oldest first.
	UserNominations(ctx context.Context, userID int64, since time.Time) ([]model.Nomination, error)
	// CreatorNominations returns nominations of sets by creatorID in [from, to).
	CreatorNominations(ctx context.Context, creatorID int64, from, to time.Time) ([]model.Nomination, error)
	// ResetsAffecting returns resets on the set that list userID as affected.
	ResetsAffecting(ctx context.Context, userID, beatmapsetID int64) ([]model.Reset, error)
	SaveNominationScore(ctx context.Context, nominationID int64, name model.CalculatorName, c model.ScoreComponents) error
	FlagAmbiguous(ctx context.Context, nominationID int64) error
}

// MapSource returns the current difficulties of a beatmapset. A deleted set
// is returned empty, not as an error.
type MapSource interface {
	BeatmapSet(ctx context.Context, beatmapsetID int64) (model.BeatmapSet, error)
}

// EngineOption applies a configuration option to the Engine.
type EngineOption func(*Engine)

// WithMapperWindow sets how far back mapper repetition is counted.
func WithMapperWindow(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.mapperWindow = d
		}
	}
}

// WithScoreDays sets the window calculate-user rescoring covers.
func WithScoreDays(days int) EngineOption {
	return func(e *Engine) {
		if days > 0 {
			e.scoreDays = days
		}
	}
}

// WithSystemUserID sets the account whose resets never penalise anyone.
func WithSystemUserID(id int64) EngineOption {
	return func(e *Engine) {
		e.systemUserID = id
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine binds a Calculator to storage and the beatmap metadata source.
type Engine struct {
	calc         Calculator
	store        Store
	maps         MapSource
	mapperWindow time.Duration
	scoreDays    int
	systemUserID int64
	now          func() time.Time
	logger       logger.Logger
}

// NewEngine creates an engine for calc.
func NewEngine(calc Calculator, store Store, maps MapSource, opts ...EngineOption) *Engine {
	e := &Engine{
		calc:         calc,
		store:        store,
		maps:         maps,
		mapperWindow: defaultMapperWindow,
		scoreDays:    defaultScoreDays,
		systemUserID: -1,
		now:          time.Now,
		logger:       logger.Get().Named("scoring"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Calculator returns the strategy the engine runs.
func (e *Engine) Calculator() Calculator { return e.calc }

// CalculateNomination scores one nomination. It returns nil without error
// when the nomination cannot be scored: the set was deleted upstream, no
// difficulty matches the attributed modes, or the attribution is ambiguous
// (the nomination is flagged for review).
func (e *Engine) CalculateNomination(ctx context.Context, nom model.Nomination) (*model.ScoreComponents, error) {
	set, err := e.maps.BeatmapSet(ctx, nom.BeatmapsetID)
	if err != nil {
		return nil, fmt.Errorf("load beatmapset %d: %w", nom.BeatmapsetID, err)
	}
	if set.Empty() {
		e.logger.Warn(ctx, "beatmapset no longer exists, skipping",
			logger.Int64("beatmapset_id", nom.BeatmapsetID))
		metrics.RecordNominationSkipped("deleted")
		return nil, nil
	}

	user, err := e.store.User(ctx, nom.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", nom.UserID, err)
	}

	modes, err := ResolveModes(nom, user, set)
	if errors.Is(err, ErrAmbiguousMode) {
		e.logger.Warn(ctx, "ambiguous nomination mode, flagging",
			logger.Int64("nomination_id", nom.ID),
			logger.Int64("beatmapset_id", nom.BeatmapsetID),
			logger.Error(err))
		metrics.RecordNominationSkipped("ambiguous")
		if ferr := e.store.FlagAmbiguous(ctx, nom.ID); ferr != nil {
			return nil, fmt.Errorf("flag nomination %d: %w", nom.ID, ferr)
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	set = model.NewBeatmapSet(set.Beatmaps, modes...)
	if set.Empty() || len(modes) == 0 {
		metrics.RecordNominationSkipped("no_mode")
		return nil, nil
	}

	history, err := e.store.CreatorNominations(ctx, set.CreatorID(), nom.Timestamp.Add(-e.mapperWindow), nom.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("load mapper history: %w", err)
	}
	self, other := MapperRepetition(history, nom.UserID, nom.BeatmapsetID)

	resets, err := e.store.ResetsAffecting(ctx, nom.UserID, nom.BeatmapsetID)
	if err != nil {
		return nil, fmt.Errorf("load resets: %w", err)
	}
	counted := resets[:0:0]
	for _, r := range resets {
		if r.UserID != e.systemUserID {
			counted = append(counted, r)
		}
	}

	c := e.calc.ScoreNomination(Input{Set: set, SelfCount: self, OtherCount: other, Resets: counted})
	e.logger.Debug(ctx, "nomination scored",
		logger.String("calculator", string(e.calc.Name())),
		logger.Int64("beatmapset_id", nom.BeatmapsetID),
		logger.Float64("total", c.TotalScore))
	return &c, nil
}

// CalculateUser rescoring covers the moderator's recent nominations. With
// persist, each result is written into the nomination's score map under
// the calculator's name. The returned nominations carry the new scores.
func (e *Engine) CalculateUser(ctx context.Context, user model.User, persist bool) ([]model.Nomination, error) {
	start := time.Now()
	defer func() {
		metrics.RecordCalculationLatency(float64(time.Since(start).Milliseconds()))
	}()

	since := e.now().AddDate(0, 0, -e.scoreDays)
	noms, err := e.store.UserNominations(ctx, user.ID, since)
	if err != nil {
		return nil, fmt.Errorf("load nominations: %w", err)
	}

	name := e.calc.Name()
	scored := make([]model.Nomination, 0, len(noms))
	for _, nom := range noms {
		c, err := e.CalculateNomination(ctx, nom)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		rounded := c.Rounded()
		if persist {
			if err := e.store.SaveNominationScore(ctx, nom.ID, name, rounded); err != nil {
				return nil, fmt.Errorf("save score for nomination %d: %w", nom.ID, err)
			}
		}
		if nom.Scores == nil {
			nom.Scores = map[model.CalculatorName]model.ScoreComponents{}
		}
		nom.Scores[name] = rounded
		scored = append(scored, nom)
		metrics.RecordNominationScored(string(name))
	}

	e.logger.Info(ctx, "user calculated",
		logger.Int64("user_id", user.ID),
		logger.String("calculator", string(name)),
		logger.Int("nominations", len(noms)),
		logger.Int("scored", len(scored)))
	return scored, nil
}

// UserScore is the moderator's activity score over the last days, optionally
// restricted to nominations attributed to mode.
func (e *Engine) UserScore(ctx context.Context, userID int64, days int, mode *model.Mode) (float64, error) {
	if days <= 0 {
		days = e.scoreDays
	}
	noms, err := e.store.UserNominations(ctx, userID, e.now().AddDate(0, 0, -days))
	if err != nil {
		return 0, fmt.Errorf("load nominations: %w", err)
	}
	if mode != nil {
		filtered := noms[:0:0]
		for _, n := range noms {
			if n.HasMode(*mode) {
				filtered = append(filtered, n)
			}
		}
		noms = filtered
	}
	return e.calc.ActivityScore(noms), nil
}
