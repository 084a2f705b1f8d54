// Package service runs the per-moderator pipeline on a schedule and serves
// the reads and pushes the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	eventqueue "github.com/okian/bnstats/internal/adapters/mq/queue"
	workerpool "github.com/okian/bnstats/internal/adapters/mq/worker"
	repository "github.com/okian/bnstats/internal/adapters/repository"
	"github.com/okian/bnstats/internal/adapters/upstream"
	"github.com/okian/bnstats/internal/domain/dedupe"
	"github.com/okian/bnstats/internal/domain/favor"
	"github.com/okian/bnstats/internal/domain/model"
	"github.com/okian/bnstats/internal/domain/reconcile"
	"github.com/okian/bnstats/internal/domain/scoring"
	"github.com/okian/bnstats/internal/domain/types"
	"github.com/okian/bnstats/pkg/logger"
	"github.com/okian/bnstats/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultQueueSize    = 1024
	defaultActivityDays = 90
	defaultScoreDays    = 90
)

// Pipeline stages reported on failure.
const (
	StageActivity  = "activity"
	StageReconcile = "reconcile"
	StageFavor     = "favor"
	StageScore     = "score"
)

// Store is the persistence the service reads moderators and nominations from.
type Store interface {
	Users(ctx context.Context) ([]model.User, error)
	UserNominations(ctx context.Context, userID int64, since time.Time) ([]model.Nomination, error)
	UpdateFavor(ctx context.Context, userID int64, f model.Favor) error
}

// ActivitySource returns a moderator's recent events.
type ActivitySource interface {
	Activity(ctx context.Context, user model.User, days int) ([]reconcile.Event, error)
}

// Roster refreshes the moderator roster and returns it.
type Roster interface {
	Sync(ctx context.Context) ([]model.User, error)
}

// Ingester reconciles events into the store.
type Ingester interface {
	Ingest(ctx context.Context, events []reconcile.Event) error
}

// Engine scores moderators under one calculator.
type Engine interface {
	Calculator() scoring.Calculator
	CalculateUser(ctx context.Context, user model.User, persist bool) ([]model.Nomination, error)
	UserScore(ctx context.Context, userID int64, days int, mode *model.Mode) (float64, error)
}

// Failure describes a moderator whose pipeline did not complete.
type Failure struct {
	UserID int64
	Stage  string
	Err    error
}

// Notifier receives pipeline failures. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, f Failure)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, f Failure)

func (fn NotifierFunc) Notify(ctx context.Context, f Failure) { fn(ctx, f) }

// Dependencies are the collaborators a Service cannot run without.
type Dependencies struct {
	Store    Store
	Activity ActivitySource
	Roster   Roster
	Ingester Ingester
	Maps     scoring.MapSource
	Engines  []Engine
}

// CycleReport summarises one RunCycle.
type CycleReport struct {
	CycleID   string        `json:"cycle_id"`
	Users     int           `json:"users"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Dropped   int           `json:"dropped"`
	Duration  time.Duration `json:"duration"`
}

// Service implements the scheduled pipeline and the API dependencies.
type Service struct {
	mu sync.RWMutex

	deps    Dependencies
	engines map[model.CalculatorName]Engine
	boards  map[model.CalculatorName]*repository.Scoreboard
	order   []model.CalculatorName

	deduper    dedupe.Deduper
	jobQueue   *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool
	notifier   Notifier

	// Configuration
	workerCount  int
	queueSize    int
	activityDays int
	scoreDays    int
	useAiess     bool
	now          func() time.Time

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued moderator jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithActivityDays sets how many days of activity are fetched per moderator.
func WithActivityDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.activityDays = days
		}
	}
}

// WithScoreDays sets the window used for favor and the scoreboards.
func WithScoreDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.scoreDays = days
		}
	}
}

// WithUseAiess drops nominations from the activity feed; they arrive by push instead.
func WithUseAiess(use bool) Option {
	return func(s *Service) {
		s.useAiess = use
	}
}

// WithNotifier sets where pipeline failures are reported.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Every dependency and at least one engine is required.
func New(deps Dependencies, opts ...Option) (*Service, error) {
	if deps.Store == nil || deps.Activity == nil || deps.Roster == nil || deps.Ingester == nil || deps.Maps == nil {
		return nil, ErrMissingDependency
	}
	if len(deps.Engines) == 0 {
		return nil, fmt.Errorf("no engines: %w", ErrMissingDependency)
	}

	s := &Service{
		deps:         deps,
		engines:      make(map[model.CalculatorName]Engine, len(deps.Engines)),
		boards:       make(map[model.CalculatorName]*repository.Scoreboard, len(deps.Engines)),
		workerCount:  runtime.NumCPU(),
		queueSize:    defaultQueueSize,
		activityDays: defaultActivityDays,
		scoreDays:    defaultScoreDays,
		now:          time.Now,
		logger:       logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, e := range deps.Engines {
		name := e.Calculator().Name()
		if _, dup := s.engines[name]; dup {
			return nil, fmt.Errorf("engine %q registered twice: %w", name, ErrMissingDependency)
		}
		s.engines[name] = e
		s.boards[name] = repository.NewScoreboard(repository.WithName(string(name)))
		s.order = append(s.order, name)
	}
	return s, nil
}

// Start creates the job queue and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.deduper = dedupe.NewInMemoryDeduper()
	s.jobQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)
	s.workerPool = workerpool.NewPool(s.workerCount, s.jobQueue, workerpool.ProcessorFunc(s.Process))
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("calculators", len(s.order)),
	)
	return nil
}

// Stop closes the queue and waits for in-flight jobs.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	s.logger.Info(ctx, "stopping service...")
	return s.workerPool.Shutdown(ctx)
}

// RunCycle refreshes the roster and runs the pipeline once for every
// moderator. It returns when every job has finished or ctx is done.
// A moderator whose previous job is still running is skipped.
func (s *Service) RunCycle(ctx context.Context) (CycleReport, error) {
	s.mu.RLock()
	started, q, d := s.started, s.jobQueue, s.deduper
	s.mu.RUnlock()
	if !started {
		return CycleReport{}, ErrNotStarted
	}

	start := time.Now()
	report := CycleReport{CycleID: uuid.NewString()}
	log := s.logger.With(logger.String("cycle_id", report.CycleID))

	users, err := s.deps.Roster.Sync(ctx)
	if err != nil {
		log.Warn(ctx, "roster sync failed, using stored roster", logger.Error(err))
		users, err = s.deps.Store.Users(ctx)
		if err != nil {
			return report, fmt.Errorf("load roster: %w", err)
		}
	}
	report.Users = len(users)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, u := range users {
		key := dedupe.ModeratorKey(u.ID)
		if d.SeenAndRecord(ctx, key) {
			metrics.RecordDuplicateJob()
			report.Skipped++
			continue
		}

		wg.Add(1)
		job := eventqueue.Job{
			CycleID:   report.CycleID,
			Moderator: u,
			Done: func(err error) {
				d.Unrecord(ctx, key)
				mu.Lock()
				if err != nil {
					report.Failed++
				} else {
					report.Processed++
				}
				mu.Unlock()
				wg.Done()
			},
		}
		if !q.Enqueue(ctx, job) {
			d.Unrecord(ctx, key)
			wg.Done()
			mu.Lock()
			report.Dropped++
			mu.Unlock()
			log.Warn(ctx, "job queue full, moderator dropped", logger.Int64("user_id", u.ID))
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	mu.Lock()
	out := report
	mu.Unlock()
	out.Duration = time.Since(start)
	metrics.RecordCycleDuration(float64(out.Duration.Milliseconds()))

	log.Info(ctx, "cycle finished",
		logger.Int("users", out.Users),
		logger.Int("processed", out.Processed),
		logger.Int("failed", out.Failed),
		logger.Int("skipped", out.Skipped),
		logger.Int("dropped", out.Dropped),
		logger.Duration("duration", out.Duration),
	)
	if err != nil {
		return out, fmt.Errorf("cycle %s: %w", out.CycleID, err)
	}
	return out, nil
}

// Process runs the pipeline for a queued job.
func (s *Service) Process(ctx context.Context, j eventqueue.Job) error {
	err := s.ProcessModerator(ctx, j.Moderator)
	if err != nil {
		s.logger.Error(ctx, "moderator pipeline failed",
			logger.String("cycle_id", j.CycleID),
			logger.Int64("user_id", j.Moderator.ID),
			logger.Error(err),
		)
		return err
	}
	metrics.RecordModeratorProcessed()
	return nil
}

// ProcessModerator fetches the moderator's activity, reconciles it, refreshes
// their favor and rescores them under every calculator. Reconciliation
// failures of single events do not stop scoring; they are returned joined
// with any later failure.
func (s *Service) ProcessModerator(ctx context.Context, user model.User) error {
	var errs []error

	events, err := s.deps.Activity.Activity(ctx, user, s.activityDays)
	if err != nil {
		if !errors.Is(err, upstream.ErrSourceUnavailable) {
			return s.fail(ctx, user, StageActivity, fmt.Errorf("fetch activity: %w", err))
		}
		s.logger.Warn(ctx, "activity source unavailable, reconciling nothing",
			logger.Int64("user_id", user.ID), logger.Error(err))
		events = nil
	}
	if s.useAiess {
		events = withoutNominations(events)
	}

	if err := s.deps.Ingester.Ingest(ctx, events); err != nil {
		errs = append(errs, s.fail(ctx, user, StageReconcile, err))
	}

	since := s.now().AddDate(0, 0, -s.scoreDays)
	noms, err := s.deps.Store.UserNominations(ctx, user.ID, since)
	if err != nil {
		errs = append(errs, s.fail(ctx, user, StageFavor, fmt.Errorf("load nominations: %w", err)))
	} else if err := s.refreshFavor(ctx, user, noms); err != nil {
		errs = append(errs, s.fail(ctx, user, StageFavor, err))
	}

	for _, name := range s.order {
		if err := s.score(ctx, name, user); err != nil {
			errs = append(errs, s.fail(ctx, user, StageScore, err))
			break
		}
	}
	return errors.Join(errs...)
}

func (s *Service) refreshFavor(ctx context.Context, user model.User, noms []model.Nomination) error {
	seen := make(map[int64]struct{}, len(noms))
	sets := make([]model.BeatmapSet, 0, len(noms))
	for _, n := range noms {
		if _, ok := seen[n.BeatmapsetID]; ok {
			continue
		}
		seen[n.BeatmapsetID] = struct{}{}
		set, err := s.deps.Maps.BeatmapSet(ctx, n.BeatmapsetID)
		if err != nil {
			return fmt.Errorf("beatmapset %d: %w", n.BeatmapsetID, err)
		}
		sets = append(sets, model.NewBeatmapSet(set.Beatmaps, n.AsModes...))
	}

	f, ok := favor.Aggregate(sets)
	if !ok {
		s.logger.Debug(ctx, "no valid sets, favor unchanged", logger.Int64("user_id", user.ID))
		return nil
	}
	if err := s.deps.Store.UpdateFavor(ctx, user.ID, f); err != nil {
		return fmt.Errorf("update favor: %w", err)
	}
	return nil
}

func (s *Service) score(ctx context.Context, name model.CalculatorName, user model.User) error {
	e := s.engines[name]
	if _, err := e.CalculateUser(ctx, user, true); err != nil {
		return fmt.Errorf("%s: calculate: %w", name, err)
	}
	total, err := e.UserScore(ctx, user.ID, s.scoreDays, nil)
	if err != nil {
		return fmt.Errorf("%s: user score: %w", name, err)
	}
	board := s.boards[name]
	board.Set(ctx, user.ID, total)
	metrics.UpdateScoreboardSize(string(name), board.Count(ctx))
	return nil
}

func (s *Service) fail(ctx context.Context, user model.User, stage string, err error) error {
	metrics.RecordModeratorFailure(stage)
	if s.notifier != nil {
		s.notifier.Notify(ctx, Failure{UserID: user.ID, Stage: stage, Err: err})
	}
	return fmt.Errorf("%s: %w", stage, err)
}

func withoutNominations(events []reconcile.Event) []reconcile.Event {
	kept := events[:0:0]
	for _, ev := range events {
		if ev.Kind != reconcile.KindNomination {
			kept = append(kept, ev)
		}
	}
	return kept
}

// Ingest reconciles pushed events.
func (s *Service) Ingest(ctx context.Context, events []reconcile.Event) error {
	return s.deps.Ingester.Ingest(ctx, events)
}

// Calculators lists the configured calculators in registration order.
func (s *Service) Calculators() []string {
	out := make([]string, len(s.order))
	for i, n := range s.order {
		out[i] = string(n)
	}
	return out
}

// TopN returns the top n moderators of a calculator's scoreboard.
func (s *Service) TopN(ctx context.Context, calculator string, n int) ([]types.Entry, error) {
	board, ok := s.boards[model.CalculatorName(calculator)]
	if !ok {
		return nil, fmt.Errorf("%q: %w", calculator, scoring.ErrUnknownCalculator)
	}
	return board.TopN(ctx, n)
}

// Rank returns a moderator's position on a calculator's scoreboard.
func (s *Service) Rank(ctx context.Context, calculator string, userID int64) (types.Entry, error) {
	board, ok := s.boards[model.CalculatorName(calculator)]
	if !ok {
		return types.Entry{}, fmt.Errorf("%q: %w", calculator, scoring.ErrUnknownCalculator)
	}
	return board.Rank(ctx, userID)
}

// UserScore computes a moderator's activity score from stored nominations.
// A nil mode scores every nomination.
func (s *Service) UserScore(ctx context.Context, calculator string, userID int64, days int, mode *model.Mode) (types.ScoreView, error) {
	e, ok := s.engines[model.CalculatorName(calculator)]
	if !ok {
		return types.ScoreView{}, fmt.Errorf("%q: %w", calculator, scoring.ErrUnknownCalculator)
	}
	if days <= 0 {
		days = s.scoreDays
	}
	total, err := e.UserScore(ctx, userID, days, mode)
	if err != nil {
		return types.ScoreView{}, err
	}
	view := types.ScoreView{UserID: userID, Calculator: calculator, Days: days, Score: model.Round2(total)}
	if mode != nil {
		view.Mode = mode.String()
	}
	return view, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"calculators": s.Calculators(),
	}
	if s.started {
		stats["queueLength"] = s.jobQueue.Len(ctx)
		stats["inFlight"] = s.deduper.Size()
		boards := make(map[string]int, len(s.boards))
		for name, b := range s.boards {
			boards[string(name)] = b.Count(ctx)
		}
		stats["scoreboards"] = boards
	}
	return stats
}
