package main

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/bnstats/internal/adapters/repository"
	app "github.com/okian/bnstats/internal/app"
	"github.com/okian/bnstats/internal/config"
	"github.com/okian/bnstats/internal/domain/model"
	"github.com/okian/bnstats/internal/domain/reconcile"
	"github.com/okian/bnstats/internal/domain/scoring"
	"github.com/okian/bnstats/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type noMembers struct{}

func (noMembers) Members(context.Context) ([]reconcile.Member, error) { return nil, nil }

type noBeatmaps struct{}

func (noBeatmaps) Beatmaps(context.Context, int64) ([]model.Beatmap, error) { return nil, nil }

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("BNSTATS_ADDR", ":8080")
			_ = os.Setenv("BNSTATS_QUEUE_SIZE", "1000")
			_ = os.Setenv("BNSTATS_WORKER_COUNT", "4")
			_ = os.Setenv("BNSTATS_AIESS_KEY", "not-the-default")
			defer func() {
				_ = os.Unsetenv("BNSTATS_ADDR")
				_ = os.Unsetenv("BNSTATS_QUEUE_SIZE")
				_ = os.Unsetenv("BNSTATS_WORKER_COUNT")
				_ = os.Unsetenv("BNSTATS_AIESS_KEY")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When building calculators from the defaults", func() {
			cfg := config.New(context.Background())
			store := repository.NewMemoryStore()
			engines, err := buildEngines(cfg, store, reconcile.NewMapSync(noBeatmaps{}, store))

			convey.Convey("Then one engine per calculator is created in order", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(engines), convey.ShouldEqual, 2)
				convey.So(engines[0].Calculator().Name(), convey.ShouldEqual, model.CalculatorNaxess)
				convey.So(engines[1].Calculator().Name(), convey.ShouldEqual, model.CalculatorRen)
			})
		})

		convey.Convey("When a calculator is unknown", func() {
			cfg := config.New(context.Background())
			cfg.Calculators = []string{"naxess", "elo"}
			store := repository.NewMemoryStore()
			_, err := buildEngines(cfg, store, reconcile.NewMapSync(noBeatmaps{}, store))

			convey.Convey("Then building fails", func() {
				convey.So(errors.Is(err, scoring.ErrUnknownCalculator), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When interop credentials are set", func() {
			cfg := config.New(context.Background())
			cfg.InteropUsername, cfg.InteropPassword = "u", "p"

			convey.Convey("Then a site client is still built", func() {
				convey.So(cfg.UseInterop(), convey.ShouldBeTrue)
				convey.So(newSiteClient(cfg), convey.ShouldNotBeNil)
			})
		})
	})
}

func TestRunScheduler(t *testing.T) {
	convey.Convey("Given a started service with an empty roster", t, func() {
		store := repository.NewMemoryStore()
		roster := reconcile.NewRosterSync(noMembers{}, store)
		maps := reconcile.NewMapSync(noBeatmaps{}, store)
		cfg := config.New(context.Background())
		engines, err := buildEngines(cfg, store, maps)
		convey.So(err, convey.ShouldBeNil)

		svc, err := app.New(app.Dependencies{
			Store:    store,
			Activity: newSiteClient(cfg),
			Roster:   roster,
			Ingester: reconcile.New(store, roster),
			Maps:     maps,
			Engines:  engines,
		}, app.WithLogger(logger.NewNop()), app.WithWorkerCount(1))
		convey.So(err, convey.ShouldBeNil)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(context.Background()) }()

		convey.Convey("When the scheduler runs until the context ends", func() {
			done := make(chan struct{})
			go func() {
				runScheduler(ctx, svc, 10*time.Millisecond, logger.NewNop())
				close(done)
			}()

			convey.Convey("Then it returns", func() {
				select {
				case <-done:
				case <-time.After(2 * time.Second):
					t.Fatal("scheduler did not stop")
				}
				convey.So(svc.GetStats()["started"], convey.ShouldEqual, true)
			})
		})
	})
}

func TestFailureNotifier(t *testing.T) {
	convey.Convey("Given the logging notifier", t, func() {
		n := failureNotifier(logger.NewNop())

		convey.Convey("Then notifying does not panic", func() {
			convey.So(func() {
				n.Notify(context.Background(), app.Failure{UserID: 1, Stage: app.StageScore, Err: errors.New("boom")})
			}, convey.ShouldNotPanic)
		})

		convey.Convey("Then runtime collectors register once", func() {
			convey.So(registerRuntimeCollectors, convey.ShouldNotPanic)
			convey.So(registerRuntimeCollectors, convey.ShouldNotPanic)
		})
	})
}
