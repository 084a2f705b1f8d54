package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/bnstats/internal/adapters/repository"
	service "github.com/okian/bnstats/internal/app"
	"github.com/okian/bnstats/internal/domain/model"
	"github.com/okian/bnstats/internal/domain/reconcile"
	"github.com/okian/bnstats/internal/domain/scoring"
	"github.com/okian/bnstats/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type memberList []reconcile.Member

func (m memberList) Members(context.Context) ([]reconcile.Member, error) { return m, nil }

type beatmapList map[int64][]model.Beatmap

func (b beatmapList) Beatmaps(_ context.Context, id int64) ([]model.Beatmap, error) {
	return b[id], nil
}

func rankedSet(id int64, mode model.Mode, creator int64) []model.Beatmap {
	hits := []int{120, 150, 180, 210}
	srs := []float64{2.0, 3.0, 4.5, 5.5}
	out := make([]model.Beatmap, 0, len(hits))
	for i, h := range hits {
		out = append(out, model.Beatmap{
			BeatmapsetID:     id,
			BeatmapID:        id*100 + int64(i),
			Status:           model.StatusRanked,
			HitLength:        h,
			TotalLength:      h,
			Mode:             mode,
			CreatorID:        creator,
			Genre:            model.GenreAnime,
			Language:         model.LanguageJapanese,
			DifficultyRating: srs[i],
		})
	}
	return out
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service wired to the real domain stack", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		clock := func() time.Time { return now }
		nop := logger.NewNop()

		store := repository.NewMemoryStore()
		roster := reconcile.NewRosterSync(memberList{
			{ID: 10, Username: "bn", Modes: []string{"osu"}, IsBN: true},
			{ID: 20, Username: "nat", Modes: []string{"none"}, IsNAT: true},
		}, store)
		maps := reconcile.NewMapSync(beatmapList{
			1: rankedSet(1, model.ModeStandard, 500),
			2: rankedSet(2, model.ModeTaiko, 600),
		}, store, reconcile.WithMapClock(clock))
		rec := reconcile.New(store, roster, reconcile.WithLogger(nop))

		var engines []service.Engine
		for _, name := range []string{"naxess", "ren"} {
			calc, err := scoring.Lookup(name)
			So(err, ShouldBeNil)
			engines = append(engines, scoring.NewEngine(calc, store, maps,
				scoring.WithClock(clock), scoring.WithLogger(nop)))
		}

		activity := &fakeActivity{events: map[int64][]reconcile.Event{
			10: {
				{Kind: reconcile.KindNomination, BeatmapsetID: 1, UserID: 10, CreatorID: 500, Modes: []string{"osu"}, Timestamp: now.Add(-48 * time.Hour)},
			},
			20: {
				{Kind: reconcile.KindNomination, BeatmapsetID: 2, UserID: 20, CreatorID: 600, Modes: []string{"taiko"}, Timestamp: now.Add(-24 * time.Hour)},
				{Kind: reconcile.KindNomination, BeatmapsetID: 1, UserID: 20, CreatorID: 500, Modes: []string{"osu"}, Timestamp: now.Add(-47 * time.Hour)},
			},
		}}

		svc, err := service.New(service.Dependencies{
			Store:    store,
			Activity: activity,
			Roster:   roster,
			Ingester: rec,
			Maps:     maps,
			Engines:  engines,
		},
			service.WithLogger(nop),
			service.WithWorkerCount(1),
			service.WithClock(clock),
		)
		So(err, ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() {
			_ = svc.Stop(context.Background())
			cancel()
		})

		Convey("When a cycle runs end-to-end", func() {
			report, err := svc.RunCycle(ctx)
			So(err, ShouldBeNil)
			So(report.Processed, ShouldEqual, 2)

			Convey("Then nominations are stored with their scores", func() {
				nom, err := store.Nomination(ctx, 1, 10)
				So(err, ShouldBeNil)
				So(nom.AsModes, ShouldResemble, []model.Mode{model.ModeStandard})
				naxess, ok := nom.Score(model.CalculatorNaxess)
				So(ok, ShouldBeTrue)
				So(naxess.TotalScore, ShouldEqual, 1.44)
				_, ok = nom.Score(model.CalculatorRen)
				So(ok, ShouldBeTrue)
			})

			Convey("Then favor reflects the nominated sets", func() {
				u, err := store.User(ctx, 10)
				So(err, ShouldBeNil)
				So(u.Favor.GenreFavor, ShouldResemble, []string{"Anime"})
				So(u.Favor.AvgDiffs, ShouldEqual, 4)
			})

			Convey("Then the scoreboard matches the score endpoint", func() {
				entry, err := svc.Rank(ctx, "naxess", 10)
				So(err, ShouldBeNil)
				view, err := svc.UserScore(ctx, "naxess", 10, 0, nil)
				So(err, ShouldBeNil)
				So(entry.Score, ShouldAlmostEqual, view.Score, 0.01)
				So(view.Score, ShouldEqual, 1.44)

				top, err := svc.TopN(ctx, "naxess", 1)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 1)
				So(top[0].UserID, ShouldEqual, 20)
			})

			Convey("Then a second cycle is idempotent", func() {
				before, err := svc.UserScore(ctx, "ren", 20, 0, nil)
				So(err, ShouldBeNil)
				_, err = svc.RunCycle(ctx)
				So(err, ShouldBeNil)
				after, err := svc.UserScore(ctx, "ren", 20, 0, nil)
				So(err, ShouldBeNil)
				So(after.Score, ShouldEqual, before.Score)

				noms, err := store.UserNominations(ctx, 20, now.AddDate(0, 0, -90))
				So(err, ShouldBeNil)
				So(len(noms), ShouldEqual, 2)
			})
		})
	})
}
